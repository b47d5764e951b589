package repository

// MessageBus carries committed ledger events to off-engine consumers.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

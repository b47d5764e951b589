package model

import "time"

// Kind classifies catalog entries. An engine instance is bound to one kind
// and rejects lease requests against entries of any other kind.
type Kind string

const (
	KindVirtualMachine Kind = "vm"
	KindVolume         Kind = "volume"
	KindOther          Kind = "other"
)

// Status is the lease lifecycle state. Stopped is terminal.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
)

// CatalogEntry is a priced resource definition in the pricing registry.
// PricePerHour is denominated in the smallest token unit, no decimal scaling.
type CatalogEntry struct {
	ID           uint64 `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	PricePerHour uint64 `json:"price_per_hour" yaml:"price_per_hour"`
	Deprecated   bool   `json:"deprecated" yaml:"deprecated"`
	Kind         Kind   `json:"kind" yaml:"kind"`
}

// Lease is the central ledger entity. PricePerHour is snapshotted from the
// registry at creation; later registry updates never touch an open lease.
type Lease struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	ResourceID     uint64    `json:"resource_id"`
	PricePerHour   uint64    `json:"price_per_hour"`
	TotalHours     uint64    `json:"total_hours"`
	ConsumedHours  uint64    `json:"consumed_hours"`
	Status         Status    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	LastPausedTime time.Time `json:"last_paused_time,omitzero"`
	LockedCredits  uint64    `json:"locked_credits"`
	Tag            string    `json:"tag,omitempty"`
}

// Event kinds, one per observable transition.
const (
	EventLeaseCreated     = "lease.created"
	EventLeasePaused      = "lease.paused"
	EventLeaseResumed     = "lease.resumed"
	EventLeaseStopped     = "lease.stopped"
	EventLeaseManagerStop = "lease.manager_stopped"
	EventCreditsDeposited = "credits.deposited"
	EventCreditsWithdrawn = "credits.withdrawn"
)

// Event is the audit record emitted after every committed transition.
// Amount carries the economically relevant value for the kind: deposit and
// withdrawal amounts, or the refund for lease.stopped.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	LeaseID   uint64    `json:"lease_id,omitempty"`
	Account   string    `json:"account"`
	Amount    uint64    `json:"amount"`
	Tag       string    `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transport-level requests shared by the HTTP and NATS command handlers.

type DepositRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type WithdrawRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type CreateLeaseRequest struct {
	Owner      string `json:"owner"`
	ResourceID uint64 `json:"resource_id"`
	Hours      uint64 `json:"hours"`
	Tag        string `json:"tag,omitempty"`
}

type LeaseActionRequest struct {
	Caller  string `json:"caller"`
	LeaseID uint64 `json:"lease_id"`
}

type StopResult struct {
	Refund uint64 `json:"refund"`
}

// LeaseView is the read-model returned by lease queries: the stored lease
// plus the live remaining-hours figure.
type LeaseView struct {
	Lease
	RemainingHours uint64 `json:"remaining_hours"`
}

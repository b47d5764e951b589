package engine

import (
	"context"
	"time"

	"leasio/internal/model"
)

// Store is the durable state behind the engine: leases, free balances and
// the owner index. Every state-changing operation runs inside a single
// transaction that commits or discards as a unit; events announced in the
// transaction are delivered only after a successful commit.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// FreeBalance is the read path for an account's free credits. It may be
	// served from a cache; the transactional view inside WithinTx is always
	// authoritative.
	FreeBalance(ctx context.Context, account string) (uint64, error)
}

// Tx is the transactional view the engine mutates. Implementations must
// guarantee that nothing written through a Tx is visible unless the
// enclosing WithinTx callback returns nil.
type Tx interface {
	Lease(id uint64) (*model.Lease, error)
	PutLease(l *model.Lease) error

	// NextLeaseID returns previous max + 1. Ids are monotonic and never
	// reused, even across stopped leases.
	NextLeaseID() (uint64, error)

	AppendOwnerLease(owner string, id uint64) error
	OwnerLeases(owner string) ([]uint64, error)

	// Credits returns the free balance, zero for accounts never seen.
	Credits(account string) (uint64, error)
	SetCredits(account string, amount uint64) error

	// Announce stages an event for delivery after commit.
	Announce(ev model.Event)
}

// Registry is the engine's read-only view of the pricing registry.
type Registry interface {
	Exists(ctx context.Context, id uint64) (bool, error)
	Get(ctx context.Context, id uint64) (model.CatalogEntry, error)
}

// Bridge is the external token collaborator backing deposits and
// withdrawals. A non-nil error from Pull or Push means no value moved.
type Bridge interface {
	Pull(ctx context.Context, from string, amount uint64) error
	Push(ctx context.Context, to string, amount uint64) error
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// Clock abstracts time so elapsed-hour arithmetic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

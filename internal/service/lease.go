package service

import (
	"context"

	"leasio/internal/model"
)

// LeaseService defines the business operations of the leasing ledger.
// All transport layers (HTTP, NATS) depend on this interface, not on the
// concrete engine.
type LeaseService interface {
	Deposit(ctx context.Context, account string, amount uint64) error
	Withdraw(ctx context.Context, account string, amount uint64) error

	CreateLease(ctx context.Context, owner string, resourceID, hours uint64, tag string) (uint64, error)
	Pause(ctx context.Context, caller string, leaseID uint64) error
	Resume(ctx context.Context, caller string, leaseID uint64) error
	Stop(ctx context.Context, caller string, leaseID uint64) (uint64, error)
	ManagerStop(ctx context.Context, caller string, leaseID uint64) (uint64, error)

	Lease(ctx context.Context, id uint64) (*model.LeaseView, error)
	LeasesOf(ctx context.Context, account string) ([]uint64, error)
	FreeBalance(ctx context.Context, account string) (uint64, error)
}

// EventSyncer persists published ledger events into the audit store; the
// worker depends on this, not on the repository.
type EventSyncer interface {
	SyncEvent(ctx context.Context, ev model.Event) error
}

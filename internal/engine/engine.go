package engine

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"

	"leasio/internal/model"
)

// Engine is the lease state machine plus credit ledger. All state-changing
// operations are serialized by a single mutex and executed inside one Store
// transaction, so each call either applies fully or not at all. The mutex
// also guards against the token collaborator re-entering the engine while a
// transaction is still open.
type Engine struct {
	mu       sync.Mutex
	store    Store
	registry Registry
	token    Bridge
	clock    Clock
	manager  string
	kind     model.Kind
	pausable bool
}

type Option func(*Engine)

// WithClock replaces the wall clock, used by tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithoutPause builds the fixed-duration engine variant: leases run for
// their contracted hours and can only be stopped, never paused or resumed.
func WithoutPause() Option {
	return func(e *Engine) { e.pausable = false }
}

// New builds an engine bound to one resource kind. manager is the single
// account allowed to force-stop any lease; it is fixed for the lifetime of
// the engine.
func New(store Store, registry Registry, token Bridge, kind model.Kind, manager string, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		token:    token,
		clock:    systemClock{},
		manager:  manager,
		kind:     kind,
		pausable: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Amounts are kept within the signed 64-bit range so they survive a BIGINT
// storage column; anything beyond that is a nonsensical price×duration
// product anyway.
func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 || lo > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a || sum > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// elapsedHours floors to whole hours; there is no sub-hour billing.
func elapsedHours(now, since time.Time) uint64 {
	if !now.After(since) {
		return 0
	}
	return uint64(now.Sub(since) / time.Hour)
}

func (e *Engine) newEvent(kind string, leaseID uint64, account string, amount uint64, tag string) model.Event {
	return model.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		LeaseID:   leaseID,
		Account:   account,
		Amount:    amount,
		Tag:       tag,
		CreatedAt: e.clock.Now(),
	}
}

// Deposit pulls amount from account via the token bridge and credits the
// free balance. The pull happens inside the transaction: if it fails,
// nothing is written.
func (e *Engine) Deposit(ctx context.Context, account string, amount uint64) error {
	if account == "" || amount == 0 {
		return ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.WithinTx(ctx, func(tx Tx) error {
		bal, err := tx.Credits(account)
		if err != nil {
			return err
		}
		next, err := checkedAdd(bal, amount)
		if err != nil {
			return err
		}
		if err := e.token.Pull(ctx, account, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := tx.SetCredits(account, next); err != nil {
			return err
		}
		tx.Announce(e.newEvent(model.EventCreditsDeposited, 0, account, amount, ""))
		return nil
	})
}

// Withdraw pushes amount back to account via the token bridge and debits
// the free balance. The push is sequenced inside the transaction so a
// failed push never leaves the balance decremented.
func (e *Engine) Withdraw(ctx context.Context, account string, amount uint64) error {
	if account == "" || amount == 0 {
		return ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.WithinTx(ctx, func(tx Tx) error {
		bal, err := tx.Credits(account)
		if err != nil {
			return err
		}
		if bal < amount {
			return ErrInsufficientBalance
		}
		if err := e.token.Push(ctx, account, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := tx.SetCredits(account, bal-amount); err != nil {
			return err
		}
		tx.Announce(e.newEvent(model.EventCreditsWithdrawn, 0, account, amount, ""))
		return nil
	})
}

// CreateLease opens a lease against a catalog entry, locking
// pricePerHour×hours from the owner's free balance. The price is
// snapshotted: later registry updates never change an open lease.
func (e *Engine) CreateLease(ctx context.Context, owner string, resourceID, hours uint64, tag string) (uint64, error) {
	if owner == "" || hours == 0 {
		return 0, ErrInvalidArgument
	}
	ok, err := e.registry.Exists(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnknownResource
	}
	entry, err := e.registry.Get(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	if entry.Deprecated {
		return 0, ErrDeprecatedResource
	}
	if entry.Kind != e.kind {
		return 0, ErrWrongResourceKind
	}
	cost, err := checkedMul(entry.PricePerHour, hours)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var id uint64
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		bal, err := tx.Credits(owner)
		if err != nil {
			return err
		}
		if bal < cost {
			return ErrInsufficientCredits
		}
		id, err = tx.NextLeaseID()
		if err != nil {
			return err
		}
		lease := &model.Lease{
			ID:            id,
			Owner:         owner,
			ResourceID:    resourceID,
			PricePerHour:  entry.PricePerHour,
			TotalHours:    hours,
			Status:        model.StatusRunning,
			StartTime:     e.clock.Now(),
			LockedCredits: cost,
			Tag:           tag,
		}
		if err := tx.SetCredits(owner, bal-cost); err != nil {
			return err
		}
		if err := tx.PutLease(lease); err != nil {
			return err
		}
		if err := tx.AppendOwnerLease(owner, id); err != nil {
			return err
		}
		tx.Announce(e.newEvent(model.EventLeaseCreated, id, owner, cost, tag))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// foldElapsed moves elapsed whole hours since StartTime into ConsumedHours
// and burns the matching credits out of the lock. Consumed credits are
// capped at the remaining lock so it can never go negative, and consumed
// hours are capped at the contracted total. Returns the credits burned.
func foldElapsed(l *model.Lease, now time.Time) uint64 {
	elapsed := elapsedHours(now, l.StartTime)
	l.ConsumedHours += elapsed
	if l.ConsumedHours > l.TotalHours {
		l.ConsumedHours = l.TotalHours
	}
	consumed := l.LockedCredits
	if hi, lo := bits.Mul64(elapsed, l.PricePerHour); hi == 0 && lo < consumed {
		consumed = lo
	}
	l.LockedCredits -= consumed
	return consumed
}

// Pause folds elapsed hours into the lease and parks it. Burned credits
// leave the locked pool for good; they are not returned to the free
// balance.
func (e *Engine) Pause(ctx context.Context, caller string, leaseID uint64) error {
	if !e.pausable {
		return ErrNotPausable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.WithinTx(ctx, func(tx Tx) error {
		lease, err := tx.Lease(leaseID)
		if err != nil {
			return err
		}
		if lease.Owner != caller {
			return ErrNotOwner
		}
		if lease.Status != model.StatusRunning {
			return ErrNotRunning
		}
		now := e.clock.Now()
		burned := foldElapsed(lease, now)
		lease.LastPausedTime = now
		lease.Status = model.StatusPaused
		if err := tx.PutLease(lease); err != nil {
			return err
		}
		tx.Announce(e.newEvent(model.EventLeasePaused, leaseID, lease.Owner, burned, ""))
		return nil
	})
}

// Resume restarts a paused lease. If an earlier refund left the lock below
// what the remaining hours cost, the shortfall is pulled from the owner's
// free balance first.
func (e *Engine) Resume(ctx context.Context, caller string, leaseID uint64) error {
	if !e.pausable {
		return ErrNotPausable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.WithinTx(ctx, func(tx Tx) error {
		lease, err := tx.Lease(leaseID)
		if err != nil {
			return err
		}
		if lease.Owner != caller {
			return ErrNotOwner
		}
		if lease.Status != model.StatusPaused {
			return ErrNotPaused
		}
		required, err := checkedMul(lease.TotalHours-lease.ConsumedHours, lease.PricePerHour)
		if err != nil {
			return err
		}
		var shortfall uint64
		if required > lease.LockedCredits {
			shortfall = required - lease.LockedCredits
			bal, err := tx.Credits(lease.Owner)
			if err != nil {
				return err
			}
			if bal < shortfall {
				return ErrInsufficientCredits
			}
			if err := tx.SetCredits(lease.Owner, bal-shortfall); err != nil {
				return err
			}
			lease.LockedCredits = required
		}
		lease.StartTime = e.clock.Now()
		lease.Status = model.StatusRunning
		if err := tx.PutLease(lease); err != nil {
			return err
		}
		tx.Announce(e.newEvent(model.EventLeaseResumed, leaseID, lease.Owner, shortfall, ""))
		return nil
	})
}

// Stop terminates a lease, folding in elapsed time if it was running, and
// refunds whatever remains locked to the owner's free balance.
func (e *Engine) Stop(ctx context.Context, caller string, leaseID uint64) (uint64, error) {
	return e.stop(ctx, caller, leaseID, false)
}

// ManagerStop is the administrative force-stop: only the manager account
// may call it, the owner check is bypassed, and the refund still goes to
// the lease owner. An extra audit event names the owner.
func (e *Engine) ManagerStop(ctx context.Context, caller string, leaseID uint64) (uint64, error) {
	if caller != e.manager {
		return 0, ErrNotManager
	}
	return e.stop(ctx, caller, leaseID, true)
}

func (e *Engine) stop(ctx context.Context, caller string, leaseID uint64, admin bool) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var refund uint64
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		lease, err := tx.Lease(leaseID)
		if err != nil {
			return err
		}
		if !admin && lease.Owner != caller {
			return ErrNotOwner
		}
		if lease.Status == model.StatusStopped {
			return ErrAlreadyStopped
		}
		now := e.clock.Now()
		if lease.Status == model.StatusRunning {
			foldElapsed(lease, now)
		}
		refund = lease.LockedCredits
		if refund > 0 {
			bal, err := tx.Credits(lease.Owner)
			if err != nil {
				return err
			}
			next, err := checkedAdd(bal, refund)
			if err != nil {
				return err
			}
			if err := tx.SetCredits(lease.Owner, next); err != nil {
				return err
			}
		}
		lease.LockedCredits = 0
		lease.Status = model.StatusStopped
		if err := tx.PutLease(lease); err != nil {
			return err
		}
		if admin {
			tx.Announce(e.newEvent(model.EventLeaseManagerStop, leaseID, lease.Owner, refund, ""))
		}
		tx.Announce(e.newEvent(model.EventLeaseStopped, leaseID, lease.Owner, refund, ""))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}

// Lease returns the stored lease plus the live remaining-hours figure.
// Read-only: repeated calls return identical results absent a transition.
func (e *Engine) Lease(ctx context.Context, id uint64) (*model.LeaseView, error) {
	var view *model.LeaseView
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		lease, err := tx.Lease(id)
		if err != nil {
			return err
		}
		view = &model.LeaseView{
			Lease:          *lease,
			RemainingHours: remainingHours(lease, e.clock.Now()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func remainingHours(l *model.Lease, now time.Time) uint64 {
	if l.Status == model.StatusStopped {
		return 0
	}
	consumed := l.ConsumedHours
	if l.Status == model.StatusRunning {
		consumed += elapsedHours(now, l.StartTime)
	}
	if consumed >= l.TotalHours {
		return 0
	}
	return l.TotalHours - consumed
}

// Status reports the lease lifecycle state.
func (e *Engine) Status(ctx context.Context, id uint64) (model.Status, error) {
	view, err := e.Lease(ctx, id)
	if err != nil {
		return "", err
	}
	return view.Status, nil
}

// LockedCredits reports the credits currently escrowed against the lease.
func (e *Engine) LockedCredits(ctx context.Context, id uint64) (uint64, error) {
	view, err := e.Lease(ctx, id)
	if err != nil {
		return 0, err
	}
	return view.LockedCredits, nil
}

// RemainingHours reports contracted hours not yet consumed, counting live
// elapsed time for a running lease. Zero once stopped or fully consumed.
func (e *Engine) RemainingHours(ctx context.Context, id uint64) (uint64, error) {
	view, err := e.Lease(ctx, id)
	if err != nil {
		return 0, err
	}
	return view.RemainingHours, nil
}

// LeasesOf returns the ids of every lease the account has ever created, in
// creation order, regardless of status.
func (e *Engine) LeasesOf(ctx context.Context, account string) ([]uint64, error) {
	var ids []uint64
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.OwnerLeases(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FreeBalance reports the account's unlocked credits.
func (e *Engine) FreeBalance(ctx context.Context, account string) (uint64, error) {
	return e.store.FreeBalance(ctx, account)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leasio/internal/engine"
	"leasio/internal/model"
)

// EventsSubject is the NATS subject every committed ledger event is
// published on; the audit worker consumes it.
const EventsSubject = "leases.events"

// Store is the Postgres-backed engine.Store. Redis caches free balances on
// the read path (warmed from Postgres on a miss); the transactional view is
// always read from Postgres with row locks. Events staged in a transaction
// are published on the bus only after the commit succeeds.
type Store struct {
	db  *pgxpool.Pool
	rdb *redis.Client
	bus MessageBus
}

func NewStore(db *pgxpool.Pool, rdb *redis.Client, bus MessageBus) *Store {
	return &Store{db: db, rdb: rdb, bus: bus}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	pgtx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	t := &pgTx{ctx: ctx, tx: pgtx, balances: make(map[string]uint64)}
	if err := fn(t); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.afterCommit(ctx, t)
	return nil
}

// afterCommit refreshes cached balances and publishes staged events.
// Best effort: the committed Postgres state is authoritative, the audit
// worker is idempotent, and a stale cache entry is overwritten on the next
// write or warm-up.
func (s *Store) afterCommit(ctx context.Context, t *pgTx) {
	for account, balance := range t.balances {
		if err := s.rdb.Set(ctx, balanceKey(account), balance, 0).Err(); err != nil {
			slog.Warn("failed to refresh balance cache", "account", account, "error", err)
		}
	}
	for _, ev := range t.events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("failed to marshal event", "kind", ev.Kind, "error", err)
			continue
		}
		if err := s.bus.Publish(EventsSubject, data); err != nil {
			slog.Warn("failed to publish event", "kind", ev.Kind, "event_id", ev.ID, "error", err)
		}
	}
}

func balanceKey(account string) string {
	return "credits:" + account
}

// FreeBalance serves the balance read path from Redis, warming the cache
// from Postgres on a miss.
func (s *Store) FreeBalance(ctx context.Context, account string) (uint64, error) {
	val, err := s.rdb.Get(ctx, balanceKey(account)).Uint64()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("balance cache read failed, falling back to postgres", "account", account, "error", err)
	}

	var credits int64
	err = s.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT credits FROM balances WHERE account = $1), 0)`,
		account).Scan(&credits)
	if err != nil {
		return 0, fmt.Errorf("balance query: %w", err)
	}
	if err := s.rdb.Set(ctx, balanceKey(account), credits, 0).Err(); err != nil {
		slog.Warn("failed to warm balance cache", "account", account, "error", err)
	}
	return uint64(credits), nil
}

// SyncEvent persists a published event into the audit table. Safe to call
// more than once per event: replays hit the primary key and are dropped.
func (s *Store) SyncEvent(ctx context.Context, ev model.Event) error {
	var leaseID *int64
	if ev.LeaseID != 0 {
		id := int64(ev.LeaseID)
		leaseID = &id
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO lease_events (id, kind, lease_id, account, amount, tag, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Kind, leaseID, ev.Account, int64(ev.Amount), ev.Tag, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("sync event: %w", err)
	}
	return nil
}

// pgTx implements engine.Tx on top of a pgx transaction. Lease and balance
// rows are locked with FOR UPDATE so the engine's read-check-write sequence
// is safe even if a second instance ever shares the database.
type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	balances map[string]uint64
	events   []model.Event
}

func (t *pgTx) Lease(id uint64) (*model.Lease, error) {
	var (
		l          model.Lease
		leaseID    int64
		resourceID int64
		price      int64
		total      int64
		consumed   int64
		locked     int64
		paused     *time.Time
	)
	err := t.tx.QueryRow(t.ctx,
		`SELECT id, owner, resource_id, price_per_hour, total_hours, consumed_hours,
		        status, start_time, last_paused_time, locked_credits, tag
		 FROM leases WHERE id = $1 FOR UPDATE`,
		int64(id)).Scan(&leaseID, &l.Owner, &resourceID, &price, &total, &consumed,
		&l.Status, &l.StartTime, &paused, &locked, &l.Tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrUnknownLease
	}
	if err != nil {
		return nil, fmt.Errorf("lease query: %w", err)
	}
	l.ID = uint64(leaseID)
	l.ResourceID = uint64(resourceID)
	l.PricePerHour = uint64(price)
	l.TotalHours = uint64(total)
	l.ConsumedHours = uint64(consumed)
	l.LockedCredits = uint64(locked)
	if paused != nil {
		l.LastPausedTime = *paused
	}
	return &l, nil
}

func (t *pgTx) PutLease(l *model.Lease) error {
	var paused *time.Time
	if !l.LastPausedTime.IsZero() {
		paused = &l.LastPausedTime
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO leases (id, owner, resource_id, price_per_hour, total_hours,
		                     consumed_hours, status, start_time, last_paused_time,
		                     locked_credits, tag, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		 ON CONFLICT (id) DO UPDATE SET
		     consumed_hours = EXCLUDED.consumed_hours,
		     status = EXCLUDED.status,
		     start_time = EXCLUDED.start_time,
		     last_paused_time = EXCLUDED.last_paused_time,
		     locked_credits = EXCLUDED.locked_credits,
		     updated_at = now()`,
		int64(l.ID), l.Owner, int64(l.ResourceID), int64(l.PricePerHour),
		int64(l.TotalHours), int64(l.ConsumedHours), l.Status, l.StartTime,
		paused, int64(l.LockedCredits), l.Tag)
	if err != nil {
		return fmt.Errorf("put lease: %w", err)
	}
	return nil
}

// NextLeaseID is previous max + 1. A plain sequence would skip ids on
// rollback; lease ids must stay dense and never be reused, and the engine
// serializes writers, so the aggregate is safe here.
func (t *pgTx) NextLeaseID() (uint64, error) {
	var next int64
	if err := t.tx.QueryRow(t.ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM leases`).Scan(&next); err != nil {
		return 0, fmt.Errorf("next lease id: %w", err)
	}
	return uint64(next), nil
}

func (t *pgTx) AppendOwnerLease(owner string, id uint64) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO owner_leases (owner, lease_id) VALUES ($1, $2)`,
		owner, int64(id))
	if err != nil {
		return fmt.Errorf("append owner lease: %w", err)
	}
	return nil
}

func (t *pgTx) OwnerLeases(owner string) ([]uint64, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT lease_id FROM owner_leases WHERE owner = $1 ORDER BY seq`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("owner leases: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("owner leases scan: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

func (t *pgTx) Credits(account string) (uint64, error) {
	var credits int64
	err := t.tx.QueryRow(t.ctx,
		`SELECT credits FROM balances WHERE account = $1 FOR UPDATE`,
		account).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("credits query: %w", err)
	}
	return uint64(credits), nil
}

func (t *pgTx) SetCredits(account string, amount uint64) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO balances (account, credits) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET credits = EXCLUDED.credits`,
		account, int64(amount))
	if err != nil {
		return fmt.Errorf("set credits: %w", err)
	}
	t.balances[account] = amount
	return nil
}

func (t *pgTx) Announce(ev model.Event) {
	t.events = append(t.events, ev)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"leasio/internal/model"
	"leasio/internal/repository"
	"leasio/internal/service"
)

// AuditWorker listens on the lease events subject and syncs every
// committed transition into the Postgres audit table.
type AuditWorker struct {
	syncer   service.EventSyncer
	natsConn *nats.Conn
}

func NewAuditWorker(syncer service.EventSyncer, nc *nats.Conn) *AuditWorker {
	return &AuditWorker{
		syncer:   syncer,
		natsConn: nc,
	}
}

// Run subscribes to the events subject and blocks until ctx is cancelled.
func (w *AuditWorker) Run(ctx context.Context) error {
	// QueueSubscribe: with several instances running, each event is
	// received by only one worker in the group.
	sub, err := w.natsConn.QueueSubscribe(repository.EventsSubject, "audit_group", func(m *nats.Msg) {
		if err := w.process(ctx, m.Data); err != nil {
			slog.Error("worker: failed to sync event", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Audit worker is running")

	// Wait for shutdown signal.
	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	// Close subscription gracefully, waiting for current processing to complete.
	return sub.Drain()
}

// process unmarshals one published event and hands it to the syncer.
// Sync is idempotent on the event id, so redeliveries are harmless.
func (w *AuditWorker) process(ctx context.Context, data []byte) error {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if err := w.syncer.SyncEvent(ctx, ev); err != nil {
		return fmt.Errorf("sync event %s: %w", ev.ID, err)
	}
	slog.Info("worker: event synced", "kind", ev.Kind, "event_id", ev.ID, "lease_id", ev.LeaseID)
	return nil
}

// Start implements the infrastructure.Server interface.
func (w *AuditWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *AuditWorker) Stop(ctx context.Context) error {
	return nil
}

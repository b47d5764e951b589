package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"leasio/internal/model"
	"leasio/internal/service"
)

// Handler subscribes to NATS command subjects and delegates to the lease
// service. Commands are fire-and-forget: failures are logged, the caller
// resubmits if needed.
type Handler struct {
	svc  service.LeaseService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.LeaseService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command subjects and blocks until ctx is cancelled
// (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	if err := h.subscribe("commands.deposit", func(data []byte) {
		var req model.DepositRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Error("nats: failed to unmarshal deposit command", "error", err)
			return
		}
		if err := h.svc.Deposit(ctx, req.Account, req.Amount); err != nil {
			slog.Error("nats: deposit failed", "error", err, "account", req.Account)
		}
	}); err != nil {
		return err
	}

	if err := h.subscribe("commands.lease.create", func(data []byte) {
		var req model.CreateLeaseRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Error("nats: failed to unmarshal create command", "error", err)
			return
		}
		id, err := h.svc.CreateLease(ctx, req.Owner, req.ResourceID, req.Hours, req.Tag)
		if err != nil {
			slog.Error("nats: lease create failed", "error", err, "owner", req.Owner)
			return
		}
		slog.Info("nats: lease created", "lease_id", id, "owner", req.Owner)
	}); err != nil {
		return err
	}

	if err := h.subscribe("commands.lease.stop", func(data []byte) {
		var req model.LeaseActionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Error("nats: failed to unmarshal stop command", "error", err)
			return
		}
		refund, err := h.svc.Stop(ctx, req.Caller, req.LeaseID)
		if err != nil {
			slog.Error("nats: lease stop failed", "error", err, "lease_id", req.LeaseID)
			return
		}
		slog.Info("nats: lease stopped", "lease_id", req.LeaseID, "refund", refund)
	}); err != nil {
		return err
	}

	slog.Info("NATS command handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) subscribe(subject string, handle func(data []byte)) error {
	sub, err := h.nc.QueueSubscribe(subject, "lease_group", func(m *nats.Msg) {
		handle(m.Data)
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

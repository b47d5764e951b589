package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"leasio/internal/model"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leasio_operations_total",
		Help: "Ledger operations by name and outcome.",
	}, []string{"op", "outcome"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leasio_operation_duration_seconds",
		Help:    "Ledger operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	refundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leasio_credits_refunded_total",
		Help: "Credits refunded to owners by stopped leases.",
	})
)

// Metered wraps a LeaseService with Prometheus instrumentation. Served by
// the HTTP server's /metrics endpoint.
type Metered struct {
	next LeaseService
}

func WithMetrics(next LeaseService) *Metered {
	return &Metered{next: next}
}

func (m *Metered) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

func (m *Metered) Deposit(ctx context.Context, account string, amount uint64) error {
	return m.observe("deposit", func() error {
		return m.next.Deposit(ctx, account, amount)
	})
}

func (m *Metered) Withdraw(ctx context.Context, account string, amount uint64) error {
	return m.observe("withdraw", func() error {
		return m.next.Withdraw(ctx, account, amount)
	})
}

func (m *Metered) CreateLease(ctx context.Context, owner string, resourceID, hours uint64, tag string) (uint64, error) {
	var id uint64
	err := m.observe("create_lease", func() error {
		var err error
		id, err = m.next.CreateLease(ctx, owner, resourceID, hours, tag)
		return err
	})
	return id, err
}

func (m *Metered) Pause(ctx context.Context, caller string, leaseID uint64) error {
	return m.observe("pause", func() error {
		return m.next.Pause(ctx, caller, leaseID)
	})
}

func (m *Metered) Resume(ctx context.Context, caller string, leaseID uint64) error {
	return m.observe("resume", func() error {
		return m.next.Resume(ctx, caller, leaseID)
	})
}

func (m *Metered) Stop(ctx context.Context, caller string, leaseID uint64) (uint64, error) {
	var refund uint64
	err := m.observe("stop", func() error {
		var err error
		refund, err = m.next.Stop(ctx, caller, leaseID)
		return err
	})
	if err == nil {
		refundedTotal.Add(float64(refund))
	}
	return refund, err
}

func (m *Metered) ManagerStop(ctx context.Context, caller string, leaseID uint64) (uint64, error) {
	var refund uint64
	err := m.observe("manager_stop", func() error {
		var err error
		refund, err = m.next.ManagerStop(ctx, caller, leaseID)
		return err
	})
	if err == nil {
		refundedTotal.Add(float64(refund))
	}
	return refund, err
}

func (m *Metered) Lease(ctx context.Context, id uint64) (*model.LeaseView, error) {
	return m.next.Lease(ctx, id)
}

func (m *Metered) LeasesOf(ctx context.Context, account string) ([]uint64, error) {
	return m.next.LeasesOf(ctx, account)
}

func (m *Metered) FreeBalance(ctx context.Context, account string) (uint64, error) {
	return m.next.FreeBalance(ctx, account)
}

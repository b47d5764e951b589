package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"leasio/internal/model"
)

type mockSyncer struct {
	synced []model.Event
	err    error
}

func (m *mockSyncer) SyncEvent(ctx context.Context, ev model.Event) error {
	if m.err != nil {
		return m.err
	}
	m.synced = append(m.synced, ev)
	return nil
}

func TestProcess(t *testing.T) {
	syncer := &mockSyncer{}
	w := &AuditWorker{syncer: syncer}

	ev := model.Event{
		ID:        "3f1c9b52-1111-2222-3333-444455556666",
		Kind:      model.EventLeaseStopped,
		LeaseID:   7,
		Account:   "alice",
		Amount:    300,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	data, _ := json.Marshal(ev)

	if err := w.process(context.Background(), data); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(syncer.synced) != 1 {
		t.Fatalf("synced %d events, want 1", len(syncer.synced))
	}
	got := syncer.synced[0]
	if got.ID != ev.ID || got.Kind != ev.Kind || got.Amount != ev.Amount {
		t.Errorf("unexpected synced event %+v", got)
	}
}

func TestProcess_BadPayload(t *testing.T) {
	syncer := &mockSyncer{}
	w := &AuditWorker{syncer: syncer}

	if err := w.process(context.Background(), []byte("not json")); err == nil {
		t.Error("expected unmarshal error")
	}
	if len(syncer.synced) != 0 {
		t.Errorf("nothing should have been synced, got %d", len(syncer.synced))
	}
}

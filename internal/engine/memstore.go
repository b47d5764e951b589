package engine

import (
	"context"
	"sync"

	"leasio/internal/model"
)

// MemStore is an in-memory Store: the default for tests and the
// "memory" store provider. Transactions stage their writes and merge them
// only when the callback succeeds, so a failed operation leaves no trace.
type MemStore struct {
	mu       sync.Mutex
	leases   map[uint64]*model.Lease
	credits  map[string]uint64
	ownerIdx map[string][]uint64
	maxID    uint64
	sink     func(model.Event)
}

// NewMemStore builds an empty store. sink receives events after commit and
// may be nil.
func NewMemStore(sink func(model.Event)) *MemStore {
	return &MemStore{
		leases:   make(map[uint64]*model.Lease),
		credits:  make(map[string]uint64),
		ownerIdx: make(map[string][]uint64),
		sink:     sink,
	}
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		s:       s,
		leases:  make(map[uint64]*model.Lease),
		credits: make(map[string]uint64),
		appends: make(map[string][]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemStore) FreeBalance(ctx context.Context, account string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[account], nil
}

type memTx struct {
	s       *MemStore
	leases  map[uint64]*model.Lease
	credits map[string]uint64
	appends map[string][]uint64
	idTaken uint64
	events  []model.Event
}

func (t *memTx) Lease(id uint64) (*model.Lease, error) {
	if l, ok := t.leases[id]; ok {
		return l, nil
	}
	l, ok := t.s.leases[id]
	if !ok {
		return nil, ErrUnknownLease
	}
	cp := *l
	t.leases[id] = &cp
	return &cp, nil
}

func (t *memTx) PutLease(l *model.Lease) error {
	t.leases[l.ID] = l
	return nil
}

func (t *memTx) NextLeaseID() (uint64, error) {
	t.idTaken = t.s.maxID + 1
	return t.idTaken, nil
}

func (t *memTx) AppendOwnerLease(owner string, id uint64) error {
	t.appends[owner] = append(t.appends[owner], id)
	return nil
}

func (t *memTx) OwnerLeases(owner string) ([]uint64, error) {
	ids := append([]uint64(nil), t.s.ownerIdx[owner]...)
	return append(ids, t.appends[owner]...), nil
}

func (t *memTx) Credits(account string) (uint64, error) {
	if v, ok := t.credits[account]; ok {
		return v, nil
	}
	return t.s.credits[account], nil
}

func (t *memTx) SetCredits(account string, amount uint64) error {
	t.credits[account] = amount
	return nil
}

func (t *memTx) Announce(ev model.Event) {
	t.events = append(t.events, ev)
}

func (t *memTx) commit() {
	for id, l := range t.leases {
		t.s.leases[id] = l
	}
	for acct, v := range t.credits {
		t.s.credits[acct] = v
	}
	for owner, ids := range t.appends {
		t.s.ownerIdx[owner] = append(t.s.ownerIdx[owner], ids...)
	}
	if t.idTaken > t.s.maxID {
		t.s.maxID = t.idTaken
	}
	if t.s.sink != nil {
		for _, ev := range t.events {
			t.s.sink(ev)
		}
	}
}

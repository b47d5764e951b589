// Package registry holds the priced resource catalog the engine leases
// against. Writes are gated to a single owner account; the engine only ever
// reads entries, and snapshots the price at lease creation, so the catalog
// is deliberately a plain keyed store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"leasio/internal/engine"
	"leasio/internal/model"
)

// ErrDuplicateResource rejects a second Define with an already-used id.
var ErrDuplicateResource = errors.New("resource id already defined")

type Registry struct {
	mu      sync.RWMutex
	owner   string
	entries map[uint64]model.CatalogEntry
}

// New builds an empty registry whose write operations are restricted to
// owner.
func New(owner string) *Registry {
	return &Registry{
		owner:   owner,
		entries: make(map[uint64]model.CatalogEntry),
	}
}

func (r *Registry) authorize(caller string) error {
	if caller != r.owner {
		return engine.ErrNotOwner
	}
	return nil
}

// Define adds a new catalog entry. Ids are caller-assigned, positive and
// unique; names must be non-empty.
func (r *Registry) Define(caller string, entry model.CatalogEntry) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if entry.ID == 0 || entry.Name == "" {
		return engine.ErrInvalidArgument
	}
	switch entry.Kind {
	case model.KindVirtualMachine, model.KindVolume, model.KindOther:
	default:
		return engine.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; ok {
		return ErrDuplicateResource
	}
	r.entries[entry.ID] = entry
	return nil
}

// SetPrice updates an entry's hourly price. Open leases are unaffected:
// they carry their own price snapshot.
func (r *Registry) SetPrice(caller string, id, pricePerHour uint64) error {
	return r.update(caller, id, func(e *model.CatalogEntry) {
		e.PricePerHour = pricePerHour
	})
}

// Deprecate marks an entry so no new leases can be created against it.
func (r *Registry) Deprecate(caller string, id uint64) error {
	return r.update(caller, id, func(e *model.CatalogEntry) {
		e.Deprecated = true
	})
}

// Rename changes an entry's display name.
func (r *Registry) Rename(caller string, id uint64, name string) error {
	if name == "" {
		return engine.ErrInvalidArgument
	}
	return r.update(caller, id, func(e *model.CatalogEntry) {
		e.Name = name
	})
}

func (r *Registry) update(caller string, id uint64, mutate func(*model.CatalogEntry)) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return engine.ErrUnknownResource
	}
	mutate(&entry)
	r.entries[id] = entry
	return nil
}

// Exists implements engine.Registry.
func (r *Registry) Exists(ctx context.Context, id uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok, nil
}

// Get implements engine.Registry.
func (r *Registry) Get(ctx context.Context, id uint64) (model.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return model.CatalogEntry{}, engine.ErrUnknownResource
	}
	return entry, nil
}

// LoadFile seeds the catalog from a YAML list of entries, applied as the
// registry owner.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}
	var entries []model.CatalogEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}
	for _, entry := range entries {
		if err := r.Define(r.owner, entry); err != nil {
			return fmt.Errorf("catalog entry %d: %w", entry.ID, err)
		}
	}
	return nil
}

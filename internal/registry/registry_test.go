package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"leasio/internal/engine"
	"leasio/internal/model"
)

func entry(id uint64) model.CatalogEntry {
	return model.CatalogEntry{ID: id, Name: "small-vm", PricePerHour: 100, Kind: model.KindVirtualMachine}
}

func TestDefine_OwnerGate(t *testing.T) {
	r := New("owner")

	if err := r.Define("mallory", entry(1)); !errors.Is(err, engine.ErrNotOwner) {
		t.Errorf("foreign define: got %v, want ErrNotOwner", err)
	}
	if err := r.Define("owner", entry(1)); err != nil {
		t.Fatalf("define: %v", err)
	}
	if err := r.Define("owner", entry(1)); !errors.Is(err, ErrDuplicateResource) {
		t.Errorf("duplicate define: got %v, want ErrDuplicateResource", err)
	}

	ok, err := r.Exists(context.Background(), 1)
	if err != nil || !ok {
		t.Errorf("exists = %v (%v), want true", ok, err)
	}
}

func TestDefine_Validation(t *testing.T) {
	r := New("owner")

	bad := entry(0)
	if err := r.Define("owner", bad); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Errorf("zero id: got %v, want ErrInvalidArgument", err)
	}
	bad = entry(1)
	bad.Name = ""
	if err := r.Define("owner", bad); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Errorf("empty name: got %v, want ErrInvalidArgument", err)
	}
	bad = entry(1)
	bad.Kind = "floppy"
	if err := r.Define("owner", bad); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Errorf("bad kind: got %v, want ErrInvalidArgument", err)
	}
}

func TestUpdates(t *testing.T) {
	r := New("owner")
	ctx := context.Background()
	if err := r.Define("owner", entry(1)); err != nil {
		t.Fatalf("define: %v", err)
	}

	if err := r.SetPrice("mallory", 1, 200); !errors.Is(err, engine.ErrNotOwner) {
		t.Errorf("foreign price update: got %v, want ErrNotOwner", err)
	}
	if err := r.SetPrice("owner", 99, 200); !errors.Is(err, engine.ErrUnknownResource) {
		t.Errorf("unknown id: got %v, want ErrUnknownResource", err)
	}

	if err := r.SetPrice("owner", 1, 200); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := r.Rename("owner", 1, "medium-vm"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := r.Deprecate("owner", 1); err != nil {
		t.Fatalf("deprecate: %v", err)
	}

	got, err := r.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PricePerHour != 200 || got.Name != "medium-vm" || !got.Deprecated {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	data := `
- id: 1
  name: small-vm
  price_per_hour: 100
  kind: vm
- id: 2
  name: ssd-volume
  price_per_hour: 10
  kind: volume
  deprecated: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	r := New("owner")
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	vm, err := r.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get 1: %v", err)
	}
	if vm.Name != "small-vm" || vm.PricePerHour != 100 || vm.Kind != model.KindVirtualMachine {
		t.Errorf("unexpected entry %+v", vm)
	}
	vol, err := r.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("get 2: %v", err)
	}
	if !vol.Deprecated || vol.Kind != model.KindVolume {
		t.Errorf("unexpected entry %+v", vol)
	}
}

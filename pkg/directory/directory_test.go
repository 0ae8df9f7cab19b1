package directory

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

type fakeNodeStore struct {
	names   map[string]string
	lookups int
}

func (f *fakeNodeStore) Upsert(*models.Node) (bool, error)     { return false, nil }
func (f *fakeNodeStore) Get(string) (*models.Node, error)      { return nil, nil }
func (f *fakeNodeStore) GetAll() ([]*models.ActiveNode, error) { return nil, nil }
func (f *fakeNodeStore) GetActive(time.Duration) ([]*models.ActiveNode, error) {
	return nil, nil
}
func (f *fakeNodeStore) FindByName(query string) (*models.Node, error) {
	for id, name := range f.names {
		if name == query {
			return &models.Node{NodeID: id, LongName: name}, nil
		}
	}
	return nil, nil
}
func (f *fakeNodeStore) DisplayName(nodeID string) (string, error) {
	f.lookups++
	if name, ok := f.names[nodeID]; ok {
		return name, nil
	}
	return nodeID, nil
}

func TestDisplayNameCaches(t *testing.T) {
	store := &fakeNodeStore{names: map[string]string{"!00000001": "Alpha"}}
	d := New(store, slog.Default())
	defer d.Stop()

	if name := d.DisplayName("!00000001"); name != "Alpha" {
		t.Errorf("DisplayName() = %q", name)
	}
	if name := d.DisplayName("!00000001"); name != "Alpha" {
		t.Errorf("DisplayName() = %q", name)
	}
	if store.lookups != 1 {
		t.Errorf("store lookups = %d, want 1 (second hit cached)", store.lookups)
	}
}

func TestClearCacheForcesLookup(t *testing.T) {
	store := &fakeNodeStore{names: map[string]string{"!00000001": "Alpha"}}
	d := New(store, slog.Default())
	defer d.Stop()

	d.DisplayName("!00000001")
	d.ClearCache()
	d.DisplayName("!00000001")

	if store.lookups != 2 {
		t.Errorf("store lookups = %d, want 2 after cache clear", store.lookups)
	}
}

func TestResolve(t *testing.T) {
	store := &fakeNodeStore{names: map[string]string{"!00000001": "Alpha"}}
	d := New(store, slog.Default())
	defer d.Stop()

	node, err := d.Resolve("Alpha")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if node == nil || node.NodeID != "!00000001" {
		t.Errorf("Resolve() = %v", node)
	}

	node, err = d.Resolve("nobody")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if node != nil {
		t.Errorf("Resolve(nobody) = %v, want nil", node)
	}
}

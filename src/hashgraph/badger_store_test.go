package hashgraph

import (
	"path/filepath"
	"testing"

	cm "github.com/mosaicnetworks/dagsync/src/common"
)

func TestBadgerEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badger")

	store, err := NewBadgerStore(5, dbPath)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if store.StorePath() != dbPath {
		t.Fatalf("unexpected path %q", store.StorePath())
	}

	events := chain(7, 12)
	for _, ev := range events {
		if err := store.SetEvent(ev); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	if err := store.SetEvent(events[3]); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := store.EventCount(); c != 12 {
		t.Fatalf("EventCount should be 12, not %d", c)
	}

	// evicted from the cache but still in the database
	ev, err := store.GetEvent(events[0].Hash())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ev.Hash() != events[0].Hash() {
		t.Fatalf("GetEvent returned the wrong event")
	}

	if _, err := store.GetEvent(Hash{1}); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	w, _ := NewEventWindow(4, 6, 3, GenerationThreshold)
	if err := store.SetEventWindow(w); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	loaded, err := LoadBadgerStore(5, dbPath)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer loaded.Close()

	if !loaded.NeedBootstrap() {
		t.Fatalf("loaded store should need bootstrap")
	}
	if c := loaded.EventCount(); c != 12 {
		t.Fatalf("loaded EventCount should be 12, not %d", c)
	}

	topo, err := loaded.TopologicalEvents(0, -1)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(topo) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(topo))
	}
	for i, ev := range topo {
		if ev.Hash() != events[i].Hash() {
			t.Fatalf("topological event %d does not match", i)
		}
	}

	lw, err := loaded.LastEventWindow()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if lw != w {
		t.Fatalf("expected %s, got %s", w, lw)
	}
}

func TestLoadOrCreateBadgerStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badger")

	store, err := LoadOrCreateBadgerStore(5, dbPath)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer store.Close()

	if store.NeedBootstrap() {
		t.Fatalf("new store should not need bootstrap")
	}
	if _, err := store.LastEventWindow(); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubLoader struct {
	anchors   map[string]struct{}
	wearables map[string]struct{}
	err       error
	loads     int
}

func (s *stubLoader) KnownAnchorIDs(context.Context) (map[string]struct{}, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.anchors, nil
}

func (s *stubLoader) KnownWearableUIDs(context.Context) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.wearables, nil
}

func TestKnownIDs(t *testing.T) {
	loader := &stubLoader{
		anchors:   map[string]struct{}{"A1": {}, "A2": {}},
		wearables: map[string]struct{}{"W1": {}},
	}
	k := NewKnownIDs(loader, time.Minute, zerolog.Nop())

	if err := k.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !k.KnownAnchor("A1") || k.KnownAnchor("A9") {
		t.Error("KnownAnchor mismatch")
	}
	if !k.KnownWearable("W1") || k.KnownWearable("W9") {
		t.Error("KnownWearable mismatch")
	}
	if !k.KnownScan("A1", "W1") {
		t.Error("KnownScan should accept registered pair")
	}
	if k.KnownScan("A1", "W9") || k.KnownScan("A9", "W1") {
		t.Error("KnownScan should require both ids")
	}
}

func TestEnsureFreshAgeGate(t *testing.T) {
	loader := &stubLoader{anchors: map[string]struct{}{}, wearables: map[string]struct{}{}}
	k := NewKnownIDs(loader, time.Hour, zerolog.Nop())

	if err := k.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := loader.loads

	// Snapshot is fresh, no reload expected.
	k.EnsureFresh(context.Background())
	if loader.loads != before {
		t.Errorf("EnsureFresh reloaded a fresh snapshot (%d loads)", loader.loads)
	}

	// Age the snapshot past the interval.
	k.mu.Lock()
	k.lastLoad = time.Now().Add(-2 * time.Hour)
	k.mu.Unlock()

	k.EnsureFresh(context.Background())
	if loader.loads != before+1 {
		t.Errorf("EnsureFresh did not reload a stale snapshot (%d loads)", loader.loads)
	}
}

func TestEnsureFreshKeepsSnapshotOnFailure(t *testing.T) {
	loader := &stubLoader{
		anchors:   map[string]struct{}{"A1": {}},
		wearables: map[string]struct{}{"W1": {}},
	}
	k := NewKnownIDs(loader, time.Nanosecond, zerolog.Nop())

	if err := k.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	loader.err = errors.New("db down")
	time.Sleep(time.Millisecond)
	k.EnsureFresh(context.Background())

	if !k.KnownScan("A1", "W1") {
		t.Error("failed refresh should keep the previous snapshot")
	}
}

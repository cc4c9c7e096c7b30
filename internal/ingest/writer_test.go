package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/database"
)

type stubInserter struct {
	scans    [][]database.ScanRow
	statuses [][]database.AnchorStatusRow
	events   [][]database.EventRow
	err      error
}

func (s *stubInserter) InsertScans(_ context.Context, rows []database.ScanRow) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	cp := make([]database.ScanRow, len(rows))
	copy(cp, rows)
	s.scans = append(s.scans, cp)
	return int64(len(rows)), nil
}

func (s *stubInserter) InsertAnchorStatuses(_ context.Context, rows []database.AnchorStatusRow) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	cp := make([]database.AnchorStatusRow, len(rows))
	copy(cp, rows)
	s.statuses = append(s.statuses, cp)
	return int64(len(rows)), nil
}

func (s *stubInserter) InsertEvents(_ context.Context, rows []database.EventRow) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	cp := make([]database.EventRow, len(rows))
	copy(cp, rows)
	s.events = append(s.events, cp)
	return int64(len(rows)), nil
}

func newTestWriter(db Inserter) (*Writer, *KnownIDs) {
	loader := &stubLoader{
		anchors:   map[string]struct{}{"A1": {}, "A2": {}},
		wearables: map[string]struct{}{"W1": {}, "W2": {}},
	}
	known := NewKnownIDs(loader, time.Hour, zerolog.Nop())
	known.Load(context.Background())
	return NewWriter(db, known, 4, time.Second, zerolog.Nop()), known
}

func TestWriterFKFilter(t *testing.T) {
	db := &stubInserter{}
	w, _ := newTestWriter(db)

	w.AddScan(database.ScanRow{TS: time.Now(), AnchorID: "A1", UID: "W1", RSSI: -70})
	w.AddScan(database.ScanRow{TS: time.Now(), AnchorID: "A1", UID: "ghost", RSSI: -70})
	w.AddScan(database.ScanRow{TS: time.Now(), AnchorID: "ghost", UID: "W1", RSSI: -70})
	w.AddStatus(database.AnchorStatusRow{TS: time.Now(), AnchorID: "A2"})
	w.AddStatus(database.AnchorStatusRow{TS: time.Now(), AnchorID: "ghost"})
	w.AddEvent(database.EventRow{TS: time.Now(), UID: "W2", Type: "low_battery"})
	w.AddEvent(database.EventRow{TS: time.Now(), UID: "ghost", Type: "low_battery"})

	w.Flush(context.Background())

	if len(db.scans) != 1 || len(db.scans[0]) != 1 {
		t.Fatalf("scans inserted = %v, want one batch of one row", db.scans)
	}
	if db.scans[0][0].UID != "W1" || db.scans[0][0].AnchorID != "A1" {
		t.Errorf("wrong scan survived the filter: %+v", db.scans[0][0])
	}
	if len(db.statuses) != 1 || len(db.statuses[0]) != 1 || db.statuses[0][0].AnchorID != "A2" {
		t.Errorf("statuses inserted = %v", db.statuses)
	}
	if len(db.events) != 1 || len(db.events[0]) != 1 || db.events[0][0].UID != "W2" {
		t.Errorf("events inserted = %v", db.events)
	}
	if w.Pending() {
		t.Error("buffers should be empty after flush")
	}
}

func TestWriterShouldFlush(t *testing.T) {
	w, _ := newTestWriter(&stubInserter{})
	now := time.Now()

	if w.ShouldFlush(now) {
		t.Error("empty fresh writer should not need a flush")
	}

	// Size threshold: maxLen is 4 in the test writer.
	for i := 0; i < 4; i++ {
		w.AddScan(database.ScanRow{TS: now, AnchorID: "A1", UID: "W1", RSSI: -70})
	}
	if !w.ShouldFlush(now) {
		t.Error("full scan buffer should trigger a flush")
	}
	w.Flush(context.Background())

	// Statuses flush at half the scan threshold.
	w.AddStatus(database.AnchorStatusRow{TS: now, AnchorID: "A1"})
	w.AddStatus(database.AnchorStatusRow{TS: now, AnchorID: "A2"})
	if !w.ShouldFlush(time.Now()) {
		t.Error("status buffer at maxLen/2 should trigger a flush")
	}
	w.Flush(context.Background())

	// Age threshold.
	w.AddScan(database.ScanRow{TS: now, AnchorID: "A1", UID: "W1", RSSI: -70})
	if w.ShouldFlush(time.Now()) {
		t.Error("single buffered scan should wait for the age budget")
	}
	if !w.ShouldFlush(time.Now().Add(2 * time.Second)) {
		t.Error("age budget expiry should trigger a flush")
	}
}

func TestWriterDropsBatchOnStoreError(t *testing.T) {
	db := &stubInserter{err: errors.New("connection reset")}
	w, _ := newTestWriter(db)

	w.AddScan(database.ScanRow{TS: time.Now(), AnchorID: "A1", UID: "W1", RSSI: -70})
	w.Flush(context.Background())

	if w.Pending() {
		t.Error("failed batch should be dropped, not retried forever")
	}

	// Subsequent batches proceed once the store recovers.
	db.err = nil
	w.AddScan(database.ScanRow{TS: time.Now(), AnchorID: "A1", UID: "W1", RSSI: -70})
	w.Flush(context.Background())
	if len(db.scans) != 1 {
		t.Errorf("recovered flush inserted %d batches, want 1", len(db.scans))
	}
}

func TestWriterRemainingAge(t *testing.T) {
	w, _ := newTestWriter(&stubInserter{})
	now := time.Now()

	if got := w.RemainingAge(now.Add(2 * time.Second)); got != 0 {
		t.Errorf("RemainingAge past budget = %v, want 0", got)
	}
	if got := w.RemainingAge(now); got <= 0 || got > time.Second {
		t.Errorf("RemainingAge fresh = %v, want (0, 1s]", got)
	}
}

package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

// maxSkipLogs caps per-flush warnings about unregistered FKs so a chatty
// unprovisioned device cannot flood the log.
const maxSkipLogs = 5

// Inserter is the slice of the store the writer needs. *database.DB satisfies it.
type Inserter interface {
	InsertScans(ctx context.Context, rows []database.ScanRow) (int64, error)
	InsertAnchorStatuses(ctx context.Context, rows []database.AnchorStatusRow) (int64, error)
	InsertEvents(ctx context.Context, rows []database.EventRow) (int64, error)
}

// Writer accumulates decoded rows and flushes them to the store in batches.
// It is owned by the supervisor loop and is not safe for concurrent use.
type Writer struct {
	db     Inserter
	known  *KnownIDs
	log    zerolog.Logger
	maxLen int
	maxAge time.Duration

	scans     []database.ScanRow
	statuses  []database.AnchorStatusRow
	events    []database.EventRow
	lastFlush time.Time
}

func NewWriter(db Inserter, known *KnownIDs, maxLen int, maxAge time.Duration, log zerolog.Logger) *Writer {
	return &Writer{
		db:        db,
		known:     known,
		log:       log,
		maxLen:    maxLen,
		maxAge:    maxAge,
		lastFlush: time.Now(),
	}
}

func (w *Writer) AddScan(r database.ScanRow)           { w.scans = append(w.scans, r) }
func (w *Writer) AddStatus(r database.AnchorStatusRow) { w.statuses = append(w.statuses, r) }
func (w *Writer) AddEvent(r database.EventRow)         { w.events = append(w.events, r) }

// Pending reports whether any buffered rows await a flush.
func (w *Writer) Pending() bool {
	return len(w.scans) > 0 || len(w.statuses) > 0 || len(w.events) > 0
}

// ShouldFlush reports whether a size threshold or the age budget has been hit.
// Statuses and events flush at half the scan threshold since they arrive at a
// fraction of the scan rate.
func (w *Writer) ShouldFlush(now time.Time) bool {
	if now.Sub(w.lastFlush) >= w.maxAge {
		return true
	}
	return len(w.scans) >= w.maxLen ||
		len(w.statuses) >= w.maxLen/2 ||
		len(w.events) >= w.maxLen/2
}

// RemainingAge returns how long the supervisor may block for new input before
// the age budget forces a flush.
func (w *Writer) RemainingAge(now time.Time) time.Duration {
	d := w.maxAge - now.Sub(w.lastFlush)
	if d < 0 {
		return 0
	}
	return d
}

// Flush writes all buffered rows and resets the age clock. Rows whose FKs are
// not registered are dropped before the insert. A store error drops the batch
// rather than wedging the pipeline; the rows are already logged and counted.
func (w *Writer) Flush(ctx context.Context) {
	if w.Pending() {
		w.known.EnsureFresh(ctx)
		w.flushScans(ctx)
		w.flushStatuses(ctx)
		w.flushEvents(ctx)
	}
	w.lastFlush = time.Now()
}

func (w *Writer) flushScans(ctx context.Context) {
	if len(w.scans) == 0 {
		return
	}
	valid := w.scans[:0]
	skipped := 0
	for _, r := range w.scans {
		if !w.known.KnownScan(r.AnchorID, r.UID) {
			if skipped < maxSkipLogs {
				w.log.Warn().
					Str("anchor_id", r.AnchorID).
					Str("uid", r.UID).
					Msg("scan references unregistered id, dropping")
			}
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	if skipped > 0 {
		metrics.UnknownFKSkipsTotal.WithLabelValues("scan").Add(float64(skipped))
		if skipped > maxSkipLogs {
			w.log.Warn().Int("skipped", skipped).Msg("further unregistered scans dropped this batch")
		}
	}

	if len(valid) > 0 {
		n, err := w.db.InsertScans(ctx, valid)
		if err != nil {
			w.log.Error().Err(err).Int("rows", len(valid)).Msg("scan batch insert failed, dropping batch")
		} else {
			metrics.RowsInsertedTotal.WithLabelValues("scan").Add(float64(n))
			w.log.Debug().Int64("rows", n).Msg("scan batch flushed")
		}
	}
	w.scans = w.scans[:0]
}

func (w *Writer) flushStatuses(ctx context.Context) {
	if len(w.statuses) == 0 {
		return
	}
	valid := w.statuses[:0]
	skipped := 0
	for _, r := range w.statuses {
		if !w.known.KnownAnchor(r.AnchorID) {
			if skipped < maxSkipLogs {
				w.log.Warn().Str("anchor_id", r.AnchorID).Msg("status from unregistered anchor, dropping")
			}
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	if skipped > 0 {
		metrics.UnknownFKSkipsTotal.WithLabelValues("status").Add(float64(skipped))
	}

	if len(valid) > 0 {
		n, err := w.db.InsertAnchorStatuses(ctx, valid)
		if err != nil {
			w.log.Error().Err(err).Int("rows", len(valid)).Msg("status batch insert failed, dropping batch")
		} else {
			metrics.RowsInsertedTotal.WithLabelValues("status").Add(float64(n))
		}
	}
	w.statuses = w.statuses[:0]
}

func (w *Writer) flushEvents(ctx context.Context) {
	if len(w.events) == 0 {
		return
	}
	valid := w.events[:0]
	skipped := 0
	for _, r := range w.events {
		if !w.known.KnownWearable(r.UID) {
			if skipped < maxSkipLogs {
				w.log.Warn().Str("uid", r.UID).Str("type", r.Type).Msg("event from unregistered wearable, dropping")
			}
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	if skipped > 0 {
		metrics.UnknownFKSkipsTotal.WithLabelValues("event").Add(float64(skipped))
	}

	if len(valid) > 0 {
		n, err := w.db.InsertEvents(ctx, valid)
		if err != nil {
			w.log.Error().Err(err).Int("rows", len(valid)).Msg("event batch insert failed, dropping batch")
		} else {
			metrics.RowsInsertedTotal.WithLabelValues("event").Add(float64(n))
		}
	}
	w.events = w.events[:0]
}

package database

import (
	"context"
	"time"
)

// EventRow is one wearable event (emergency, geofence, battery_low).
type EventRow struct {
	TS       time.Time `json:"ts"`
	UID      string    `json:"uid"`
	Type     string    `json:"type"`
	Severity *int      `json:"severity"`
	Details  *string   `json:"details"`
}

// InsertEvents bulk-inserts event rows.
func (db *DB) InsertEvents(ctx context.Context, rows []EventRow) (int64, error) {
	var inserted int64
	for _, r := range rows {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO events (ts, uid, type, severity, details) VALUES ($1,$2,$3,$4,$5)`,
			r.TS, r.UID, r.Type, r.Severity, r.Details)
		if err != nil {
			if isFKViolation(err) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

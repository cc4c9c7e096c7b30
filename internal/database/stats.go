package database

import (
	"context"
)

// Stats is the aggregate system snapshot served at /stats and pushed to
// dashboard clients.
type Stats struct {
	ActiveDevices  int `json:"active_devices"`
	TotalAnchors   int `json:"total_anchors"`
	TotalWearables int `json:"total_wearables"`
	TotalPositions int `json:"total_positions"`
	EmergencyCount int `json:"emergency_count"`
}

// GetStats returns counts: devices positioned in the last 5 minutes, anchors,
// wearables, positions in 24 h, and emergency events in the last hour.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT count(DISTINCT uid) FROM positions WHERE ts > now() - interval '5 minutes'),
			(SELECT count(*) FROM anchors),
			(SELECT count(*) FROM wearables),
			(SELECT count(*) FROM positions WHERE ts > now() - interval '1 day'),
			(SELECT count(*) FROM events WHERE type = 'emergency' AND ts > now() - interval '1 hour')
	`).Scan(&s.ActiveDevices, &s.TotalAnchors, &s.TotalWearables, &s.TotalPositions, &s.EmergencyCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

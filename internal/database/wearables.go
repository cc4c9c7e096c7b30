package database

import (
	"context"
	"time"
)

// Wearable is a mobile beacon identified by uid.
type Wearable struct {
	UID       string    `json:"uid"`
	PersonRef *string   `json:"person_ref"`
	Role      *string   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ListWearables returns all wearables ordered by uid.
func (db *DB) ListWearables(ctx context.Context) ([]Wearable, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT uid, person_ref, role, created_at FROM wearables ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wearables []Wearable
	for rows.Next() {
		var w Wearable
		if err := rows.Scan(&w.UID, &w.PersonRef, &w.Role, &w.CreatedAt); err != nil {
			return nil, err
		}
		wearables = append(wearables, w)
	}
	return wearables, rows.Err()
}

// CreateWearable inserts a new wearable and returns the stored row.
func (db *DB) CreateWearable(ctx context.Context, uid string, personRef, role *string) (*Wearable, error) {
	var w Wearable
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO wearables (uid, person_ref, role)
		VALUES ($1, $2, $3)
		RETURNING uid, person_ref, role, created_at
	`, uid, personRef, role).Scan(&w.UID, &w.PersonRef, &w.Role, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// KnownWearableUIDs returns the set of registered wearable uids.
func (db *DB) KnownWearableUIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.Pool.Query(ctx, `SELECT uid FROM wearables`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uids := make(map[string]struct{})
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids[uid] = struct{}{}
	}
	return uids, rows.Err()
}

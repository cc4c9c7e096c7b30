package database

import (
	"context"
	"time"
)

// Anchor is a fixed receiver at a known position.
type Anchor struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	CreatedAt time.Time `json:"created_at"`
}

// ListAnchors returns all anchors ordered by id.
func (db *DB) ListAnchors(ctx context.Context) ([]Anchor, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, x, y, z, created_at FROM anchors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anchors []Anchor
	for rows.Next() {
		var a Anchor
		if err := rows.Scan(&a.ID, &a.Name, &a.X, &a.Y, &a.Z, &a.CreatedAt); err != nil {
			return nil, err
		}
		anchors = append(anchors, a)
	}
	return anchors, rows.Err()
}

// CreateAnchor inserts a new anchor and returns the stored row.
func (db *DB) CreateAnchor(ctx context.Context, id string, name *string, x, y, z float64) (*Anchor, error) {
	var a Anchor
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO anchors (id, name, x, y, z)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, x, y, z, created_at
	`, id, name, x, y, z).Scan(&a.ID, &a.Name, &a.X, &a.Y, &a.Z, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// KnownAnchorIDs returns the set of registered anchor ids.
func (db *DB) KnownAnchorIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM anchors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// AnchorPoint is an anchor's fixed position, keyed by id in AnchorPositions.
type AnchorPoint struct {
	X float64
	Y float64
	Z float64
}

// AnchorPositions returns id → position for every anchor. The locator caches
// this across ticks.
func (db *DB) AnchorPositions(ctx context.Context) (map[string]AnchorPoint, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, x, y, z FROM anchors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make(map[string]AnchorPoint)
	for rows.Next() {
		var id string
		var p AnchorPoint
		if err := rows.Scan(&id, &p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		points[id] = p
	}
	return points, rows.Err()
}

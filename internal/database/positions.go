package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// Position is an estimator output row.
type Position struct {
	ID              int64              `json:"id"`
	TS              time.Time          `json:"ts"`
	UID             string             `json:"uid"`
	X               float64            `json:"x"`
	Y               float64            `json:"y"`
	Z               float64            `json:"z"`
	Method          string             `json:"method"`
	QScore          float64            `json:"q_score"`
	Zone            *string            `json:"zone"`
	NearestAnchorID string             `json:"nearest_anchor_id"`
	DistM           float64            `json:"dist_m"`
	NumAnchors      int                `json:"num_anchors"`
	Dists           map[string]float64 `json:"dists"`
}

// PositionInsert holds the estimator's output for one wearable.
// ts is assigned by the store (emit time, not observation time).
type PositionInsert struct {
	UID             string
	X               float64
	Y               float64
	Method          string
	QScore          float64
	NearestAnchorID string
	DistM           float64
	NumAnchors      int
	Dists           map[string]float64
}

// InsertPosition writes one position row with ts=now(), z=0 and no zone.
func (db *DB) InsertPosition(ctx context.Context, p PositionInsert) error {
	dists, err := json.Marshal(p.Dists)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO positions
		  (ts, uid, x, y, z, method, q_score, zone,
		   nearest_anchor_id, dist_m, num_anchors, dists)
		VALUES (now(), $1, $2, $3, 0.0, $4, $5, NULL, $6, $7, $8, $9)
	`, p.UID, p.X, p.Y, p.Method, p.QScore, p.NearestAnchorID, p.DistM, p.NumAnchors, dists)
	return err
}

const positionColumns = `
	id, ts, uid, x, y, z, method, q_score, zone,
	nearest_anchor_id, dist_m, num_anchors, dists`

func scanPositions(rows pgx.Rows) ([]Position, error) {
	var positions []Position
	for rows.Next() {
		var p Position
		var dists []byte
		if err := rows.Scan(&p.ID, &p.TS, &p.UID, &p.X, &p.Y, &p.Z, &p.Method,
			&p.QScore, &p.Zone, &p.NearestAnchorID, &p.DistM, &p.NumAnchors, &dists); err != nil {
			return nil, err
		}
		if len(dists) > 0 {
			if err := json.Unmarshal(dists, &p.Dists); err != nil {
				p.Dists = map[string]float64{}
			}
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecentDistinctPositions returns the newest position per uid among rows
// younger than the given age. It runs on the dedicated poll connection, not
// the pool.
func RecentDistinctPositions(ctx context.Context, conn *pgx.Conn, maxAge time.Duration) ([]Position, error) {
	rows, err := conn.Query(ctx, `
		SELECT DISTINCT ON (uid) `+positionColumns+`
		FROM positions
		WHERE ts > now() - make_interval(secs => $1)
		ORDER BY uid, ts DESC
	`, maxAge.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// LatestPositions returns the newest position per uid, up to limit rows.
func (db *DB) LatestPositions(ctx context.Context, limit int) ([]Position, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (uid) `+positionColumns+`
		FROM positions
		ORDER BY uid, ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ScanRow is one RSSI observation ready for insertion.
type ScanRow struct {
	TS         time.Time
	AnchorID   string
	UID        string
	RSSI       float64
	Battery    *float64
	TempC      *float64
	TxPowerDBM *int
	AdvSeq     *int
	Emergency  *bool
}

const scanInsertSQL = `
	INSERT INTO scans
	  (ts, anchor_id, uid, rssi, battery, temp_c, tx_power_dbm, adv_seq, flags, emergency)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9)`

// InsertScans bulk-inserts scans via CopyFrom. On a foreign-key violation it
// falls back to row-by-row inserts, skipping the offending rows, and returns
// the number actually inserted. The known-ID cache pre-filters most unknown
// FKs; the fallback covers rows that race a concurrent delete.
func (db *DB) InsertScans(ctx context.Context, rows []ScanRow) (int64, error) {
	n, err := db.Pool.CopyFrom(ctx,
		pgx.Identifier{"scans"},
		[]string{"ts", "anchor_id", "uid", "rssi", "battery", "temp_c", "tx_power_dbm", "adv_seq", "emergency"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.TS, r.AnchorID, r.UID, r.RSSI, r.Battery, r.TempC, r.TxPowerDBM, r.AdvSeq, r.Emergency}, nil
		}),
	)
	if err == nil {
		return n, nil
	}
	if !isFKViolation(err) {
		return 0, err
	}

	var inserted int64
	for _, r := range rows {
		_, rerr := db.Pool.Exec(ctx, scanInsertSQL,
			r.TS, r.AnchorID, r.UID, r.RSSI, r.Battery, r.TempC, r.TxPowerDBM, r.AdvSeq, r.Emergency)
		if rerr != nil {
			if isFKViolation(rerr) {
				continue
			}
			return inserted, rerr
		}
		inserted++
	}
	db.log.Info().
		Int64("inserted", inserted).
		Int("batch", len(rows)).
		Msg("fk violation during scan batch, retried row-by-row")
	return inserted, nil
}

// isFKViolation reports whether err is a Postgres foreign_key_violation (23503).
func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// RecentScan is the slice of a scan row the locator needs.
type RecentScan struct {
	TS       time.Time
	AnchorID string
	UID      string
	RSSI     float64
}

// RecentScans returns scans newer than the given window, newest first.
func (db *DB) RecentScans(ctx context.Context, window time.Duration) ([]RecentScan, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT ts, anchor_id, uid, rssi
		  FROM scans
		 WHERE ts > now() - make_interval(secs => $1)
		 ORDER BY ts DESC
	`, window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []RecentScan
	for rows.Next() {
		var s RecentScan
		if err := rows.Scan(&s.TS, &s.AnchorID, &s.UID, &s.RSSI); err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// ScanSummary is the latest non-null telemetry per wearable.
type ScanSummary struct {
	UID           string    `json:"uid"`
	LastRSSI      *float64  `json:"last_rssi"`
	LastBattery   *float64  `json:"last_battery"`
	LastTempC     *float64  `json:"last_temp_c"`
	LastTxPower   *int      `json:"last_tx_power"`
	LastEmergency *bool     `json:"last_emergency"`
	LastSeen      time.Time `json:"last_seen"`
}

// ScanSummaries returns, for every uid with scans, the most recent non-null
// value of each telemetry column plus the last-seen instant.
func (db *DB) ScanSummaries(ctx context.Context) ([]ScanSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT
			uid,
			(SELECT rssi FROM scans s2 WHERE s2.uid=s.uid AND s2.rssi IS NOT NULL ORDER BY ts DESC LIMIT 1),
			(SELECT battery FROM scans s3 WHERE s3.uid=s.uid AND s3.battery IS NOT NULL ORDER BY ts DESC LIMIT 1),
			(SELECT temp_c FROM scans s4 WHERE s4.uid=s.uid AND s4.temp_c IS NOT NULL ORDER BY ts DESC LIMIT 1),
			(SELECT tx_power_dbm FROM scans s5 WHERE s5.uid=s.uid AND s5.tx_power_dbm IS NOT NULL ORDER BY ts DESC LIMIT 1),
			(SELECT emergency FROM scans s6 WHERE s6.uid=s.uid AND s6.emergency IS NOT NULL ORDER BY ts DESC LIMIT 1),
			MAX(s.ts)
		FROM scans s
		GROUP BY s.uid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ScanSummary
	for rows.Next() {
		var s ScanSummary
		if err := rows.Scan(&s.UID, &s.LastRSSI, &s.LastBattery, &s.LastTempC,
			&s.LastTxPower, &s.LastEmergency, &s.LastSeen); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

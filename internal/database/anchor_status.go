package database

import (
	"context"
	"time"
)

// AnchorStatusRow is one anchor heartbeat.
type AnchorStatusRow struct {
	TS            time.Time `json:"ts"`
	AnchorID      string    `json:"anchor_id"`
	IP            *string   `json:"ip"`
	FW            *string   `json:"fw"`
	UptimeS       *int64    `json:"uptime_s"`
	WifiRSSI      *int      `json:"wifi_rssi"`
	HeapFree      *int64    `json:"heap_free"`
	HeapMin       *int64    `json:"heap_min"`
	ChipTempC     *float64  `json:"chip_temp_c"`
	TxPowerDBM    *int      `json:"tx_power_dbm"`
	BLEScanActive *bool     `json:"ble_scan_active"`
}

// InsertAnchorStatuses bulk-inserts heartbeat rows.
func (db *DB) InsertAnchorStatuses(ctx context.Context, rows []AnchorStatusRow) (int64, error) {
	var inserted int64
	for _, r := range rows {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO anchor_status
			  (ts, anchor_id, ip, fw, uptime_s, wifi_rssi, heap_free, heap_min, chip_temp_c, tx_power_dbm, ble_scan_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, r.TS, r.AnchorID, r.IP, r.FW, r.UptimeS, r.WifiRSSI, r.HeapFree, r.HeapMin,
			r.ChipTempC, r.TxPowerDBM, r.BLEScanActive)
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

// LatestAnchorStatuses returns the most recent status row per anchor.
// The ip column is inet in the store; it scans to dotted decimal here.
func (db *DB) LatestAnchorStatuses(ctx context.Context) ([]AnchorStatusRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (anchor_id)
			ts, anchor_id, host(ip), fw, uptime_s, wifi_rssi, heap_free, heap_min,
			chip_temp_c, tx_power_dbm, ble_scan_active
		FROM anchor_status
		ORDER BY anchor_id, ts DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []AnchorStatusRow
	for rows.Next() {
		var s AnchorStatusRow
		if err := rows.Scan(&s.TS, &s.AnchorID, &s.IP, &s.FW, &s.UptimeS, &s.WifiRSSI,
			&s.HeapFree, &s.HeapMin, &s.ChipTempC, &s.TxPowerDBM, &s.BLEScanActive); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

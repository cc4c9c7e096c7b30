package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/snarg/rtls-engine/internal/database"
)

const maxIDLen = 64

// yearMS is the upper slack allowed on message timestamps: anything more than
// a year in the future is treated as a bad clock.
const yearMS = 365 * 24 * 3600 * 1000

// TSRules governs timestamp normalization for decoded payloads.
type TSRules struct {
	MinEpochMS    int64
	AllowFallback bool
}

// ErrMissingTS is returned when a payload has no ts and fallback is disabled.
var ErrMissingTS = errors.New("ts missing and fallback disabled")

// Coerce turns an epoch-ms timestamp into a UTC instant. A missing ts falls
// back to now (or errors if fallback is disabled); a ts before MinEpochMS or
// more than a year ahead of now is replaced with now.
func (r TSRules) Coerce(ts *int64, now time.Time) (time.Time, error) {
	nowMS := now.UnixMilli()
	if ts == nil {
		if !r.AllowFallback {
			return time.Time{}, ErrMissingTS
		}
		return time.UnixMilli(nowMS).UTC(), nil
	}
	tsMS := *ts
	if tsMS < r.MinEpochMS || tsMS > nowMS+yearMS {
		tsMS = nowMS
	}
	return time.UnixMilli(tsMS).UTC(), nil
}

// scanPayload is the wire shape on rtls/anchor/+/scan.
type scanPayload struct {
	TS         *int64   `json:"ts"`
	AnchorID   string   `json:"anchor_id"`
	UID        string   `json:"uid"`
	RSSI       *float64 `json:"rssi"`
	AdvSeq     *int     `json:"adv_seq"`
	Battery    *float64 `json:"battery"`
	TempC      *float64 `json:"temp_c"`
	TxPowerDBM *int     `json:"tx_power_dbm"`
	Emergency  *bool    `json:"emergency"`
}

// statusPayload is the wire shape on rtls/anchor/+/status.
type statusPayload struct {
	TS            *int64   `json:"ts"`
	AnchorID      string   `json:"anchor_id"`
	IP            *string  `json:"ip"`
	FW            *string  `json:"fw"`
	UptimeS       *int64   `json:"uptime_s"`
	WifiRSSI      *int     `json:"wifi_rssi"`
	HeapFree      *int64   `json:"heap_free"`
	HeapMin       *int64   `json:"heap_min"`
	ChipTempC     *float64 `json:"chip_temp_c"`
	TxPowerDBM    *int     `json:"tx_power_dbm"`
	BLEScanActive *bool    `json:"ble_scan_active"`
}

// eventPayload is the wire shape on rtls/events.
type eventPayload struct {
	TS       *int64  `json:"ts"`
	UID      string  `json:"uid"`
	Type     string  `json:"type"`
	Severity *int    `json:"severity"`
	Details  *string `json:"details"`
	AnchorID *string `json:"anchor_id"`
}

func checkID(field, v string) error {
	if v == "" {
		return fmt.Errorf("missing required field %q", field)
	}
	if len(v) > maxIDLen {
		return fmt.Errorf("field %q exceeds %d chars", field, maxIDLen)
	}
	return nil
}

// DecodeScan parses and normalizes a scan payload. Unknown extra fields are
// tolerated; a missing required field or bad JSON is an error and the record
// is dropped by the caller.
func DecodeScan(payload []byte, rules TSRules, now time.Time) (database.ScanRow, error) {
	var p scanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return database.ScanRow{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := checkID("anchor_id", p.AnchorID); err != nil {
		return database.ScanRow{}, err
	}
	if err := checkID("uid", p.UID); err != nil {
		return database.ScanRow{}, err
	}
	if p.RSSI == nil {
		return database.ScanRow{}, errors.New(`missing required field "rssi"`)
	}
	ts, err := rules.Coerce(p.TS, now)
	if err != nil {
		return database.ScanRow{}, err
	}
	return database.ScanRow{
		TS:         ts,
		AnchorID:   p.AnchorID,
		UID:        p.UID,
		RSSI:       *p.RSSI,
		Battery:    p.Battery,
		TempC:      p.TempC,
		TxPowerDBM: p.TxPowerDBM,
		AdvSeq:     p.AdvSeq,
		Emergency:  p.Emergency,
	}, nil
}

// DecodeStatus parses and normalizes an anchor heartbeat payload.
func DecodeStatus(payload []byte, rules TSRules, now time.Time) (database.AnchorStatusRow, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return database.AnchorStatusRow{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := checkID("anchor_id", p.AnchorID); err != nil {
		return database.AnchorStatusRow{}, err
	}
	ts, err := rules.Coerce(p.TS, now)
	if err != nil {
		return database.AnchorStatusRow{}, err
	}
	return database.AnchorStatusRow{
		TS:            ts,
		AnchorID:      p.AnchorID,
		IP:            p.IP,
		FW:            p.FW,
		UptimeS:       p.UptimeS,
		WifiRSSI:      p.WifiRSSI,
		HeapFree:      p.HeapFree,
		HeapMin:       p.HeapMin,
		ChipTempC:     p.ChipTempC,
		TxPowerDBM:    p.TxPowerDBM,
		BLEScanActive: p.BLEScanActive,
	}, nil
}

// DecodeEvent parses and normalizes a wearable event payload.
func DecodeEvent(payload []byte, rules TSRules, now time.Time) (database.EventRow, error) {
	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return database.EventRow{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := checkID("uid", p.UID); err != nil {
		return database.EventRow{}, err
	}
	if p.Type == "" {
		return database.EventRow{}, errors.New(`missing required field "type"`)
	}
	ts, err := rules.Coerce(p.TS, now)
	if err != nil {
		return database.EventRow{}, err
	}
	return database.EventRow{
		TS:       ts,
		UID:      p.UID,
		Type:     p.Type,
		Severity: p.Severity,
		Details:  p.Details,
	}, nil
}

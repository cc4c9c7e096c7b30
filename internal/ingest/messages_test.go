package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testRules = TSRules{MinEpochMS: 1514764800000, AllowFallback: true}

func TestCoerce(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	valid := now.Add(-3 * time.Second).UnixMilli()
	tooOld := int64(1000000000000) // 2001, before the floor
	tooNew := now.Add(400 * 24 * time.Hour).UnixMilli()

	tests := []struct {
		name string
		ts   *int64
		want time.Time
	}{
		{"valid_ts_kept", &valid, time.UnixMilli(valid).UTC()},
		{"missing_ts_falls_back_to_now", nil, now},
		{"before_floor_replaced_with_now", &tooOld, now},
		{"far_future_replaced_with_now", &tooNew, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testRules.Coerce(tt.ts, now)
			if err != nil {
				t.Fatalf("Coerce() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Coerce() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("missing_ts_errors_when_fallback_disabled", func(t *testing.T) {
		strict := TSRules{MinEpochMS: testRules.MinEpochMS, AllowFallback: false}
		_, err := strict.Coerce(nil, now)
		if !errors.Is(err, ErrMissingTS) {
			t.Errorf("Coerce() error = %v, want ErrMissingTS", err)
		}
	})
}

func TestDecodeScan(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"complete", `{"ts":1771502400000,"anchor_id":"A1","uid":"W1","rssi":-67.5,"battery":88,"temp_c":36.4,"tx_power_dbm":-59,"adv_seq":12,"emergency":false}`, false},
		{"minimal", `{"anchor_id":"A1","uid":"W1","rssi":-70}`, false},
		{"unknown_fields_tolerated", `{"anchor_id":"A1","uid":"W1","rssi":-70,"vendor_ext":{"x":1}}`, false},
		{"missing_anchor_id", `{"uid":"W1","rssi":-70}`, true},
		{"missing_uid", `{"anchor_id":"A1","rssi":-70}`, true},
		{"missing_rssi", `{"anchor_id":"A1","uid":"W1"}`, true},
		{"oversized_id", `{"anchor_id":"` + strings.Repeat("a", 65) + `","uid":"W1","rssi":-70}`, true},
		{"bad_json", `{"anchor_id":`, true},
		{"wrong_type_rssi", `{"anchor_id":"A1","uid":"W1","rssi":"loud"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := DecodeScan([]byte(tt.payload), testRules, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeScan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if row.AnchorID != "A1" || row.UID != "W1" {
				t.Errorf("DecodeScan() ids = %q/%q", row.AnchorID, row.UID)
			}
			if row.TS.IsZero() {
				t.Error("DecodeScan() returned zero ts")
			}
		})
	}

	t.Run("optional_fields_stay_nil", func(t *testing.T) {
		row, err := DecodeScan([]byte(`{"anchor_id":"A1","uid":"W1","rssi":-70}`), testRules, now)
		if err != nil {
			t.Fatal(err)
		}
		if row.Battery != nil || row.TempC != nil || row.Emergency != nil {
			t.Error("optional fields should be nil when absent")
		}
		if !row.TS.Equal(now) {
			t.Errorf("fallback ts = %v, want %v", row.TS, now)
		}
	})
}

func TestDecodeStatus(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	row, err := DecodeStatus([]byte(`{"ts":1771502400000,"anchor_id":"A1","ip":"10.0.0.5","fw":"1.4.2","uptime_s":86400,"wifi_rssi":-55,"ble_scan_active":true}`), testRules, now)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if row.AnchorID != "A1" {
		t.Errorf("AnchorID = %q", row.AnchorID)
	}
	if row.IP == nil || *row.IP != "10.0.0.5" {
		t.Errorf("IP = %v", row.IP)
	}
	if row.BLEScanActive == nil || !*row.BLEScanActive {
		t.Errorf("BLEScanActive = %v", row.BLEScanActive)
	}

	if _, err := DecodeStatus([]byte(`{"ip":"10.0.0.5"}`), testRules, now); err == nil {
		t.Error("DecodeStatus() accepted payload without anchor_id")
	}
}

func TestDecodeEvent(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"complete", `{"ts":1771502400000,"uid":"W1","type":"emergency_button","severity":2,"details":"pressed"}`, false},
		{"minimal", `{"uid":"W1","type":"low_battery"}`, false},
		{"missing_type", `{"uid":"W1"}`, true},
		{"missing_uid", `{"type":"low_battery"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := DecodeEvent([]byte(tt.payload), testRules, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && row.UID != "W1" {
				t.Errorf("UID = %q", row.UID)
			}
		})
	}
}

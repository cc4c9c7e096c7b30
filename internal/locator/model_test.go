package locator

import (
	"math"
	"testing"
)

func TestRSSIToDistance(t *testing.T) {
	tests := []struct {
		name    string
		rssi    float64
		txPower float64
		n       float64
		want    float64
	}{
		{"rssi_equals_txpower_is_one_meter", -59, -59, 2.2, 1.0},
		{"free_space_10db_drop", -79, -59, 2.0, 10.0},
		{"stronger_than_calibration_is_submeter", -49, -59, 2.0, math.Pow(10, -0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSSIToDistance(tt.rssi, tt.txPower, tt.n)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RSSIToDistance(%v, %v, %v) = %v, want %v", tt.rssi, tt.txPower, tt.n, got, tt.want)
			}
		})
	}

	t.Run("monotonic_in_rssi", func(t *testing.T) {
		prev := 0.0
		for rssi := -40.0; rssi >= -100; rssi -= 5 {
			d := RSSIToDistance(rssi, -59, 2.2)
			if d <= prev {
				t.Fatalf("distance not increasing as rssi weakens: rssi=%v d=%v prev=%v", rssi, d, prev)
			}
			prev = d
		}
	})
}

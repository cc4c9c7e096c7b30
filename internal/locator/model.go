package locator

import "math"

// RSSIToDistance converts a received signal strength to an estimated range in
// meters using the log-distance path loss model:
//
//	d = 10^((txPower - rssi) / (10 * n))
//
// txPower is the calibrated RSSI at one meter and n the path loss exponent
// (~2 free space, higher indoors).
func RSSIToDistance(rssi, txPower, n float64) float64 {
	return math.Pow(10, (txPower-rssi)/(10*n))
}

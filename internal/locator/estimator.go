package locator

import (
	"sort"
	"time"

	"github.com/snarg/rtls-engine/internal/database"
)

// Estimation methods, recorded with each position row.
const (
	MethodProximity       = "proximity"
	MethodSingleAnchor    = "single_anchor"
	MethodFallbackNearest = "fallback_nearest"
)

// rssiSpreadNorm normalizes the strongest-to-weakest RSSI spread for the
// quality score: a spread of 40 dB or more scores zero.
const rssiSpreadNorm = 40.0

// Params tunes the RSSI model and centroid weighting.
type Params struct {
	Window       time.Duration
	TxPowerDBM   float64
	PathLossExp  float64
	WeightClampM float64
	TopK         int
}

// Estimate is one computed position, ready for insertion.
type Estimate struct {
	UID             string
	X, Y            float64
	Method          string
	QScore          float64
	NearestAnchorID string
	DistM           float64
	NumAnchors      int
	Dists           map[string]float64
}

type anchorSample struct {
	id       string
	bestRSSI float64
	latestTS time.Time
}

// Estimator turns a wearable's windowed scans into a position estimate.
// It is pure: no clock, no store, deterministic for a given input.
type Estimator struct {
	params Params
}

func NewEstimator(p Params) *Estimator {
	return &Estimator{params: p}
}

// Estimate computes a position for one wearable from its recent scans. The
// effective window is aligned to the wearable's newest scan, not the wall
// clock, so a device that went quiet still gets an estimate from its last
// burst. Scans from anchors without a surveyed position are ignored; ok is
// false when nothing usable remains.
func (e *Estimator) Estimate(uid string, scans []database.RecentScan, anchors map[string]database.AnchorPoint) (Estimate, bool) {
	if len(scans) == 0 {
		return Estimate{}, false
	}

	var latest time.Time
	for _, s := range scans {
		if s.TS.After(latest) {
			latest = s.TS
		}
	}
	windowStart := latest.Add(-e.params.Window)

	// Best RSSI per anchor inside the aligned window.
	byAnchor := map[string]*anchorSample{}
	for _, s := range scans {
		if s.TS.Before(windowStart) {
			continue
		}
		if _, ok := anchors[s.AnchorID]; !ok {
			continue
		}
		a := byAnchor[s.AnchorID]
		if a == nil {
			byAnchor[s.AnchorID] = &anchorSample{id: s.AnchorID, bestRSSI: s.RSSI, latestTS: s.TS}
			continue
		}
		if s.RSSI > a.bestRSSI {
			a.bestRSSI = s.RSSI
		}
		if s.TS.After(a.latestTS) {
			a.latestTS = s.TS
		}
	}
	if len(byAnchor) == 0 {
		return Estimate{}, false
	}

	// Strongest first; ties broken by id so output is deterministic.
	samples := make([]*anchorSample, 0, len(byAnchor))
	for _, a := range byAnchor {
		samples = append(samples, a)
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].bestRSSI != samples[j].bestRSSI {
			return samples[i].bestRSSI > samples[j].bestRSSI
		}
		return samples[i].id < samples[j].id
	})

	dists := make(map[string]float64, len(samples))
	for _, a := range samples {
		dists[a.id] = RSSIToDistance(a.bestRSSI, e.params.TxPowerDBM, e.params.PathLossExp)
	}

	nearest := samples[0]
	est := Estimate{
		UID:             uid,
		NearestAnchorID: nearest.id,
		DistM:           dists[nearest.id],
		NumAnchors:      len(samples),
		Dists:           dists,
	}

	if len(samples) >= 2 {
		top := samples
		if len(top) > e.params.TopK {
			top = top[:e.params.TopK]
		}
		var wx, wy, wtot float64
		for _, a := range top {
			p := anchors[a.id]
			d := dists[a.id]
			if d < e.params.WeightClampM {
				d = e.params.WeightClampM
			}
			w := 1.0 / (d * d)
			wx += w * p.X
			wy += w * p.Y
			wtot += w
		}
		if wtot > 0 {
			est.X, est.Y = wx/wtot, wy/wtot
			est.Method = MethodProximity
		} else {
			p := anchors[nearest.id]
			est.X, est.Y = p.X, p.Y
			est.Method = MethodFallbackNearest
		}
	} else {
		p := anchors[nearest.id]
		est.X, est.Y = p.X, p.Y
		est.Method = MethodSingleAnchor
	}

	est.QScore = qScore(samples, e.params.TopK)
	return est, true
}

// qScore blends anchor count and RSSI spread into [0, 1]. More anchors and a
// tighter spread both raise confidence; a lone anchor scores 0.4.
func qScore(samples []*anchorSample, topK int) float64 {
	n := len(samples)

	var anchorFactor float64
	if n > 1 {
		denom := topK - 1
		if denom < 1 {
			denom = 1
		}
		anchorFactor = float64(n-1) / float64(denom)
		if anchorFactor > 1 {
			anchorFactor = 1
		}
	}

	var spread float64
	if n > 1 {
		lo, hi := samples[0].bestRSSI, samples[0].bestRSSI
		for _, a := range samples[1:] {
			if a.bestRSSI < lo {
				lo = a.bestRSSI
			}
			if a.bestRSSI > hi {
				hi = a.bestRSSI
			}
		}
		spread = hi - lo
	}
	spreadNorm := spread / rssiSpreadNorm
	if spreadNorm > 1 {
		spreadNorm = 1
	}

	q := 0.6*anchorFactor + 0.4*(1-spreadNorm)
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

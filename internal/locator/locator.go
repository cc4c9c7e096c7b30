package locator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/config"
	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

// errCooloff is how long the loop pauses after a failed tick before retrying.
const errCooloff = time.Second

// Locator polls recent scans, estimates one position per active wearable, and
// writes the results back. Single goroutine; the throttle map and anchor cache
// are owned by the loop and need no locking.
type Locator struct {
	cfg *config.Config
	db  *database.DB
	log zerolog.Logger
	est *Estimator

	anchors       map[string]database.AnchorPoint
	anchorsLoaded time.Time
	lastWrite     map[string]time.Time
}

func New(cfg *config.Config, db *database.DB, log zerolog.Logger) *Locator {
	return &Locator{
		cfg: cfg,
		db:  db,
		log: log,
		est: NewEstimator(Params{
			Window:       time.Duration(cfg.WindowSeconds) * time.Second,
			TxPowerDBM:   cfg.TxPowerDBMAt1M,
			PathLossExp:  cfg.PathLossExponent,
			WeightClampM: cfg.WeightDistClampM,
			TopK:         cfg.TopK,
		}),
		lastWrite: map[string]time.Time{},
	}
}

// Run drives the poll loop until ctx is cancelled. A failed tick logs and
// backs off briefly instead of crashing; the next tick starts clean.
func (l *Locator) Run(ctx context.Context) error {
	if err := l.refreshAnchors(ctx); err != nil {
		return err
	}

	l.log.Info().
		Int("window_s", l.cfg.WindowSeconds).
		Dur("poll", l.cfg.LocatorPollInterval()).
		Dur("throttle", l.cfg.WriteThrottle()).
		Int("anchors", len(l.anchors)).
		Msg("locator running")

	for {
		pause := l.cfg.LocatorPollInterval()
		if err := l.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Error().Err(err).Msg("locator tick failed")
			pause = errCooloff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
}

func (l *Locator) tick(ctx context.Context) error {
	if time.Since(l.anchorsLoaded) >= l.cfg.IDsRefresh() {
		if err := l.refreshAnchors(ctx); err != nil {
			l.log.Warn().Err(err).Msg("anchor refresh failed, keeping cached positions")
		}
	}

	scans, err := l.db.RecentScans(ctx, l.cfg.QueryWindow())
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		return nil
	}

	byUID := map[string][]database.RecentScan{}
	for _, s := range scans {
		byUID[s.UID] = append(byUID[s.UID], s)
	}

	inserted := 0
	for uid, recs := range byUID {
		if l.throttled(uid, time.Now()) {
			metrics.PositionsThrottledTotal.Inc()
			continue
		}

		est, ok := l.est.Estimate(uid, recs, l.anchors)
		if !ok {
			continue
		}

		err := l.db.InsertPosition(ctx, database.PositionInsert{
			UID:             est.UID,
			X:               est.X,
			Y:               est.Y,
			Method:          est.Method,
			QScore:          est.QScore,
			NearestAnchorID: est.NearestAnchorID,
			DistM:           est.DistM,
			NumAnchors:      est.NumAnchors,
			Dists:           est.Dists,
		})
		if err != nil {
			return err
		}
		metrics.PositionsComputedTotal.Inc()
		inserted++
	}

	if inserted > 0 {
		l.log.Info().Int("positions", inserted).Msg("positions inserted")
	}
	return nil
}

// throttled reports whether a write for uid happened within the throttle
// interval. The timestamp is claimed at check time, so a uid that passes the
// gate stays quiet for a full interval even if its estimate is later skipped.
func (l *Locator) throttled(uid string, now time.Time) bool {
	if now.Sub(l.lastWrite[uid]) < l.cfg.WriteThrottle() {
		return true
	}
	l.lastWrite[uid] = now
	return false
}

func (l *Locator) refreshAnchors(ctx context.Context) error {
	anchors, err := l.db.AnchorPositions(ctx)
	if err != nil {
		return err
	}
	l.anchors = anchors
	l.anchorsLoaded = time.Now()
	l.log.Debug().Int("anchors", len(anchors)).Msg("anchor positions refreshed")
	return nil
}

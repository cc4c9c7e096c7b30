package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

// Poll cadences and queue depths. Positions move fastest and deepest;
// the slower feeds share a small queue each.
const (
	positionsPeriod = 2 * time.Second
	statsPeriod     = 10 * time.Second
	scansPeriod     = 15 * time.Second
	statusPeriod    = 15 * time.Second

	positionsQueueCap = 1000
	statsQueueCap     = 100
	scansQueueCap     = 100
	statusQueueCap    = 100

	// positionsMaxAge bounds the DISTINCT ON query so restarts don't replay
	// ancient rows.
	positionsMaxAge = 10 * time.Second

	// reconnectBackoff paces retries of the dedicated poll connection.
	reconnectBackoff = 5 * time.Second
)

// Message type tags on the push channel.
const (
	msgAnchor       = "anchor"
	msgWearable     = "wearable"
	msgPosition     = "position"
	msgStats        = "stats"
	msgScan         = "scan"
	msgAnchorStatus = "anchor_status"
)

type positionMsg struct {
	Type string `json:"type"`
	database.Position
}

type statsMsg struct {
	Type string `json:"type"`
	database.Stats
}

type scanMsg struct {
	Type string `json:"type"`
	database.ScanSummary
}

type anchorStatusMsg struct {
	Type string `json:"type"`
	database.AnchorStatusRow
}

// Pollers watches the store for changes and fans them out as pre-serialized
// JSON messages on four bounded queues. Each message is consumed by exactly
// one push-channel client.
type Pollers struct {
	db          *database.DB
	databaseURL string
	log         zerolog.Logger

	Positions    chan []byte
	Stats        chan []byte
	Scans        chan []byte
	AnchorStatus chan []byte
}

func NewPollers(db *database.DB, databaseURL string, log zerolog.Logger) *Pollers {
	return &Pollers{
		db:           db,
		databaseURL:  databaseURL,
		log:          log,
		Positions:    make(chan []byte, positionsQueueCap),
		Stats:        make(chan []byte, statsQueueCap),
		Scans:        make(chan []byte, scansQueueCap),
		AnchorStatus: make(chan []byte, statusQueueCap),
	}
}

// Start launches the four poll loops. They stop when ctx is cancelled.
func (p *Pollers) Start(ctx context.Context) {
	go p.pollPositions(ctx)
	go p.pollStats(ctx)
	go p.pollScans(ctx)
	go p.pollAnchorStatus(ctx)
	p.log.Info().Msg("change pollers started")
}

// QueueDepth reports total buffered messages across the four queues, for the
// health endpoint.
func (p *Pollers) QueueDepth() int {
	return len(p.Positions) + len(p.Stats) + len(p.Scans) + len(p.AnchorStatus)
}

// pollPositions runs on a dedicated single connection rather than the pool so
// the steady 2 s cadence can never be starved by request traffic. Connection
// loss is retried with a fixed backoff.
func (p *Pollers) pollPositions(ctx context.Context) {
	var conn *pgx.Conn
	defer func() {
		if conn != nil {
			conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			c, err := pgx.Connect(ctx, p.databaseURL)
			if err != nil {
				p.log.Warn().Err(err).Msg("positions poll connection failed, retrying")
				if !sleepCtx(ctx, reconnectBackoff) {
					return
				}
				continue
			}
			p.log.Info().Msg("positions poll connection established")
			conn = c
		}

		positions, err := database.RecentDistinctPositions(ctx, conn, positionsMaxAge)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("positions poll failed, reconnecting")
			conn.Close(context.Background())
			conn = nil
			continue
		}

		for _, pos := range positions {
			p.enqueue(p.Positions, "positions", positionMsg{Type: msgPosition, Position: pos})
		}

		if !sleepCtx(ctx, positionsPeriod) {
			return
		}
	}
}

func (p *Pollers) pollStats(ctx context.Context) {
	for {
		stats, err := p.db.GetStats(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("stats poll failed")
		} else {
			p.enqueue(p.Stats, "stats", statsMsg{Type: msgStats, Stats: *stats})
		}

		if !sleepCtx(ctx, statsPeriod) {
			return
		}
	}
}

func (p *Pollers) pollScans(ctx context.Context) {
	for {
		summaries, err := p.db.ScanSummaries(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("scans poll failed")
		} else {
			for _, s := range summaries {
				p.enqueue(p.Scans, "scans", scanMsg{Type: msgScan, ScanSummary: s})
			}
		}

		if !sleepCtx(ctx, scansPeriod) {
			return
		}
	}
}

func (p *Pollers) pollAnchorStatus(ctx context.Context) {
	for {
		statuses, err := p.db.LatestAnchorStatuses(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("anchor status poll failed")
		} else {
			for _, s := range statuses {
				p.enqueue(p.AnchorStatus, "anchor_status", anchorStatusMsg{Type: msgAnchorStatus, AnchorStatusRow: s})
			}
		}

		if !sleepCtx(ctx, statusPeriod) {
			return
		}
	}
}

// enqueue marshals and offers the message; a full queue drops the newest.
func (p *Pollers) enqueue(q chan []byte, name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Str("queue", name).Msg("message marshal failed")
		return
	}
	select {
	case q <- b:
	default:
		metrics.QueueDropsTotal.WithLabelValues(name).Inc()
		p.log.Warn().Str("queue", name).Msg("queue full, dropping update")
	}
}

// sleepCtx sleeps for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

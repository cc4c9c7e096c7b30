package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/config"
	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
	"github.com/snarg/rtls-engine/internal/mqttclient"
)

// Queue capacities and per-iteration drain limits. Scans dominate bus traffic
// so their queue is deeper and drained more aggressively.
const (
	scanQueueCap   = 10000
	statusQueueCap = 2000
	eventQueueCap  = 2000

	scanDrainLimit   = 100
	statusDrainLimit = 50
	eventDrainLimit  = 50
)

// Supervisor owns the ingestion pipeline: the bus subscription, the three
// bounded queues between the MQTT callback and the batch loop, and the writer.
type Supervisor struct {
	cfg   *config.Config
	db    *database.DB
	log   zerolog.Logger
	rules TSRules

	known  *KnownIDs
	writer *Writer
	mqtt   *mqttclient.Client

	scanQ   chan database.ScanRow
	statusQ chan database.AnchorStatusRow
	eventQ  chan database.EventRow

	msgCount atomic.Int64
}

func NewSupervisor(cfg *config.Config, db *database.DB, log zerolog.Logger) *Supervisor {
	known := NewKnownIDs(db, cfg.IDsRefresh(), log)
	return &Supervisor{
		cfg:     cfg,
		db:      db,
		log:     log,
		rules:   TSRules{MinEpochMS: cfg.TSMinEpochMS, AllowFallback: cfg.AllowFallbackNowTS},
		known:   known,
		writer:  NewWriter(db, known, cfg.BatchMaxSize, cfg.BatchMaxAge(), log),
		scanQ:   make(chan database.ScanRow, scanQueueCap),
		statusQ: make(chan database.AnchorStatusRow, statusQueueCap),
		eventQ:  make(chan database.EventRow, eventQueueCap),
	}
}

// Run connects to the bus and drives the batch loop until ctx is cancelled.
// On shutdown it drains the queues, flushes once more, and disconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.known.Load(ctx); err != nil {
		return err
	}

	mc, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL: s.cfg.BrokerURL(),
		ClientID:  s.cfg.ClientID("ingestor"),
		Topics:    []string{s.cfg.SubTopicScan, s.cfg.SubTopicStatus, s.cfg.SubTopicEvents},
		QoS:       byte(s.cfg.MQTTQoS),
		Handler:   s.handleMessage,
		Log:       s.log,
	})
	if err != nil {
		return err
	}
	s.mqtt = mc

	go s.statsLoop(ctx)

	s.log.Info().
		Int("batch_max_size", s.cfg.BatchMaxSize).
		Dur("batch_max_age", s.cfg.BatchMaxAge()).
		Msg("ingestor running")

loop:
	for {
		wait := s.writer.RemainingAge(time.Now())
		select {
		case <-ctx.Done():
			break loop
		case r := <-s.scanQ:
			s.writer.AddScan(r)
		case <-time.After(wait):
		}

		s.drain()

		if s.writer.ShouldFlush(time.Now()) {
			s.writer.Flush(ctx)
		}
	}

	s.log.Info().Msg("shutting down, flushing remaining rows")
	s.drain()
	s.writer.Flush(context.Background())
	s.mqtt.Close()
	return nil
}

// drain moves queued rows into the writer without blocking, bounded per kind
// so one busy queue cannot starve the flush check.
func (s *Supervisor) drain() {
scans:
	for i := 0; i < scanDrainLimit; i++ {
		select {
		case r := <-s.scanQ:
			s.writer.AddScan(r)
		default:
			break scans
		}
	}
statuses:
	for i := 0; i < statusDrainLimit; i++ {
		select {
		case r := <-s.statusQ:
			s.writer.AddStatus(r)
		default:
			break statuses
		}
	}
events:
	for i := 0; i < eventDrainLimit; i++ {
		select {
		case r := <-s.eventQ:
			s.writer.AddEvent(r)
		default:
			break events
		}
	}
}

// handleMessage runs on the MQTT client's delivery goroutine. It decodes and
// enqueues without blocking; a full queue drops the newest message.
func (s *Supervisor) handleMessage(topic string, payload []byte) {
	s.msgCount.Add(1)
	metrics.BusMessagesTotal.Inc()

	kind := ParseTopic(topic)
	now := time.Now()

	switch kind {
	case KindScan:
		row, err := DecodeScan(payload, s.rules, now)
		if err != nil {
			s.dropDecode(kind, topic, err)
			return
		}
		select {
		case s.scanQ <- row:
		default:
			s.dropFull(kind)
		}
	case KindStatus:
		row, err := DecodeStatus(payload, s.rules, now)
		if err != nil {
			s.dropDecode(kind, topic, err)
			return
		}
		select {
		case s.statusQ <- row:
		default:
			s.dropFull(kind)
		}
	case KindEvent:
		row, err := DecodeEvent(payload, s.rules, now)
		if err != nil {
			s.dropDecode(kind, topic, err)
			return
		}
		select {
		case s.eventQ <- row:
		default:
			s.dropFull(kind)
		}
	default:
		s.log.Debug().Str("topic", topic).Msg("message on unrecognized topic, ignoring")
	}
}

func (s *Supervisor) dropDecode(kind Kind, topic string, err error) {
	metrics.DecodeFailuresTotal.WithLabelValues(kind.String()).Inc()
	s.log.Warn().Err(err).Str("topic", topic).Str("kind", kind.String()).Msg("dropping undecodable payload")
}

func (s *Supervisor) dropFull(kind Kind) {
	metrics.QueueDropsTotal.WithLabelValues(kind.String()).Inc()
	s.log.Warn().Str("kind", kind.String()).Msg("queue full, dropping message")
}

// statsLoop logs bus throughput once a minute.
func (s *Supervisor) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := s.msgCount.Load()
			s.log.Info().
				Int64("messages_last_min", total-last).
				Int64("messages_total", total).
				Int("scan_queue", len(s.scanQ)).
				Msg("ingest throughput")
			last = total
		}
	}
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/config"
	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, db *database.DB, pollers *Pollers, broadcast *Broadcaster, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	tokens := NewTokenAuth(cfg.SecretKey, cfg.TokenLifetime())
	auth := NewAuthHandler(db, tokens)
	anchors := NewAnchorsHandler(db)
	wearables := NewWearablesHandler(db)
	telemetry := NewTelemetryHandler(db)
	health := NewHealthHandler(db, pollers, broadcast, version, startTime)

	r.Get("/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/token", auth.IssueToken)

	r.Get("/anchors", anchors.List)
	r.Get("/wearables", wearables.List)
	r.Get("/positions/latest", telemetry.LatestPositions)
	r.Get("/scans/latest", telemetry.LatestScans)
	r.Get("/anchor_status/latest", telemetry.LatestAnchorStatus)
	r.Get("/stats", telemetry.GetStats)

	r.Get("/ws/data", broadcast.ServeHTTP)

	// Registry writes need an operator or admin token.
	r.Group(func(r chi.Router) {
		r.Use(tokens.RequireRole("admin", "operator"))
		r.Post("/anchors", anchors.Create)
		r.Post("/wearables", wearables.Create)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

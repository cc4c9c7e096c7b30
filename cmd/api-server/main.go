package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/api"
	"github.com/snarg/rtls-engine/internal/config"
	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

var version = "dev"

func main() {
	startTime := time.Now()

	envFile := flag.String("env-file", "", "path to .env file (default ./.env if present)")
	addr := flag.String("addr", "", "listen address override (e.g. :8000)")
	logLevel := flag.String("log-level", "", "log level override (trace|debug|info|warn|error)")
	flag.Parse()

	// Config
	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, HTTPAddr: *addr, LogLevel: *logLevel})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("api-server starting")

	if cfg.SecretKey == "" {
		log.Warn().Msg("SECRET_KEY not set, registry writes are disabled")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolLimits{MinConns: 1, MaxConns: 10}, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	prometheus.MustRegister(metrics.NewCollector(db.Pool))

	// Change pollers and push-channel broadcaster
	pollers := api.NewPollers(db, cfg.DatabaseURL, log.With().Str("component", "pollers").Logger())
	pollers.Start(ctx)
	broadcast := api.NewBroadcaster(db, pollers, log.With().Str("component", "broadcast").Logger())

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, pollers, broadcast, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("api-server stopped")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/config"
	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/ingest"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "path to .env file (default ./.env if present)")
	logLevel := flag.String("log-level", "", "log level override (trace|debug|info|warn|error)")
	flag.Parse()

	// Config
	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, LogLevel: *logLevel})
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
	log.Info().Str("version", version).Msg("ingestor starting")

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

	// Pipeline: mqtt subscription, bounded queues, batch writer
	sup := ingest.NewSupervisor(cfg, db, log.With().Str("component", "ingest").Logger())
	if err := sup.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("ingest pipeline failed")
	}

	log.Info().Msg("ingestor stopped")
}

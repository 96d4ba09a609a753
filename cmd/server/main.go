package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-hooks-academy/internal/config"
	"github.com/ad/go-hooks-academy/internal/db"
	"github.com/ad/go-hooks-academy/internal/events"
	"github.com/ad/go-hooks-academy/internal/handlers"
	"github.com/ad/go-hooks-academy/internal/server"
	"github.com/ad/go-hooks-academy/internal/services"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg, os.Stdout)

	stores, closeStores, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("storage", cfg.Storage).Msg("failed to open storage")
	}
	defer closeStores()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	auth := services.NewAuthService(stores.Users, logger)
	tracker := services.NewProgressTracker(stores.Progress, stores.Attempts, publisher, logger)
	stats := services.NewStatisticsCalculator(stores.Progress, stores.Attempts)

	e := server.New(server.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		BodyLimit: cfg.BodyLimit,
	}, handlers.New(auth, tracker, stats), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().
		Str("addr", cfg.Addr).
		Str("storage", cfg.Storage).
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Msg("server started")

	if err := server.Run(ctx, e, cfg.Addr, cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.LogLevel).With().Timestamp().Logger()
}

// openStores returns the configured backend and a func releasing it.
func openStores(cfg *config.Config, logger zerolog.Logger) (store.Stores, func(), error) {
	if cfg.Storage != config.StorageSQLite {
		return store.NewMemoryStores(), func() {}, nil
	}

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		return store.Stores{}, nil, err
	}
	queue := db.NewDBQueue(sqlDB)
	logger.Info().Str("path", cfg.DBPath).Msg("sqlite storage ready")

	return db.NewStores(queue), func() {
		queue.Close()
		if err := sqlDB.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}, nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	w := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger.With().Str("component", "events").Logger())
	return events.NewKafkaPublisher(w)
}

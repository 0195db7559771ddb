package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/panwatch/panwatch/internal/app"
	"github.com/panwatch/panwatch/internal/platform/config"
	db "github.com/panwatch/panwatch/internal/storage"
)

func main() {
	mode := flag.String("mode", "", "Service mode (monitor, api, check, dedup, all)")
	period := flag.String("period", "all", "Validation period for check mode (all, today, yesterday, week, month, year)")
	concurrency := flag.Int("concurrency", 5, "Max concurrent link probes for check mode")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.Database.MaxConnections,
		MinConns:          cfg.Database.MinConnections,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.Database.URL, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	// Start health server in background
	go func() {
		if err := application.StartHealthServer(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := runMode(ctx, application, *mode, *period, *concurrency); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode, period string, concurrency int) error {
	switch mode {
	case "monitor":
		return application.RunMonitor(ctx)
	case "api":
		return application.RunAPI(ctx)
	case "check":
		return application.RunCheck(ctx, period, concurrency)
	case "dedup":
		return application.RunDedup(ctx)
	case "all":
		return application.RunAll(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[monitor|api|check|dedup|all]", os.Args[0])

		return nil
	}
}

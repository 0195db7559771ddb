// Package app wires configuration, storage and the service modes
// behind one App type.
//
//   - Monitor mode: MTProto reader plus the periodic dedup sweep
//   - API mode: REST server for the dashboard and admin plane
//   - Check mode: one-off share link validation run
//   - Dedup mode: one-off duplicate sweep
//   - All mode: monitor and API in one process
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/panwatch/panwatch/internal/api"
	"github.com/panwatch/panwatch/internal/auth"
	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/dedup"
	"github.com/panwatch/panwatch/internal/linkcheck"
	"github.com/panwatch/panwatch/internal/platform/config"
	"github.com/panwatch/panwatch/internal/platform/observability"
	"github.com/panwatch/panwatch/internal/platform/worker"
	db "github.com/panwatch/panwatch/internal/storage"
	"github.com/panwatch/panwatch/internal/telegramreader"
)

// ErrUnknownDedupMode indicates DEDUP_MODE is neither streaming nor strict.
var ErrUnknownDedupMode = errors.New("unknown dedup mode")

// ErrCheckFailed indicates a one-off validation run did not complete.
var ErrCheckFailed = errors.New("link check failed")

const (
	checkPollInterval = time.Second

	// defaultAdminPassword seeds the admin account on first API start.
	// Operators are expected to change it immediately.
	defaultAdminPassword = "admin123"
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunMonitor runs the Telegram reader together with the periodic
// dedup sweep.
func (a *App) RunMonitor(ctx context.Context) error {
	a.logger.Info().Msg("Starting monitor mode")

	go a.runPeriodicDedup(ctx)

	reader := telegramreader.New(a.cfg, a.database, *a.logger)

	if err := reader.Run(ctx); err != nil {
		return fmt.Errorf("reader run: %w", err)
	}

	return nil
}

// RunAPI runs the REST API server.
func (a *App) RunAPI(ctx context.Context) error {
	a.logger.Info().Msg("Starting API mode")

	return a.runAPI(ctx, nil)
}

// RunAll runs the monitor and the API in one process. The reader
// doubles as the channel diagnoser for the admin plane.
func (a *App) RunAll(ctx context.Context) error {
	a.logger.Info().Msg("Starting combined mode")

	go a.runPeriodicDedup(ctx)

	reader := telegramreader.New(a.cfg, a.database, *a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := reader.Run(ctx); err != nil {
			return fmt.Errorf("reader run: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return a.runAPI(ctx, reader)
	})

	return g.Wait()
}

func (a *App) runAPI(ctx context.Context, diagnoser api.Diagnoser) error {
	users := auth.NewStore(a.cfg.API.UsersFile)
	a.ensureAdminUser(users)

	srv := api.New(api.Options{
		Config:    a.cfg.API,
		EnvFile:   a.cfg.EnvFile,
		Database:  a.database,
		Users:     users,
		Tokens:    auth.NewTokens(a.cfg.API.SecretSalt),
		Checks:    linkcheck.NewManager(a.database, *a.logger),
		Deduper:   a.newDedupEngine(),
		Diagnoser: diagnoser,
		Logger:    *a.logger,
	})

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("api run: %w", err)
	}

	return nil
}

// ensureAdminUser seeds the admin account so a fresh deployment is
// reachable before any user management happened.
func (a *App) ensureAdminUser(users *auth.Store) {
	_, err := users.Get(auth.AdminUsername)
	if err == nil {
		return
	}

	if !errors.Is(err, auth.ErrUserNotFound) {
		a.logger.Warn().Err(err).Msg("failed to check admin user")
		return
	}

	if err := users.Add(auth.AdminUsername, defaultAdminPassword, "管理员", "", auth.RoleAdmin); err != nil {
		a.logger.Warn().Err(err).Msg("failed to seed admin user")
		return
	}

	a.logger.Warn().Msg("seeded default admin user, change its password immediately")
}

// RunCheck runs one link validation pass and waits for it to finish.
func (a *App) RunCheck(ctx context.Context, period string, maxConcurrent int) error {
	a.logger.Info().Str("period", period).Msg("Starting check mode")

	manager := linkcheck.NewManager(a.database, *a.logger)

	id, err := manager.Start(ctx, period, maxConcurrent)
	if err != nil {
		return fmt.Errorf("start check: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(checkPollInterval):
		}

		status, err := manager.Status(id)
		if err != nil {
			return fmt.Errorf("check status: %w", err)
		}

		if status.Status == domain.CheckStatusRunning {
			continue
		}

		a.logger.Info().
			Str("status", status.Status).
			Int("total_links", status.TotalLinks).
			Int("valid_links", status.ValidLinks).
			Int("invalid_links", status.InvalidLinks).
			Float64("duration", status.Duration).
			Msg("check finished")

		if status.Status != domain.CheckStatusCompleted {
			return fmt.Errorf("%w: %s", ErrCheckFailed, status.Error)
		}

		return nil
	}
}

// RunDedup runs one duplicate sweep in the configured mode.
func (a *App) RunDedup(ctx context.Context) error {
	a.logger.Info().Str("mode", a.cfg.DedupMode).Msg("Starting dedup mode")

	return a.runDedupOnce(ctx, a.newDedupEngine())
}

func (a *App) newDedupEngine() *dedup.Engine {
	return dedup.New(a.database, a.cfg.DedupStatsRetention, *a.logger)
}

// runPeriodicDedup sweeps duplicates every DEDUP_INTERVAL while the
// monitor is running. Transient storage errors wait for the next
// interval; a bad DEDUP_MODE never heals and stops the loop.
func (a *App) runPeriodicDedup(ctx context.Context) {
	defer worker.RecoverPanic(a.logger, "periodic dedup")

	engine := a.newDedupEngine()

	err := worker.Loop(ctx, worker.Config{
		Name:         "dedup",
		PollInterval: a.cfg.DedupInterval,
		Process: func(ctx context.Context) error {
			return a.runDedupOnce(ctx, engine)
		},
		OnError: func(err error) bool {
			if errors.Is(err, ErrUnknownDedupMode) {
				return false
			}

			a.logger.Warn().Err(err).Msg("dedup run failed")

			return true
		},
		Logger: a.logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn().Err(err).Msg("periodic dedup stopped")
	}
}

func (a *App) runDedupOnce(ctx context.Context, engine *dedup.Engine) error {
	var (
		stats *dedup.Stats
		err   error
	)

	switch strings.ToLower(a.cfg.DedupMode) {
	case "streaming":
		stats, err = engine.RunStreaming(ctx)
	case "strict":
		stats, err = engine.RunStrict(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDedupMode, a.cfg.DedupMode)
	}

	if err != nil {
		return fmt.Errorf("dedup run: %w", err)
	}

	a.logger.Info().
		Str("mode", a.cfg.DedupMode).
		Int("deleted", stats.Deleted).
		Int("survivors", stats.Inserted).
		Msg("dedup run finished")

	return nil
}

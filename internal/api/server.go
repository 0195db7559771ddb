// Package api serves the REST surface for the dashboard: auth,
// message queries, statistics and the admin plane.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/panwatch/panwatch/internal/auth"
	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/dedup"
	"github.com/panwatch/panwatch/internal/linkcheck"
	"github.com/panwatch/panwatch/internal/platform/config"
	db "github.com/panwatch/panwatch/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Database is the read/write surface the handlers need from storage.
type Database interface {
	FilteredMessages(ctx context.Context, f db.MessageFilter) (*db.MessagePage, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	TagStats(ctx context.Context, limit int) ([]db.TagCount, error)

	GetOverview(ctx context.Context) (*db.Overview, error)
	GetDailyTrend(ctx context.Context, days int) ([]db.DailyTrendPoint, error)
	GetDedupTrend(ctx context.Context, hours int) ([]db.DedupTrendPoint, error)
	GetNetdiskDistribution(ctx context.Context, hours int) ([]db.DistributionEntry, error)

	ListCredentials(ctx context.Context) ([]domain.Credential, error)
	AddCredential(ctx context.Context, apiID, apiHash string) (*domain.Credential, error)
	DeleteCredential(ctx context.Context, id int64) error

	ListChannels(ctx context.Context) ([]domain.Channel, error)
	AddChannel(ctx context.Context, username string) (*domain.Channel, error)
	UpdateChannel(ctx context.Context, id int64, username string) error
	DeleteChannel(ctx context.Context, id int64) error

	FixTags(ctx context.Context) (int, error)
	ClearCheckData(ctx context.Context) error
	ClearOldCheckData(ctx context.Context, days int) (int64, error)

	CheckHistory(ctx context.Context, limit int) ([]domain.LinkCheckStat, error)
	CheckResult(ctx context.Context, checkTime time.Time) (*domain.LinkCheckStat, []domain.LinkCheckDetail, error)
}

// Deduper runs the on-demand duplicate sweep behind the maintenance
// endpoint.
type Deduper interface {
	RunStrict(ctx context.Context) (*dedup.Stats, error)
}

// ChannelDiagnosis is one channel's probe outcome.
type ChannelDiagnosis struct {
	Username     string `json:"username"`
	Title        string `json:"title,omitempty"`
	ID           int64  `json:"id,omitempty"`
	Participants int    `json:"participants_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// MonitorTest reports a monitoring self-test.
type MonitorTest struct {
	Success         bool   `json:"success"`
	ChannelsTested  int    `json:"channels_tested"`
	MessageReceived bool   `json:"message_received"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Diagnoser probes Telegram channel reachability. It is nil when the
// process runs without a Telegram client.
type Diagnoser interface {
	DiagnoseChannels(ctx context.Context) (valid, invalid []ChannelDiagnosis, err error)
	TestMonitor(ctx context.Context) (*MonitorTest, error)
}

// Options wires the server's collaborators.
type Options struct {
	Config    config.APIConfig
	EnvFile   string
	Database  Database
	Users     *auth.Store
	Tokens    *auth.Tokens
	Checks    *linkcheck.Manager
	Deduper   Deduper
	Diagnoser Diagnoser
	Logger    zerolog.Logger
}

// Server is the REST API server.
type Server struct {
	cfg       config.APIConfig
	envFile   string
	database  Database
	users     *auth.Store
	tokens    *auth.Tokens
	checks    *linkcheck.Manager
	deduper   Deduper
	diagnoser Diagnoser
	logger    zerolog.Logger

	publicDashboard atomic.Bool
}

func New(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		envFile:   opts.EnvFile,
		database:  opts.Database,
		users:     opts.Users,
		tokens:    opts.Tokens,
		checks:    opts.Checks,
		deduper:   opts.Deduper,
		diagnoser: opts.Diagnoser,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
	}
	s.publicDashboard.Store(opts.Config.PublicDashboardEnabled)

	return s
}

// Router builds the gin engine with every route attached.
//
// Gin cannot mix static and param segments at one tree level, so the
// GET routes under /admin/users and /messages dispatch their static
// siblings (export-all, roles/available, tags/stats) through the param
// handlers.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.requestLogger())

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api.GET("/config/public", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"public_dashboard_enabled": s.publicDashboard.Load()})
	})

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", s.login)
		authGroup.GET("/me", s.requireAuth(), s.me)
		authGroup.POST("/logout", s.requireAuth(), s.logout)
		authGroup.POST("/me/password", s.requireAuth(), s.changeMyPassword)
	}

	messages := api.Group("/messages", s.optionalAuth())
	{
		messages.GET("", s.listMessages)
		messages.GET("/:id", s.getMessage)
		messages.GET("/:id/stats", s.tagStats) // /messages/tags/stats
	}

	stats := api.Group("/statistics", s.optionalAuth())
	{
		stats.GET("/overview", s.overview)
		stats.GET("/daily-trend", s.dailyTrend)
		stats.GET("/dedup-stats", s.dedupStats)
		stats.GET("/netdisk-distribution", s.netdiskDistribution)
	}

	admin := api.Group("/admin", s.requireAuth(), s.requireAdmin())
	{
		admin.GET("/credentials", s.listCredentials)
		admin.POST("/credentials", s.addCredential)
		admin.DELETE("/credentials/:id", s.deleteCredential)

		admin.GET("/channels", s.listChannels)
		admin.POST("/channels", s.addChannel)
		admin.PUT("/channels/:id", s.updateChannel)
		admin.DELETE("/channels/:id", s.deleteChannel)
		admin.POST("/channels/diagnose", s.diagnoseChannels)
		admin.POST("/channels/test-monitor", s.testMonitor)

		admin.GET("/config", s.getConfig)
		admin.PUT("/config", s.putConfig)

		users := admin.Group("/users")
		{
			users.GET("", s.listUsers)
			users.POST("", s.createUser)
			users.GET("/:username", s.getUser) // also export-all, export
			users.PUT("/:username", s.updateUser)
			users.DELETE("/:username", s.deleteUser)
			users.PUT("/:username/password", s.setUserPassword)
			users.PUT("/:username/username", s.renameUser)
			users.PUT("/:username/role", s.setUserRole)
			users.GET("/:username/available", s.availableRoles) // /users/roles/available
			users.POST("/bulk/random-create", s.bulkCreateUsers)
			users.POST("/bulk/delete", s.bulkDeleteUsers)
			users.POST("/bulk/reset-password", s.bulkResetPasswords)
		}

		admin.POST("/maintenance/fix-tags", s.fixTags)
		admin.POST("/maintenance/dedup-links", s.dedupLinks)
		admin.POST("/maintenance/clear-link-check-data", s.clearCheckData)
		admin.POST("/maintenance/clear-old-link-check-data", s.clearOldCheckData)

		admin.POST("/link-check/start", s.startCheck)
		admin.GET("/link-check/tasks", s.checkHistory)
		admin.GET("/link-check/tasks/:task_id", s.checkStatus)
		admin.GET("/link-check/tasks/:task_id/result", s.checkResult)
		admin.POST("/link-check/tasks/:task_id/cancel", s.cancelCheck)
	}

	return r
}

// Run serves the API until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("REST API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

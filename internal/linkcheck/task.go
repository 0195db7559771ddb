package linkcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/panwatch/panwatch/internal/core/domain"
)

// Safety caps for one validation task.
const (
	maxLinksPerTask      = 1000
	maxGlobalConcurrent  = 10
	fullHistoryMaxConcur = 3
)

// ErrTaskNotFound is returned for an unknown or already-evicted task id.
var ErrTaskNotFound = fmt.Errorf("task not found")

// Store is the storage surface a validation task needs.
type Store interface {
	MessagesWithLinksBetween(ctx context.Context, start, end time.Time) ([]domain.Message, error)
	SaveCheckRun(ctx context.Context, stat *domain.LinkCheckStat, details []domain.LinkCheckDetail) error
}

// TaskStatus is the in-memory view of a task, queryable while the
// process lives. Finalized runs are served from the stats table.
type TaskStatus struct {
	ID            string    `json:"task_id"`
	Status        string    `json:"status"`
	Period        string    `json:"period_desc"`
	Progress      int       `json:"progress"`
	TotalLinks    int       `json:"total_links"`
	CheckedLinks  int       `json:"checked_links"`
	ValidLinks    int       `json:"valid_links"`
	InvalidLinks  int       `json:"invalid_links"`
	Error         string    `json:"error,omitempty"`
	CheckTime     time.Time `json:"check_time,omitempty"`
	Duration      float64   `json:"duration,omitempty"`
	MaxConcurrent int       `json:"max_concurrent"`
}

type task struct {
	mu     sync.Mutex
	status TaskStatus
	cancel context.CancelFunc
}

func (t *task) update(fn func(*TaskStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

func (t *task) snapshot() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

// Manager owns the in-memory task table and runs validation tasks in
// the background.
type Manager struct {
	store  Store
	logger zerolog.Logger

	mu    sync.RWMutex
	tasks map[string]*task

	newValidator func() *Validator
}

func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "linkcheck_task").Logger(),
		tasks:  make(map[string]*task),
		newValidator: func() *Validator {
			return NewValidator(logger)
		},
	}
}

// Start validates the period, allocates a task id and launches the run
// in the background. The period must parse before a task exists at all.
func (m *Manager) Start(ctx context.Context, period string, maxConcurrent int) (string, error) {
	window, err := ParsePeriod(period, time.Now())
	if err != nil {
		return "", err
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	if window.FullHistory && maxConcurrent > fullHistoryMaxConcur {
		maxConcurrent = fullHistoryMaxConcur
	}

	id := uuid.NewString()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	t := &task{
		status: TaskStatus{
			ID:            id,
			Status:        domain.CheckStatusRunning,
			Period:        window.Desc,
			MaxConcurrent: maxConcurrent,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	go m.run(runCtx, t, window, maxConcurrent)

	return id, nil
}

// Status returns the in-memory state of a task.
func (m *Manager) Status(id string) (TaskStatus, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()

	if !ok {
		return TaskStatus{}, ErrTaskNotFound
	}

	return t.snapshot(), nil
}

// Cancel interrupts a running task. Accumulated results are persisted
// with status interrupted by the run goroutine.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()

	if !ok {
		return ErrTaskNotFound
	}

	t.cancel()

	return nil
}

func (m *Manager) run(ctx context.Context, t *task, window Window, maxConcurrent int) {
	defer t.cancel()

	messages, err := m.store.MessagesWithLinksBetween(ctx, window.Start, window.End)
	if err != nil {
		m.fail(t, fmt.Sprintf("加载消息失败: %v", err))
		return
	}

	var urls []string
	for i := range messages {
		urls = append(urls, messages[i].Links.URLs()...)
	}

	if len(urls) == 0 {
		t.update(func(s *TaskStatus) {
			s.Status = domain.CheckStatusCompleted
			s.Progress = 100
			s.Error = "没有找到需要检测的链接"
		})

		return
	}

	// Safety caps fail the task outright; no probes, no stats row.
	if len(urls) > maxLinksPerTask || maxConcurrent > maxGlobalConcurrent {
		m.fail(t, fmt.Sprintf("链接数量 (%d) 或并发数 (%d) 超过安全限制", len(urls), maxConcurrent))
		return
	}

	t.update(func(s *TaskStatus) {
		s.TotalLinks = len(urls)
	})

	m.logger.Info().
		Str("task_id", t.snapshot().ID).
		Str("period", window.Desc).
		Int("messages", len(messages)).
		Int("urls", len(urls)).
		Int("max_concurrent", maxConcurrent).
		Msg("validation task started")

	validator := m.newValidator()
	start := time.Now()
	total := len(urls)

	onResult := func(r Result) {
		t.update(func(s *TaskStatus) {
			s.CheckedLinks++

			if r.Valid {
				s.ValidLinks++
			} else {
				s.InvalidLinks++
			}

			s.Progress = s.CheckedLinks * 100 / total
		})
	}

	results := validator.CheckAll(ctx, urls, maxConcurrent, onResult)

	interrupted := ctx.Err() != nil
	duration := time.Since(start).Seconds()
	checkTime := time.Now()

	valid, invalid, perProvider := Summarize(results)

	status := domain.CheckStatusCompleted
	if interrupted {
		status = domain.CheckStatusInterrupted
	}

	stat := &domain.LinkCheckStat{
		CheckTime:     checkTime,
		TotalMessages: len(messages),
		TotalLinks:    total,
		ValidLinks:    valid,
		InvalidLinks:  invalid,
		NetdiskStats:  perProvider,
		CheckDuration: duration,
		Status:        status,
	}

	details := make([]domain.LinkCheckDetail, 0, len(results))
	for _, r := range results {
		details = append(details, domain.LinkCheckDetail{
			CheckTime:    checkTime,
			NetdiskType:  r.Provider,
			URL:          r.URL,
			IsValid:      r.Valid,
			ResponseTime: r.ResponseTime,
			ErrorReason:  r.Err,
			ActionTaken:  "none",
		})
	}

	// Persist with a fresh context so cancellation does not lose the
	// partial results it is supposed to record.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer saveCancel()

	if err := m.store.SaveCheckRun(saveCtx, stat, details); err != nil {
		m.logger.Error().Err(err).Msg("saving validation results failed")
		m.fail(t, fmt.Sprintf("保存检测结果失败: %v", err))

		return
	}

	t.update(func(s *TaskStatus) {
		s.Status = status
		// An interrupted run only got through the probes that finished.
		s.CheckedLinks = len(results)
		s.Progress = len(results) * 100 / total
		s.ValidLinks = valid
		s.InvalidLinks = invalid
		s.CheckTime = checkTime
		s.Duration = duration
	})

	m.logger.Info().
		Str("task_id", t.snapshot().ID).
		Str("status", status).
		Int("valid", valid).
		Int("invalid", invalid).
		Float64("duration_seconds", duration).
		Msg("validation task finished")
}

func (m *Manager) fail(t *task, reason string) {
	t.update(func(s *TaskStatus) {
		s.Status = domain.CheckStatusFailed
		s.Error = reason
	})

	m.logger.Warn().Str("task_id", t.snapshot().ID).Str("reason", reason).Msg("validation task failed")
}

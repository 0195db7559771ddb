package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/panwatch/panwatch/internal/core/domain"
)

// Window is how far apart two messages sharing a URL may be before the
// newer one wins outright instead of comparing richness.
const Window = 300 * time.Second

const streamBatchSize = 500

// Repository is the storage surface the engine needs.
type Repository interface {
	MessagesNewestFirst(ctx context.Context) ([]domain.Message, error)
	MessagesBatch(ctx context.Context, offset, limit int) ([]domain.Message, error)
	DeleteMessages(ctx context.Context, ids []int64) (int64, error)
	InsertDedupStat(ctx context.Context, runTime time.Time, inserted, deleted int) error
	PurgeOldDedupStats(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Stats summarizes one dedup run.
type Stats struct {
	RunTime  time.Time
	Inserted int
	Deleted  int
}

type Engine struct {
	database  Repository
	retention time.Duration
	logger    zerolog.Logger
}

func New(database Repository, retention time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		database:  database,
		retention: retention,
		logger:    logger.With().Str("component", "dedup").Logger(),
	}
}

// holder is the current survivor for a normalized URL.
type holder struct {
	id        int64
	timestamp time.Time
	urlCount  int
}

// RunStrict scans the whole table newest-first and resolves every URL
// collision. Two messages sharing a URL within the window keep the one
// carrying more URLs overall; outside the window the newer one stays.
func (e *Engine) RunStrict(ctx context.Context) (*Stats, error) {
	messages, err := e.database.MessagesNewestFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	holders := make(map[string]holder)
	doomed := make(map[int64]struct{})

	for i := range messages {
		m := &messages[i]
		count := m.Links.URLCount()

		for _, raw := range m.Links.URLs() {
			key := NormalizeURL(raw)
			if key == "" {
				continue
			}

			cur, ok := holders[key]
			if !ok {
				holders[key] = holder{id: m.ID, timestamp: m.Timestamp, urlCount: count}
				continue
			}

			if cur.id == m.ID {
				continue
			}

			// The scan is newest-first, so cur is never older than m.
			// Losing one collision deletes the whole message even when
			// it still holds other URLs.
			if cur.timestamp.Sub(m.Timestamp) < Window && count > cur.urlCount {
				doomed[cur.id] = struct{}{}
				holders[key] = holder{id: m.ID, timestamp: m.Timestamp, urlCount: count}

				continue
			}

			doomed[m.ID] = struct{}{}
		}
	}

	return e.finish(ctx, holders, doomed)
}

// RunStreaming walks the table in fixed-size batches newest-first. The
// first holder of a URL always wins, so memory stays bounded to the URL
// map regardless of table size.
func (e *Engine) RunStreaming(ctx context.Context) (*Stats, error) {
	holders := make(map[string]holder)
	doomed := make(map[int64]struct{})

	for offset := 0; ; offset += streamBatchSize {
		messages, err := e.database.MessagesBatch(ctx, offset, streamBatchSize)
		if err != nil {
			return nil, fmt.Errorf("load batch at %d: %w", offset, err)
		}

		if len(messages) == 0 {
			break
		}

		for i := range messages {
			m := &messages[i]
			keep := false

			for _, raw := range m.Links.URLs() {
				key := NormalizeURL(raw)
				if key == "" {
					continue
				}

				if _, ok := holders[key]; !ok {
					holders[key] = holder{id: m.ID, timestamp: m.Timestamp}
					keep = true
				}
			}

			if !keep && m.Links.URLCount() > 0 {
				doomed[m.ID] = struct{}{}
			}
		}

		if len(messages) < streamBatchSize {
			break
		}
	}

	return e.finish(ctx, holders, doomed)
}

func (e *Engine) finish(ctx context.Context, holders map[string]holder, doomed map[int64]struct{}) (*Stats, error) {
	ids := make([]int64, 0, len(doomed))
	for id := range doomed {
		ids = append(ids, id)
	}

	var deleted int64

	if len(ids) > 0 {
		var err error

		deleted, err = e.database.DeleteMessages(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("delete duplicates: %w", err)
		}
	}

	stats := &Stats{
		RunTime:  time.Now(),
		Inserted: len(holders),
		Deleted:  int(deleted),
	}

	if err := e.database.InsertDedupStat(ctx, stats.RunTime, stats.Inserted, stats.Deleted); err != nil {
		return nil, fmt.Errorf("record dedup stat: %w", err)
	}

	purged, err := e.database.PurgeOldDedupStats(ctx, e.retention)
	if err != nil {
		return nil, fmt.Errorf("purge dedup stats: %w", err)
	}

	e.logger.Info().
		Int("surviving_urls", stats.Inserted).
		Int("deleted_messages", stats.Deleted).
		Int64("purged_stat_rows", purged).
		Msg("dedup run finished")

	return stats, nil
}

// NormalizeURL is the collision key: whitespace trimmed, lowercased.
func NormalizeURL(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

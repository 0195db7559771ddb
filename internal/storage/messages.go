package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/platform/jsonutil"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const messageColumns = `id, timestamp, title, description, links, tags, source, channel, group_name, bot, netdisk_types, created_at`

// SaveMessage persists a parsed message. NetdiskTypes is derived from
// the links keys, sorted unique.
func (db *DB) SaveMessage(ctx context.Context, m *domain.Message) error {
	linksJSON, err := jsonutil.Marshal(m.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}

	types := make([]string, 0, len(m.Links))
	for provider := range m.Links {
		types = append(types, provider)
	}

	sort.Strings(types)

	typesJSON, err := jsonutil.Marshal(types)
	if err != nil {
		return fmt.Errorf("marshal netdisk types: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO messages (timestamp, title, description, links, tags, source, channel, group_name, bot, netdisk_types)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.Timestamp, m.Title, m.Description, linksJSON, m.Tags,
		m.Source, m.Channel, m.GroupName, m.Bot, typesJSON,
	); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	return nil
}

// GetMessage returns a single message by id.
func (db *DB) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	return m, nil
}

// MessagesNewestFirst loads every message ordered by timestamp
// descending. Used by the strict dedup pass.
func (db *DB) MessagesNewestFirst(ctx context.Context) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MessagesBatch returns one batch of messages ordered newest first,
// for the streaming dedup pass.
func (db *DB) MessagesBatch(ctx context.Context, offset, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		ORDER BY timestamp DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("load message batch: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MessagesWithLinksBetween selects messages in [start, end) carrying a
// non-null links column, for link validation runs.
func (db *DB) MessagesWithLinksBetween(ctx context.Context, start, end time.Time) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE timestamp >= $1 AND timestamp < $2 AND links IS NOT NULL
		ORDER BY timestamp DESC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("load messages with links: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// DeleteMessages removes the given message ids, returning the number
// of deleted rows.
func (db *DB) DeleteMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := db.Pool.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	return tag.RowsAffected(), nil
}

// FixTags rewrites legacy rows whose tags array holds a single
// stringly-typed list (e.g. "['a', 'b']") into a proper array.
// Rows already holding a plain sequence are untouched.
func (db *DB) FixTags(ctx context.Context) (int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tags[1] FROM messages
		WHERE array_length(tags, 1) = 1 AND tags[1] LIKE '[%]'`)
	if err != nil {
		return 0, fmt.Errorf("scan legacy tags: %w", err)
	}
	defer rows.Close()

	type fix struct {
		id   int64
		tags []string
	}

	var fixes []fix

	for rows.Next() {
		var (
			id  int64
			raw string
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return 0, fmt.Errorf("scan legacy tag row: %w", err)
		}

		fixes = append(fixes, fix{id: id, tags: parseLegacyTags(raw)})
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate legacy tags: %w", err)
	}

	for _, f := range fixes {
		if _, err := db.Pool.Exec(ctx, `UPDATE messages SET tags = $1 WHERE id = $2`, f.tags, f.id); err != nil {
			return 0, fmt.Errorf("fix tags for message %d: %w", f.id, err)
		}
	}

	return len(fixes), nil
}

// parseLegacyTags splits a bracketed, quoted list into its elements.
func parseLegacyTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")

	var tags []string

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `'"`)

		if part != "" {
			tags = append(tags, part)
		}
	}

	return tags
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		messages = append(messages, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m         domain.Message
		linksJSON []byte
		typesJSON []byte
	)

	if err := row.Scan(
		&m.ID, &m.Timestamp, &m.Title, &m.Description, &linksJSON, &m.Tags,
		&m.Source, &m.Channel, &m.GroupName, &m.Bot, &typesJSON, &m.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(linksJSON) > 0 {
		if err := jsonutil.Unmarshal(linksJSON, &m.Links); err != nil {
			return nil, fmt.Errorf("unmarshal links: %w", err)
		}
	}

	if len(typesJSON) > 0 {
		if err := jsonutil.Unmarshal(typesJSON, &m.NetdiskTypes); err != nil {
			return nil, fmt.Errorf("unmarshal netdisk types: %w", err)
		}
	}

	return &m, nil
}

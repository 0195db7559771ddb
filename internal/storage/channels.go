package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/panwatch/panwatch/internal/core/domain"
)

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("duplicate")

// ListChannels returns every monitored channel.
func (db *DB) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, username, last_message_id, created_at FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel

	for rows.Next() {
		var c domain.Channel

		if err := rows.Scan(&c.ID, &c.Username, &c.LastMessageID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}

		channels = append(channels, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}

// AddChannel inserts a channel, reporting ErrDuplicate when the
// username is already monitored.
func (db *DB) AddChannel(ctx context.Context, username string) (*domain.Channel, error) {
	var exists bool

	if err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM channels WHERE username = $1)`, username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check channel exists: %w", err)
	}

	if exists {
		return nil, ErrDuplicate
	}

	var c domain.Channel

	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO channels (username) VALUES ($1)
		RETURNING id, username, last_message_id, created_at`, username).
		Scan(&c.ID, &c.Username, &c.LastMessageID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("add channel: %w", err)
	}

	return &c, nil
}

// EnsureChannel inserts the username when missing, for the default
// channel list from the environment.
func (db *DB) EnsureChannel(ctx context.Context, username string) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO channels (username) VALUES ($1)
		ON CONFLICT (username) DO NOTHING`, username); err != nil {
		return fmt.Errorf("ensure channel: %w", err)
	}

	return nil
}

// UpdateChannel renames a channel.
func (db *DB) UpdateChannel(ctx context.Context, id int64, username string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE channels SET username = $1 WHERE id = $2`, username, id)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteChannel removes a channel by id.
func (db *DB) DeleteChannel(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetChannelOffset persists the newest seen message id for a channel,
// so polling resumes where it left off.
func (db *DB) SetChannelOffset(ctx context.Context, username string, lastMessageID int64) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE channels SET last_message_id = $1 WHERE username = $2`, lastMessageID, username); err != nil {
		return fmt.Errorf("set channel offset: %w", err)
	}

	return nil
}

// GetChannelOffset reads the stored polling offset for a channel.
func (db *DB) GetChannelOffset(ctx context.Context, username string) (int64, error) {
	var offset int64

	err := db.Pool.QueryRow(ctx, `
		SELECT last_message_id FROM channels WHERE username = $1`, username).Scan(&offset)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get channel offset: %w", err)
	}

	return offset, nil
}

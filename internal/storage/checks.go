package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/platform/jsonutil"
)

const checkDetailLimit = 1000

// SaveCheckRun persists a validation run's stats row plus its detail
// rows in a single transaction. Writes happen only at run end or on
// interruption; no transaction is held across the probe loop.
func (db *DB) SaveCheckRun(ctx context.Context, stat *domain.LinkCheckStat, details []domain.LinkCheckDetail) error {
	statsJSON, err := jsonutil.Marshal(stat.NetdiskStats)
	if err != nil {
		return fmt.Errorf("marshal netdisk stats: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin check run tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO link_check_stats
			(check_time, total_messages, total_links, valid_links, invalid_links,
			 deleted_messages, updated_messages, netdisk_stats, check_duration, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		stat.CheckTime, stat.TotalMessages, stat.TotalLinks, stat.ValidLinks, stat.InvalidLinks,
		stat.DeletedMessages, stat.UpdatedMessages, statsJSON, stat.CheckDuration, stat.Status,
	); err != nil {
		return fmt.Errorf("insert check stats: %w", err)
	}

	for i := range details {
		d := &details[i]

		if _, err := tx.Exec(ctx, `
			INSERT INTO link_check_details
				(check_time, message_id, netdisk_type, url, is_valid, response_time, error_reason, action_taken)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.CheckTime, d.MessageID, d.NetdiskType, d.URL, d.IsValid, d.ResponseTime, d.ErrorReason, d.ActionTaken,
		); err != nil {
			return fmt.Errorf("insert check detail: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit check run: %w", err)
	}

	return nil
}

// CheckHistory returns the most recent run stats, newest first.
func (db *DB) CheckHistory(ctx context.Context, limit int) ([]domain.LinkCheckStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, check_time, total_messages, total_links, valid_links, invalid_links,
		       deleted_messages, updated_messages, netdisk_stats, check_duration, status, created_at
		FROM link_check_stats
		ORDER BY check_time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("check history: %w", err)
	}
	defer rows.Close()

	var stats []domain.LinkCheckStat

	for rows.Next() {
		stat, err := scanCheckStat(rows)
		if err != nil {
			return nil, err
		}

		stats = append(stats, *stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check history: %w", err)
	}

	return stats, nil
}

// CheckResult fetches one run's stats row by check time plus its
// detail rows, capped at 1000.
func (db *DB) CheckResult(ctx context.Context, checkTime time.Time) (*domain.LinkCheckStat, []domain.LinkCheckDetail, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, check_time, total_messages, total_links, valid_links, invalid_links,
		       deleted_messages, updated_messages, netdisk_stats, check_duration, status, created_at
		FROM link_check_stats
		WHERE check_time = $1`, checkTime)

	stat, err := scanCheckStat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}

	if err != nil {
		return nil, nil, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, check_time, message_id, netdisk_type, url, is_valid, response_time, error_reason, action_taken, created_at
		FROM link_check_details
		WHERE check_time = $1
		LIMIT $2`, checkTime, checkDetailLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("check details: %w", err)
	}
	defer rows.Close()

	var details []domain.LinkCheckDetail

	for rows.Next() {
		var d domain.LinkCheckDetail

		if err := rows.Scan(&d.ID, &d.CheckTime, &d.MessageID, &d.NetdiskType, &d.URL,
			&d.IsValid, &d.ResponseTime, &d.ErrorReason, &d.ActionTaken, &d.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan check detail: %w", err)
		}

		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate check details: %w", err)
	}

	return stat, details, nil
}

// ClearCheckData removes every stats and detail row.
func (db *DB) ClearCheckData(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM link_check_details`); err != nil {
		return fmt.Errorf("clear check details: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, `DELETE FROM link_check_stats`); err != nil {
		return fmt.Errorf("clear check stats: %w", err)
	}

	return nil
}

// ClearOldCheckData removes stats and detail rows older than N days.
func (db *DB) ClearOldCheckData(ctx context.Context, days int) (int64, error) {
	if _, err := db.Pool.Exec(ctx, `
		DELETE FROM link_check_details WHERE check_time < NOW() - INTERVAL '1 day' * $1`, days); err != nil {
		return 0, fmt.Errorf("clear old check details: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM link_check_stats WHERE check_time < NOW() - INTERVAL '1 day' * $1`, days)
	if err != nil {
		return 0, fmt.Errorf("clear old check stats: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanCheckStat(row pgx.Row) (*domain.LinkCheckStat, error) {
	var (
		stat      domain.LinkCheckStat
		statsJSON []byte
	)

	if err := row.Scan(&stat.ID, &stat.CheckTime, &stat.TotalMessages, &stat.TotalLinks,
		&stat.ValidLinks, &stat.InvalidLinks, &stat.DeletedMessages, &stat.UpdatedMessages,
		&statsJSON, &stat.CheckDuration, &stat.Status, &stat.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}

		return nil, fmt.Errorf("scan check stat: %w", err)
	}

	if len(statsJSON) > 0 {
		if err := jsonutil.Unmarshal(statsJSON, &stat.NetdiskStats); err != nil {
			return nil, fmt.Errorf("unmarshal netdisk stats: %w", err)
		}
	}

	return &stat, nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/panwatch/panwatch/internal/core/domain"
)

// FirstCredential returns the first stored API credential pair, or
// ErrNotFound when none exists.
func (db *DB) FirstCredential(ctx context.Context) (*domain.Credential, error) {
	var c domain.Credential

	err := db.Pool.QueryRow(ctx, `
		SELECT id, api_id, api_hash FROM credentials ORDER BY id LIMIT 1`).
		Scan(&c.ID, &c.APIID, &c.APIHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("first credential: %w", err)
	}

	return &c, nil
}

// ListCredentials returns every stored credential pair.
func (db *DB) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, api_id, api_hash FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential

	for rows.Next() {
		var c domain.Credential

		if err := rows.Scan(&c.ID, &c.APIID, &c.APIHash); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}

		creds = append(creds, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// AddCredential inserts a credential pair, reporting ErrDuplicate for
// an api_id already present.
func (db *DB) AddCredential(ctx context.Context, apiID, apiHash string) (*domain.Credential, error) {
	var exists bool

	if err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM credentials WHERE api_id = $1)`, apiID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check credential exists: %w", err)
	}

	if exists {
		return nil, ErrDuplicate
	}

	var c domain.Credential

	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO credentials (api_id, api_hash) VALUES ($1, $2)
		RETURNING id, api_id, api_hash`, apiID, apiHash).
		Scan(&c.ID, &c.APIID, &c.APIHash); err != nil {
		return nil, fmt.Errorf("add credential: %w", err)
	}

	return &c, nil
}

// DeleteCredential removes a credential by id.
func (db *DB) DeleteCredential(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

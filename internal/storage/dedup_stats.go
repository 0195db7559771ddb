package db

import (
	"context"
	"fmt"
	"time"
)

// InsertDedupStat records one dedup run. Inserted carries the size of
// the surviving URL map, matching historical rows.
func (db *DB) InsertDedupStat(ctx context.Context, runTime time.Time, inserted, deleted int) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO dedup_stats (run_time, inserted, deleted)
		VALUES ($1, $2, $3)`, runTime, inserted, deleted); err != nil {
		return fmt.Errorf("insert dedup stat: %w", err)
	}

	return nil
}

// PurgeOldDedupStats removes run rows older than the retention window.
func (db *DB) PurgeOldDedupStats(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM dedup_stats WHERE run_time < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge dedup stats: %w", err)
	}

	return tag.RowsAffected(), nil
}

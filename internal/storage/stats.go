package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/panwatch/panwatch/internal/netdisk"
)

// Overview is the headline statistics block.
type Overview struct {
	TotalMessages int64 `json:"total_messages"`
	TodayMessages int64 `json:"today_messages"`
	TotalLinks    int64 `json:"total_links"`
}

// GetOverview aggregates totals in SQL; the messages table is never
// materialized in memory.
func (db *DB) GetOverview(ctx context.Context) (*Overview, error) {
	var o Overview

	if err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE timestamp >= date_trunc('day', NOW())),
			COALESCE(SUM(
				CASE WHEN links IS NOT NULL AND jsonb_typeof(links::jsonb) = 'object'
					THEN (SELECT COUNT(*) FROM jsonb_object_keys(links::jsonb))
					ELSE 0
				END
			), 0)
		FROM messages`).Scan(&o.TotalMessages, &o.TodayMessages, &o.TotalLinks); err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	return &o, nil
}

// DailyTrendPoint is one calendar day of the trend aggregate.
// Date uses the MM-DD display format.
type DailyTrendPoint struct {
	Date     string `json:"date"`
	Messages int64  `json:"messages"`
	Links    int64  `json:"links"`
}

// GetDailyTrend returns per-day message and link counts for the last
// N days, zero-filling days without data, ascending by date.
func (db *DB) GetDailyTrend(ctx context.Context, days int) ([]DailyTrendPoint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT
			DATE(timestamp) AS day,
			COUNT(*) AS message_count,
			COALESCE(SUM(
				CASE WHEN links IS NOT NULL AND jsonb_typeof(links::jsonb) = 'object'
					THEN (SELECT COUNT(*) FROM jsonb_object_keys(links::jsonb))
					ELSE 0
				END
			), 0) AS link_count
		FROM messages
		WHERE timestamp >= NOW() - INTERVAL '1 day' * $1
		GROUP BY day
		ORDER BY day`, days)
	if err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]DailyTrendPoint)

	for rows.Next() {
		var (
			day      time.Time
			messages int64
			links    int64
		)

		if err := rows.Scan(&day, &messages, &links); err != nil {
			return nil, fmt.Errorf("scan daily trend: %w", err)
		}

		key := day.Format("01-02")
		byDay[key] = DailyTrendPoint{Date: key, Messages: messages, Links: links}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily trend: %w", err)
	}

	points := make([]DailyTrendPoint, 0, days)
	now := time.Now()

	for i := days - 1; i >= 0; i-- {
		key := now.AddDate(0, 0, -i).Format("01-02")

		if p, ok := byDay[key]; ok {
			points = append(points, p)
		} else {
			points = append(points, DailyTrendPoint{Date: key})
		}
	}

	return points, nil
}

// DedupTrendPoint is one hour of deleted-row sums.
type DedupTrendPoint struct {
	Hour    time.Time `json:"hour"`
	Deleted int64     `json:"deleted_count"`
}

// GetDedupTrend sums deleted rows per hour over the last N hours,
// zero-filling hours without runs.
func (db *DB) GetDedupTrend(ctx context.Context, hours int) ([]DedupTrendPoint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT date_trunc('hour', run_time) AS hour, SUM(deleted) AS del_cnt
		FROM dedup_stats
		WHERE run_time >= NOW() - INTERVAL '1 hour' * $1
		GROUP BY hour
		ORDER BY hour`, hours)
	if err != nil {
		return nil, fmt.Errorf("dedup trend: %w", err)
	}
	defer rows.Close()

	byHour := make(map[time.Time]int64)

	for rows.Next() {
		var (
			hour    time.Time
			deleted int64
		)

		if err := rows.Scan(&hour, &deleted); err != nil {
			return nil, fmt.Errorf("scan dedup trend: %w", err)
		}

		byHour[hour] = deleted
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup trend: %w", err)
	}

	points := make([]DedupTrendPoint, 0, hours)
	base := time.Now().Truncate(time.Hour)

	for i := hours - 1; i >= 0; i-- {
		hour := base.Add(-time.Duration(i) * time.Hour)
		points = append(points, DedupTrendPoint{Hour: hour, Deleted: byHour[hour]})
	}

	return points, nil
}

// DistributionEntry is one brand slice of the provider distribution.
type DistributionEntry struct {
	NetdiskName string  `json:"netdisk_name"`
	LinkCount   int64   `json:"link_count"`
	Percentage  float64 `json:"percentage"`
}

// GetNetdiskDistribution unnests netdisk_types over the last N hours,
// collapses display names to short brands and computes percentages.
func (db *DB) GetNetdiskDistribution(ctx context.Context, hours int) ([]DistributionEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT netdisk_name, COUNT(*) AS link_count
		FROM (
			SELECT jsonb_array_elements_text(netdisk_types) AS netdisk_name
			FROM messages
			WHERE timestamp >= NOW() - INTERVAL '1 hour' * $1
			  AND netdisk_types IS NOT NULL
		) t
		GROUP BY netdisk_name
		ORDER BY link_count DESC`, hours)
	if err != nil {
		return nil, fmt.Errorf("netdisk distribution: %w", err)
	}
	defer rows.Close()

	brandCounts := make(map[string]int64)

	var total int64

	for rows.Next() {
		var (
			name  string
			count int64
		)

		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan netdisk distribution: %w", err)
		}

		brandCounts[netdisk.ShortBrand(name)] += count
		total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate netdisk distribution: %w", err)
	}

	entries := make([]DistributionEntry, 0, len(brandCounts))

	for brand, count := range brandCounts {
		pct := 0.0
		if total > 0 {
			pct = roundTo4(float64(count) / float64(total))
		}

		entries = append(entries, DistributionEntry{NetdiskName: brand, LinkCount: count, Percentage: pct})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LinkCount != entries[j].LinkCount {
			return entries[i].LinkCount > entries[j].LinkCount
		}

		return entries[i].NetdiskName < entries[j].NetdiskName
	})

	return entries, nil
}

func roundTo4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}

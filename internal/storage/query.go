package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/platform/jsonutil"
)

// Time range filter values accepted by the message list.
const (
	TimeRangeHour  = "最近1小时"
	TimeRangeDay   = "最近24小时"
	TimeRangeWeek  = "最近7天"
	TimeRangeMonth = "最近30天"
	TimeRangeAll   = "全部"
)

var timeRangeIntervals = map[string]string{
	TimeRangeHour:  "1 hour",
	TimeRangeDay:   "24 hours",
	TimeRangeWeek:  "7 days",
	TimeRangeMonth: "30 days",
}

// MessageFilter describes the message list filters.
type MessageFilter struct {
	Search           string
	TimeRange        string
	Tags             []string
	Netdisks         []string
	MinContentLength int
	HasLinksOnly     bool
	Page             int
	PageSize         int
}

// MessagePage is a page of filtered messages with pagination totals.
type MessagePage struct {
	Messages []domain.Message
	Total    int64
	Page     int
	MaxPage  int
}

// FilteredMessages runs the filtered, paginated read path. It fetches
// page_size+1 rows to detect a following page and only issues the
// count query when one exists; a page beyond the last silently resets
// to page one.
func (db *DB) FilteredMessages(ctx context.Context, f MessageFilter) (*MessagePage, error) {
	where, args := buildMessageWhere(f)

	if f.Page < 1 {
		f.Page = 1
	}

	if f.PageSize < 1 {
		f.PageSize = 100
	}

	offset := (f.Page - 1) * f.PageSize

	messages, err := db.queryMessagePage(ctx, where, args, offset, f.PageSize+1)
	if err != nil {
		return nil, err
	}

	var total int64

	hasMore := len(messages) > f.PageSize
	if hasMore {
		messages = messages[:f.PageSize]

		if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM messages`+where, args...).Scan(&total); err != nil {
			return nil, fmt.Errorf("count filtered messages: %w", err)
		}
	} else {
		total = int64(offset + len(messages))
	}

	maxPage := 1
	if total > 0 {
		maxPage = int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	}

	page := f.Page
	if page > maxPage && maxPage > 0 {
		page = 1

		messages, err = db.queryMessagePage(ctx, where, args, 0, f.PageSize)
		if err != nil {
			return nil, err
		}
	}

	return &MessagePage{Messages: messages, Total: total, Page: page, MaxPage: maxPage}, nil
}

func (db *DB) queryMessagePage(ctx context.Context, where string, args []any, offset, limit int) ([]domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages%s ORDER BY timestamp DESC OFFSET %d LIMIT %d`,
		messageColumns, where, offset, limit)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filtered messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// buildMessageWhere translates the filter into a WHERE clause with
// positional args.
func buildMessageWhere(f MessageFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if terms := strings.Fields(f.Search); len(terms) > 0 {
		var parts []string

		for _, term := range terms {
			like := arg("%" + term + "%")
			exact := arg(term)
			parts = append(parts,
				fmt.Sprintf("title ILIKE %s", like),
				fmt.Sprintf("description ILIKE %s", like),
				fmt.Sprintf("%s = ANY(tags)", exact),
			)
		}

		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	if interval, ok := timeRangeIntervals[f.TimeRange]; ok {
		clauses = append(clauses, fmt.Sprintf("timestamp >= NOW() - INTERVAL '%s'", interval))
	}

	if len(f.Tags) > 0 {
		var parts []string

		for _, tag := range f.Tags {
			parts = append(parts, fmt.Sprintf("%s = ANY(tags)", arg(tag)))
		}

		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	if len(f.Netdisks) > 0 {
		var parts []string

		for _, nd := range f.Netdisks {
			contained, err := jsonutil.Marshal([]string{nd})
			if err != nil {
				continue
			}

			parts = append(parts, fmt.Sprintf("netdisk_types @> %s::jsonb", arg(string(contained))))
		}

		if len(parts) > 0 {
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
		}
	}

	if f.MinContentLength > 0 {
		clauses = append(clauses, fmt.Sprintf("(length(title) + length(description)) >= %s", arg(f.MinContentLength)))
	}

	if f.HasLinksOnly {
		clauses = append(clauses, "links IS NOT NULL")
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// TagCount is one row of the tag statistics aggregate.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// TagStats aggregates tag usage in SQL, most used first.
func (db *DB) TagStats(ctx context.Context, limit int) ([]TagCount, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT unnest(tags) AS tag, COUNT(*) AS count
		FROM messages
		WHERE tags IS NOT NULL AND array_length(tags, 1) > 0
		GROUP BY tag
		ORDER BY count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("tag stats: %w", err)
	}
	defer rows.Close()

	var stats []TagCount

	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag stat: %w", err)
		}

		stats = append(stats, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag stats: %w", err)
	}

	return stats, nil
}

package linkcheck

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Window is a resolved check period. FullHistory means no time filter
// at all, which triggers the stricter concurrency cap.
type Window struct {
	Start       time.Time
	End         time.Time
	Desc        string
	FullHistory bool
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParsePeriod resolves a period token into a half-open [start, end)
// window. Keywords are rolling windows ending at now; date forms cover
// whole calendar units.
func ParsePeriod(spec string, now time.Time) (Window, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))

	switch spec {
	case "all":
		return Window{
			Start:       time.Time{},
			End:         now.AddDate(0, 0, 1),
			Desc:        "全部历史",
			FullHistory: true,
		}, nil
	case "today":
		return Window{Start: startOfDay(now), End: now, Desc: "今天"}, nil
	case "yesterday":
		return Window{Start: startOfDay(now.AddDate(0, 0, -1)), End: startOfDay(now), Desc: "昨天"}, nil
	case "week":
		return Window{Start: startOfDay(now.AddDate(0, 0, -7)), End: now, Desc: "最近7天"}, nil
	case "month":
		return Window{Start: startOfDay(now.AddDate(0, 0, -30)), End: now, Desc: "最近30天"}, nil
	case "year":
		return Window{Start: startOfDay(now.AddDate(0, 0, -365)), End: now, Desc: "最近365天"}, nil
	}

	if strings.Contains(spec, ":") {
		parts := strings.SplitN(spec, ":", 2)

		start, err := parseDay(strings.TrimSpace(parts[0]), now)
		if err != nil {
			return Window{}, fmt.Errorf("日期范围格式错误: %w", err)
		}

		end, err := parseDay(strings.TrimSpace(parts[1]), now)
		if err != nil {
			return Window{}, fmt.Errorf("日期范围格式错误: %w", err)
		}

		return Window{
			Start: start,
			End:   end.AddDate(0, 0, 1),
			Desc:  fmt.Sprintf("%s 至 %s", parts[0], parts[1]),
		}, nil
	}

	switch {
	case len(spec) == 10 && strings.Contains(spec, "-"):
		start, err := parseDay(spec, now)
		if err != nil {
			return Window{}, err
		}

		return Window{Start: start, End: start.AddDate(0, 0, 1), Desc: spec}, nil

	case len(spec) == 7 && strings.Contains(spec, "-"):
		start, err := time.ParseInLocation("2006-01", spec, now.Location())
		if err != nil {
			return Window{}, fmt.Errorf("无法解析时间段: %s", spec)
		}

		return Window{Start: start, End: start.AddDate(0, 1, 0), Desc: spec}, nil

	case len(spec) == 4:
		year, err := strconv.Atoi(spec)
		if err != nil {
			return Window{}, fmt.Errorf("无法解析时间段: %s", spec)
		}

		start := time.Date(year, 1, 1, 0, 0, 0, 0, now.Location())

		return Window{Start: start, End: start.AddDate(1, 0, 0), Desc: spec}, nil
	}

	return Window{}, fmt.Errorf("无法解析时间段: %s", spec)
}

func parseDay(s string, now time.Time) (time.Time, error) {
	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("无法解析日期 %s: %w", s, err)
	}

	return startOfDay(t), nil
}

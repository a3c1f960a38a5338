// Package analytics summarizes posting outcomes and hook performance.
package analytics

import (
	"sort"
	"time"

	"quill/internal/model"
)

// Summary aggregates post outcomes over a date range.
type Summary struct {
	Days        int
	Posted      int
	Scheduled   int
	Failed      int
	SuccessRate float64 // posted / (posted + failed), 0 when nothing attempted
}

// Summarize folds daily rollups into a single summary.
func Summarize(days []model.DailyStats) Summary {
	s := Summary{Days: len(days)}
	for _, d := range days {
		s.Posted += d.Posted
		s.Scheduled += d.Scheduled
		s.Failed += d.Failed
	}
	if attempts := s.Posted + s.Failed; attempts > 0 {
		s.SuccessRate = float64(s.Posted) / float64(attempts)
	}
	return s
}

// SortedDays returns the rollups in chronological order.
func SortedDays(days []model.DailyStats) []model.DailyStats {
	out := make([]model.DailyStats, len(days))
	copy(out, days)
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// DayKey truncates t to its UTC day.
func DayKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// HourlyHistogram buckets posts by the UTC hour they went out. Posts
// without a posted time are skipped.
func HourlyHistogram(posts []model.Post) [24]int {
	var out [24]int
	for _, p := range posts {
		if p.PostedAt == nil {
			continue
		}
		out[p.PostedAt.UTC().Hour()]++
	}
	return out
}

// PeakHour returns the busiest hour of a histogram and its count.
func PeakHour(h [24]int) (hour, count int) {
	for i, n := range h {
		if n > count {
			hour, count = i, n
		}
	}
	return hour, count
}

// TopHooks ranks templates by average engagement rate, ties broken by
// success rate. Templates with no measured usage sort last.
func TopHooks(templates []model.HookTemplate, limit int) []model.HookTemplate {
	out := make([]model.HookTemplate, len(templates))
	copy(out, templates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgEngagementRate != out[j].AvgEngagementRate {
			return out[i].AvgEngagementRate > out[j].AvgEngagementRate
		}
		return out[i].SuccessRate > out[j].SuccessRate
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

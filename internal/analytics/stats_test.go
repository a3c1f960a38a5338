package analytics

import (
	"testing"
	"time"

	"quill/internal/model"
)

func TestSummarize(t *testing.T) {
	days := []model.DailyStats{
		{Day: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Posted: 4, Scheduled: 2, Failed: 1},
		{Day: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Posted: 2, Failed: 1},
	}
	s := Summarize(days)
	if s.Posted != 6 || s.Scheduled != 2 || s.Failed != 2 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.SuccessRate != 0.75 {
		t.Fatalf("expected success rate 0.75, got %v", s.SuccessRate)
	}
	if empty := Summarize(nil); empty.SuccessRate != 0 {
		t.Fatal("empty summary should have zero success rate")
	}
}

func TestSortedDays(t *testing.T) {
	a := model.DailyStats{Day: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	b := model.DailyStats{Day: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	got := SortedDays([]model.DailyStats{a, b})
	if !got[0].Day.Before(got[1].Day) {
		t.Fatalf("not chronological: %v", got)
	}
}

func TestTopHooksRanking(t *testing.T) {
	hooks := []model.HookTemplate{
		{ID: 1, AvgEngagementRate: 2.0},
		{ID: 2, AvgEngagementRate: 8.5},
		{ID: 3, AvgEngagementRate: 8.5, SuccessRate: 1.0},
		{ID: 4},
	}
	top := TopHooks(hooks, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2, got %d", len(top))
	}
	if top[0].ID != 3 || top[1].ID != 2 {
		t.Fatalf("unexpected ranking %v %v", top[0].ID, top[1].ID)
	}
}

func TestHourlyHistogram(t *testing.T) {
	at := func(h int) *time.Time {
		t := time.Date(2026, 3, 1, h, 30, 0, 0, time.UTC)
		return &t
	}
	posts := []model.Post{
		{PostedAt: at(9)},
		{PostedAt: at(9)},
		{PostedAt: at(17)},
		{}, // never posted
	}
	h := HourlyHistogram(posts)
	if h[9] != 2 || h[17] != 1 {
		t.Fatalf("unexpected buckets: %v", h)
	}
	hour, count := PeakHour(h)
	if hour != 9 || count != 2 {
		t.Fatalf("peak = %d/%d", hour, count)
	}
}

func TestDayKey(t *testing.T) {
	got := DayKey(time.Date(2026, 3, 1, 17, 45, 12, 0, time.FixedZone("x", 3600)))
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

package hook

import (
	"context"
	"testing"

	"quill/internal/model"
)

func TestTrackUsageRequiresTemplate(t *testing.T) {
	e := NewEngine(&memRepo{})
	if _, err := e.TrackUsage(context.Background(), 99, "post-1", "content"); err == nil {
		t.Fatal("expected not-found for unknown hook")
	}
}

func TestUpdatePerformanceRecomputesRollup(t *testing.T) {
	repo := &memRepo{}
	ctx := context.Background()
	hookID, _ := repo.InsertTemplate(ctx, &model.HookTemplate{PatternType: model.PatternShock, IsActive: true})
	e := NewEngine(repo)

	u1, err := e.TrackUsage(ctx, hookID, "post-1", "adapted one")
	if err != nil {
		t.Fatalf("TrackUsage: %v", err)
	}
	if err := e.UpdatePerformance(ctx, u1.ID, PerformanceUpdate{Views: 1000, Likes: 80, Retweets: 20, Replies: 10}); err != nil {
		t.Fatalf("UpdatePerformance: %v", err)
	}

	got, _ := repo.GetUsage(ctx, u1.ID)
	if got.EngagementRate == nil || *got.EngagementRate != 11.0 {
		t.Fatalf("expected engagement rate 11.0, got %v", got.EngagementRate)
	}
	if got.PerformanceScore != 10 {
		t.Fatalf("expected capped score 10, got %v", got.PerformanceScore)
	}

	tmpl, _ := repo.GetTemplate(ctx, hookID)
	if tmpl.AvgEngagementRate != 11.0 {
		t.Fatalf("rollup avg = %v, want 11.0", tmpl.AvgEngagementRate)
	}
	if tmpl.SuccessRate != 1.0 {
		t.Fatalf("rollup success = %v, want 1.0", tmpl.SuccessRate)
	}

	// a second, weaker usage drags the mean down and halves the success rate
	u2, _ := e.TrackUsage(ctx, hookID, "post-2", "adapted two")
	if err := e.UpdatePerformance(ctx, u2.ID, PerformanceUpdate{Views: 1000, Likes: 8, Retweets: 1, Replies: 1}); err != nil {
		t.Fatalf("UpdatePerformance: %v", err)
	}
	tmpl, _ = repo.GetTemplate(ctx, hookID)
	if tmpl.AvgEngagementRate != 6.0 {
		t.Fatalf("rollup avg = %v, want 6.0", tmpl.AvgEngagementRate)
	}
	if tmpl.SuccessRate != 0.5 {
		t.Fatalf("rollup success = %v, want 0.5", tmpl.SuccessRate)
	}
}

func TestUpdatePerformanceZeroViews(t *testing.T) {
	repo := &memRepo{}
	ctx := context.Background()
	hookID, _ := repo.InsertTemplate(ctx, &model.HookTemplate{PatternType: model.PatternCustom, IsActive: true})
	e := NewEngine(repo)
	u, _ := e.TrackUsage(ctx, hookID, "post-1", "content")
	if err := e.UpdatePerformance(ctx, u.ID, PerformanceUpdate{Likes: 5}); err != nil {
		t.Fatalf("UpdatePerformance: %v", err)
	}
	got, _ := repo.GetUsage(ctx, u.ID)
	if got.EngagementRate == nil || *got.EngagementRate != 0 {
		t.Fatalf("zero views must yield rate 0, got %v", got.EngagementRate)
	}
}

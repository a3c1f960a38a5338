package hook

import (
	"context"
	"fmt"
	"time"

	"quill/internal/errs"
	"quill/internal/logging"
	"quill/internal/model"
)

// TrackUsage records that hookID was applied to postID with adaptedContent.
// A post has at most one recorded usage; the repository enforces uniqueness.
func (e *Engine) TrackUsage(ctx context.Context, hookID int64, postID, adaptedContent string) (*model.HookUsage, error) {
	h, err := e.repo.GetTemplate(ctx, hookID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, &errs.NotFoundError{Kind: "hook", ID: fmt.Sprint(hookID)}
	}
	u := &model.HookUsage{
		HookID:         hookID,
		PostID:         postID,
		AdaptedContent: adaptedContent,
		UsedAt:         time.Now().UTC(),
	}
	id, err := e.repo.InsertUsage(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	logging.Info("hook_usage_tracked", map[string]any{"hook_id": hookID, "post_id": postID})
	return u, nil
}

// PerformanceUpdate carries observed metrics for one usage.
type PerformanceUpdate struct {
	Views    int
	Likes    int
	Retweets int
	Replies  int
}

// UpdatePerformance stores observed metrics on a usage and recomputes the
// owning template's rollups from every historical usage. Full recomputation
// is deliberate: the operation is rare and correctness wins over speed.
func (e *Engine) UpdatePerformance(ctx context.Context, usageID int64, p PerformanceUpdate) error {
	u, err := e.repo.GetUsage(ctx, usageID)
	if err != nil {
		return err
	}
	if u == nil {
		return &errs.NotFoundError{Kind: "hook usage", ID: fmt.Sprint(usageID)}
	}
	u.Views = p.Views
	u.Likes = p.Likes
	u.Retweets = p.Retweets
	u.Replies = p.Replies
	rate := model.EngagementRate(p.Views, p.Likes, p.Retweets, p.Replies)
	u.EngagementRate = &rate
	u.PerformanceScore = model.PerformanceScore(rate)
	if err := e.repo.UpdateUsage(ctx, u); err != nil {
		return err
	}
	if err := e.recomputeTemplateStats(ctx, u.HookID); err != nil {
		return err
	}
	logging.Info("hook_performance_updated", map[string]any{"usage_id": usageID, "engagement_rate": rate})
	return nil
}

// recomputeTemplateStats derives avgEngagementRate and successRate over all
// usages that have a measured rate. Success means rate > 5.
func (e *Engine) recomputeTemplateStats(ctx context.Context, hookID int64) error {
	usages, err := e.repo.ListUsagesByHook(ctx, hookID)
	if err != nil {
		return err
	}
	var sum float64
	var measured, successful int
	for _, u := range usages {
		if u.EngagementRate == nil {
			continue
		}
		measured++
		sum += *u.EngagementRate
		if *u.EngagementRate > 5 {
			successful++
		}
	}
	if measured == 0 {
		return nil
	}
	avg := sum / float64(measured)
	success := float64(successful) / float64(measured)
	return e.repo.UpdateTemplateStats(ctx, hookID, avg, success)
}

// Performance summarizes a template's observed results.
type Performance struct {
	HookID          int64
	PatternType     model.PatternType
	TotalUses       int
	AvgPerformance  float64
	BestPerformance float64
	AvgEngagement   float64
}

// GetPerformance reports usage statistics for one template.
func (e *Engine) GetPerformance(ctx context.Context, hookID int64) (Performance, error) {
	h, err := e.repo.GetTemplate(ctx, hookID)
	if err != nil {
		return Performance{}, err
	}
	if h == nil {
		return Performance{}, &errs.NotFoundError{Kind: "hook", ID: fmt.Sprint(hookID)}
	}
	usages, err := e.repo.ListUsagesByHook(ctx, hookID)
	if err != nil {
		return Performance{}, err
	}
	perf := Performance{HookID: hookID, PatternType: h.PatternType, TotalUses: len(usages)}
	var scoreSum, rateSum float64
	var scored int
	for _, u := range usages {
		if u.EngagementRate == nil {
			continue
		}
		scored++
		scoreSum += u.PerformanceScore
		rateSum += *u.EngagementRate
		if u.PerformanceScore > perf.BestPerformance {
			perf.BestPerformance = u.PerformanceScore
		}
	}
	if scored > 0 {
		perf.AvgPerformance = scoreSum / float64(scored)
		perf.AvgEngagement = rateSum / float64(scored)
	}
	return perf, nil
}

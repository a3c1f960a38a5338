// Package schedule decides when scheduled posts go out and drives the
// dispatch loop that publishes them.
package schedule

import (
	"context"
	"errors"
	"time"

	"quill/internal/errs"
	"quill/internal/logging"
	"quill/internal/model"
)

// Publisher publishes a single post through the lifecycle machine.
type Publisher interface {
	Publish(ctx context.Context, id string, force bool) (*model.Post, error)
}

// DueLister returns scheduled posts whose time has arrived.
type DueLister interface {
	DueScheduled(ctx context.Context, now time.Time) ([]model.Post, error)
}

// timeNow is swapped in tests.
var timeNow = time.Now

// NextWindow returns the next posting time at or after now that avoids
// quiet hours.
func NextWindow(now time.Time, quietHours []int) time.Time {
	isQuiet := func(h int) bool {
		for _, q := range quietHours {
			if q == h {
				return true
			}
		}
		return false
	}
	for i := 0; i < 48; i++ { // search up to 2 days ahead
		cand := now.Add(time.Duration(i) * time.Hour)
		if !isQuiet(cand.Hour()) {
			return cand
		}
	}
	return now.Add(15 * time.Minute)
}

// RunDispatchOnce publishes every due scheduled post. Quota denials stop
// the sweep early since every later post would hit the same ceiling;
// other failures are recorded per post and the sweep continues.
func RunDispatchOnce(ctx context.Context, store DueLister, pub Publisher, quietHours []int) (published int, err error) {
	now := timeNow().UTC()
	if next := NextWindow(now, quietHours); next.Hour() != now.Hour() {
		logging.Info("dispatch_quiet_hours", map[string]any{"resume_at": next.Format(time.RFC3339)})
		return 0, nil
	}
	due, err := store.DueScheduled(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, p := range due {
		if _, err := pub.Publish(ctx, p.ID, false); err != nil {
			var quota *errs.QuotaExceededError
			if errors.As(err, &quota) {
				logging.Warn("dispatch_quota_exhausted", map[string]any{"post_id": p.ID, "wait": quota.Wait.String()})
				return published, nil
			}
			logging.Error("dispatch_publish_failed", map[string]any{"post_id": p.ID, "error": err.Error()})
			continue
		}
		published++
	}
	if published > 0 {
		logging.Info("dispatch_complete", map[string]any{"published": published, "due": len(due)})
	}
	return published, nil
}

// RunDispatchLoop runs RunDispatchOnce on a ticker until ctx is cancelled.
func RunDispatchLoop(ctx context.Context, store DueLister, pub Publisher, quietHours []int, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	if _, err := RunDispatchOnce(ctx, store, pub, quietHours); err != nil {
		logging.Error("dispatch_once_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("dispatch_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if _, err := RunDispatchOnce(ctx, store, pub, quietHours); err != nil {
				logging.Error("dispatch_once_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

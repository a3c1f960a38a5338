// Package app wires the record store, rate gate, hook engine, lifecycle
// machine, and platform client into one application object the CLI calls.
package app

import (
	"context"
	"time"

	"quill/internal/analytics"
	"quill/internal/config"
	"quill/internal/errs"
	"quill/internal/hook"
	"quill/internal/metrics"
	"quill/internal/model"
	"quill/internal/platform"
	"quill/internal/publish"
	"quill/internal/rategate"
	"quill/internal/schedule"
	"quill/internal/store/sqlitestore"
)

// Rate gate operation keys consumed outside the lifecycle machine.
const (
	OpMediaUpload   = "media_upload"
	OpProfileLookup = "profile_lookup"
)

// App owns the long-lived components.
type App struct {
	Cfg     config.Config
	DB      *sqlitestore.DB
	Gate    *rategate.Gate
	Engine  *hook.Engine
	Machine *publish.Machine
	Client  *platform.Client
}

// platformAdapter narrows the client to the machine's publish interface.
type platformAdapter struct{ c *platform.Client }

func (a platformAdapter) PostContent(ctx context.Context, text string, mediaHandles []string) (publish.Receipt, error) {
	r, err := a.c.PostContent(ctx, text, mediaHandles)
	return publish.Receipt{ID: r.ID, URL: r.URL}, err
}

// New opens storage and wires every component from cfg.
func New(cfg config.Config) (*App, error) {
	db, err := sqlitestore.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	policies := make(map[string]rategate.Policy, len(cfg.RateLimits.Operations))
	for op, p := range cfg.RateLimits.Operations {
		policies[op] = rategate.Policy{MaxCalls: p.MaxCalls, Window: p.Window}
	}
	gate := rategate.New(policies)
	client := platform.NewClient(platform.Credentials{
		BearerToken:    cfg.Credentials.BearerToken,
		ConsumerKey:    cfg.Credentials.ConsumerKey,
		ConsumerSecret: cfg.Credentials.ConsumerSecret,
		AccessToken:    cfg.Credentials.AccessToken,
		AccessSecret:   cfg.Credentials.AccessSecret,
	})
	return &App{
		Cfg:     cfg,
		DB:      db,
		Gate:    gate,
		Engine:  hook.NewEngine(db),
		Machine: publish.NewMachine(db, platformAdapter{client}, gate, cfg.Publish.Timeout),
		Client:  client,
	}, nil
}

func (a *App) Close() error { return a.DB.Close() }

// CreatePost creates a post, optionally running the content through a hook
// template first. When a hook is applied its usage is tracked against the
// new post so performance can be recorded later.
func (a *App) CreatePost(ctx context.Context, content string, scheduledAt *time.Time, hookID int64, vars map[string]string) (*model.Post, error) {
	if hookID > 0 {
		adapted, err := a.Engine.Adapt(ctx, hookID, content, vars)
		if err != nil {
			return nil, err
		}
		content = adapted
	}
	p, err := a.Machine.Create(ctx, content, scheduledAt, hookID)
	if err != nil {
		return nil, err
	}
	if hookID > 0 {
		if _, err := a.Engine.TrackUsage(ctx, hookID, p.ID, content); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AttachMedia uploads a local file and attaches its handle to the post.
// The upload itself is an admitted operation; a denial leaves both the
// platform and the post untouched.
func (a *App) AttachMedia(ctx context.Context, postID, path, altText string) (*model.Post, error) {
	if !a.Gate.Admit(OpMediaUpload) {
		metrics.IncQuotaDenial(OpMediaUpload)
		return nil, &errs.QuotaExceededError{Op: OpMediaUpload, Wait: a.Gate.WaitTime(OpMediaUpload)}
	}
	handle, err := a.Client.UploadMedia(ctx, path, altText)
	if err != nil {
		return nil, err
	}
	return a.Machine.AttachMedia(ctx, postID, model.MediaRef{Handle: handle, AltText: altText})
}

// Profile fetches the authenticated account, gated by the lookup quota.
func (a *App) Profile(ctx context.Context) (platform.Profile, error) {
	if !a.Gate.Admit(OpProfileLookup) {
		metrics.IncQuotaDenial(OpProfileLookup)
		return platform.Profile{}, &errs.QuotaExceededError{Op: OpProfileLookup, Wait: a.Gate.WaitTime(OpProfileLookup)}
	}
	return a.Client.GetProfile(ctx)
}

// Quota reports remaining budget per configured operation.
func (a *App) Quota() []rategate.OpStatus { return a.Gate.Status() }

// Stats summarizes the last n days of posting outcomes plus the
// best-performing hooks.
type Stats struct {
	Summary analytics.Summary
	Daily   []model.DailyStats
	Hourly  [24]int
	Top     []model.HookTemplate
}

func (a *App) Stats(ctx context.Context, days, topHooks int) (Stats, error) {
	end := time.Now().UTC()
	start := analytics.DayKey(end.AddDate(0, 0, -days+1))
	daily, err := a.DB.LoadDailyStats(ctx, start, end)
	if err != nil {
		return Stats{}, err
	}
	daily = analytics.SortedDays(daily)
	posted, err := a.DB.ListPostsByStatus(ctx, model.StatusPosted, 0)
	if err != nil {
		return Stats{}, err
	}
	hooks, err := a.Engine.ListHooks(ctx, hook.TemplateFilter{ActiveOnly: true})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Summary: analytics.Summarize(daily),
		Daily:   daily,
		Hourly:  analytics.HourlyHistogram(posted),
		Top:     analytics.TopHooks(hooks, topHooks),
	}, nil
}

// DispatchOnce sweeps due scheduled posts a single time.
func (a *App) DispatchOnce(ctx context.Context) (int, error) {
	return schedule.RunDispatchOnce(ctx, a.DB, a.Machine, a.Cfg.Dispatch.QuietHours)
}

// DispatchLoop runs the dispatcher until ctx is cancelled.
func (a *App) DispatchLoop(ctx context.Context) error {
	return schedule.RunDispatchLoop(ctx, a.DB, a.Machine, a.Cfg.Dispatch.QuietHours, a.Cfg.Dispatch.Interval)
}

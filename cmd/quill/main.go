package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quill/internal/analytics"
	"quill/internal/app"
	"quill/internal/cmdlog"
	"quill/internal/config"
	"quill/internal/hook"
	"quill/internal/metrics"
	"quill/internal/model"
	"quill/internal/theme"
	"quill/internal/util"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "create":
		cmdCreate()
	case "list":
		cmdList()
	case "show":
		cmdShow()
	case "edit":
		cmdEdit()
	case "schedule":
		cmdSchedule()
	case "review":
		cmdReview()
	case "approve":
		cmdApprove()
	case "publish":
		cmdPublish()
	case "delete":
		cmdDelete()
	case "cancel":
		cmdCancel()
	case "media":
		cmdMedia()
	case "hooks":
		cmdHooks()
	case "quota":
		cmdQuota()
	case "stats":
		cmdStats()
	case "dispatch":
		cmdDispatch()
	case "whoami":
		cmdWhoami()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: quill <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./quill.yaml")
	fmt.Println("  create      Create a draft or scheduled post")
	fmt.Println("  list        List posts by status")
	fmt.Println("  show        Show one post")
	fmt.Println("  edit        Replace a post's content")
	fmt.Println("  schedule    Schedule a draft for a future time")
	fmt.Println("  review      Send a draft to the approval queue")
	fmt.Println("  approve     Approve a post for publishing")
	fmt.Println("  publish     Publish a post now")
	fmt.Println("  delete      Delete a post (-force for published posts)")
	fmt.Println("  cancel      Cancel a pending post, keeping it for audit")
	fmt.Println("  media       Upload a file and attach it to a post")
	fmt.Println("  hooks       Manage hook templates (import|list|suggest|analyze|adapt|performance|record)")
	fmt.Println("  quota       Show remaining call budget per operation")
	fmt.Println("  stats       Posting outcomes and top hooks")
	fmt.Println("  dispatch    Publish due scheduled posts (-loop to keep running)")
	fmt.Println("  whoami      Show the authenticated account")
}

func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadApp(cfgPath string) *app.App {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fail(err)
	}
	if !cfg.HasWriteCredentials() {
		fmt.Println("warning: missing OAuth credentials; publish and media calls will fail")
	}
	a, err := app.New(cfg)
	if err != nil {
		fail(err)
	}
	return a
}

func printPost(p *model.Post) {
	fmt.Printf("%s  [%s]  %s\n", p.ID, p.Status, util.Truncate(util.NormalizeWhitespace(p.Content), 60))
	if p.ScheduledAt != nil {
		fmt.Printf("  scheduled: %s\n", p.ScheduledAt.Format(time.RFC3339))
	}
	if p.PlatformURL != "" {
		fmt.Printf("  url: %s\n", p.PlatformURL)
	}
	if p.ErrorMessage != "" {
		fmt.Printf("  error: %s (retries: %d)\n", p.ErrorMessage, p.RetryCount)
	}
}

func parseVars(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return out
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./quill.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fail(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdCreate() {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	content := fs.String("content", "", "post content")
	at := fs.String("at", "", "schedule time, RFC3339 (optional)")
	hookID := fs.Int64("hook", 0, "hook template id to apply (optional)")
	vars := fs.String("vars", "", "hook variables, k=v comma-separated")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("create", func() error {
		var scheduledAt *time.Time
		if *at != "" {
			t, err := time.Parse(time.RFC3339, *at)
			if err != nil {
				fail(err)
			}
			scheduledAt = &t
		}
		p, err := a.CreatePost(context.Background(), *content, scheduledAt, *hookID, parseVars(*vars))
		if err != nil {
			fail(err)
		}
		printPost(p)
		return nil
	})
}

func cmdList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	status := fs.String("status", "draft", "post status to list")
	limit := fs.Int("limit", 20, "max posts")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	posts, err := a.Machine.ListByStatus(context.Background(), model.PostStatus(*status), *limit)
	if err != nil {
		fail(err)
	}
	for i := range posts {
		printPost(&posts[i])
	}
	fmt.Printf("%d post(s)\n", len(posts))
}

func cmdShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	p, err := a.Machine.Get(context.Background(), *id)
	if err != nil {
		fail(err)
	}
	printPost(p)
	fmt.Println("---")
	fmt.Println(p.Content)
	for _, m := range p.MediaRefs {
		fmt.Printf("media: %s %q\n", m.Handle, m.AltText)
	}
}

func cmdEdit() {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	content := fs.String("content", "", "new content")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("edit", func() error {
		p, err := a.Machine.UpdateContent(context.Background(), *id, *content)
		if err != nil {
			fail(err)
		}
		printPost(p)
		return nil
	})
}

func cmdSchedule() {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	at := fs.String("at", "", "schedule time, RFC3339")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("schedule", func() error {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fail(err)
		}
		p, err := a.Machine.Schedule(context.Background(), *id, t)
		if err != nil {
			fail(err)
		}
		printPost(p)
		return nil
	})
}

func cmdReview() {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	p, err := a.Machine.RequestApproval(context.Background(), *id)
	if err != nil {
		fail(err)
	}
	printPost(p)
}

func cmdApprove() {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	p, err := a.Machine.Approve(context.Background(), *id)
	if err != nil {
		fail(err)
	}
	printPost(p)
}

func cmdPublish() {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	force := fs.Bool("force", false, "publish from draft or pending approval")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("publish", func() error {
		p, err := a.Machine.Publish(context.Background(), *id, *force)
		if err != nil {
			fail(err)
		}
		printPost(p)
		return nil
	})
}

func cmdDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	force := fs.Bool("force", false, "delete even if published")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	if err := a.Machine.Delete(context.Background(), *id, *force); err != nil {
		fail(err)
	}
	fmt.Println("deleted:", *id)
}

func cmdCancel() {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	p, err := a.Machine.Cancel(context.Background(), *id)
	if err != nil {
		fail(err)
	}
	printPost(p)
}

func cmdMedia() {
	fs := flag.NewFlagSet("media", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.String("id", "", "post id")
	file := fs.String("file", "", "path to image or video")
	alt := fs.String("alt", "", "alt text for accessibility")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("media", func() error {
		p, err := a.AttachMedia(context.Background(), *id, *file, *alt)
		if err != nil {
			fail(err)
		}
		printPost(p)
		return nil
	})
}

func cmdHooks() {
	sub := ""
	if len(os.Args) > 2 {
		sub = os.Args[2]
	}
	switch sub {
	case "import":
		cmdHooksImport()
	case "list":
		cmdHooksList()
	case "suggest":
		cmdHooksSuggest()
	case "analyze":
		cmdHooksAnalyze()
	case "adapt":
		cmdHooksAdapt()
	case "performance":
		cmdHooksPerformance()
	case "record":
		cmdHooksRecord()
	default:
		fmt.Println("Usage: quill hooks <import|list|suggest|analyze|adapt|performance|record> [options]")
	}
}

func cmdHooksImport() {
	fs := flag.NewFlagSet("hooks import", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	file := fs.String("file", "", "hooks file")
	format := fs.String("format", "json", "json or txt")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("hooks_import", func() error {
		n, err := a.Engine.ImportHooks(context.Background(), *file, *format)
		if err != nil {
			fail(err)
		}
		fmt.Printf("imported %d hook(s)\n", n)
		return nil
	})
}

func cmdHooksList() {
	fs := flag.NewFlagSet("hooks list", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	pattern := fs.String("pattern", "", "filter by pattern type")
	limit := fs.Int("limit", 20, "max hooks")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	f := hook.TemplateFilter{ActiveOnly: true, Limit: *limit}
	if *pattern != "" {
		pt, err := model.ParsePatternType(*pattern)
		if err != nil {
			fail(err)
		}
		f.PatternType = pt
	}
	hooks, err := a.Engine.ListHooks(context.Background(), f)
	if err != nil {
		fail(err)
	}
	for _, h := range hooks {
		fmt.Printf("#%d [%s] %s  avg=%.1f%% success=%.0f%%\n", h.ID, h.PatternType, h.Name, h.AvgEngagementRate, h.SuccessRate*100)
	}
}

func cmdHooksSuggest() {
	fs := flag.NewFlagSet("hooks suggest", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	topic := fs.String("topic", "", "topic to match against tags and use cases")
	pattern := fs.String("pattern", "", "restrict to one pattern type")
	count := fs.Int("count", 5, "max suggestions")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	var pt model.PatternType
	if *pattern != "" {
		var err error
		pt, err = model.ParsePatternType(*pattern)
		if err != nil {
			fail(err)
		}
	}
	hooks, err := a.Engine.SuggestHooks(context.Background(), *topic, pt, *count)
	if err != nil {
		fail(err)
	}
	for _, h := range hooks {
		fmt.Printf("#%d [%s] %s\n    %s\n", h.ID, h.PatternType, h.Name, h.HookText)
	}
}

func cmdHooksAnalyze() {
	fs := flag.NewFlagSet("hooks analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	content := fs.String("content", "", "content to analyze")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	res, err := a.Engine.AnalyzeText(context.Background(), *content)
	if err != nil {
		fail(err)
	}
	fmt.Printf("pattern: %s\nstrength: %.1f/10\nhas hook: %v\n", res.DetectedPattern, res.HookStrength, res.HasHook)
	for _, s := range res.Improvements {
		fmt.Println("  -", s)
	}
	for _, h := range res.Suggestions {
		fmt.Printf("  try #%d [%s]: %s\n", h.ID, h.PatternType, h.Example)
	}
}

func cmdHooksAdapt() {
	fs := flag.NewFlagSet("hooks adapt", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.Int64("hook", 0, "hook template id")
	content := fs.String("content", "", "body content to prepend the hook to")
	vars := fs.String("vars", "", "template variables, k=v comma separated")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	out, err := a.Engine.Adapt(context.Background(), *id, *content, parseVars(*vars))
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func cmdHooksPerformance() {
	fs := flag.NewFlagSet("hooks performance", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	id := fs.Int64("hook", 0, "hook template id")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	perf, err := a.Engine.GetPerformance(context.Background(), *id)
	if err != nil {
		fail(err)
	}
	fmt.Printf("hook #%d [%s]: uses=%d avg_score=%.1f best=%.1f avg_engagement=%.1f%%\n",
		perf.HookID, perf.PatternType, perf.TotalUses, perf.AvgPerformance, perf.BestPerformance, perf.AvgEngagement)
}

func cmdHooksRecord() {
	fs := flag.NewFlagSet("hooks record", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	usageID := fs.Int64("usage", 0, "usage id")
	views := fs.Int("views", 0, "view count")
	likes := fs.Int("likes", 0, "like count")
	retweets := fs.Int("retweets", 0, "retweet count")
	replies := fs.Int("replies", 0, "reply count")
	_ = fs.Parse(os.Args[3:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("hooks_record", func() error {
		err := a.Engine.UpdatePerformance(context.Background(), *usageID, hook.PerformanceUpdate{
			Views: *views, Likes: *likes, Retweets: *retweets, Replies: *replies,
		})
		if err != nil {
			fail(err)
		}
		fmt.Println("performance recorded")
		return nil
	})
}

func cmdQuota() {
	fs := flag.NewFlagSet("quota", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	for _, s := range a.Quota() {
		fmt.Printf("%-16s %d/%d used, window %s", s.Op, s.Used, s.MaxCalls, s.Window)
		if !s.CanCall {
			fmt.Printf("  (retry in %s)", s.Wait.Round(time.Second))
		}
		fmt.Println()
	}
}

func cmdStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	days := fs.Int("days", 7, "days to summarize")
	top := fs.Int("top", 3, "top hooks to show")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	s, err := a.Stats(context.Background(), *days, *top)
	if err != nil {
		fail(err)
	}
	fmt.Printf("last %d day(s): posted=%d scheduled=%d failed=%d success=%.0f%%\n",
		*days, s.Summary.Posted, s.Summary.Scheduled, s.Summary.Failed, s.Summary.SuccessRate*100)
	for _, d := range s.Daily {
		fmt.Printf("  %s  posted=%d scheduled=%d failed=%d\n", d.Day.Format("2006-01-02"), d.Posted, d.Scheduled, d.Failed)
	}
	if hour, count := analytics.PeakHour(s.Hourly); count > 0 {
		fmt.Printf("peak posting hour: %02d:00 UTC (%d posts)\n", hour, count)
	}
	if len(s.Top) > 0 {
		fmt.Println("top hooks:")
		for _, h := range s.Top {
			fmt.Printf("  #%d [%s] %s avg=%.1f%%\n", h.ID, h.PatternType, h.Name, h.AvgEngagementRate)
		}
	}
}

func cmdDispatch() {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	loop := fs.Bool("loop", false, "keep running on the configured interval")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	_ = cmdlog.Run("dispatch", func() error {
		ctx := context.Background()
		if *loop {
			metrics.StartServer(a.Cfg.Metrics.Addr)
			return a.DispatchLoop(ctx)
		}
		n, err := a.DispatchOnce(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("published %d post(s)\n", n)
		return nil
	})
}

func cmdWhoami() {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	cfgPath := fs.String("config", "./quill.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a := loadApp(*cfgPath)
	defer a.Close()
	p, err := a.Profile(context.Background())
	if err != nil {
		fail(err)
	}
	fmt.Printf("@%s (%s)\nfollowers=%d following=%d posts=%d\n",
		p.Username, p.Name, p.FollowersCount, p.FollowingCount, p.TweetCount)
}

// Package sqlitestore is the sqlite-backed record store for posts, hook
// templates, hook usages, and daily stats.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"quill/internal/hook"
	"quill/internal/model"
)

// DB wraps the sqlite database. It implements publish.Store and hook.Repository.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// pooled connections would each see a distinct empty database
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS posts (
	  id TEXT PRIMARY KEY,
	  content TEXT NOT NULL,
	  status TEXT NOT NULL,
	  scheduled_at INTEGER,
	  posted_at INTEGER,
	  platform_id TEXT,
	  platform_url TEXT,
	  error_message TEXT,
	  retry_count INTEGER NOT NULL DEFAULT 0,
	  hook_id INTEGER NOT NULL DEFAULT 0,
	  media TEXT,
	  created_at INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
	CREATE INDEX IF NOT EXISTS idx_posts_scheduled ON posts(scheduled_at);
	CREATE TABLE IF NOT EXISTS hook_templates (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  pattern_type TEXT NOT NULL,
	  name TEXT,
	  hook_text TEXT NOT NULL,
	  example_text TEXT,
	  tags TEXT,
	  use_cases TEXT,
	  min_views INTEGER NOT NULL DEFAULT 0,
	  avg_engagement_rate REAL NOT NULL DEFAULT 0,
	  success_rate REAL NOT NULL DEFAULT 0,
	  is_active INTEGER NOT NULL DEFAULT 1,
	  source TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hooks_pattern ON hook_templates(pattern_type);
	CREATE TABLE IF NOT EXISTS hook_usage (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  hook_id INTEGER NOT NULL,
	  post_id TEXT NOT NULL UNIQUE,
	  adapted_content TEXT,
	  views INTEGER NOT NULL DEFAULT 0,
	  likes INTEGER NOT NULL DEFAULT 0,
	  retweets INTEGER NOT NULL DEFAULT 0,
	  replies INTEGER NOT NULL DEFAULT 0,
	  engagement_rate REAL,
	  performance_score REAL NOT NULL DEFAULT 0,
	  used_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_hook ON hook_usage(hook_id);
	CREATE TABLE IF NOT EXISTS daily_stats (
	  day TEXT PRIMARY KEY,
	  posted INTEGER NOT NULL DEFAULT 0,
	  scheduled INTEGER NOT NULL DEFAULT 0,
	  failed INTEGER NOT NULL DEFAULT 0
	);
	`)
	return err
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// InsertPost stores a new post row.
func (d *DB) InsertPost(ctx context.Context, p *model.Post) error {
	media, _ := json.Marshal(p.MediaRefs)
	_, err := d.sql.ExecContext(ctx, `INSERT INTO posts(id, content, status, scheduled_at, posted_at, platform_id, platform_url, error_message, retry_count, hook_id, media, created_at, updated_at)
	 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Content, string(p.Status), nullUnix(p.ScheduledAt), nullUnix(p.PostedAt),
		p.PlatformID, p.PlatformURL, p.ErrorMessage, p.RetryCount, p.HookID, string(media),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	return err
}

func scanPost(scan func(dest ...any) error) (*model.Post, error) {
	var p model.Post
	var status, media string
	var scheduledAt, postedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(&p.ID, &p.Content, &status, &scheduledAt, &postedAt, &p.PlatformID, &p.PlatformURL, &p.ErrorMessage, &p.RetryCount, &p.HookID, &media, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PostStatus(status)
	p.ScheduledAt = unixPtr(scheduledAt)
	p.PostedAt = unixPtr(postedAt)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if media != "" {
		_ = json.Unmarshal([]byte(media), &p.MediaRefs)
	}
	return &p, nil
}

const postCols = `id, content, status, scheduled_at, posted_at, platform_id, platform_url, error_message, retry_count, hook_id, media, created_at, updated_at`

// GetPost returns the post or nil when absent.
func (d *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+postCols+` FROM posts WHERE id=?`, id)
	p, err := scanPost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UpdatePost overwrites every mutable column.
func (d *DB) UpdatePost(ctx context.Context, p *model.Post) error {
	media, _ := json.Marshal(p.MediaRefs)
	_, err := d.sql.ExecContext(ctx, `UPDATE posts SET content=?, status=?, scheduled_at=?, posted_at=?, platform_id=?, platform_url=?, error_message=?, retry_count=?, hook_id=?, media=?, updated_at=? WHERE id=?`,
		p.Content, string(p.Status), nullUnix(p.ScheduledAt), nullUnix(p.PostedAt),
		p.PlatformID, p.PlatformURL, p.ErrorMessage, p.RetryCount, p.HookID, string(media),
		p.UpdatedAt.Unix(), p.ID)
	return err
}

// DeletePost removes a post and its usage row, if any.
func (d *DB) DeletePost(ctx context.Context, id string) error {
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM hook_usage WHERE post_id=?`, id); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM posts WHERE id=?`, id)
	return err
}

// ListPostsByStatus returns posts in one state, scheduled posts first.
func (d *DB) ListPostsByStatus(ctx context.Context, status model.PostStatus, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT `+postCols+` FROM posts WHERE status=? ORDER BY scheduled_at IS NULL, scheduled_at, created_at DESC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// DueScheduled returns scheduled posts whose time has arrived, oldest first.
func (d *DB) DueScheduled(ctx context.Context, now time.Time) ([]model.Post, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT `+postCols+` FROM posts WHERE status=? AND scheduled_at IS NOT NULL AND scheduled_at<=? ORDER BY scheduled_at`, string(model.StatusScheduled), now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]model.Post, error) {
	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// BumpDailyStats increments counters for the UTC day of t.
func (d *DB) BumpDailyStats(ctx context.Context, t time.Time, posted, scheduled, failed int) error {
	day := t.UTC().Format("2006-01-02")
	_, err := d.sql.ExecContext(ctx, `INSERT INTO daily_stats(day, posted, scheduled, failed) VALUES(?,?,?,?)
	 ON CONFLICT(day) DO UPDATE SET posted=posted+excluded.posted, scheduled=scheduled+excluded.scheduled, failed=failed+excluded.failed`,
		day, posted, scheduled, failed)
	return err
}

// LoadDailyStats returns stats for days in [start, end], oldest first.
func (d *DB) LoadDailyStats(ctx context.Context, start, end time.Time) ([]model.DailyStats, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT day, posted, scheduled, failed FROM daily_stats WHERE day>=? AND day<=? ORDER BY day`,
		start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DailyStats
	for rows.Next() {
		var day string
		var s model.DailyStats
		if err := rows.Scan(&day, &s.Posted, &s.Scheduled, &s.Failed); err != nil {
			return nil, err
		}
		s.Day, _ = time.Parse("2006-01-02", day)
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertTemplate stores a hook template and returns its id.
func (d *DB) InsertTemplate(ctx context.Context, t *model.HookTemplate) (int64, error) {
	tags, _ := json.Marshal(t.Tags)
	useCases, _ := json.Marshal(t.UseCases)
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO hook_templates(pattern_type, name, hook_text, example_text, tags, use_cases, min_views, avg_engagement_rate, success_rate, is_active, source, created_at)
	 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(t.PatternType), t.Name, t.HookText, t.ExampleText, string(tags), string(useCases),
		t.MinObservedViews, t.AvgEngagementRate, t.SuccessRate, boolInt(t.IsActive), t.Source, created.Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const templateCols = `id, pattern_type, name, hook_text, example_text, tags, use_cases, min_views, avg_engagement_rate, success_rate, is_active, source, created_at`

func scanTemplate(scan func(dest ...any) error) (*model.HookTemplate, error) {
	var t model.HookTemplate
	var pattern, tags, useCases string
	var active int
	var created int64
	if err := scan(&t.ID, &pattern, &t.Name, &t.HookText, &t.ExampleText, &tags, &useCases, &t.MinObservedViews, &t.AvgEngagementRate, &t.SuccessRate, &active, &t.Source, &created); err != nil {
		return nil, err
	}
	t.PatternType = model.PatternType(pattern)
	t.IsActive = active != 0
	t.CreatedAt = time.Unix(created, 0).UTC()
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &t.Tags)
	}
	if useCases != "" {
		_ = json.Unmarshal([]byte(useCases), &t.UseCases)
	}
	return &t, nil
}

// GetTemplate returns the template or nil when absent.
func (d *DB) GetTemplate(ctx context.Context, id int64) (*model.HookTemplate, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+templateCols+` FROM hook_templates WHERE id=?`, id)
	t, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTemplates applies the filter in SQL where possible; tag intersection
// is applied in memory over the JSON column.
func (d *DB) ListTemplates(ctx context.Context, f hook.TemplateFilter) ([]model.HookTemplate, error) {
	var where []string
	var args []any
	if f.ActiveOnly {
		where = append(where, "is_active=1")
	}
	if f.PatternType != "" {
		where = append(where, "pattern_type=?")
		args = append(args, string(f.PatternType))
	}
	if f.MinViews > 0 {
		where = append(where, "min_views>=?")
		args = append(args, f.MinViews)
	}
	q := `SELECT ` + templateCols + ` FROM hook_templates`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OrderByEngagement {
		q += " ORDER BY avg_engagement_rate DESC, id"
	} else {
		q += " ORDER BY id"
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HookTemplate
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		if len(f.Tags) > 0 && !hasAnyTag(t.Tags, f.Tags) {
			continue
		}
		out = append(out, *t)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, rows.Err()
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// UpdateTemplateStats writes the recomputed rollups.
func (d *DB) UpdateTemplateStats(ctx context.Context, id int64, avgEngagementRate, successRate float64) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE hook_templates SET avg_engagement_rate=?, success_rate=? WHERE id=?`, avgEngagementRate, successRate, id)
	return err
}

// InsertUsage stores a usage row and returns its id.
func (d *DB) InsertUsage(ctx context.Context, u *model.HookUsage) (int64, error) {
	used := u.UsedAt
	if used.IsZero() {
		used = time.Now().UTC()
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO hook_usage(hook_id, post_id, adapted_content, views, likes, retweets, replies, engagement_rate, performance_score, used_at)
	 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		u.HookID, u.PostID, u.AdaptedContent, u.Views, u.Likes, u.Retweets, u.Replies, nullFloat(u.EngagementRate), u.PerformanceScore, used.Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

const usageCols = `id, hook_id, post_id, adapted_content, views, likes, retweets, replies, engagement_rate, performance_score, used_at`

func scanUsage(scan func(dest ...any) error) (*model.HookUsage, error) {
	var u model.HookUsage
	var rate sql.NullFloat64
	var used int64
	if err := scan(&u.ID, &u.HookID, &u.PostID, &u.AdaptedContent, &u.Views, &u.Likes, &u.Retweets, &u.Replies, &rate, &u.PerformanceScore, &used); err != nil {
		return nil, err
	}
	if rate.Valid {
		u.EngagementRate = &rate.Float64
	}
	u.UsedAt = time.Unix(used, 0).UTC()
	return &u, nil
}

// GetUsage returns the usage or nil when absent.
func (d *DB) GetUsage(ctx context.Context, id int64) (*model.HookUsage, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+usageCols+` FROM hook_usage WHERE id=?`, id)
	u, err := scanUsage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUsageByPost returns a post's usage, if any.
func (d *DB) GetUsageByPost(ctx context.Context, postID string) (*model.HookUsage, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+usageCols+` FROM hook_usage WHERE post_id=?`, postID)
	u, err := scanUsage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsagesByHook returns every usage of one template, oldest first.
func (d *DB) ListUsagesByHook(ctx context.Context, hookID int64) ([]model.HookUsage, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT `+usageCols+` FROM hook_usage WHERE hook_id=? ORDER BY id`, hookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HookUsage
	for rows.Next() {
		u, err := scanUsage(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUsage overwrites a usage's metric columns.
func (d *DB) UpdateUsage(ctx context.Context, u *model.HookUsage) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE hook_usage SET adapted_content=?, views=?, likes=?, retweets=?, replies=?, engagement_rate=?, performance_score=? WHERE id=?`,
		u.AdaptedContent, u.Views, u.Likes, u.Retweets, u.Replies, nullFloat(u.EngagementRate), u.PerformanceScore, u.ID)
	return err
}

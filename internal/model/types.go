package model

import "time"

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	StatusDraft           PostStatus = "draft"
	StatusScheduled       PostStatus = "scheduled"
	StatusPendingApproval PostStatus = "pending_approval"
	StatusApproved        PostStatus = "approved"
	StatusPublishing      PostStatus = "publishing"
	StatusPosted          PostStatus = "posted"
	StatusFailed          PostStatus = "failed"
	StatusCancelled       PostStatus = "cancelled"
)

// AllStatuses lists every post status in lifecycle order.
func AllStatuses() []PostStatus {
	return []PostStatus{
		StatusDraft, StatusScheduled, StatusPendingApproval, StatusApproved,
		StatusPublishing, StatusPosted, StatusFailed, StatusCancelled,
	}
}

// MediaRef is a platform-side media handle attached to a post.
// Handle must come from a completed upload; the core never uploads itself.
type MediaRef struct {
	Handle  string `json:"handle"`
	AltText string `json:"altText,omitempty"`
}

// Post is the schedulable unit of content.
type Post struct {
	ID           string
	Content      string
	Status       PostStatus
	ScheduledAt  *time.Time
	PostedAt     *time.Time
	PlatformID   string
	PlatformURL  string
	ErrorMessage string
	RetryCount   int
	HookID       int64 // 0 when no hook was used
	MediaRefs    []MediaRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanBePosted reports whether the post is in a publishable state.
func (p *Post) CanBePosted() bool {
	return p.Status == StatusApproved || p.Status == StatusScheduled
}

// IsTerminal reports whether no further transitions are allowed.
func (p *Post) IsTerminal() bool {
	return p.Status == StatusPosted || p.Status == StatusCancelled
}

// HookTemplate is a reusable pattern believed to increase engagement.
type HookTemplate struct {
	ID                int64
	PatternType       PatternType
	Name              string
	HookText          string
	ExampleText       string
	Tags              []string
	UseCases          []string
	MinObservedViews  int
	AvgEngagementRate float64
	SuccessRate       float64
	IsActive          bool
	Source            string
	CreatedAt         time.Time
}

// HookUsage records one application of a hook template to a post.
// EngagementRate stays nil until performance metrics arrive.
type HookUsage struct {
	ID               int64
	HookID           int64
	PostID           string
	AdaptedContent   string
	Views            int
	Likes            int
	Retweets         int
	Replies          int
	EngagementRate   *float64
	PerformanceScore float64
	UsedAt           time.Time
}

// DailyStats aggregates post outcomes for one UTC day.
type DailyStats struct {
	Day       time.Time
	Posted    int
	Scheduled int
	Failed    int
}

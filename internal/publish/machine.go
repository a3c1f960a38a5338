// Package publish owns the authoritative lifecycle of a post and validates
// every transition. Publish is the only transition that performs an
// external call, and it is gated by the rate gate.
package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"quill/internal/errs"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/model"
	"quill/internal/rategate"
)

// OpPostCreate is the rate gate key consumed by Publish.
const OpPostCreate = "post_create"

// Receipt identifies a successfully created platform post.
type Receipt struct {
	ID  string
	URL string
}

// Platform performs the actual publish. Implementations distinguish
// transient from permanent failures via errs.ExternalCallError.
type Platform interface {
	PostContent(ctx context.Context, text string, mediaHandles []string) (Receipt, error)
}

// Store is the record store for posts.
type Store interface {
	InsertPost(ctx context.Context, p *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	UpdatePost(ctx context.Context, p *model.Post) error
	DeletePost(ctx context.Context, id string) error
	ListPostsByStatus(ctx context.Context, status model.PostStatus, limit int) ([]model.Post, error)
	BumpDailyStats(ctx context.Context, day time.Time, posted, scheduled, failed int) error
}

// Machine serializes transitions per post id and drives the publish flow.
type Machine struct {
	store    Store
	platform Platform
	gate     *rategate.Gate
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine builds a machine. timeout bounds the platform publish call;
// zero means 30 seconds.
func NewMachine(store Store, platform Platform, gate *rategate.Gate, timeout time.Duration) *Machine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Machine{
		store:    store,
		platform: platform,
		gate:     gate,
		timeout:  timeout,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetNow overrides the clock. Tests only.
func (m *Machine) SetNow(now func() time.Time) { m.now = now }

// lockFor returns the mutex serializing transitions for one post id.
func (m *Machine) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Machine) get(ctx context.Context, id string) (*model.Post, error) {
	p, err := m.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &errs.NotFoundError{Kind: "post", ID: id}
	}
	return p, nil
}

func invalid(p *model.Post, event, msg string) error {
	return &errs.InvalidTransitionError{From: string(p.Status), Event: event, Msg: msg}
}

// Create validates content and stores a new post in Draft, or directly in
// Scheduled when scheduledAt is given (and strictly in the future).
func (m *Machine) Create(ctx context.Context, content string, scheduledAt *time.Time, hookID int64) (*model.Post, error) {
	if err := model.ValidateContent(content); err != nil {
		return nil, &errs.ValidationError{Msg: err.Error()}
	}
	now := m.now().UTC()
	status := model.StatusDraft
	if scheduledAt != nil {
		if !scheduledAt.After(now) {
			return nil, errs.Validationf("scheduled time must be in the future")
		}
		status = model.StatusScheduled
	}
	p := &model.Post{
		ID:          uuid.NewString(),
		Content:     content,
		Status:      status,
		ScheduledAt: scheduledAt,
		HookID:      hookID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.InsertPost(ctx, p); err != nil {
		return nil, err
	}
	if status == model.StatusScheduled {
		_ = m.store.BumpDailyStats(ctx, now, 0, 1, 0)
	}
	logging.Info("post_created", map[string]any{"post_id": p.ID, "status": string(status)})
	return p, nil
}

// Schedule moves a Draft post to Scheduled at t, which must be in the future.
func (m *Machine) Schedule(ctx context.Context, id string, t time.Time) (*model.Post, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusDraft {
		return nil, invalid(p, "schedule", "")
	}
	if !t.After(m.now().UTC()) {
		return nil, errs.Validationf("scheduled time must be in the future")
	}
	p.Status = model.StatusScheduled
	p.ScheduledAt = &t
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	_ = m.store.BumpDailyStats(ctx, p.UpdatedAt, 0, 1, 0)
	logging.Info("post_scheduled", map[string]any{"post_id": id, "at": t})
	return p, nil
}

// RequestApproval moves a Draft post into the approval queue.
func (m *Machine) RequestApproval(ctx context.Context, id string) (*model.Post, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusDraft {
		return nil, invalid(p, "request approval", "")
	}
	p.Status = model.StatusPendingApproval
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Approve marks a Draft, Scheduled, or PendingApproval post as Approved.
func (m *Machine) Approve(ctx context.Context, id string) (*model.Post, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusPendingApproval:
	default:
		return nil, invalid(p, "approve", "")
	}
	p.Status = model.StatusApproved
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	logging.Info("post_approved", map[string]any{"post_id": id})
	return p, nil
}

// publishable reports whether the publish event is allowed from p's state.
// Failed posts may be retried; force additionally covers Draft and
// PendingApproval. Posted, Publishing, and Cancelled are never publishable.
func publishable(p *model.Post, force bool) bool {
	switch p.Status {
	case model.StatusScheduled, model.StatusApproved, model.StatusFailed:
		return true
	case model.StatusDraft, model.StatusPendingApproval:
		return force
	default:
		return false
	}
}

// Publish drives the one externally-visible transition: admission check,
// durable Publishing mark, bounded platform call, then Posted or Failed
// bookkeeping. The gate records the call once per attempt, success or not.
func (m *Machine) Publish(ctx context.Context, id string, force bool) (*model.Post, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.StatusPosted:
		return nil, invalid(p, "publish", "already posted")
	case model.StatusPublishing:
		return nil, invalid(p, "publish", "publish already in progress")
	}
	if !publishable(p, force) {
		return nil, invalid(p, "publish", "")
	}
	if err := model.ValidateContent(p.Content); err != nil {
		return nil, &errs.ValidationError{Msg: err.Error()}
	}
	if !m.gate.Admit(OpPostCreate) {
		metrics.IncQuotaDenial(OpPostCreate)
		return nil, &errs.QuotaExceededError{Op: OpPostCreate, Wait: m.gate.WaitTime(OpPostCreate)}
	}

	// Durable intermediate state: a crash from here until the platform
	// response leaves the post observable in Publishing.
	p.Status = model.StatusPublishing
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(p.MediaRefs))
	for _, ref := range p.MediaRefs {
		handles = append(handles, ref.Handle)
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()
	receipt, callErr := m.platform.PostContent(cctx, p.Content, handles)
	metrics.ObservePublishDuration(start)

	now := m.now().UTC()
	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) {
			callErr = &errs.ExternalCallError{Op: "post_content", Transient: true, Err: callErr}
		}
		var ext *errs.ExternalCallError
		if !errors.As(callErr, &ext) {
			callErr = &errs.ExternalCallError{Op: "post_content", Err: callErr}
		}
		p.Status = model.StatusFailed
		p.ErrorMessage = callErr.Error()
		p.RetryCount++
		p.UpdatedAt = now
		if err := m.store.UpdatePost(ctx, p); err != nil {
			return nil, err
		}
		_ = m.store.BumpDailyStats(ctx, now, 0, 0, 1)
		metrics.IncPublish("failed")
		logging.Error("post_publish_failed", map[string]any{"post_id": id, "error": callErr.Error(), "retry_count": p.RetryCount})
		return p, callErr
	}

	p.Status = model.StatusPosted
	p.PostedAt = &now
	p.PlatformID = receipt.ID
	p.PlatformURL = receipt.URL
	p.ErrorMessage = ""
	p.RetryCount = 0
	p.UpdatedAt = now
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	_ = m.store.BumpDailyStats(ctx, now, 1, 0, 0)
	metrics.IncPublish("posted")
	logging.Info("post_published", map[string]any{"post_id": id, "platform_id": receipt.ID})
	return p, nil
}

// Delete removes a post. Posted posts require force and fail with a
// specific error otherwise.
func (m *Machine) Delete(ctx context.Context, id string, force bool) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == model.StatusPosted && !force {
		return invalid(p, "delete", "post is published, force required")
	}
	if err := m.store.DeletePost(ctx, id); err != nil {
		return err
	}
	logging.Info("post_deleted", map[string]any{"post_id": id, "force": force})
	return nil
}

// Cancel retires a post without deleting it; stale content is retained for
// audit. Terminal and in-flight posts cannot be cancelled.
func (m *Machine) Cancel(ctx context.Context, id string) (*model.Post, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() || p.Status == model.StatusPublishing {
		return nil, invalid(p, "cancel", "")
	}
	p.Status = model.StatusCancelled
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	logging.Info("post_cancelled", map[string]any{"post_id": id})
	return p, nil
}

// AttachMedia appends an already-uploaded media handle. Attachment is
// allowed only before the post enters the publish path.
func (m *Machine) AttachMedia(ctx context.Context, id string, ref model.MediaRef) (*model.Post, error) {
	if ref.Handle == "" {
		return nil, errs.Validationf("media handle is empty; upload must complete before attachment")
	}
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusPendingApproval, model.StatusApproved:
	default:
		return nil, invalid(p, "attach media", "")
	}
	p.MediaRefs = append(p.MediaRefs, ref)
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	logging.Info("media_attached", map[string]any{"post_id": id, "handle": ref.Handle})
	return p, nil
}

// UpdateContent replaces a post's content, re-validating the length limit.
func (m *Machine) UpdateContent(ctx context.Context, id, content string) (*model.Post, error) {
	if err := model.ValidateContent(content); err != nil {
		return nil, &errs.ValidationError{Msg: err.Error()}
	}
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() || p.Status == model.StatusPublishing {
		return nil, invalid(p, "update content", "")
	}
	p.Content = content
	p.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns one post.
func (m *Machine) Get(ctx context.Context, id string) (*model.Post, error) {
	return m.get(ctx, id)
}

// ListByStatus lists posts in a given state.
func (m *Machine) ListByStatus(ctx context.Context, status model.PostStatus, limit int) ([]model.Post, error) {
	return m.store.ListPostsByStatus(ctx, status, limit)
}

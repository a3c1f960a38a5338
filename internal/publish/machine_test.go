package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quill/internal/errs"
	"quill/internal/model"
	"quill/internal/rategate"
)

// memStore is a thread-safe in-memory Store.
type memStore struct {
	mu    sync.Mutex
	posts map[string]model.Post
	stats map[string]model.DailyStats
}

func newMemStore() *memStore {
	return &memStore{posts: map[string]model.Post{}, stats: map[string]model.DailyStats{}}
}

func (s *memStore) InsertPost(ctx context.Context, p *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = *p
	return nil
}

func (s *memStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *memStore) UpdatePost(ctx context.Context, p *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = *p
	return nil
}

func (s *memStore) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

func (s *memStore) ListPostsByStatus(ctx context.Context, status model.PostStatus, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Post
	for _, p := range s.posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) BumpDailyStats(ctx context.Context, day time.Time, posted, scheduled, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := day.Format("2006-01-02")
	d := s.stats[key]
	d.Posted += posted
	d.Scheduled += scheduled
	d.Failed += failed
	s.stats[key] = d
	return nil
}

// fakePlatform counts calls and can be told to fail.
type fakePlatform struct {
	mu    sync.Mutex
	calls int
	err   error
	slow  time.Duration
}

func (f *fakePlatform) PostContent(ctx context.Context, text string, mediaHandles []string) (Receipt, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Receipt{}, f.err
	}
	id := fmt.Sprintf("tw-%d", n)
	return Receipt{ID: id, URL: "https://x.com/i/web/status/" + id}, nil
}

func newTestMachine(t *testing.T, plat Platform, policy rategate.Policy) (*Machine, *memStore) {
	t.Helper()
	store := newMemStore()
	gate := rategate.New(map[string]rategate.Policy{OpPostCreate: policy})
	return NewMachine(store, plat, gate, time.Second), store
}

func wideOpen() rategate.Policy {
	return rategate.Policy{MaxCalls: 1000, Window: 24 * time.Hour}
}

func TestCreateDraftAndScheduled(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()

	p, err := m.Create(ctx, "a draft", nil, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != model.StatusDraft || p.ID == "" {
		t.Fatalf("unexpected post %+v", p)
	}

	at := time.Now().Add(time.Hour)
	p2, err := m.Create(ctx, "a scheduled one", &at, 0)
	if err != nil {
		t.Fatalf("Create scheduled: %v", err)
	}
	if p2.Status != model.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", p2.Status)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := m.Create(ctx, "too late", &past, 0); err == nil {
		t.Fatal("past schedule time must be rejected")
	}
}

func TestCreateRejectsOverlongContent(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	long := strings.Repeat("x", model.MaxContentLength+1)
	_, err := m.Create(context.Background(), long, nil, 0)
	var v *errs.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()

	// Draft -> Scheduled -> Approved -> Posted
	p, _ := m.Create(ctx, "lifecycle", nil, 0)
	at := time.Now().Add(time.Hour)
	if p2, err := m.Schedule(ctx, p.ID, at); err != nil || p2.Status != model.StatusScheduled {
		t.Fatalf("Schedule: %v", err)
	}
	if p2, err := m.Approve(ctx, p.ID); err != nil || p2.Status != model.StatusApproved {
		t.Fatalf("Approve: %v", err)
	}
	if p2, err := m.Publish(ctx, p.ID, false); err != nil || p2.Status != model.StatusPosted {
		t.Fatalf("Publish: %v", err)
	}
	if p2, _ := m.Get(ctx, p.ID); p2.PlatformID == "" || p2.PostedAt == nil {
		t.Fatalf("posted bookkeeping missing: %+v", p2)
	}

	// invalid events out of Posted
	var inv *errs.InvalidTransitionError
	if _, err := m.Schedule(ctx, p.ID, at); !errors.As(err, &inv) {
		t.Fatalf("schedule from posted: %v", err)
	}
	if _, err := m.Publish(ctx, p.ID, false); !errors.As(err, &inv) {
		t.Fatalf("publish from posted: %v", err)
	}
	if _, err := m.Publish(ctx, p.ID, true); !errors.As(err, &inv) {
		t.Fatal("force must not republish a posted post")
	}
}

func TestPublishDraftNeedsForce(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "draft post", nil, 0)

	var inv *errs.InvalidTransitionError
	if _, err := m.Publish(ctx, p.ID, false); !errors.As(err, &inv) {
		t.Fatalf("draft publish without force: %v", err)
	}
	if p2, err := m.Publish(ctx, p.ID, true); err != nil || p2.Status != model.StatusPosted {
		t.Fatalf("forced draft publish: %v", err)
	}
}

func TestApprovalFlow(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "needs review", nil, 0)
	if p2, err := m.RequestApproval(ctx, p.ID); err != nil || p2.Status != model.StatusPendingApproval {
		t.Fatalf("RequestApproval: %v", err)
	}
	// only drafts enter the queue
	var inv *errs.InvalidTransitionError
	if _, err := m.RequestApproval(ctx, p.ID); !errors.As(err, &inv) {
		t.Fatal("re-requesting approval should fail")
	}
	if p2, err := m.Approve(ctx, p.ID); err != nil || p2.Status != model.StatusApproved {
		t.Fatalf("Approve: %v", err)
	}
	if p2, err := m.Publish(ctx, p.ID, false); err != nil || p2.Status != model.StatusPosted {
		t.Fatalf("Publish approved: %v", err)
	}
}

func TestPublishFailureThenRetry(t *testing.T) {
	plat := &fakePlatform{err: &errs.ExternalCallError{Op: "post_content", Transient: true, Err: errors.New("503")}}
	m, _ := newTestMachine(t, plat, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "flaky", nil, 0)
	_, _ = m.Approve(ctx, p.ID)

	_, err := m.Publish(ctx, p.ID, false)
	var ext *errs.ExternalCallError
	if !errors.As(err, &ext) {
		t.Fatalf("expected external call error, got %v", err)
	}
	got, _ := m.Get(ctx, p.ID)
	if got.Status != model.StatusFailed || got.RetryCount != 1 || got.ErrorMessage == "" {
		t.Fatalf("failure bookkeeping wrong: %+v", got)
	}

	// Failed is retryable without force
	plat.err = nil
	p2, err := m.Publish(ctx, p.ID, false)
	if err != nil || p2.Status != model.StatusPosted {
		t.Fatalf("retry: %v", err)
	}
	if p2.RetryCount != 0 || p2.ErrorMessage != "" {
		t.Fatalf("success must clear failure bookkeeping: %+v", p2)
	}
}

func TestPublishTimeoutMarksFailed(t *testing.T) {
	plat := &fakePlatform{slow: 5 * time.Second}
	store := newMemStore()
	gate := rategate.New(map[string]rategate.Policy{OpPostCreate: wideOpen()})
	m := NewMachine(store, plat, gate, 50*time.Millisecond)
	ctx := context.Background()
	p, _ := m.Create(ctx, "slow platform", nil, 0)
	_, _ = m.Approve(ctx, p.ID)

	_, err := m.Publish(ctx, p.ID, false)
	var ext *errs.ExternalCallError
	if !errors.As(err, &ext) || !ext.Transient {
		t.Fatalf("timeout should surface as transient, got %v", err)
	}
	got, _ := m.Get(ctx, p.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("expected failed after timeout, got %s", got.Status)
	}
}

func TestPublishQuotaDenied(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, rategate.Policy{MaxCalls: 1, Window: time.Hour})
	ctx := context.Background()
	p1, _ := m.Create(ctx, "first", nil, 0)
	p2, _ := m.Create(ctx, "second", nil, 0)
	_, _ = m.Approve(ctx, p1.ID)
	_, _ = m.Approve(ctx, p2.ID)

	if _, err := m.Publish(ctx, p1.ID, false); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	_, err := m.Publish(ctx, p2.ID, false)
	var quota *errs.QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("expected quota denial, got %v", err)
	}
	if quota.Wait <= 0 {
		t.Fatalf("denial should carry a wait hint, got %v", quota.Wait)
	}
	// denial leaves the post untouched
	got, _ := m.Get(ctx, p2.ID)
	if got.Status != model.StatusApproved {
		t.Fatalf("denied post mutated: %s", got.Status)
	}
}

func TestConcurrentPublishesRespectQuota(t *testing.T) {
	plat := &fakePlatform{}
	m, _ := newTestMachine(t, plat, rategate.Policy{MaxCalls: 20, Window: 24 * time.Hour})
	ctx := context.Background()

	ids := make([]string, 50)
	for i := range ids {
		p, err := m.Create(ctx, fmt.Sprintf("post %d", i), nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Approve(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	posted, denied := 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := m.Publish(ctx, id, false)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				posted++
				return
			}
			var quota *errs.QuotaExceededError
			if errors.As(err, &quota) {
				denied++
			}
		}(id)
	}
	wg.Wait()

	if posted != 20 || denied != 30 {
		t.Fatalf("expected 20 posted / 30 denied, got %d / %d", posted, denied)
	}
	if plat.calls != 20 {
		t.Fatalf("platform called %d times, want 20", plat.calls)
	}
	done, _ := m.ListByStatus(ctx, model.StatusPosted, 0)
	if len(done) != 20 {
		t.Fatalf("store shows %d posted", len(done))
	}
	still, _ := m.ListByStatus(ctx, model.StatusApproved, 0)
	if len(still) != 30 {
		t.Fatalf("store shows %d still approved", len(still))
	}
}

func TestDeletePostedRequiresForce(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "to delete", nil, 0)
	_, _ = m.Approve(ctx, p.ID)
	_, _ = m.Publish(ctx, p.ID, false)

	var inv *errs.InvalidTransitionError
	if err := m.Delete(ctx, p.ID, false); !errors.As(err, &inv) {
		t.Fatalf("unforced delete of posted: %v", err)
	}
	if err := m.Delete(ctx, p.ID, true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if _, err := m.Get(ctx, p.ID); err == nil {
		t.Fatal("post should be gone")
	}
}

func TestCancel(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "never mind", nil, 0)
	if p2, err := m.Cancel(ctx, p.ID); err != nil || p2.Status != model.StatusCancelled {
		t.Fatalf("Cancel: %v", err)
	}
	// cancelled is terminal
	var inv *errs.InvalidTransitionError
	if _, err := m.Publish(ctx, p.ID, true); !errors.As(err, &inv) {
		t.Fatal("cancelled post must not publish")
	}
	if _, err := m.Cancel(ctx, p.ID); !errors.As(err, &inv) {
		t.Fatal("double cancel must fail")
	}
}

func TestAttachMediaGuards(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "with media", nil, 0)

	if _, err := m.AttachMedia(ctx, p.ID, model.MediaRef{}); err == nil {
		t.Fatal("empty handle must be rejected")
	}
	p2, err := m.AttachMedia(ctx, p.ID, model.MediaRef{Handle: "m-1", AltText: "a chart"})
	if err != nil || len(p2.MediaRefs) != 1 {
		t.Fatalf("AttachMedia: %v", err)
	}

	_, _ = m.Approve(ctx, p.ID)
	if _, err := m.AttachMedia(ctx, p.ID, model.MediaRef{Handle: "m-2"}); err != nil {
		t.Fatalf("approved posts may still receive media: %v", err)
	}
	_, _ = m.Publish(ctx, p.ID, false)
	var inv *errs.InvalidTransitionError
	if _, err := m.AttachMedia(ctx, p.ID, model.MediaRef{Handle: "m-3"}); !errors.As(err, &inv) {
		t.Fatal("posted posts must not receive media")
	}
}

func TestUpdateContent(t *testing.T) {
	m, _ := newTestMachine(t, &fakePlatform{}, wideOpen())
	ctx := context.Background()
	p, _ := m.Create(ctx, "v1", nil, 0)
	p2, err := m.UpdateContent(ctx, p.ID, "v2")
	if err != nil || p2.Content != "v2" {
		t.Fatalf("UpdateContent: %v", err)
	}
	if _, err := m.UpdateContent(ctx, p.ID, strings.Repeat("y", model.MaxContentLength+1)); err == nil {
		t.Fatal("overlong edit must be rejected")
	}
}

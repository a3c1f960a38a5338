package rategate

import (
	"sync"
	"testing"
	"time"
)

func newTestGate(maxCalls int, window time.Duration) (*Gate, *time.Time) {
	g := New(map[string]Policy{"post_create": {MaxCalls: maxCalls, Window: window}})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.SetNow(func() time.Time { return now })
	return g, &now
}

func TestWindowEvictionRestoresBudget(t *testing.T) {
	g, now := newTestGate(3, 10*time.Second)
	for i := 0; i < 3; i++ {
		if !g.CanCall("post_create") {
			t.Fatalf("call %d should be admitted", i)
		}
		g.RecordCall("post_create")
	}
	if g.CanCall("post_create") {
		t.Fatalf("expected denial after 3 recorded calls")
	}
	if w := g.WaitTime("post_create"); w != 10*time.Second {
		t.Fatalf("wait = %s, want 10s", w)
	}
	*now = now.Add(10*time.Second + time.Millisecond)
	if !g.CanCall("post_create") {
		t.Fatalf("expected admission after window passed")
	}
	if w := g.WaitTime("post_create"); w != 0 {
		t.Fatalf("wait = %s, want 0", w)
	}
}

func TestUnknownOperationFailsOpen(t *testing.T) {
	g, _ := newTestGate(1, time.Minute)
	for i := 0; i < 5; i++ {
		if !g.CanCall("unheard_of") {
			t.Fatalf("unknown op should always be admitted")
		}
		g.RecordCall("unheard_of")
	}
	if g.WaitTime("unheard_of") != 0 {
		t.Fatalf("unknown op should have zero wait")
	}
}

func TestAdmitIsAtomicUnderConcurrency(t *testing.T) {
	g, _ := newTestGate(20, time.Hour)
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("post_create") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 20 {
		t.Fatalf("admitted = %d, want exactly 20", admitted)
	}
}

func TestStatusSnapshot(t *testing.T) {
	g, _ := newTestGate(3, 10*time.Second)
	g.RecordCall("post_create")
	st := g.Status()
	if len(st) != 1 {
		t.Fatalf("expected 1 op, got %d", len(st))
	}
	s := st[0]
	if s.Op != "post_create" || s.Used != 1 || s.MaxCalls != 3 || !s.CanCall {
		t.Fatalf("unexpected status: %+v", s)
	}
}

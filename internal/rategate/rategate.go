// Package rategate is an advisory, in-memory sliding-window call counter
// per named operation. Windows live for the process lifetime only; the
// platform enforces the true limit.
package rategate

import (
	"sort"
	"sync"
	"time"
)

// Policy fixes the admission budget for one operation key.
type Policy struct {
	MaxCalls int
	Window   time.Duration
}

// Gate tracks call timestamps per operation inside a trailing window.
// All methods are safe for concurrent use; none of them blocks.
type Gate struct {
	mu       sync.Mutex
	policies map[string]Policy
	calls    map[string][]time.Time
	now      func() time.Time
}

// New builds a gate with the given per-operation policies.
func New(policies map[string]Policy) *Gate {
	g := &Gate{
		policies: make(map[string]Policy, len(policies)),
		calls:    make(map[string][]time.Time),
		now:      time.Now,
	}
	for op, p := range policies {
		g.policies[op] = p
	}
	return g
}

// SetNow overrides the clock. Tests only.
func (g *Gate) SetNow(now func() time.Time) { g.now = now }

// evict drops timestamps older than now-window. Caller holds g.mu.
func (g *Gate) evict(op string, p Policy) {
	cutoff := g.now().Add(-p.Window)
	kept := g.calls[op][:0]
	for _, t := range g.calls[op] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.calls[op] = kept
}

// CanCall reports whether op is currently admitted. Operations without a
// declared policy are always admitted.
func (g *Gate) CanCall(op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.policies[op]
	if !ok {
		return true
	}
	g.evict(op, p)
	return len(g.calls[op]) < p.MaxCalls
}

// RecordCall appends a timestamp for op. Call exactly once per admitted
// action actually performed; speculative or double recording corrupts the count.
func (g *Gate) RecordCall(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.policies[op]; !ok {
		return
	}
	g.calls[op] = append(g.calls[op], g.now())
}

// Admit atomically evicts, checks, and records in one critical section.
// Concurrent callers cannot jointly exceed the budget through it.
func (g *Gate) Admit(op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.policies[op]
	if !ok {
		return true
	}
	g.evict(op, p)
	if len(g.calls[op]) >= p.MaxCalls {
		return false
	}
	g.calls[op] = append(g.calls[op], g.now())
	return true
}

// WaitTime returns how long until op would next be admitted; zero when it
// is admitted now. Advisory messaging only, never used to block.
func (g *Gate) WaitTime(op string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.policies[op]
	if !ok {
		return 0
	}
	g.evict(op, p)
	if len(g.calls[op]) < p.MaxCalls {
		return 0
	}
	oldest := g.calls[op][0]
	for _, t := range g.calls[op][1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest.Add(p.Window).Sub(g.now())
}

// OpStatus is a point-in-time view of one operation's budget.
type OpStatus struct {
	Op       string
	Used     int
	MaxCalls int
	Window   time.Duration
	CanCall  bool
	Wait     time.Duration
}

// Status snapshots every declared operation for user-facing quota display.
func (g *Gate) Status() []OpStatus {
	g.mu.Lock()
	ops := make([]string, 0, len(g.policies))
	for op := range g.policies {
		ops = append(ops, op)
	}
	g.mu.Unlock()
	sort.Strings(ops)

	out := make([]OpStatus, 0, len(ops))
	for _, op := range ops {
		g.mu.Lock()
		p := g.policies[op]
		g.evict(op, p)
		used := len(g.calls[op])
		g.mu.Unlock()
		out = append(out, OpStatus{
			Op:       op,
			Used:     used,
			MaxCalls: p.MaxCalls,
			Window:   p.Window,
			CanCall:  used < p.MaxCalls,
			Wait:     g.WaitTime(op),
		})
	}
	return out
}

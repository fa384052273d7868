package search_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/page"
	"github.com/adamwoolhether/reposearch/search"
	"github.com/adamwoolhether/reposearch/throttle"
)

var errUpstream = errors.New("upstream unavailable")

// totals maps search terms to the result count the fake upstream reports.
var totals = map[string]int{
	"nextnext": 23,
	"program1": 2373,
	"testxx":   0,
	"tenpages": 400,
}

func fakeUpstream(_ context.Context, term string, p int) (fetch.Result, error) {
	if term == "boom" {
		return fetch.Result{}, errUpstream
	}

	total := totals[term]
	n := min(page.PageSize, max(0, total-(p-1)*page.PageSize))

	items := make([]fetch.Repository, n)
	for i := range items {
		id := (p-1)*page.PageSize + i + 1
		items[i] = fetch.Repository{ID: int64(id), FullName: fmt.Sprintf("owner/%s-%d", term, id)}
	}

	return fetch.Result{Items: items, TotalCount: total}, nil
}

// manualClock fires gate timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) throttle.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)

	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d

	var due, pending []*manualTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case t.at <= c.now:
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for _, p := range t.clock.timers {
		if p == t && !t.stopped {
			t.stopped = true
			return true
		}
	}

	return false
}

// blockingUpstream serves fakeUpstream but holds back every page after
// the first until release is closed.
type blockingUpstream struct {
	release chan struct{}
}

func (b *blockingUpstream) Search(ctx context.Context, term string, p int) (fetch.Result, error) {
	if p > 1 {
		select {
		case <-b.release:
		case <-ctx.Done():
			return fetch.Result{}, ctx.Err()
		}
	}

	return fakeUpstream(ctx, term, p)
}

func newRegistry(t *testing.T, clk *manualClock, opts ...search.RegistryOption) *search.Registry {
	t.Helper()

	return newRegistryWith(t, clk, fetch.FetcherFunc(fakeUpstream), opts...)
}

func newRegistryWith(t *testing.T, clk *manualClock, f fetch.Fetcher, opts ...search.RegistryOption) *search.Registry {
	t.Helper()

	cache, err := fetch.NewCache(f)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}

	opts = append([]search.RegistryOption{search.WithGateOptions(throttle.WithClock(clk))}, opts...)

	r, err := search.NewRegistry(cache, opts...)
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	t.Cleanup(r.Close)

	return r
}

func newSession(t *testing.T, clk *manualClock) *search.Session {
	t.Helper()

	s, err := newRegistry(t, clk).Obtain("")
	if err != nil {
		t.Fatalf("obtaining session: %v", err)
	}

	return s
}

// cool lets the gate reopen.
func cool(clk *manualClock) {
	clk.Advance(throttle.DefaultCooldown + time.Millisecond)
}

func mustWait(t *testing.T, s *search.Session) search.View {
	t.Helper()

	v, err := s.Wait(t.Context())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	return v
}

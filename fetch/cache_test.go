package fetch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/reposearch/fetch"
)

// stubFetcher answers from a fixed table, counting calls per key. When
// release is non-nil, calls block until it is closed.
type stubFetcher struct {
	mu      sync.Mutex
	calls   map[fetch.Key]int
	results map[fetch.Key]fetch.Result
	errs    map[fetch.Key]error
	release chan struct{}
}

func newStub() *stubFetcher {
	return &stubFetcher{
		calls:   make(map[fetch.Key]int),
		results: make(map[fetch.Key]fetch.Result),
		errs:    make(map[fetch.Key]error),
	}
}

func (s *stubFetcher) Search(ctx context.Context, term string, page int) (fetch.Result, error) {
	key := fetch.Key{Term: term, Page: page}

	s.mu.Lock()
	s.calls[key]++
	release := s.release
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return fetch.Result{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errs[key]; err != nil {
		return fetch.Result{}, err
	}

	return s.results[key], nil
}

func (s *stubFetcher) count(key fetch.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[key]
}

func repos(n int) []fetch.Repository {
	out := make([]fetch.Repository, n)
	for i := range out {
		out[i] = fetch.Repository{ID: int64(i + 1), FullName: "owner/repo"}
	}
	return out
}

func newCache(t *testing.T, f fetch.Fetcher, opts ...fetch.CacheOption) *fetch.Cache {
	t.Helper()

	c, err := fetch.NewCache(f, opts...)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}

	return c
}

func TestNewCache_Validation(t *testing.T) {
	if _, err := fetch.NewCache(nil); err == nil {
		t.Fatal("expected error for nil fetcher")
	}

	tests := map[string]fetch.CacheOption{
		"zero ttl":          fetch.WithTTL(0),
		"zero error ttl":    fetch.WithErrorTTL(0),
		"zero load timeout": fetch.WithLoadTimeout(0),
		"nil now":           fetch.WithNow(nil),
	}
	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := fetch.NewCache(newStub(), opt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCache_LoadStoresResult(t *testing.T) {
	stub := newStub()
	key := fetch.Key{Term: "program1", Page: 1}
	want := fetch.Result{Items: repos(40), TotalCount: 2373}
	stub.results[key] = want

	var outcomes []fetch.Outcome
	c := newCache(t, stub, fetch.WithObserver(func(o fetch.Outcome) { outcomes = append(outcomes, o) }))

	for range 3 {
		got, err := c.Load(t.Context(), key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("result mismatch (-want +got):\n%s", diff)
		}
	}

	if n := stub.count(key); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
	if diff := cmp.Diff([]fetch.Outcome{fetch.OutcomeMiss, fetch.OutcomeHit, fetch.OutcomeHit}, outcomes); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestCache_DeduplicatesInFlight(t *testing.T) {
	stub := newStub()
	stub.release = make(chan struct{})
	key := fetch.Key{Term: "dedup", Page: 1}
	stub.results[key] = fetch.Result{TotalCount: 7}

	c := newCache(t, stub)

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Load(t.Context(), key)
			if err != nil || res.TotalCount != 7 {
				failed.Add(1)
			}
		}()
	}

	// Give every goroutine a chance to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(stub.release)
	wg.Wait()

	if failed.Load() != 0 {
		t.Fatalf("%d loads failed", failed.Load())
	}
	if n := stub.count(key); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestCache_Expiry(t *testing.T) {
	stub := newStub()
	key := fetch.Key{Term: "ttl", Page: 2}
	stub.results[key] = fetch.Result{TotalCount: 1}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCache(t, stub,
		fetch.WithTTL(time.Minute),
		fetch.WithNow(func() time.Time { return now }),
	)

	if _, err := c.Load(t.Context(), key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Lookup(key); !ok {
		t.Fatal("expected fresh entry")
	}

	now = now.Add(time.Minute)
	if n := c.Purge(); n != 1 {
		t.Fatalf("Purge() = %d, want 1", n)
	}
	if _, ok, _ := c.Lookup(key); ok {
		t.Fatal("expired entry still visible")
	}

	if _, err := c.Load(t.Context(), key); err != nil {
		t.Fatal(err)
	}
	if n := stub.count(key); n != 2 {
		t.Fatalf("fetch calls = %d, want 2", n)
	}
}

func TestCache_ErrorsAreRemembered(t *testing.T) {
	stub := newStub()
	key := fetch.Key{Term: "broken", Page: 1}
	errUpstream := errors.New("upstream down")
	stub.errs[key] = errUpstream

	c := newCache(t, stub)

	if _, err := c.Load(t.Context(), key); !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error, got: %v", err)
	}

	_, ok, err := c.Lookup(key)
	if !ok || !errors.Is(err, errUpstream) {
		t.Fatalf("Lookup() = ok %v err %v; want stored failure", ok, err)
	}
}

func TestCache_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	stub := newStub()
	stub.release = make(chan struct{})
	key := fetch.Key{Term: "slow", Page: 1}
	stub.results[key] = fetch.Result{TotalCount: 3}

	c := newCache(t, stub)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := c.Load(ctx, key); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}

	close(stub.release)

	res, err := c.Load(t.Context(), key)
	if err != nil || res.TotalCount != 3 {
		t.Fatalf("Load() = %+v, %v", res, err)
	}
	if n := stub.count(key); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

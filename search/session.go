package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/page"
	"github.com/adamwoolhether/reposearch/throttle"
)

// Session is one user's search. Every action goes through the session's
// gate, so at most one action takes effect per cool-down.
type Session struct {
	ID string

	gate   *throttle.Gate
	query  *fetch.Query
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	total    int
	lastSeen time.Time
}

func newSession(id string, gate *throttle.Gate, query *fetch.Query, logger *slog.Logger, now time.Time) *Session {
	return &Session{
		ID:       id,
		gate:     gate,
		query:    query,
		logger:   logger,
		state:    Initial(),
		lastSeen: now,
	}
}

// State returns the current query.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Gate exposes the session's throttle gate.
func (s *Session) Gate() *throttle.Gate {
	return s.gate
}

// Submit searches for term. It reports false when the action was dropped.
func (s *Session) Submit(term string) bool {
	return s.dispatch(SetTerm(term))
}

// GoTo jumps to page p. Pages outside the last rendered window's range are
// rejected without touching the gate.
func (s *Session) GoTo(p int) bool {
	target, ok := s.window().JumpTo(p)
	if !ok {
		return false
	}

	return s.dispatch(SetPage(target))
}

// Previous moves one page back. It is a no-op on the first page.
func (s *Session) Previous() bool {
	target, ok := s.window().Previous()
	if !ok {
		return false
	}

	return s.dispatch(SetPage(target))
}

// Next moves one page forward. It is a no-op on the last page.
func (s *Session) Next() bool {
	target, ok := s.window().Next()
	if !ok {
		return false
	}

	return s.dispatch(SetPage(target))
}

// View returns what the session currently shows. It never blocks on the
// upstream API; a query that is not loaded yet is started in the
// background and reported as loading.
func (s *Session) View(ctx context.Context) View {
	st := s.State()
	return s.settle(st, s.query.Query(ctx, st.Term, st.Page))
}

// Wait blocks until the current query has loaded and returns the view.
// The error is the load failure, or ctx's error if it ended first.
func (s *Session) Wait(ctx context.Context) (View, error) {
	st := s.State()
	snap := s.query.Wait(ctx, st.Term, st.Page)

	v := s.settle(st, snap)
	if err := ctx.Err(); err != nil {
		return v, err
	}

	return v, snap.Err
}

func (s *Session) settle(st State, snap fetch.Snapshot) View {
	v := NewView(st, snap)

	s.mu.Lock()
	if s.state == st && !snap.IsLoading {
		s.total = v.TotalCount
	}
	s.mu.Unlock()

	return v
}

// window is the pagination of the last settled result for the current term.
func (s *Session) window() page.Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Term == "" {
		return page.Compute(0, 1)
	}

	return page.Compute(s.total, s.state.Page)
}

func (s *Session) dispatch(a Action) bool {
	fired := s.gate.Attempt(func() {
		s.mu.Lock()
		s.state = Reduce(s.state, a)
		if _, ok := a.(ActionSetTerm); ok {
			s.total = 0 // unknown until the new term settles
		}
		s.mu.Unlock()
	})

	s.logger.Debug("session action", "session", s.ID, "action", actionName(a), "fired", fired)

	return fired
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeen
}

func actionName(a Action) string {
	switch a.(type) {
	case ActionSetTerm:
		return "set_term"
	case ActionSetPage:
		return "set_page"
	default:
		return "unknown"
	}
}

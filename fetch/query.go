package fetch

import (
	"context"
	"strings"
	"sync"
)

// Query is a session's view onto the shared Cache. While a new key loads,
// it keeps returning the last successful snapshot flagged as loading.
type Query struct {
	cache *Cache

	mu   sync.Mutex
	prev Snapshot
}

// NewQuery returns a Query reading through c.
func NewQuery(c *Cache) *Query {
	return &Query{cache: c}
}

// Query returns the current snapshot for (term, page) without blocking.
// An empty term never reaches the upstream API.
func (q *Query) Query(ctx context.Context, term string, page int) Snapshot {
	if strings.TrimSpace(term) == "" {
		return Snapshot{}
	}

	key := Key{Term: term, Page: page}

	res, ok, err := q.cache.Lookup(key)
	if ok {
		return q.settle(key, res, err)
	}

	q.cache.Prefetch(ctx, key)

	return q.pending()
}

// Wait blocks until (term, page) is loaded or ctx ends. A failed load is
// reported through Snapshot.Err. If ctx ends first the load keeps running
// and Wait returns the previous snapshot flagged as loading; callers see
// the cut-short wait through ctx.Err().
func (q *Query) Wait(ctx context.Context, term string, page int) Snapshot {
	if strings.TrimSpace(term) == "" {
		return Snapshot{}
	}

	key := Key{Term: term, Page: page}

	res, err := q.cache.Load(ctx, key)
	if err != nil && ctx.Err() != nil {
		return q.pending()
	}

	return q.settle(key, res, err)
}

func (q *Query) pending() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := q.prev
	snap.IsLoading = true

	return snap
}

func (q *Query) settle(key Key, res Result, err error) Snapshot {
	if err != nil {
		return Snapshot{Key: key, Err: err}
	}

	snap := Snapshot{
		Key:        key,
		Items:      res.Items,
		TotalCount: res.TotalCount,
	}

	q.mu.Lock()
	q.prev = snap
	q.mu.Unlock()

	return snap
}

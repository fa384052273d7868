// Package fetch is the data-fetching layer between search sessions and the
// upstream search API. It deduplicates identical in-flight queries, keeps
// recent results, and lets a session keep showing its previous results
// while a new query loads.
package fetch

import (
	"context"
	"strconv"
)

// Repository is a single search hit as presented to users.
type Repository struct {
	ID          int64  `json:"id"`
	FullName    string `json:"fullName"`
	HTMLURL     string `json:"htmlUrl"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
}

// Result is one page of search hits plus the upstream total.
type Result struct {
	Items      []Repository `json:"items"`
	TotalCount int          `json:"totalCount"`
}

// Fetcher queries the upstream search API for one page of results.
type Fetcher interface {
	Search(ctx context.Context, term string, page int) (Result, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, term string, page int) (Result, error)

// Search calls f.
func (f FetcherFunc) Search(ctx context.Context, term string, page int) (Result, error) {
	return f(ctx, term, page)
}

// Key identifies a query.
type Key struct {
	Term string
	Page int
}

func (k Key) String() string {
	return strconv.Itoa(k.Page) + "\x00" + k.Term
}

// Snapshot is what a session presents for a query: the data, whether a
// newer request is still loading, and the failure of the last request.
type Snapshot struct {
	Key        Key
	Items      []Repository
	TotalCount int
	IsLoading  bool
	Err        error
}

// Package ghapi searches GitHub repositories through the REST search API.
package ghapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/reposearch/client"
	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/page"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const (
	searchPath = "/search/repositories"
	apiVersion = "2022-11-28"
)

var (
	// ErrRateLimited is returned when GitHub refuses a call because the
	// search quota is spent.
	ErrRateLimited = errors.New("github search rate limited")
	// ErrInvalidQuery is returned when GitHub rejects the search term.
	ErrInvalidQuery = errors.New("github rejected search query")
)

// RateLimitError carries the quota reset time when GitHub reports it.
type RateLimitError struct {
	Reset time.Time
	Err   error
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%v until %s", ErrRateLimited, e.Reset.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() []error {
	return []error{ErrRateLimited, e.Err}
}

// Searcher implements [fetch.Fetcher] against GitHub.
type Searcher struct {
	c       *client.Client
	base    *url.URL
	perPage int
	tracer  trace.Tracer
}

// New returns a Searcher issuing requests through c.
func New(c *client.Client, optFns ...Option) (*Searcher, error) {
	if c == nil {
		return nil, errors.New("client must not be nil")
	}

	opts := options{
		baseURL: DefaultBaseURL,
		perPage: page.PageSize,
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying searcher option: %w", err)
		}
	}

	base, err := url.Parse(opts.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url[%s] must be absolute", opts.baseURL)
	}

	s := Searcher{
		c:       c,
		base:    base,
		perPage: opts.perPage,
		tracer:  otel.Tracer("github.com/adamwoolhether/reposearch/ghapi"),
	}

	return &s, nil
}

// Search fetches one page of repositories matching term.
func (s *Searcher) Search(ctx context.Context, term string, pageIndex int) (fetch.Result, error) {
	ctx, span := s.tracer.Start(ctx, "ghapi.search",
		trace.WithAttributes(attribute.String("term", term), attribute.Int("page", pageIndex)),
	)
	defer span.End()

	u := s.c.URL(s.base.Scheme, s.base.Host, strings.TrimSuffix(s.base.Path, "/")+searchPath,
		client.WithQueryStrings(map[string]string{
			"q":        term,
			"page":     strconv.Itoa(pageIndex),
			"per_page": strconv.Itoa(s.perPage),
		}),
	)

	req, err := s.c.Request(ctx, u, http.MethodGet,
		client.WithHeaders(http.Header{
			"Accept":               {"application/vnd.github+json"},
			"X-GitHub-Api-Version": {apiVersion},
		}),
	)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("building search request: %w", err)
	}

	var (
		body github.RepositoriesSearchResult
		hdr  http.Header
	)
	if err := s.c.Do(req, http.StatusOK, client.WithDestination(&body), client.WithResponseHeader(&hdr)); err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return fetch.Result{}, err
	}

	res := fetch.Result{
		TotalCount: body.GetTotal(),
		Items:      make([]fetch.Repository, 0, len(body.Repositories)),
	}
	for _, r := range body.Repositories {
		if r == nil {
			continue
		}
		res.Items = append(res.Items, fetch.Repository{
			ID:          r.GetID(),
			FullName:    r.GetFullName(),
			HTMLURL:     r.GetHTMLURL(),
			Description: r.GetDescription(),
			Stars:       r.GetStargazersCount(),
		})
	}

	span.SetAttributes(
		attribute.Int("total_count", res.TotalCount),
		attribute.Int("items", len(res.Items)),
		attribute.String("ratelimit.remaining", hdr.Get("X-RateLimit-Remaining")),
	)

	return res, nil
}

// classify maps upstream status failures onto the package sentinels.
func classify(err error) error {
	se, ok := errors.AsType[*client.UnexpectedStatusError](err)
	if !ok {
		return fmt.Errorf("github search: %w", err)
	}

	switch se.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitError{Reset: resetTime(se.Header), Err: err}
	case http.StatusForbidden:
		if se.Header.Get("X-RateLimit-Remaining") == "0" || se.Header.Get("Retry-After") != "" {
			return &RateLimitError{Reset: resetTime(se.Header), Err: err}
		}
		return fmt.Errorf("github search: %w", err)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	default:
		return fmt.Errorf("github search: %w", err)
	}
}

func resetTime(h http.Header) time.Time {
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Now().Add(time.Duration(sec) * time.Second).UTC()
		}
	}

	return time.Time{}
}

// Option is a functional option for [New].
type Option func(*options) error

type options struct {
	baseURL string
	perPage int
}

// WithBaseURL points the Searcher at another API root, such as a GitHub
// Enterprise host or a test server.
func WithBaseURL(raw string) Option {
	return func(o *options) error {
		if raw == "" {
			return errors.New("base url must not be empty")
		}
		o.baseURL = raw
		return nil
	}
}

// WithPerPage overrides the number of items requested per page.
func WithPerPage(n int) Option {
	return func(o *options) error {
		if n < 1 || n > 100 {
			return fmt.Errorf("per page[%d] must be within [1, 100]", n)
		}
		o.perPage = n
		return nil
	}
}

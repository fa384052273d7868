// Package page derives the pagination window shown for a search result set.
package page

import "slices"

const (
	// MaxResults is the highest result count the upstream search API
	// will paginate through. Anything beyond it is unreachable.
	MaxResults = 1000

	// PageSize is the number of items fetched per query.
	PageSize = 40

	// WindowSize is the number of page links visible at once.
	WindowSize = 5
)

// Window is the read-only navigation state for a result set. It is
// recomputed from the result count and current page on every render.
type Window struct {
	TotalPages int   `json:"totalPages"`
	Pages      []int `json:"pages"`
	Current    int   `json:"current"`
}

// TotalPages returns the number of addressable pages for resultCount,
// capped at MaxResults.
func TotalPages(resultCount int) int {
	n := min(max(resultCount, 0), MaxResults)

	return (n + PageSize - 1) / PageSize
}

// Compute builds the Window for resultCount with currentPage selected.
// currentPage is clamped into [1, TotalPages] rather than rejected.
func Compute(resultCount, currentPage int) Window {
	total := TotalPages(resultCount)

	w := Window{
		TotalPages: total,
		Current:    clamp(currentPage, 1, max(total, 1)),
	}

	if total <= 1 {
		return w
	}

	idx := (w.Current + WindowSize - 1) / WindowSize
	first := (idx-1)*WindowSize + 1
	last := min(idx*WindowSize, total)

	w.Pages = make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		w.Pages = append(w.Pages, p)
	}

	return w
}

// Empty reports whether no pagination control should be shown.
func (w Window) Empty() bool {
	return w.TotalPages <= 1
}

// HasPrevious reports whether a previous page exists.
func (w Window) HasPrevious() bool {
	return !w.Empty() && w.Current > 1
}

// HasNext reports whether a following page exists.
func (w Window) HasNext() bool {
	return !w.Empty() && w.Current < w.TotalPages
}

// Previous returns the page before Current. ok is false on the first
// page, in which case the navigation is a no-op.
func (w Window) Previous() (page int, ok bool) {
	if !w.HasPrevious() {
		return w.Current, false
	}

	return max(1, w.Current-1), true
}

// Next returns the page after Current. ok is false on the last page.
func (w Window) Next() (page int, ok bool) {
	if !w.HasNext() {
		return w.Current, false
	}

	return min(w.TotalPages, w.Current+1), true
}

// JumpTo validates a direct page selection against [1, TotalPages].
func (w Window) JumpTo(page int) (int, bool) {
	if w.TotalPages < 1 || page < 1 || page > w.TotalPages {
		return w.Current, false
	}

	return page, true
}

// Contains reports whether page is one of the visible links.
func (w Window) Contains(page int) bool {
	return slices.Contains(w.Pages, page)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

package search

import (
	"fmt"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/page"
)

// Header texts.
const (
	HeaderLoading = "Loading results..."
	HeaderPrompt  = "Search for repository in the search field."
)

// View is everything needed to render a session.
type View struct {
	Term       string             `json:"term"`
	Page       int                `json:"page"`
	Header     string             `json:"header"`
	Loading    bool               `json:"loading"`
	TotalCount int                `json:"totalCount"`
	Items      []fetch.Repository `json:"items"`
	Window     page.Window        `json:"window"`
	Error      string             `json:"error,omitempty"`
}

// NewView builds what a session in state st shows for snap.
func NewView(st State, snap fetch.Snapshot) View {
	v := View{
		Term:    st.Term,
		Page:    st.Page,
		Loading: snap.IsLoading,
		Items:   []fetch.Repository{},
	}

	if snap.Err != nil {
		v.Error = snap.Err.Error()
	} else {
		v.TotalCount = snap.TotalCount
	}

	switch {
	case v.Loading:
		v.Header = HeaderLoading
	case v.Term == "":
		v.Header = HeaderPrompt
	default:
		v.Header = fmt.Sprintf("Results (%d found)", v.TotalCount)
	}

	if v.Term == "" {
		v.Window = page.Compute(0, 1)
		return v
	}

	if snap.Err == nil && snap.Items != nil {
		v.Items = snap.Items
	}
	v.Window = page.Compute(v.TotalCount, st.Page)

	return v
}

// ShowPagination reports whether page controls should be drawn.
func (v View) ShowPagination() bool {
	return v.Term != "" && !v.Window.Empty()
}

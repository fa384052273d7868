package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/page"
	"github.com/adamwoolhether/reposearch/search"
)

// Output formats of the search command.
const (
	outputTable = "table"
	outputJSON  = "json"
)

var errNoResults = errors.New("no results")

func (a *app) searchCmd() *cobra.Command {
	var (
		pageNum int
		output  string
	)

	cmd := &cobra.Command{
		Use:   "search <term>...",
		Short: "Search repositories and print one page of results",
		Example: `  reposearch search program1
  reposearch search program1 --page 3 --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unknown output format %q", output)
			}
			if pageNum < 1 {
				return fmt.Errorf("page[%d] must be at least 1", pageNum)
			}

			return a.search(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), pageNum, output)
		},
	}

	cmd.Flags().IntVarP(&pageNum, "page", "p", 1, "page to show")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")

	return cmd
}

func (a *app) search(ctx context.Context, w io.Writer, term string, pageNum int, output string) error {
	gh, err := a.searcher()
	if err != nil {
		return err
	}

	cache, err := fetch.NewCache(gh, a.cacheOptions()...)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	st := search.Reduce(search.Initial(), search.SetTerm(term))
	st = search.Reduce(st, search.SetPage(pageNum))

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Search.WaitTimeout)
	defer cancel()

	snap := fetch.NewQuery(cache).Wait(ctx, st.Term, st.Page)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("searching %q: %w", st.Term, err)
	}
	if snap.Err != nil {
		return fmt.Errorf("searching %q: %w", st.Term, snap.Err)
	}

	v := search.NewView(st, snap)

	a.log.Debug("search", "term", v.Term, "page", v.Page, "total", v.TotalCount, "items", len(v.Items))

	if output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	if err := renderView(w, v); err != nil {
		return err
	}
	if len(v.Items) == 0 && v.TotalCount > 0 {
		return fmt.Errorf("page %d of %q: %w", v.Page, v.Term, errNoResults)
	}

	return nil
}

func renderView(w io.Writer, v search.View) error {
	if _, err := fmt.Fprintln(w, v.Header); err != nil {
		return err
	}
	if len(v.Items) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Repository", "Stars", "Description"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: 60},
	})

	first := (v.Page - 1) * page.PageSize

	for i, r := range v.Items {
		desc := r.Description
		if desc == "" {
			desc = "No description"
		}
		t.AppendRow(table.Row{first + i + 1, r.FullName, r.Stars, desc})
	}
	t.Render()

	if !v.ShowPagination() {
		return nil
	}

	_, err := fmt.Fprintln(w, windowLine(v))

	return err
}

// windowLine renders the page links, e.g. "Pages: 1 2 [3] 4 5 (3/25)".
func windowLine(v search.View) string {
	parts := make([]string, 0, len(v.Window.Pages))
	for _, p := range v.Window.Pages {
		s := strconv.Itoa(p)
		if p == v.Window.Current {
			s = "[" + s + "]"
		}
		parts = append(parts, s)
	}

	return fmt.Sprintf("Pages: %s (%d/%d)", strings.Join(parts, " "), v.Window.Current, v.Window.TotalPages)
}

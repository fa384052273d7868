package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/adamwoolhether/reposearch/web"
	"github.com/adamwoolhether/reposearch/web/errs"
	"github.com/adamwoolhether/reposearch/web/mux"
)

var corsHeaders = []string{"Content-Type", "Accept", "X-Requested-With", "Cache-Control"}

// CORS lets the listed origins call the JSON API from a browser. Entries may
// be comma separated, may hold path.Match patterns such as
// "https://*.preview.example", and "*" admits every origin. Requests without
// an Origin, or from the serving host itself, pass through untouched.
func CORS(allowedOrigins []string, allowedHeaders ...string) mux.Middleware {
	if len(allowedHeaders) == 0 {
		allowedHeaders = corsHeaders
	}

	origins := ParseOrigins(allowedOrigins)
	headers := strings.Join(allowedHeaders, ", ")

	return func(next mux.Handler) mux.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin == "" || sameHost(r, origin) {
				return next(ctx, w, r)
			}

			if !origins.Allows(origin) {
				return web.RespondError(ctx, w, errs.New(http.StatusForbidden, fmt.Errorf("origin %q not allowed", origin)))
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return nil
			}

			return next(ctx, w, r)
		}
	}
}

func sameHost(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// Origins is a parsed CORS allow list.
type Origins struct {
	any      bool
	exact    map[string]struct{}
	patterns []string
}

// ParseOrigins builds an allow list from config values.
func ParseOrigins(list []string) Origins {
	o := Origins{exact: make(map[string]struct{})}

	for _, entry := range list {
		for origin := range strings.SplitSeq(entry, ",") {
			origin = strings.TrimSpace(origin)
			switch {
			case origin == "":
			case origin == "*":
				o.any = true
			case strings.Contains(origin, "*"):
				o.patterns = append(o.patterns, origin)
			default:
				o.exact[origin] = struct{}{}
			}
		}
	}

	return o
}

// Allows reports whether origin may make cross-origin requests.
func (o Origins) Allows(origin string) bool {
	if o.any {
		return true
	}
	if _, ok := o.exact[origin]; ok {
		return true
	}
	for _, p := range o.patterns {
		if ok, err := path.Match(p, origin); ok && err == nil {
			return true
		}
	}

	return false
}

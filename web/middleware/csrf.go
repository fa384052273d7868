package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/adamwoolhether/reposearch/web"
	"github.com/adamwoolhether/reposearch/web/errs"
	"github.com/adamwoolhether/reposearch/web/mux"
)

// CSRF rejects cross-origin form posts and API calls with a 403, using
// [http.CrossOriginProtection]. Requests from trustedOrigins pass.
// Malformed origins are logged and ignored.
func CSRF(log *slog.Logger, trustedOrigins ...string) mux.Middleware {
	cop := http.NewCrossOriginProtection()
	for _, origin := range trustedOrigins {
		if err := cop.AddTrustedOrigin(origin); err != nil {
			log.Warn("csrf: ignoring trusted origin", "origin", origin, "error", err)
		}
	}

	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if err := cop.Check(r); err != nil {
				log.Warn("csrf: cross origin request rejected", "trace_id", mux.GetValues(ctx).TraceID,
					"method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"), "error", err)

				return web.RespondError(ctx, w, errs.New(http.StatusForbidden, err))
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}

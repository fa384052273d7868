package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamwoolhether/reposearch/web/mux"
)

// Logger logs the start and end of every request with its trace id. The
// completion line carries the route, the search session once a handler has
// resolved it, and is raised to WARN for 4xx and ERROR for 5xx statuses.
func Logger(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			log.DebugContext(ctx, "request started", "trace_id", v.TraceID, "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			err := handler(ctx, w, r)

			attrs := []any{"trace_id", v.TraceID, "method", r.Method, "path", path, "route", v.Route,
				"statusCode", v.StatusCode, "since", time.Since(v.Now).String()}
			if v.SessionID != "" {
				attrs = append(attrs, "session", v.SessionID)
			}

			log.Log(ctx, statusLevel(v.StatusCode), "request completed", attrs...)

			return err
		}

		return h
	}

	return m
}

func statusLevel(code int) slog.Level {
	switch {
	case code >= http.StatusInternalServerError:
		return slog.LevelError
	case code >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

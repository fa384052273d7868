package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/adamwoolhether/reposearch/web/mux"
)

// RequestObserver records finished requests.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

// Metrics reports every request's route, status and duration to obs.
// Requests that never set a status are reported as 200, which is what
// net/http writes for them.
func Metrics(obs RequestObserver) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.GetValues(ctx)

			err := handler(ctx, w, r)

			status := v.StatusCode
			if status == 0 {
				status = http.StatusOK
			}
			obs.ObserveRequest(v.Route, status, time.Since(v.Now))

			return err
		}

		return h
	}

	return m
}

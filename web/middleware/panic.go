package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adamwoolhether/reposearch/web/errs"
	"github.com/adamwoolhether/reposearch/web/mux"
)

// Panics converts a panicking handler into an internal error carrying the
// panic value, route, session and stack. Errors logs it and answers 500.
func Panics() mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				v := mux.GetValues(ctx)
				err = errs.NewInternal(fmt.Errorf("PANIC [%v] ROUTE[%s] SESSION[%s] TRACE[%s]", rec, v.Route, v.SessionID, debug.Stack()))
			}()

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}

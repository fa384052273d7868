package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/adamwoolhether/reposearch/search"
	"github.com/adamwoolhether/reposearch/web"
	"github.com/adamwoolhether/reposearch/web/errs"
	"github.com/adamwoolhether/reposearch/web/mux"
)

// CookieName carries the session id.
const CookieName = "reposearch_session"

// Directions accepted by the page endpoints.
const (
	DirectionPrevious = "previous"
	DirectionNext     = "next"
)

type handlers struct {
	build       string
	log         *slog.Logger
	registry    *search.Registry
	tmpl        *template.Template
	waitTimeout time.Duration
}

type searchRequest struct {
	Term string `json:"term" validate:"max=256"`
}

type pageRequest struct {
	Page      int    `json:"page" validate:"required_without=Direction,omitempty,min=1"`
	Direction string `json:"direction" validate:"required_without=Page,omitempty,oneof=previous next"`
}

// actionResponse reports whether an action passed the session's gate and
// what the session shows afterwards.
type actionResponse struct {
	Fired bool        `json:"fired"`
	View  search.View `json:"view"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Build    string `json:"build"`
	Sessions int    `json:"sessions"`
}

func (h *handlers) index(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	return web.RespondHTML(ctx, w, http.StatusOK, h.tmpl, "index.html", s.View(ctx))
}

func (h *handlers) submit(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	term, err := web.FormString(w, r, "term")
	if err != nil {
		return err
	}

	h.fire(ctx, s, "submit", s.Submit(term))

	return web.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handlers) paginate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	var req pageRequest

	p, ok, err := web.FormInt(w, r, "page")
	if err != nil {
		return err
	}
	if ok {
		req.Page = p
	} else {
		if req.Direction, err = web.FormString(w, r, "direction"); err != nil {
			return err
		}
	}

	if err := web.Validate(req); err != nil {
		return err
	}

	h.fire(ctx, s, "paginate", navigate(s, req))

	return web.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handlers) results(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	wait, err := web.QueryBool(r, "wait", false)
	if err != nil {
		return err
	}

	if !wait {
		return web.RespondJSON(ctx, w, http.StatusOK, s.View(ctx))
	}

	ctx, span := mux.AddSpan(ctx, "session.wait", attribute.String("session", s.ID))
	defer span.End()

	waitCtx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()

	// Load failures are part of the view, and a timed out wait is reported
	// as still loading.
	v, err := s.Wait(waitCtx)
	if err != nil && ctx.Err() != nil {
		return errs.New(http.StatusRequestTimeout, fmt.Errorf("waiting for results: %w", ctx.Err()))
	}

	return web.RespondJSON(ctx, w, http.StatusOK, v)
}

func (h *handlers) apiSearch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	var req searchRequest
	if err := web.Decode(w, r, &req); err != nil {
		return err
	}

	fired := s.Submit(req.Term)
	h.fire(ctx, s, "submit", fired)

	return web.RespondJSON(ctx, w, http.StatusOK, actionResponse{Fired: fired, View: s.View(ctx)})
}

func (h *handlers) apiPage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s, err := h.session(ctx, w, r)
	if err != nil {
		return err
	}

	var req pageRequest
	if err := web.Decode(w, r, &req); err != nil {
		return err
	}

	fired := navigate(s, req)
	h.fire(ctx, s, "paginate", fired)

	return web.RespondJSON(ctx, w, http.StatusOK, actionResponse{Fired: fired, View: s.View(ctx)})
}

func (h *handlers) health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := healthResponse{
		Status:   "ok",
		Build:    h.build,
		Sessions: h.registry.Len(),
	}

	return web.RespondJSON(ctx, w, http.StatusOK, resp)
}

// session resolves the caller's session from its cookie, starting a new
// one when the cookie is missing or names a session that no longer exists.
func (h *handlers) session(ctx context.Context, w http.ResponseWriter, r *http.Request) (*search.Session, error) {
	var id string
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}

	s, err := h.registry.Obtain(id)
	if err != nil {
		if errors.Is(err, search.ErrClosed) {
			return nil, errs.New(http.StatusServiceUnavailable, err)
		}
		return nil, errs.NewInternal(err)
	}

	if s.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}

	mux.SetSessionID(ctx, s.ID)

	return s, nil
}

func (h *handlers) fire(ctx context.Context, s *search.Session, action string, fired bool) {
	if !fired {
		h.log.InfoContext(ctx, "action dropped", "trace_id", mux.GetValues(ctx).TraceID, "session", s.ID, "action", action)
	}
}

func navigate(s *search.Session, req pageRequest) bool {
	switch {
	case req.Page > 0:
		return s.GoTo(req.Page)
	case req.Direction == DirectionPrevious:
		return s.Previous()
	default:
		return s.Next()
	}
}

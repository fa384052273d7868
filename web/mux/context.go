package mux

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type ctxKey int

const (
	base ctxKey = iota + 1
)

// Values are shared across the middleware and handler of one request.
type Values struct {
	TraceID    string
	Route      string
	SessionID  string
	Now        time.Time
	Tracer     trace.Tracer
	StatusCode int
}

// SetStatusCode records the status code written for the request.
func SetStatusCode(ctx context.Context, statusCode int) {
	v, ok := ctx.Value(base).(*Values)
	if !ok {
		return
	}

	v.StatusCode = statusCode
}

// SetSessionID records which search session served the request.
func SetSessionID(ctx context.Context, id string) {
	v, ok := ctx.Value(base).(*Values)
	if !ok {
		return
	}

	v.SessionID = id
}

// GetValues retrieves the Values from the given context. Outside a routed
// request it returns placeholder values.
func GetValues(ctx context.Context) *Values {
	v, ok := ctx.Value(base).(*Values)
	if !ok {
		return &Values{
			TraceID: uuid.Nil.String(),
			Tracer:  noop.NewTracerProvider().Tracer(""),
			Now:     time.Now(),
		}
	}

	return v
}

// AddSpan adds a span to the tracer, returning it and the context.
func AddSpan(ctx context.Context, spanName string, keyValues ...attribute.KeyValue) (context.Context, trace.Span) {
	v, ok := ctx.Value(base).(*Values)
	if !ok || v.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := v.Tracer.Start(ctx, spanName)
	span.SetAttributes(keyValues...)

	return ctx, span
}

func setValues(ctx context.Context, v *Values) context.Context {
	return context.WithValue(ctx, base, v)
}

// Package requestcontext carries request-scoped values through a context.
package requestcontext

import (
	"context"
	"time"
)

type contextKeyRequestID struct{}
type contextKeyRequestTime struct{}
type contextKeyAdminSubject struct{}

// WithRequestID stores the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, id)
}

// RequestID returns the request id, or "" outside a request.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID{}).(string); ok {
		return id
	}
	return ""
}

// WithTime pins "now" for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t)
}

// Now returns the pinned time, falling back to time.Now() for workers, CLI
// commands and tests that never set one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithAdminSubject stores the subject of a verified admin token.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKeyAdminSubject{}, subject)
}

// AdminSubject returns the admin subject, or "" for non-admin requests.
func AdminSubject(ctx context.Context) string {
	if s, ok := ctx.Value(contextKeyAdminSubject{}).(string); ok {
		return s
	}
	return ""
}

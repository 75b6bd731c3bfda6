// Package requesttime pins a single "now" per HTTP request, so every
// credential validity check inside one response agrees on the time.
package requesttime

import (
	"net/http"
	"time"

	"credpass/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
// Read it with requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an explicit time source.
func MiddlewareWithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Package admin guards the admin API with a bearer token.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"credpass/pkg/platform/httputil"
	"credpass/pkg/requestcontext"
)

// Verifier checks a bearer token and returns its subject.
type Verifier interface {
	Verify(token string) (subject string, err error)
}

// RequireAdmin rejects requests without a valid admin bearer token. The
// token subject is stored in the context for attribution in logs.
func RequireAdmin(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:       "unauthorized",
					Description: "admin bearer token required",
				})
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithAdminSubject(ctx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

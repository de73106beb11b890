package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/bookverse/identity/internal/handlers/render"
	loggerpkg "github.com/bookverse/identity/internal/logger"
)

// RecoverMiddleware converts a panicking handler into a generic 500.
// The panic is reported to Sentry (no-op client when no DSN is set)
// and logged with its stack
func RecoverMiddleware(l loggerpkg.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					sentry.CurrentHub().Recover(rec)

					l.Error("panic recovered",
						"method", r.Method,
						"uri", r.RequestURI,
						"panic", rec,
						"stack", string(debug.Stack()),
					)

					render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Package middleware holds the gateway's HTTP middleware.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"chatdigest/internal/gateway/handlers"
)

// Recovery returns a middleware that turns panics into a 500 response.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")

					handlers.SendError(
						w,
						http.StatusInternalServerError,
						handlers.ErrCodeInternalError,
						"internal server error",
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

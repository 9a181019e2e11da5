package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Recover guards the admin API from handler panics. The sequencer loop has
// its own panic recovery; this keeps a bad admin request from taking the
// HTTP surface down with it. The response carries the same error envelope
// the rest of the API uses.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := FromContext(r.Context())
					log.Error().
						Interface("panic", rec).
						Str("request_id", requestID).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("admin_panic")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"error": map[string]any{
							"code":       "internal",
							"message":    http.StatusText(http.StatusInternalServerError),
							"request_id": requestID,
						},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"github.com/docscout/docscout/internal/errors"
)

// bearerAuth requires "Authorization: Bearer <token>" where the expected
// token comes from the environment variable named in the server config.
// An empty variable name disables auth.
func bearerAuth(tokenEnv string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenEnv == "" {
				next.ServeHTTP(w, r)
				return
			}
			expected := os.Getenv(tokenEnv)
			if expected == "" {
				writeError(w, errors.New(errors.KindAuth, "API token not configured"))
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				writeError(w, errors.New(errors.KindAuth, "invalid or missing API token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter applies a global token-bucket limit with a burst of twice the
// sustained rate.
func rateLimiter(rps int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), 2*rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error: "rate limit exceeded",
					Kind:  "rate_limit",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/carverlabs/scribe/internal/config"
)

// RequireAuth gates the API behind the configured bearer token. Development
// mode is an explicit opt-out for local work; production requires both a
// configured token and a matching Authorization header, so an empty token
// locks the API shut rather than open.
func RequireAuth(next http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Security.SecurityMode == "development" {
			next.ServeHTTP(w, r)
			return
		}
		if !bearerMatches(r, cfg.Security.APIToken) {
			respondError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerMatches compares the request's bearer token against want in constant
// time. An empty want never matches.
func bearerMatches(r *http.Request, want string) bool {
	if want == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RateLimiter caps the request rate across the whole API with one shared
// token bucket. The ops surface is operator tooling, not a public API; a
// single global bucket is enough.
type RateLimiter struct {
	bucket *rate.Limiter
}

// NewRateLimiter allows reqPerSec sustained requests with the given burst.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{bucket: rate.NewLimiter(rate.Limit(reqPerSec), burst)}
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.bucket.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

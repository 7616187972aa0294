// HTTP middleware writing standard rate limit headers.

package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// WriteHeaders writes rate limit headers on both success and 429 responses.
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// Middleware limits requests per client IP.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := l.Allow(ClientIP(r))
			WriteHeaders(w, result)
			if !result.Allowed {
				apiErr := dto.RateLimited(result.RetryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(apiErr.StatusCode())
				_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: dto.ErrorDetails{
					Code:    apiErr.Code(),
					Message: apiErr.Error(),
					Details: apiErr.Details(),
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client address, honoring X-Forwarded-For when set by
// a trusted reverse proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

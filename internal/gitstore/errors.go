// Classifies upstream API failures into the publish error taxonomy.

package gitstore

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pagewright/pagewright/internal/server/dto"
)

const maxBodyInError = 512

// classifyResponse maps a non-2xx upstream response to a structured error.
// It is a pure function of status, headers and body; retry policy belongs to
// the caller.
func classifyResponse(status int, header http.Header, body []byte, path string) *dto.APIError {
	msg := upstreamMessage(body)
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusUnauthorized:
		return dto.Unauthenticated(msg).WithDetail("path", path)
	case status == http.StatusForbidden:
		if strings.Contains(lower, "rate limit") || strings.Contains(lower, "secondary rate") ||
			header.Get("X-RateLimit-Remaining") == "0" {
			return dto.RateLimited(retryAfterHint(header))
		}
		if strings.Contains(lower, "bad credentials") || strings.Contains(lower, "token expired") ||
			strings.Contains(lower, "credentials expired") {
			return dto.Unauthenticated(msg).WithDetail("path", path)
		}
		return dto.Forbidden(msg).WithDetail("path", path)
	case status == http.StatusTooManyRequests:
		return dto.RateLimited(retryAfterHint(header))
	case status == http.StatusNotFound:
		return dto.NotFound("upstream object").WithDetail("path", path)
	case status == http.StatusUnprocessableEntity && strings.Contains(lower, "fast forward"):
		// Non-forcing ref update rejected: another writer advanced the branch
		// between our ref read and this update.
		return dto.HeadMoved("", "")
	}

	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return dto.Upstream(status, string(body), path)
}

// upstreamMessage extracts the best-effort message field of an error body.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	s := string(body)
	if len(s) > maxBodyInError {
		s = s[:maxBodyInError]
	}
	return s
}

// retryAfterHint reads a retry delay from Retry-After or X-RateLimit-Reset.
func retryAfterHint(header http.Header) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

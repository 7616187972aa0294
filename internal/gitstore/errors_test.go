package gitstore

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/pagewright/pagewright/internal/server/dto"
)

func TestClassifyResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		code   dto.ErrorCode
	}{
		{"unauthorized", 401, nil, `{"message":"Requires authentication"}`, dto.ErrorCodeUnauthenticated},
		{"forbidden", 403, nil, `{"message":"Resource not accessible by integration"}`, dto.ErrorCodeForbidden},
		{"forbidden rate limit", 403, nil, `{"message":"API rate limit exceeded"}`, dto.ErrorCodeRateLimited},
		{"forbidden exhausted quota", 403, http.Header{"X-Ratelimit-Remaining": {"0"}}, `{"message":"whatever"}`, dto.ErrorCodeRateLimited},
		{"forbidden bad credentials", 403, nil, `{"message":"Bad credentials"}`, dto.ErrorCodeUnauthenticated},
		{"too many requests", 429, nil, `{}`, dto.ErrorCodeRateLimited},
		{"not found", 404, nil, `{"message":"Not Found"}`, dto.ErrorCodeNotFound},
		{"non fast forward", 422, nil, `{"message":"Update is not a fast forward"}`, dto.ErrorCodeHeadMoved},
		{"other 422", 422, nil, `{"message":"Validation Failed"}`, dto.ErrorCodeUpstream},
		{"server error", 500, nil, `oops`, dto.ErrorCodeUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			err := classifyResponse(tt.status, header, []byte(tt.body), "/repos/o/r/git/blobs")
			if err.Code() != tt.code {
				t.Errorf("code = %s, want %s", err.Code(), tt.code)
			}
		})
	}
}

func TestClassifyResponseRetryAfter(t *testing.T) {
	t.Parallel()
	header := http.Header{"Retry-After": {"30"}}
	err := classifyResponse(429, header, []byte(`{}`), "/x")
	if got := err.Details()["retryAfterSeconds"]; got != int64(30) {
		t.Errorf("retryAfterSeconds = %v, want 30", got)
	}
}

func TestClassifyResponseTruncatesBody(t *testing.T) {
	t.Parallel()
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	err := classifyResponse(500, http.Header{}, big, "/x")
	if body, _ := err.Details()["upstreamBody"].(string); len(body) > maxBodyInError {
		t.Errorf("body in error is %d bytes, want at most %d", len(body), maxBodyInError)
	}
}

func TestRetryAfterHintFromReset(t *testing.T) {
	t.Parallel()
	header := http.Header{}
	header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(90*time.Second).Unix(), 10))
	if d := retryAfterHint(header); d <= 0 || d > 91*time.Second {
		t.Errorf("hint = %v, want roughly 90s", d)
	}

	header.Set("X-RateLimit-Reset", "garbage")
	if d := retryAfterHint(header); d != 0 {
		t.Errorf("hint for malformed reset = %v, want 0", d)
	}
}

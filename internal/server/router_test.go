package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server/dto"
)

type stubCommitter struct{}

func (stubCommitter) Commit(context.Context, gitstore.CommitRequest) (*gitstore.CommitResult, error) {
	return &gitstore.CommitResult{SHA: "commit-1", HeadSHA: "commit-1"}, nil
}

const validBatch = `{"writes":[{"path":"notes/a.md","encoding":"utf8","content":"x"}]}`

func TestRouterHealth(t *testing.T) {
	t.Parallel()
	router := NewRouter(stubCommitter{}, Config{Branch: "main", Version: "test"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out dto.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Errorf("health = %+v", out)
	}
}

func TestRouterPublishRequiresBearer(t *testing.T) {
	t.Parallel()
	router := NewRouter(stubCommitter{}, Config{Branch: "main", AuthToken: "secret"})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(validBatch)))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
	t.Run("wrong token", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(validBatch))
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
	t.Run("correct token", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(validBatch))
		req.Header.Set("Authorization", "Bearer secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestRouterPublishNoAuthConfigured(t *testing.T) {
	t.Parallel()
	router := NewRouter(stubCommitter{}, Config{Branch: "main"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(validBatch)))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("rate limit headers missing")
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	t.Parallel()
	router := NewRouter(stubCommitter{}, Config{Branch: "main"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/publish", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

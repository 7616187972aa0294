// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"
	"time"

	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server/handlers"
	"github.com/pagewright/pagewright/internal/server/ratelimit"
)

// Config carries the router's runtime settings.
type Config struct {
	// Branch is the target branch of every publish.
	Branch string
	// AuthToken, when non-empty, is required as a bearer token on /api/publish.
	AuthToken string
	// MaxBodyBytes caps the publish request body (0 = default).
	MaxBodyBytes int64
	// Version is reported by the health endpoint.
	Version string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(committer gitstore.Committer, cfg Config) http.Handler {
	mux := &http.ServeMux{}

	hh := handlers.NewHealthHandler(cfg.Version)
	mux.HandleFunc("GET /api/health", hh.Health)

	limiter := ratelimit.NewLimiter(30, time.Minute, 10)
	ph := handlers.NewPublishHandler(committer, cfg.Branch, cfg.MaxBodyBytes)
	publishRoute := http.Handler(http.HandlerFunc(ph.Publish))
	publishRoute = ratelimit.Middleware(limiter)(publishRoute)
	publishRoute = RequireBearer(cfg.AuthToken)(publishRoute)
	mux.Handle("POST /api/publish", publishRoute)

	return mux
}

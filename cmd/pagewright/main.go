// Package main is the entry point for the pagewright publish server.
//
// pagewright serves the transactional publishing API of a git-backed
// personal site: one POST turns a batch of content writes and deletes into a
// single atomic commit on the content repository, using the remote's
// non-forcing ref update for optimistic concurrency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"

	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "pagewright: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	owner := flag.String("owner", "", "Content repository owner")
	repo := flag.String("repo", "", "Content repository name")
	branch := flag.String("branch", "main", "Content branch to publish to")
	storageRoot := flag.String("storage-root", "", "Optional path prefix inside the content repository")
	backend := flag.String("backend", "remote", "Commit backend (remote, local)")
	localDir := flag.String("local-dir", "./content", "Repository directory for the local backend")
	appID := flag.Int64("github-app-id", 0, "GitHub App ID (instead of a token)")
	appInstallID := flag.Int64("github-app-installation", 0, "GitHub App installation ID")
	appKeyPath := flag.String("github-app-key", "", "Path to the GitHub App private key PEM")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop empty attrs to keep lines short.
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	var committer gitstore.Committer
	switch *backend {
	case "remote":
		if *owner == "" || *repo == "" {
			return errors.New("-owner and -repo are required with the remote backend")
		}
		tokens, err := tokenSource(*appID, *appInstallID, *appKeyPath)
		if err != nil {
			return err
		}
		committer = gitstore.NewRemoteWriter(gitstore.NewClient(*owner, *repo, tokens), *storageRoot)
	case "local":
		writer, err := gitstore.NewLocalWriter(*localDir, *storageRoot, "", "")
		if err != nil {
			return fmt.Errorf("failed to open local repository: %w", err)
		}
		committer = writer
	default:
		return fmt.Errorf("unknown backend: %q", *backend)
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	buildVersion := getBuildVersion()
	httpServer := &http.Server{
		Addr: addr,
		Handler: server.NewRouter(committer, server.Config{
			Branch:    *branch,
			AuthToken: os.Getenv("PAGEWRIGHT_API_TOKEN"),
			Version:   buildVersion,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "backend", *backend, "branch", *branch, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// tokenSource picks GitHub App auth when configured, otherwise a token from
// the environment.
func tokenSource(appID, installID int64, keyPath string) (oauth2.TokenSource, error) {
	if appID != 0 || keyPath != "" {
		if appID == 0 || installID == 0 || keyPath == "" {
			return nil, errors.New("-github-app-id, -github-app-installation and -github-app-key must all be set")
		}
		pemKey, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read app key: %w", err)
		}
		return gitstore.NewAppTokenSource(appID, installID, pemKey)
	}
	token := os.Getenv("PAGEWRIGHT_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, errors.New("set PAGEWRIGHT_GITHUB_TOKEN (or GITHUB_TOKEN), or configure a GitHub App")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
}

func printVersion() {
	fmt.Printf("pagewright %s\n", getBuildVersion())
}

func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

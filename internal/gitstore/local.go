// Implements Committer against an on-disk repository using go-git.

package gitstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pagewright/pagewright/internal/content"
	"github.com/pagewright/pagewright/internal/server/dto"
)

// LocalWriter commits batches to a local repository. It operates on the
// checked-out branch; CommitRequest.Branch is informational only. The mutex
// plays the role the remote's conditional ref update plays for RemoteWriter:
// the head check and the commit happen under one lock.
type LocalWriter struct {
	dir         string
	storageRoot string
	name        string
	email       string
	repo        *gogit.Repository
	mu          sync.Mutex
}

// NewLocalWriter opens or initializes the repository at dir.
func NewLocalWriter(dir, storageRoot, name, email string) (*LocalWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	if name == "" {
		name = "pagewright"
	}
	if email == "" {
		email = "pagewright@localhost"
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet — initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}

	return &LocalWriter{
		dir:         dir,
		storageRoot: storageRoot,
		name:        name,
		email:       email,
		repo:        repo,
	}, nil
}

// Commit applies the batch to the worktree and commits it.
func (w *LocalWriter) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	headSHA := ""
	if head, err := w.repo.Head(); err == nil {
		headSHA = head.Hash().String()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, dto.InternalWithError("failed to read repository head", err)
	}
	if req.ExpectedHeadSHA != "" && req.ExpectedHeadSHA != headSHA {
		return nil, dto.HeadMoved(req.ExpectedHeadSHA, headSHA)
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return nil, dto.InternalWithError("failed to open worktree", err)
	}

	for _, fw := range req.Writes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := content.CleanPath(fw.Path)
		if err != nil {
			return nil, err
		}
		p = content.ApplyRoot(w.storageRoot, p)
		full := filepath.Join(w.dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, dto.InternalWithError("failed to create directory", err)
		}
		if err := os.WriteFile(full, fw.Content, 0o644); err != nil {
			return nil, dto.InternalWithError("failed to write file", err)
		}
		if _, err := wt.Add(p); err != nil {
			return nil, dto.InternalWithError("failed to stage file", err).WithDetail("path", p)
		}
	}
	for _, dp := range req.Deletes {
		p, err := content.CleanPath(dp)
		if err != nil {
			return nil, err
		}
		p = content.ApplyRoot(w.storageRoot, p)
		if _, err := wt.Remove(p); err != nil {
			return nil, dto.NotFound("file " + p).Wrap(err)
		}
	}

	message := req.Message
	if message == "" {
		message = "Publish content update"
	}
	now := time.Now()
	sig := &object.Signature{Name: w.name, Email: w.email, When: now}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author:    sig,
		Committer: sig,
		// Re-publishing identical content still produces a distinct commit,
		// matching the remote backend's behavior.
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, dto.InternalWithError("failed to commit", err)
	}

	sha := hash.String()
	return &CommitResult{SHA: sha, HeadSHA: sha}, nil
}

// Defines the Committer contract and the remote atomic commit writer.

package gitstore

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pagewright/pagewright/internal/content"
	"github.com/pagewright/pagewright/internal/server/dto"
)

// blobConcurrency bounds the blob-creation fan-out. Blob creates are the only
// independent calls in the commit sequence; everything else is strictly
// ordered because each step consumes the previous step's output.
const blobConcurrency = 4

const fileModeRegular = "100644"

// FileWrite is one file to create or replace in a commit.
type FileWrite struct {
	Path     string
	Content  []byte
	Encoding dto.Encoding
}

// CommitRequest is one atomic batch of writes and deletes.
// Writes and deletes must target disjoint paths; the reconciler enforces
// this before a request reaches any Committer.
type CommitRequest struct {
	Branch  string
	Message string
	Writes  []FileWrite
	Deletes []string
	// ExpectedHeadSHA, when set, makes the commit fail with HEAD_MOVED if the
	// branch no longer points at it.
	ExpectedHeadSHA string
}

// CommitResult describes the commit produced by a successful batch.
type CommitResult struct {
	SHA     string
	URL     string
	HeadSHA string
}

// Committer turns one batch of file operations into one commit, atomically.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (*CommitResult, error)
}

// RemoteWriter commits against GitHub's object API.
//
// Failure at any step leaves already-created blobs and trees orphaned; the
// content-addressable store garbage-collects unreferenced objects, so no
// compensating deletes are attempted.
type RemoteWriter struct {
	client      *Client
	storageRoot string
}

// NewRemoteWriter creates a writer. storageRoot, when non-empty, prefixes
// every path in the target repository.
func NewRemoteWriter(client *Client, storageRoot string) *RemoteWriter {
	return &RemoteWriter{client: client, storageRoot: storageRoot}
}

// Commit executes the read-verify-write sequence. Single attempt, no
// implicit retry: ref read, optimistic head check, base tree read, blob
// fan-out, tree create, commit create, non-forcing ref update.
func (w *RemoteWriter) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	storagePaths := make([]string, len(req.Writes))
	for i, fw := range req.Writes {
		p, err := content.CleanPath(fw.Path)
		if err != nil {
			return nil, err
		}
		storagePaths[i] = content.ApplyRoot(w.storageRoot, p)
	}
	deletePaths := make([]string, len(req.Deletes))
	for i, dp := range req.Deletes {
		p, err := content.CleanPath(dp)
		if err != nil {
			return nil, err
		}
		deletePaths[i] = content.ApplyRoot(w.storageRoot, p)
	}

	headSHA, err := w.client.GetRef(ctx, req.Branch)
	if err != nil {
		return nil, err
	}
	if req.ExpectedHeadSHA != "" && req.ExpectedHeadSHA != headSHA {
		return nil, dto.HeadMoved(req.ExpectedHeadSHA, headSHA)
	}

	baseTree, err := w.client.GetCommit(ctx, headSHA)
	if err != nil {
		return nil, err
	}

	blobSHAs := make([]string, len(req.Writes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobConcurrency)
	for i, fw := range req.Writes {
		g.Go(func() error {
			sha, err := w.client.CreateBlob(gctx, fw.Content, fw.Encoding)
			if err != nil {
				var apiErr *dto.APIError
				if errors.As(err, &apiErr) {
					apiErr.WithDetail("path", storagePaths[i])
				}
				return err
			}
			blobSHAs[i] = sha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]TreeEntry, 0, len(req.Writes)+len(deletePaths))
	for i := range req.Writes {
		sha := blobSHAs[i]
		entries = append(entries, TreeEntry{
			Path: storagePaths[i],
			Mode: fileModeRegular,
			Type: "blob",
			SHA:  &sha,
		})
	}
	for _, p := range deletePaths {
		// Tombstone: a nil sha removes the path from the tree.
		entries = append(entries, TreeEntry{
			Path: p,
			Mode: fileModeRegular,
			Type: "blob",
			SHA:  nil,
		})
	}

	treeSHA, err := w.client.CreateTree(ctx, baseTree, entries)
	if err != nil {
		return nil, err
	}

	message := req.Message
	if message == "" {
		message = "Publish content update"
	}
	commitSHA, commitURL, err := w.client.CreateCommit(ctx, message, treeSHA, []string{headSHA})
	if err != nil {
		return nil, err
	}

	if err := w.client.UpdateRef(ctx, req.Branch, commitSHA); err != nil {
		var apiErr *dto.APIError
		if errors.As(err, &apiErr) && apiErr.Code() == dto.ErrorCodeHeadMoved {
			// Fill in both shas so the caller can show who won the race.
			actual, refErr := w.client.GetRef(ctx, req.Branch)
			if refErr != nil {
				slog.WarnContext(ctx, "failed to re-read ref after lost race", "branch", req.Branch, "err", refErr)
			}
			return nil, dto.HeadMoved(headSHA, actual)
		}
		return nil, err
	}

	return &CommitResult{SHA: commitSHA, URL: commitURL, HeadSHA: commitSHA}, nil
}

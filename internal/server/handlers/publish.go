// Package handlers implements the HTTP handlers of the publish API.
package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pagewright/pagewright/internal/content"
	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server/dto"
)

// DefaultMaxBodyBytes caps the publish request body. Binary uploads travel
// base64-encoded inside it.
const DefaultMaxBodyBytes = 32 << 20

// PublishHandler turns publish API requests into commit batches.
type PublishHandler struct {
	committer    gitstore.Committer
	branch       string
	maxBodyBytes int64
}

// NewPublishHandler creates the handler for POST /api/publish.
func NewPublishHandler(committer gitstore.Committer, branch string, maxBodyBytes int64) *PublishHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &PublishHandler{committer: committer, branch: branch, maxBodyBytes: maxBodyBytes}
}

// Publish executes one atomic publish batch.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, r, dto.PayloadTooLarge(maxBytesErr.Limit))
			return
		}
		WriteError(w, r, dto.ValidationFailed("failed to read request body").Wrap(err))
		return
	}

	var req dto.PublishRequest
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(&req); err != nil {
		WriteError(w, r, dto.ValidationFailed("invalid request body").Wrap(err))
		return
	}

	commitReq, err := h.toCommitRequest(&req)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	result, err := h.committer.Commit(r.Context(), *commitReq)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Published content batch",
		"writes", len(req.Writes), "deletes", len(req.Deletes), "commit", result.SHA)
	WriteJSON(w, r, &dto.PublishResponse{Commit: dto.CommitInfo{
		SHA:     result.SHA,
		URL:     result.URL,
		HeadSHA: result.HeadSHA,
	}})
}

// toCommitRequest validates the wire request. The client-side reconciler
// already normalizes batches, but the server never trusts that: paths are
// re-validated and duplicates rejected before anything reaches the writer,
// which treats duplicate paths as undefined behavior.
func (h *PublishHandler) toCommitRequest(req *dto.PublishRequest) (*gitstore.CommitRequest, error) {
	if len(req.Writes) == 0 && len(req.Deletes) == 0 {
		return nil, dto.ValidationFailed("publish batch is empty")
	}

	seen := make(map[string]bool, len(req.Writes)+len(req.Deletes))
	out := &gitstore.CommitRequest{
		Branch:          h.branch,
		Message:         req.Message,
		ExpectedHeadSHA: req.ExpectedHeadSHA,
	}
	for _, w := range req.Writes {
		p, err := content.CleanPath(w.Path)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, dto.ValidationFailed("duplicate path in batch").WithDetail("path", p)
		}
		seen[p] = true

		fw := gitstore.FileWrite{Path: p, Encoding: w.Encoding}
		switch w.Encoding {
		case dto.EncodingUTF8:
			fw.Content = []byte(w.Content)
		case dto.EncodingBase64:
			data, err := base64.StdEncoding.DecodeString(w.Content)
			if err != nil {
				return nil, dto.ValidationFailed("content is not valid base64").WithDetail("path", p).Wrap(err)
			}
			fw.Content = data
		default:
			return nil, dto.ValidationFailed("unknown content encoding").
				WithDetail("path", p).
				WithDetail("encoding", string(w.Encoding))
		}
		out.Writes = append(out.Writes, fw)
	}
	for _, dp := range req.Deletes {
		p, err := content.CleanPath(dp)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, dto.ValidationFailed("duplicate path in batch").WithDetail("path", p)
		}
		seen[p] = true
		out.Deletes = append(out.Deletes, p)
	}
	return out, nil
}

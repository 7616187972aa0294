// Package gitstore writes content batches to a git repository as single
// atomic commits.
//
// The remote backend talks to GitHub's git object API (blobs, trees, commits,
// refs) and relies on the non-forcing ref update for optimistic concurrency.
// The local backend provides the same contract against an on-disk repository
// via go-git, for offline development and tests.
package gitstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// Client is a thin, stateless wrapper around GitHub's git object API for a
// single repository. It keeps no cached repository state; head and tree shas
// are read fresh per transaction.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// NewClient creates a client for one repository. Credentials come from the
// token source on every call so expiring installation tokens keep working.
func NewClient(owner, repo string, tokens oauth2.TokenSource) *Client {
	return &Client{
		baseURL:    "https://api.github.com",
		owner:      owner,
		repo:       repo,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	URL  string `json:"html_url"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

// TreeEntry is one entry of a tree create request. A nil SHA is a tombstone
// removing the path from the tree.
type TreeEntry struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

// GetRef returns the commit sha the branch currently points at.
func (c *Client) GetRef(ctx context.Context, branch string) (string, error) {
	var out refResponse
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", c.owner, c.repo, branch)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Object.SHA, nil
}

// GetCommit returns the tree sha of a commit.
func (c *Client) GetCommit(ctx context.Context, sha string) (string, error) {
	var out commitResponse
	path := fmt.Sprintf("/repos/%s/%s/git/commits/%s", c.owner, c.repo, sha)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Tree.SHA, nil
}

// CreateBlob uploads one file body and returns its object sha.
func (c *Client) CreateBlob(ctx context.Context, content []byte, encoding dto.Encoding) (string, error) {
	body := map[string]string{}
	if encoding == dto.EncodingBase64 {
		body["content"] = base64.StdEncoding.EncodeToString(content)
		body["encoding"] = "base64"
	} else {
		body["content"] = string(content)
		body["encoding"] = "utf-8"
	}
	var out shaResponse
	path := fmt.Sprintf("/repos/%s/%s/git/blobs", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateTree creates a tree layered on baseTree with the given entries.
func (c *Client) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	body := map[string]any{
		"base_tree": baseTree,
		"tree":      entries,
	}
	var out shaResponse
	path := fmt.Sprintf("/repos/%s/%s/git/trees", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateCommit creates a commit object and returns its sha and web URL.
func (c *Client) CreateCommit(ctx context.Context, message, tree string, parents []string) (string, string, error) {
	body := map[string]any{
		"message": message,
		"tree":    tree,
		"parents": parents,
	}
	var out commitResponse
	path := fmt.Sprintf("/repos/%s/%s/git/commits", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", "", err
	}
	url := out.URL
	if url == "" {
		url = fmt.Sprintf("https://github.com/%s/%s/commit/%s", c.owner, c.repo, out.SHA)
	}
	return out.SHA, url, nil
}

// UpdateRef moves the branch ref to sha, never forcing. The remote rejects
// the update unless it is a fast-forward of the ref's current value; that
// rejection is the compare-and-swap this whole package depends on.
func (c *Client) UpdateRef(ctx context.Context, branch, sha string) error {
	body := map[string]any{
		"sha":   sha,
		"force": false,
	}
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", c.owner, c.repo, branch)
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return dto.InternalWithError("failed to encode request", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return dto.InternalWithError("failed to build request", err)
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return dto.Unauthenticated("failed to obtain access token").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dto.Upstream(0, err.Error(), path).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return dto.Upstream(resp.StatusCode, "failed to read response body", path).Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp.StatusCode, resp.Header, data, path)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return dto.Upstream(resp.StatusCode, "malformed response body", path).Wrap(err)
		}
	}
	return nil
}

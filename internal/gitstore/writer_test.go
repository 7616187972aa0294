package gitstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// fakeGitHub simulates the subset of the git object API the writer uses.
type fakeGitHub struct {
	mu          sync.Mutex
	headSHA     string
	nextHeadSHA string // returned by ref reads after a rejected update
	rejectRef   bool   // reject the ref update as a non-fast-forward

	blobCreates   int
	treeCreates   int
	commitCreates int
	refUpdates    int

	lastTree struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string  `json:"path"`
			Mode string  `json:"mode"`
			SHA  *string `json:"sha"`
		} `json:"tree"`
	}
	lastRefUpdate struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sha := f.headSHA
		if f.refUpdates > 0 && f.nextHeadSHA != "" {
			sha = f.nextHeadSHA
		}
		fmt.Fprintf(w, `{"ref":"refs/heads/main","object":{"sha":%q}}`, sha)
	})
	mux.HandleFunc("GET /repos/o/r/git/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":%q,"tree":{"sha":"tree-base"}}`, r.PathValue("sha"))
	})
	mux.HandleFunc("POST /repos/o/r/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.blobCreates++
		n := f.blobCreates
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"sha":"blob-%d"}`, n)
	})
	mux.HandleFunc("POST /repos/o/r/git/trees", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.treeCreates++
		if err := json.NewDecoder(r.Body).Decode(&f.lastTree); err != nil {
			t.Errorf("bad tree request: %v", err)
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sha":"tree-new"}`)
	})
	mux.HandleFunc("POST /repos/o/r/git/commits", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.commitCreates++
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sha":"commit-new","html_url":"https://example.test/commit-new"}`)
	})
	mux.HandleFunc("PATCH /repos/o/r/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.refUpdates++
		if err := json.NewDecoder(r.Body).Decode(&f.lastRefUpdate); err != nil {
			t.Errorf("bad ref update request: %v", err)
		}
		if f.rejectRef {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message":"Update is not a fast forward"}`)
			return
		}
		f.headSHA = f.lastRefUpdate.SHA
		fmt.Fprintf(w, `{"object":{"sha":%q}}`, f.lastRefUpdate.SHA)
	})
	return mux
}

func newTestWriter(t *testing.T, f *fakeGitHub, storageRoot string) *RemoteWriter {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	client := NewClient("o", "r", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}))
	client.SetBaseURL(srv.URL)
	return NewRemoteWriter(client, storageRoot)
}

func TestRemoteWriterCommit(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{headSHA: "head-1"}
	w := newTestWriter(t, f, "")

	result, err := w.Commit(t.Context(), CommitRequest{
		Branch:  "main",
		Message: "Publish hello",
		Writes: []FileWrite{
			{Path: "notes/2026-02-06-hello.md", Content: []byte("body"), Encoding: dto.EncodingUTF8},
			{Path: "uploads/photo.png", Content: []byte{0x89, 0x50}, Encoding: dto.EncodingBase64},
		},
		Deletes:         []string{"notes/old.md"},
		ExpectedHeadSHA: "head-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.SHA != "commit-new" || result.HeadSHA != "commit-new" {
		t.Errorf("result = %+v", result)
	}
	if result.URL != "https://example.test/commit-new" {
		t.Errorf("url = %q", result.URL)
	}

	if f.blobCreates != 2 {
		t.Errorf("blob creates = %d, want 2", f.blobCreates)
	}
	if f.lastTree.BaseTree != "tree-base" {
		t.Errorf("base tree = %q", f.lastTree.BaseTree)
	}
	if len(f.lastTree.Tree) != 3 {
		t.Fatalf("tree entries = %d, want 3", len(f.lastTree.Tree))
	}
	var tombstones int
	for _, e := range f.lastTree.Tree {
		if e.SHA == nil {
			tombstones++
			if e.Path != "notes/old.md" {
				t.Errorf("tombstone path = %q", e.Path)
			}
		}
	}
	if tombstones != 1 {
		t.Errorf("tombstones = %d, want 1", tombstones)
	}
	if f.lastRefUpdate.Force {
		t.Error("ref update must never force")
	}
	if f.lastRefUpdate.SHA != "commit-new" {
		t.Errorf("ref update sha = %q", f.lastRefUpdate.SHA)
	}
}

func TestRemoteWriterAppliesStorageRoot(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{headSHA: "head-1"}
	w := newTestWriter(t, f, "site")

	_, err := w.Commit(t.Context(), CommitRequest{
		Branch: "main",
		Writes: []FileWrite{{Path: "notes/a.md", Content: []byte("x"), Encoding: dto.EncodingUTF8}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.lastTree.Tree[0].Path; got != "site/notes/a.md" {
		t.Errorf("tree path = %q, want site/notes/a.md", got)
	}
}

func TestRemoteWriterHeadMovedBeforeAnyWrite(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{headSHA: "head-2"}
	w := newTestWriter(t, f, "")

	_, err := w.Commit(t.Context(), CommitRequest{
		Branch:          "main",
		Writes:          []FileWrite{{Path: "notes/a.md", Content: []byte("x"), Encoding: dto.EncodingUTF8}},
		ExpectedHeadSHA: "head-1",
	})
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) || apiErr.Code() != dto.ErrorCodeHeadMoved {
		t.Fatalf("err = %v, want HEAD_MOVED", err)
	}
	if apiErr.Details()["expectedHeadSha"] != "head-1" || apiErr.Details()["actualHeadSha"] != "head-2" {
		t.Errorf("details = %v", apiErr.Details())
	}
	// The stale head must be detected before anything is uploaded.
	if f.blobCreates != 0 || f.treeCreates != 0 || f.commitCreates != 0 || f.refUpdates != 0 {
		t.Errorf("writes happened despite stale head: %+v", f)
	}
}

func TestRemoteWriterLostRefRace(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{headSHA: "head-1", nextHeadSHA: "head-intruder", rejectRef: true}
	w := newTestWriter(t, f, "")

	_, err := w.Commit(t.Context(), CommitRequest{
		Branch: "main",
		Writes: []FileWrite{{Path: "notes/a.md", Content: []byte("x"), Encoding: dto.EncodingUTF8}},
	})
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) || apiErr.Code() != dto.ErrorCodeHeadMoved {
		t.Fatalf("err = %v, want HEAD_MOVED", err)
	}
	if apiErr.Details()["expectedHeadSha"] != "head-1" || apiErr.Details()["actualHeadSha"] != "head-intruder" {
		t.Errorf("details = %v", apiErr.Details())
	}
}

func TestRemoteWriterRejectsBadPathWithoutNetwork(t *testing.T) {
	t.Parallel()
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := NewClient("o", "r", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}))
	client.SetBaseURL(srv.URL)
	w := NewRemoteWriter(client, "")

	_, err := w.Commit(t.Context(), CommitRequest{
		Branch: "main",
		Writes: []FileWrite{{Path: "../etc/passwd", Content: []byte("x"), Encoding: dto.EncodingUTF8}},
	})
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) || apiErr.Code() != dto.ErrorCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if requests != 0 {
		t.Errorf("made %d requests, want 0", requests)
	}
}

func TestRemoteWriterTaggedBlobFailure(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":{"sha":"head-1"}}`)
	})
	mux.HandleFunc("GET /repos/o/r/git/commits/head-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tree":{"sha":"tree-base"}}`)
	})
	mux.HandleFunc("POST /repos/o/r/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"boom"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := NewClient("o", "r", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}))
	client.SetBaseURL(srv.URL)
	w := NewRemoteWriter(client, "")

	_, err := w.Commit(t.Context(), CommitRequest{
		Branch: "main",
		Writes: []FileWrite{{Path: "notes/a.md", Content: []byte("x"), Encoding: dto.EncodingUTF8}},
	})
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if p, _ := apiErr.Details()["path"].(string); !strings.Contains(p, "notes/a.md") {
		t.Errorf("blob failure not tagged with path: %v", apiErr.Details())
	}
}

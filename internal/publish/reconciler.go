// Package publish turns staged drafts into one atomic commit.
//
// The reconciler snapshots the draft store, normalizes every draft into
// file-level write/delete operations, resolves collisions, validates the
// whole batch before touching the network, and submits exactly one commit
// request. Drafts are consumed only after that commit succeeds.
package publish

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pagewright/pagewright/internal/content"
	"github.com/pagewright/pagewright/internal/drafts"
	"github.com/pagewright/pagewright/internal/gitstore"
	"github.com/pagewright/pagewright/internal/server/dto"
)

// Reconciler converts the current set of staged drafts into single publishes.
// PublishAll calls are serialized; two in-flight publishes from the same
// client would race each other at the remote ref for no benefit.
type Reconciler struct {
	store     *drafts.Store
	committer gitstore.Committer
	branch    string
	now       func() time.Time

	mu          sync.Mutex
	lastHeadSHA string
}

// NewReconciler creates a reconciler publishing to branch via committer.
func NewReconciler(store *drafts.Store, committer gitstore.Committer, branch string) *Reconciler {
	return &Reconciler{
		store:     store,
		committer: committer,
		branch:    branch,
		now:       time.Now,
	}
}

// SetHead seeds the optimistic-concurrency check with a known head sha.
// When unset, the first publish skips the early head comparison and relies
// solely on the non-forcing ref update.
func (r *Reconciler) SetHead(sha string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHeadSHA = sha
}

// pendingWrite tracks which draft produced a write, for collision reporting.
type pendingWrite struct {
	op     gitstore.FileWrite
	source string // draft key
}

// PublishAll publishes every currently staged draft as one commit.
// Zero staged drafts is a no-op returning (nil, nil). On any failure before
// the commit the drafts are left untouched. When the commit lands but the
// consumed drafts cannot be cleared, both the result and an error are
// returned; callers must check the result before the error.
func (r *Reconciler) PublishAll(ctx context.Context, message string) (*gitstore.CommitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.store.List()
	if len(snapshot) == 0 {
		return nil, nil
	}

	writes := make(map[string]pendingWrite)
	deletes := make(map[string]string) // path -> draft key
	var errs []error

	addWrite := func(source string, op gitstore.FileWrite) {
		if _, err := content.CleanPath(op.Path); err != nil {
			errs = append(errs, draftErr(source, err))
			return
		}
		if prev, ok := writes[op.Path]; ok {
			errs = append(errs, dto.ValidationFailed("two drafts write the same path").
				WithDetail("path", op.Path).
				WithDetail("drafts", []string{prev.source, source}))
			return
		}
		writes[op.Path] = pendingWrite{op: op, source: source}
	}
	addDelete := func(source, path string) {
		if _, err := content.CleanPath(path); err != nil {
			errs = append(errs, draftErr(source, err))
			return
		}
		deletes[path] = source
	}

	for i := range snapshot {
		d := &snapshot[i]
		switch d.Kind {
		case drafts.KindNote:
			r.normalizeNote(d, addWrite, addDelete, &errs)
		case drafts.KindRoadmap:
			r.normalizeEntity(d, d.Roadmap, content.RoadmapPath, renderRoadmap, addWrite, addDelete, &errs)
		case drafts.KindMindmap:
			r.normalizeEntity(d, d.Mindmap, content.MindmapPath, r.renderMindmap, addWrite, addDelete, &errs)
		case drafts.KindConfig:
			if err := content.ValidateConfig(d.Config.File, d.Config.Body); err != nil {
				errs = append(errs, draftErr(d.Key, err))
				continue
			}
			addWrite(d.Key, gitstore.FileWrite{
				Path:     content.ConfigPath(d.Config.File),
				Content:  []byte(d.Config.Body),
				Encoding: dto.EncodingUTF8,
			})
		case drafts.KindAssets:
			r.normalizeAssets(d, addWrite, addDelete, &errs)
		}
	}

	// All validation errors are reported together so the user can fix every
	// issue in one pass instead of one error per publish attempt.
	if len(errs) > 0 {
		return nil, dto.ValidationFailed("publish aborted, staged drafts failed validation").
			WithDetail("draftErrors", errorDetails(errs)).
			Wrap(errors.Join(errs...))
	}

	// Write-wins: a path staged as both write and delete keeps the write,
	// because the write represents the newer intent.
	for path := range writes {
		delete(deletes, path)
	}

	req := gitstore.CommitRequest{
		Branch:          r.branch,
		Message:         message,
		ExpectedHeadSHA: r.lastHeadSHA,
	}
	for _, pw := range writes {
		req.Writes = append(req.Writes, pw.op)
	}
	sort.Slice(req.Writes, func(i, j int) bool { return req.Writes[i].Path < req.Writes[j].Path })
	for path := range deletes {
		req.Deletes = append(req.Deletes, path)
	}
	sort.Strings(req.Deletes)

	result, err := r.committer.Commit(ctx, req)
	if err != nil {
		return nil, err
	}

	// Consume exactly the snapshotted drafts; anything staged mid-publish
	// stays for the next one.
	keys := make([]string, len(snapshot))
	for i, d := range snapshot {
		keys[i] = d.Key
	}
	if err := r.store.DeleteAll(keys); err != nil {
		// The commit landed; the caller must still learn its sha.
		return result, dto.InternalWithError("publish succeeded but consumed drafts could not be cleared", err).
			WithDetail("commitSha", result.SHA)
	}
	r.lastHeadSHA = result.HeadSHA
	return result, nil
}

func (r *Reconciler) normalizeNote(d *drafts.Draft, addWrite func(string, gitstore.FileWrite), addDelete func(string, string), errs *[]error) {
	n := d.Note
	if n.PendingDelete {
		if n.RemoteID == "" {
			// Never published; nothing remote to delete or preserve.
			return
		}
		live := content.NotePath(n.RemoteID)
		trash, err := content.TrashPath(live)
		if err != nil {
			*errs = append(*errs, draftErr(d.Key, err))
			return
		}
		addWrite(d.Key, gitstore.FileWrite{Path: trash, Content: []byte(n.BaseBody), Encoding: dto.EncodingUTF8})
		addDelete(d.Key, live)
		return
	}

	id := n.RemoteID
	if id == "" {
		var err error
		id, err = content.ResolveNoteID(n.Date, n.Slug, n.Title, r.now())
		if err != nil {
			*errs = append(*errs, draftErr(d.Key, err))
			return
		}
	}

	// Merge editor values over the previously published metadata so fields
	// the editor does not model survive the edit untouched.
	base, err := content.ParseNote(n.BaseBody)
	if err != nil {
		*errs = append(*errs, draftErr(d.Key, err))
		return
	}
	note := &content.Note{
		Title:      n.Title,
		Date:       n.Date,
		Updated:    n.Updated,
		Categories: n.Categories,
		Tags:       n.Tags,
		Links:      n.Links,
		Cover:      n.Cover,
		Draft:      n.DraftFlag,
		Extra:      base.Extra,
		Body:       n.Body,
	}
	body, err := note.Render()
	if err != nil {
		*errs = append(*errs, draftErr(d.Key, err))
		return
	}
	addWrite(d.Key, gitstore.FileWrite{Path: content.NotePath(id), Content: []byte(body), Encoding: dto.EncodingUTF8})
}

func (r *Reconciler) normalizeEntity(d *drafts.Draft, e *drafts.EntityDraft, livePath func(string) string, render func(body, id string) (string, error), addWrite func(string, gitstore.FileWrite), addDelete func(string, string), errs *[]error) {
	if err := content.ValidateEntityID(e.ID); err != nil {
		*errs = append(*errs, draftErr(d.Key, err))
		return
	}
	live := livePath(e.ID)
	if e.PendingDelete {
		trash, err := content.TrashPath(live)
		if err != nil {
			*errs = append(*errs, draftErr(d.Key, err))
			return
		}
		addWrite(d.Key, gitstore.FileWrite{Path: trash, Content: []byte(e.Body), Encoding: dto.EncodingUTF8})
		addDelete(d.Key, live)
		return
	}
	body, err := render(e.Body, e.ID)
	if err != nil {
		*errs = append(*errs, draftErr(d.Key, err))
		return
	}
	addWrite(d.Key, gitstore.FileWrite{Path: live, Content: []byte(body), Encoding: dto.EncodingUTF8})
}

func (r *Reconciler) normalizeAssets(d *drafts.Draft, addWrite func(string, gitstore.FileWrite), addDelete func(string, string), errs *[]error) {
	for _, up := range d.Assets.Uploads {
		data, err := base64.StdEncoding.DecodeString(up.Content)
		if err != nil {
			*errs = append(*errs, draftErr(d.Key, dto.ValidationFailed("asset content is not valid base64").WithDetail("name", up.Name).Wrap(err)))
			continue
		}
		addWrite(d.Key, gitstore.FileWrite{Path: content.UploadPath(up.Name), Content: data, Encoding: dto.EncodingBase64})
	}
	for _, name := range d.Assets.Deletes {
		addDelete(d.Key, content.UploadPath(name))
	}
}

func renderRoadmap(body, id string) (string, error) {
	r, err := content.ParseRoadmap(body, id)
	if err != nil {
		return "", err
	}
	return content.RenderRoadmap(r)
}

func (r *Reconciler) renderMindmap(body, id string) (string, error) {
	if body == "" {
		return content.RenderMindmap(&content.Mindmap{ID: id}, r.now())
	}
	m, err := content.ParseMindmap(body, id)
	if err != nil {
		return "", err
	}
	return content.RenderMindmap(m, r.now())
}

// draftErr tags a validation failure with the draft that caused it.
func draftErr(key string, err error) error {
	var apiErr *dto.APIError
	if errors.As(err, &apiErr) {
		return apiErr.WithDetail("draft", key)
	}
	return dto.ValidationFailed("draft failed validation").WithDetail("draft", key).Wrap(err)
}

// errorDetails flattens per-draft errors for the error envelope.
func errorDetails(errs []error) []map[string]any {
	out := make([]map[string]any, 0, len(errs))
	for _, err := range errs {
		entry := map[string]any{"message": err.Error()}
		var apiErr *dto.APIError
		if errors.As(err, &apiErr) {
			for k, v := range apiErr.Details() {
				entry[k] = v
			}
		}
		out = append(out, entry)
	}
	return out
}

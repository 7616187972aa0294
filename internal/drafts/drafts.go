// Package drafts is the durable client-side staging area for unpublished
// content edits.
//
// A Draft is a closed tagged union over the five editable entity kinds. Each
// draft is self-describing and restorable across process restarts; the store
// keeps at most one live draft per (kind, entity) with last write winning.
package drafts

import (
	"time"
)

// Kind discriminates the draft union.
type Kind string

const (
	// KindNote is a markdown note with front matter.
	KindNote Kind = "note"
	// KindRoadmap is a YAML roadmap document.
	KindRoadmap Kind = "roadmap"
	// KindMindmap is a JSON mindmap envelope.
	KindMindmap Kind = "mindmap"
	// KindConfig is a well-known site config file.
	KindConfig Kind = "config"
	// KindAssets is a batch of binary uploads and deletions.
	KindAssets Kind = "assets"
)

// Draft is one locally-staged edit. Exactly one of the kind-specific arms is
// set, matching Kind.
type Draft struct {
	Key     string    `json:"key"`
	Kind    Kind      `json:"kind"`
	SavedAt time.Time `json:"savedAt"`

	Note    *NoteDraft   `json:"note,omitempty"`
	Roadmap *EntityDraft `json:"roadmap,omitempty"`
	Mindmap *EntityDraft `json:"mindmap,omitempty"`
	Config  *ConfigDraft `json:"config,omitempty"`
	Assets  *AssetBatch  `json:"assets,omitempty"`
}

// RowKey implements jsonldb.Keyer.
func (d Draft) RowKey() string {
	return d.Key
}

// NoteDraft holds the structured editor fields of one note.
type NoteDraft struct {
	// RemoteID is empty until the note has been published once; the id is
	// derived from date and slug at first publish and fixed thereafter.
	RemoteID string `json:"remoteId,omitempty"`
	// BaseBody is the last-known remote body. Rendering merges editor values
	// over it so front-matter fields the editor does not model survive, and
	// pending deletes preserve it in the trash mirror.
	BaseBody string `json:"baseBody,omitempty"`

	Title      string   `json:"title"`
	Date       string   `json:"date"`
	Slug       string   `json:"slug,omitempty"`
	Updated    string   `json:"updated,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Links      []string `json:"links,omitempty"`
	Cover      string   `json:"cover,omitempty"`
	DraftFlag  bool     `json:"draftFlag,omitempty"`
	Body       string   `json:"body"`

	PendingDelete bool `json:"pendingDelete,omitempty"`
}

// EntityDraft holds a roadmap or mindmap edit: the raw serialized body plus
// the entity id it belongs to.
type EntityDraft struct {
	ID            string `json:"id"`
	Body          string `json:"body"`
	PendingDelete bool   `json:"pendingDelete,omitempty"`
}

// ConfigDraft holds an edit of one well-known config file.
type ConfigDraft struct {
	File string `json:"file"`
	Body string `json:"body"`
}

// AssetUpload is one pending binary upload. Content is base64.
type AssetUpload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// AssetBatch holds pending uploads and deletions of binary assets.
type AssetBatch struct {
	Uploads []AssetUpload `json:"uploads,omitempty"`
	Deletes []string      `json:"deletes,omitempty"`
}

// assetBatchEntity keys the single live asset batch per target.
const assetBatchEntity = "batch"

// EntityID returns the identity used for the one-live-draft-per-entity rule.
// Not-yet-created notes have no entity id; they dedupe by local key only.
func (d *Draft) EntityID() string {
	switch d.Kind {
	case KindNote:
		if d.Note != nil {
			return d.Note.RemoteID
		}
	case KindRoadmap:
		if d.Roadmap != nil {
			return d.Roadmap.ID
		}
	case KindMindmap:
		if d.Mindmap != nil {
			return d.Mindmap.ID
		}
	case KindConfig:
		if d.Config != nil {
			return d.Config.File
		}
	case KindAssets:
		return assetBatchEntity
	}
	return ""
}

// valid reports whether the draft is structurally sound: the kind is known
// and the matching arm is present with its required fields. Foreign or
// truncated rows fail this and are skipped by the store.
func (d *Draft) valid() bool {
	if d.Key == "" {
		return false
	}
	switch d.Kind {
	case KindNote:
		return d.Note != nil && (d.Note.PendingDelete || d.Note.Date != "" || d.Note.RemoteID != "")
	case KindRoadmap:
		return d.Roadmap != nil && d.Roadmap.ID != ""
	case KindMindmap:
		return d.Mindmap != nil && d.Mindmap.ID != ""
	case KindConfig:
		return d.Config != nil && d.Config.File != ""
	case KindAssets:
		return d.Assets != nil && (len(d.Assets.Uploads) > 0 || len(d.Assets.Deletes) > 0)
	default:
		return false
	}
}

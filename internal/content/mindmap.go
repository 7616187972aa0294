// Mindmap codec: JSON envelope with nodes, edges and viewport.

package content

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// DefaultMindmapFormat is stamped on mindmaps that do not declare a format.
const DefaultMindmapFormat = "reactflow"

var entityIDRe = regexp.MustCompile(`^[a-z0-9-]{2,80}$`)

// ValidateEntityID checks a mindmap/roadmap identifier.
func ValidateEntityID(id string) error {
	if !entityIDRe.MatchString(id) {
		return dto.ValidationFailed("entity id must be 2-80 chars of a-z, 0-9 and dashes").WithDetail("id", id)
	}
	return nil
}

// Viewport is the last camera position of the graph editor.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Mindmap is the JSON envelope stored per mindmap. Node and edge internals
// belong to the graph editor and are carried opaquely.
type Mindmap struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Updated  string            `json:"updated"`
	Format   string            `json:"format"`
	Nodes    []json.RawMessage `json:"nodes"`
	Edges    []json.RawMessage `json:"edges"`
	Viewport Viewport          `json:"viewport"`
}

// ParseMindmap decodes a mindmap envelope and reconciles its embedded id
// with the intended entity id. An empty embedded id is repaired to wantID;
// a mismatching one is rejected rather than silently overwritten.
func ParseMindmap(body, wantID string) (*Mindmap, error) {
	if err := ValidateEntityID(wantID); err != nil {
		return nil, err
	}
	var m Mindmap
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, dto.ValidationFailed("invalid mindmap JSON").Wrap(err)
	}
	if m.ID == "" {
		m.ID = wantID
	}
	if m.ID != wantID {
		return nil, dto.ValidationFailed("mindmap id does not match its file").
			WithDetail("embeddedId", m.ID).
			WithDetail("expectedId", wantID)
	}
	return &m, nil
}

// RenderMindmap serializes a mindmap, filling defaults for missing fields.
// The updated stamp is always refreshed; an edit is by definition an update.
func RenderMindmap(m *Mindmap, now time.Time) (string, error) {
	if err := ValidateEntityID(m.ID); err != nil {
		return "", err
	}
	out := *m
	if out.Title == "" {
		out.Title = out.ID
	}
	if out.Format == "" {
		out.Format = DefaultMindmapFormat
	}
	if out.Viewport == (Viewport{}) {
		out.Viewport = Viewport{Zoom: 1}
	}
	if out.Nodes == nil {
		out.Nodes = []json.RawMessage{}
	}
	if out.Edges == nil {
		out.Edges = []json.RawMessage{}
	}
	out.Updated = now.UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return "", dto.InternalWithError("failed to serialize mindmap", err)
	}
	return string(data) + "\n", nil
}

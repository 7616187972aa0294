package content

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidateEntityID(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"ai-infra", "x2", "a-b-c-123"} {
		if err := ValidateEntityID(id); err != nil {
			t.Errorf("ValidateEntityID(%q) = %v", id, err)
		}
	}
	for _, id := range []string{"", "a", "UPPER", "has space", "has/slash", strings.Repeat("a", 81)} {
		if err := ValidateEntityID(id); err == nil {
			t.Errorf("ValidateEntityID(%q) succeeded, want error", id)
		}
	}
}

func TestParseMindmap(t *testing.T) {
	t.Parallel()

	t.Run("repairs empty id", func(t *testing.T) {
		t.Parallel()
		m, err := ParseMindmap(`{"nodes":[],"edges":[]}`, "ai-infra")
		if err != nil {
			t.Fatal(err)
		}
		if m.ID != "ai-infra" {
			t.Errorf("id = %q", m.ID)
		}
	})
	t.Run("rejects mismatching id", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseMindmap(`{"id":"other"}`, "ai-infra"); err == nil {
			t.Error("accepted mismatching embedded id")
		}
	})
	t.Run("rejects invalid json", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseMindmap(`{`, "ai-infra"); err == nil {
			t.Error("accepted truncated JSON")
		}
	})
}

func TestRenderMindmapDefaults(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	out, err := RenderMindmap(&Mindmap{ID: "ai-infra"}, now)
	if err != nil {
		t.Fatal(err)
	}

	var m Mindmap
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatal(err)
	}
	if m.Title != "ai-infra" {
		t.Errorf("title default = %q", m.Title)
	}
	if m.Format != DefaultMindmapFormat {
		t.Errorf("format = %q", m.Format)
	}
	if m.Viewport.Zoom != 1 {
		t.Errorf("viewport = %+v", m.Viewport)
	}
	if m.Updated != "2026-02-06T12:00:00Z" {
		t.Errorf("updated = %q", m.Updated)
	}
	if m.Nodes == nil || m.Edges == nil {
		t.Error("nodes and edges must serialize as empty arrays, not null")
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("rendered file must end with a newline")
	}
}

func TestRenderMindmapCarriesOpaqueNodes(t *testing.T) {
	t.Parallel()
	body := `{"id":"ai-infra","nodes":[{"id":"n1","data":{"label":"GPU","custom":42}}],"edges":[{"id":"e1","source":"n1","target":"n1"}]}`
	m, err := ParseMindmap(body, "ai-infra")
	if err != nil {
		t.Fatal(err)
	}
	out, err := RenderMindmap(m, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"label": "GPU"`, `"custom": 42`, `"source": "n1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered mindmap missing %q:\n%s", want, out)
		}
	}
}

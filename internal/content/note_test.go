package content

import (
	"strings"
	"testing"
	"time"
)

func TestResolveNoteID(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

	t.Run("from title", func(t *testing.T) {
		t.Parallel()
		id, err := ResolveNoteID("2026-02-06", "", "Hello", now)
		if err != nil {
			t.Fatal(err)
		}
		if id != "2026-02-06-hello" {
			t.Errorf("id = %q, want 2026-02-06-hello", id)
		}
	})
	t.Run("explicit slug wins", func(t *testing.T) {
		t.Parallel()
		id, err := ResolveNoteID("2026-02-06", "custom", "Hello World", now)
		if err != nil {
			t.Fatal(err)
		}
		if id != "2026-02-06-custom" {
			t.Errorf("id = %q", id)
		}
	})
	t.Run("unslugifiable title falls back to hash", func(t *testing.T) {
		t.Parallel()
		id, err := ResolveNoteID("2026-02-06", "", "你好", now)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(id, "2026-02-06-") || len(id) != len("2026-02-06-")+8 {
			t.Errorf("id = %q, want date plus 8 hex chars", id)
		}
		// Deterministic for identical inputs.
		again, err := ResolveNoteID("2026-02-06", "", "你好", now)
		if err != nil {
			t.Fatal(err)
		}
		if again != id {
			t.Errorf("hash slug not deterministic: %q vs %q", id, again)
		}
	})
	t.Run("bad date", func(t *testing.T) {
		t.Parallel()
		if _, err := ResolveNoteID("06/02/2026", "", "Hello", now); err == nil {
			t.Error("accepted malformed date")
		}
	})
	t.Run("bad slug", func(t *testing.T) {
		t.Parallel()
		if _, err := ResolveNoteID("2026-02-06", "Hello World", "", now); err == nil {
			t.Error("accepted slug with uppercase and spaces")
		}
	})
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Hello":              "hello",
		"Hello, World!":      "hello-world",
		"  spaced   out  ":   "spaced-out",
		"Déjà vu":            "d-j-vu",
		"2026 Goals":         "2026-goals",
		"---":                "",
		"":                   "",
		"MiXeD-CaSe_under":   "mixed-case-under",
		"dots.and.more.dots": "dots-and-more-dots",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNoteRenderMinimal(t *testing.T) {
	t.Parallel()
	n := &Note{Title: "Hello", Date: "2026-02-06", Body: "Body text.\n"}
	got, err := n.Render()
	if err != nil {
		t.Fatal(err)
	}
	want := "---\ntitle: Hello\ndate: 2026-02-06\n---\n\nBody text.\n"
	if got != want {
		t.Errorf("Render:\n%q\nwant:\n%q", got, want)
	}
	if strings.Contains(got, "updated:") {
		t.Error("minimal note must not carry an updated field")
	}
}

func TestNoteRenderOmitsUpdatedEqualToDate(t *testing.T) {
	t.Parallel()
	n := &Note{Title: "T", Date: "2026-02-06", Updated: "2026-02-06", Body: ""}
	got, err := n.Render()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "updated:") {
		t.Errorf("updated equal to date must be omitted:\n%s", got)
	}

	n.Updated = "2026-03-01"
	got, err = n.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "updated: 2026-03-01\n") {
		t.Errorf("distinct updated must be emitted:\n%s", got)
	}
}

func TestNoteRoundTripPreservesUnknownFields(t *testing.T) {
	t.Parallel()
	raw := "---\n" +
		"title: Hello\n" +
		"date: 2026-02-06\n" +
		"math: true\n" +
		"series: go-notes\n" +
		"---\n" +
		"\n" +
		"Body text.\n"
	n, err := ParseNote(raw)
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "Hello" || n.Date != "2026-02-06" {
		t.Errorf("parsed note = %+v", n)
	}
	if n.Body != "Body text.\n" {
		t.Errorf("body = %q", n.Body)
	}
	if len(n.Extra) != 2 {
		t.Fatalf("extra = %v, want math and series", n.Extra)
	}

	out, err := n.Render()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"title: Hello\n", "date: 2026-02-06\n", "math: true\n", "series: go-notes\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered note missing %q:\n%s", want, out)
		}
	}

	// A second cycle is stable.
	n2, err := ParseNote(out)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := n2.Render()
	if err != nil {
		t.Fatal(err)
	}
	if out2 != out {
		t.Errorf("second render differs:\n%q\nvs\n%q", out2, out)
	}
}

func TestNoteRenderLists(t *testing.T) {
	t.Parallel()
	n := &Note{
		Title:      "Hello",
		Date:       "2026-02-06",
		Categories: []string{"tech"},
		Tags:       []string{"go", "git"},
		Draft:      true,
		Body:       "x\n",
	}
	got, err := n.Render()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"categories: [tech]\n", "tags: [go, git]\n", "draft: true\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	n2, err := ParseNote(got)
	if err != nil {
		t.Fatal(err)
	}
	if len(n2.Tags) != 2 || n2.Tags[0] != "go" || n2.Tags[1] != "git" {
		t.Errorf("tags round-trip = %v", n2.Tags)
	}
	if !n2.Draft {
		t.Error("draft flag lost in round trip")
	}
}

func TestParseNoteWithoutFrontMatter(t *testing.T) {
	t.Parallel()
	n, err := ParseNote("just a body\n")
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "" || n.Body != "just a body\n" {
		t.Errorf("note = %+v", n)
	}
}

func TestParseNoteEmptyFrontMatter(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"---\n---\nbody":   "body",
		"---\n---\n\nbody": "body",
		"---\n---\n":       "",
		"---\n---":         "",
	}
	for raw, wantBody := range cases {
		n, err := ParseNote(raw)
		if err != nil {
			t.Errorf("ParseNote(%q) = %v", raw, err)
			continue
		}
		if n.Title != "" || n.Date != "" || len(n.Extra) != 0 {
			t.Errorf("ParseNote(%q) metadata = %+v, want empty", raw, n)
		}
		if n.Body != wantBody {
			t.Errorf("ParseNote(%q) body = %q, want %q", raw, n.Body, wantBody)
		}
	}
}

func TestParseNoteRejectsNonMapping(t *testing.T) {
	t.Parallel()
	if _, err := ParseNote("---\n- just\n- a\n- list\n---\nbody"); err == nil {
		t.Error("accepted sequence front matter")
	}
}

func TestNoteDateStaysRawString(t *testing.T) {
	t.Parallel()
	// YAML would coerce an unquoted date into a timestamp; the codec must
	// keep it as the literal scalar.
	n, err := ParseNote("---\ndate: 2026-02-06\n---\nx")
	if err != nil {
		t.Fatal(err)
	}
	if n.Date != "2026-02-06" {
		t.Errorf("date = %q", n.Date)
	}
}

// Note codec: YAML front matter followed by free-form markdown.

package content

import (
	"fmt"
	"hash/fnv"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagewright/pagewright/internal/server/dto"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slugRe = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Note is the parsed form of a note file. Extra holds front-matter keys the
// editor does not model; they survive a parse/render cycle untouched.
type Note struct {
	Title      string
	Date       string // YYYY-MM-DD
	Updated    string // YYYY-MM-DD, empty when same as Date
	Categories []string
	Tags       []string
	Links      []string
	Cover      string
	Draft      bool
	Extra      map[string]*yaml.Node
	Body       string
}

// ResolveNoteID derives the stable note id {date}-{slug}.
// An empty slug defaults to the normalized title; if normalization yields
// nothing, a deterministic short hash of title+timestamp is used instead.
func ResolveNoteID(date, slug, title string, now time.Time) (string, error) {
	if !dateRe.MatchString(date) {
		return "", dto.ValidationFailed("note date must be YYYY-MM-DD").WithDetail("date", date)
	}
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		h := fnv.New32a()
		fmt.Fprintf(h, "%s|%s", title, now.UTC().Format(time.RFC3339))
		slug = fmt.Sprintf("%08x", h.Sum32())
	}
	if !slugRe.MatchString(slug) {
		return "", dto.ValidationFailed("note slug may only contain a-z, 0-9 and dashes").WithDetail("slug", slug)
	}
	return date + "-" + slug, nil
}

// Slugify normalizes a title into a URL-safe slug. Returns "" when nothing
// usable remains.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ParseNote parses a note file into its metadata block and body.
// A file without a front matter block is all body.
func ParseNote(raw string) (*Note, error) {
	n := &Note{Body: raw}
	if !strings.HasPrefix(raw, "---\n") {
		return n, nil
	}
	parts := strings.SplitN(raw, "\n---", 2)
	if len(parts) != 2 {
		return n, nil
	}
	// An empty metadata block leaves parts[0] as just the opening fence.
	frontMatter := ""
	if len(parts[0]) > 4 {
		frontMatter = parts[0][4:]
	}
	n.Body = strings.TrimLeft(parts[1], "\n")

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(frontMatter), &doc); err != nil {
		return nil, dto.ValidationFailed("invalid note front matter").Wrap(err)
	}
	if len(doc.Content) == 0 {
		return n, nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, dto.ValidationFailed("note front matter is not a mapping")
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		val := mapping.Content[i+1]
		var err error
		switch key {
		case "title":
			n.Title = val.Value
		case "date":
			n.Date = val.Value
		case "updated":
			n.Updated = val.Value
		case "cover":
			n.Cover = val.Value
		case "categories":
			err = val.Decode(&n.Categories)
		case "tags":
			err = val.Decode(&n.Tags)
		case "links":
			err = val.Decode(&n.Links)
		case "draft":
			err = val.Decode(&n.Draft)
		default:
			if n.Extra == nil {
				n.Extra = make(map[string]*yaml.Node)
			}
			n.Extra[key] = val
		}
		if err != nil {
			return nil, dto.ValidationFailed("invalid note front matter field").WithDetail("field", key).Wrap(err)
		}
	}
	return n, nil
}

// Render serializes the note back into a file body. Only non-default modeled
// fields are emitted; unmodeled fields from Extra are appended in sorted
// order so edits never drop them.
func (n *Note) Render() (string, error) {
	if n.Date != "" && !dateRe.MatchString(n.Date) {
		return "", dto.ValidationFailed("note date must be YYYY-MM-DD").WithDetail("date", n.Date)
	}
	var b strings.Builder
	b.WriteString("---\n")
	if n.Title != "" {
		b.WriteString("title: " + yamlScalar(n.Title) + "\n")
	}
	if n.Date != "" {
		b.WriteString("date: " + n.Date + "\n")
	}
	if n.Updated != "" && n.Updated != n.Date {
		b.WriteString("updated: " + n.Updated + "\n")
	}
	writeList(&b, "categories", n.Categories)
	writeList(&b, "tags", n.Tags)
	writeList(&b, "links", n.Links)
	if n.Cover != "" {
		b.WriteString("cover: " + yamlScalar(n.Cover) + "\n")
	}
	if n.Draft {
		b.WriteString("draft: true\n")
	}
	if len(n.Extra) > 0 {
		mapping := &yaml.Node{Kind: yaml.MappingNode}
		for _, key := range slices.Sorted(maps.Keys(n.Extra)) {
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				n.Extra[key])
		}
		out, err := yaml.Marshal(mapping)
		if err != nil {
			return "", dto.InternalWithError("failed to serialize note front matter", err)
		}
		b.Write(out)
	}
	b.WriteString("---\n\n")
	b.WriteString(n.Body)
	return b.String(), nil
}

func writeList(b *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		return
	}
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = yamlScalar(it)
	}
	b.WriteString(key + ": [" + strings.Join(quoted, ", ") + "]\n")
}

// yamlScalar quotes a value only when a plain YAML scalar would be ambiguous.
func yamlScalar(v string) string {
	if v == "" {
		return `""`
	}
	if strings.ContainsAny(v, ":#{}[]&*!|>'\"%@`,\n") ||
		v != strings.TrimSpace(v) || v == "true" || v == "false" || v == "null" {
		return `"` + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`) + `"`
	}
	return v
}

// Roadmap and config codecs: YAML documents with embedded identity.

package content

import (
	"gopkg.in/yaml.v3"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// Roadmap is the YAML document stored per roadmap. Node and edge records are
// carried generically; their schema belongs to the roadmap editor.
type Roadmap struct {
	ID    string           `yaml:"id"`
	Title string           `yaml:"title,omitempty"`
	Nodes []map[string]any `yaml:"nodes"`
	Edges []map[string]any `yaml:"edges,omitempty"`
}

// ParseRoadmap decodes a roadmap document and reconciles its embedded id
// with the intended entity id. An empty embedded id is repaired to wantID;
// a mismatching one is rejected rather than silently overwritten.
func ParseRoadmap(body, wantID string) (*Roadmap, error) {
	if err := ValidateEntityID(wantID); err != nil {
		return nil, err
	}
	var r Roadmap
	if err := yaml.Unmarshal([]byte(body), &r); err != nil {
		return nil, dto.ValidationFailed("invalid roadmap YAML").Wrap(err)
	}
	if r.ID == "" {
		r.ID = wantID
	}
	if r.ID != wantID {
		return nil, dto.ValidationFailed("roadmap id does not match its file").
			WithDetail("embeddedId", r.ID).
			WithDetail("expectedId", wantID)
	}
	if len(r.Nodes) == 0 {
		return nil, dto.ValidationFailed("roadmap must contain a nodes list").WithDetail("id", wantID)
	}
	return &r, nil
}

// RenderRoadmap serializes a roadmap document.
func RenderRoadmap(r *Roadmap) (string, error) {
	if err := ValidateEntityID(r.ID); err != nil {
		return "", err
	}
	if len(r.Nodes) == 0 {
		return "", dto.ValidationFailed("roadmap must contain a nodes list").WithDetail("id", r.ID)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", dto.InternalWithError("failed to serialize roadmap", err)
	}
	return string(data), nil
}

// wellKnownConfigFiles are the site config files the publisher may touch.
var wellKnownConfigFiles = map[string]bool{
	"site.yml":       true,
	"navigation.yml": true,
	"profile.yml":    true,
}

// ValidateConfig checks that file names a well-known config file and that
// body is a YAML mapping.
func ValidateConfig(file, body string) error {
	if !wellKnownConfigFiles[file] {
		return dto.ValidationFailed("unknown config file").WithDetail("file", file)
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return dto.ValidationFailed("invalid config YAML").WithDetail("file", file).Wrap(err)
	}
	if doc == nil {
		return dto.ValidationFailed("config file must be a YAML mapping").WithDetail("file", file)
	}
	return nil
}

// Package content implements path policy and the per-entity content codecs.
//
// Everything in this package is pure: codecs turn editor values into file
// bodies and back, the path guard validates logical content paths. Nothing
// here touches the network or the filesystem.
package content

import (
	"strings"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// TrashRoot is the path prefix under which deleted content is preserved.
const TrashRoot = "trash"

// allowedRoots are the logical roots a content path may live under.
// Trash mirrors of each root are allowed implicitly.
var allowedRoots = []string{"notes", "mindmaps", "roadmaps", "data", "uploads"}

// CleanPath validates a logical content path and returns it unchanged.
// It rejects empty, absolute and traversing paths, and paths outside the
// allowed roots.
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", dto.ValidationFailed("empty path")
	}
	if strings.ContainsAny(p, "\\\x00") {
		return "", dto.ValidationFailed("invalid character in path").WithDetail("path", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", dto.ValidationFailed("absolute path not allowed").WithDetail("path", p)
	}
	segments := strings.Split(p, "/")
	for _, seg := range segments {
		switch seg {
		case "", ".", "..":
			return "", dto.ValidationFailed("path traversal not allowed").WithDetail("path", p)
		}
	}
	root := segments[0]
	if root == TrashRoot {
		if len(segments) < 3 {
			return "", dto.ValidationFailed("trash path outside allowed roots").WithDetail("path", p)
		}
		root = segments[1]
	} else if len(segments) < 2 {
		return "", dto.ValidationFailed("path outside allowed roots").WithDetail("path", p)
	}
	for _, allowed := range allowedRoots {
		if root == allowed {
			return p, nil
		}
	}
	return "", dto.ValidationFailed("path outside allowed roots").WithDetail("path", p)
}

// ApplyRoot prefixes the configured storage root. An empty root is a no-op.
// The mapping is reversible only by string-prefix stripping; callers that
// need the logical path back must retain it separately.
func ApplyRoot(root, p string) string {
	if root == "" {
		return p
	}
	return strings.TrimSuffix(root, "/") + "/" + p
}

// TrashPath returns the trash mirror of a live path, reusing the original
// filename under the parallel trash root.
func TrashPath(livePath string) (string, error) {
	p, err := CleanPath(livePath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(p, TrashRoot+"/") {
		return "", dto.ValidationFailed("path already in trash").WithDetail("path", p)
	}
	return TrashRoot + "/" + p, nil
}

// NotePath returns the live path of a note.
func NotePath(id string) string { return "notes/" + id + ".md" }

// MindmapPath returns the live path of a mindmap.
func MindmapPath(id string) string { return "mindmaps/" + id + ".json" }

// RoadmapPath returns the live path of a roadmap.
func RoadmapPath(id string) string { return "roadmaps/" + id + ".yml" }

// ConfigPath returns the live path of a well-known config file.
func ConfigPath(file string) string { return "data/" + file }

// UploadPath returns the live path of an uploaded asset.
func UploadPath(name string) string { return "uploads/" + name }

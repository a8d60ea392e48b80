package pathmap

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/schaermu/tmplsync/internal/syncerr"
)

// Translate rewrites a repository path rooted at sourceRoot into the same
// sub-path rooted at destRoot.
// For example: (.claude/skills/foo/bar.md, .claude/skills, skills) -> skills/foo/bar.md
func Translate(remotePath, sourceRoot, destRoot string) (string, error) {
	rel, err := Relative(remotePath, sourceRoot)
	if err != nil {
		return "", err
	}
	destRoot = strings.TrimSuffix(destRoot, "/")
	if rel == "" {
		return destRoot, nil
	}
	return destRoot + "/" + rel, nil
}

// Relative returns the part of remotePath below sourceRoot. The prefix must end
// on a segment boundary, so "docs-old/a.md" is not below "docs".
func Relative(remotePath, sourceRoot string) (string, error) {
	sourceRoot = strings.TrimSuffix(sourceRoot, "/")
	if remotePath == sourceRoot {
		return "", nil
	}
	if sourceRoot == "" || !strings.HasPrefix(remotePath, sourceRoot+"/") {
		return "", syncerr.Invariant(remotePath, "path is not below source root %q", sourceRoot)
	}
	return remotePath[len(sourceRoot)+1:], nil
}

// Excluded reports whether rel matches any of the doublestar patterns
func Excluded(rel string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ValidPattern reports whether pattern is a well-formed doublestar glob
func ValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// IsClean reports whether p is a relative, slash-separated path without empty,
// "." or ".." segments.
func IsClean(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	if path.Clean(p) != strings.TrimSuffix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(strings.TrimSuffix(p, "/"), "/") {
		if seg == ".." || seg == "." || seg == "" {
			return false
		}
	}
	return true
}

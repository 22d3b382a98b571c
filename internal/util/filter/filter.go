// Package filter matches file names against include, exclude and search
// rules. It is shared by the upload and file listing commands.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style, "**" crosses directories). Empty means
	// include all.
	// Example: []string{"*.pdf", "reports/**/*.md"}
	Include []string

	// Exclude patterns (glob-style). Takes precedence over Include.
	// Example: []string{"draft*", "~*"}
	Exclude []string

	// Search terms (case-insensitive substring match).
	// A name must contain ALL search terms to be included.
	Search []string
}

// Empty reports whether the config filters nothing.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.Search) == 0
}

// Match reports whether name passes the filter.
func (c Config) Match(name string) bool {
	base := filepath.Base(name)

	// 1. Exclude patterns first (highest priority)
	for _, pattern := range c.Exclude {
		if globMatch(pattern, name) || globMatch(pattern, base) {
			return false
		}
	}

	// 2. Include patterns
	if len(c.Include) > 0 {
		included := false
		for _, pattern := range c.Include {
			if globMatch(pattern, name) || globMatch(pattern, base) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	// 3. Search terms
	if len(c.Search) > 0 {
		lower := strings.ToLower(name)
		for _, term := range c.Search {
			if !strings.Contains(lower, strings.ToLower(term)) {
				return false
			}
		}
	}

	return true
}

// Apply returns the elements of items whose name passes the filter.
func Apply[T any](items []T, name func(T) string, c Config) []T {
	if c.Empty() {
		return items
	}
	filtered := make([]T, 0, len(items))
	for _, it := range items {
		if c.Match(name(it)) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// globMatch matches case-insensitively with forward slashes on every OS; a
// malformed pattern matches nothing.
func globMatch(pattern, name string) bool {
	matched, err := doublestar.Match(
		strings.ToLower(filepath.ToSlash(pattern)),
		strings.ToLower(filepath.ToSlash(name)),
	)
	return err == nil && matched
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.pdf,*.md" -> []string{"*.pdf", "*.md"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}

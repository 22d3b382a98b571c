// Package tags provides category label normalization and colour hashing.
package tags

import (
	"strings"
	"unicode/utf16"

	"github.com/ragdesk/ragdesk/internal/util/sanitize"
)

// Palette is the fixed set of colours category labels hash into.
var Palette = []string{
	"#10b981", "#3b82f6", "#f59e0b", "#ef4444",
	"#8b5cf6", "#14b8a6", "#eab308", "#f43f5e",
	"#22c55e", "#6366f1",
}

// CleanLabel returns the display form of a raw label: invisible characters
// removed and surrounding whitespace trimmed. Empty means the label is unusable.
func CleanLabel(raw string) string {
	return sanitize.Field(raw)
}

// ToValue derives the canonical key of a label: trimmed, lower-cased, with
// every whitespace run replaced by a single "-". Labels with equal values are
// the same category.
func ToValue(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(CleanLabel(label))), "-")
}

// ColorFor hashes label into Palette. The hash runs over UTF-16 code units
// with 32-bit shift semantics so colours match the web console.
func ColorFor(label string) string {
	var h int64
	for _, c := range utf16.Encode([]rune(label)) {
		shifted := int64(int32(uint32(h) << 5))
		h = int64(c) + (shifted - h)
	}
	if h < 0 {
		h = -h
	}
	return Palette[h%int64(len(Palette))]
}

// NormalizeTags normalizes a list of labels by cleaning each one,
// removing empty strings, and deduplicating by value. The first spelling wins.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, tag := range raw {
		tag = CleanLabel(tag)
		if tag == "" {
			continue
		}
		v := ToValue(tag)
		if !seen[v] {
			seen[v] = true
			result = append(result, tag)
		}
	}
	return result
}

// ParseCommaSeparated splits a comma-separated string into normalized labels.
func ParseCommaSeparated(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return NormalizeTags(parts)
}

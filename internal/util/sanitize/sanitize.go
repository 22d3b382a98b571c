// Package sanitize cleans user- and server-supplied strings before they are
// used as category labels or printed in terminal tables.
//
//   - Invisible Unicode characters (zero-width spaces, etc.) are removed
//   - Line breaks and runs of blanks collapse to a single space for display
package sanitize

import (
	"regexp"
	"strings"
)

var (
	lineBreaks = regexp.MustCompile(`[\r\n]+`)
	blankRun   = regexp.MustCompile(`[ \t]+`)
)

// invisibleChars are removed from every field.
var invisibleChars = []string{
	"\u200B", // Zero-width space
	"\u200C", // Zero-width non-joiner
	"\u200D", // Zero-width joiner
	"\uFEFF", // Zero-width no-break space (BOM)
	"\u00AD", // Soft hyphen
	"\u2060", // Word joiner
	"\u180E", // Mongolian vowel separator
}

// Field removes invisible characters and trims surrounding whitespace.
func Field(field string) string {
	if field == "" {
		return field
	}
	return strings.TrimSpace(removeInvisibleChars(field))
}

// Line makes s safe to print on a single terminal line.
func Line(s string) string {
	if s == "" {
		return s
	}
	s = removeInvisibleChars(s)
	s = lineBreaks.ReplaceAllString(s, " ")
	s = blankRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func removeInvisibleChars(s string) string {
	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}

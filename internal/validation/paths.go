// Package validation checks names before they are placed in backend URLs.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateFilename rejects names that cannot identify a single stored file.
// Filenames end up as a path segment of backend routes such as
// /delete_user_file/{userId}/{filename}, so the check is strict.
//
// Returns an error if the filename:
//   - Is empty
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes or other control characters
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if strings.ContainsFunc(filename, unicode.IsControl) {
		return fmt.Errorf("filename contains control characters: %q", filename)
	}

	// Reject path separators (both Unix and Windows style)
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}

	// Names like "data..v2.csv" are fine; only the bare dot names are rejected
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}

	return nil
}

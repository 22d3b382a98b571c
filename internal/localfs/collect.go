// Package localfs resolves command-line arguments into the list of local
// files to upload. Directories are expanded, hidden entries are skipped
// unless asked for, and the result is filtered by name.
package localfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ragdesk/ragdesk/internal/util/filter"
)

// CollectOptions configures Collect.
type CollectOptions struct {
	// Recursive descends into subdirectories of directory arguments.
	Recursive bool

	// IncludeHidden keeps dot-files and dot-directories.
	IncludeHidden bool

	// Filter is applied to every file found inside a directory. Files named
	// explicitly on the command line are always kept.
	Filter filter.Config
}

// Collect returns the absolute paths of the regular files named by args,
// sorted and without duplicates. A missing argument is an error.
func Collect(args []string, opts CollectOptions) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%s is not a regular file", arg)
			}
			add(abs)
			continue
		}

		if err := walkDir(abs, opts, add); err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

func walkDir(root string, opts CollectOptions, add func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = d.Name()
		}
		if opts.Filter.Match(rel) {
			add(path)
		}
		return nil
	})
}

package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	stdstrings "strings"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/category"
	"github.com/ragdesk/ragdesk/internal/filelist"
	"github.com/ragdesk/ragdesk/internal/util/filter"
	"github.com/ragdesk/ragdesk/internal/util/sanitize"
	"github.com/ragdesk/ragdesk/internal/util/strings"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "File operations (upload, list, delete)",
		Long:  `Commands for managing the documents ingested for the current user.`,
	}

	filesCmd.AddCommand(newUploadCmd("upload <file|dir> [file|dir...]", "Upload documents and wait for ingestion"))
	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())

	return filesCmd
}

// listFlags are shared by 'files list' and the 'ls' shortcut.
type listFlags struct {
	category      string
	uncategorized bool
	include       string
	exclude       string
	search        string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "Only files tagged with this category (case-insensitive)")
	cmd.Flags().BoolVar(&f.uncategorized, "uncategorized", false, "Only files without a category")
	cmd.Flags().StringVar(&f.include, "include", "", "Include only files matching these patterns (comma-separated globs)")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Exclude files matching these patterns (comma-separated globs)")
	cmd.Flags().StringVar(&f.search, "search", "", "Include only names containing these terms (comma-separated, case-insensitive)")
}

// newFilesListCmd creates the 'files list' command.
func newFilesListCmd() *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested files",
		Long: `List the files the backend holds for the current user.

Examples:
  ragdesk files list
  ragdesk files list --category research
  ragdesk files list --uncategorized --include "*.pdf"
  ragdesk files list --search "q3,final"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeFilesList(cmd.OutOrStdout(), flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func executeFilesList(out io.Writer, flags listFlags) error {
	if flags.category != "" && flags.uncategorized {
		return fmt.Errorf("--category and --uncategorized cannot be combined")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := GetContext()
	view := a.view(a.registry())
	if err := view.Refresh(ctx); err != nil {
		return err
	}

	var rows []filelist.Row
	switch {
	case flags.uncategorized:
		rows = view.Uncategorized()
	case flags.category != "":
		opt, err := category.NewOption(flags.category)
		if err != nil {
			return err
		}
		rows = view.Filter(&opt)
	default:
		rows = view.Files()
	}

	rows = filter.Apply(rows, func(r filelist.Row) string { return r.File.Filename }, filter.Config{
		Include: filter.ParsePatternList(flags.include),
		Exclude: filter.ParsePatternList(flags.exclude),
		Search:  filter.ParsePatternList(flags.search),
	})

	if len(rows) == 0 {
		fmt.Fprintln(out, "No files found")
		return nil
	}
	if len(rows) < view.Len() {
		fmt.Fprintf(out, "Filtered: %d of %d files match\n", len(rows), view.Len())
	}

	printFileRows(out, rows)
	return nil
}

func printFileRows(out io.Writer, rows []filelist.Row) {
	fmt.Fprintf(out, "Found %d %s:\n\n", len(rows), strings.Pluralize("file", int64(len(rows))))
	fmt.Fprintf(out, "%-48s %-24s %10s\n", "NAME", "CATEGORY", "SIZE")
	fmt.Fprintln(out, stdstrings.Repeat("-", 84))

	for _, r := range rows {
		label := "-"
		if r.Category != nil {
			label = r.Category.Label
		} else if l := r.File.CategoryLabel(); l != "" {
			label = l
		}
		fmt.Fprintf(out, "%-48s %-24s %10s\n",
			truncateCell(sanitize.Line(r.File.Filename), 48),
			truncateCell(sanitize.Line(label), 24),
			formatBytes(r.File.Size))
	}
}

// newFilesDeleteCmd creates the 'files delete' command.
func newFilesDeleteCmd() *cobra.Command {
	var all, yes bool

	cmd := &cobra.Command{
		Use:   "delete [filename...]",
		Short: "Delete ingested files",
		Long: `Delete files from the backend. Files are deleted one at a time and the
list is refreshed once at the end. A failed delete does not stop the rest.

Examples:
  ragdesk files delete old-report.pdf draft.md
  ragdesk files delete --all --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("name the files to delete or pass --all")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := GetContext()
			out := cmd.OutOrStdout()
			view := a.view(a.registry())
			if err := view.Refresh(ctx); err != nil {
				return err
			}

			if all {
				view.SelectAll()
			} else if unknown := view.Select(args...); len(unknown) > 0 {
				for _, name := range unknown {
					fmt.Fprintf(out, "Skipping %s: no such file\n", sanitize.Line(name))
				}
			}

			selected := view.Selected()
			if len(selected) == 0 {
				fmt.Fprintln(out, "Nothing to delete")
				return nil
			}

			if !yes {
				ok, err := confirm(os.Stdin, out, fmt.Sprintf("Delete %d %s?", len(selected), strings.Pluralize("file", int64(len(selected)))))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			result, err := view.DeleteSelected(ctx)
			for _, name := range result.Deleted {
				fmt.Fprintf(out, "✓ Deleted %s\n", sanitize.Line(name))
			}
			failedNames := make([]string, 0, len(result.Failed))
			for name := range result.Failed {
				failedNames = append(failedNames, name)
			}
			sort.Strings(failedNames)
			for _, name := range failedNames {
				fmt.Fprintf(out, "✗ %s: %v\n", sanitize.Line(name), result.Failed[name])
			}
			if err != nil {
				return err
			}
			if len(failedNames) > 0 {
				return fmt.Errorf("%d of %d deletes failed", len(failedNames), len(selected))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func truncateCell(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

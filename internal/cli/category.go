package cli

import (
	"context"
	"fmt"
	"io"
	stdstrings "strings"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/category"
	"github.com/ragdesk/ragdesk/internal/filelist"
	"github.com/ragdesk/ragdesk/internal/util/sanitize"
	"github.com/ragdesk/ragdesk/internal/util/strings"
)

// newCategoryCmd creates the 'category' command group.
func newCategoryCmd() *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories"},
		Short:   "Manage file categories",
		Long: `Categories are free-form labels attached to ingested files. A label is
created the first time it is used and is matched case-insensitively.

Commands:
  list    - Show known categories and how many files use each
  set     - Tag a file, creating the category if needed
  clear   - Remove a file's tag
  delete  - Untag every file using a category and forget it`,
	}

	categoryCmd.AddCommand(newCategoryListCmd())
	categoryCmd.AddCommand(newCategorySetCmd())
	categoryCmd.AddCommand(newCategoryClearCmd())
	categoryCmd.AddCommand(newCategoryDeleteCmd())

	return categoryCmd
}

// loadCategories builds a registry hydrated from the backend: known labels
// first, then the assignments carried by the current file list.
func loadCategories(ctx context.Context, a *app) (*category.Registry, *filelist.View, error) {
	reg := a.registry()
	if err := reg.LoadOptions(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("could not load known categories")
	}
	view := a.view(reg)
	if err := view.Refresh(ctx); err != nil {
		return nil, nil, err
	}
	return reg, view, nil
}

func hasFile(view *filelist.View, filename string) bool {
	for _, r := range view.Files() {
		if r.File.Filename == filename {
			return true
		}
	}
	return false
}

func newCategoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			reg, _, err := loadCategories(GetContext(), a)
			if err != nil {
				return err
			}
			printCategories(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

func printCategories(out io.Writer, reg *category.Registry) {
	options := reg.Options()
	if len(options) == 0 {
		fmt.Fprintln(out, "No categories")
		return
	}

	counts := make(map[string]int, len(options))
	for _, opt := range reg.Assignments() {
		counts[opt.Value]++
	}

	fmt.Fprintf(out, "%-32s %-24s %-8s %s\n", "LABEL", "VALUE", "COLOR", "FILES")
	fmt.Fprintln(out, stdstrings.Repeat("-", 72))
	for _, opt := range options {
		fmt.Fprintf(out, "%-32s %-24s %-8s %d\n",
			truncateCell(sanitize.Line(opt.Label), 32),
			truncateCell(opt.Value, 24),
			opt.Color,
			counts[opt.Value])
	}
}

func newCategorySetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <filename> <label>",
		Short: "Tag a file with a category",
		Long: `Tag a file with a category. An existing category is reused when the label
matches one ignoring case; otherwise a new category is created.

Example:
  ragdesk category set handbook.pdf "HR Policies"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := GetContext()
			reg, view, err := loadCategories(ctx, a)
			if err != nil {
				return err
			}
			filename := args[0]
			if !hasFile(view, filename) {
				return fmt.Errorf("no such file: %s", filename)
			}

			opt, err := reg.CreateAndAssign(ctx, filename, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s tagged %s\n", sanitize.Line(filename), sanitize.Line(opt.Label))
			return nil
		},
	}
}

func newCategoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <filename>",
		Short: "Remove a file's category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := GetContext()
			reg, view, err := loadCategories(ctx, a)
			if err != nil {
				return err
			}
			filename := args[0]
			if !hasFile(view, filename) {
				return fmt.Errorf("no such file: %s", filename)
			}

			if err := reg.Assign(ctx, filename, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s untagged\n", sanitize.Line(filename))
			return nil
		},
	}
}

func newCategoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <label>",
		Short: "Delete a category from every file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := GetContext()
			reg, _, err := loadCategories(ctx, a)
			if err != nil {
				return err
			}
			opt, ok := reg.Resolve(args[0])
			if !ok {
				return fmt.Errorf("unknown category: %s", args[0])
			}

			affected, err := reg.DeleteEverywhere(ctx, opt.Value)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %s from %d %s\n", sanitize.Line(opt.Label), len(affected), strings.Pluralize("file", int64(len(affected))))
			for _, name := range affected {
				fmt.Fprintf(out, "  %s\n", sanitize.Line(name))
			}
			return err
		},
	}
}

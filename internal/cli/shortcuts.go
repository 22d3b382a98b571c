package cli

import (
	"github.com/spf13/cobra"
)

// AddShortcuts adds shortcut commands to the root command.
// Shortcuts provide convenient aliases for commonly-used operations.
func AddShortcuts(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadShortcut())
	rootCmd.AddCommand(newLsShortcut())
}

// newUploadShortcut creates the 'upload' shortcut command.
// Shortcut for: files upload
func newUploadShortcut() *cobra.Command {
	return newUploadCmd("upload <file|dir> [file|dir...]", "Upload documents (shortcut for 'files upload')")
}

// newLsShortcut creates the 'ls' shortcut command.
// Shortcut for: files list
func newLsShortcut() *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List ingested files (shortcut for 'files list')",
		Long: `Shortcut for listing ingested files.

Equivalent to: ragdesk files list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeFilesList(cmd.OutOrStdout(), flags)
		},
	}

	flags.register(cmd)
	return cmd
}

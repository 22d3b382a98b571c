package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSessionCmd creates the 'session' command group.
func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Show the user identity commands act as",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current user id and where it is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sess, err := resolveSession(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User ID: %s\n", sess.UserID)
			switch {
			case sess.Path == "":
				fmt.Fprintln(out, "Source:  --user flag")
			case sess.Created:
				fmt.Fprintf(out, "Source:  %s (created now)\n", sess.Path)
			default:
				fmt.Fprintf(out, "Source:  %s\n", sess.Path)
			}
			return nil
		},
	})

	return sessionCmd
}

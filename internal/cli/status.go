package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/progress"
)

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server-side ingestion progress",
		Long: `Show the backend's ingestion progress for the current user.

With --watch the progress is polled until it reaches 100% or Ctrl+C is
pressed. Useful after 'ragdesk upload --no-wait'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := GetContext()
			out := cmd.OutOrStdout()

			if !watch {
				pct, err := a.client.GetProgress(ctx, a.session.UserID)
				if err != nil {
					return fmt.Errorf("failed to get ingestion progress: %w", err)
				}
				fmt.Fprintf(out, "Ingestion progress: %d%%\n", pct)
				return nil
			}

			if interval <= 0 {
				interval = a.cfg.PollInterval
			}
			return watchIngestion(ctx, progress.NewReporter(), interval, func(ctx context.Context) (int, error) {
				return a.client.GetProgress(ctx, a.session.UserID)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until ingestion completes")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval for --watch (default from config)")

	return cmd
}

// watchIngestion polls fetch every interval and reports until it returns
// 100 or an error.
func watchIngestion(ctx context.Context, reporter progress.Reporter, interval time.Duration, fetch func(context.Context) (int, error)) error {
	if interval < constants.MinPollInterval {
		interval = constants.MinPollInterval
	}

	reporter.Start(constants.MaxPercent, "ingesting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pct, err := fetch(ctx)
		if err != nil {
			reporter.Error(err)
			return fmt.Errorf("failed to get ingestion progress: %w", err)
		}
		reporter.Update(int64(pct))
		if pct >= constants.MaxPercent {
			reporter.Finish()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

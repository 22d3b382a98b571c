package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/category"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/localfs"
	"github.com/ragdesk/ragdesk/internal/notify"
	"github.com/ragdesk/ragdesk/internal/progress"
	"github.com/ragdesk/ragdesk/internal/transfer"
	"github.com/ragdesk/ragdesk/internal/util/filter"
	"github.com/ragdesk/ragdesk/internal/util/sanitize"
	"github.com/ragdesk/ragdesk/internal/util/strings"
)

// uploadFlags are shared by 'files upload' and the 'upload' shortcut.
type uploadFlags struct {
	category  string
	recursive bool
	hidden    bool
	include   string
	exclude   string
	noWait    bool
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "Category label to tag every uploaded file with")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "Descend into subdirectories of directory arguments")
	cmd.Flags().BoolVar(&f.hidden, "hidden", false, "Include hidden files found in directories")
	cmd.Flags().StringVar(&f.include, "include", "", "Only upload directory entries matching these patterns (comma-separated globs)")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Skip directory entries matching these patterns (comma-separated globs)")
	cmd.Flags().BoolVar(&f.noWait, "no-wait", false, "Return once ingestion has started instead of waiting for it to finish")
}

func newUploadCmd(use, short string) *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: `Upload documents and wait for the backend to ingest them.

Every file is transferred, then the batch is submitted for processing and
ingestion progress is followed until it reaches 100%. Files that fail to
transfer are reported and left out of the batch; the rest continue.

Directories are expanded (add -r to descend into subdirectories). When two
files share a name, the one listed last wins.

Examples:
  ragdesk upload report.pdf notes.md
  ragdesk upload ./papers -r --include "*.pdf" --category Research
  ragdesk files upload handbook.pdf --no-wait`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return executeUpload(GetContext(), cmd.OutOrStdout(), a, args, flags)
		},
	}

	flags.register(cmd)
	return cmd
}

// executeUpload runs one batch end to end.
func executeUpload(ctx context.Context, out io.Writer, a *app, args []string, flags uploadFlags) error {
	paths, err := localfs.Collect(args, localfs.CollectOptions{
		Recursive:     flags.recursive,
		IncludeHidden: flags.hidden,
		Filter: filter.Config{
			Include: filter.ParsePatternList(flags.include),
			Exclude: filter.ParsePatternList(flags.exclude),
		},
	})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no files to upload")
	}

	handles := make([]transfer.SourceHandle, 0, len(paths))
	for _, p := range paths {
		h, err := transfer.NewSourceHandle(p)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	reg := a.registry()
	view := a.view(reg)

	label, err := resolveUploadLabel(ctx, a, reg, flags.category)
	if err != nil {
		return err
	}

	orch := transfer.NewOrchestrator(a.session, a.client, a.bus, a.logger, transfer.OptionsFromConfig(a.cfg))
	defer orch.Close()
	orch.SetRefresher(view)

	items, err := orch.Enqueue(handles...)
	if err != nil {
		return err
	}
	for _, it := range items {
		orch.SetCategory(it.Name(), label)
	}

	// Subscribe before starting so no event is missed.
	ui := progress.NewBatchUI(orch.Batch().Len())
	uiCh := a.bus.SubscribeAll()
	stateCh := a.bus.Subscribe(events.EventBatchState)

	var watchers []chan struct{}
	watch := func(fn func()) {
		done := make(chan struct{})
		watchers = append(watchers, done)
		go func() {
			defer close(done)
			fn()
		}()
	}
	watch(func() { ui.Run(ctx, uiCh) })
	if a.cfg.Notifications && !flags.noWait {
		n := notify.NewNotifier(notify.DefaultConfig(), a.logger)
		notifyCh := a.bus.Subscribe(events.EventBatchState)
		watch(func() { n.Watch(ctx, notifyCh) })
	}

	// Closing the bus ends every watcher once buffered events are drained.
	finish := func() {
		a.bus.Close()
		for _, done := range watchers {
			<-done
		}
		ui.Wait()
	}

	count := orch.Batch().Len()
	fmt.Fprintf(ui.Writer(), "Uploading %d %s as user %s\n", count, strings.Pluralize("file", int64(count)), a.session.UserID)

	if err := orch.StartUpload(ctx); err != nil {
		finish()
		return err
	}

	outcome, detached, err := waitForBatch(ctx, orch, stateCh, flags.noWait)
	finish()
	if err != nil {
		return err
	}
	if detached {
		fmt.Fprintln(out, "Ingestion started. Follow it with: ragdesk status --watch")
		return nil
	}
	return reportOutcome(out, outcome)
}

// resolveUploadLabel returns the label to send with every manifest entry,
// using the spelling of an existing category when one matches.
func resolveUploadLabel(ctx context.Context, a *app, reg *category.Registry, raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	opt, err := category.NewOption(raw)
	if err != nil {
		return nil, err
	}
	if err := reg.LoadOptions(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("could not load known categories")
	}
	if known, ok := reg.Resolve(raw); ok {
		opt = known
	}
	return &opt.Label, nil
}

// waitForBatch blocks until the batch settles. With noWait it returns as
// soon as ingestion polling starts.
func waitForBatch(ctx context.Context, orch *transfer.Orchestrator, stateCh <-chan events.Event, noWait bool) (transfer.Outcome, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return transfer.Outcome{}, false, ctx.Err()
		case outcome, ok := <-orch.Done():
			if !ok {
				return transfer.Outcome{}, false, errors.New("upload aborted")
			}
			return outcome, false, nil
		case ev, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
			if be, isBatch := ev.(*events.BatchEvent); isBatch && noWait && be.NewState == transfer.StatePolling.String() {
				return transfer.Outcome{}, true, nil
			}
		}
	}
}

func reportOutcome(out io.Writer, outcome transfer.Outcome) error {
	total := len(outcome.Items)
	if outcome.State == transfer.StateSettledDone {
		fmt.Fprintf(out, "✓ %d %s uploaded and ingested\n", total, strings.Pluralize("file", int64(total)))
		return nil
	}

	failed := 0
	for _, it := range outcome.Items {
		if it.Stage != transfer.StageFailed {
			continue
		}
		failed++
		fmt.Fprintf(out, "✗ %s: %v\n", sanitize.Line(it.Name()), it.Err)
	}
	fmt.Fprintf(out, "%d of %d %s failed\n", failed, total, strings.Pluralize("file", int64(total)))
	if outcome.Err != nil {
		return outcome.Err
	}
	return fmt.Errorf("%d of %d files failed", failed, total)
}

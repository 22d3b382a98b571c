// Package progress renders upload batches and ingestion status on the
// terminal. Bars are driven by events from the event bus, never by direct
// calls from the transfer code.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/util/sanitize"
)

// BatchUI shows one bar per upload item. On a terminal the bars are drawn
// by mpb; otherwise stage changes are printed as plain lines.
type BatchUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalItems int

	mu    sync.Mutex
	bars  map[string]*itemBar // item id -> bar
	order int
}

type itemBar struct {
	bar   *mpb.Bar
	index int
	name  string
	size  int64
	stage string
	shown atomic.Value // stage string read by the render goroutine
	done  bool
}

// NewBatchUI creates a UI for a batch of totalItems files, drawing on
// stderr when it is a terminal.
func NewBatchUI(totalItems int) *BatchUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
	}
	return newBatchUI(os.Stderr, isTerminal, totalItems)
}

func newBatchUI(out io.Writer, isTerminal bool, totalItems int) *BatchUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(80),
		)
	}
	return &BatchUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalItems: totalItems,
		bars:       make(map[string]*itemBar),
	}
}

// Run renders events from ch until it is closed or ctx is done.
func (u *BatchUI) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			u.Handle(ev)
		}
	}
}

// Handle applies one event. Events other than item events are ignored.
func (u *BatchUI) Handle(ev events.Event) {
	ie, ok := ev.(*events.ItemEvent)
	if !ok {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	ib := u.barLocked(ie)
	if ib.done {
		return
	}

	switch ie.Type() {
	case events.EventItemFailed:
		ib.done = true
		ib.stage = ie.Stage
		if ib.bar != nil {
			ib.bar.Abort(false)
		}
		u.printLocked(fmt.Sprintf("✗ %s: %v\n", ib.name, ie.Error))

	case events.EventItemRemoved:
		ib.done = true
		if ib.bar != nil {
			ib.bar.Abort(true)
		}

	default:
		if ib.bar != nil {
			ib.bar.SetCurrent(int64(ie.Progress))
		}
		if ie.Stage != ib.stage {
			ib.stage = ie.Stage
			ib.shown.Store(ie.Stage)
			if !u.isTerminal && ie.Stage != "queued" && ie.Stage != "done" {
				u.printLocked(fmt.Sprintf("[%d/%d] %s: %s (%d%%)\n", ib.index, u.totalItems, ib.name, ie.Stage, ie.Progress))
			}
		}
		if ie.Stage == "done" {
			ib.done = true
			if ib.bar != nil {
				ib.bar.SetTotal(constants.MaxPercent, true)
			}
			u.printLocked(fmt.Sprintf("✓ %s (%s)\n", ib.name, formatSize(ib.size)))
		}
	}
}

func (u *BatchUI) barLocked(ie *events.ItemEvent) *itemBar {
	if ib, ok := u.bars[ie.ItemID]; ok {
		return ib
	}

	u.order++
	ib := &itemBar{
		index: u.order,
		name:  sanitize.Line(ie.Name),
		size:  ie.Size,
	}
	if u.order > u.totalItems {
		u.totalItems = u.order
	}

	if u.isTerminal {
		label := fmt.Sprintf("[%d] %s", ib.index, truncateName(ib.name, 32))
		ib.bar = u.progress.New(constants.MaxPercent,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpaceR),
				decor.Any(func(decor.Statistics) string {
					stage, _ := ib.shown.Load().(string)
					return stage
				}, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	}

	u.bars[ie.ItemID] = ib
	return ib
}

// printLocked writes above the bars on a terminal, or straight to out.
func (u *BatchUI) printLocked(msg string) {
	if u.isTerminal && u.progress != nil {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	_, _ = io.WriteString(u.out, msg)
}

// Wait stops any bar still running and blocks until rendering finishes.
func (u *BatchUI) Wait() {
	u.mu.Lock()
	for _, ib := range u.bars {
		if !ib.done && ib.bar != nil {
			ib.bar.Abort(false)
		}
		ib.done = true
	}
	u.mu.Unlock()

	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns a writer that prints above the bars.
func (u *BatchUI) Writer() io.Writer {
	if u.isTerminal && u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *BatchUI) IsTerminal() bool {
	return u.isTerminal
}

func truncateName(name string, maxLen int) string {
	r := []rune(name)
	if len(r) <= maxLen {
		return name
	}
	return "…" + string(r[len(r)-maxLen+1:])
}

func formatSize(n int64) string {
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

// enableANSIOnWindows is a no-op except on Windows consoles.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}

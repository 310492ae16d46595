package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// barScale is the resolution bars are driven at when only a percentage is
// known: one unit per tenth of a percent.
const barScale = 1000

// Display renders the records of one transfer.
type Display interface {
	Update(rec Record)
	Complete(err error)
}

// Board shows one bar per concurrent transfer using mpb. When stderr is not a
// terminal the bars are replaced by plain start and finish lines.
type Board struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	total      int

	mu      sync.Mutex
	started int
}

// NewBoard creates a board for total transfers writing to stderr.
func NewBoard(total int) *Board {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return newBoard(os.Stderr, isTerminal, total)
}

func newBoard(out io.Writer, isTerminal bool, total int) *Board {
	b := &Board{out: out, isTerminal: isTerminal, total: total}
	if isTerminal {
		if f, ok := out.(*os.File); ok {
			enableVirtualTerminal(f)
		}
		b.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(60),
		)
	}
	return b
}

// Line is a single transfer's row on a Board.
type Line struct {
	board *Board
	bar   *mpb.Bar
	index int
	label string
	start time.Time

	mu   sync.Mutex
	last Record
}

// Add registers a transfer and returns its line.
func (b *Board) Add(source, dest string) *Line {
	b.mu.Lock()
	b.started++
	index := b.started
	b.mu.Unlock()

	l := &Line{
		board: b,
		index: index,
		label: fmt.Sprintf("%s → %s", shortPath(source, 2), dest),
		start: time.Now(),
	}

	if b.progress == nil {
		fmt.Fprintf(b.out, "Uploading [%d/%d]: %s\n", index, b.total, l.label)
		return l
	}

	l.bar = b.progress.New(barScale,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s", index, b.total, l.label), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Any(func(decor.Statistics) string {
				rec := l.snapshot()
				if rec.ETA == "" {
					return rec.Rate
				}
				return fmt.Sprintf("%s  ETA %s", rec.Rate, rec.ETA)
			}, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
	return l
}

func (l *Line) snapshot() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Update moves the bar to the record's percentage. Records without a
// percentage only refresh the rate and ETA columns.
func (l *Line) Update(rec Record) {
	l.mu.Lock()
	if rec.Rate == "" {
		rec.Rate = l.last.Rate
	}
	l.last = rec
	l.mu.Unlock()

	if l.bar == nil || rec.Percent == nil {
		return
	}
	l.bar.SetCurrent(int64(clampPercent(*rec.Percent) * barScale / 100))
}

// Complete finishes the line and prints a summary above the bars.
func (l *Line) Complete(err error) {
	elapsed := time.Since(l.start).Round(time.Second)
	var msg string
	if err == nil {
		if l.bar != nil {
			l.bar.SetCurrent(barScale)
			l.bar.SetTotal(barScale, true)
		}
		msg = fmt.Sprintf("✓ %s (%s)\n", l.label, elapsed)
	} else {
		if l.bar != nil {
			l.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %v\n", l.label, err)
	}
	_, _ = io.WriteString(l.board.Writer(), msg)
}

// Writer returns a writer that prints above the bars without corrupting them.
func (b *Board) Writer() io.Writer {
	if b.progress != nil {
		return b.progress
	}
	return b.out
}

// IsTerminal reports whether bars are being drawn.
func (b *Board) IsTerminal() bool { return b.isTerminal }

// Wait blocks until every bar has completed or aborted.
func (b *Board) Wait() {
	if b.progress != nil {
		b.progress.Wait()
	}
}

// Bar shows a single transfer with progressbar. Used when exactly one
// upload runs in the foreground.
type Bar struct {
	bar *progressbar.ProgressBar
	out io.Writer

	mu   sync.Mutex
	rate string
}

// NewBar creates a single bar labelled with the source name.
func NewBar(source string) *Bar {
	return newBar(os.Stderr, source)
}

func newBar(out io.Writer, source string) *Bar {
	b := &Bar{out: out}
	b.bar = progressbar.NewOptions64(barScale,
		progressbar.OptionSetDescription(shortPath(source, 2)),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return b
}

// Update moves the bar and refreshes the rate shown in its description.
func (b *Bar) Update(rec Record) {
	b.mu.Lock()
	if rec.Rate != "" {
		b.rate = rec.Rate
	}
	rate := b.rate
	b.mu.Unlock()

	if rec.Percent != nil {
		_ = b.bar.Set64(int64(clampPercent(*rec.Percent) * barScale / 100))
	}
	if rate != "" {
		desc := rate
		if rec.ETA != "" {
			desc += "  ETA " + rec.ETA
		}
		b.bar.Describe(desc)
	}
}

// Complete finishes the bar, or prints the error and leaves it where it
// stopped.
func (b *Bar) Complete(err error) {
	if err != nil {
		_ = b.bar.Exit()
		fmt.Fprintf(b.out, "\nError: %v\n", err)
		return
	}
	_ = b.bar.Finish()
}

// shortPath keeps the last n components of p, e.g.
// shortPath("/a/b/c/d.mov", 2) == "…/c/d.mov".
func shortPath(p string, n int) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	if len(parts) <= n {
		return filepath.Base(p)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}

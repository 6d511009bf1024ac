package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
)

const (
	progressBarWidth = 40
	msPerSecond      = 1000
	msPerMinute      = 60 * msPerSecond
)

// styles holds the lipgloss styles used for status output.
type styles struct {
	bold  lipgloss.Style
	info  lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	name  lipgloss.Style
	muted lipgloss.Style
}

// newStyles builds styles bound to w. With color disabled every style renders plain text.
func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		plain := r.NewStyle()
		return styles{bold: plain, info: plain, ok: plain, warn: plain, fail: plain, name: plain, muted: plain}
	}
	return styles{
		bold:  r.NewStyle().Bold(true),
		info:  r.NewStyle().Foreground(lipgloss.Color("4")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")),
		name:  r.NewStyle().Foreground(lipgloss.Color("6")),
		muted: r.NewStyle().Foreground(lipgloss.Color("246")),
	}
}

// progressTracker renders one line per settled flow, an optional progress
// bar on terminals and the closing summary. It implements batch.ProgressSink.
type progressTracker struct {
	w           io.Writer
	st          styles
	printer     *message.Printer
	showDetails bool
	bar         *progress.Model
	barVisible  bool
}

// trackerOptions controls what a progressTracker prints.
type trackerOptions struct {
	showProgressBar bool
	showDetails     bool
	color           bool
	total           int
}

func newProgressTracker(w io.Writer, opts trackerOptions) *progressTracker {
	t := &progressTracker{
		w:           w,
		st:          newStyles(w, opts.color),
		printer:     message.NewPrinter(language.English),
		showDetails: opts.showDetails,
	}
	if opts.showProgressBar && opts.total > 1 && writerIsTerminal(w) {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth))
		t.bar = &bar
	}
	return t
}

// OnProgress prints the event and redraws the bar.
func (t *progressTracker) OnProgress(p batch.Progress) {
	if t.showDetails {
		t.clearBar()
		fmt.Fprintln(t.w, t.progressLine(p))
	}
	if t.bar != nil {
		t.clearBar()
		fmt.Fprintf(t.w, "Progress %s | %d/%d | Success: %s | Failed: %s | Skipped: %s",
			t.bar.ViewAs(p.PercentComplete()/100),
			p.Processed, p.Total,
			t.st.ok.Render(fmt.Sprint(p.Successful)),
			t.st.fail.Render(fmt.Sprint(p.Failed)),
			t.st.warn.Render(fmt.Sprint(p.Skipped)))
		t.barVisible = true
	}
}

func (t *progressTracker) progressLine(p batch.Progress) string {
	prefix := fmt.Sprintf("[%d/%d] (%.0f%%)", p.Processed, p.Total, p.PercentComplete())
	out := p.Outcome
	name := t.st.name.Render(out.ID)
	switch {
	case out.Skipped():
		return fmt.Sprintf("%s %s %s %s %s - %s", prefix, t.st.warn.Render("⊝"), p.Label, name, t.st.warn.Render("(skipped)"), out.Message)
	case out.Success:
		return fmt.Sprintf("%s %s %s %s - %s", prefix, t.st.ok.Render("✓"), p.Label, name, out.Message)
	default:
		return fmt.Sprintf("%s %s %s %s - %s", prefix, t.st.fail.Render("✗"), p.Label, name, t.st.fail.Render(out.Message))
	}
}

func (t *progressTracker) clearBar() {
	if t.barVisible {
		fmt.Fprint(t.w, "\r\x1b[2K")
		t.barVisible = false
	}
}

// Summary finishes the bar and prints the operation summary for res.
func (t *progressTracker) Summary(res batch.Result) {
	if t.barVisible {
		fmt.Fprintln(t.w)
		t.barVisible = false
	}

	s := res.Summary
	processed := s.Successful + s.Failed
	p := t.printer

	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w, t.st.bold.Render("=== Operation Summary ==="))
	fmt.Fprintf(t.w, "%s %s\n", t.st.bold.Render("Total flows:"), p.Sprintf("%d", s.Total))
	fmt.Fprintf(t.w, "%s %s\n", t.st.bold.Render("Processed:"), p.Sprintf("%d", processed))
	fmt.Fprintf(t.w, "%s %s\n", t.st.ok.Render("✓ Successful:"), p.Sprintf("%d", s.Successful-s.Skipped))
	fmt.Fprintf(t.w, "%s %s\n", t.st.warn.Render("⊝ Skipped:"), p.Sprintf("%d", s.Skipped))
	fmt.Fprintf(t.w, "%s %s\n", t.st.fail.Render("✗ Failed:"), p.Sprintf("%d", s.Failed))
	fmt.Fprintf(t.w, "%s %s\n", t.st.bold.Render("Duration:"), formatDuration(s.Duration))

	if processed > 0 {
		fmt.Fprintf(t.w, "%s %.0f%%\n", t.st.bold.Render("Success Rate:"), s.SuccessRate())
		avg := s.DurationMS / int64(processed)
		fmt.Fprintf(t.w, "%s %s\n", t.st.bold.Render("Average Time:"), p.Sprintf("%dms per flow", avg))
	}

	if s.Failed > 0 {
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, t.st.fail.Bold(true).Render("❌ Failed Operations:"))
		i := 0
		for _, out := range res.Results {
			if out.Success {
				continue
			}
			i++
			fmt.Fprintf(t.w, "%d. %s: %s\n", i, t.st.name.Render(out.ID), out.Message)
		}
	}

	if s.Skipped > 0 {
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, t.st.warn.Bold(true).Render("⊝ Skipped Operations:"))
		i := 0
		for _, out := range res.Results {
			if !out.Skipped() {
				continue
			}
			i++
			fmt.Fprintf(t.w, "%d. %s: %s\n", i, t.st.name.Render(out.ID), out.Message)
		}
	}
}

// formatDuration renders d as "850ms", "12.3s" or "2m 5s".
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < msPerSecond:
		return fmt.Sprintf("%dms", ms)
	case ms < msPerMinute:
		return fmt.Sprintf("%.1fs", float64(ms)/msPerSecond)
	default:
		return fmt.Sprintf("%dm %ds", ms/msPerMinute, (ms%msPerMinute)/msPerSecond)
	}
}

// printDetailedResults lists every outcome with its message, used by --verbose.
func printDetailedResults(w io.Writer, st styles, results []batch.Outcome, done, already string, showErrors bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.info.Render("📋 Detailed Results:"))
	for i, out := range results {
		var status string
		switch {
		case out.Skipped():
			status = st.warn.Render("⊝ " + already)
		case out.Success:
			status = st.ok.Render("✓ " + done)
		default:
			status = st.fail.Render("✗ Failed")
		}
		fmt.Fprintf(w, "%d. %s - %s\n", i+1, st.name.Render(out.ID), status)
		if out.Message != "" {
			fmt.Fprintf(w, "   %s\n", st.muted.Render(out.Message))
		}
		if showErrors && out.Error != "" {
			fmt.Fprintf(w, "   %s\n", st.fail.Render("Error: "+out.Error))
		}
	}
}

// printNumberedList prints names as "   1. name".
func printNumberedList(w io.Writer, names []string) {
	for i, n := range names {
		fmt.Fprintf(w, "   %d. %s\n", i+1, n)
	}
}

// writerIsTerminal reports whether w is a terminal file.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

// truncate shortens s to at most n runes, ending with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

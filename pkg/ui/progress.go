package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"bhascraper/pkg/checkpoint"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// Progress renders a single updating status line for a fetch run. It
// satisfies pipeline.Observer.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	verbose bool

	total   int
	done    int
	current string
	counts  checkpoint.Counters
	skipped int

	start time.Time
	now   func() time.Time
}

// NewProgress creates a Progress writing to w. label names the run, usually
// the date range. In verbose mode every skipped unit gets its own line.
func NewProgress(w io.Writer, label string, verbose bool) *Progress {
	return &Progress{
		w:       w,
		label:   label,
		verbose: verbose,
		start:   time.Now(),
		now:     time.Now,
	}
}

// MonthStarted marks month as the one being fetched
func (p *Progress) MonthStarted(month string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = month
	p.total = total
	p.printLine()
}

// MonthDone adds a finished month's counters
func (p *Progress) MonthDone(month string, counts checkpoint.Counters, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.total = total
	p.counts.Add(counts)
	p.current = ""
	p.printLine()
}

// UnitSkipped records a unit the pipeline gave up on
func (p *Progress) UnitSkipped(kind, id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	if p.verbose {
		fmt.Fprintf(p.w, "\n%s skipped %s/%s: %v\n", Red("✗"), kind, id, err)
	}
	p.printLine()
}

// Complete ends the status line with a short summary
func (p *Progress) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.start)
	printer.Fprintf(p.w, "\n%s %s: %d/%d months, %d documents in %s\n",
		Green("✓"),
		p.label,
		p.done,
		p.total,
		p.counts.Documents,
		FormatDuration(elapsed),
	)
	if p.skipped > 0 {
		fmt.Fprintf(p.w, "  %s %d units skipped\n", Dim("•"), p.skipped)
	}
}

// Line returns the current status line without printing it
func (p *Progress) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *Progress) printLine() {
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

func (p *Progress) line() string {
	line := printer.Sprintf("%s %s %d/%d months • %d docs • %s",
		Cyan(p.label),
		Bar(p.done, p.total, barWidth),
		p.done,
		p.total,
		p.counts.Documents,
		p.eta(),
	)
	if p.current != "" {
		line += " • " + p.current
	}
	if p.skipped > 0 {
		line += " • " + Red(fmt.Sprintf("%d skipped", p.skipped))
	}
	return line
}

func (p *Progress) eta() string {
	if p.done == 0 || p.total == 0 {
		return "calculating..."
	}
	perMonth := p.now().Sub(p.start) / time.Duration(p.done)
	return FormatDuration(perMonth*time.Duration(p.total-p.done)) + " left"
}

// Bar draws a fixed-width bar for done out of total
func Bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled) + "]"
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

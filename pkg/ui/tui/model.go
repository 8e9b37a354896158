package tui

import (
	"fmt"
	"sync"
	"time"

	"bhascraper/pkg/checkpoint"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MonthState is where a fixture month is in the run
type MonthState int

const (
	MonthPending MonthState = iota
	MonthActive
	MonthDone
	MonthResumed
)

// MonthItem tracks one fixture month
type MonthItem struct {
	Name     string
	State    MonthState
	Counts   checkpoint.Counters
	Started  time.Time
	Finished time.Time
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the dashboard state
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	label      string
	months     map[string]*MonthItem
	monthOrder []string
	totals     checkpoint.Counters
	skipped    []string

	sessionStart time.Time
	finished     bool
	runErr       error

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
	maxSkipped     int

	// onQuit cancels the run when the user leaves the dashboard
	onQuit func()

	mu sync.RWMutex
}

// NewModel creates a dashboard for the given months, in run order
func NewModel(label string, months []string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(turfGreen)

	m := &Model{
		spinner:        s,
		bar:            progress.New(progress.WithGradient(string(silkBlue), string(turfGreen))),
		label:          label,
		months:         make(map[string]*MonthItem, len(months)),
		sessionStart:   time.Now(),
		maxLogMessages: 50,
		maxSkipped:     200,
	}
	for _, name := range months {
		m.months[name] = &MonthItem{Name: name, State: MonthPending}
		m.monthOrder = append(m.monthOrder, name)
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// StartMonth marks a month as being fetched
func (m *Model) StartMonth(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.month(name)
	item.State = MonthActive
	item.Started = time.Now()
}

// CompleteMonth records a month's counters
func (m *Model) CompleteMonth(name string, counts checkpoint.Counters) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.month(name)
	item.State = MonthDone
	item.Counts = counts
	item.Finished = time.Now()
	m.totals.Add(counts)
}

// SkipUnit records a unit the pipeline gave up on
func (m *Model) SkipUnit(kind, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.skipped = append(m.skipped, fmt.Sprintf("%s/%s: %v", kind, id, err))
	if len(m.skipped) > m.maxSkipped {
		m.skipped = m.skipped[len(m.skipped)-m.maxSkipped:]
	}
}

// Finish marks the run as over. Months still pending were completed by an
// earlier run.
func (m *Model) Finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = true
	m.runErr = err
	if err != nil {
		return
	}
	for _, item := range m.months {
		if item.State == MonthPending {
			item.State = MonthResumed
		}
	}
}

func (m *Model) month(name string) *MonthItem {
	item, ok := m.months[name]
	if !ok {
		item = &MonthItem{Name: name}
		m.months[name] = item
		m.monthOrder = append(m.monthOrder, name)
	}
	return item
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR", "FATAL":
		color = alertRed
	case "WARN":
		color = cautionAmber
	case "SUCCESS":
		color = turfGreen
	case "INFO":
		color = silkBlue
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// MonthsIn returns the months in state s, in run order
func (m *Model) MonthsIn(s MonthState) []*MonthItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MonthItem
	for _, name := range m.monthOrder {
		if item := m.months[name]; item.State == s {
			out = append(out, item)
		}
	}
	return out
}

// Stats returns the fraction of months done, the average time per month
// and an estimate of the time left
func (m *Model) Stats() (fraction float64, perMonth, eta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var done, fetched, remaining int
	var spent time.Duration
	for _, item := range m.months {
		switch item.State {
		case MonthDone:
			done++
			fetched++
			spent += item.Finished.Sub(item.Started)
		case MonthResumed:
			done++
		default:
			remaining++
		}
	}

	if total := done + remaining; total > 0 {
		fraction = float64(done) / float64(total)
	}
	if fetched > 0 {
		perMonth = spent / time.Duration(fetched)
		eta = perMonth * time.Duration(remaining)
	}
	return
}

// Totals returns the counters summed over completed months
func (m *Model) Totals() checkpoint.Counters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals
}

// Skipped returns the most recent skipped units
func (m *Model) Skipped() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.skipped...)
}

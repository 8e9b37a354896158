package tui

import (
	"time"

	"bhascraper/pkg/checkpoint"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// MonthStartMsg is sent when the pipeline starts a fixture month
type MonthStartMsg struct {
	Month string
	Index int
	Total int
}

// MonthDoneMsg is sent when a fixture month completes
type MonthDoneMsg struct {
	Month  string
	Counts checkpoint.Counters
}

// UnitSkippedMsg is sent when a unit is skipped after failing
type UnitSkippedMsg struct {
	Kind  string
	ID    string
	Error error
}

// RunFinishedMsg is sent once Run returns
type RunFinishedMsg struct {
	Err error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case MonthStartMsg:
		m.StartMonth(msg.Month)
		return m, nil

	case MonthDoneMsg:
		m.CompleteMonth(msg.Month, msg.Counts)
		m.AddLogMessage("SUCCESS", "Completed "+msg.Month)
		return m, nil

	case UnitSkippedMsg:
		m.SkipUnit(msg.Kind, msg.ID, msg.Error)
		return m, nil

	case RunFinishedMsg:
		m.Finish(msg.Err)
		if msg.Err != nil {
			m.AddLogMessage("ERROR", "Run stopped: "+msg.Err.Error())
		} else {
			m.AddLogMessage("SUCCESS", "Run complete")
		}
		return m, tea.Quit

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

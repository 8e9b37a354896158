package tui

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"bhascraper/pkg/checkpoint"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the dashboard and forwards pipeline progress to it. It
// satisfies pipeline.Observer.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for a run over months. cancel is called when
// the user quits before the run ends.
func NewTUI(label string, months []string, cancel func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(label, months)
	model.onQuit = cancel
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start blocks until the dashboard exits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the dashboard
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the dashboard
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) MonthStarted(month string, index, total int) {
	t.Send(MonthStartMsg{Month: month, Index: index, Total: total})
}

func (t *TUI) MonthDone(month string, counts checkpoint.Counters, done, total int) {
	t.Send(MonthDoneMsg{Month: month, Counts: counts})
}

func (t *TUI) UnitSkipped(kind, id string, err error) {
	t.Send(UnitSkippedMsg{Kind: kind, ID: id, Error: err})
}

// Finish reports the run outcome. The dashboard exits afterwards.
func (t *TUI) Finish(err error) {
	t.Send(RunFinishedMsg{Err: err})
}

// Model exposes the dashboard state, mainly for a final summary
func (t *TUI) Model() *Model {
	return t.model
}

// LogWriter returns an io.Writer for zerolog JSON output. Each complete
// line becomes an entry in the log panel.
func (t *TUI) LogWriter() *LogWriter {
	return &LogWriter{send: t.Send}
}

// LogWriter turns zerolog JSON lines into LogMsg values
type LogWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(tea.Msg)
}

func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		if msg, ok := parseLogLine(line); ok {
			w.send(msg)
		}
	}
	return len(p), nil
}

func parseLogLine(line []byte) (LogMsg, bool) {
	var entry map[string]interface{}
	if err := json.Unmarshal(line, &entry); err != nil {
		text := strings.TrimSpace(string(line))
		return LogMsg{Level: "INFO", Message: text}, text != ""
	}

	level, _ := entry["level"].(string)
	message, _ := entry["message"].(string)
	if errText, ok := entry["error"].(string); ok {
		message += ": " + errText
	}
	return LogMsg{Level: strings.ToUpper(level), Message: message}, true
}

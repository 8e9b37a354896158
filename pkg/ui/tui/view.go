package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const logo = "bhascraper ▸ british horseracing fetch"

// View renders the dashboard
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	half := (m.width - 4) / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(half),
		m.renderMonthsPanel(half),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSkippedPanel(half),
		m.renderLogsPanel(half),
	)

	sections := []string{
		logoStyle.Render(logo),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderStatsPanel(width int) string {
	fraction, perMonth, eta := m.Stats()
	totals := m.Totals()

	m.mu.RLock()
	elapsed := time.Since(m.sessionStart)
	finished, runErr := m.finished, m.runErr
	m.mu.RUnlock()

	status := m.spinner.View() + " fetching"
	switch {
	case finished && runErr != nil:
		status = errorStyle.Render("✗ stopped")
	case finished:
		status = successStyle.Render("✓ complete")
	}

	m.bar.Width = width - 6
	rows := []string{
		stat("Range:", m.label),
		stat("Status:", status),
		stat("Elapsed:", formatDuration(elapsed)),
		stat("Per month:", formatDuration(perMonth)),
		stat("ETA:", formatDuration(eta)),
		stat("Documents:", fmt.Sprintf("%d", totals.Documents)),
		stat("Fixtures/Races:", fmt.Sprintf("%d / %d", totals.Fixtures, totals.Races)),
		stat("Results/Horses:", fmt.Sprintf("%d / %d", totals.Results, totals.Horses)),
		m.bar.ViewAs(fraction),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" RUN "), strings.Join(rows, "\n")),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m *Model) renderMonthsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Keep the active month in view on long ranges
	const visible = 12
	start := 0
	for i, name := range m.monthOrder {
		if m.months[name].State == MonthActive && i >= visible {
			start = i - visible + 1
		}
	}

	var rows []string
	for i := start; i < len(m.monthOrder) && i < start+visible; i++ {
		item := m.months[m.monthOrder[i]]
		glyph, style := stateStyle(item.State)
		row := style.Render(glyph + " " + item.Name)
		if item.State == MonthDone {
			row += mutedStyle.Render(fmt.Sprintf("  %d docs in %s",
				item.Counts.Documents, formatDuration(item.Finished.Sub(item.Started))))
		}
		rows = append(rows, row)
	}
	if hidden := len(m.monthOrder) - start - len(rows); hidden > 0 {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  ... and %d more", hidden)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" MONTHS "), strings.Join(rows, "\n")),
	)
}

func (m *Model) renderSkippedPanel(width int) string {
	skipped := m.Skipped()

	content := mutedStyle.Render("Nothing skipped")
	if len(skipped) > 0 {
		start := len(skipped) - 5
		if start < 0 {
			start = 0
		}
		rows := []string{warningStyle.Render(fmt.Sprintf("%d units skipped", len(skipped)))}
		for _, s := range skipped[start:] {
			rows = append(rows, truncate(s, width-6))
		}
		content = strings.Join(rows, "\n")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" SKIPPED "), content),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, entry := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, truncate(entry.Message, width-26)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = mutedStyle.Render("No logs yet...")
	}

	logsHeight := m.height - 20
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" LOG "), content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  q/Q/ctrl+c  stop the run and quit
  ctrl+l      clear the log panel
  ?           toggle this help

  ` + activeStyle.Render("▶") + ` fetching   ` + successStyle.Render("✓") + ` done   ` + mutedStyle.Render("↺") + ` done in an earlier run
`
	return panelStyle.Width(m.width - 2).Render(help)
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

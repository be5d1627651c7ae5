package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/monitor"
)

// noticeTTL is how long a command notice stays on screen.
const noticeTTL = 8 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
)

// View implements tea.Model.
func (m Model) View() string {
	v := m.view()
	width := clampInt(m.width-2, 40, 140)

	header := titleStyle.Render("CNPJ ETL monitor") + "  " + m.renderStream()

	status := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Width(width/2).Render(m.renderJob(v.Job)),
		panelStyle.Width(width-width/2-2).Render(m.renderUsage(v.Usage)),
	)

	sections := []string{header, status}
	if stats := m.renderImportStats(); stats != "" {
		sections = append(sections, panelStyle.Width(width).Render(stats))
	}
	sections = append(sections,
		panelStyle.Width(width).Render(m.renderLogs(clampInt(m.height-20, 3, 30))),
		m.renderNotice(),
		mutedStyle.Render(m.renderHints(v.Job)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStream() string {
	if m.state.StreamLive {
		return okStyle.Render("● live")
	}
	if m.state.Attempts == 0 {
		return mutedStyle.Render("○ connecting")
	}
	return warnStyle.Render(fmt.Sprintf("○ reconnecting (attempt %d)", m.state.Attempts))
}

func (m Model) renderJob(job display.JobView) string {
	var b strings.Builder

	phase := phaseLabel(job.Phase)
	if job.Running {
		phase = m.spin.View() + " " + phase
	}
	if m.busy != "" {
		phase += mutedStyle.Render(fmt.Sprintf("  (%s...)", m.busy))
	}
	row(&b, "Status", phase)
	row(&b, "Progress", m.bar.ViewAs(job.Progress/100)+" "+job.ProgressText)
	row(&b, "Records", job.RecordsText)
	row(&b, "Elapsed", job.Elapsed)
	if job.Step != "" {
		row(&b, "Step", job.Step)
	}
	if job.Error != "" {
		row(&b, "Error", errorStyle.Render(job.Error))
	}
	return strings.TrimRight(b.String(), "\n")
}

func phaseLabel(phase models.JobPhase) string {
	switch phase {
	case models.JobPhaseRunning:
		return runningStyle.Render("running")
	case models.JobPhaseCompleted:
		return okStyle.Render("completed")
	case models.JobPhaseFailed:
		return errorStyle.Render("failed")
	default:
		return mutedStyle.Render("idle")
	}
}

func (m Model) renderUsage(usage display.UsageView) string {
	var b strings.Builder
	row(&b, "Plan", usage.Plan)
	row(&b, "Queries", usage.Used+" / "+usage.Limit)
	if usage.Available {
		row(&b, "Usage", m.formatter.Percent(usage.Percent))
	}
	if u := m.state.Usage; u != nil && u.RenewsAt != nil {
		row(&b, "Renews", u.RenewsAt.Local().Format("2006-01-02"))
	}
	if upd := m.state.Updates; upd != nil {
		if upd.UpdateAvailable {
			row(&b, "Release", warnStyle.Render(upd.LatestRelease+" available"))
		} else {
			row(&b, "Release", upd.CurrentRelease)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderImportStats() string {
	stats := m.state.ImportStats
	if stats == nil || len(stats.Tables) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Imported data") + "\n")
	for _, t := range stats.Tables {
		row(&b, t.Table, m.formatter.Count(t.Records))
	}
	row(&b, "Total", m.formatter.Count(stats.TotalRecords))
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderLogs(lines int) string {
	entries := m.state.Logs
	if len(entries) > lines {
		entries = entries[len(entries)-lines:]
	}
	if len(entries) == 0 {
		return mutedStyle.Render("waiting for log lines...")
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, mutedStyle.Render(e.Timestamp)+" "+levelStyle(e.Level).Render(fmt.Sprintf("%-7s", e.Level))+" "+e.Message)
	}
	return strings.Join(out, "\n")
}

func levelStyle(level models.LogLevel) lipgloss.Style {
	switch level {
	case models.LogLevelError:
		return errorStyle
	case models.LogLevelWarning:
		return warnStyle
	case models.LogLevelDebug:
		return mutedStyle
	default:
		return runningStyle
	}
}

func (m Model) renderNotice() string {
	if m.lastErr != nil && m.state.Notice == nil {
		return errorStyle.Render("error: " + m.lastErr.Error())
	}
	n := m.state.Notice
	if n.Expired(m.now, noticeTTL) {
		return ""
	}
	switch n.Level {
	case monitor.NoticeError:
		return errorStyle.Render(n.Text)
	case monitor.NoticeWarning:
		return warnStyle.Render(n.Text)
	case monitor.NoticeSuccess:
		return okStyle.Render(n.Text)
	default:
		return n.Text
	}
}

func (m Model) renderHints(job display.JobView) string {
	hints := []string{}
	if job.CanStart {
		hints = append(hints, "s: start")
	}
	if job.CanStop {
		hints = append(hints, "x: stop")
	}
	hints = append(hints, "r: refresh", "u: check updates", "q: quit")
	return strings.Join(hints, " | ")
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

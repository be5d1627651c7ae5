// Package console renders the monitor in the terminal.
package console

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/monitor"
)

// refreshInterval drives the elapsed-time display.
const refreshInterval = time.Second

// commandTimeout bounds one start/stop/refresh/update request.
const commandTimeout = 30 * time.Second

// Controller is the part of the monitor the console reads and drives.
type Controller interface {
	Snapshot() monitor.State
	StartJob(ctx context.Context) error
	StopJob(ctx context.Context) error
	Refresh(ctx context.Context) error
	CheckUpdates(ctx context.Context) (*models.UpdateInfo, error)
	OnChange(fn func())
}

type tickMsg time.Time

// changedMsg reports a monitor state change.
type changedMsg struct{}

type commandDoneMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the console.
type Model struct {
	ctx       context.Context
	ctrl      Controller
	formatter *display.Formatter
	logger    *slog.Logger

	state   monitor.State
	now     time.Time
	busy    string
	lastErr error

	width  int
	height int

	bar  progress.Model
	spin spinner.Model
}

// NewModel creates a console model. ctx bounds the commands it issues.
func NewModel(ctx context.Context, ctrl Controller, formatter *display.Formatter, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	if formatter == nil {
		formatter = display.NewFormatter(display.DefaultLocale)
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = runningStyle

	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		formatter: formatter,
		logger:    logger,
		state:     ctrl.Snapshot(),
		now:       time.Now(),
		width:     100,
		height:    30,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:      spin,
	}
}

// Run shows the console until the operator quits or ctx is done.
func Run(ctx context.Context, ctrl Controller, formatter *display.Formatter, logger *slog.Logger) error {
	m := NewModel(ctx, ctrl, formatter, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Coalesce change notifications; Send blocks until the program runs.
	notify := make(chan struct{}, 1)
	ctrl.OnChange(func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				p.Send(changedMsg{})
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spin.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = clampInt(m.width-30, 10, 60)
		return m, nil
	case tickMsg:
		m.now = time.Time(msg)
		m.state = m.ctrl.Snapshot()
		return m, tickCmd()
	case changedMsg:
		m.state = m.ctrl.Snapshot()
		return m, nil
	case commandDoneMsg:
		m.busy = ""
		m.lastErr = msg.err
		if msg.err != nil {
			m.logger.Warn("console command failed", "action", msg.action, "error", msg.err)
		}
		m.state = m.ctrl.Snapshot()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	}

	if m.busy != "" {
		return m, nil
	}

	job := m.view().Job
	switch msg.String() {
	case "s":
		if !job.CanStart {
			return m, nil
		}
		m.busy = "start"
		return m, m.command("start", m.ctrl.StartJob)
	case "x":
		if !job.CanStop {
			return m, nil
		}
		m.busy = "stop"
		return m, m.command("stop", m.ctrl.StopJob)
	case "r":
		m.busy = "refresh"
		return m, m.command("refresh", m.ctrl.Refresh)
	case "u":
		m.busy = "updates"
		return m, m.command("updates", func(ctx context.Context) error {
			_, err := m.ctrl.CheckUpdates(ctx)
			return err
		})
	}
	return m, nil
}

// command runs fn off the UI goroutine.
func (m Model) command(action string, fn func(context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, commandTimeout)
		defer cancel()
		return commandDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) view() display.View {
	return m.formatter.BuildView(m.state.Status, m.state.Known, m.state.Usage, m.now, m.logger)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

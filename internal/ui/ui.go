package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/phx/internal/formatter"
	"github.com/desertthunder/phx/internal/tasks"
	"github.com/dustin/go-humanize"
)

const (
	logLines    = 8
	maxBarWidth = 72
	msgWidth    = 96
)

// RunFunc starts a sync pass that reports into progress. It must not close the channel.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)

// Model is the full-screen progress view for a single sync pass.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	run        RunFunc
	title      string
	progressCh chan tasks.ProgressUpdate
	notices    chan string
	done       chan runOutcome
	current    tasks.ProgressUpdate
	log        []string
	showLog    bool
	stopping   bool
	finished   bool
	result     *tasks.RunResult
	err        error
	bar        progress.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap
}

// NewModel creates the progress view. The pass starts when the program calls Init.
func NewModel(ctx context.Context, title string, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)
	from, to := styles.Gradient()
	bar := progress.New(progress.WithGradient(from, to))
	bar.Width = maxBarWidth

	return &Model{
		ctx:        ctx,
		cancel:     cancel,
		run:        run,
		title:      title,
		progressCh: make(chan tasks.ProgressUpdate, 50),
		notices:    make(chan string, 16),
		done:       make(chan runOutcome, 1),
		current:    tasks.ProgressUpdate{Total: -1},
		bar:        bar,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Notice queues a one-line message, such as a retry warning, for display. It never blocks.
func (m *Model) Notice(text string) {
	select {
	case m.notices <- text:
	default:
	}
}

// Result returns the outcome of the pass once the program has exited.
func (m *Model) Result() (*tasks.RunResult, error) {
	return m.result, m.err
}

// Init starts the pass and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.waitForNotice())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-16, 10), maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.current = msg.data.(tasks.ProgressUpdate)
			m.appendLog(m.current.Message)
			return m, m.waitForProgress()
		case MsgNotice:
			m.appendLog(styles.Warn(msg.data.(string)))
			return m, m.waitForNotice()
		case MsgRunComplete:
			out := msg.data.(runOutcome)
			m.result, m.err = out.result, out.err
			m.finished = true
			m.cancel()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		if m.finished {
			return m, tea.Quit
		}
		// The engine notices cancellation between items and returns; completion then quits.
		m.stopping = true
		m.cancel()
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.log):
		m.showLog = !m.showLog
	}
	return m, nil
}

func (m *Model) appendLog(line string) {
	if line == "" {
		return
	}
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m *Model) start() tea.Cmd {
	go func() {
		result, err := m.run(m.ctx, m.progressCh)
		m.done <- runOutcome{result, err}
		close(m.progressCh)
	}()
	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progressCh
		if !ok {
			out := <-m.done
			return runCompleteMsg(out.result, out.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) waitForNotice() tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(<-m.notices)
	}
}

// View renders the current phase, counters and help.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(styles.Title(m.title))
	b.WriteString("\n")

	switch {
	case m.finished && m.err != nil:
		b.WriteString(styles.Err(fmt.Sprintf("Sync failed: %v", m.err)))
	case m.finished:
		b.WriteString(styles.OK("✓ " + Summary(m.result)))
	case m.current.Phase == tasks.Sync && m.current.Total > 0:
		pct := float64(m.current.Step) / float64(m.current.Total)
		fmt.Fprintf(&b, "%s %d/%d\n", m.bar.ViewAs(min(pct, 1)), m.current.Step, m.current.Total)
		b.WriteString(formatter.TruncateMiddle(m.current.Message, msgWidth))
	default:
		fmt.Fprintf(&b, "%s %s", m.spinner.View(), formatter.TruncateMiddle(m.current.Message, msgWidth))
	}
	b.WriteString("\n\n")
	b.WriteString(Counters(m.current.Data))

	if m.stopping && !m.finished {
		b.WriteString("\n" + styles.Warn("Stopping after the current item..."))
	}
	if m.showLog && len(m.log) > 0 {
		b.WriteString("\n\n")
		for _, line := range m.log {
			b.WriteString(styles.Help(formatter.TruncateMiddle(line, msgWidth)) + "\n")
		}
	}

	b.WriteString("\n\n" + m.help.View(m.keys))
	return b.String()
}

// Counters renders the running per-outcome counters on one line.
func Counters(r tasks.RunResult) string {
	parts := []string{
		fmt.Sprintf("%d downloaded (%s)", r.Transferred, humanize.Bytes(uint64(max(r.Bytes, 0)))),
		fmt.Sprintf("%d present", r.Existing),
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.Failed > 0 || r.Unresolved > 0 {
		parts = append(parts, styles.Warn(fmt.Sprintf("%d failed", r.Failed+r.Unresolved)))
	}
	if r.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", r.Deleted))
	}
	return strings.Join(parts, " · ")
}

// Package tui renders the live status of one chain in the terminal.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/workchain/internal/tui/styles"
	"github.com/Iron-Ham/workchain/internal/work"
)

type snapshotMsg []work.TaskRun

type sourceClosedMsg struct{}

// Model is a bubbletea model that follows a stream of snapshot lists and
// quits once every TaskRun is terminal.
type Model struct {
	title    string
	source   <-chan []work.TaskRun
	onCancel func()

	tasks     []work.TaskRun
	spinner   spinner.Model
	finished  bool
	cancelled bool
	quitting  bool
}

// NewModel creates a model reading snapshot lists from source. onCancel, if
// set, runs when the user presses c.
func NewModel(title string, source <-chan []work.TaskRun, onCancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Warning
	return Model{
		title:    title,
		source:   source,
		onCancel: onCancel,
		spinner:  sp,
	}
}

// Tasks returns the last snapshot list received.
func (m Model) Tasks() []work.TaskRun {
	return m.tasks
}

// Finished reports whether the chain reached a terminal state while the
// model was running.
func (m Model) Finished() bool {
	return m.finished
}

func waitForSnapshot(source <-chan []work.TaskRun) tea.Cmd {
	return func() tea.Msg {
		list, ok := <-source
		if !ok {
			return sourceClosedMsg{}
		}
		return snapshotMsg(list)
	}
}

// Init starts the spinner and the first read from the source.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.source))
}

// Update handles key presses, snapshots and spinner ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if m.onCancel != nil && !m.cancelled && !m.finished {
				m.cancelled = true
				m.onCancel()
			}
		}
		return m, nil

	case snapshotMsg:
		m.tasks = []work.TaskRun(msg)
		if Finished(m.tasks) {
			m.finished = true
			return m, tea.Quit
		}
		return m, waitForSnapshot(m.source)

	case sourceClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the task list, a summary and the key help.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(styles.ContentBox.Render(RenderTasks(m.tasks, m.spinner.View())))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render(Summary(m.tasks)))

	help := "q quit"
	if m.onCancel != nil && !m.finished {
		help = "c cancel chain • " + help
	}
	if m.cancelled {
		help = "cancelling… • q quit"
	}
	b.WriteString("\n")
	b.WriteString(styles.HelpBar.Render(help))
	b.WriteString("\n")
	return b.String()
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tierone/installd/pkg/types"
)

// Model is the Bubbletea model of the installer progress view.
type Model struct {
	state        *watchState
	spinner      spinner.Model
	progress     progress.Model
	width        int
	exitOnSettle bool
	quitting     bool
	done         bool
	err          error
}

// NewModel creates a new UI model. With exitOnSettle the program quits
// once a phase run seen by the model ends.
func NewModel(exitOnSettle bool) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return Model{
		state:        newWatchState(),
		spinner:      s,
		progress:     p,
		width:        80,
		exitOnSettle: exitOnSettle,
	}
}

// EventMsg carries one event of the service.
type EventMsg types.Event

// DoneMsg ends the view. Err is the outcome of the operation watched.
type DoneMsg struct {
	Err error
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 60
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		if err := m.state.apply(types.Event(msg)); err != nil {
			m.err = err
		}
		if m.exitOnSettle && m.state.settled() {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// Err returns the error the view ended with.
func (m Model) Err() error {
	return m.err
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render("Installer"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	for _, source := range m.state.order {
		b.WriteString(m.renderProgress(source, m.state.progress[source]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.renderSummary())
	} else {
		b.WriteString(MutedStyle.Render("Press q to quit"))
	}

	return b.String()
}

func (m *Model) renderStatus() string {
	s := m.state
	lines := []string{
		LabelStyle.Render("phase") + PhaseStyle(s.phase).Render(s.phase.String()),
		LabelStyle.Render("status") + StatusStyle(s.status).Render(s.status.String()),
	}
	if len(s.busy) > 0 {
		lines = append(lines, LabelStyle.Render("busy")+WarningStyle.Render(strings.Join(s.busy, ", ")))
	}
	if s.product != "" {
		lines = append(lines, LabelStyle.Render("product")+s.product)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderProgress(source string, snap types.ProgressSnapshot) string {
	var b strings.Builder

	switch {
	case snap.Finished && snap.TotalSteps > 0:
		b.WriteString(SymbolSuccess)
	case snap.Finished:
		b.WriteString(SymbolPending)
	default:
		b.WriteString(m.spinner.View())
	}
	b.WriteString(" ")
	b.WriteString(SourceStyle.Render(source))
	b.WriteString(" ")
	b.WriteString(m.progress.ViewAs(snap.Percent()))
	if label := stepLabel(snap); label != "" {
		b.WriteString(" ")
		b.WriteString(MutedStyle.Render(label))
	}

	return b.String()
}

func (m *Model) renderSummary() string {
	var b strings.Builder
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	if m.err != nil {
		b.WriteString(SummaryErrorStyle.Render(fmt.Sprintf("✗ %v", m.err)))
	} else {
		b.WriteString(SummarySuccessStyle.Render(fmt.Sprintf("✓ %s phase reached", m.state.phase)))
	}

	return b.String()
}

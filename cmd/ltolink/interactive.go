package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ltolink/lto"
	"github.com/wippyai/ltolink/phase"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type phaseStatus int

const (
	phasePending phaseStatus = iota
	phaseRunning
	phaseDone
	phaseFailed
	phaseSkipped
)

type phaseRow struct {
	err     error
	name    phase.Name
	elapsed time.Duration
	status  phaseStatus
}

type interactiveModel struct {
	err      error
	report   *buildReport
	manifest *Manifest
	program  *tea.Program
	rows     []phaseRow
	spinner  spinner.Model
	done     bool
}

type phaseMsg struct {
	err     error
	name    phase.Name
	elapsed time.Duration
	status  phaseStatus
}

type finishedMsg struct {
	err    error
	report *buildReport
}

func newInteractiveModel(m *Manifest) *interactiveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	rows := make([]phaseRow, 0, len(phase.Known()))
	for _, n := range phase.Known() {
		rows = append(rows, phaseRow{name: n})
	}
	return &interactiveModel{
		manifest: m,
		rows:     rows,
		spinner:  s,
	}
}

// teaListener forwards phase events to the running program.
type teaListener struct {
	program *tea.Program
}

func (l teaListener) PhaseStarted(name phase.Name) {
	l.program.Send(phaseMsg{name: name, status: phaseRunning})
}

func (l teaListener) PhaseFinished(name phase.Name, elapsed time.Duration, err error) {
	status := phaseDone
	if err != nil {
		status = phaseFailed
	}
	l.program.Send(phaseMsg{name: name, status: status, elapsed: elapsed, err: err})
}

func (l teaListener) PhaseSkipped(name phase.Name) {
	l.program.Send(phaseMsg{name: name, status: phaseSkipped})
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m *interactiveModel) run() tea.Msg {
	report, err := link(context.Background(), m.manifest, teaListener{program: m.program})
	return finishedMsg{report: report, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}

	case phaseMsg:
		for i := range m.rows {
			if m.rows[i].name == msg.name {
				m.rows[i].status = msg.status
				m.rows[i].elapsed = msg.elapsed
				m.rows[i].err = msg.err
			}
		}
		return m, nil

	case finishedMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("LTO"))
	b.WriteString(" ")
	b.WriteString(m.manifest.Program.Module)
	b.WriteString(dimStyle.Render(" -> " + m.manifest.Build.Target))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		switch row.status {
		case phasePending:
			b.WriteString("  " + helpStyle.Render(string(row.name)))
		case phaseRunning:
			b.WriteString(m.spinner.View() + " " + phaseStyle.Render(string(row.name)))
		case phaseDone:
			b.WriteString(resultStyle.Render("✓ "+string(row.name)) +
				dimStyle.Render(fmt.Sprintf(" %.3fs", row.elapsed.Seconds())))
		case phaseFailed:
			b.WriteString(errorStyle.Render("✗ " + string(row.name)))
		case phaseSkipped:
			b.WriteString(helpStyle.Render("- " + string(row.name) + " (disabled)"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if !m.done {
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.report.Result.State == lto.Succeeded:
		b.WriteString(resultStyle.Render("Object: " + m.report.Output))
	case m.report.Result.State == lto.Linked:
		b.WriteString(resultStyle.Render(fmt.Sprintf("Linked %d inputs", len(m.report.Result.LinkInputs))))
	default:
		b.WriteString(errorStyle.Render(fmt.Sprintf("No object: %v", m.report.Result.CodegenErr)))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter/q quit"))

	return b.String()
}

func runInteractive(m *Manifest) error {
	model := newInteractiveModel(m)
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.program = p
	if _, err := p.Run(); err != nil {
		return err
	}
	return model.err
}

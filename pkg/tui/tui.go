// Package tui provides a terminal monitor for a virtual Kemper device
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/virtualkemper/pkg/runner"
	"github.com/james-see/virtualkemper/pkg/trace"
)

// Kemper-inspired color scheme (red panel, white labels)
var (
	kemperRed  = lipgloss.Color("#E4002B")
	amber      = lipgloss.Color("#FFB000")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(kemperRed).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(amber).
			Bold(true)

	inStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#39FF14"))

	outStyle = lipgloss.NewStyle().
			Foreground(amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(kemperRed).
			Padding(0, 1)
)

// State represents the current TUI state
type State int

const (
	StateMonitor State = iota
	StateFilePicker
	StateInjecting
)

// maxTraffic is the number of traffic lines kept for display
const maxTraffic = 12

// refreshInterval is how often the state panel is refreshed
const refreshInterval = 250 * time.Millisecond

// Model represents the TUI model
type Model struct {
	runner     *runner.Runner
	traffic    <-chan runner.Traffic
	state      State
	snapshot   runner.Snapshot
	params     table.Model
	log        []runner.Traffic
	filePicker filepicker.Model
	spinner    spinner.Model
	injectFile string
	status     string
	err        error
	width      int
	height     int
}

type trafficMsg runner.Traffic

type refreshMsg time.Time

// injectDoneMsg signals that a trace file has been played to the device
type injectDoneMsg struct {
	file  string
	count int
	err   error
}

// New creates a monitor for r. It subscribes to the runner's traffic.
func New(r *runner.Runner) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi", ".syx"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(kemperRed)

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Key", Width: 12},
			{Title: "Name", Width: 20},
			{Title: "Value", Width: 20},
			{Title: "Sets", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	m := Model{
		runner:     r,
		traffic:    r.Subscribe(64),
		state:      StateMonitor,
		params:     t,
		filePicker: fp,
		spinner:    s,
	}
	m.refresh()
	return m
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForTraffic(m.traffic), refreshTick())
}

func waitForTraffic(ch <-chan runner.Traffic) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return trafficMsg(t)
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *Model) refresh() {
	m.snapshot = m.runner.Snapshot()
	rows := make([]table.Row, 0, len(m.snapshot.Parameters))
	for _, p := range m.snapshot.Parameters {
		rows = append(rows, table.Row{p.Key, p.Name, fmt.Sprint(p.Value), joinSets(p.Sets)})
	}
	m.params.SetRows(rows)
}

func joinSets(sets []int) string {
	parts := make([]string, len(sets))
	for i, s := range sets {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, ",")
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Traffic and refresh ticks arrive in every state
	switch msg := msg.(type) {
	case trafficMsg:
		m.log = append(m.log, runner.Traffic(msg))
		if len(m.log) > maxTraffic {
			m.log = m.log[len(m.log)-maxTraffic:]
		}
		return m, waitForTraffic(m.traffic)

	case refreshMsg:
		m.refresh()
		return m, refreshTick()

	case injectDoneMsg:
		m.state = StateMonitor
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("Injected %d messages from %s", msg.count, filepath.Base(msg.file))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil
	}

	// File picker needs to receive all other messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMonitor
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.injectFile = path
			m.state = StateInjecting
			return m, tea.Batch(m.spinner.Tick, m.inject(path))
		}
		return m, cmd
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "o":
			if m.state == StateMonitor {
				m.state = StateFilePicker
				m.err = nil
				m.status = ""
				return m, m.filePicker.Init()
			}
		case "c":
			m.log = nil
			return m, nil
		}
		var cmd tea.Cmd
		m.params, cmd = m.params.Update(msg)
		return m, cmd
	}

	return m, nil
}

// inject plays the controller side of a trace file to the device in real
// time
func (m Model) inject(path string) tea.Cmd {
	r := m.runner
	return func() tea.Msg {
		entries, err := trace.ReadFile(path, 10*time.Millisecond)
		if err != nil {
			return injectDoneMsg{file: path, err: err}
		}
		n, err := r.Play(context.Background(), entries)
		return injectDoneMsg{file: path, count: n, err: err}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" VIRTUAL KEMPER "))
	s.WriteString("\n")

	switch m.state {
	case StateMonitor:
		s.WriteString(m.viewMonitor())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateInjecting:
		s.WriteString(fmt.Sprintf("%s Injecting %s...\n", m.spinner.View(), filepath.Base(m.injectFile)))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: parameters • o: inject file • c: clear log • q: quit"))

	return s.String()
}

func (m Model) viewMonitor() string {
	var s strings.Builder

	s.WriteString(m.viewState())
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.params.View()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.viewTraffic()))

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err)))
	} else if m.status != "" {
		s.WriteString("\n")
		s.WriteString(valueStyle.Render(m.status))
	}
	return s.String()
}

func (m Model) viewState() string {
	snap := m.snapshot

	set := "-"
	if snap.ActiveSet != nil {
		set = fmt.Sprint(*snap.ActiveSet)
	}

	fields := []string{
		labelStyle.Render("state ") + valueStyle.Render(snap.State),
		labelStyle.Render("set ") + valueStyle.Render(set),
		labelStyle.Render("step ") + valueStyle.Render(fmt.Sprint(snap.KeepAliveStep)),
		labelStyle.Render("lease ") + valueStyle.Render(snap.LeaseRemaining.Round(100*time.Millisecond).String()),
	}
	return boxStyle.Render(strings.Join(fields, "   "))
}

func (m Model) viewTraffic() string {
	if len(m.log) == 0 {
		return labelStyle.Render("no traffic yet")
	}

	lines := make([]string, 0, len(m.log))
	for _, t := range m.log {
		style, arrow := inStyle, "→"
		if t.Direction == "out" {
			style, arrow = outStyle, "←"
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s %-28s %s", arrow, t.Label, t.Hex)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Background(darkGray).Render(" SELECT TRACE FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to monitor"))

	return s.String()
}

// Run starts the TUI application until the user quits or ctx is cancelled
func Run(ctx context.Context, r *runner.Runner) error {
	m := New(r)
	defer r.Unsubscribe(m.traffic)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

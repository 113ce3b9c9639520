// Package tui renders the gauge cluster in a terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
	"github.com/shaunagostinho/mechanic-dash/internal/link"
)

// RefreshInterval is how often the view re-reads the channels.
const RefreshInterval = 50 * time.Millisecond

// StatusSource reports the current link status.
type StatusSource interface {
	Status() link.Status
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

type tickMsg time.Time

// Model is the bubbletea model for the terminal dashboard.
type Model struct {
	cluster  *gauge.Cluster
	status   StatusSource
	title    func() string
	bar      progress.Model
	readings []gauge.Reading
	link     link.Status
	width    int
	quitting bool
}

// New builds a model over a running cluster. title supplies the base title
// so config changes show up without a restart.
func New(cluster *gauge.Cluster, status StatusSource, title func() string) Model {
	return Model{
		cluster:  cluster,
		status:   status,
		title:    title,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		readings: cluster.Snapshot(),
		link:     status.Status(),
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)

	case tickMsg:
		m.readings = m.cluster.Snapshot()
		m.link = m.status.Status()
		return m, tickCmd()
	}
	return m, nil
}

func barWidth(termWidth int) int {
	// label + value columns plus box padding
	w := termWidth - 12 - 24 - 6
	if w < 10 {
		w = 10
	}
	return w
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.link.Title(m.title())))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Link: %s | Press 'q' to quit", m.link.Phase)))
	s.WriteString("\n\n")

	var body strings.Builder
	for i, r := range m.readings {
		if i > 0 {
			body.WriteString("\n")
		}
		body.WriteString(labelStyle.Render(r.Name))
		body.WriteString(m.bar.ViewAs(r.Fraction()))
		body.WriteString(" ")
		body.WriteString(valueStyle.Render(formatReading(r)))
	}
	s.WriteString(boxStyle.Render(body.String()))
	s.WriteString("\n")

	if m.link.Err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.link.Err.Error()))
		s.WriteString("\n")
	}
	return s.String()
}

// formatReading prints the needle value with the channel's unit suffix.
func formatReading(r gauge.Reading) string {
	return fmt.Sprintf("%7.1f%s", r.Current, r.Unit)
}

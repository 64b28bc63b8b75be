// Package ui renders the interactive review session as a terminal interface.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"casewise/internal/review"
	"casewise/internal/taxonomy"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ruleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	mlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type model struct {
	session  *review.Session
	progress progress.Model
	numBuf   string
	errMsg   string
	done     bool
	width    int
}

// Run drives a review session in a full-screen terminal interface. It
// returns after the queue is exhausted or the reviewer quits; staged labels
// are flushed either way.
func Run(session *review.Session) error {
	m := model{
		session:  session,
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if ferr := session.Finish(); err == nil {
		err = ferr
	}
	return err
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.done {
		return m, tea.Quit
	}
	m.errMsg = ""

	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "backspace":
		if len(m.numBuf) > 0 {
			m.numBuf = m.numBuf[:len(m.numBuf)-1]
		}
		return m, nil

	case "enter":
		if m.numBuf == "" {
			return m, nil
		}
		n, err := strconv.Atoi(m.numBuf)
		m.numBuf = ""
		if err != nil {
			m.errMsg = "not a number"
			return m, nil
		}
		return m.apply(func() error { return m.session.ChooseNumber(n) })

	case " ", "a":
		return m.apply(m.session.Accept)
	case "f":
		return m.apply(m.session.ChooseRule)
	case "j":
		return m.apply(m.session.ChooseML)
	case "o":
		return m.apply(m.session.ChooseOther)
	case "s":
		return m.apply(m.session.Skip)
	}

	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		m.numBuf += key
		return m, nil
	}
	return m, nil
}

func (m model) apply(action func() error) (tea.Model, tea.Cmd) {
	if err := action(); err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	if _, ok := m.session.Current(); !ok {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return "Queue exhausted. Flushing labels...\n"
	}
	c, ok := m.session.Current()
	if !ok {
		return "Queue exhausted.\n"
	}

	pos, total := m.session.Position()
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Review %d/%d", pos, total)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d labeled, %d staged)", m.session.Applied(), m.session.StagedCount())))
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(float64(pos-1) / float64(total)))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Width(m.width - 4).Render(c.Procedure))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("  rules: "))
	b.WriteString(ruleStyle.Render(c.RulePrediction))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("  model: "))
	b.WriteString(mlStyle.Render(fmt.Sprintf("%s (%.2f)", c.MLPrediction, c.MLConfidence)))
	b.WriteString("\n")
	if c.Disagreement {
		b.WriteString(alertStyle.Render("  DISAGREEMENT"))
		b.WriteString("\n")
	}
	for _, top := range c.Top {
		b.WriteString(dimStyle.Render(fmt.Sprintf("    %-32s %.2f", top.Label, top.Prob)))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("  recommended: "))
	b.WriteString(c.Recommended())
	b.WriteString("\n\n")

	for i, cat := range taxonomy.All {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %2d %s", i+1, cat)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.numBuf != "" {
		b.WriteString(fmt.Sprintf("  number: %s (enter to confirm)\n", m.numBuf))
	}
	if m.errMsg != "" {
		b.WriteString(errStyle.Render("  " + m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("  space/a accept · f rules · j model · o other · 1-11+enter · s skip · q quit"))
	b.WriteString("\n")
	return b.String()
}

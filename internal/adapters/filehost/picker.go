package filehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/corey/temmekit/internal/ports"
)

var (
	stylePrompt   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleCursor   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleItem     = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	styleSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TermPicker is an interactive terminal list. It draws on Output so stdout
// stays free for results.
type TermPicker struct {
	Input  io.Reader
	Output io.Writer
}

var _ ports.Picker = (*TermPicker)(nil)

// QuickPick runs the list until the user picks an item or dismisses it.
func (p *TermPicker) QuickPick(ctx context.Context, placeholder string, items []string) (string, error) {
	if len(items) == 0 {
		return "", ports.ErrNoSelection
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.Input != nil {
		opts = append(opts, tea.WithInput(p.Input))
	}
	if p.Output != nil {
		opts = append(opts, tea.WithOutput(p.Output))
	}
	final, err := tea.NewProgram(newPickModel(placeholder, items), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return "", ports.ErrNoSelection
		}
		return "", fmt.Errorf("picker: %w", err)
	}
	m := final.(pickModel)
	if m.chosen < 0 {
		return "", ports.ErrNoSelection
	}
	return items[m.chosen], nil
}

type pickModel struct {
	placeholder string
	items       []string
	cursor      int
	chosen      int
	done        bool
}

func newPickModel(placeholder string, items []string) pickModel {
	return pickModel{placeholder: placeholder, items: items, chosen: -1}
}

func (m pickModel) Init() tea.Cmd { return nil }

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k", "shift+tab":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = m.cursor
		m.done = true
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickModel) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(stylePrompt.Render(m.placeholder))
	sb.WriteString("\n")
	for i, item := range m.items {
		if i == m.cursor {
			sb.WriteString(styleCursor.Render("> "))
			sb.WriteString(styleSelected.Render(item))
		} else {
			sb.WriteString("  ")
			sb.WriteString(styleItem.Render(item))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(styleHelp.Render("↑/↓ move • enter select • esc cancel"))
	sb.WriteString("\n")
	return sb.String()
}

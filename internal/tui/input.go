// Package tui provides the interactive project-description prompt. It
// uses bubbletea's Elm-style model/update/view loop with a bubbles
// textarea for multi-line input.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	promptHintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	promptWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623"))
)

// InputModel collects a multi-line project description.
type InputModel struct {
	textarea  textarea.Model
	title     string
	warning   string
	submitted bool
	cancelled bool
}

// NewInput builds a focused textarea prompt.
func NewInput(title, placeholder string) InputModel {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.SetWidth(76)
	ta.SetHeight(8)
	ta.CharLimit = 0
	ta.Focus()
	return InputModel{textarea: ta, title: title}
}

// Init starts the cursor blink.
func (m InputModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles one message. Enter inserts a newline inside the
// textarea, so submission is bound to ctrl+d.
func (m InputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.textarea.SetWidth(max(20, msg.Width-4))
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if strings.TrimSpace(m.textarea.Value()) == "" {
				m.warning = "Describe the project before submitting."
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	if m.warning != "" && strings.TrimSpace(m.textarea.Value()) != "" {
		m.warning = ""
	}
	return m, cmd
}

// View renders the prompt.
func (m InputModel) View() string {
	sections := []string{
		promptTitleStyle.Render(m.title),
		m.textarea.View(),
	}
	if m.warning != "" {
		sections = append(sections, promptWarnStyle.Render(m.warning))
	}
	sections = append(sections, promptHintStyle.Render("Ctrl+D → submit    Esc → cancel"))
	return strings.Join(sections, "\n")
}

// Value returns the entered text, trimmed.
func (m InputModel) Value() string {
	return strings.TrimSpace(m.textarea.Value())
}

// Cancelled reports whether the user aborted the prompt.
func (m InputModel) Cancelled() bool {
	return m.cancelled
}

// Submitted reports whether the user confirmed the input.
func (m InputModel) Submitted() bool {
	return m.submitted
}

// Prompt runs the input program on the terminal and returns the entered
// text. A cancelled prompt is an error so callers abort the run.
func Prompt(title, placeholder string) (string, error) {
	program := tea.NewProgram(NewInput(title, placeholder))
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("tui: input prompt: %w", err)
	}
	model, ok := final.(InputModel)
	if !ok {
		return "", fmt.Errorf("tui: unexpected final model %T", final)
	}
	if model.Cancelled() || !model.Submitted() {
		return "", fmt.Errorf("tui: input cancelled")
	}
	return model.Value(), nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(t *testing.T, model tea.Model, text string) tea.Model {
	t.Helper()
	for _, r := range text {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return model
}

func TestSubmitReturnsTypedValue(t *testing.T) {
	var model tea.Model = NewInput("Describe the project", "a web app that...")
	model = typeText(t, model, "a todo list API")
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyCtrlD})

	input := model.(InputModel)
	if !input.Submitted() || input.Cancelled() {
		t.Fatalf("expected submitted state, got %+v", input)
	}
	if input.Value() != "a todo list API" {
		t.Fatalf("value %q", input.Value())
	}
}

func TestEmptySubmitWarnsInsteadOfQuitting(t *testing.T) {
	var model tea.Model = NewInput("Describe the project", "")
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyCtrlD})

	input := model.(InputModel)
	if input.Submitted() {
		t.Fatal("empty input must not submit")
	}
	if !strings.Contains(input.View(), "before submitting") {
		t.Fatalf("expected warning in view:\n%s", input.View())
	}
}

func TestEscapeCancels(t *testing.T) {
	var model tea.Model = NewInput("Describe the project", "")
	model = typeText(t, model, "half an idea")
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})

	input := model.(InputModel)
	if !input.Cancelled() {
		t.Fatal("expected cancelled state")
	}
}

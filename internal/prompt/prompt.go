// Package prompt supplies the natural-language system prompts stages send
// to the generation backend. Prompt text is an external collaborator: it
// lives in per-stage files the operator controls, with terse built-in
// fallbacks so a fresh workspace still runs.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves the system prompt for a stage.
type Provider interface {
	System(stage string) (string, error)
}

// FileProvider loads <dir>/<stage>.txt, falling back to built-in defaults
// when the file does not exist.
type FileProvider struct {
	dir      string
	defaults map[string]string
}

// NewFileProvider builds a provider rooted at the prompts directory.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir, defaults: builtinPrompts}
}

// System implements Provider.
func (p *FileProvider) System(stage string) (string, error) {
	if strings.TrimSpace(stage) == "" {
		return "", fmt.Errorf("prompt: stage is required")
	}
	path := filepath.Join(p.dir, stage+".txt")
	data, err := os.ReadFile(path)
	if err == nil {
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("prompt: %s is empty", path)
		}
		return text, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("prompt: read %s: %w", path, err)
	}
	if fallback, ok := p.defaults[stage]; ok {
		return fallback, nil
	}
	return "", fmt.Errorf("prompt: no prompt file or default for stage %s", stage)
}

var builtinPrompts = map[string]string{
	"business":      "You are a business analyst. Analyze the project requirements and respond with a single JSON object containing projectOverview and userStories.",
	"architecture":  "You are a software architect. Design the system for the given specifications and respond with a single JSON object containing system_overview, component_architecture, and technology_stack.",
	"developer":     "You are an expert software developer. Implement the given architecture and respond with a single JSON object containing a files array of {path, content} entries.",
	"qa":            "You are a QA engineer. Produce a test strategy for the given implementation and respond with a single JSON object containing test_plan and test_cases.",
	"audit":         "You are a code auditor. Review the implementation and tests and respond with a single JSON object containing summary and recommendations.",
	"documentation": "You are a technical writer. Document the project end to end and respond with a single JSON object containing a sections array of {title, content} entries.",
}

// Package business turns a raw project brief into structured
// specifications: the root of the canonical pipeline.
package business

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "business"

// Stage analyzes project requirements and produces specifications.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the business stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Analyze project requirements and create detailed specifications.",
		Produces:    []string{"specifications.json", "requirements.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires a non-empty user brief; business has no upstream
// dependencies.
func (s *Stage) ValidateInput(in stage.Input) error {
	if strings.TrimSpace(in.UserInput) == "" {
		return fmt.Errorf("business: a project brief is required")
	}
	return nil
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("analyzing project brief", nil)

	content, err := s.Generate(ctx, fmt.Sprintf(
		"Analyze these project requirements and create detailed specifications: %s",
		strings.TrimSpace(in.UserInput),
	))
	if err != nil {
		return stage.Output{}, err
	}
	specs, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(specs, "projectOverview", "userStories"); err != nil {
		return stage.Output{}, err
	}

	encoded, err := stage.EncodeJSON(specs)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"specifications.json": encoded,
			"requirements.md":     renderRequirements(specs),
		},
		Summary: "specifications drafted",
	}, nil
}

func renderRequirements(specs map[string]any) []byte {
	var b strings.Builder
	b.WriteString("# Project Requirements\n\n")
	if overview, ok := specs["projectOverview"].(map[string]any); ok {
		b.WriteString("## Overview\n\n")
		for _, key := range []string{"name", "description", "targetAudience", "deployment"} {
			if value, ok := overview[key].(string); ok && value != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", key, value)
			}
		}
		b.WriteString("\n")
	}
	if stories, ok := specs["userStories"].([]any); ok {
		b.WriteString("## User Stories\n\n")
		for _, raw := range stories {
			story, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			title, _ := story["title"].(string)
			description, _ := story["description"].(string)
			if title == "" {
				title = "Story"
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", title, description)
		}
	}
	return []byte(b.String())
}

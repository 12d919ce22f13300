// Package architecture designs the system from the business
// specifications.
package architecture

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "architecture"

// Stage produces the system architecture from specifications.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the architecture stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Design a complete system architecture based on the specifications.",
		DependsOn:   []string{"business"},
		Produces:    []string{"architecture.json", "architecture.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires the business specifications artifact.
func (s *Stage) ValidateInput(in stage.Input) error {
	return stage.RequireArtifacts(in, "specifications.json")
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("designing system architecture", nil)

	content, err := s.Generate(ctx, fmt.Sprintf(
		"Design a complete system architecture for these specifications: %s",
		in.Artifacts["specifications.json"],
	))
	if err != nil {
		return stage.Output{}, err
	}
	arch, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(arch, "system_overview", "component_architecture", "technology_stack"); err != nil {
		return stage.Output{}, err
	}

	encoded, err := stage.EncodeJSON(arch)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"architecture.json": encoded,
			"architecture.md":   renderArchitecture(arch),
		},
		Summary: "architecture designed",
	}, nil
}

func renderArchitecture(arch map[string]any) []byte {
	var b strings.Builder
	b.WriteString("# System Architecture\n\n")
	if overview, ok := arch["system_overview"].(string); ok {
		fmt.Fprintf(&b, "%s\n\n", overview)
	}
	if components, ok := arch["component_architecture"].([]any); ok {
		b.WriteString("## Components\n\n")
		for _, raw := range components {
			component, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := component["name"].(string)
			description, _ := component["description"].(string)
			fmt.Fprintf(&b, "- **%s**: %s\n", name, description)
		}
		b.WriteString("\n")
	}
	if stack, ok := arch["technology_stack"].(map[string]any); ok {
		b.WriteString("## Technology Stack\n\n")
		for category, raw := range stack {
			fmt.Fprintf(&b, "- **%s**: %v\n", category, raw)
		}
	}
	return []byte(b.String())
}

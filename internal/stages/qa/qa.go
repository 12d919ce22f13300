// Package qa derives a test plan and test cases from the implementation.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "qa"

// Stage produces the test plan for the generated implementation.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the qa stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Create test plans and test cases for the implementation.",
		DependsOn:   []string{"developer"},
		Produces:    []string{"test_plan.json", "test_plan.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires the implementation artifact.
func (s *Stage) ValidateInput(in stage.Input) error {
	return stage.RequireArtifacts(in, "implementation.json")
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("deriving test plan", nil)

	content, err := s.Generate(ctx, fmt.Sprintf(
		"Create a test plan with concrete test cases for this implementation: %s",
		in.Artifacts["implementation.json"],
	))
	if err != nil {
		return stage.Output{}, err
	}
	plan, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(plan, "test_plan", "test_cases"); err != nil {
		return stage.Output{}, err
	}

	encoded, err := stage.EncodeJSON(plan)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"test_plan.json": encoded,
			"test_plan.md":   renderPlan(plan),
		},
		Summary: "test plan drafted",
	}, nil
}

func renderPlan(plan map[string]any) []byte {
	var b strings.Builder
	b.WriteString("# Test Plan\n\n")
	if strategy, ok := plan["test_plan"].(string); ok {
		fmt.Fprintf(&b, "%s\n\n", strategy)
	}
	if cases, ok := plan["test_cases"].([]any); ok {
		b.WriteString("## Test Cases\n\n")
		for _, raw := range cases {
			testCase, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := testCase["name"].(string)
			description, _ := testCase["description"].(string)
			fmt.Fprintf(&b, "- **%s**: %s\n", name, description)
		}
	}
	return []byte(b.String())
}

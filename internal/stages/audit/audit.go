// Package audit reviews the implementation together with the qa plan. It
// is the first fan-in stage of the canonical pipeline: its input is the
// shallow merge of developer and qa artifacts, with qa listed later so its
// names win on conflict.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "audit"

// Stage reviews code quality against the implementation and test plan.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the audit stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Review code quality and find improvements.",
		DependsOn:   []string{"developer", "qa"},
		Produces:    []string{"audit.json", "audit.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires both fan-in artifacts.
func (s *Stage) ValidateInput(in stage.Input) error {
	return stage.RequireArtifacts(in, "implementation.json", "test_plan.json")
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("auditing implementation", nil)

	content, err := s.Generate(ctx, fmt.Sprintf(
		"Audit this implementation against its test plan. Implementation: %s Test plan: %s",
		in.Artifacts["implementation.json"],
		in.Artifacts["test_plan.json"],
	))
	if err != nil {
		return stage.Output{}, err
	}
	review, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(review, "summary", "recommendations"); err != nil {
		return stage.Output{}, err
	}

	encoded, err := stage.EncodeJSON(review)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"audit.json": encoded,
			"audit.md":   renderAudit(review),
		},
		Summary: "audit complete",
	}, nil
}

func renderAudit(review map[string]any) []byte {
	var b strings.Builder
	b.WriteString("# Code Audit\n\n")
	if summary, ok := review["summary"].(string); ok {
		fmt.Fprintf(&b, "%s\n\n", summary)
	}
	b.WriteString("## Recommendations\n\n")
	switch recs := review["recommendations"].(type) {
	case []any:
		for _, raw := range recs {
			fmt.Fprintf(&b, "- %v\n", raw)
		}
	case map[string]any:
		for priority, raw := range recs {
			fmt.Fprintf(&b, "- **%s**: %v\n", priority, raw)
		}
	}
	return []byte(b.String())
}

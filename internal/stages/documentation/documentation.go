// Package documentationstage assembles the final project documentation
// from every upstream artifact. It fans in across the whole pipeline.
//
// The package cannot be named "documentation": go/build unconditionally
// ignores files declaring that package name (a legacy convention for
// doc-only files), which excludes the whole package from the build.
package documentationstage

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "documentation"

// Stage writes the project documentation.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the documentation stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Generate complete project documentation.",
		DependsOn:   []string{"business", "architecture", "developer", "qa", "audit"},
		Produces:    []string{"documentation.json", "README.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires the principal artifact of every upstream stage.
func (s *Stage) ValidateInput(in stage.Input) error {
	return stage.RequireArtifacts(in,
		"specifications.json",
		"architecture.json",
		"implementation.json",
		"test_plan.json",
		"audit.json",
	)
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("writing project documentation", nil)

	var prompt strings.Builder
	prompt.WriteString("Generate complete project documentation from these artifacts.")
	for _, name := range []string{"specifications.json", "architecture.json", "implementation.json", "test_plan.json", "audit.json"} {
		fmt.Fprintf(&prompt, " %s: %s", name, in.Artifacts[name])
	}
	content, err := s.Generate(ctx, prompt.String())
	if err != nil {
		return stage.Output{}, err
	}
	docs, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(docs, "sections"); err != nil {
		return stage.Output{}, err
	}
	sections, ok := docs["sections"].([]any)
	if !ok || len(sections) == 0 {
		return stage.Output{}, &stage.ValidationError{
			Stage:  stageName,
			Reason: "sections must be a non-empty array of {title, content} entries",
		}
	}

	encoded, err := stage.EncodeJSON(docs)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"documentation.json": encoded,
			"README.md":          renderReadme(sections),
		},
		Summary: fmt.Sprintf("%d documentation sections written", len(sections)),
	}, nil
}

func renderReadme(sections []any) []byte {
	var b strings.Builder
	for _, raw := range sections {
		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title, _ := section["title"].(string)
		content, _ := section["content"].(string)
		if title != "" {
			fmt.Fprintf(&b, "# %s\n\n", title)
		}
		if content != "" {
			fmt.Fprintf(&b, "%s\n\n", content)
		}
	}
	return []byte(b.String())
}

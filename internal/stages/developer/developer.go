// Package developer implements the architecture as structured code files.
package developer

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/stage"
)

const stageName = "developer"

// Stage turns the architecture into an implementation manifest.
type Stage struct {
	stage.Base
}

// Register adds the stage factory to the registry.
func Register(reg *stage.Registry) {
	reg.MustRegister(stageName, func(deps stage.Deps) (stage.Stage, error) {
		return New(deps)
	})
}

// New builds the developer stage.
func New(deps stage.Deps) (*Stage, error) {
	base, err := stage.NewBase(stage.Descriptor{
		Name:        stageName,
		Description: "Write code implementations based on the architecture.",
		DependsOn:   []string{"architecture"},
		Produces:    []string{"implementation.json", "implementation.md"},
	}, deps)
	if err != nil {
		return nil, err
	}
	return &Stage{Base: base}, nil
}

// ValidateInput requires the architecture artifact.
func (s *Stage) ValidateInput(in stage.Input) error {
	return stage.RequireArtifacts(in, "architecture.json")
}

// Execute performs the single generation call and shapes the result.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := s.ValidateInput(in); err != nil {
		return stage.Output{}, err
	}
	in.Progress.Progress("implementing architecture", nil)

	content, err := s.Generate(ctx, fmt.Sprintf(
		"Implement the code for this architecture: %s",
		in.Artifacts["architecture.json"],
	))
	if err != nil {
		return stage.Output{}, err
	}
	impl, err := s.DecodeCompletion(content)
	if err != nil {
		return stage.Output{}, err
	}
	if err := s.RequireKeys(impl, "files"); err != nil {
		return stage.Output{}, err
	}
	files, ok := impl["files"].([]any)
	if !ok || len(files) == 0 {
		return stage.Output{}, &stage.ValidationError{
			Stage:  stageName,
			Reason: "files must be a non-empty array of {path, content} entries",
		}
	}

	encoded, err := stage.EncodeJSON(impl)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{
		Artifacts: artifact.Map{
			"implementation.json": encoded,
			"implementation.md":   renderManifest(files),
		},
		Summary: fmt.Sprintf("%d source files generated", len(files)),
	}, nil
}

func renderManifest(files []any) []byte {
	var b strings.Builder
	b.WriteString("# Implementation Manifest\n\n")
	for _, raw := range files {
		file, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path, _ := file["path"].(string)
		if path == "" {
			continue
		}
		fmt.Fprintf(&b, "- `%s`\n", path)
	}
	return []byte(b.String())
}

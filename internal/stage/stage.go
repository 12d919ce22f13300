// Package stage defines the contract every pipeline stage implements plus
// the shared plumbing stages build on: dependency declaration, input
// validation, the single generation call, and completion shape checks.
package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/bus"
)

// Descriptor declares a stage's identity, dependencies, and outputs.
type Descriptor struct {
	Name        string
	Description string
	DependsOn   []string
	Produces    []string
}

// Validate ensures the descriptor is well-formed.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("stage: name is required")
	}
	seen := map[string]struct{}{}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("stage: %s depends on itself", d.Name)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("stage: %s declares dependency %s twice", d.Name, dep)
		}
		seen[dep] = struct{}{}
	}
	return nil
}

// Input is what a stage executes against: the merged artifacts of its
// declared dependencies, or the raw user input for root stages.
type Input struct {
	Project   string
	UserInput string
	Artifacts artifact.Map
	// Progress lets the stage publish informational events. Never nil
	// during a scheduled run; may be nil in direct tests.
	Progress *bus.StagePublisher
}

// Output is the artifact set a stage produced. The scheduler persists
// state and artifacts; stages only return results.
type Output struct {
	Artifacts artifact.Map
	Summary   string
}

// Stage is implemented by every pipeline step.
type Stage interface {
	Descriptor() Descriptor
	ValidateInput(in Input) error
	Execute(ctx context.Context, in Input) (Output, error)
}

// ValidationError marks a malformed or incomplete completion. It is
// terminal for the stage: the backend answered, so retrying the same
// prompt would only mask upstream prompt defects.
type ValidationError struct {
	Stage   string
	Reason  string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("stage %s: invalid completion: %s (missing %s)", e.Stage, e.Reason, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("stage %s: invalid completion: %s", e.Stage, e.Reason)
}

package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/amin-amout/agentpro/internal/pipeline"
	"github.com/amin-amout/agentpro/internal/state"
)

func TestRunListsStagesInOrder(t *testing.T) {
	started := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	summary := pipeline.Summary{
		RunID:    "run-1",
		Project:  "demo",
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Order:    []string{"business", "architecture"},
		Stages: map[string]pipeline.StageResult{
			"business": {
				Stage:     "business",
				Status:    pipeline.RunCompleted,
				Duration:  1200 * time.Millisecond,
				Artifacts: []string{"specifications.json"},
			},
			"architecture": {
				Stage:     "architecture",
				Status:    pipeline.RunFailed,
				Duration:  800 * time.Millisecond,
				Err:       errors.New("backend refused"),
				ErrorKind: pipeline.ErrorKindTransport,
			},
		},
	}
	out := Run(summary)
	bizIdx := strings.Index(out, "business")
	archIdx := strings.Index(out, "architecture")
	if bizIdx < 0 || archIdx < 0 || bizIdx > archIdx {
		t.Fatalf("stages out of order in report:\n%s", out)
	}
	for _, want := range []string{"specifications.json", "backend refused", "transport", "1 completed", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestStateShowsUnrecordedStagesAsPending(t *testing.T) {
	ps := state.ProjectState{
		Project: "demo",
		Stages: map[string][]state.Record{
			"business": {{
				Status:    state.StatusCompleted,
				Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
				Artifacts: []string{"specifications.json"},
			}},
		},
	}
	out := State(ps, []string{"business", "architecture"})
	for _, want := range []string{"business", "architecture", "pending", "specifications.json"} {
		if !strings.Contains(out, want) {
			t.Fatalf("state report missing %q:\n%s", want, out)
		}
	}
}

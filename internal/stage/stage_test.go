package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/gateway"
)

type scriptedGateway struct {
	calls     int
	responses []string
	err       error
}

func (g *scriptedGateway) Complete(_ context.Context, _ gateway.Request) (gateway.Response, error) {
	g.calls++
	if g.err != nil {
		return gateway.Response{}, g.err
	}
	content := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return gateway.Response{Content: content}, nil
}

type mapPrompts map[string]string

func (m mapPrompts) System(stage string) (string, error) {
	return m[stage], nil
}

func testBase(t *testing.T, gw gateway.Gateway) Base {
	t.Helper()
	base, err := NewBase(Descriptor{Name: "business", Produces: []string{"specifications.json"}}, Deps{
		Gateway: gw,
		Prompts: mapPrompts{"business": "system"},
	})
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	return base
}

func TestDescriptorValidate(t *testing.T) {
	cases := []struct {
		descriptor Descriptor
		ok         bool
	}{
		{Descriptor{Name: "qa", DependsOn: []string{"developer"}}, true},
		{Descriptor{Name: ""}, false},
		{Descriptor{Name: "qa", DependsOn: []string{"qa"}}, false},
		{Descriptor{Name: "audit", DependsOn: []string{"qa", "qa"}}, false},
	}
	for _, tc := range cases {
		err := tc.descriptor.Validate()
		if tc.ok && err != nil {
			t.Fatalf("unexpected error for %+v: %v", tc.descriptor, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("expected error for %+v", tc.descriptor)
		}
	}
}

func TestDecodeCompletionStripsFences(t *testing.T) {
	base := testBase(t, &scriptedGateway{responses: []string{""}})
	for _, content := range []string{
		`{"projectOverview": {}, "userStories": []}`,
		"```json\n{\"projectOverview\": {}, \"userStories\": []}\n```",
		"```\n{\"projectOverview\": {}, \"userStories\": []}\n```",
	} {
		payload, err := base.DecodeCompletion(content)
		if err != nil {
			t.Fatalf("DecodeCompletion(%q): %v", content, err)
		}
		if err := base.RequireKeys(payload, "projectOverview", "userStories"); err != nil {
			t.Fatalf("RequireKeys: %v", err)
		}
	}
}

func TestDecodeCompletionRejectsNonJSON(t *testing.T) {
	base := testBase(t, &scriptedGateway{responses: []string{""}})
	_, err := base.DecodeCompletion("Sure! Here is your plan: first we...")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRequireKeysReportsMissing(t *testing.T) {
	base := testBase(t, &scriptedGateway{responses: []string{""}})
	err := base.RequireKeys(map[string]any{"summary": 1}, "summary", "recommendations")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "recommendations" {
		t.Fatalf("missing = %v", verr.Missing)
	}
}

func TestGenerateMakesOneGatewayCall(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"{}"}}
	base := testBase(t, gw)
	if _, err := base.Generate(context.Background(), "analyze this"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("expected exactly one gateway call, got %d", gw.calls)
	}
}

func TestMergeInputsLaterDependencyWins(t *testing.T) {
	merged := MergeInputs(
		[]string{"architecture", "qa"},
		map[string]artifact.Map{
			"architecture": {"notes.json": []byte(`"arch"`), "architecture.json": []byte(`{}`)},
			"qa":           {"notes.json": []byte(`"qa"`), "test_plan.json": []byte(`{}`)},
		},
	)
	if len(merged) != 3 {
		t.Fatalf("expected union of 3 names, got %v", merged.Names())
	}
	if string(merged["notes.json"]) != `"qa"` {
		t.Fatalf("conflict resolution wrong: %s", merged["notes.json"])
	}
}

func TestRegistryResolveChecksIdentity(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("business", func(deps Deps) (Stage, error) {
		return &fakeStage{name: "impostor"}, nil
	})
	_, err := registry.Resolve("business", Deps{Gateway: &scriptedGateway{}, Prompts: mapPrompts{}})
	if err == nil {
		t.Fatal("expected identity mismatch error")
	}
	if _, err := registry.Resolve("missing", Deps{}); err == nil {
		t.Fatal("expected unknown stage error")
	}
}

type fakeStage struct {
	name string
}

func (f *fakeStage) Descriptor() Descriptor { return Descriptor{Name: f.name} }
func (f *fakeStage) ValidateInput(Input) error {
	return nil
}
func (f *fakeStage) Execute(context.Context, Input) (Output, error) {
	return Output{}, nil
}

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/gateway"
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/state"
)

// fakeStage executes a scripted function. Tests assemble whole graphs
// out of these without touching the generation backend.
type fakeStage struct {
	descriptor stage.Descriptor
	execute    func(ctx context.Context, in stage.Input) (stage.Output, error)
}

func (f *fakeStage) Descriptor() stage.Descriptor       { return f.descriptor }
func (f *fakeStage) ValidateInput(in stage.Input) error { return nil }
func (f *fakeStage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	if f.execute == nil {
		return stage.Output{Artifacts: artifact.Map{f.descriptor.Name + ".json": []byte("{}")}}, nil
	}
	return f.execute(ctx, in)
}

func registerFake(t *testing.T, reg *stage.Registry, name string, dependsOn []string, execute func(ctx context.Context, in stage.Input) (stage.Output, error)) {
	t.Helper()
	reg.MustRegister(name, func(stage.Deps) (stage.Stage, error) {
		return &fakeStage{
			descriptor: stage.Descriptor{Name: name, DependsOn: dependsOn},
			execute:    execute,
		}, nil
	})
}

// diamondRegistry builds a -> {b, c} -> d.
func diamondRegistry(t *testing.T) *stage.Registry {
	t.Helper()
	reg := stage.NewRegistry()
	registerFake(t, reg, "a", nil, nil)
	registerFake(t, reg, "b", []string{"a"}, nil)
	registerFake(t, reg, "c", []string{"a"}, nil)
	registerFake(t, reg, "d", []string{"b", "c"}, nil)
	return reg
}

func TestBuildGraphOrderRespectsEdges(t *testing.T) {
	graph, err := BuildGraph(diamondRegistry(t), []string{"d", "c", "b", "a"}, stage.Deps{})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	position := map[string]int{}
	for i, name := range graph.Order() {
		position[name] = i
	}
	for _, edge := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
		if position[edge[0]] >= position[edge[1]] {
			t.Fatalf("order %v places %s after %s", graph.Order(), edge[0], edge[1])
		}
	}
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	reg := stage.NewRegistry()
	registerFake(t, reg, "x", []string{"z"}, nil)
	registerFake(t, reg, "y", []string{"x"}, nil)
	registerFake(t, reg, "z", []string{"y"}, nil)

	_, err := BuildGraph(reg, []string{"x", "y", "z"}, stage.Deps{})
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
	if len(graphErr.Stages) != 3 {
		t.Fatalf("expected all three stages in the cycle report, got %v", graphErr.Stages)
	}
}

func TestBuildGraphRejectsDanglingReference(t *testing.T) {
	reg := stage.NewRegistry()
	registerFake(t, reg, "a", nil, nil)
	registerFake(t, reg, "b", []string{"missing"}, nil)

	_, err := BuildGraph(reg, []string{"a", "b"}, stage.Deps{})
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
}

func TestBuildGraphRejectsDuplicate(t *testing.T) {
	reg := stage.NewRegistry()
	registerFake(t, reg, "a", nil, nil)

	_, err := BuildGraph(reg, []string{"a", "a"}, stage.Deps{})
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
}

func TestDescendantsIncludesRootsAndTransitives(t *testing.T) {
	graph, err := BuildGraph(diamondRegistry(t), []string{"a", "b", "c", "d"}, stage.Deps{})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	set, err := graph.Descendants("b")
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	for _, want := range []string{"b", "d"} {
		if _, ok := set[want]; !ok {
			t.Fatalf("descendants of b missing %s: %v", want, set)
		}
	}
	for _, excluded := range []string{"a", "c"} {
		if _, ok := set[excluded]; ok {
			t.Fatalf("descendants of b should not include %s", excluded)
		}
	}

	if _, err := graph.Descendants("nope"); err == nil {
		t.Fatal("expected error for unknown root")
	}
}

func TestClassifyBucketsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{&GraphError{Reason: "cycle"}, ErrorKindGraph},
		{&gateway.TransportError{Status: 503}, ErrorKindTransport},
		{&stage.ValidationError{Stage: "qa", Reason: "bad"}, ErrorKindValidation},
		{&state.Error{Op: "save", Err: errors.New("disk")}, ErrorKindState},
		{errors.New("anything else"), ErrorKindOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/bus"
	"github.com/amin-amout/agentpro/internal/gateway"
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/state"
)

// callCounter tracks how often each stage executed across runs.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: map[string]int{}}
}

func (c *callCounter) bump(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// counted wraps the default fake execution with call counting.
func counted(counter *callCounter, name string, fail error) func(ctx context.Context, in stage.Input) (stage.Output, error) {
	return func(ctx context.Context, in stage.Input) (stage.Output, error) {
		counter.bump(name)
		if fail != nil {
			return stage.Output{}, fail
		}
		return stage.Output{
			Artifacts: artifact.Map{name + ".json": []byte(`{"stage":"` + name + `"}`)},
			Summary:   name + " done",
		}, nil
	}
}

type schedulerFixture struct {
	scheduler *Scheduler
	artifacts *artifact.Store
	states    *state.Store
	counter   *callCounter
	bus       *bus.Bus
}

// newDiamondScheduler wires a -> {b, c} -> d over temp stores. failures
// maps stage names to the error their execution should return.
func newDiamondScheduler(t *testing.T, failures map[string]error) *schedulerFixture {
	t.Helper()
	counter := newCallCounter()
	reg := stage.NewRegistry()
	for _, def := range []struct {
		name string
		deps []string
	}{
		{"a", nil},
		{"b", []string{"a"}},
		{"c", []string{"a"}},
		{"d", []string{"b", "c"}},
	} {
		registerFake(t, reg, def.name, def.deps, counted(counter, def.name, failures[def.name]))
	}
	graph, err := BuildGraph(reg, []string{"a", "b", "c", "d"}, stage.Deps{})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	root := t.TempDir()
	artifacts, err := artifact.NewStore(root)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	states, err := state.NewStore(root)
	if err != nil {
		t.Fatalf("state store: %v", err)
	}
	eventBus := bus.New()
	scheduler, err := NewScheduler(graph, artifacts, states,
		WithBus(eventBus),
		WithMaxParallel(2),
		WithRunID(func() string { return "run-test" }),
	)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return &schedulerFixture{
		scheduler: scheduler,
		artifacts: artifacts,
		states:    states,
		counter:   counter,
		bus:       eventBus,
	}
}

func TestRunCompletesWholeGraph(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	summary, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo", UserInput: "a tool"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("run failed: %+v", summary.Stages)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		result := summary.Stages[name]
		if result.Status != RunCompleted {
			t.Fatalf("stage %s status %s, want completed", name, result.Status)
		}
		if fx.counter.count(name) != 1 {
			t.Fatalf("stage %s executed %d times", name, fx.counter.count(name))
		}
		content, err := fx.artifacts.Read("demo", name, name+".json")
		if err != nil {
			t.Fatalf("artifact for %s: %v", name, err)
		}
		if len(content) == 0 {
			t.Fatalf("empty artifact for %s", name)
		}
	}
	persisted, err := fx.states.Load("demo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		if persisted.StatusOf(name) != state.StatusCompleted {
			t.Fatalf("persisted status for %s is %s", name, persisted.StatusOf(name))
		}
	}
}

func TestFailureSkipsDependentsButNotSiblings(t *testing.T) {
	boom := &gateway.TransportError{Status: 503, Attempt: 3, Err: errors.New("backend down")}
	fx := newDiamondScheduler(t, map[string]error{"b": boom})

	summary, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.Stages["b"].Status; got != RunFailed {
		t.Fatalf("b status %s, want failed", got)
	}
	if got := summary.Stages["b"].ErrorKind; got != ErrorKindTransport {
		t.Fatalf("b error kind %s, want transport", got)
	}
	if got := summary.Stages["c"].Status; got != RunCompleted {
		t.Fatalf("sibling c status %s, want completed", got)
	}
	if got := summary.Stages["d"].Status; got != RunSkipped {
		t.Fatalf("d status %s, want skipped", got)
	}
	if fx.counter.count("d") != 0 {
		t.Fatal("skipped stage d must never execute")
	}

	// skipped stays pending on disk so a later run can resume it
	persisted, err := fx.states.Load("demo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted.StatusOf("b") != state.StatusFailed {
		t.Fatalf("persisted b status %s", persisted.StatusOf("b"))
	}
	if persisted.StatusOf("d") != state.StatusPending {
		t.Fatalf("persisted d status %s, want pending", persisted.StatusOf("d"))
	}
}

func TestRootFailureLeavesChainPending(t *testing.T) {
	counter := newCallCounter()
	reg := stage.NewRegistry()
	registerFake(t, reg, "business", nil, counted(counter, "business", errors.New("no answer")))
	registerFake(t, reg, "architecture", []string{"business"}, counted(counter, "architecture", nil))
	registerFake(t, reg, "developer", []string{"architecture"}, counted(counter, "developer", nil))
	graph, err := BuildGraph(reg, []string{"business", "architecture", "developer"}, stage.Deps{})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	root := t.TempDir()
	artifacts, _ := artifact.NewStore(root)
	states, _ := state.NewStore(root)
	scheduler, err := NewScheduler(graph, artifacts, states)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	summary, err := scheduler.Run(context.Background(), RunOptions{Project: "p", UserInput: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Stages["business"].Status != RunFailed {
		t.Fatalf("business status %s", summary.Stages["business"].Status)
	}
	for _, name := range []string{"architecture", "developer"} {
		if summary.Stages[name].Status != RunSkipped {
			t.Fatalf("%s status %s, want skipped", name, summary.Stages[name].Status)
		}
		if counter.count(name) != 0 {
			t.Fatalf("%s must not execute after upstream failure", name)
		}
	}
	persisted, _ := states.Load("p")
	if persisted.StatusOf("business") != state.StatusFailed {
		t.Fatalf("persisted business %s", persisted.StatusOf("business"))
	}
	for _, name := range []string{"architecture", "developer"} {
		if persisted.StatusOf(name) != state.StatusPending {
			t.Fatalf("persisted %s %s, want pending", name, persisted.StatusOf(name))
		}
	}
}

func TestSecondRunReusesCompletedStages(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	ctx := context.Background()
	if _, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		if fx.counter.count(name) != 1 {
			t.Fatalf("stage %s re-executed on resume: %d calls", name, fx.counter.count(name))
		}
		result := summary.Stages[name]
		if result.Status != RunCompleted || !result.Reused {
			t.Fatalf("stage %s not reused: %+v", name, result)
		}
	}
}

func TestForceRerunsEverything(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	ctx := context.Background()
	if _, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo", Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		if fx.counter.count(name) != 2 {
			t.Fatalf("stage %s executed %d times, want 2", name, fx.counter.count(name))
		}
	}
}

func TestTargetedRunTouchesOnlyDescendants(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	ctx := context.Background()
	if _, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo"}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	summary, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo", Targets: []string{"b"}})
	if err != nil {
		t.Fatalf("targeted run: %v", err)
	}
	if fx.counter.count("b") != 2 || fx.counter.count("d") != 2 {
		t.Fatalf("b/d should re-run: b=%d d=%d", fx.counter.count("b"), fx.counter.count("d"))
	}
	if fx.counter.count("a") != 1 || fx.counter.count("c") != 1 {
		t.Fatalf("a/c must not re-run: a=%d c=%d", fx.counter.count("a"), fx.counter.count("c"))
	}
	if _, ok := summary.Stages["a"]; ok {
		t.Fatal("untargeted stage a should not appear in the run summary")
	}
}

func TestTargetedRunRequiresCompletedExternalDeps(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	// no prior run: a and c never completed, so re-running b skips d
	summary, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo", Targets: []string{"b"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Stages["b"].Status != RunSkipped {
		t.Fatalf("b status %s, want skipped (a never completed)", summary.Stages["b"].Status)
	}
	if summary.Stages["d"].Status != RunSkipped {
		t.Fatalf("d status %s, want skipped", summary.Stages["d"].Status)
	}
}

func TestTargetedRunUnknownStageFailsFast(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	_, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo", Targets: []string{"nope"}})
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
	if fx.counter.count("a") != 0 {
		t.Fatal("no stage may execute when target validation fails")
	}
}

func TestCancelledContextLeavesStagesPending(t *testing.T) {
	fx := newDiamondScheduler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := fx.scheduler.Run(ctx, RunOptions{Project: "demo"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		if summary.Stages[name].Status != RunPending {
			t.Fatalf("stage %s status %s, want pending", name, summary.Stages[name].Status)
		}
		if fx.counter.count(name) != 0 {
			t.Fatalf("stage %s executed under cancelled context", name)
		}
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	boom := errors.New("backend refused")
	fx := newDiamondScheduler(t, map[string]error{"b": boom})

	var mu sync.Mutex
	byKind := map[bus.Kind][]string{}
	done := make(chan struct{})
	sub := fx.bus.SubscribeFunc(func(event bus.Event) {
		mu.Lock()
		byKind[event.Kind] = append(byKind[event.Kind], event.Source)
		mu.Unlock()
		if event.Kind == bus.KindRunFinished {
			close(done)
		}
	})
	defer sub.Close()

	if _, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if got := len(byKind[bus.KindStageStarted]); got != 3 {
		t.Fatalf("stage_started published %d times, want 3 (a, b, c)", got)
	}
	if got := byKind[bus.KindStageFailed]; len(got) != 1 || got[0] != "b" {
		t.Fatalf("stage_failed sources %v, want [b]", got)
	}
	if got := byKind[bus.KindStageSkipped]; len(got) != 1 || got[0] != "d" {
		t.Fatalf("stage_skipped sources %v, want [d]", got)
	}
}

func TestValidationFailureIsTerminal(t *testing.T) {
	invalid := &stage.ValidationError{Stage: "a", Reason: "completion was not JSON"}
	fx := newDiamondScheduler(t, map[string]error{"a": invalid})

	summary, err := fx.scheduler.Run(context.Background(), RunOptions{Project: "demo"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fx.counter.count("a") != 1 {
		t.Fatalf("validation failure must not retry: %d calls", fx.counter.count("a"))
	}
	if summary.Stages["a"].ErrorKind != ErrorKindValidation {
		t.Fatalf("error kind %s, want validation", summary.Stages["a"].ErrorKind)
	}
}

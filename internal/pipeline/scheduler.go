// Package pipeline turns a set of registered stages into a validated
// dependency graph and drives runs over it: ready stages dispatch
// concurrently up to a parallelism cap, failures skip transitive
// dependents without aborting independent branches, and every status
// transition is recorded durably before and after execution.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/bus"
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/state"
)

// RunStatus is the run-local outcome of a stage. It extends the persisted
// status set with skipped, which is never written to the state file: a
// skipped stage stays pending on disk so a later run can pick it up.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// StageResult is the per-stage entry in a run summary.
type StageResult struct {
	Stage      string
	Status     RunStatus
	Reused     bool
	SkipReason string
	Duration   time.Duration
	Err        error
	ErrorKind  ErrorKind
	Artifacts  []string
	Summary    string
}

// Summary is the outcome of one scheduler run.
type Summary struct {
	RunID    string
	Project  string
	Started  time.Time
	Finished time.Time
	Order    []string
	Stages   map[string]StageResult
}

// Failed reports whether any stage in the run failed.
func (s Summary) Failed() bool {
	for _, result := range s.Stages {
		if result.Status == RunFailed {
			return true
		}
	}
	return false
}

// Counts tallies results by run-local status.
func (s Summary) Counts() map[RunStatus]int {
	counts := map[RunStatus]int{}
	for _, result := range s.Stages {
		counts[result.Status]++
	}
	return counts
}

// RunOptions selects what a run covers.
type RunOptions struct {
	Project   string
	UserInput string
	// Targets names the stages to re-run. Their transitive dependents are
	// re-run too, since their inputs go stale. Empty means the full graph.
	Targets []string
	// Force re-runs stages whose persisted status is already completed.
	Force bool
}

// Scheduler executes runs over a graph. It is the only component that
// writes project state; stages return results and the scheduler persists
// them, so concurrent stage execution never races on the state file.
type Scheduler struct {
	graph       *Graph
	artifacts   *artifact.Store
	states      *state.Store
	bus         *bus.Bus
	logger      *zap.Logger
	maxParallel int
	clock       func() time.Time
	newRunID    func() string
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithBus attaches the run's event bus. Without one, events go nowhere.
func WithBus(b *bus.Bus) SchedulerOption {
	return func(s *Scheduler) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxParallel caps concurrently running stages.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithSchedulerClock overrides the run clock.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRunID overrides run identifier generation.
func WithRunID(gen func() string) SchedulerOption {
	return func(s *Scheduler) {
		if gen != nil {
			s.newRunID = gen
		}
	}
}

// NewScheduler wires a scheduler over a validated graph.
func NewScheduler(graph *Graph, artifacts *artifact.Store, states *state.Store, opts ...SchedulerOption) (*Scheduler, error) {
	if graph == nil {
		return nil, &GraphError{Reason: "graph is required"}
	}
	if artifacts == nil || states == nil {
		return nil, &GraphError{Reason: "artifact and state stores are required"}
	}
	s := &Scheduler{
		graph:     graph,
		artifacts: artifacts,
		states:    states,
		bus:       bus.New(),
		logger:    zap.NewNop(),
		// uncapped by default: the dependency graph is the only limit
		maxParallel: len(graph.Order()),
		clock:       time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// outcome carries a finished stage execution back to the dispatch loop.
type outcome struct {
	name     string
	output   stage.Output
	err      error
	duration time.Duration
}

// Run drives one pass over the graph. Stage failures are isolated: the
// failing stage is recorded as failed, its transitive dependents are
// skipped, and independent branches keep running. Run itself errors only
// on defects that invalidate the whole run, such as an unknown target or
// a state store failure.
func (s *Scheduler) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	runID := s.newRunID()
	summary := Summary{
		RunID:   runID,
		Project: opts.Project,
		Started: s.clock(),
		Order:   s.graph.Order(),
		Stages:  map[string]StageResult{},
	}

	persisted, err := s.states.Load(opts.Project)
	if err != nil {
		return summary, err
	}
	runSet, err := s.selectRunSet(opts)
	if err != nil {
		return summary, err
	}

	pending := map[string]struct{}{}
	done := map[string]RunStatus{}
	for name := range runSet {
		if s.reusable(name, opts, persisted) {
			done[name] = RunCompleted
			summary.Stages[name] = StageResult{
				Stage:     name,
				Status:    RunCompleted,
				Reused:    true,
				Artifacts: s.listArtifacts(opts.Project, name),
			}
			continue
		}
		pending[name] = struct{}{}
	}

	results := make(chan outcome)
	running := 0
	var workers errgroup.Group
	var fatal error

dispatch:
	for len(pending) > 0 || running > 0 {
		if fatal == nil && ctx.Err() == nil {
			for _, name := range summary.Order {
				if _, waiting := pending[name]; !waiting {
					continue
				}
				if running >= s.maxParallel {
					break
				}
				ready, blocked, reason := s.readiness(name, runSet, done, persisted)
				if blocked {
					delete(pending, name)
					done[name] = RunSkipped
					summary.Stages[name] = StageResult{Stage: name, Status: RunSkipped, SkipReason: reason}
					s.publishLifecycle(bus.TopicUpdate, bus.KindStageSkipped, name, map[string]any{
						"run_id": runID,
						"reason": reason,
					})
					s.logger.Info("stage skipped", zap.String("stage", name), zap.String("reason", reason))
					// restart the scan so the skip cascades in order
					continue dispatch
				}
				if !ready {
					continue
				}
				delete(pending, name)
				if err := s.record(opts.Project, name, state.Record{Status: state.StatusRunning, RunID: runID}); err != nil {
					pending[name] = struct{}{}
					fatal = err
					break
				}
				s.publishLifecycle(bus.TopicUpdate, bus.KindStageStarted, name, map[string]any{"run_id": runID})
				s.logger.Info("stage started", zap.String("stage", name), zap.String("run_id", runID))
				running++
				stageName := name
				workers.Go(func() error {
					s.execute(ctx, opts, stageName, results)
					return nil
				})
			}
		}
		if running == 0 {
			break
		}
		result := <-results
		running--
		if err := s.finish(opts, runID, result, &summary); err != nil && fatal == nil {
			fatal = err
		}
		done[result.name] = summary.Stages[result.name].Status
	}

	_ = workers.Wait()

	// stages never dispatched stay pending, both locally and on disk
	for name := range pending {
		summary.Stages[name] = StageResult{Stage: name, Status: RunPending}
	}
	summary.Finished = s.clock()

	counts := summary.Counts()
	payload := map[string]any{
		"run_id":    runID,
		"project":   opts.Project,
		"completed": counts[RunCompleted],
		"failed":    counts[RunFailed],
		"skipped":   counts[RunSkipped],
		"pending":   counts[RunPending],
	}
	s.publishLifecycle(bus.TopicUpdate, bus.KindRunFinished, "scheduler", payload)
	s.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("project", opts.Project),
		zap.Int("completed", counts[RunCompleted]),
		zap.Int("failed", counts[RunFailed]),
		zap.Int("skipped", counts[RunSkipped]))

	if fatal != nil {
		return summary, fatal
	}
	return summary, ctx.Err()
}

// selectRunSet expands targets to their transitive dependents, or returns
// the whole graph when no targets are given.
func (s *Scheduler) selectRunSet(opts RunOptions) (map[string]struct{}, error) {
	if len(opts.Targets) == 0 {
		all := map[string]struct{}{}
		for _, name := range s.graph.Order() {
			all[name] = struct{}{}
		}
		return all, nil
	}
	return s.graph.Descendants(opts.Targets...)
}

// reusable reports whether a stage's previous result satisfies this run.
// Targeted runs always re-execute their closure; full runs reuse stages
// the state file records as completed unless forced.
func (s *Scheduler) reusable(name string, opts RunOptions, persisted state.ProjectState) bool {
	if opts.Force || len(opts.Targets) > 0 {
		return false
	}
	return persisted.StatusOf(name) == state.StatusCompleted
}

// readiness decides whether a stage can dispatch now. A dependency inside
// the run set must complete during this run; one outside it must already
// be completed on disk. A failed or skipped dependency blocks the stage
// permanently for this run.
func (s *Scheduler) readiness(name string, runSet map[string]struct{}, done map[string]RunStatus, persisted state.ProjectState) (ready, blocked bool, reason string) {
	node, _ := s.graph.Node(name)
	for _, dep := range node.DependsOn {
		if _, inRun := runSet[dep]; inRun {
			switch done[dep] {
			case RunCompleted:
			case RunFailed:
				return false, true, "dependency " + dep + " failed"
			case RunSkipped:
				return false, true, "dependency " + dep + " was skipped"
			default:
				return false, false, ""
			}
			continue
		}
		if persisted.StatusOf(dep) != state.StatusCompleted {
			return false, true, "dependency " + dep + " has not completed"
		}
	}
	return true, false, ""
}

// execute runs one stage off the dispatch goroutine. Inputs are the
// shallow merge of every dependency's stored artifacts, merged in the
// stage's declared dependency order.
func (s *Scheduler) execute(ctx context.Context, opts RunOptions, name string, results chan<- outcome) {
	started := s.clock()
	node, _ := s.graph.Node(name)

	byDependency := map[string]artifact.Map{}
	for _, dep := range node.DependsOn {
		artifacts, err := s.artifacts.ReadStage(opts.Project, dep)
		if err != nil {
			results <- outcome{name: name, err: err, duration: s.clock().Sub(started)}
			return
		}
		byDependency[dep] = artifacts
	}
	in := stage.Input{
		Project:   opts.Project,
		UserInput: opts.UserInput,
		Artifacts: stage.MergeInputs(node.DependsOn, byDependency),
		Progress:  s.bus.PublisherFor(name),
	}
	output, err := node.Stage.Execute(ctx, in)
	results <- outcome{name: name, output: output, err: err, duration: s.clock().Sub(started)}
}

// finish persists a stage result and publishes its lifecycle event. Only
// the dispatch loop calls it, keeping the state file single-writer.
func (s *Scheduler) finish(opts RunOptions, runID string, result outcome, summary *Summary) error {
	if result.err != nil {
		kind := Classify(result.err)
		summary.Stages[result.name] = StageResult{
			Stage:     result.name,
			Status:    RunFailed,
			Duration:  result.duration,
			Err:       result.err,
			ErrorKind: kind,
		}
		s.publishLifecycle(bus.TopicError, bus.KindStageFailed, result.name, map[string]any{
			"run_id": runID,
			"error":  result.err.Error(),
			"kind":   string(kind),
		})
		s.logger.Warn("stage failed",
			zap.String("stage", result.name),
			zap.String("kind", string(kind)),
			zap.Error(result.err))
		return s.record(opts.Project, result.name, state.Record{
			Status: state.StatusFailed,
			RunID:  runID,
			Error:  result.err.Error(),
		})
	}

	stored, err := s.artifacts.ReplaceStage(opts.Project, result.name, result.output.Artifacts)
	if err != nil {
		summary.Stages[result.name] = StageResult{
			Stage:     result.name,
			Status:    RunFailed,
			Duration:  result.duration,
			Err:       err,
			ErrorKind: Classify(err),
		}
		s.publishLifecycle(bus.TopicError, bus.KindStageFailed, result.name, map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
		return s.record(opts.Project, result.name, state.Record{
			Status: state.StatusFailed,
			RunID:  runID,
			Error:  err.Error(),
		})
	}
	names := make([]string, 0, len(stored))
	for _, a := range stored {
		names = append(names, a.Name)
	}
	summary.Stages[result.name] = StageResult{
		Stage:     result.name,
		Status:    RunCompleted,
		Duration:  result.duration,
		Artifacts: names,
		Summary:   result.output.Summary,
	}
	s.publishLifecycle(bus.TopicUpdate, bus.KindStageCompleted, result.name, map[string]any{
		"run_id":    runID,
		"artifacts": names,
		"summary":   result.output.Summary,
	})
	s.logger.Info("stage completed",
		zap.String("stage", result.name),
		zap.Duration("duration", result.duration),
		zap.Strings("artifacts", names))
	return s.record(opts.Project, result.name, state.Record{
		Status:    state.StatusCompleted,
		RunID:     runID,
		Artifacts: names,
	})
}

func (s *Scheduler) record(project, stageName string, record state.Record) error {
	_, err := s.states.Record(project, stageName, record)
	return err
}

func (s *Scheduler) publishLifecycle(topic bus.Topic, kind bus.Kind, source string, payload map[string]any) {
	if err := s.bus.Publish(bus.Event{Topic: topic, Kind: kind, Source: source, Payload: payload}); err != nil {
		s.logger.Warn("publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Scheduler) listArtifacts(project, stageName string) []string {
	names, err := s.artifacts.List(project, stageName)
	if err != nil {
		return nil
	}
	return names
}

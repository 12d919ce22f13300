// Package state persists the durable per-stage lifecycle record for each
// project. The state file is the source of truth for resume decisions;
// artifacts on disk are only trusted when the state file says their
// producing stage completed.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Status is the persisted lifecycle phase of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one history entry for a stage. The latest record wins.
type Record struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Artifacts []string  `json:"artifacts,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ProjectState is the persisted shape: stage name to append-only history.
type ProjectState struct {
	Project string              `json:"project"`
	Stages  map[string][]Record `json:"stages"`
}

// Latest returns the authoritative record for a stage, if any.
func (ps ProjectState) Latest(stage string) (Record, bool) {
	history := ps.Stages[stage]
	if len(history) == 0 {
		return Record{}, false
	}
	return history[len(history)-1], true
}

// StatusOf returns the latest status, defaulting to pending for stages
// that have never been recorded.
func (ps ProjectState) StatusOf(stage string) Status {
	if record, ok := ps.Latest(stage); ok {
		return record.Status
	}
	return StatusPending
}

// StageNames returns the recorded stage names, sorted.
func (ps ProjectState) StageNames() []string {
	names := make([]string, 0, len(ps.Stages))
	for name := range ps.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Error wraps state store failures so callers can classify them as fatal
// to the run.
type Error struct {
	Op      string
	Project string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %s for project %s: %v", e.Op, e.Project, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store reads and writes one state.json per project directory.
type Store struct {
	root string
	now  func() time.Time
}

// Option customizes Store construction.
type Option func(*Store)

// WithClock overrides the record timestamp clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore builds a store rooted at the projects directory, sharing the
// layout of the artifact store: <root>/<project>/state.json.
func NewStore(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("state: projects root is required")
	}
	store := &Store{root: root, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Path returns the state file location for a project.
func (s *Store) Path(project string) string {
	return filepath.Join(s.root, project, "state.json")
}

// Load reconstructs the latest per-stage view for a project. A missing
// file yields an empty state; a corrupt file is a state error.
func (s *Store) Load(project string) (ProjectState, error) {
	ps := ProjectState{Project: project, Stages: map[string][]Record{}}
	data, err := os.ReadFile(s.Path(project))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ps, nil
		}
		return ProjectState{}, &Error{Op: "load", Project: project, Err: err}
	}
	if err := json.Unmarshal(data, &ps); err != nil {
		return ProjectState{}, &Error{Op: "decode", Project: project, Err: err}
	}
	if ps.Stages == nil {
		ps.Stages = map[string][]Record{}
	}
	ps.Project = project
	return ps, nil
}

// Record appends one history entry for a stage and persists the file
// atomically: the new snapshot is written to a temp file and renamed over
// the old one, so a crash mid-write never corrupts previously recorded
// stages.
func (s *Store) Record(project, stage string, record Record) (ProjectState, error) {
	if strings.TrimSpace(project) == "" || strings.TrimSpace(stage) == "" {
		return ProjectState{}, &Error{Op: "record", Project: project, Err: fmt.Errorf("project and stage are required")}
	}
	ps, err := s.Load(project)
	if err != nil {
		return ProjectState{}, err
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	ps.Stages[stage] = append(ps.Stages[stage], record)
	if err := s.save(project, ps); err != nil {
		return ProjectState{}, err
	}
	return ps, nil
}

// History returns the full record history for one stage, oldest first.
func (s *Store) History(project, stage string) ([]Record, error) {
	ps, err := s.Load(project)
	if err != nil {
		return nil, err
	}
	history := ps.Stages[stage]
	out := make([]Record, len(history))
	copy(out, history)
	return out, nil
}

func (s *Store) save(project string, ps ProjectState) error {
	path := s.Path(project)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Op: "save", Project: project, Err: err}
	}
	encoded, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return &Error{Op: "encode", Project: project, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return &Error{Op: "save", Project: project, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(encoded, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Op: "save", Project: project, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Op: "save", Project: project, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &Error{Op: "save", Project: project, Err: err}
	}
	return nil
}

package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store manages artifact IO under a projects root. Layout is one directory
// per project with one subdirectory per stage:
//
//	<root>/<project>/<stage>/<name>
//
// Artifacts are immutable within a run; re-running a stage replaces its
// directory contents wholesale.
type Store struct {
	root string
	now  func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for ProducedAt timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore builds a store rooted at the projects directory.
func NewStore(root string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact: projects root is required")
	}
	store := &Store{root: root, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Root returns the projects root directory.
func (s *Store) Root() string {
	return s.root
}

// StageDir returns the directory that holds a stage's artifacts.
func (s *Store) StageDir(project, stage string) string {
	return filepath.Join(s.root, project, stage)
}

// Write persists one artifact, creating the stage directory as needed.
func (s *Store) Write(project, stage, name string, content []byte) (Artifact, error) {
	if err := validateKey(project, stage, name); err != nil {
		return Artifact{}, err
	}
	dir := s.StageDir(project, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("artifact: ensure stage dir: %w", err)
	}
	if content == nil {
		content = []byte{}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("artifact: write %s/%s/%s: %w", project, stage, name, err)
	}
	return Artifact{Stage: stage, Name: name, Content: content, ProducedAt: s.now()}, nil
}

// WriteAll persists every artifact in the map and returns the stored set in
// name order.
func (s *Store) WriteAll(project, stage string, artifacts Map) ([]Artifact, error) {
	names := artifacts.Names()
	sort.Strings(names)
	out := make([]Artifact, 0, len(names))
	for _, name := range names {
		stored, err := s.Write(project, stage, name, artifacts[name])
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// Read loads one artifact's content.
func (s *Store) Read(project, stage, name string) ([]byte, error) {
	if err := validateKey(project, stage, name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.StageDir(project, stage), name))
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s/%s/%s: %w", project, stage, name, err)
	}
	return data, nil
}

// ReadStage loads every artifact a stage has produced. A missing stage
// directory yields an empty map, not an error, so callers can treat
// "never ran" and "produced nothing" the same way.
func (s *Store) ReadStage(project, stage string) (Map, error) {
	if err := validateKey(project, stage, "-"); err != nil {
		return nil, err
	}
	dir := s.StageDir(project, stage)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("artifact: list %s/%s: %w", project, stage, err)
	}
	out := Map{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("artifact: read %s/%s/%s: %w", project, stage, entry.Name(), err)
		}
		out[entry.Name()] = data
	}
	return out, nil
}

// ReplaceStage clears the stage directory before writing the new artifact
// set. Used when a producing stage re-runs: stale artifacts from the
// previous run must not survive alongside fresh ones.
func (s *Store) ReplaceStage(project, stage string, artifacts Map) ([]Artifact, error) {
	if err := validateKey(project, stage, "-"); err != nil {
		return nil, err
	}
	dir := s.StageDir(project, stage)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("artifact: clear %s/%s: %w", project, stage, err)
	}
	return s.WriteAll(project, stage, artifacts)
}

// List returns the artifact names a stage has produced, sorted.
func (s *Store) List(project, stage string) ([]string, error) {
	artifacts, err := s.ReadStage(project, stage)
	if err != nil {
		return nil, err
	}
	names := artifacts.Names()
	sort.Strings(names)
	return names, nil
}

func validateKey(project, stage, name string) error {
	for label, value := range map[string]string{"project": project, "stage": stage, "artifact name": name} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("artifact: %s is required", label)
		}
		if value != filepath.Base(value) || value == ".." || value == "." {
			return fmt.Errorf("artifact: %s %q must be a bare path element", label, value)
		}
	}
	return nil
}

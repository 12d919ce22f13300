package bus

import (
	"fmt"
	"strings"
	"time"
)

// Topic partitions events into the two broadcast channels the pipeline uses.
type Topic string

const (
	TopicUpdate Topic = "update"
	TopicError  Topic = "error"
)

// Kind describes what an event reports. Lifecycle kinds are reserved for
// the scheduler; stages may only publish KindProgress.
type Kind string

const (
	KindStageStarted   Kind = "stage_started"
	KindStageCompleted Kind = "stage_completed"
	KindStageFailed    Kind = "stage_failed"
	KindStageSkipped   Kind = "stage_skipped"
	KindRunFinished    Kind = "run_finished"
	KindProgress       Kind = "progress"
)

// IsLifecycle reports whether the kind describes a status transition.
func (k Kind) IsLifecycle() bool {
	return k != KindProgress
}

// Event is one transient notification. Events are not persisted past
// delivery; the state store is the durable record.
type Event struct {
	Topic   Topic
	Kind    Kind
	Source  string
	Payload map[string]any
	At      time.Time
}

// Validate enforces the minimal shape every published event must have.
func (e Event) Validate() error {
	switch e.Topic {
	case TopicUpdate, TopicError:
	default:
		return fmt.Errorf("bus: unknown topic %q", e.Topic)
	}
	if strings.TrimSpace(string(e.Kind)) == "" {
		return fmt.Errorf("bus: event kind is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("bus: event source is required")
	}
	return nil
}

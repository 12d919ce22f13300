package pipeline

import (
	"errors"
	"fmt"

	"github.com/amin-amout/agentpro/internal/gateway"
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/state"
)

// GraphError marks a dependency graph defect: a cycle, a dangling
// reference, or an unknown target. Graph errors fail before any stage
// runs and leave zero artifacts behind.
type GraphError struct {
	Reason string
	Stages []string
}

func (e *GraphError) Error() string {
	if len(e.Stages) > 0 {
		return fmt.Sprintf("pipeline: %s: %v", e.Reason, e.Stages)
	}
	return fmt.Sprintf("pipeline: %s", e.Reason)
}

// ErrorKind buckets a stage failure for reporting.
type ErrorKind string

const (
	ErrorKindGraph      ErrorKind = "graph"
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindState      ErrorKind = "state"
	ErrorKindOther      ErrorKind = "other"
)

// Classify reports which bucket of the error taxonomy an error belongs
// to. Transport errors reaching this point already exhausted their retry
// budget inside the gateway and are terminal for the stage.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return ErrorKindGraph
	}
	var transportErr *gateway.TransportError
	if errors.As(err, &transportErr) {
		return ErrorKindTransport
	}
	var validationErr *stage.ValidationError
	if errors.As(err, &validationErr) {
		return ErrorKindValidation
	}
	var stateErr *state.Error
	if errors.As(err, &stateErr) {
		return ErrorKindState
	}
	return ErrorKindOther
}

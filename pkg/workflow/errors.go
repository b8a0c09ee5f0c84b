// Package workflow implements the event-triggered workflow engine: step
// execution, retry with dead-letter capture, graph walking, and dispatch.
package workflow

import (
	"errors"

	"github.com/classflow/classflow/pkg/entities"
)

// Terminal step errors. These are never retried regardless of the step's
// retry configuration.
var (
	ErrInsufficientPermissions = errors.New("insufficient_permissions")
	ErrUnsupportedStepType     = errors.New("unsupported step type")
)

// Graph-integrity errors always fail the run immediately.
var (
	ErrLoopDetected     = errors.New("loop_detected")
	ErrMaxStepsExceeded = errors.New("max_steps_exceeded")
	ErrMissingStep      = errors.New("missing_step")
)

// IsTerminalStepError reports whether a step failure must not be retried.
func IsTerminalStepError(err error) bool {
	return errors.Is(err, ErrInsufficientPermissions) ||
		errors.Is(err, ErrUnsupportedStepType) ||
		errors.Is(err, entities.ErrMissingPrimaryKey)
}

// Package persistence provides standardized error types for persistence
// operations.
package persistence

import "errors"

var (
	// ErrWorkflowNotFound indicates a workflow definition was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrVersionNotFound indicates no immutable snapshot exists for the
	// requested (workflow, version) pair.
	ErrVersionNotFound = errors.New("workflow version not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyExists indicates a run already exists for the same
	// (workflow_id, idempotency_key) pair. Callers must treat this as
	// "already processed, skip", not as a failure.
	ErrRunAlreadyExists = errors.New("run already exists for idempotency key")

	// ErrActorNotFound indicates the acting identity is unknown.
	ErrActorNotFound = errors.New("actor not found")

	// ErrEventNotFound indicates an event was not found by the given identifier.
	ErrEventNotFound = errors.New("event not found")

	// ErrTableNotAllowed indicates an entity write targeted a table outside
	// the entity registry's whitelist.
	ErrTableNotAllowed = errors.New("table not allowed for entity writes")
)

// IsRunAlreadyExists checks if an error indicates an idempotency-key conflict.
func IsRunAlreadyExists(err error) bool {
	return errors.Is(err, ErrRunAlreadyExists)
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsActorNotFound checks if an error indicates a missing actor.
func IsActorNotFound(err error) bool {
	return errors.Is(err, ErrActorNotFound)
}

// Package persistence provides the data storage abstraction layer for
// workflow definitions, runs, dead letters, and the tables backing entity
// registry writes.
package persistence

import (
	"context"

	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/models"
)

// Persistence is the storage surface the engine consumes. Implementations
// own all concurrency control (row locking, unique constraints); the engine
// holds no locks of its own.
type Persistence interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	DeadLetters() DeadLetterRepository
	Events() EventRepository
	Actors() ActorRepository

	// EntityStore backs entity registry writes. Implementations must
	// reject tables outside the registry's whitelist.
	EntityStore() entities.Store

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads workflow definitions and their immutable version
// snapshots. The engine only reads definitions; authoring happens elsewhere.
type WorkflowRepository interface {
	PublishedByEvent(ctx context.Context, eventName string) ([]*models.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	VersionSnapshot(ctx context.Context, workflowID string, version int) (*models.WorkflowDefinitionVersion, error)

	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	SaveVersionSnapshot(ctx context.Context, snapshot *models.WorkflowDefinitionVersion) error
}

// RunRepository creates and finalizes workflow runs and their step logs.
type RunRepository interface {
	// Create inserts a run. When the run carries an idempotency key and a
	// run already exists for (workflow_id, idempotency_key), it returns
	// ErrRunAlreadyExists; the unique constraint is the canonical
	// "already processed" signal under concurrent redelivery.
	Create(ctx context.Context, run *models.WorkflowRun) error

	FindByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.WorkflowRun, error)
	Finalize(ctx context.Context, runID string, status models.RunStatus, output map[string]any) error
	GetByID(ctx context.Context, runID string) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)

	CreateStep(ctx context.Context, step *models.RunStep) error
	StepsByRun(ctx context.Context, runID string) ([]*models.RunStep, error)
}

// DeadLetterRepository appends dead-letter records. Rows are write-once.
type DeadLetterRepository interface {
	Create(ctx context.Context, deadLetter *models.DeadLetter) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.DeadLetter, error)
}

// EventRepository records inbound application events.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

// ActorRepository resolves an actor's role and tenant scope.
type ActorRepository interface {
	GetByID(ctx context.Context, id string) (*models.Actor, error)
}

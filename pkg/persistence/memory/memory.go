// Package memory provides an in-memory persistence implementation for tests
// and local development. It enforces the same idempotency-key uniqueness the
// PostgreSQL implementation enforces with a unique index.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

type Persistence struct {
	mu sync.Mutex

	workflows map[string]*models.WorkflowDefinition
	versions  map[string]*models.WorkflowDefinitionVersion
	runs      map[string]*models.WorkflowRun
	runKeys   map[string]string // "workflowID|idempotencyKey" -> runID
	runSteps  map[string][]*models.RunStep
	letters   []*models.DeadLetter
	events    map[string]*models.Event
	actors    map[string]*models.Actor

	entityRows map[string][]map[string]any // table -> rows
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.WorkflowDefinition),
		versions:   make(map[string]*models.WorkflowDefinitionVersion),
		runs:       make(map[string]*models.WorkflowRun),
		runKeys:    make(map[string]string),
		runSteps:   make(map[string][]*models.RunStep),
		events:     make(map[string]*models.Event),
		actors:     make(map[string]*models.Actor),
		entityRows: make(map[string][]map[string]any),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return (*workflowRepo)(p) }
func (p *Persistence) Runs() persistence.RunRepository             { return (*runRepo)(p) }
func (p *Persistence) DeadLetters() persistence.DeadLetterRepository { return (*deadLetterRepo)(p) }
func (p *Persistence) Events() persistence.EventRepository         { return (*eventRepo)(p) }
func (p *Persistence) Actors() persistence.ActorRepository         { return (*actorRepo)(p) }
func (p *Persistence) EntityStore() entities.Store                 { return (*entityStore)(p) }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

// SeedActor registers an actor for lookups.
func (p *Persistence) SeedActor(actor *models.Actor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actors[actor.ID] = actor
}

// EntityRows returns the rows written to a table, for test inspection.
func (p *Persistence) EntityRows(table string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]map[string]any(nil), p.entityRows[table]...)
}

type workflowRepo Persistence

func (r *workflowRepo) PublishedByEvent(_ context.Context, eventName string) ([]*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := make([]*models.WorkflowDefinition, 0)

	for _, workflow := range r.workflows {
		if workflow.Status != models.WorkflowStatusPublished {
			continue
		}

		if workflow.Trigger.Type == "event" && workflow.Trigger.EventName == eventName {
			matches = append(matches, workflow)
		}
	}

	return matches, nil
}

func (r *workflowRepo) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *workflowRepo) VersionSnapshot(_ context.Context, workflowID string, version int) (*models.WorkflowDefinitionVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, ok := r.versions[versionKey(workflowID, version)]
	if !ok {
		return nil, persistence.ErrVersionNotFound
	}

	return snapshot, nil
}

func (r *workflowRepo) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	r.workflows[workflow.ID] = workflow

	return nil
}

func (r *workflowRepo) SaveVersionSnapshot(_ context.Context, snapshot *models.WorkflowDefinitionVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions[versionKey(snapshot.WorkflowID, snapshot.Version)] = snapshot

	return nil
}

func versionKey(workflowID string, version int) string {
	return fmt.Sprintf("%s|%d", workflowID, version)
}

type runRepo Persistence

func (r *runRepo) Create(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if run.IdempotencyKey != nil {
		key := run.WorkflowID + "|" + *run.IdempotencyKey
		if _, exists := r.runKeys[key]; exists {
			return persistence.ErrRunAlreadyExists
		}

		r.runKeys[key] = run.ID
	}

	r.runs[run.ID] = run

	return nil
}

func (r *runRepo) FindByIdempotencyKey(_ context.Context, workflowID, key string) (*models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID, ok := r.runKeys[workflowID+"|"+key]
	if !ok {
		return nil, nil
	}

	return r.runs[runID], nil
}

func (r *runRepo) Finalize(_ context.Context, runID string, status models.RunStatus, output map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return persistence.ErrRunNotFound
	}

	now := time.Now().UTC()
	run.Status = status
	run.Output = output
	run.FinishedAt = &now

	return nil
}

func (r *runRepo) GetByID(_ context.Context, runID string) (*models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return run, nil
}

func (r *runRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := make([]*models.WorkflowRun, 0)

	for _, run := range r.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func (r *runRepo) CreateStep(_ context.Context, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if step.ID == "" {
		step.ID = uuid.NewString()
	}

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	r.runSteps[step.RunID] = append(r.runSteps[step.RunID], step)

	return nil
}

func (r *runRepo) StepsByRun(_ context.Context, runID string) ([]*models.RunStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*models.RunStep(nil), r.runSteps[runID]...), nil
}

type deadLetterRepo Persistence

func (r *deadLetterRepo) Create(_ context.Context, deadLetter *models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deadLetter.ID == "" {
		deadLetter.ID = uuid.NewString()
	}

	if deadLetter.CreatedAt.IsZero() {
		deadLetter.CreatedAt = time.Now().UTC()
	}

	r.letters = append(r.letters, deadLetter)

	return nil
}

func (r *deadLetterRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	letters := make([]*models.DeadLetter, 0)

	for _, letter := range r.letters {
		if letter.WorkflowID == workflowID {
			letters = append(letters, letter)
		}
	}

	return letters, nil
}

type eventRepo Persistence

func (r *eventRepo) Create(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	r.events[event.ID] = event

	return nil
}

func (r *eventRepo) GetByID(_ context.Context, id string) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return nil, persistence.ErrEventNotFound
	}

	return event, nil
}

type actorRepo Persistence

func (r *actorRepo) GetByID(_ context.Context, id string) (*models.Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	actor, ok := r.actors[id]
	if !ok {
		return nil, persistence.ErrActorNotFound
	}

	return actor, nil
}

type entityStore Persistence

func (s *entityStore) CreateEntityRow(_ context.Context, table string, fields map[string]any) (string, error) {
	if !entities.Tables()[table] {
		return "", fmt.Errorf("%w: %s", persistence.ErrTableNotAllowed, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()

	row := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		row[key] = value
	}

	row["id"] = id
	s.entityRows[table] = append(s.entityRows[table], row)

	return id, nil
}

func (s *entityStore) UpdateEntityRowByID(_ context.Context, table, id string, fields map[string]any) error {
	if !entities.Tables()[table] {
		return fmt.Errorf("%w: %s", persistence.ErrTableNotAllowed, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.entityRows[table] {
		if row["id"] == id {
			for key, value := range fields {
				row[key] = value
			}

			return nil
		}
	}

	return fmt.Errorf("row %s not found in %s", id, table)
}

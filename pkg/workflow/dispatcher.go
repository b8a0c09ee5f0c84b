package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/classflow/classflow/pkg/eventbus"
	"github.com/classflow/classflow/pkg/events"
	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/otelhelper"
	"github.com/classflow/classflow/pkg/permissions"
	"github.com/classflow/classflow/pkg/persistence"
)

// privilegedMetadataActions maps event metadata flags to the action an
// actor must hold to set them. Events carrying a flag without the action
// are rejected before any workflow matching happens.
var privilegedMetadataActions = map[string]string{
	"replayed":  permissions.ActionReplay,
	"simulated": permissions.ActionSimulate,
}

// Dispatcher matches inbound events against published workflow definitions
// and executes each match to completion, sequentially.
type Dispatcher struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	walker      *Walker
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewDispatcher(p persistence.Persistence, eventBus eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	executor := NewExecutor(p.EntityStore(), logger)
	retrier := NewRetrier(executor, p.DeadLetters(), logger)
	walker := NewWalker(retrier, p.Runs(), logger)

	return &Dispatcher{
		persistence: p,
		eventBus:    eventBus,
		walker:      walker,
		logger:      logger.With("module", "dispatcher"),
		tracer:      otelhelper.NewTracer("classflow-dispatcher"),
	}
}

// Walker exposes the dispatcher's walker chain, mainly so tests can swap
// the retrier's sleep function.
func (d *Dispatcher) Walker() *Walker {
	return d.walker
}

// RunOutcome summarizes what happened to one matched workflow.
type RunOutcome struct {
	WorkflowID string           `json:"workflow_id"`
	RunID      string           `json:"run_id,omitempty"`
	Status     models.RunStatus `json:"status,omitempty"`
	Deduped    bool             `json:"deduped,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// DispatchSummary reports the outcome of dispatching one event.
type DispatchSummary struct {
	EventID string       `json:"event_id"`
	Matched int          `json:"matched"`
	Runs    []RunOutcome `json:"runs"`
}

// Dispatch finds and executes every published workflow matching the event.
// Matches run sequentially; a failure in one workflow never prevents the
// others from running. Only infrastructure failures (persistence
// unreachable, unknown actor) return an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) (*DispatchSummary, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventNameKey, event.Name))
	defer span.End()

	if !models.ValidEventName(event.Name) {
		return nil, fmt.Errorf("invalid event name: %q", event.Name)
	}

	actor, err := d.persistence.Actors().GetByID(ctx, event.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor %s: %w", event.ActorID, err)
	}

	err = d.checkPrivilegedMetadata(event, actor)
	if err != nil {
		return nil, err
	}

	matches, err := d.findMatches(ctx, event, actor)
	if err != nil {
		return nil, err
	}

	summary := &DispatchSummary{
		EventID: event.ID,
		Matched: len(matches),
		Runs:    make([]RunOutcome, 0, len(matches)),
	}

	d.publish(ctx, event.ID, events.WorkflowDispatched{
		BaseEvent: d.baseEvent(events.WorkflowDispatchedEvent, ""),
		EventID:   event.ID,
		EventName: event.Name,
		Matches:   len(matches),
	})

	for _, workflow := range matches {
		outcome := d.dispatchOne(ctx, workflow, event, actor)
		summary.Runs = append(summary.Runs, outcome)
	}

	return summary, nil
}

// checkPrivilegedMetadata rejects events whose metadata carries privileged
// flags the actor's role does not grant.
func (d *Dispatcher) checkPrivilegedMetadata(event *models.Event, actor *models.Actor) error {
	for flag, action := range privilegedMetadataActions {
		value, present := event.Metadata[flag]
		if !present || value == false {
			continue
		}

		if !permissions.RoleCan(actor.Role, action) {
			return fmt.Errorf("metadata flag %q requires action %q, denied for role %q",
				flag, action, actor.Role)
		}
	}

	return nil
}

// findMatches returns published definitions triggered by the event whose
// tenant scope is unset (global) or matches the actor's scope.
func (d *Dispatcher) findMatches(ctx context.Context, event *models.Event, actor *models.Actor) ([]*models.WorkflowDefinition, error) {
	candidates, err := d.persistence.Workflows().PublishedByEvent(ctx, event.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflows for event %s: %w", event.Name, err)
	}

	matches := make([]*models.WorkflowDefinition, 0, len(candidates))

	for _, workflow := range candidates {
		if matchesScope(workflow, actor) {
			matches = append(matches, workflow)
		}
	}

	return matches, nil
}

func matchesScope(workflow *models.WorkflowDefinition, actor *models.Actor) bool {
	if workflow.DistrictID != nil {
		if actor.DistrictID == nil || *actor.DistrictID != *workflow.DistrictID {
			return false
		}
	}

	if workflow.SchoolID != nil {
		if actor.SchoolID == nil || *actor.SchoolID != *workflow.SchoolID {
			return false
		}
	}

	return true
}

// dispatchOne executes a single matched workflow: effective-version
// resolution, idempotency check, run creation, walk, finalization.
func (d *Dispatcher) dispatchOne(
	ctx context.Context,
	workflow *models.WorkflowDefinition,
	event *models.Event,
	actor *models.Actor,
) RunOutcome {
	logger := d.logger.With("workflow_id", workflow.ID, "event_id", event.ID)
	outcome := RunOutcome{WorkflowID: workflow.ID}

	def, version, err := d.effectiveDefinition(ctx, workflow)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve effective definition", "error", err)
		outcome.Error = err.Error()

		return outcome
	}

	var idempotencyKey *string

	if event.ID != "" {
		key := models.RunIdempotencyKey(event.ID, workflow.ID, version)
		idempotencyKey = &key

		existing, err := d.persistence.Runs().FindByIdempotencyKey(ctx, workflow.ID, key)
		if err != nil {
			logger.ErrorContext(ctx, "Idempotency lookup failed", "error", err)
			outcome.Error = err.Error()

			return outcome
		}

		if existing != nil {
			return d.deduped(ctx, workflow, key, existing.ID, &outcome)
		}
	}

	run := d.newRun(workflow, version, event, actor, idempotencyKey)

	err = d.persistence.Runs().Create(ctx, run)
	if err != nil {
		// The unique constraint is the canonical already-processed
		// signal; the pre-check only narrows the race window.
		if persistence.IsRunAlreadyExists(err) && idempotencyKey != nil {
			return d.deduped(ctx, workflow, *idempotencyKey, "", &outcome)
		}

		logger.ErrorContext(ctx, "Failed to create run", "error", err)
		outcome.Error = err.Error()

		return outcome
	}

	outcome.RunID = run.ID

	d.publish(ctx, run.ID, events.RunStarted{
		BaseEvent: d.baseEvent(events.RunStartedEvent, workflow.ID),
		RunID:     run.ID,
		Version:   version,
		EventID:   event.ID,
	})

	logger = logger.With("run_id", run.ID, "version", version)
	logger.InfoContext(ctx, "Starting workflow run")

	walkResult := d.executeRun(ctx, run, def, event, actor)

	outcome.Status = d.finalizeRun(ctx, logger, run, workflow, walkResult)
	if walkResult.Failed {
		outcome.Error = walkResult.Error
	}

	return outcome
}

// effectiveDefinition resolves the immutable snapshot the run must execute.
// The mutable draft is used only when it is itself the effective version.
func (d *Dispatcher) effectiveDefinition(ctx context.Context, workflow *models.WorkflowDefinition) (*models.Definition, int, error) {
	version := workflow.EffectiveVersion()

	if version == workflow.Version {
		def := workflow.Definition

		return &def, version, nil
	}

	snapshot, err := d.persistence.Workflows().VersionSnapshot(ctx, workflow.ID, version)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch version %d of workflow %s: %w",
			version, workflow.ID, err)
	}

	def := snapshot.Definition

	return &def, version, nil
}

func (d *Dispatcher) newRun(
	workflow *models.WorkflowDefinition,
	version int,
	event *models.Event,
	actor *models.Actor,
	idempotencyKey *string,
) *models.WorkflowRun {
	// Run scope prefers the workflow's own tenancy; a global workflow
	// inherits the acting user's scope.
	districtID := workflow.DistrictID
	if districtID == nil {
		districtID = actor.DistrictID
	}

	schoolID := workflow.SchoolID
	if schoolID == nil {
		schoolID = actor.SchoolID
	}

	var eventID *string
	if event.ID != "" {
		id := event.ID
		eventID = &id
	}

	return &models.WorkflowRun{
		ID:             fmt.Sprintf("run-%s", uuid.New().String()[:8]),
		WorkflowID:     workflow.ID,
		Version:        version,
		DistrictID:     districtID,
		SchoolID:       schoolID,
		ActorID:        actor.ID,
		EventID:        eventID,
		IdempotencyKey: idempotencyKey,
		Status:         models.RunStatusRunning,
		Input:          buildRunContext(event, actor, districtID, schoolID),
		StartedAt:      time.Now().UTC(),
	}
}

func (d *Dispatcher) executeRun(
	ctx context.Context,
	run *models.WorkflowRun,
	def *models.Definition,
	event *models.Event,
	actor *models.Actor,
) *WalkResult {
	err := ValidateDefinition(def)
	if err != nil {
		return &WalkResult{
			Executed: []ExecutedStep{},
			Failed:   true,
			Error:    fmt.Sprintf("invalid_definition: %v", err),
		}
	}

	data := buildRunContext(event, actor, run.DistrictID, run.SchoolID)

	return d.walker.Walk(ctx, run, def, actor, data)
}

// buildRunContext assembles the template-resolution context a run executes
// against.
func buildRunContext(event *models.Event, actor *models.Actor, districtID, schoolID *string) map[string]any {
	tenant := map[string]any{}
	if districtID != nil {
		tenant["district_id"] = *districtID
	}

	if schoolID != nil {
		tenant["school_id"] = *schoolID
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return map[string]any{
		"event": map[string]any{
			"id":          event.ID,
			"name":        event.Name,
			"entity_type": event.EntityType,
			"entity_id":   event.EntityID,
		},
		"event_metadata": metadata,
		"actor": map[string]any{
			"id":   actor.ID,
			"role": actor.Role,
		},
		"tenant": tenant,
		"steps":  map[string]any{},
	}
}

func (d *Dispatcher) finalizeRun(
	ctx context.Context,
	logger *slog.Logger,
	run *models.WorkflowRun,
	workflow *models.WorkflowDefinition,
	walkResult *WalkResult,
) models.RunStatus {
	status := models.RunStatusSucceeded
	if walkResult.Failed {
		status = models.RunStatusFailed
	}

	executed := make([]any, 0, len(walkResult.Executed))
	for _, step := range walkResult.Executed {
		executed = append(executed, map[string]any{
			"step_id":  step.StepID,
			"status":   string(step.Status),
			"output":   step.Output,
			"attempts": step.Attempts,
		})
	}

	output := map[string]any{
		"steps_executed": len(walkResult.Executed),
		"executed":       executed,
	}
	if walkResult.Failed {
		output["error"] = walkResult.Error
	}

	err := d.persistence.Runs().Finalize(ctx, run.ID, status, output)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to finalize run", "error", err)
	}

	duration := time.Since(run.StartedAt)

	if walkResult.Failed {
		logger.WarnContext(ctx, "Workflow run failed",
			"error", walkResult.Error, "steps_executed", len(walkResult.Executed))

		d.publish(ctx, run.ID, events.RunFailed{
			BaseEvent:     d.baseEvent(events.RunFailedEvent, workflow.ID),
			RunID:         run.ID,
			Error:         walkResult.Error,
			StepsExecuted: len(walkResult.Executed),
			Duration:      duration,
		})

		if last := lastFailedStep(walkResult); last != nil {
			d.publish(ctx, run.ID, events.StepFailed{
				BaseEvent: d.baseEvent(events.StepFailedEvent, workflow.ID),
				RunID:     run.ID,
				StepKey:   last.StepID,
				Status:    last.Status,
				Error:     walkResult.Error,
				Attempts:  last.Attempts,
			})
		}

		return status
	}

	logger.InfoContext(ctx, "Workflow run succeeded",
		"steps_executed", len(walkResult.Executed), "duration", duration)

	d.publish(ctx, run.ID, events.RunSucceeded{
		BaseEvent:     d.baseEvent(events.RunSucceededEvent, workflow.ID),
		RunID:         run.ID,
		StepsExecuted: len(walkResult.Executed),
		Duration:      duration,
	})

	return status
}

func lastFailedStep(walkResult *WalkResult) *ExecutedStep {
	for i := len(walkResult.Executed) - 1; i >= 0; i-- {
		step := walkResult.Executed[i]
		if step.Status == models.RunStepFailed || step.Status == models.RunStepSkipped {
			return &step
		}
	}

	return nil
}

func (d *Dispatcher) deduped(
	ctx context.Context,
	workflow *models.WorkflowDefinition,
	key, existingRunID string,
	outcome *RunOutcome,
) RunOutcome {
	d.logger.InfoContext(ctx, "Run deduplicated",
		"workflow_id", workflow.ID, "idempotency_key", key)

	d.publish(ctx, key, events.RunDeduped{
		BaseEvent:      d.baseEvent(events.RunDedupedEvent, workflow.ID),
		IdempotencyKey: key,
		ExistingRunID:  existingRunID,
	})

	outcome.Deduped = true

	return *outcome
}

func (d *Dispatcher) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// publish is best-effort: the audit stream never affects run outcomes.
func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.eventBus == nil {
		return
	}

	err := d.eventBus.Publish(ctx, key, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish audit event",
			"event_type", event.GetType(), "error", err)
	}
}

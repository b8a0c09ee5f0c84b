package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/classflow/classflow/pkg/condition"
	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/permissions"
	"github.com/classflow/classflow/pkg/template"
)

// Executor executes a single workflow step. It is a state machine per step,
// not per run: the Walker owns run-level state.
type Executor struct {
	store  entities.Store
	logger *slog.Logger
}

func NewExecutor(store entities.Store, logger *slog.Logger) *Executor {
	return &Executor{
		store:  store,
		logger: logger.With("module", "step_executor"),
	}
}

// StepResult is the outcome of one step execution attempt.
type StepResult struct {
	Status models.RunStepStatus
	Output map[string]any
	Next   string // successor step ID, "" terminates the walk
}

// ExecuteStep runs one step against the run context. Failures are returned
// as a non-nil error alongside a result describing them; the error is only
// terminal (non-retryable) when IsTerminalStepError reports so.
func (e *Executor) ExecuteStep(
	ctx context.Context,
	def *models.Definition,
	step *models.Step,
	actor *models.Actor,
	scope entities.Scope,
	data map[string]any,
) (*StepResult, error) {
	if result, err := e.checkPermission(step, actor); err != nil {
		return result, err
	}

	switch step.Type {
	case models.StepTypeCondition:
		return e.executeCondition(def, step, data), nil
	case models.StepTypeNoop:
		return &StepResult{
			Status: models.RunStepSucceeded,
			Output: map[string]any{"ok": true},
			Next:   e.successor(def, step),
		}, nil
	case models.StepTypeNotify:
		return e.executeNotify(ctx, def, step, actor, scope, data)
	case models.StepTypeCreateEntity:
		return e.executeCreateEntity(ctx, def, step, scope, data)
	case models.StepTypeUpdateEntity:
		return e.executeUpdateEntity(ctx, def, step, scope, data)
	default:
		err := fmt.Errorf("%w: %s", ErrUnsupportedStepType, step.Type)

		return &StepResult{
			Status: models.RunStepFailed,
			Output: map[string]any{"error": err.Error()},
		}, err
	}
}

// checkPermission applies the required_action gate. Conditions and noops are
// exempt: they mutate nothing.
func (e *Executor) checkPermission(step *models.Step, actor *models.Actor) (*StepResult, error) {
	if step.Type == models.StepTypeCondition || step.Type == models.StepTypeNoop {
		return nil, nil
	}

	requiredAction, _ := step.Config["required_action"].(string)
	if requiredAction == "" {
		return nil, nil
	}

	if permissions.RoleCan(actor.Role, requiredAction) {
		return nil, nil
	}

	return &StepResult{
		Status: models.RunStepSkipped,
		Output: map[string]any{
			"error":           ErrInsufficientPermissions.Error(),
			"required_action": requiredAction,
			"actor_role":      actor.Role,
		},
	}, ErrInsufficientPermissions
}

func (e *Executor) executeCondition(def *models.Definition, step *models.Step, data map[string]any) *StepResult {
	left := template.Resolve(step.Config["left"], data)
	right := template.Resolve(step.Config["right"], data)
	op, _ := step.Config["op"].(string)

	result := condition.Evaluate(left, op, right)

	next := e.successor(def, step)

	if result && step.OnTrue != nil {
		next = *step.OnTrue
	}

	if !result && step.OnFalse != nil {
		next = *step.OnFalse
	}

	return &StepResult{
		Status: models.RunStepSucceeded,
		Output: map[string]any{
			"result": result,
			"left":   left,
			"op":     op,
			"right":  right,
		},
		Next: next,
	}
}

func (e *Executor) executeNotify(
	ctx context.Context,
	def *models.Definition,
	step *models.Step,
	actor *models.Actor,
	scope entities.Scope,
	data map[string]any,
) (*StepResult, error) {
	fields := map[string]any{
		"user_id":     step.Config["user_id"],
		"type":        step.Config["type"],
		"severity":    step.Config["severity"],
		"title":       step.Config["title"],
		"body":        step.Config["body"],
		"entity_type": step.Config["entity_type"],
		"entity_id":   step.Config["entity_id"],
		"metadata":    step.Config["metadata"],
	}

	resolved, _ := template.Resolve(fields, data).(map[string]any)

	if resolved["user_id"] == nil || resolved["user_id"] == "" {
		resolved["user_id"] = actor.ID
	}

	id, err := entities.Create(ctx, e.store, "notifications", resolved, scope)
	if err != nil {
		return &StepResult{
			Status: models.RunStepFailed,
			Output: map[string]any{"error": err.Error()},
		}, err
	}

	return &StepResult{
		Status: models.RunStepSucceeded,
		Output: map[string]any{"notification_id": id},
		Next:   e.successor(def, step),
	}, nil
}

func (e *Executor) executeCreateEntity(
	ctx context.Context,
	def *models.Definition,
	step *models.Step,
	scope entities.Scope,
	data map[string]any,
) (*StepResult, error) {
	entity, _ := step.Config["entity"].(string)
	rawFields, _ := step.Config["fields"].(map[string]any)

	fields, _ := template.Resolve(rawFields, data).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}

	id, err := entities.Create(ctx, e.store, entity, fields, scope)
	if err != nil {
		return &StepResult{
			Status: models.RunStepFailed,
			Output: map[string]any{"error": err.Error(), "entity": entity},
		}, err
	}

	return &StepResult{
		Status: models.RunStepSucceeded,
		Output: map[string]any{"id": id, "entity": entity},
		Next:   e.successor(def, step),
	}, nil
}

func (e *Executor) executeUpdateEntity(
	ctx context.Context,
	def *models.Definition,
	step *models.Step,
	scope entities.Scope,
	data map[string]any,
) (*StepResult, error) {
	entity, _ := step.Config["entity"].(string)
	rawPK, _ := step.Config["pk"].(map[string]any)
	rawSet, _ := step.Config["set"].(map[string]any)

	pk, _ := template.Resolve(rawPK, data).(map[string]any)
	if pk == nil {
		pk = map[string]any{}
	}

	set, _ := template.Resolve(rawSet, data).(map[string]any)
	if set == nil {
		set = map[string]any{}
	}

	err := entities.UpdateByPK(ctx, e.store, entity, pk, set, scope)
	if err != nil {
		return &StepResult{
			Status: models.RunStepFailed,
			Output: map[string]any{"error": err.Error(), "entity": entity},
		}, err
	}

	return &StepResult{
		Status: models.RunStepSucceeded,
		Output: map[string]any{"updated": true, "entity": entity, "id": pk["id"]},
		Next:   e.successor(def, step),
	}, nil
}

// successor resolves a step's explicit `next` edge, falling back to the next
// element in the definition's step list.
func (e *Executor) successor(def *models.Definition, step *models.Step) string {
	if step.Next != nil {
		return *step.Next
	}

	return def.DefaultSuccessor(step.ID)
}

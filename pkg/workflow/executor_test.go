package workflow

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string { return &s }

func districtScope(district string) entities.Scope {
	return entities.Scope{DistrictID: strPtr(district)}
}

func TestExecutor_ExecuteStep_Noop(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{ID: "a", Type: models.StepTypeNoop},
		{ID: "b", Type: models.StepTypeNoop},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "teacher"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, models.RunStepSucceeded, result.Status)
	// No explicit edge: successor falls back to array order.
	assert.Equal(t, "b", result.Next)
}

func TestExecutor_ExecuteStep_ConditionRouting(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "check",
			Type: models.StepTypeCondition,
			Config: map[string]any{
				"left":  "{{event_metadata.consecutive}}",
				"op":    "gte",
				"right": 3,
			},
			OnTrue:  strPtr("escalate"),
			OnFalse: strPtr("log-only"),
		},
		{ID: "escalate", Type: models.StepTypeNoop},
		{ID: "log-only", Type: models.StepTypeNoop},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "teacher"}

	data := map[string]any{"event_metadata": map[string]any{"consecutive": float64(4)}}
	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, data)

	require.NoError(t, err)
	assert.Equal(t, "escalate", result.Next)
	assert.Equal(t, true, result.Output["result"])
	assert.Equal(t, float64(4), result.Output["left"])

	data = map[string]any{"event_metadata": map[string]any{"consecutive": float64(1)}}
	result, err = executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, data)

	require.NoError(t, err)
	assert.Equal(t, "log-only", result.Next)
	assert.Equal(t, false, result.Output["result"])
}

func TestExecutor_ExecuteStep_NotifyDefaultsAndScope(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "notify",
			Type: models.StepTypeNotify,
			Config: map[string]any{
				"type":     "attendance_alert",
				"severity": "warning",
				"title":    "Absences for {{event.entity_id}}",
				"body":     "Consecutive absences detected",
			},
		},
	}}
	actor := &models.Actor{ID: "counselor-7", Role: "counselor"}
	data := map[string]any{"event": map[string]any{"entity_id": "student-42"}}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, districtScope("d1"), data)

	require.NoError(t, err)
	assert.Equal(t, models.RunStepSucceeded, result.Status)
	assert.NotEmpty(t, result.Output["notification_id"])

	rows := persistence.EntityRows("notifications")
	require.Len(t, rows, 1)
	// user_id defaults to the acting user; tenant columns come from scope.
	assert.Equal(t, "counselor-7", rows[0]["user_id"])
	assert.Equal(t, "d1", rows[0]["district_id"])
	assert.Equal(t, "Absences for student-42", rows[0]["title"])
}

func TestExecutor_ExecuteStep_CreateEntityRejectsUnknown(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "create",
			Type: models.StepTypeCreateEntity,
			Config: map[string]any{
				"entity": "grades",
				"fields": map[string]any{"score": 100},
			},
		},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrUnsupportedEntity)
	assert.Equal(t, models.RunStepFailed, result.Status)
}

func TestExecutor_ExecuteStep_CreateEntityInjectedScopeWins(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "flag",
			Type: models.StepTypeCreateEntity,
			Config: map[string]any{
				"entity": "student_flags",
				"fields": map[string]any{
					"student_id":  "{{event.entity_id}}",
					"flag_type":   "attendance",
					"level":       "high",
					"district_id": "spoofed-district",
				},
			},
		},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}
	data := map[string]any{"event": map[string]any{"entity_id": "student-9"}}

	_, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, districtScope("d1"), data)

	require.NoError(t, err)

	rows := persistence.EntityRows("student_flags")
	require.Len(t, rows, 1)
	assert.Equal(t, "d1", rows[0]["district_id"], "injected tenant scope must override caller-supplied values")
	assert.Equal(t, "student-9", rows[0]["student_id"])
}

func TestExecutor_ExecuteStep_UpdateEntityMissingPK(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "update",
			Type: models.StepTypeUpdateEntity,
			Config: map[string]any{
				"entity": "tasks",
				"set":    map[string]any{"status": "done"},
			},
		},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrMissingPrimaryKey)
	assert.True(t, IsTerminalStepError(err))
	assert.Equal(t, models.RunStepFailed, result.Status)
}

func TestExecutor_ExecuteStep_PermissionGate(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "notify",
			Type: models.StepTypeNotify,
			Config: map[string]any{
				"required_action": "notifications:send",
				"title":           "hi",
			},
		},
	}}
	actor := &models.Actor{ID: "teacher-1", Role: "teacher"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.ErrorIs(t, err, ErrInsufficientPermissions)
	assert.Equal(t, models.RunStepSkipped, result.Status)
	assert.Equal(t, "notifications:send", result.Output["required_action"])
	assert.Equal(t, "teacher", result.Output["actor_role"])
	assert.Empty(t, persistence.EntityRows("notifications"))
}

func TestExecutor_ExecuteStep_ConditionExemptFromGate(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "check",
			Type: models.StepTypeCondition,
			Config: map[string]any{
				"required_action": "automation:manage",
				"left":            1,
				"op":              "eq",
				"right":           1,
			},
		},
	}}
	actor := &models.Actor{ID: "teacher-1", Role: "teacher"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, models.RunStepSucceeded, result.Status)
}

func TestExecutor_ExecuteStep_UnsupportedType(t *testing.T) {
	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())

	def := &models.Definition{Steps: []*models.Step{
		{ID: "x", Type: models.StepType("webhook")},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}

	result, err := executor.ExecuteStep(context.Background(), def, def.Steps[0], actor, entities.Scope{}, map[string]any{})

	require.ErrorIs(t, err, ErrUnsupportedStepType)
	assert.True(t, IsTerminalStepError(err))
	assert.Equal(t, models.RunStepFailed, result.Status)
}

package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence/memory"
)

func newTestWalker(t *testing.T) (*Walker, *memory.Persistence) {
	t.Helper()

	persistence := memory.NewPersistence()
	executor := NewExecutor(persistence.EntityStore(), testLogger())
	retrier := NewRetrier(executor, persistence.DeadLetters(), testLogger())
	retrier.Sleep = func(d time.Duration) {}

	return NewWalker(retrier, persistence.Runs(), testLogger()), persistence
}

func TestWalker_Walk_LinearChain(t *testing.T) {
	walker, persistence := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{ID: "a", Type: models.StepTypeNoop},
		{ID: "b", Type: models.StepTypeNoop},
		{ID: "c", Type: models.StepTypeNoop},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.False(t, result.Failed)
	require.Len(t, result.Executed, 3)
	assert.Equal(t, "a", result.Executed[0].StepID)
	assert.Equal(t, "c", result.Executed[2].StepID)

	// One log row per step, final outcome only.
	steps, err := persistence.Runs().StepsByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestWalker_Walk_StepOutputsVisibleDownstream(t *testing.T) {
	walker, persistence := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{
			ID:   "flag",
			Type: models.StepTypeCreateEntity,
			Config: map[string]any{
				"entity": "student_flags",
				"fields": map[string]any{"student_id": "s-1", "flag_type": "attendance", "level": "high"},
			},
		},
		{
			ID:   "notify",
			Type: models.StepTypeNotify,
			Config: map[string]any{
				"title":     "flag created",
				"type":      "alert",
				"entity_id": "{{steps.flag.id}}",
			},
		},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "admin-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	require.False(t, result.Failed, result.Error)
	require.Len(t, result.Executed, 2)

	flagID := result.Executed[0].Output["id"]
	require.NotEmpty(t, flagID)

	rows := persistence.EntityRows("notifications")
	require.Len(t, rows, 1)
	assert.Equal(t, flagID, rows[0]["entity_id"])
}

func TestWalker_Walk_LoopDetected(t *testing.T) {
	walker, _ := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{ID: "a", Type: models.StepTypeNoop, Next: strPtr("b")},
		{ID: "b", Type: models.StepTypeNoop, Next: strPtr("a")},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.True(t, result.Failed)
	assert.Equal(t, "loop_detected", result.Error)
	// a and b both ran once before the revisit was caught.
	assert.Len(t, result.Executed, 2)
}

func TestWalker_Walk_StepCeiling(t *testing.T) {
	walker, _ := newTestWalker(t)

	// 51 distinct noops chained by array order: the ceiling trips before
	// step 51 executes.
	steps := make([]*models.Step, 51)
	for i := range steps {
		steps[i] = &models.Step{ID: fmt.Sprintf("noop-%d", i), Type: models.StepTypeNoop}
	}

	def := &models.Definition{Steps: steps}
	actor := &models.Actor{ID: "actor-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.True(t, result.Failed)
	assert.Equal(t, "max_steps_exceeded", result.Error)
	assert.Len(t, result.Executed, MaxSteps)
}

func TestWalker_Walk_MissingStepReference(t *testing.T) {
	walker, _ := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{ID: "a", Type: models.StepTypeNoop, Next: strPtr("ghost")},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.True(t, result.Failed)
	assert.Contains(t, result.Error, "missing_step")
	assert.Contains(t, result.Error, "ghost")
	assert.Len(t, result.Executed, 1)
}

func TestWalker_Walk_FailedStepStopsWalk(t *testing.T) {
	walker, persistence := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{ID: "a", Type: models.StepTypeNoop},
		{
			ID:     "bad",
			Type:   models.StepTypeCreateEntity,
			Config: map[string]any{"entity": "grades"},
		},
		{ID: "never", Type: models.StepTypeNoop},
	}}
	actor := &models.Actor{ID: "admin-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "admin-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.True(t, result.Failed)
	require.Len(t, result.Executed, 2)
	assert.Equal(t, models.RunStepFailed, result.Executed[1].Status)

	steps, err := persistence.Runs().StepsByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestWalker_Walk_SynthesizedStepIDs(t *testing.T) {
	walker, _ := newTestWalker(t)

	def := &models.Definition{Steps: []*models.Step{
		{Type: models.StepTypeNoop},
		{Type: models.StepTypeNoop},
	}}
	actor := &models.Actor{ID: "actor-1", Role: "admin"}
	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1"}

	result := walker.Walk(context.Background(), run, def, actor, map[string]any{})

	assert.False(t, result.Failed)
	require.Len(t, result.Executed, 2)
	assert.Equal(t, "step-0", result.Executed[0].StepID)
	assert.Equal(t, "step-1", result.Executed[1].StepID)
}

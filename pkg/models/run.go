package models

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunStepStatus is the final outcome of one step within a run. Only the
// final outcome per step is logged, not one row per attempt.
type RunStepStatus string

const (
	RunStepSucceeded RunStepStatus = "succeeded"
	RunStepFailed    RunStepStatus = "failed"
	RunStepSkipped   RunStepStatus = "skipped"
)

// WorkflowRun is one execution attempt of a specific workflow version for
// one triggering event. Version is the effective version executed, which may
// differ from the definition's current draft version.
type WorkflowRun struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	Version        int            `json:"version"`
	DistrictID     *string        `json:"district_id,omitempty"`
	SchoolID       *string        `json:"school_id,omitempty"`
	ActorID        string         `json:"actor_id"`
	EventID        *string        `json:"event_id,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	Status         RunStatus      `json:"status"`
	Input          map[string]any `json:"input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// RunStep is the execution log entry for one step of a run.
type RunStep struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	StepKey   string         `json:"step_key"`
	Status    RunStepStatus  `json:"status"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunIdempotencyKey derives the deterministic key guaranteeing at-most-once
// execution per (event, workflow version) pair.
func RunIdempotencyKey(eventID, workflowID string, version int) string {
	return fmt.Sprintf("event:%s:wf:%s:v:%d", eventID, workflowID, version)
}

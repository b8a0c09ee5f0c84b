// Package web provides HTTP request and response types for the event
// ingestion and runs API.
package web

import (
	"time"

	"github.com/classflow/classflow/pkg/models"
)

// IngestEventRequest is the body of POST /v1/events. Field names follow the
// upstream application's camelCase convention.
type IngestEventRequest struct {
	EventName  string         `json:"eventName"            validate:"required,max=64"`
	EntityType string         `json:"entityType,omitempty" validate:"omitempty,max=64"`
	EntityID   string         `json:"entityId,omitempty"   validate:"omitempty,max=128"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IngestEventResponse acknowledges a recorded event. Workflow outcomes are
// never part of this response; they are visible only through runs, dead
// letters, and the audit stream.
type IngestEventResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// RunResponse is the read model for a single run with its step log.
type RunResponse struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	Version    int               `json:"version"`
	DistrictID *string           `json:"district_id,omitempty"`
	SchoolID   *string           `json:"school_id,omitempty"`
	ActorID    string            `json:"actor_id"`
	EventID    *string           `json:"event_id,omitempty"`
	Status     models.RunStatus  `json:"status"`
	Output     map[string]any    `json:"output,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Steps      []RunStepResponse `json:"steps,omitempty"`
}

// RunStepResponse is one entry of a run's step log.
type RunStepResponse struct {
	StepKey   string               `json:"step_key"`
	Status    models.RunStepStatus `json:"status"`
	Input     map[string]any       `json:"input,omitempty"`
	Output    map[string]any       `json:"output,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// TransformRunResponse builds the read model from a run and its step log.
func TransformRunResponse(run *models.WorkflowRun, steps []*models.RunStep) RunResponse {
	response := RunResponse{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Version:    run.Version,
		DistrictID: run.DistrictID,
		SchoolID:   run.SchoolID,
		ActorID:    run.ActorID,
		EventID:    run.EventID,
		Status:     run.Status,
		Output:     run.Output,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}

	for _, step := range steps {
		response.Steps = append(response.Steps, RunStepResponse{
			StepKey:   step.StepKey,
			Status:    step.Status,
			Input:     step.Input,
			Output:    step.Output,
			CreatedAt: step.CreatedAt,
		})
	}

	return response
}

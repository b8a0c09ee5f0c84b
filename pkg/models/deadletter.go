package models

import "time"

// DeadLetter is a write-once record of a step that failed permanently after
// exhausting its retries. Remediation is external; the engine never mutates
// these rows.
type DeadLetter struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	RunID      string         `json:"run_id"`
	StepKey    string         `json:"step_key"`
	ActorID    string         `json:"actor_id"`
	DistrictID *string        `json:"district_id,omitempty"`
	SchoolID   *string        `json:"school_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Error      string         `json:"error"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

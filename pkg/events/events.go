// Package events defines the append-only audit/analytics events the engine
// emits. Dashboards and remediation tooling consume this stream; nothing in
// the engine reads it back.
package events

import (
	"time"

	"github.com/classflow/classflow/pkg/models"
)

type EventType string

// Topic is the audit stream all engine events are published to.
const Topic = "classflow.audit"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowDispatchedEvent EventType = "workflow.dispatched"
	RunStartedEvent         EventType = "run.started"
	RunSucceededEvent       EventType = "run.succeeded"
	RunFailedEvent          EventType = "run.failed"
	RunDedupedEvent         EventType = "run.deduped"
	StepFailedEvent         EventType = "step.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowDispatched summarizes one event ingestion: how many published
// definitions matched the event.
type WorkflowDispatched struct {
	BaseEvent

	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Matches   int    `json:"matches"`
}

func (e WorkflowDispatched) GetType() EventType {
	return WorkflowDispatchedEvent
}

type RunStarted struct {
	BaseEvent

	RunID   string `json:"run_id"`
	Version int    `json:"version"`
	EventID string `json:"event_id,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunSucceeded struct {
	BaseEvent

	RunID         string        `json:"run_id"`
	StepsExecuted int           `json:"steps_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

type RunFailed struct {
	BaseEvent

	RunID         string        `json:"run_id"`
	Error         string        `json:"error"`
	StepsExecuted int           `json:"steps_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// RunDeduped records a skipped execution: a run already existed for the
// event's idempotency key.
type RunDeduped struct {
	BaseEvent

	IdempotencyKey string `json:"idempotency_key"`
	ExistingRunID  string `json:"existing_run_id,omitempty"`
}

func (e RunDeduped) GetType() EventType {
	return RunDedupedEvent
}

type StepFailed struct {
	BaseEvent

	RunID    string               `json:"run_id"`
	StepKey  string               `json:"step_key"`
	Status   models.RunStepStatus `json:"status"`
	Error    string               `json:"error"`
	Attempts int                  `json:"attempts"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

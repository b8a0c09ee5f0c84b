// Package models defines the core domain models for event-triggered workflow automation.
package models

import (
	"fmt"
	"regexp"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusInReview  WorkflowStatus = "in_review" // Pending approval
	WorkflowStatusApproved  WorkflowStatus = "approved"  // Approved, not yet live
	WorkflowStatusPublished WorkflowStatus = "published" // Live, matched against events
)

// StepType identifies the behavior of a single workflow step.
type StepType string

const (
	StepTypeCondition    StepType = "condition"
	StepTypeNoop         StepType = "noop"
	StepTypeNotify       StepType = "notify"
	StepTypeCreateEntity StepType = "create_entity"
	StepTypeUpdateEntity StepType = "update_entity"
)

// Trigger describes what causes a workflow to run. Only event triggers are
// supported; the event name is matched exactly against inbound events.
type Trigger struct {
	Type      string `json:"type"       validate:"required,eq=event"`
	EventName string `json:"event_name" validate:"required"`
}

// Step is one node in a workflow's step graph. Successors are explicit
// (Next, or OnTrue/OnFalse for conditions) or default to the following
// element in the definition's step list.
type Step struct {
	ID      string         `json:"id"`
	Type    StepType       `json:"type" validate:"required"`
	Config  map[string]any `json:"config,omitempty"`
	Next    *string        `json:"next,omitempty"`
	OnTrue  *string        `json:"on_true,omitempty"`
	OnFalse *string        `json:"on_false,omitempty"`
}

// Definition is the executable step graph of a workflow version.
type Definition struct {
	Start string  `json:"start,omitempty"`
	Steps []*Step `json:"steps"`
}

// WorkflowDefinition is a versioned, tenant-scoped workflow. DistrictID and
// SchoolID are nil for globally-scoped workflows. Version is the current
// mutable draft version; PinnedVersion and PublishedVersion point at
// immutable historical snapshots.
type WorkflowDefinition struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"   validate:"required,min=3"`
	Status           WorkflowStatus `json:"status" validate:"required"`
	DistrictID       *string        `json:"district_id,omitempty"`
	SchoolID         *string        `json:"school_id,omitempty"`
	Trigger          Trigger        `json:"trigger"`
	Version          int            `json:"version"`
	PinnedVersion    *int           `json:"pinned_version,omitempty"`
	PublishedVersion *int           `json:"published_version,omitempty"`
	Definition       Definition     `json:"definition"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// WorkflowDefinitionVersion is an immutable snapshot of a definition at a
// given version. Once events begin matching a published or pinned version,
// execution always resolves the snapshot, never the mutable draft.
type WorkflowDefinitionVersion struct {
	WorkflowID string     `json:"workflow_id"`
	Version    int        `json:"version"`
	Definition Definition `json:"definition"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EffectiveVersion returns the version an execution must resolve: the pinned
// version wins over the published one, and both win over the current draft.
func (w *WorkflowDefinition) EffectiveVersion() int {
	if w.PinnedVersion != nil {
		return *w.PinnedVersion
	}

	if w.PublishedVersion != nil {
		return *w.PublishedVersion
	}

	return w.Version
}

// Normalize synthesizes step IDs from array position for steps that were
// authored without one. IDs are required for successor resolution and loop
// detection.
func (d *Definition) Normalize() {
	for i, step := range d.Steps {
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i)
		}
	}
}

// StepByID resolves a step by its ID.
func (d *Definition) StepByID(id string) (*Step, bool) {
	for _, step := range d.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// StartStep returns the ID of the step a walk begins at: the explicit start
// node when set, otherwise the first element of the step list.
func (d *Definition) StartStep() string {
	if d.Start != "" {
		return d.Start
	}

	if len(d.Steps) > 0 {
		return d.Steps[0].ID
	}

	return ""
}

// DefaultSuccessor returns the step after the given one in array order, or
// "" when the step is last. Array order is the documented fallback when no
// explicit edge is given; reordering steps without updating `next` changes
// execution order.
func (d *Definition) DefaultSuccessor(stepID string) string {
	for i, step := range d.Steps {
		if step.ID == stepID && i+1 < len(d.Steps) {
			return d.Steps[i+1].ID
		}
	}

	return ""
}

var eventNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidEventName reports whether a trigger event name matches the strict
// allow-pattern enforced at ingestion.
func ValidEventName(name string) bool {
	return eventNamePattern.MatchString(name)
}

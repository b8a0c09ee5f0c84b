package models

import "time"

// Event is an inbound application event recorded before any workflow
// dispatch happens. Recording must succeed even when dispatch fails.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name" validate:"required"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ActorID    string         `json:"actor_id" validate:"required"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Actor is the identity an event was ingested under, resolved to its role
// and tenant scope by the persistence layer.
type Actor struct {
	ID         string  `json:"id"`
	Role       string  `json:"role"`
	DistrictID *string `json:"district_id,omitempty"`
	SchoolID   *string `json:"school_id,omitempty"`
}

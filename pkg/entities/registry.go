// Package entities is the static whitelist controlling which tables and
// fields workflow steps may mutate. The registry is the sole authorization
// boundary between workflow authors (or a compromised event payload) and
// persisted state: unknown entities are rejected at lookup time and
// non-whitelisted fields are dropped before any write.
package entities

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedEntity indicates the entity name has no registry entry.
	ErrUnsupportedEntity = errors.New("unsupported entity")

	// ErrMissingPrimaryKey indicates an update without an `id` primary key.
	// This is a caller error and is never retried.
	ErrMissingPrimaryKey = errors.New("missing primary key")
)

// TenantFields names the tenant-scope columns of an entity's table. Empty
// names mean the table carries no such column.
type TenantFields struct {
	District string
	School   string
}

// Entry describes one registered entity: its backing table, the writable
// field whitelist, and the tenant columns injected on every write.
type Entry struct {
	Name          string
	Table         string
	AllowedFields []string
	TenantFields  TenantFields
}

// Scope is the tenant scope injected into entity writes.
type Scope struct {
	DistrictID *string
	SchoolID   *string
}

// Store is the narrow persistence surface entity writes go through. The
// implementation must reject tables outside the registry's set.
type Store interface {
	CreateEntityRow(ctx context.Context, table string, fields map[string]any) (string, error)
	UpdateEntityRowByID(ctx context.Context, table, id string, fields map[string]any) error
}

var registry = map[string]Entry{
	"notifications": {
		Name:  "notifications",
		Table: "notifications",
		AllowedFields: []string{
			"user_id", "type", "severity", "title", "body",
			"entity_type", "entity_id", "metadata", "district_id", "school_id",
		},
		TenantFields: TenantFields{District: "district_id", School: "school_id"},
	},
	"tasks": {
		Name:  "tasks",
		Table: "tasks",
		AllowedFields: []string{
			"title", "description", "assignee_id", "status", "due_date",
			"entity_type", "entity_id", "metadata", "district_id", "school_id",
		},
		TenantFields: TenantFields{District: "district_id", School: "school_id"},
	},
	"student_flags": {
		Name:  "student_flags",
		Table: "student_flags",
		AllowedFields: []string{
			"student_id", "flag_type", "level", "reason", "metadata",
			"district_id", "school_id",
		},
		TenantFields: TenantFields{District: "district_id", School: "school_id"},
	},
}

// Lookup resolves an entity name, fail-closed.
func Lookup(name string) (Entry, error) {
	entry, ok := registry[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnsupportedEntity, name)
	}

	return entry, nil
}

// Tables returns the set of tables the registry permits writes to.
func Tables() map[string]bool {
	tables := make(map[string]bool, len(registry))
	for _, entry := range registry {
		tables[entry.Table] = true
	}

	return tables
}

// PickAllowedFields drops every key not in the entry's whitelist.
func (e Entry) PickAllowedFields(raw map[string]any) map[string]any {
	allowed := make(map[string]bool, len(e.AllowedFields))
	for _, field := range e.AllowedFields {
		allowed[field] = true
	}

	picked := make(map[string]any, len(raw))

	for key, value := range raw {
		if allowed[key] {
			picked[key] = value
		}
	}

	return picked
}

// injectScope writes the tenant ids into the field set before whitelist
// filtering. Injected values win over caller-supplied ones, so the filter
// cannot be bypassed by omitting or forging scope fields.
func (e Entry) injectScope(fields map[string]any, scope Scope) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		out[key] = value
	}

	if e.TenantFields.District != "" && scope.DistrictID != nil {
		out[e.TenantFields.District] = *scope.DistrictID
	}

	if e.TenantFields.School != "" && scope.SchoolID != nil {
		out[e.TenantFields.School] = *scope.SchoolID
	}

	return out
}

// Create inserts a row for a registered entity, injecting tenant scope and
// filtering to the whitelist. Returns the new row's id.
func Create(ctx context.Context, store Store, entity string, fields map[string]any, scope Scope) (string, error) {
	entry, err := Lookup(entity)
	if err != nil {
		return "", err
	}

	row := entry.PickAllowedFields(entry.injectScope(fields, scope))

	id, err := store.CreateEntityRow(ctx, entry.Table, row)
	if err != nil {
		return "", fmt.Errorf("failed to create %s row: %w", entity, err)
	}

	return id, nil
}

// UpdateByPK updates a row of a registered entity by its `id` primary key.
// The pk map must contain a non-empty `id`; its absence is a caller error.
func UpdateByPK(ctx context.Context, store Store, entity string, pk, set map[string]any, scope Scope) error {
	entry, err := Lookup(entity)
	if err != nil {
		return err
	}

	id, _ := pk["id"].(string)
	if id == "" {
		return fmt.Errorf("%w: update of %s requires an id", ErrMissingPrimaryKey, entity)
	}

	row := entry.PickAllowedFields(entry.injectScope(set, scope))

	err = store.UpdateEntityRowByID(ctx, entry.Table, id, row)
	if err != nil {
		return fmt.Errorf("failed to update %s row %s: %w", entity, id, err)
	}

	return nil
}

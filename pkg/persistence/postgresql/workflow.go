package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

// WorkflowRepository handles workflow definition reads and writes.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const workflowColumns = `
	id
  , name
  , status
  , district_id
  , school_id
  , trigger_type
  , trigger_event
  , version
  , pinned_version
  , published_version
  , definition
  , created_at
  , updated_at
`

// PublishedByEvent returns all published definitions whose trigger matches
// the event name. Tenant-scope filtering happens in the dispatcher.
func (r *WorkflowRepository) PublishedByEvent(ctx context.Context, eventName string) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow_definitions
		WHERE status = 'published'
		  AND trigger_type = 'event'
		  AND trigger_event = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by event: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow_definitions
		WHERE id = $1
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) VersionSnapshot(ctx context.Context, workflowID string, version int) (*models.WorkflowDefinitionVersion, error) {
	query := `
		SELECT workflow_id, version, definition, created_at
		FROM workflow_definition_versions
		WHERE workflow_id = $1 AND version = $2
	`

	var (
		snapshot      models.WorkflowDefinitionVersion
		definitionRaw []byte
	)

	err := r.db.QueryRowContext(ctx, query, workflowID, version).
		Scan(&snapshot.WorkflowID, &snapshot.Version, &definitionRaw, &snapshot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	err = json.Unmarshal(definitionRaw, &snapshot.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition snapshot: %w", err)
	}

	return &snapshot, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	definitionRaw, err := json.Marshal(workflow.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			id, name, status, district_id, school_id, trigger_type,
			trigger_event, version, pinned_version, published_version,
			definition, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			district_id = EXCLUDED.district_id,
			school_id = EXCLUDED.school_id,
			trigger_type = EXCLUDED.trigger_type,
			trigger_event = EXCLUDED.trigger_event,
			version = EXCLUDED.version,
			pinned_version = EXCLUDED.pinned_version,
			published_version = EXCLUDED.published_version,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.Name, workflow.Status, workflow.DistrictID,
		workflow.SchoolID, workflow.Trigger.Type, workflow.Trigger.EventName,
		workflow.Version, workflow.PinnedVersion, workflow.PublishedVersion,
		definitionRaw, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// SaveVersionSnapshot stores an immutable snapshot. Snapshots are insert-only;
// a conflicting (workflow_id, version) already holds the canonical content.
func (r *WorkflowRepository) SaveVersionSnapshot(ctx context.Context, snapshot *models.WorkflowDefinitionVersion) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	definitionRaw, err := json.Marshal(snapshot.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode definition snapshot: %w", err)
	}

	query := `
		INSERT INTO workflow_definition_versions (workflow_id, version, definition, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id, version) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		snapshot.WorkflowID, snapshot.Version, definitionRaw, snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow version: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		workflow      models.WorkflowDefinition
		definitionRaw []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.Status, &workflow.DistrictID,
		&workflow.SchoolID, &workflow.Trigger.Type, &workflow.Trigger.EventName,
		&workflow.Version, &workflow.PinnedVersion, &workflow.PublishedVersion,
		&definitionRaw, &workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(definitionRaw, &workflow.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	return &workflow, nil
}

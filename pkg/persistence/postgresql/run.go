package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

const uniqueViolation = "23505"

// RunRepository handles workflow run and run step persistence.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Create inserts a run. A unique violation on the idempotency index is
// surfaced as ErrRunAlreadyExists so redelivered events skip execution.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	inputRaw, err := encodeJSON(run.Input)
	if err != nil {
		return fmt.Errorf("failed to encode run input: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (
			id, workflow_id, version, district_id, school_id, actor_id,
			event_id, idempotency_key, status, input, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.Version, run.DistrictID, run.SchoolID,
		run.ActorID, run.EventID, run.IdempotencyKey, run.Status, inputRaw,
		run.StartedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.ErrRunAlreadyExists
		}

		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (r *RunRepository) FindByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1 AND idempotency_key = $2
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, workflowID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) Finalize(ctx context.Context, runID string, status models.RunStatus, output map[string]any) error {
	outputRaw, err := encodeJSON(output)
	if err != nil {
		return fmt.Errorf("failed to encode run output: %w", err)
	}

	query := `
		UPDATE workflow_runs
		SET status = $2, output = $3, finished_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, runID, status, outputRaw)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRunNotFound
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) CreateStep(ctx context.Context, step *models.RunStep) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run step ID: %w", err)
		}

		step.ID = id.String()
	}

	inputRaw, err := encodeJSON(step.Input)
	if err != nil {
		return fmt.Errorf("failed to encode step input: %w", err)
	}

	outputRaw, err := encodeJSON(step.Output)
	if err != nil {
		return fmt.Errorf("failed to encode step output: %w", err)
	}

	query := `
		INSERT INTO workflow_run_steps (id, run_id, step_key, status, input, output)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID, step.RunID, step.StepKey, step.Status, inputRaw, outputRaw)
	if err != nil {
		return fmt.Errorf("failed to create run step: %w", err)
	}

	return nil
}

func (r *RunRepository) StepsByRun(ctx context.Context, runID string) ([]*models.RunStep, error) {
	query := `
		SELECT id, run_id, step_key, status, input, output, created_at
		FROM workflow_run_steps
		WHERE run_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.RunStep, 0)

	for rows.Next() {
		var (
			step      models.RunStep
			inputRaw  []byte
			outputRaw []byte
		)

		err := rows.Scan(&step.ID, &step.RunID, &step.StepKey, &step.Status,
			&inputRaw, &outputRaw, &step.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}

		step.Input, err = decodeJSON(inputRaw)
		if err != nil {
			return nil, err
		}

		step.Output, err = decodeJSON(outputRaw)
		if err != nil {
			return nil, err
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating run steps: %w", err)
	}

	return steps, nil
}

const runColumns = `
	id
  , workflow_id
  , version
  , district_id
  , school_id
  , actor_id
  , event_id
  , idempotency_key
  , status
  , input
  , output
  , started_at
  , finished_at
`

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run       models.WorkflowRun
		inputRaw  []byte
		outputRaw []byte
	)

	err := row.Scan(
		&run.ID, &run.WorkflowID, &run.Version, &run.DistrictID, &run.SchoolID,
		&run.ActorID, &run.EventID, &run.IdempotencyKey, &run.Status,
		&inputRaw, &outputRaw, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}

	run.Input, err = decodeJSON(inputRaw)
	if err != nil {
		return nil, err
	}

	run.Output, err = decodeJSON(outputRaw)
	if err != nil {
		return nil, err
	}

	return &run, nil
}

func encodeJSON(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}

func decodeJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var value map[string]any

	err := json.Unmarshal(raw, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON column: %w", err)
	}

	return value, nil
}

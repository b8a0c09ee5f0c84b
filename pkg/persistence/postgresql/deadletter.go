package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/classflow/classflow/pkg/models"
)

// DeadLetterRepository appends dead-letter records.
type DeadLetterRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DeadLetterRepository) Create(ctx context.Context, deadLetter *models.DeadLetter) error {
	if deadLetter.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate dead letter ID: %w", err)
		}

		deadLetter.ID = id.String()
	}

	inputRaw, err := encodeJSON(deadLetter.Input)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter input: %w", err)
	}

	metadataRaw, err := encodeJSON(deadLetter.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter metadata: %w", err)
	}

	query := `
		INSERT INTO dead_letters (
			id, workflow_id, run_id, step_key, actor_id,
			district_id, school_id, input, error, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		deadLetter.ID, deadLetter.WorkflowID, deadLetter.RunID,
		deadLetter.StepKey, deadLetter.ActorID, deadLetter.DistrictID,
		deadLetter.SchoolID, inputRaw, deadLetter.Error, metadataRaw)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}

	return nil
}

func (r *DeadLetterRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.DeadLetter, error) {
	query := `
		SELECT id, workflow_id, run_id, step_key, actor_id,
		       district_id, school_id, input, error, metadata, created_at
		FROM dead_letters
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	letters := make([]*models.DeadLetter, 0)

	for rows.Next() {
		var (
			letter      models.DeadLetter
			inputRaw    []byte
			metadataRaw []byte
		)

		err := rows.Scan(&letter.ID, &letter.WorkflowID, &letter.RunID,
			&letter.StepKey, &letter.ActorID, &letter.DistrictID,
			&letter.SchoolID, &inputRaw, &letter.Error, &metadataRaw,
			&letter.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}

		letter.Input, err = decodeJSON(inputRaw)
		if err != nil {
			return nil, err
		}

		letter.Metadata, err = decodeJSON(metadataRaw)
		if err != nil {
			return nil, err
		}

		letters = append(letters, &letter)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return letters, nil
}

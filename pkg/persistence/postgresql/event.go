package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

// EventRepository records inbound application events.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	metadataRaw, err := encodeJSON(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	query := `
		INSERT INTO events (id, name, entity_type, entity_id, metadata, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Name, nullable(event.EntityType),
		nullable(event.EntityID), metadataRaw, event.ActorID, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT id, name, entity_type, entity_id, metadata, actor_id, created_at
		FROM events
		WHERE id = $1
	`

	var (
		event       models.Event
		entityType  sql.NullString
		entityID    sql.NullString
		metadataRaw []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&event.ID, &event.Name,
		&entityType, &entityID, &metadataRaw, &event.ActorID, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEventNotFound
		}

		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.EntityType = entityType.String
	event.EntityID = entityID.String

	event.Metadata, err = decodeJSON(metadataRaw)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

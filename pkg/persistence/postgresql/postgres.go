// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/persistence"
	"github.com/classflow/classflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflows   *WorkflowRepository
	runs        *RunRepository
	deadLetters *DeadLetterRepository
	events      *EventRepository
	actors      *ActorRepository
	entityStore *EntityStore
}

// NewPersistence connects, migrates, and returns a ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		workflows:   &WorkflowRepository{db: database, logger: logger},
		runs:        &RunRepository{db: database, logger: logger},
		deadLetters: &DeadLetterRepository{db: database, logger: logger},
		events:      &EventRepository{db: database, logger: logger},
		actors:      &ActorRepository{db: database, logger: logger},
		entityStore: &EntityStore{db: database, logger: logger, allowed: entities.Tables()},
	}, nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository     { return p.workflows }
func (p *Persistence) Runs() persistence.RunRepository               { return p.runs }
func (p *Persistence) DeadLetters() persistence.DeadLetterRepository { return p.deadLetters }
func (p *Persistence) Events() persistence.EventRepository           { return p.events }
func (p *Persistence) Actors() persistence.ActorRepository           { return p.actors }
func (p *Persistence) EntityStore() entities.Store                   { return p.entityStore }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

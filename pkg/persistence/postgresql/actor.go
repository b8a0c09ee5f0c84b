package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

// ActorRepository resolves actor identities to role and tenant scope.
type ActorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ActorRepository) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	query := `
		SELECT id, role, district_id, school_id
		FROM actors
		WHERE id = $1
	`

	var actor models.Actor

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&actor.ID, &actor.Role, &actor.DistrictID, &actor.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrActorNotFound
		}

		return nil, fmt.Errorf("failed to scan actor: %w", err)
	}

	return &actor, nil
}

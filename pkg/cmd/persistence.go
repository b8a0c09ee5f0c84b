// Package cmd wires shared infrastructure for the classflow binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/classflow/classflow/pkg/persistence"
	"github.com/classflow/classflow/pkg/persistence/memory"
	"github.com/classflow/classflow/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence layer from the database URL scheme.
// postgres/postgresql URLs get the real store; anything else (including an
// empty URL) falls back to the in-memory store for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres persistence: %w", err)
		}

		return p, nil
	default:
		logger.Warn("No postgres database URL configured, using in-memory persistence")

		return memory.NewPersistence(), nil
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return scheme
}

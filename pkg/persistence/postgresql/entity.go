package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/classflow/classflow/pkg/persistence"
)

// EntityStore executes entity registry writes. The table set is fixed at
// construction from the registry; any other table is rejected, so a
// workflow author can never reach tables outside the whitelist even if the
// registry filtering were bypassed.
type EntityStore struct {
	db      *sql.DB
	logger  *slog.Logger
	allowed map[string]bool
}

func (s *EntityStore) CreateEntityRow(ctx context.Context, table string, fields map[string]any) (string, error) {
	if !s.allowed[table] {
		return "", fmt.Errorf("%w: %s", persistence.ErrTableNotAllowed, table)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate row ID: %w", err)
	}

	columns := []string{"id"}
	placeholders := []string{"$1"}
	values := []any{id.String()}

	for _, column := range sortedKeys(fields) {
		columns = append(columns, quoteColumn(column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(values)+1))
		values = append(values, columnValue(fields[column]))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	_, err = s.db.ExecContext(ctx, query, values...)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	return id.String(), nil
}

func (s *EntityStore) UpdateEntityRowByID(ctx context.Context, table, id string, fields map[string]any) error {
	if !s.allowed[table] {
		return fmt.Errorf("%w: %s", persistence.ErrTableNotAllowed, table)
	}

	if len(fields) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(fields))
	values := []any{id}

	for _, column := range sortedKeys(fields) {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", quoteColumn(column), len(values)+1))
		values = append(values, columnValue(fields[column]))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1",
		table, strings.Join(assignments, ", "))

	result, err := s.db.ExecContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("row %s not found in %s", id, table)
	}

	return nil
}

// quoteColumn quotes a column identifier. Column names come from the
// registry whitelist, never from workflow authors; quoting guards against
// the registry itself carrying a reserved word.
func quoteColumn(column string) string {
	return `"` + column + `"`
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// columnValue converts nested structures to JSON for JSONB columns and
// passes scalars through to the driver.
func columnValue(value any) any {
	switch value.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil
		}

		return raw
	default:
		return value
	}
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/vigil/internal/ruleengine"
)

// PostgresStore reads rules from the "rules" table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a repository on top of pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// FetchActiveRules loads every active rule ordered by id.
func (s *PostgresStore) FetchActiveRules(ctx context.Context) ([]ruleengine.Rule, error) {
	query := `
		SELECT id, expression, COALESCE(description, ''), active
		FROM rules
		WHERE active
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}

	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ruleengine.Rule, error) {
		var r ruleengine.Rule
		err := row.Scan(&r.ID, &r.Expression, &r.Description, &r.Active)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan active rules: %w", err)
	}

	return rules, nil
}

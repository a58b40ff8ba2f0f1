package store

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaStep is one numbered schema change. Steps are append-only.
type schemaStep struct {
	version int
	name    string
	stmts   []string
}

// Version 1 is schemaSQL itself and only gets recorded.
var schemaSteps = []schemaStep{
	{version: 1, name: "ontology graph and query log"},
	{
		version: 2,
		name:    "query_log lookups by request id and age",
		stmts: []string{
			"CREATE INDEX IF NOT EXISTS idx_query_log_request ON query_log(request_id)",
			"CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at)",
		},
	},
	{
		version: 3,
		name:    "kpi atomic flag presence",
		stmts: []string{
			"ALTER TABLE entities ADD COLUMN has_atomic INTEGER NOT NULL DEFAULT 0",
			"UPDATE entities SET has_atomic = 1 WHERE atomic = 1",
		},
	},
}

const schemaVersionDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migrate brings the schema up to the newest step, one transaction per
// step.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionDDL); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var have int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&have); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, step := range schemaSteps {
		if step.version <= have {
			continue
		}
		if err := s.applyStep(ctx, step); err != nil {
			return fmt.Errorf("schema step %d (%s): %w", step.version, step.name, err)
		}
		slog.Info("store: schema upgraded", "version", step.version, "step", step.name)
	}
	return nil
}

func (s *Store) applyStep(ctx context.Context, step schemaStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range step.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		step.version, step.name); err != nil {
		return err
	}
	return tx.Commit()
}

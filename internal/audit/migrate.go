package audit

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		mode TEXT NOT NULL,
		outcome TEXT NOT NULL,
		message TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool, created_at);`,
}

// Migrate ensures the ledger tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("audit store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit migration failed: %w", err)
		}
	}
	return nil
}

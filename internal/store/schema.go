package store

import (
	"context"
	"embed"
	"fmt"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EnsureSchema applies the bootstrap DDL. Statements are idempotent, so
// running it on every start is safe.
func (s *PostgresMetadataStore) EnsureSchema(ctx context.Context) error {
	schema, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL for every table the monitor reads or writes.
func Schema() string {
	return schema
}

// EnsureSchema creates missing tables and indexes. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	// Without arguments pgx sends the script over the simple protocol, which
	// allows several statements.
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

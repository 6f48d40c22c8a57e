package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// overrideName keys the single override row.
const overrideName = "thresholds"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL threshold repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the stored override.
func (r *PostgresRepository) Get(ctx context.Context) (Override, error) {
	query := `
		SELECT policy, updated_by, updated_at
		FROM threshold_policies
		WHERE name = $1
	`

	var (
		o          Override
		policyJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, overrideName).Scan(&policyJSON, &o.UpdatedBy, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Override{}, ErrNotFound
		}
		return Override{}, fmt.Errorf("select threshold override: %w", err)
	}

	if err := json.Unmarshal(policyJSON, &o.Policy); err != nil {
		return Override{}, fmt.Errorf("decode threshold override: %w", err)
	}
	return o, nil
}

// Save creates or replaces the override.
func (r *PostgresRepository) Save(ctx context.Context, o Override) error {
	query := `
		INSERT INTO threshold_policies (name, policy, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			policy = EXCLUDED.policy,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	policyJSON, err := json.Marshal(o.Policy)
	if err != nil {
		return fmt.Errorf("encode threshold override: %w", err)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, query, overrideName, policyJSON, o.UpdatedBy, o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert threshold override: %w", err)
	}
	return nil
}

// Delete removes the override.
func (r *PostgresRepository) Delete(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM threshold_policies WHERE name = $1`, overrideName); err != nil {
		return fmt.Errorf("delete threshold override: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)

package incident

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL incident repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Query returns incidents that occurred within window, newest first.
func (r *PostgresRepository) Query(ctx context.Context, window monitor.Window, filter Filter) ([]monitor.IncidentRecord, error) {
	query := `
		SELECT id, type, severity, title, description, affected_count,
		       recovery_actions, occurred_at, resolved_at, resolution_minutes
		FROM incidents
		WHERE occurred_at >= $1
		  AND occurred_at <= $2
		  AND (cardinality($3::text[]) = 0 OR type = ANY($3))
		  AND (cardinality($4::text[]) = 0 OR severity = ANY($4))
		ORDER BY occurred_at DESC
	`

	now := time.Now().UTC()
	types := make([]string, len(filter.Types))
	for i, t := range filter.Types {
		types[i] = string(t)
	}
	severities := make([]string, len(filter.Severities))
	for i, s := range filter.Severities {
		severities[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, query, window.Start(now), now, types, severities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []monitor.IncidentRecord
	for rows.Next() {
		var (
			rec      monitor.IncidentRecord
			typ, sev string
			actions  []string
		)
		err := rows.Scan(
			&rec.ID,
			&typ,
			&sev,
			&rec.Title,
			&rec.Description,
			&rec.AffectedCount,
			&actions,
			&rec.OccurredAt,
			&rec.ResolvedAt,
			&rec.ResolutionMinutes,
		)
		if err != nil {
			return nil, err
		}
		rec.Type = monitor.IncidentType(typ)
		rec.Severity = monitor.Severity(sev)
		rec.RecoveryActions = actions
		if err := rec.Validate(); err != nil {
			return nil, err
		}

		// Resolution is filtered after the scan, using IsResolved.
		if filter.Resolved != nil && rec.IsResolved() != *filter.Resolved {
			continue
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)

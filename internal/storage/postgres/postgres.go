// Package postgres stores records in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS keyword_results (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	keyword TEXT NOT NULL,
	competition BIGINT,
	region TEXT NOT NULL,
	seed TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS keyword_results_job ON keyword_results (job_id, position);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.Record) error {
	query := `
	INSERT INTO keyword_results (
		id, job_id, position, keyword, competition, region, seed, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := b.pool.Exec(ctx, query,
		r.ID,
		r.JobID,
		r.Position,
		r.Keyword,
		r.Competition.Ptr(),
		string(r.Region),
		r.Seed,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT id, job_id, position, keyword, competition, region, seed, created_at FROM keyword_results WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, paramCount)
		args = append(args, filter.JobID)
		paramCount++
	}
	if filter.Contains != "" {
		query += fmt.Sprintf(` AND strpos(lower(keyword), lower($%d)) > 0`, paramCount)
		args = append(args, filter.Contains)
		paramCount++
	}
	if filter.KnownOnly {
		query += ` AND competition IS NOT NULL`
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at ASC, position ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*storage.Record
	for rows.Next() {
		var r storage.Record
		var competition *int64
		var region string

		if err := rows.Scan(&r.ID, &r.JobID, &r.Position, &r.Keyword, &competition, &region, &r.Seed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Region = keyword.Region(region)
		r.Competition = keyword.FromPtr(competition)
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

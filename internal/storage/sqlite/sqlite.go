// Package sqlite stores records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS keyword_results (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	keyword TEXT NOT NULL,
	competition INTEGER,
	region TEXT NOT NULL,
	seed TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS keyword_results_job ON keyword_results (job_id, position);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.Record) error {
	query := `
	INSERT INTO keyword_results (
		id, job_id, position, keyword, competition, region, seed, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
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

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT id, job_id, position, keyword, competition, region, seed, created_at FROM keyword_results WHERE 1=1`
	args := []any{}

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Contains != "" {
		query += ` AND instr(lower(keyword), lower(?)) > 0`
		args = append(args, filter.Contains)
	}
	if filter.KnownOnly {
		query += ` AND competition IS NOT NULL`
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at ASC, position ASC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*storage.Record
	for rows.Next() {
		var r storage.Record
		var competition sql.NullInt64
		var region string

		err := rows.Scan(&r.ID, &r.JobID, &r.Position, &r.Keyword, &competition, &region, &r.Seed, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Region = keyword.Region(region)
		if competition.Valid {
			r.Competition = keyword.Count(competition.Int64)
		} else {
			r.Competition = keyword.Unknown()
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

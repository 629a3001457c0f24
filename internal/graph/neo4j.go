// Package graph records the suggestion tree of each job in Neo4j as
// (:Phrase)-[:SUGGESTS]->(:Phrase) relationships.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Writer merges phrases and suggestion edges into the graph.
type Writer struct {
	driver DriverSessioner
	logger *slog.Logger
}

// Connect opens a driver for uri and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Writer, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return NewWriter(&neo4jDriver{driver: driver}, logger), nil
}

// NewWriter wraps an existing driver.
func NewWriter(driver DriverSessioner, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{driver: driver, logger: logger}
}

// Close closes the underlying driver.
func (w *Writer) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}

// WriteEdge records that e.Child was suggested for e.Parent in job jobID.
func (w *Writer) WriteEdge(ctx context.Context, jobID string, e keyword.Edge) error {
	if e.Parent == "" || e.Child == "" {
		return nil
	}
	query, params := BuildEdgeQuery(jobID, e)
	return w.runWrite(ctx, query, params)
}

// WriteResult stores the competition estimate on the phrase node. Unknown
// estimates leave any previous value untouched.
func (w *Writer) WriteResult(ctx context.Context, jobID string, r keyword.Result) error {
	if r.Keyword == "" {
		return nil
	}
	query, params := BuildResultQuery(jobID, r)
	return w.runWrite(ctx, query, params)
}

func (w *Writer) runWrite(ctx context.Context, query string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			w.logger.Warn("neo4j session close error", "err", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4j write: %w", err)
	}
	return nil
}

// BuildEdgeQuery returns the MERGE statement for one suggestion edge.
func BuildEdgeQuery(jobID string, e keyword.Edge) (string, map[string]any) {
	query := "MERGE (p:Phrase {text: $parent}) " +
		"MERGE (c:Phrase {text: $child}) " +
		"MERGE (p)-[r:SUGGESTS {job_id: $job_id}]->(c) " +
		"SET r.level = $level"
	params := map[string]any{
		"parent": e.Parent,
		"child":  e.Child,
		"job_id": jobID,
		"level":  int64(e.Level),
	}
	return query, params
}

// BuildResultQuery returns the MERGE statement for a competition estimate.
func BuildResultQuery(jobID string, r keyword.Result) (string, map[string]any) {
	query := "MERGE (p:Phrase {text: $text}) " +
		"SET p.competition = coalesce($competition, p.competition), " +
		"p.last_job_id = $job_id"
	var competition any
	if n, ok := r.Competition.Value(); ok {
		competition = n
	}
	params := map[string]any{
		"text":        r.Keyword,
		"competition": competition,
		"job_id":      jobID,
	}
	return query, params
}

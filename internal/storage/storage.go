package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// Record is one persisted result row.
type Record struct {
	ID          string              `json:"id"`
	JobID       string              `json:"job_id"`
	Position    int                 `json:"position"`
	Keyword     string              `json:"keyword"`
	Competition keyword.Competition `json:"competition"`
	Region      keyword.Region      `json:"region"`
	Seed        string              `json:"seed"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Result returns the phrase/competition pair held by the record.
func (r *Record) Result() keyword.Result {
	return keyword.Result{Keyword: r.Keyword, Competition: r.Competition}
}

// Filter allows querying for specific Records. Zero fields do not filter.
type Filter struct {
	JobID     string
	Contains  string
	KnownOnly bool
	Since     *time.Time
	Limit     int
	Offset    int
}

// Match reports whether r passes every predicate in f. Limit and Offset are
// applied separately by Page.
func (f Filter) Match(r *Record) bool {
	if f.JobID != "" && r.JobID != f.JobID {
		return false
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(r.Keyword), strings.ToLower(f.Contains)) {
		return false
	}
	if f.KnownOnly && !r.Competition.Known() {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies f's Offset and Limit to records already in result order.
func (f Filter) Page(records []*Record) []*Record {
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*Record{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}

// Backend defines the interface for storing and querying result records.
// Query returns records in the order they were produced.
type Backend interface {
	Save(ctx context.Context, r *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// DefaultFilename is the export name used when none is given, e.g.
// hasil_riset_running_shoes_20240131.csv.
func DefaultFilename(seed string, t time.Time) string {
	base := strings.ReplaceAll(strings.TrimSpace(seed), " ", "_")
	return fmt.Sprintf("hasil_riset_%s_%s.csv", base, t.Format("20060102"))
}

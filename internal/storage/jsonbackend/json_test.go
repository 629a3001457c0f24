package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "results.ndjson")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	records := []*storage.Record{
		{ID: "r1", JobID: "job1", Position: 0, Keyword: "blue shoes", Competition: keyword.Count(42), Region: keyword.RegionGlobal, Seed: "shoes", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "r2", JobID: "job1", Position: 1, Keyword: "red shoes", Competition: keyword.Unknown(), Region: keyword.RegionGlobal, Seed: "shoes", CreatedAt: now.Add(-time.Hour)},
		{ID: "r3", JobID: "job2", Position: 0, Keyword: "sepatu", Competition: keyword.Count(0), Region: keyword.RegionIndonesia, Seed: "sepatu", CreatedAt: now},
	}
	for _, r := range records {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save %s: %v", r.ID, err)
		}
	}

	job1, err := b.Query(ctx, storage.Filter{JobID: "job1"})
	if err != nil {
		t.Fatalf("Failed to query by job: %v", err)
	}
	if len(job1) != 2 {
		t.Fatalf("Expected 2 results for job1, got %d", len(job1))
	}
	if job1[0].ID != "r1" || job1[1].ID != "r2" {
		t.Errorf("Expected append order r1,r2, got %s,%s", job1[0].ID, job1[1].ID)
	}
	if job1[1].Competition.Known() {
		t.Errorf("Expected unknown competition to survive a round trip")
	}

	since := now.Add(-90 * time.Minute)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 recent results, got %d", len(recent))
	}

	known, err := b.Query(ctx, storage.Filter{KnownOnly: true, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query known: %v", err)
	}
	if len(known) != 1 || known[0].ID != "r1" {
		t.Errorf("Expected r1 first among known, got %v", known)
	}
}

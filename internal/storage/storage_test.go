package storage

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/kwdig/internal/keyword"
)

func TestFilter_Match(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	r := &Record{JobID: "job1", Keyword: "Red Shoes", Competition: keyword.Unknown(), CreatedAt: now}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"job match", Filter{JobID: "job1"}, true},
		{"job mismatch", Filter{JobID: "job2"}, false},
		{"contains is case-insensitive", Filter{Contains: "red"}, true},
		{"contains mismatch", Filter{Contains: "blue"}, false},
		{"known only excludes unknown", Filter{KnownOnly: true}, false},
		{"since before", Filter{Since: &earlier}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(r); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Page(t *testing.T) {
	records := []*Record{{Keyword: "a"}, {Keyword: "b"}, {Keyword: "c"}}

	got := Filter{Offset: 1, Limit: 1}.Page(records)
	if len(got) != 1 || got[0].Keyword != "b" {
		t.Errorf("expected [b], got %v", got)
	}
	if got := (Filter{Offset: 5}).Page(records); len(got) != 0 {
		t.Errorf("expected empty page, got %d records", len(got))
	}
	if got := (Filter{}).Page(records); len(got) != 3 {
		t.Errorf("expected all records, got %d", len(got))
	}
}

func TestDefaultFilename(t *testing.T) {
	got := DefaultFilename(" sepatu lari pria ", time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC))
	want := "hasil_riset_sepatu_lari_pria_20240131.csv"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// Ensure Backend interface exists and is implementable
type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, r *Record) error { return nil }
func (m *mockBackend) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	return nil, nil
}
func (m *mockBackend) Close() error { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}

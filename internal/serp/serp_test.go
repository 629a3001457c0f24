package serp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/kwdig/internal/fingerprint"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/scraper"
)

func TestParseResultCount(t *testing.T) {
	tests := []struct {
		text string
		want keyword.Competition
	}{
		{"About 1,234,567 results", keyword.Count(1234567)},
		{"Sekitar 12.300.000 hasil (0,45 detik)", keyword.Count(12300000)},
		{"42 results", keyword.Count(42)},
		{"About 1 234 results", keyword.Count(1)},
		{"Page 2 of about 9,870 results", keyword.Count(2)},
		{"No results found", keyword.Unknown()},
		{"", keyword.Unknown()},
		{"results 12abc", keyword.Unknown()},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParseResultCount(tt.text); got != tt.want {
				t.Errorf("ParseResultCount(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func newGoogle(t *testing.T, baseURL string, robots RobotsChecker) *Google {
	t.Helper()
	f, err := scraper.NewFetcher(scraper.FetchConfig{Fingerprint: fingerprint.ProfileGo}, nil)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return NewGoogle(f, GoogleConfig{BaseURL: baseURL, Timeout: time.Second, Robots: robots}, nil)
}

func TestGoogle_Estimate(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   keyword.Competition
	}{
		{
			name:   "banner with count",
			status: http.StatusOK,
			body:   `<html><body><div id="result-stats">About 1,234,567 results<nobr> (0.31 seconds)</nobr></div></body></html>`,
			want:   keyword.Count(1234567),
		},
		{
			name:   "no banner means zero",
			status: http.StatusOK,
			body:   `<html><body><p>Your search did not match any documents.</p></body></html>`,
			want:   keyword.Count(0),
		},
		{
			name:   "banner without numeral",
			status: http.StatusOK,
			body:   `<html><body><div id="result-stats">results</div></body></html>`,
			want:   keyword.Unknown(),
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			body:   `down`,
			want:   keyword.Unknown(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/search" {
					t.Errorf("expected /search, got %s", r.URL.Path)
				}
				if r.URL.Query().Get("q") != "running shoes" {
					t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
				}
				if !strings.Contains(r.UserAgent(), "Mozilla/5.0") {
					t.Errorf("expected browser user agent, got %q", r.UserAgent())
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			got := newGoogle(t, ts.URL, nil).Estimate(context.Background(), "running shoes", keyword.RegionGlobal)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGoogle_SearchURL(t *testing.T) {
	g := NewGoogle(nil, GoogleConfig{}, nil)
	got := g.SearchURL("sepatu lari", keyword.RegionIndonesia)
	want := "https://www.google.co.id/search?q=sepatu+lari"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestGoogle_EstimateCancelled(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := newGoogle(t, ts.URL, nil).Estimate(ctx, "x", keyword.RegionGlobal); got.Known() {
		t.Errorf("expected Unknown after cancellation, got %v", got)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no request after cancellation")
	}
}

type denyAll struct{}

func (denyAll) IsAllowed(context.Context, string, string) (bool, error) { return false, nil }

func TestGoogle_EstimateRobotsDisallowed(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer ts.Close()

	if got := newGoogle(t, ts.URL, denyAll{}).Estimate(context.Background(), "x", keyword.RegionGlobal); got.Known() {
		t.Errorf("expected Unknown when disallowed, got %v", got)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no search request when disallowed")
	}
}

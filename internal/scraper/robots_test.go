package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsTxtAuditor_IsAllowed(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /search
Allow: /search/about

User-agent: BadBot
Disallow: /
		`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	auditor := NewRobotsTxtAuditor(fetcher, nil)
	ctx := context.Background()

	allowed, err := auditor.IsAllowed(ctx, ts.URL+"/public-page", "GoodBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected /public-page to be allowed")
	}

	if allowed, _ = auditor.IsAllowed(ctx, ts.URL+"/search?q=shoes", "GoodBot"); allowed {
		t.Errorf("expected /search to be disallowed")
	}

	if allowed, _ = auditor.IsAllowed(ctx, ts.URL+"/search/about", "GoodBot"); !allowed {
		t.Errorf("expected /search/about to be allowed")
	}

	if allowed, _ = auditor.IsAllowed(ctx, ts.URL+"/public-page", "BadBot"); allowed {
		t.Errorf("expected /public-page to be disallowed for BadBot")
	}

	if hits.Load() != 1 {
		t.Errorf("expected robots.txt to be fetched once and cached, got %d fetches", hits.Load())
	}
}

func TestRobotsTxtAuditor_MissingRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	auditor := NewRobotsTxtAuditor(fetcher, nil)

	allowed, err := auditor.IsAllowed(context.Background(), ts.URL+"/anything", "AnyBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected missing robots.txt to allow everything")
	}
}

func TestRobotsTxtAuditor_CancelledFetchNotCached(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /search\n"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	auditor := NewRobotsTxtAuditor(fetcher, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if allowed, _ := auditor.IsAllowed(cancelled, ts.URL+"/search?q=shoes", "GoodBot"); !allowed {
		t.Errorf("expected an unreachable robots.txt to allow")
	}

	if allowed, _ := auditor.IsAllowed(context.Background(), ts.URL+"/search?q=shoes", "GoodBot"); allowed {
		t.Errorf("expected /search to be disallowed once robots.txt is fetched")
	}
	if hits.Load() != 1 {
		t.Errorf("expected one robots.txt fetch after the cancelled attempt, got %d", hits.Load())
	}
}

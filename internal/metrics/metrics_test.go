package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8891, nil)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordFetch("serp", "www.google.com", 200, "", 11, time.Second)
	RecordFetch("suggest", "suggestqueries.google.com", 0, "", 0, 10*time.Millisecond)
	RecordEstimate(0, true)
	RecordEstimate(0, false)
	PhrasesDiscovered.Add(3)

	resp, err := http.Get("http://localhost:8891/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`kwdig_fetch_requests_total{detection_src="",host="www.google.com",kind="serp",status="200"}`,
		`kwdig_fetch_requests_total{detection_src="",host="suggestqueries.google.com",kind="suggest",status="error"}`,
		`kwdig_fetch_duration_seconds_bucket`,
		`kwdig_fetch_bytes_total{kind="serp"} 11`,
		`kwdig_competition_estimates_total{outcome="zero"}`,
		`kwdig_competition_estimates_total{outcome="unknown"}`,
		`kwdig_phrases_discovered_total`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}

func TestStop_NilServer(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping nil server, got %v", err)
	}
}

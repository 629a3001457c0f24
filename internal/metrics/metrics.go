package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwdig_fetch_requests_total",
			Help: "Outbound fetches by endpoint kind and outcome",
		},
		[]string{"kind", "host", "status", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kwdig_fetch_duration_seconds",
			Help:    "Duration of outbound fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwdig_fetch_bytes_total",
			Help: "Total bytes downloaded",
		},
		[]string{"kind"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwdig_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	PhrasesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kwdig_phrases_discovered_total",
			Help: "New phrases discovered by suggestion expansion",
		},
	)

	CompetitionEstimates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwdig_competition_estimates_total",
			Help: "Competition estimates by outcome (count, zero, unknown)",
		},
		[]string{"outcome"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwdig_jobs_total",
			Help: "Finished research jobs by outcome",
		},
		[]string{"outcome"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kwdig_jobs_running",
			Help: "Research jobs currently executing",
		},
	)
)

// RecordFetch updates the fetch metrics. status is the HTTP status code or 0
// when no response was received.
func RecordFetch(kind, host string, status int, detectionSrc string, bytes int, d time.Duration) {
	statusStr := "error"
	if status > 0 {
		statusStr = fmt.Sprintf("%d", status)
	}
	FetchRequestsTotal.WithLabelValues(kind, host, statusStr, detectionSrc).Inc()
	FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(kind).Add(float64(bytes))
}

// RecordEstimate classifies a competition estimate.
func RecordEstimate(count int64, known bool) {
	switch {
	case !known:
		CompetitionEstimates.WithLabelValues("unknown").Inc()
	case count == 0:
		CompetitionEstimates.WithLabelValues("zero").Inc()
	default:
		CompetitionEstimates.WithLabelValues("count").Inc()
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

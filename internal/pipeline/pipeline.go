// Package pipeline runs a research job: suggestion expansion followed by
// optional competition estimation, reporting through a Sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/kwdig/internal/expand"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/internal/serp"
	"github.com/FranksOps/kwdig/pkg/ratelimit"
)

// DefaultSerpDelay separates consecutive results-page fetches.
const DefaultSerpDelay = 500 * time.Millisecond

// Expander discovers the vocabulary for a job.
type Expander interface {
	Expand(ctx context.Context, seeds []string, maxDepth int, region keyword.Region, obs expand.Observer) []string
}

// Config tunes a Runner.
type Config struct {
	// SerpDelay between estimates. Zero selects DefaultSerpDelay, negative
	// disables it.
	SerpDelay time.Duration
	Jitter    float64
}

// Runner drives expansion then estimation for one job at a time.
type Runner struct {
	expander  Expander
	estimator serp.Estimator
	cfg       Config
	logger    *slog.Logger
}

// NewRunner wires a runner.
func NewRunner(expander Expander, estimator serp.Estimator, cfg Config, logger *slog.Logger) *Runner {
	if cfg.SerpDelay == 0 {
		cfg.SerpDelay = DefaultSerpDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{expander: expander, estimator: estimator, cfg: cfg, logger: logger}
}

// Run executes the job described by p. Every outcome is delivered through
// sink, which always receives exactly one Finish. Cancelling ctx stops the job
// at the next checkpoint; results already reported stay valid.
func (r *Runner) Run(ctx context.Context, p keyword.Params, sink Sink) {
	metrics.JobsRunning.Inc()
	outcome := "completed"
	defer func() {
		metrics.JobsRunning.Dec()
		metrics.JobsTotal.WithLabelValues(outcome).Inc()
		sink.Finish()
	}()

	analysis := "off"
	if p.AnalyzeCompetition {
		analysis = "on"
	}
	sink.Log(fmt.Sprintf("Starting research for %q (region %s, depth %d, competition analysis %s)",
		p.Seed, p.Region, p.MaxDepth, analysis))
	r.logger.Info("job started", "seed", p.Seed, "region", p.Region, "depth", p.MaxDepth, "analyze", p.AnalyzeCompetition)

	phrases := r.expander.Expand(ctx, []string{p.Seed}, p.MaxDepth, p.Region, sink)
	if ctx.Err() != nil {
		outcome = "cancelled"
		sink.Log("Research stopped during expansion")
		return
	}
	total := len(phrases)
	sink.Log(fmt.Sprintf("Discovered %d unique phrases", total))

	if !p.AnalyzeCompetition {
		for i, phrase := range phrases {
			sink.Result(keyword.Result{Keyword: phrase, Competition: keyword.Unknown()})
			sink.Progress(i+1, total)
		}
		sink.Log("Research complete")
		return
	}

	sink.Log("Estimating competition")
	limiter := ratelimit.Every(r.cfg.SerpDelay, r.cfg.Jitter)
	r.logger.Debug("estimating competition", "phrases", total, "interval", limiter.Interval())
	for i, phrase := range phrases {
		if ctx.Err() != nil || limiter.Wait(ctx) != nil {
			outcome = "cancelled"
			sink.Log(fmt.Sprintf("Research stopped after %d of %d phrases", i, total))
			r.logger.Info("job cancelled", "seed", p.Seed, "estimated", i, "total", total)
			return
		}
		c := r.estimator.Estimate(ctx, phrase, p.Region)
		sink.Result(keyword.Result{Keyword: phrase, Competition: c})
		sink.Progress(i+1, total)
	}
	sink.Log("Research complete")
	r.logger.Info("job finished", "seed", p.Seed, "phrases", total)
}

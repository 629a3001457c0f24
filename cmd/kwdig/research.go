package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwdig/internal/collect"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/internal/pipeline"
	"github.com/FranksOps/kwdig/internal/report"
)

// pollInterval is how often the terminal controller drains pending events.
const pollInterval = 100 * time.Millisecond

var researchCmd = &cobra.Command{
	Use:   "research <seed phrase>",
	Short: "Expand a seed phrase and estimate competition",
	Long: `Run one research job: expand the seed through rounds of search
suggestions, estimate competition for every unique phrase, store the results
in the configured backend and print a summary report.

Press Ctrl+C to stop early. Results gathered so far are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := cfg.Params(strings.Join(args, " "))
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}

	backend, location, err := openBackend(ctx, cfg, p.Seed, time.Now())
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	if backend != nil {
		defer backend.Close()
	}

	t, err := openTargets(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer t.close(context.Background())

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, logger)
		defer srv.Stop(context.Background())
	}

	h := pipeline.Start(ctx, runner, p, cfg.EventBuffer)
	c := collect.ForHandle(h, t.options(backend, logger))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "Stopping research, waiting for the current request to finish...")
			h.Stop()
		case <-h.Done():
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		return c.Drain(context.WithoutCancel(ctx), h.Events())
	})
	g.Go(func() error {
		follow(out, c)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warn("some results could not be persisted", "err", err)
	}

	if backend != nil {
		fmt.Fprintf(out, "Results saved to %s\n", location)
	}
	fmt.Fprintln(out)
	summary := report.GenerateSummary(c.Results(), report.Options{Seed: p.Seed, Region: p.Region})
	return report.Write(out, cfg.ReportFormat, summary)
}

// follow prints log lines, results and progress until the job has finished,
// draining everything pending on each poll.
func follow(w io.Writer, c *collect.Collector) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	next := 0
	for {
		events, _, finished := c.Since(next)
		for _, e := range events {
			printEvent(w, e)
		}
		next += len(events)
		if finished {
			return
		}
		<-ticker.C
	}
}

func printEvent(w io.Writer, e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventLog:
		fmt.Fprintln(w, e.Message)
	case pipeline.EventResult:
		if e.Result != nil {
			fmt.Fprintf(w, "  %-50s %s\n", e.Result.Keyword, e.Result.Competition)
		}
	case pipeline.EventProgress:
		if e.Total > 0 && (e.Current == e.Total || e.Current%10 == 0) {
			fmt.Fprintf(w, "Progress: %d/%d (%d%%)\n", e.Current, e.Total, e.Current*100/e.Total)
		}
	}
}

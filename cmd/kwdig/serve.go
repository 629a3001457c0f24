package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwdig/internal/api"
	"github.com/FranksOps/kwdig/internal/collect"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job API",
	Long: `Start an HTTP server for starting, following and stopping research jobs.

Routes:
  POST   /jobs               start a job {"seed", "region", "max_depth", "analyze_competition"}
  GET    /jobs               list jobs
  GET    /jobs/{id}          job status
  GET    /jobs/{id}/results  results, filtered with ?q= and ranked with ?sort=competition
  GET    /jobs/{id}/report   summary, ?format=text|json|yaml|html
  GET    /jobs/{id}/events   Server-Sent Events stream
  DELETE /jobs/{id}          stop a job`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "Address to listen on")
	bindFlags(v, serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}

	t, err := openTargets(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer t.close(context.Background())

	// CSV exports are one file per job; every other backend is shared.
	var shared storage.Backend
	if cfg.Backend != "csv" {
		shared, _, err = openBackend(ctx, cfg, "", time.Now())
		if err != nil {
			return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
		}
		if shared != nil {
			defer shared.Close()
		}
	}

	srv := api.NewServer(api.Config{
		Job: runner,
		Options: func(jobID string, p keyword.Params) (collect.Options, func(), error) {
			if cfg.Backend != "csv" {
				return t.options(shared, logger.With("job_id", jobID)), nil, nil
			}
			b, path, err := openBackend(ctx, cfg, p.Seed, time.Now())
			if err != nil {
				return collect.Options{}, nil, err
			}
			logger.Info("exporting job results", "job_id", jobID, "path", path)
			return t.options(b, logger.With("job_id", jobID)), func() { _ = b.Close() }, nil
		},
		Status:    t.statusStore(),
		Buffer:    cfg.EventBuffer,
		KeepAlive: 15 * time.Second,
		Logger:    logger,
	})

	if cfg.MetricsPort > 0 {
		ms := metrics.Start(cfg.MetricsPort, logger)
		defer ms.Stop(context.Background())
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "err", err)
	}
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwdig/internal/analyzer"
	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/report"
	"github.com/FranksOps/kwdig/internal/storage"
)

var (
	reportJobID     string
	reportContains  string
	reportKnownOnly bool
	reportRanked    bool
	reportLimit     int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise results stored by an earlier run",
	Long: `Read results back from the configured backend and print a summary.

Examples:
  kwdig report --backend csv --output hasil_riset_shoes_20240131.csv
  kwdig report --backend sqlite --dsn kwdig.db --job <id> --report-format html`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportJobID, "job", "", "Only results of this job id")
	reportCmd.Flags().StringVar(&reportContains, "contains", "", "Only phrases containing this text")
	reportCmd.Flags().BoolVar(&reportKnownOnly, "known-only", false, "Skip phrases without a competition estimate")
	reportCmd.Flags().BoolVar(&reportRanked, "ranked", false, "List results from least to most competitive")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0, "Maximum number of results (0 for all)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfg.Backend == "none" {
		return errors.New("report needs a --backend to read from")
	}
	backend, _, err := openBackend(ctx, cfg, "", time.Now())
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer backend.Close()

	records, err := backend.Query(ctx, storage.Filter{
		JobID:     reportJobID,
		Contains:  reportContains,
		KnownOnly: reportKnownOnly,
		Limit:     reportLimit,
	})
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}

	results := make([]keyword.Result, 0, len(records))
	opts := report.Options{}
	for _, r := range records {
		results = append(results, r.Result())
		if opts.Seed == "" {
			opts.Seed, opts.Region = r.Seed, r.Region
		}
	}
	if reportRanked {
		results = analyzer.RankByCompetition(results)
	}
	logger.Debug("report loaded", "backend", cfg.Backend, "results", len(results))
	return report.Write(cmd.OutOrStdout(), cfg.ReportFormat, report.GenerateSummary(results, opts))
}

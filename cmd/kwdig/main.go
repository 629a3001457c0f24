// Package main provides the kwdig command line: keyword research from a seed
// phrase, stored-result reports and the HTTP job API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/kwdig/internal/config"
	"github.com/FranksOps/kwdig/internal/keyword"
)

var (
	v          = config.New()
	configFile string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kwdig",
	Short: "Keyword research from search suggestions",
	Long: `kwdig expands a seed phrase into related search phrases using the
autocomplete suggestion service, and optionally estimates how competitive each
phrase is from the result count of a regional search page.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger = cfg.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("region", "indonesia", "Search region: "+strings.Join(keyword.RegionNames(), ", ")+" or a search domain")
	pf.Int("depth", keyword.DefaultDepth, fmt.Sprintf("Suggestion rounds (%d-%d)", keyword.MinDepth, keyword.MaxDepth))
	pf.Bool("analyze", true, "Estimate competition for every discovered phrase")
	pf.String("backend", "none", "Result storage: none, csv, json, sqlite or postgres")
	pf.String("output", "", "Output path for file backends (csv defaults to hasil_riset_<seed>_<date>.csv)")
	pf.String("dsn", "", "Database DSN for the sqlite or postgres backend")
	pf.String("report-format", "text", "Report format: text, json, yaml or html")
	pf.Float64("requests-per-second", 0, "Global request rate cap (0 for none)")
	pf.String("tls-profile", "go", "TLS fingerprint: go, chrome, firefox, safari or random")
	pf.String("proxies-file", "", "File with one proxy URL per line")
	pf.Bool("respect-robots", false, "Skip search pages disallowed by robots.txt")
	pf.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 disables)")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	bindFlags(v, pf)
}

// bindFlags maps every flag onto the viper key of the same name with
// dashes turned into underscores.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/kwdig/internal/collect"
	"github.com/FranksOps/kwdig/internal/config"
	"github.com/FranksOps/kwdig/internal/expand"
	"github.com/FranksOps/kwdig/internal/fingerprint"
	"github.com/FranksOps/kwdig/internal/graph"
	"github.com/FranksOps/kwdig/internal/kafka"
	"github.com/FranksOps/kwdig/internal/pipeline"
	"github.com/FranksOps/kwdig/internal/scraper"
	"github.com/FranksOps/kwdig/internal/serp"
	"github.com/FranksOps/kwdig/internal/status"
	"github.com/FranksOps/kwdig/internal/storage"
	"github.com/FranksOps/kwdig/internal/storage/csvbackend"
	"github.com/FranksOps/kwdig/internal/storage/jsonbackend"
	"github.com/FranksOps/kwdig/internal/storage/postgres"
	"github.com/FranksOps/kwdig/internal/storage/sqlite"
	"github.com/FranksOps/kwdig/internal/suggest"
	"github.com/FranksOps/kwdig/pkg/proxy"
	"github.com/FranksOps/kwdig/pkg/ratelimit"
	"github.com/FranksOps/kwdig/pkg/useragent"
)

// delay maps a configured zero onto "no delay"; the packages treat zero as
// "use the default".
func delay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

func newFetcher(c *config.Config, logger *slog.Logger) (*scraper.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(c.TLSProfile)
	if err != nil {
		return nil, err
	}

	uas := c.UserAgents
	switch {
	case c.RotateUserAgent && len(uas) == 0:
		uas = useragent.Desktop
	case !c.RotateUserAgent && len(uas) > 1:
		uas = uas[:1]
	}
	uaPool := useragent.NewPool(uas)
	if !uaPool.Fixed() {
		logger.Info("user agent rotation enabled", "profiles", len(uas))
	}

	fc := scraper.FetchConfig{
		Timeout:      c.SerpTimeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		UAPool:       uaPool,
		RandomUA:     c.RotateUserAgent,
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(c.RequestsPerSecond, c.Jitter),
	}
	if c.SuggestTimeout > fc.Timeout {
		fc.Timeout = c.SuggestTimeout
	}
	if c.ProxiesFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(c.ProxiesFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("proxy rotation enabled", "proxies", pool.Len())
		fc.ProxyPool = pool
	}
	return scraper.NewFetcher(fc, logger)
}

// newRunner assembles the fetch, suggest, estimate and expand stages.
func newRunner(c *config.Config, logger *slog.Logger) (*pipeline.Runner, error) {
	fetcher, err := newFetcher(c, logger)
	if err != nil {
		return nil, err
	}

	suggester := suggest.New(fetcher, suggest.Config{
		BaseURL: c.SuggestURL,
		Timeout: c.SuggestTimeout,
	}, logger)

	gc := serp.GoogleConfig{
		BaseURL: c.SearchURL,
		Timeout: c.SerpTimeout,
	}
	if c.RespectRobots {
		gc.Robots = scraper.NewRobotsTxtAuditor(fetcher, logger)
	}
	estimator := serp.NewGoogle(fetcher, gc, logger)

	expander := expand.New(suggester, expand.Config{Delay: delay(c.SuggestDelay), Jitter: c.Jitter}, logger)
	return pipeline.NewRunner(expander, estimator, pipeline.Config{SerpDelay: delay(c.SerpDelay), Jitter: c.Jitter}, logger), nil
}

// openBackend opens the configured result store. It returns nil when the
// backend is "none".
func openBackend(ctx context.Context, c *config.Config, seed string, now time.Time) (storage.Backend, string, error) {
	path := c.Output
	switch c.Backend {
	case "", "none":
		return nil, "", nil
	case "csv":
		if path == "" {
			if seed == "" {
				return nil, "", errors.New("csv backend needs --output")
			}
			path = storage.DefaultFilename(seed, now)
		}
		b, err := csvbackend.New(path)
		return b, path, err
	case "json":
		if path == "" {
			path = "kwdig_results.ndjson"
		}
		b, err := jsonbackend.New(path)
		return b, path, err
	case "sqlite":
		dsn := c.DSN
		if dsn == "" {
			dsn = "kwdig.db"
		}
		b, err := sqlite.New(dsn)
		return b, dsn, err
	case "postgres":
		b, err := postgres.New(ctx, c.DSN)
		return b, "postgres", err
	default:
		return nil, "", fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// targets holds the shared fan-out destinations configured for every job.
type targets struct {
	status    *status.RedisStore
	publisher *kafka.Publisher
	graph     *graph.Writer
}

func openTargets(ctx context.Context, c *config.Config, logger *slog.Logger) (*targets, error) {
	t := &targets{}
	if c.RedisAddr != "" {
		t.status = status.NewRedisStore(c.RedisAddr, c.RedisPrefix, c.RedisTTL)
		if err := t.status.Ping(ctx); err != nil {
			t.close(ctx)
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	if len(c.KafkaBrokers) > 0 {
		t.publisher = kafka.NewPublisher(c.KafkaBrokers, c.KafkaTopic)
	}
	if c.Neo4jURI != "" {
		w, err := graph.Connect(ctx, c.Neo4jURI, c.Neo4jUser, c.Neo4jPassword, logger)
		if err != nil {
			t.close(ctx)
			return nil, err
		}
		t.graph = w
	}
	return t, nil
}

// options returns collector options writing to t and backend. Nil targets
// are left unset so the collector skips them.
func (t *targets) options(backend storage.Backend, logger *slog.Logger) collect.Options {
	opts := collect.Options{Logger: logger}
	if backend != nil {
		opts.Backend = backend
	}
	if t.status != nil {
		opts.Status = t.status
	}
	if t.publisher != nil {
		opts.Publisher = t.publisher
	}
	if t.graph != nil {
		opts.Graph = t.graph
	}
	return opts
}

func (t *targets) statusStore() status.Store {
	if t.status == nil {
		return nil
	}
	return t.status
}

func (t *targets) close(ctx context.Context) {
	if t.status != nil {
		_ = t.status.Close()
	}
	if t.publisher != nil {
		_ = t.publisher.Close()
	}
	if t.graph != nil {
		_ = t.graph.Close(ctx)
	}
}

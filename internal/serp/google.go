package serp

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/internal/scraper"
	"github.com/FranksOps/kwdig/pkg/useragent"
)

const (
	DefaultTimeout   = 10 * time.Second
	ResultStatsQuery = "#result-stats"
)

// Fetcher is the subset of scraper.Fetcher used by Google.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, r scraper.Request) (*scraper.Response, error)
}

// RobotsChecker reports whether a URL may be requested.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error)
}

// GoogleConfig configures the Google estimator.
type GoogleConfig struct {
	// BaseURL replaces "https://www.<region>" when set.
	BaseURL string
	// UserAgent overrides the fetcher's header profile for results pages.
	UserAgent string
	Timeout   time.Duration
	// Robots, when non-nil, is consulted before each request. A disallowed
	// search path yields Unknown.
	Robots RobotsChecker
}

// Google scrapes the results page of a regional Google domain.
type Google struct {
	fetcher Fetcher
	cfg     GoogleConfig
	logger  *slog.Logger
}

// NewGoogle creates a Google estimator.
func NewGoogle(fetcher Fetcher, cfg GoogleConfig, logger *slog.Logger) *Google {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{fetcher: fetcher, cfg: cfg, logger: logger}
}

// SearchURL builds the results-page URL for phrase in region.
func (g *Google) SearchURL(phrase string, region keyword.Region) string {
	base := g.cfg.BaseURL
	if base == "" {
		base = "https://www." + string(region)
	}
	return strings.TrimRight(base, "/") + "/search?q=" + url.QueryEscape(phrase)
}

// Estimate fetches the results page and reads the result-count banner.
// A page without the banner counts as zero competition; a failed fetch or a
// banner without a numeral is Unknown.
func (g *Google) Estimate(ctx context.Context, phrase string, region keyword.Region) keyword.Competition {
	c := g.estimate(ctx, phrase, region)
	n, known := c.Value()
	metrics.RecordEstimate(n, known)
	return c
}

func (g *Google) estimate(ctx context.Context, phrase string, region keyword.Region) keyword.Competition {
	if ctx.Err() != nil {
		return keyword.Unknown()
	}

	target := g.SearchURL(phrase, region)
	if g.cfg.Robots != nil {
		ua := g.cfg.UserAgent
		if ua == "" {
			ua = useragent.Default
		}
		allowed, err := g.cfg.Robots.IsAllowed(ctx, target, ua)
		if err != nil || !allowed {
			g.logger.Debug("search blocked by robots.txt", "phrase", phrase, "url", target)
			return keyword.Unknown()
		}
	}

	header := http.Header{}
	if g.cfg.UserAgent != "" {
		header.Set("User-Agent", g.cfg.UserAgent)
	}
	res, err := g.fetcher.Fetch(ctx, target, scraper.Request{Kind: "serp", Header: header, Timeout: g.cfg.Timeout})
	if err != nil {
		g.logger.Debug("results page fetch failed", "phrase", phrase, "region", region, "err", err)
		return keyword.Unknown()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		g.logger.Debug("results page unparsable", "phrase", phrase, "err", err)
		return keyword.Unknown()
	}

	stats := doc.Find(ResultStatsQuery).First()
	if stats.Length() == 0 {
		return keyword.Count(0)
	}
	return ParseResultCount(stats.Text())
}

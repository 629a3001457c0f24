package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches and caches robots.txt per host and answers whether
// a path may be requested. Any failure to obtain robots.txt fails open.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether targetURL may be fetched by userAgent.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data := r.getOrFetch(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.Path, userAgent), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[host]; ok {
		return data
	}

	res, err := r.fetcher.Fetch(ctx, host+"/robots.txt", Request{Kind: "robots", Timeout: 5 * time.Second})
	if err != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "host", host, "err", err)
		if ctx.Err() == nil {
			r.cache[host] = nil
		}
		return nil
	}

	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable, defaulting to allow", "host", host, "err", err)
		data = nil
	}
	r.cache[host] = data
	return data
}

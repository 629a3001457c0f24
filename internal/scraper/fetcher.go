package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/kwdig/internal/bypass"
	"github.com/FranksOps/kwdig/internal/fingerprint"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/pkg/httpclient"
	"github.com/FranksOps/kwdig/pkg/proxy"
	"github.com/FranksOps/kwdig/pkg/ratelimit"
	"github.com/FranksOps/kwdig/pkg/useragent"
	"github.com/google/uuid"
)

// ErrFetchFailure wraps every transport error, timeout, non-success status or
// detected challenge page. Callers treat it as "no result" and never retry.
var ErrFetchFailure = errors.New("fetch failure")

// maxBodyBytes caps how much of a response is read into memory.
const maxBodyBytes = 5 << 20

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the Fetcher.
type FetchConfig struct {
	// Timeout is the client-wide ceiling; Request.Timeout narrows it per call.
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	// RandomUA picks a random pool entry per request instead of cycling.
	RandomUA    bool
	Fingerprint fingerprint.Profile
	// Limiter caps the global request rate across all endpoints.
	Limiter   *ratelimit.Limiter
	Detectors []bypass.Detector
}

// Request describes one GET.
type Request struct {
	// Kind labels the endpoint for metrics, e.g. "suggest" or "serp".
	Kind string
	// Header overrides the default header profile field by field.
	Header  http.Header
	Timeout time.Duration
}

// Response is a successfully fetched document.
type Response struct {
	ID           string
	URL          string
	FinalURL     string
	StatusCode   int
	Header       http.Header
	Body         []byte
	Duration     time.Duration
	DetectedBot  bool
	DetectionSrc string
}

// Fetcher performs single URL fetches with a fixed header profile, optional
// proxy rotation and TLS fingerprinting.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
// The client is shared across requests so connections and cookies persist.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Per-request proxy rotation: the proxy chosen in Fetch rides on the
	// request context and is read back here.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{Proxy: proxyFunc})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

// DefaultHeader returns the identifying header profile sent with every request.
func (f *Fetcher) DefaultHeader() http.Header {
	h := http.Header{}
	ua := f.config.UAPool.GetSequential()
	if f.config.RandomUA {
		ua = f.config.UAPool.GetRandom()
	}
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	return h
}

// Fetch executes a GET against targetURL. Any failure, including a non-2xx
// status or a recognised challenge page, is returned wrapped in
// ErrFetchFailure. No retries are attempted.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, r Request) (*Response, error) {
	kind := r.Kind
	if kind == "" {
		kind = "page"
	}
	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = u.Hostname()
	}

	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrFetchFailure, err)
		}
	}

	parent := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
		if activeProxy != nil {
			ctx = context.WithValue(ctx, proxyKey, activeProxy)
		}
	}

	header := f.DefaultHeader()
	for k, vals := range r.Header {
		header[http.CanonicalHeaderKey(k)] = vals
	}

	start := time.Now()
	res := &Response{ID: uuid.New().String(), URL: targetURL, FinalURL: targetURL}

	resp, err := f.client.Get(ctx, targetURL, header)
	if err != nil {
		// Cancellation is not a proxy failure.
		if activeProxy != nil && parent.Err() == nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		res.Duration = time.Since(start)
		metrics.RecordFetch(kind, host, 0, "", 0, res.Duration)
		return nil, fmt.Errorf("%w: request failed: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res.StatusCode = resp.StatusCode
	res.Header = resp.Header
	res.Body = body
	res.Duration = time.Since(start)
	if resp.Request != nil && resp.Request.URL != nil {
		res.FinalURL = resp.Request.URL.String()
	}

	res.DetectedBot, res.DetectionSrc = bypass.Analyze(bypass.Page{
		URL:        res.FinalURL,
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       res.Body,
	}, f.config.Detectors)

	metrics.RecordFetch(kind, host, res.StatusCode, res.DetectionSrc, len(body), res.Duration)

	switch {
	case readErr != nil:
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailure, readErr)
	case res.DetectedBot:
		f.logger.Warn("challenge page detected", "kind", kind, "url", targetURL, "source", res.DetectionSrc)
		return nil, fmt.Errorf("%w: challenged by %s", ErrFetchFailure, res.DetectionSrc)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailure, res.StatusCode)
	}

	f.logger.Debug("fetched", "kind", kind, "url", targetURL, "status", res.StatusCode, "bytes", len(body), "duration", res.Duration)
	return res, nil
}

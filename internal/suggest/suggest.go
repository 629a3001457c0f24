// Package suggest queries an autocomplete endpoint for phrase suggestions.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/scraper"
)

const (
	DefaultBaseURL = "http://suggestqueries.google.com/complete/search"
	DefaultClient  = "firefox"
	DefaultSource  = "yt"
	DefaultTimeout = 5 * time.Second
)

// Fetcher is the subset of scraper.Fetcher used here.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, r scraper.Request) (*scraper.Response, error)
}

// Config configures a Client. Zero values select the defaults above.
type Config struct {
	BaseURL string
	Client  string
	Source  string
	Timeout time.Duration
}

// Client turns a phrase into the provider's ordered suggestion list.
type Client struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a suggestion client.
func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Client == "" {
		cfg.Client = DefaultClient
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{fetcher: fetcher, cfg: cfg, logger: logger}
}

// URL builds the autocomplete request for phrase.
func (c *Client) URL(phrase string) string {
	q := url.Values{}
	q.Set("client", c.cfg.Client)
	q.Set("ds", c.cfg.Source)
	q.Set("ie", "utf-8")
	q.Set("oe", "utf-8")
	q.Set("q", phrase)
	return c.cfg.BaseURL + "?" + q.Encode()
}

// Suggest returns the provider's suggestions for phrase in provider order.
// The autocomplete endpoint is global, so region does not alter the request.
// Cancellation, fetch failures and malformed payloads all yield an empty
// result.
func (c *Client) Suggest(ctx context.Context, phrase string, _ keyword.Region) []string {
	if ctx.Err() != nil {
		return nil
	}

	res, err := c.fetcher.Fetch(ctx, c.URL(phrase), scraper.Request{Kind: "suggest", Timeout: c.cfg.Timeout})
	if err != nil {
		c.logger.Debug("suggestion fetch failed", "phrase", phrase, "err", err)
		return nil
	}

	body, err := decode(res.Body, res.Header.Get("Content-Type"))
	if err != nil {
		c.logger.Debug("suggestion payload not decodable", "phrase", phrase, "err", err)
		return nil
	}

	suggestions, ok := Parse(body)
	if !ok {
		c.logger.Debug("unexpected suggestion payload", "phrase", phrase, "bytes", len(res.Body))
		return nil
	}
	return suggestions
}

// decode transcodes body to UTF-8 using the charset declared in contentType.
// The endpoint answers in ISO-8859-1 for some clients.
func decode(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", contentType, err)
	}
	return io.ReadAll(r)
}

// Parse decodes an autocomplete payload of the form
// ["query", ["s1", "s2", ...], ...] and returns the second element.
func Parse(body []byte) ([]string, bool) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) < 2 {
		return nil, false
	}
	var suggestions []string
	if err := json.Unmarshal(payload[1], &suggestions); err != nil {
		return nil, false
	}
	return suggestions, true
}

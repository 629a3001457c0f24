package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	ErrNilProxy = errors.New("proxy: url cannot be nil")
	ErrNotFound = errors.New("proxy: not found in pool")
)

// Proxy is a single upstream endpoint with health tracking.
type Proxy struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	DisabledUntil time.Time
}

func (p *Proxy) disabled(now time.Time) bool {
	return !p.DisabledUntil.IsZero() && now.Before(p.DisabledUntil)
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// Pool rotates through proxies round-robin, skipping those cooling down.
type Pool struct {
	mu          sync.Mutex
	proxies     []*Proxy
	byKey       map[string]*Proxy
	next        int
	maxFailures int
	cooldown    time.Duration
}

// NewPool creates a new proxy pool. Zero config values use defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byKey:       make(map[string]*Proxy),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// LoadFile reads proxies from a file, one URL per line. Blank lines and lines
// starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs (scheme defaults to http) and appends them.
// Duplicates are ignored.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		key := u.String()
		if _, dup := p.byKey[key]; dup {
			continue
		}
		prx := &Proxy{URL: u}
		p.proxies = append(p.proxies, prx)
		p.byKey[key] = prx
	}
	return nil
}

// Len returns the number of proxies in the pool, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the next healthy proxy URL, or nil when the pool is empty or
// every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(p.proxies); i++ {
		prx := p.proxies[p.next]
		p.next = (p.next + 1) % len(p.proxies)

		if prx.disabled(now) {
			continue
		}
		if !prx.DisabledUntil.IsZero() {
			// back from the bench with a clean slate
			prx.DisabledUntil = time.Time{}
			prx.Failures = 0
		}
		prx.LastUsed = now
		return prx.URL
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	if proxyURL == nil {
		return ErrNilProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx, ok := p.byKey[proxyURL.String()]
	if !ok {
		return ErrNotFound
	}
	prx.Successes++
	if prx.Failures > 0 {
		prx.Failures--
	}
	return nil
}

// MarkFailure records a failed request through proxyURL, benching it once
// MaxFailures is reached.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	if proxyURL == nil {
		return ErrNilProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx, ok := p.byKey[proxyURL.String()]
	if !ok {
		return ErrNotFound
	}
	prx.Failures++
	if prx.Failures >= p.maxFailures {
		prx.DisabledUntil = time.Now().Add(p.cooldown)
	}
	return nil
}

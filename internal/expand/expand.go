// Package expand grows a set of seed phrases into a deduplicated vocabulary
// by breadth-first traversal of autocomplete suggestions.
package expand

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/metrics"
	"github.com/FranksOps/kwdig/pkg/ratelimit"
)

// DefaultDelay is the pause between two suggestion calls.
const DefaultDelay = 100 * time.Millisecond

// Suggester returns the ordered suggestions for a phrase.
type Suggester interface {
	Suggest(ctx context.Context, phrase string, region keyword.Region) []string
}

// Observer receives progress from a traversal. Both methods are called from
// the traversing goroutine.
type Observer interface {
	Log(msg string)
	Discovered(e keyword.Edge)
}

// Config tunes an Expander.
type Config struct {
	// Delay between expansions. Zero selects DefaultDelay, negative disables it.
	Delay  time.Duration
	Jitter float64
}

// Expander performs the bounded BFS.
type Expander struct {
	suggester Suggester
	cfg       Config
	logger    *slog.Logger
}

// New creates an Expander.
func New(s Suggester, cfg Config, logger *slog.Logger) *Expander {
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{suggester: s, cfg: cfg, logger: logger}
}

// Expand runs up to maxDepth rounds of expansion starting from seeds and
// returns every phrase seen, sorted lexicographically.
//
// Cancellation is checked before each round and before each suggestion call.
// Phrases discovered during a partially completed round are still included.
// A round that yields nothing new ends the traversal early.
func (e *Expander) Expand(ctx context.Context, seeds []string, maxDepth int, region keyword.Region, obs Observer) []string {
	if obs == nil {
		obs = nopObserver{}
	}

	visited := make(map[string]struct{}, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		s = keyword.Normalize(s)
		if s == "" {
			continue
		}
		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}
		frontier = append(frontier, s)
	}

	limiter := ratelimit.Every(e.cfg.Delay, e.cfg.Jitter)

	for level := 0; level < maxDepth && len(frontier) > 0; level++ {
		if ctx.Err() != nil {
			break
		}
		obs.Log(fmt.Sprintf("Level %d: expanding %d phrases", level+1, len(frontier)))

		next, cancelled := e.round(ctx, frontier, level, region, limiter, visited, obs)
		if len(next) == 0 && !cancelled {
			e.logger.Debug("no new suggestions, stopping early", "level", level+1)
			break
		}
		for _, p := range next {
			visited[p] = struct{}{}
		}
		metrics.PhrasesDiscovered.Add(float64(len(next)))
		obs.Log(fmt.Sprintf("Level %d: found %d new phrases", level+1, len(next)))

		if cancelled {
			break
		}
		frontier = next
	}

	out := make([]string, 0, len(visited))
	for p := range visited {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// round expands every phrase in frontier once. It returns the new phrases in
// first-seen order and whether cancellation cut the round short.
func (e *Expander) round(ctx context.Context, frontier []string, level int, region keyword.Region, limiter *ratelimit.Limiter, visited map[string]struct{}, obs Observer) ([]string, bool) {
	var next []string
	seen := make(map[string]struct{})

	for _, phrase := range frontier {
		if ctx.Err() != nil {
			return next, true
		}
		if err := limiter.Wait(ctx); err != nil {
			return next, true
		}

		for _, s := range e.suggester.Suggest(ctx, phrase, region) {
			s = keyword.Normalize(s)
			if s == "" {
				continue
			}
			if _, ok := visited[s]; ok {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			next = append(next, s)
			obs.Discovered(keyword.Edge{Parent: phrase, Child: s, Level: level})
		}
	}
	return next, false
}

type nopObserver struct{}

func (nopObserver) Log(string)              {}
func (nopObserver) Discovered(keyword.Edge) {}

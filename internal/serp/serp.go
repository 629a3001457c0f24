// Package serp estimates how competitive a phrase is by reading the
// result-count banner of a search results page.
package serp

import (
	"context"
	"strconv"
	"strings"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// Estimator abstracts a search provider that can report the approximate
// number of results for a phrase in a region. Implementations never return
// an error: anything that prevents an estimate yields keyword.Unknown().
type Estimator interface {
	Estimate(ctx context.Context, phrase string, region keyword.Region) keyword.Competition
}

// EstimatorFunc adapts an ordinary function to the Estimator interface.
type EstimatorFunc func(ctx context.Context, phrase string, region keyword.Region) keyword.Competition

func (f EstimatorFunc) Estimate(ctx context.Context, phrase string, region keyword.Region) keyword.Competition {
	return f(ctx, phrase, region)
}

var separators = strings.NewReplacer(",", "", ".", "", "'", "")

// ParseResultCount extracts the first whole-number token from a banner such
// as "About 1,234,567 results (0.42 seconds)". Thousands separators are
// removed before matching. Text without any numeral yields Unknown.
func ParseResultCount(text string) keyword.Competition {
	for _, tok := range strings.Fields(text) {
		tok = separators.Replace(tok)
		if tok == "" || !allDigits(tok) {
			continue
		}
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			continue
		}
		return keyword.Count(n)
	}
	return keyword.Unknown()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

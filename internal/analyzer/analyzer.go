// Package analyzer slices a results collection: substring filtering,
// ranking by competition and counting the modifier words that suggestions
// add around the seed.
package analyzer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// Filter returns the results whose keyword contains text, ignoring case.
// An empty or blank text returns every result. Order is preserved.
func Filter(results []keyword.Result, text string) []keyword.Result {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]keyword.Result, 0, len(results))
	for _, r := range results {
		if needle == "" || strings.Contains(strings.ToLower(r.Keyword), needle) {
			out = append(out, r)
		}
	}
	return out
}

// RankByCompetition returns a copy of results ordered from the least to the
// most competitive. Unknown estimates sort last. Ties keep their input order.
func RankByCompetition(results []keyword.Result) []keyword.Result {
	out := append([]keyword.Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Competition.Value()
		b, bok := out[j].Competition.Value()
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return false
		}
	})
	return out
}

// TermCount is how many discovered phrases contain a modifier word.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Modifiers counts the words that appear in the discovered phrases but not in
// the seed. Each phrase counts a word at most once. The result is ordered by
// count descending, then alphabetically, and truncated to limit when
// limit > 0.
func Modifiers(results []keyword.Result, seed string, limit int) []TermCount {
	seedWords := make(map[string]struct{})
	for _, w := range words(seed) {
		seedWords[w] = struct{}{}
	}

	counts := make(map[string]int)
	for _, r := range results {
		seen := make(map[string]struct{})
		for _, w := range words(r.Keyword) {
			if _, ok := seedWords[w]; ok {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			counts[w]++
		}
	}

	out := make([]TermCount, 0, len(counts))
	for term, n := range counts {
		out = append(out, TermCount{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// words splits on anything that is not a letter or digit and lowercases.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

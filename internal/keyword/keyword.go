// Package keyword holds the domain types shared by the expansion and
// estimation stages: phrases, regional targets, competition values and the
// per-job parameters.
package keyword

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Region is the search-domain suffix a job targets, e.g. "google.co.id".
type Region string

const (
	RegionIndonesia Region = "google.co.id"
	RegionGlobal    Region = "google.com"
	RegionMalaysia  Region = "google.com.my"
	RegionSingapore Region = "google.com.sg"

	DefaultRegion = RegionIndonesia
)

// Regions maps the human-facing region names to their search domains.
var Regions = map[string]Region{
	"indonesia": RegionIndonesia,
	"global":    RegionGlobal,
	"malaysia":  RegionMalaysia,
	"singapore": RegionSingapore,
}

// RegionNames returns the region names in sorted order.
func RegionNames() []string {
	names := make([]string, 0, len(Regions))
	for name := range Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRegion accepts either a region name ("malaysia") or a search domain
// ("google.com.my"). Matching is case-insensitive.
func ParseRegion(s string) (Region, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := Regions[key]; ok {
		return r, nil
	}
	for _, r := range Regions {
		if string(r) == key {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q (expected one of %s)", s, strings.Join(RegionNames(), ", "))
}

// Valid reports whether r is one of the enumerated regions.
func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// Normalize trims surrounding whitespace from a phrase.
func Normalize(phrase string) string {
	return strings.TrimSpace(phrase)
}

// Competition is an estimated result count for a phrase. The zero value is
// Unknown, which is distinct from a known count of zero.
type Competition struct {
	count int64
	known bool
}

// Count returns a known competition value. Negative inputs clamp to zero.
func Count(n int64) Competition {
	if n < 0 {
		n = 0
	}
	return Competition{count: n, known: true}
}

// Unknown returns the "could not determine" competition value.
func Unknown() Competition {
	return Competition{}
}

// FromPtr converts a nullable column value.
func FromPtr(p *int64) Competition {
	if p == nil {
		return Unknown()
	}
	return Count(*p)
}

// Known reports whether the value is a count.
func (c Competition) Known() bool { return c.known }

// Value returns the count and whether it is known.
func (c Competition) Value() (int64, bool) { return c.count, c.known }

// Ptr returns a pointer to the count, or nil when unknown.
func (c Competition) Ptr() *int64 {
	if !c.known {
		return nil
	}
	n := c.count
	return &n
}

// String renders the plain integer, or "N/A" when unknown.
func (c Competition) String() string {
	if !c.known {
		return "N/A"
	}
	return strconv.FormatInt(c.count, 10)
}

// ParseCompetition is the inverse of String.
func ParseCompetition(s string) (Competition, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return Unknown(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Unknown(), fmt.Errorf("parse competition %q: %w", s, err)
	}
	return Count(n), nil
}

func (c Competition) MarshalJSON() ([]byte, error) {
	if !c.known {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.count, 10)), nil
}

func (c *Competition) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Unknown()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode competition: %w", err)
	}
	*c = Count(n)
	return nil
}

// MarshalYAML renders the count, or null when unknown.
func (c Competition) MarshalYAML() (any, error) {
	if !c.known {
		return nil, nil
	}
	return c.count, nil
}

// Result pairs a discovered phrase with its competition estimate.
type Result struct {
	Keyword     string      `json:"keyword"`
	Competition Competition `json:"competition"`
}

// Edge records that Child was first suggested for Parent during BFS round Level.
type Edge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Level  int    `json:"level"`
}

// Package report summarises a results collection and renders it as text,
// JSON, YAML or HTML.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/FranksOps/kwdig/internal/analyzer"
	"github.com/FranksOps/kwdig/internal/keyword"
)

// Formats lists the accepted output formats.
var Formats = []string{"text", "json", "yaml", "html"}

// DefaultEasiest is how many low-competition phrases a summary lists.
const DefaultEasiest = 10

// Summary contains aggregated figures about one research run.
type Summary struct {
	Seed        string               `json:"seed" yaml:"seed"`
	Region      keyword.Region       `json:"region" yaml:"region"`
	GeneratedAt time.Time            `json:"generated_at" yaml:"generated_at"`
	Total       int                  `json:"total" yaml:"total"`
	Known       int                  `json:"known" yaml:"known"`
	Unknown     int                  `json:"unknown" yaml:"unknown"`
	Zero        int                  `json:"zero" yaml:"zero"`
	Min         keyword.Competition  `json:"min" yaml:"min"`
	Max         keyword.Competition  `json:"max" yaml:"max"`
	Median      keyword.Competition  `json:"median" yaml:"median"`
	Easiest     []keyword.Result     `json:"easiest" yaml:"easiest"`
	Modifiers   []analyzer.TermCount `json:"modifiers" yaml:"modifiers"`
	Results     []keyword.Result     `json:"results" yaml:"results"`
}

// Options tune GenerateSummary.
type Options struct {
	Seed      string
	Region    keyword.Region
	Easiest   int
	Modifiers int
	Now       func() time.Time
}

// GenerateSummary processes the ordered results collection.
func GenerateSummary(results []keyword.Result, opts Options) Summary {
	if opts.Easiest <= 0 {
		opts.Easiest = DefaultEasiest
	}
	if opts.Modifiers <= 0 {
		opts.Modifiers = DefaultEasiest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := Summary{
		Seed:        opts.Seed,
		Region:      opts.Region,
		GeneratedAt: opts.Now(),
		Total:       len(results),
		Min:         keyword.Unknown(),
		Max:         keyword.Unknown(),
		Median:      keyword.Unknown(),
		Results:     append([]keyword.Result(nil), results...),
	}

	var counts []int64
	for _, r := range results {
		n, ok := r.Competition.Value()
		if !ok {
			s.Unknown++
			continue
		}
		s.Known++
		if n == 0 {
			s.Zero++
		}
		counts = append(counts, n)
	}

	if len(counts) > 0 {
		sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
		s.Min = keyword.Count(counts[0])
		s.Max = keyword.Count(counts[len(counts)-1])
		mid := len(counts) / 2
		if len(counts)%2 == 1 {
			s.Median = keyword.Count(counts[mid])
		} else {
			s.Median = keyword.Count((counts[mid-1] + counts[mid]) / 2)
		}

		ranked := analyzer.RankByCompetition(results)
		if len(ranked) > s.Known {
			ranked = ranked[:s.Known]
		}
		if len(ranked) > opts.Easiest {
			ranked = ranked[:opts.Easiest]
		}
		s.Easiest = ranked
	}

	s.Modifiers = analyzer.Modifiers(results, opts.Seed, opts.Modifiers)
	return s
}

// Write renders summary in format, one of Formats.
func Write(w io.Writer, format string, summary Summary) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "yaml":
		return WriteYAML(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("unknown report format %q (expected one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

// WriteYAML writes the summary as a YAML document.
func WriteYAML(w io.Writer, summary Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return nil
}

// competition renders a count with thousands separators, or N/A.
func competition(c keyword.Competition) string {
	n, ok := c.Value()
	if !ok {
		return "N/A"
	}
	return humanize.Comma(n)
}

var funcs = map[string]any{
	"competition": competition,
	"comma":       func(n int) string { return humanize.Comma(int64(n)) },
	"inc":         func(i int) int { return i + 1 },
}

const textTmpl = `Keyword Research Summary
------------------------
Seed:          {{.Seed}}
Region:        {{.Region}}
Generated:     {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
Phrases:       {{comma .Total}}
Estimated:     {{comma .Known}} ({{comma .Zero}} with zero results)
Unknown:       {{comma .Unknown}}
Competition:   min {{competition .Min}} / median {{competition .Median}} / max {{competition .Max}}

Easiest phrases:
{{- range $i, $r := .Easiest}}
  {{inc $i}}. {{$r.Keyword}} ({{competition $r.Competition}})
{{- else}}
  None
{{- end}}

Top modifiers:
{{- range .Modifiers}}
  {{.Term}}: {{.Count}}
{{- else}}
  None
{{- end}}

Results:
{{- range .Results}}
  {{.Keyword}}	{{competition .Competition}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Keyword Research: {{.Seed}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  td.num { text-align: right; }
</style>
</head>
<body>
  <h1>Keyword Research: {{.Seed}}</h1>
  <p><strong>Region:</strong> {{.Region}} &middot; <strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>

  <div class="stat-card">
    <div>Phrases</div>
    <div class="stat-val">{{comma .Total}}</div>
  </div>
  <div class="stat-card">
    <div>Estimated</div>
    <div class="stat-val">{{comma .Known}}</div>
  </div>
  <div class="stat-card">
    <div>Unknown</div>
    <div class="stat-val">{{comma .Unknown}}</div>
  </div>
  <div class="stat-card">
    <div>Median Competition</div>
    <div class="stat-val">{{competition .Median}}</div>
  </div>

  <h3>Easiest Phrases</h3>
  <table>
    <tr><th>#</th><th>Keyword</th><th>Competition</th></tr>
    {{- range $i, $r := .Easiest}}
    <tr><td>{{inc $i}}</td><td>{{$r.Keyword}}</td><td class="num">{{competition $r.Competition}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>

  <h3>All Results</h3>
  <table>
    <tr><th>Keyword</th><th>Competition</th></tr>
    {{- range .Results}}
    <tr><td>{{.Keyword}}</td><td class="num">{{competition .Competition}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes an HTML report. Keywords come from third-party
// suggestions, so html/template escapes them.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

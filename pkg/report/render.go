package report

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/YoungLulu/auto-digest/pkg/scoring"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcs = map[string]any{
	"num":   formatNumber,
	"label": func(d scoring.Dimension) string { return d.Label() },
	"icon":  kindIcon,
}

var (
	mdTmpl = texttemplate.Must(texttemplate.New("digest.md.tmpl").
		Funcs(funcs).ParseFS(templateFS, "templates/digest.md.tmpl"))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("digest.html.tmpl").
			Funcs(funcs).ParseFS(templateFS, "templates/digest.html.tmpl"))
)

var titleCaser = cases.Title(language.English)

const maxListedAuthors = 5

type view struct {
	Date         string
	GeneratedAt  string
	Total        int
	SourceCounts string
	Sections     []section
}

type section struct {
	Kind       source.Kind
	Display    string
	Anchor     string
	Count      int
	Categories []category
}

type category struct {
	Tag    string
	Name   string
	Anchor string
	Items  []entry
}

type entry struct {
	S           *summarize.Summary
	AuthorsLine string
	Scores      []dimensionScore
}

type dimensionScore struct {
	Dimension scoring.Dimension
	Value     float64
	Weight    int // percent
	Weighted  float64
}

func buildView(summaries []summarize.Summary, date string, generated time.Time) view {
	v := view{
		Date:         date,
		GeneratedAt:  generated.Format("2006-01-02 15:04:05"),
		Total:        len(summaries),
		SourceCounts: formatSourceCounts(summaries),
	}

	for _, kind := range reportKinds(summaries) {
		byTag := make(map[string][]entry)
		count := 0
		for i := range summaries {
			s := &summaries[i]
			if s.Source != kind {
				continue
			}
			count++
			tag := s.PrimaryCategory()
			byTag[tag] = append(byTag[tag], newEntry(s))
		}
		if count == 0 {
			continue
		}

		slug := kindSlug(kind)
		sec := section{
			Kind:    kind,
			Display: kind.DisplayName(),
			Anchor:  slug + "-section",
			Count:   count,
		}
		if kind == "" {
			sec.Display = "Other"
		}
		tags := make([]string, 0, len(byTag))
		for t := range byTag {
			tags = append(tags, t)
		}
		sort.Strings(tags)
		for _, t := range tags {
			items := byTag[t]
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].S.RankScore() > items[j].S.RankScore()
			})
			sec.Categories = append(sec.Categories, category{
				Tag:    t,
				Name:   CategoryName(t),
				Anchor: slug + "-" + strings.ReplaceAll(t, "_", "-"),
				Items:  items,
			})
		}
		v.Sections = append(v.Sections, sec)
	}
	return v
}

// reportKinds lists the known kinds first, then any other kind present in
// summaries in name order, so no summary is left out of the sections.
func reportKinds(summaries []summarize.Summary) []source.Kind {
	kinds := source.AllKinds()
	known := make(map[source.Kind]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}
	var extra []source.Kind
	for i := range summaries {
		k := summaries[i].Source
		if !known[k] {
			known[k] = true
			extra = append(extra, k)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(kinds, extra...)
}

func kindSlug(k source.Kind) string {
	if k == "" {
		return "other"
	}
	return strings.ReplaceAll(strings.ToLower(string(k)), " ", "-")
}

func newEntry(s *summarize.Summary) entry {
	e := entry{S: s, AuthorsLine: authorsLine(s.Authors)}
	if s.ComprehensiveScores != nil {
		cs := s.ComprehensiveScores
		for _, d := range scoring.Dimensions {
			e.Scores = append(e.Scores, dimensionScore{
				Dimension: d,
				Value:     cs.IndividualScores[d],
				Weight:    int(math.Round(scoring.Weights[d] * 100)),
				Weighted:  cs.ScoreBreakdown[d],
			})
		}
	}
	return e
}

// CategoryName turns a tag such as code_generation into "Code Generation".
func CategoryName(tag string) string {
	return titleCaser.String(strings.ReplaceAll(tag, "_", " "))
}

func authorsLine(authors []string) string {
	if len(authors) <= maxListedAuthors {
		return strings.Join(authors, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(authors[:maxListedAuthors], ", "), len(authors)-maxListedAuthors)
}

func formatSourceCounts(summaries []summarize.Summary) string {
	counts := ComputeStats(summaries).Sources

	var parts []string
	for _, kind := range source.AllKinds() {
		if n, ok := counts[string(kind)]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d", kind, n))
			delete(counts, string(kind))
		}
	}
	rest := make([]string, 0, len(counts))
	for k := range counts {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func kindIcon(k source.Kind) string {
	switch k {
	case source.KindPaper:
		return "📄"
	case source.KindRepository:
		return "💻"
	}
	return "📌"
}

func renderMarkdown(v view) ([]byte, error) {
	var buf bytes.Buffer
	if err := mdTmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render markdown report: %w", err)
	}
	return buf.Bytes(), nil
}

func renderHTML(v view) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}

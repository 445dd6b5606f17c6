package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/YoungLulu/auto-digest/internal/pipeline"
	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/scoring"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

var (
	primaryColor = lipgloss.Color("#0969DA")
	accentColor  = lipgloss.Color("#2DA44E")
	errorColor   = lipgloss.Color("#CF222E")
	dimColor     = lipgloss.Color("#6E7681")
	linkColor    = lipgloss.Color("#58A6FF")
	scoreColor   = lipgloss.Color("#F778BA")
	sourceColor  = lipgloss.Color("#FFA657")

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentColor)

	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
	linkStyle    = lipgloss.NewStyle().Foreground(linkColor).Underline(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(scoreColor).Bold(true)
	sourceStyle  = lipgloss.NewStyle().Foreground(sourceColor).Bold(true)
	bodyStyle    = lipgloss.NewStyle().PaddingLeft(4).Width(100)
)

func renderSummaries(w io.Writer, summaries []summarize.Summary, explain bool) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no summaries found (try: autodigest run)"))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d summaries", len(summaries))))
	for i := range summaries {
		s := &summaries[i]
		fmt.Fprintf(w, "%s %s %s\n",
			scoreStyle.Render(fmt.Sprintf("%5.2f", s.RankScore())),
			sourceStyle.Render(fmt.Sprintf("[%s]", report.CategoryName(s.PrimaryCategory()))),
			titleStyle.Render(s.Title))
		if s.URL != "" {
			fmt.Fprintln(w, "      "+linkStyle.Render(s.URL))
		}
		if s.Summary != "" {
			fmt.Fprintln(w, bodyStyle.Render(s.Summary))
		}
		if s.Fallback {
			fmt.Fprintln(w, "      "+dimStyle.Render("(heuristic summary)"))
		}
		if explain && s.ComprehensiveScores != nil {
			fmt.Fprintln(w, bodyStyle.Render(dimStyle.Render(scoring.Explain(*s.ComprehensiveScores))))
		}
	}
}

func renderItems(w io.Writer, items []source.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no items collected"))
		return
	}

	for _, kind := range source.AllKinds() {
		var group []source.Item
		for _, it := range items {
			if it.Kind == kind {
				group = append(group, it)
			}
		}
		if len(group) == 0 {
			continue
		}

		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", kind.DisplayName(), len(group))))
		for _, it := range group {
			meta := strings.Join(it.Categories, ", ")
			if kind == source.KindRepository {
				meta = fmt.Sprintf("★ %d", it.Stars)
			}
			fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(it.Title), dimStyle.Render(meta))
			fmt.Fprintln(w, "    "+linkStyle.Render(it.URL))
		}
	}
}

func renderResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, successStyle.Render("✅ digest for "+res.Date+" completed"))
	fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("run:"), res.RunID)
	fmt.Fprintf(w, "  %s %d fetched, %d after cleaning, %d summaries\n",
		dimStyle.Render("items:"), res.Fetched, res.Cleaned, len(res.Summaries))
	for _, f := range report.Formats {
		if p, ok := res.Files[f]; ok {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(string(f)+":"), p)
		}
	}
	if res.SourceErr != nil {
		fmt.Fprintf(w, "  %s %v\n", errorStyle.Render("source errors:"), res.SourceErr)
	}
	if res.Delivered {
		fmt.Fprintln(w, successStyle.Render("  delivered"))
	}
}

package summarize

import (
	"strings"

	"github.com/YoungLulu/auto-digest/pkg/scoring"
	"github.com/YoungLulu/auto-digest/pkg/source"
)

type categoryPattern struct {
	tag      string
	keywords []string
}

// Checked in order; the first two matches win.
var categoryPatterns = []categoryPattern{
	{"code_generation", []string{"code generation", "code synthesis", "program generation", "automatic programming"}},
	{"code_evaluation", []string{"code evaluation", "code assessment", "code quality", "code metrics", "code analysis"}},
	{"code_verification", []string{"code verification", "formal verification", "program verification", "correctness"}},
	{"program_synthesis", []string{"program synthesis", "synthesis", "automated synthesis"}},
	{"coding_agent", []string{"coding agent", "programming agent", "software agent", "ai agent", "autonomous"}},
	{"llm_coding", []string{"llm", "large language model", "language model", "gpt", "transformer", "neural"}},
	{"automated_testing", []string{"test generation", "automated testing", "unit test", "test case"}},
	{"software_reasoning", []string{"reasoning", "logic", "inference", "proof", "symbolic"}},
	{"code_repair", []string{"code repair", "bug fix", "program repair", "debugging", "error correction"}},
	{"neural_search", []string{"code search", "semantic search", "code retrieval", "neural search"}},
	{"benchmark", []string{"benchmark", "evaluation", "dataset", "corpus", "leaderboard"}},
	{"survey", []string{"survey", "review", "analysis", "study", "empirical"}},
	{"tool", []string{"tool", "framework", "library", "system", "platform", "implementation"}},
}

var (
	highRelevance   = []string{"code generation", "llm", "programming", "software engineering", "automated", "ai coding"}
	mediumRelevance = []string{"machine learning", "neural", "algorithm", "development", "programming language"}
)

// Fallback builds a summary from keyword heuristics and neutral sub-scores.
func Fallback(item source.Item) Summary {
	title := item.Title
	if title == "" {
		title = "No title"
	}

	s := Summary{
		Title:                 title,
		URL:                   item.URL,
		Authors:               authorsOf(item),
		Background:            "Analysis not available - manual review needed",
		TechnicalHighlights:   StringList{"Manual analysis required"},
		PotentialApplications: StringList{"To be determined"},
		TargetAudience:        StringList{"AI researchers and developers"},
		CategoryTags:          Classify(item.Title, item.Description),
		RelevanceScore:        float64(EstimateRelevance(item.Title, item.Description)),
		Summary:               "Manual summary needed for: " + truncateRunes(title, 100) + "...",
		ScoringDimensions:     neutralBundle(),
		Fallback:              true,
	}
	s.attach(item)
	return s
}

// Classify returns up to two category tags, or ["other"].
func Classify(title, description string) []string {
	text := strings.ToLower(title + " " + description)

	var tags []string
	for _, p := range categoryPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, p.tag)
				break
			}
		}
		if len(tags) == 2 {
			break
		}
	}
	if len(tags) == 0 {
		return []string{"other"}
	}
	return tags
}

// EstimateRelevance scores keyword density on a 4..8 scale.
func EstimateRelevance(title, description string) int {
	text := strings.ToLower(title + " " + description)
	high := countMatches(text, highRelevance)
	medium := countMatches(text, mediumRelevance)

	switch {
	case high >= 2:
		return 8
	case high >= 1:
		return 7
	case medium >= 2:
		return 6
	case medium >= 1:
		return 5
	default:
		return 4
	}
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func neutralBundle() scoring.Bundle {
	b := make(scoring.Bundle, len(scoring.SubjectiveDimensions))
	for _, d := range scoring.SubjectiveDimensions {
		b[d] = 5.0
	}
	return b
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

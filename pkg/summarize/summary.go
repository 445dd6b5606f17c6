// Package summarize turns collected items into scored summaries using an
// LLM, falling back to keyword heuristics when the model is unavailable.
package summarize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/YoungLulu/auto-digest/pkg/scoring"
	"github.com/YoungLulu/auto-digest/pkg/source"
)

// Summary is the structured description of one item.
type Summary struct {
	Title                 string          `json:"title"`
	URL                   string          `json:"url"`
	Authors               []string        `json:"authors"`
	Background            string          `json:"background"`
	TechnicalHighlights   StringList      `json:"technical_highlights"`
	PotentialApplications StringList      `json:"potential_applications"`
	TargetAudience        StringList      `json:"target_audience"`
	CategoryTags          StringList      `json:"category_tags"`
	RelevanceScore        float64         `json:"relevance_score"`
	Summary               string          `json:"summary"`
	ScoringDimensions     scoring.Bundle  `json:"scoring_dimensions"`
	ComprehensiveScores   *scoring.Result `json:"comprehensive_scores,omitempty"`
	FinalScore            float64         `json:"final_score"`
	OriginalID            string          `json:"original_id"`
	Source                source.Kind     `json:"source"`
	Fallback              bool            `json:"fallback,omitempty"`
	Original              source.Item     `json:"original_data"`
}

// PrimaryCategory returns the first category tag, or "other".
func (s *Summary) PrimaryCategory() string {
	if len(s.CategoryTags) > 0 && s.CategoryTags[0] != "" {
		return s.CategoryTags[0]
	}
	return "other"
}

// RankScore is the value reports sort by: the final score when present,
// otherwise the LLM relevance estimate.
func (s *Summary) RankScore() float64 {
	if s.ComprehensiveScores != nil {
		return s.FinalScore
	}
	return s.RelevanceScore
}

// attach fills item-derived fields and computes the comprehensive score.
func (s *Summary) attach(item source.Item) {
	if s.Title == "" {
		s.Title = item.Title
	}
	if s.URL == "" {
		s.URL = item.URL
	}
	if len(s.Authors) == 0 {
		s.Authors = authorsOf(item)
	}
	if s.ScoringDimensions == nil {
		s.ScoringDimensions = scoring.Bundle{}
	}

	result := scoring.Score(item, s.ScoringDimensions)
	s.ComprehensiveScores = &result
	s.FinalScore = result.FinalScore
	s.OriginalID = item.ID
	s.Source = item.Kind
	s.Original = item
}

// StringList decodes either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	*l = out
	return nil
}

// String joins the list with commas.
func (l StringList) String() string {
	return strings.Join(l, ", ")
}

// llmSummary is the loosely typed shape models actually return.
type llmSummary struct {
	Title                 string                     `json:"title"`
	URL                   string                     `json:"url"`
	Authors               StringList                 `json:"authors"`
	Background            string                     `json:"background"`
	TechnicalHighlights   StringList                 `json:"technical_highlights"`
	PotentialApplications StringList                 `json:"potential_applications"`
	TargetAudience        StringList                 `json:"target_audience"`
	CategoryTags          StringList                 `json:"category_tags"`
	RelevanceScore        json.RawMessage            `json:"relevance_score"`
	Summary               string                     `json:"summary"`
	ScoringDimensions     map[string]json.RawMessage `json:"scoring_dimensions"`
}

var (
	fenceOpenRe  = regexp.MustCompile("```(?:json)?\\s*")
	fenceCloseRe = regexp.MustCompile("```\\s*$")
)

// CleanJSON strips markdown fences and any text around the outermost object.
func CleanJSON(content string) string {
	content = fenceOpenRe.ReplaceAllString(content, "")
	content = fenceCloseRe.ReplaceAllString(content, "")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		content = content[start : end+1]
	}
	return strings.TrimSpace(content)
}

// ParseResponse decodes a model response into a Summary without item fields.
func ParseResponse(content string) (Summary, error) {
	var raw llmSummary
	if err := json.Unmarshal([]byte(CleanJSON(content)), &raw); err != nil {
		return Summary{}, fmt.Errorf("parse llm json: %w", err)
	}

	s := Summary{
		Title:                 strings.TrimSpace(raw.Title),
		URL:                   strings.TrimSpace(raw.URL),
		Authors:               raw.Authors,
		Background:            raw.Background,
		TechnicalHighlights:   raw.TechnicalHighlights,
		PotentialApplications: raw.PotentialApplications,
		TargetAudience:        raw.TargetAudience,
		CategoryTags:          raw.CategoryTags,
		Summary:               raw.Summary,
		ScoringDimensions:     scoring.Bundle{},
	}
	if v, ok := parseNumber(raw.RelevanceScore); ok {
		s.RelevanceScore = v
	}
	for _, d := range scoring.SubjectiveDimensions {
		if v, ok := parseNumber(raw.ScoringDimensions[string(d)]); ok {
			s.ScoringDimensions[d] = v
		}
	}
	return s, nil
}

// parseNumber accepts JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsNaN(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) {
			return f, true
		}
	}
	return 0, false
}

func authorsOf(item source.Item) []string {
	if item.Kind == source.KindPaper {
		return append([]string(nil), item.Authors...)
	}
	if item.Owner != "" {
		return []string{item.Owner}
	}
	parts := strings.Split(strings.TrimRight(item.URL, "/"), "/")
	if len(parts) >= 2 && parts[len(parts)-2] != "" {
		return []string{parts[len(parts)-2]}
	}
	return []string{"Unknown"}
}

package source

import "strings"

// DefaultKeywords is the base keyword set for AI-for-code content.
var DefaultKeywords = []string{
	"code generation", "program synthesis", "code llm", "large language model",
	"coding agent", "code completion", "code repair", "program repair",
	"automated testing", "test generation", "code review", "software engineering",
}

// Filter holds keyword lists for relevance matching.
type Filter struct {
	keywords []string
	exclude  []string
}

// NewFilter creates a filter from include and exclude keyword lists.
// An empty include list accepts every item that is not excluded.
func NewFilter(keywords, excludeKeywords []string) *Filter {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}

	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			exclude = append(exclude, kw)
		}
	}

	return &Filter{keywords: kws, exclude: exclude}
}

// Matches reports whether text contains a keyword and no excluded term.
func (f *Filter) Matches(text string) bool {
	lower := strings.ToLower(text)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}

	if len(f.keywords) == 0 {
		return true
	}
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Apply keeps items whose title or description matches.
func (f *Filter) Apply(items []Item) []Item {
	var kept []Item
	for _, item := range items {
		if f.Matches(item.Title + " " + item.Description) {
			kept = append(kept, item)
		}
	}
	return kept
}

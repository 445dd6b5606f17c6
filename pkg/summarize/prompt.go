package summarize

import (
	"fmt"
	"os"
	"strings"

	"github.com/YoungLulu/auto-digest/pkg/source"
)

const systemPrompt = "You are an expert AI research analyst. Respond only with valid JSON."

const maxDescriptionRunes = 2000

// DefaultPrompt asks for the summary fields plus the four subjective scores.
const DefaultPrompt = `Analyze the following content about AI for code and software engineering.

Content:
Title: {title}
Description: {description}
URL: {url}
Source: {source}
Additional info: {additional_info}

Respond with a single JSON object with these fields:
- "title": concise title
- "url": the URL above
- "background": 1-2 sentences of context
- "technical_highlights": list of key technical points
- "potential_applications": list of practical uses
- "target_audience": who should read this
- "category_tags": up to 2 of code_generation, code_evaluation, code_verification, program_synthesis,
  coding_agent, llm_coding, automated_testing, software_reasoning, code_repair, neural_search,
  benchmark, survey, tool, other
- "relevance_score": integer 1-10 for relevance to AI-assisted programming
- "summary": 2-3 sentence summary
- "scoring_dimensions": object with "technical_innovation", "application_value", "readability",
  "experimental_thoroughness", each a number from 0 to 10

Respond with valid JSON only.`

// Prompt renders the user prompt for an item.
type Prompt struct {
	template string
}

// NewPrompt uses template, or DefaultPrompt when empty.
func NewPrompt(template string) *Prompt {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	return &Prompt{template: template}
}

// LoadPrompt reads a template file. An empty path yields the default.
func LoadPrompt(path string) (*Prompt, error) {
	if path == "" {
		return NewPrompt(""), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	return NewPrompt(string(data)), nil
}

// Render fills the template placeholders from item.
func (p *Prompt) Render(item source.Item) string {
	title := item.Title
	if title == "" {
		title = "No title"
	}
	desc := item.Description
	if desc == "" {
		desc = "No description available"
	}
	if r := []rune(desc); len(r) > maxDescriptionRunes {
		desc = string(r[:maxDescriptionRunes])
	}

	return strings.NewReplacer(
		"{title}", title,
		"{description}", desc,
		"{url}", item.URL,
		"{source}", string(item.Kind),
		"{additional_info}", additionalInfo(item),
	).Replace(p.template)
}

func additionalInfo(item source.Item) string {
	switch item.Kind {
	case source.KindRepository:
		lang := item.Language
		if lang == "" {
			lang = "N/A"
		}
		return fmt.Sprintf("Stars: %d, Language: %s, Topics: %s",
			item.Stars, lang, strings.Join(item.Topics, ", "))
	case source.KindPaper:
		return fmt.Sprintf("Authors: %s, Categories: %s",
			strings.Join(item.Authors, ", "), strings.Join(item.Categories, ", "))
	default:
		return ""
	}
}

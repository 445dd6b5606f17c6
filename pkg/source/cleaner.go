package source

import (
	"regexp"
	"strings"
	"time"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	latexCmdRe   = regexp.MustCompile(`\s*\\\w+\s*`)
	mathSpanRe   = regexp.MustCompile(`\$[^$]*\$`)
)

// Cleaner normalizes items and drops duplicates.
// The seen set belongs to one Cleaner; create a new one per pipeline run.
type Cleaner struct {
	seen map[string]struct{}
}

// NewCleaner returns a Cleaner with an empty seen set.
func NewCleaner() *Cleaner {
	return &Cleaner{seen: make(map[string]struct{})}
}

// CleanAndDeduplicate cleans every item and keeps the first of each content hash.
func (c *Cleaner) CleanAndDeduplicate(items []Item) []Item {
	var out []Item
	for _, item := range items {
		cleaned := CleanItem(item)
		hash := ContentHash(cleaned)
		if _, ok := c.seen[hash]; ok {
			continue
		}
		c.seen[hash] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// Seen returns how many distinct items this cleaner has accepted.
func (c *Cleaner) Seen() int {
	return len(c.seen)
}

// CleanItem returns a normalized copy of item.
func CleanItem(item Item) Item {
	item.Title = CleanText(item.Title)
	item.Description = CleanText(item.Description)
	item.URL = CleanURL(item.URL)
	item.PDFURL = CleanURL(item.PDFURL)
	item.PublishedAt = normalizeTime(item.PublishedAt)
	item.CreatedAt = normalizeTime(item.CreatedAt)
	item.UpdatedAt = normalizeTime(item.UpdatedAt)
	item.Authors = append([]string(nil), item.Authors...)
	item.Categories = append([]string(nil), item.Categories...)
	item.Topics = append([]string(nil), item.Topics...)
	return item
}

// CleanText collapses whitespace and strips LaTeX artifacts common in abstracts.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	text = latexCmdRe.ReplaceAllString(text, " ")
	text = mathSpanRe.ReplaceAllString(text, "[MATH]")
	return strings.TrimSpace(text)
}

// CleanURL makes sure a non-empty URL carries a scheme.
func CleanURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// ContentHash identifies an item by the fields that make it unique.
func ContentHash(item Item) string {
	if item.Kind == KindPaper {
		return StableID(item.Title, strings.Join(item.Authors, ","), formatTime(item.PublishedAt))
	}
	return StableID(item.FullName, formatTime(item.CreatedAt))
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

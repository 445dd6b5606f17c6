package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
)

const defaultArXivURL = "https://export.arxiv.org/api/query"

// ArXivConfig configures the arXiv collector.
type ArXivConfig struct {
	Keywords   []string
	Categories []string
	MaxResults int
	DaysBack   int
	BaseURL    string // for tests; defaults to the public export API
}

// ArXiv collects recent papers from the arXiv search API.
type ArXiv struct {
	client *http.Client
	parser *atom.Parser
	cfg    ArXivConfig
	now    func() time.Time
}

// NewArXiv creates a new arXiv collector.
func NewArXiv(cfg ArXivConfig) *ArXiv {
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"cs.AI", "cs.SE", "cs.CL", "cs.LG"}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 30
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultArXivURL
	}
	return &ArXiv{
		client: &http.Client{Timeout: 60 * time.Second},
		parser: &atom.Parser{},
		cfg:    cfg,
		now:    time.Now,
	}
}

func (a *ArXiv) Name() string { return "arxiv" }

// BuildQuery returns the search expression: any keyword AND any category.
func (a *ArXiv) BuildQuery() string {
	var kwParts []string
	for _, kw := range a.cfg.Keywords {
		kwParts = append(kwParts, fmt.Sprintf(`all:"%s"`, kw))
	}
	var catParts []string
	for _, cat := range a.cfg.Categories {
		catParts = append(catParts, "cat:"+cat)
	}

	cats := "(" + strings.Join(catParts, " OR ") + ")"
	if len(kwParts) == 0 {
		return cats
	}
	return "(" + strings.Join(kwParts, " OR ") + ") AND " + cats
}

func (a *ArXiv) Collect(ctx context.Context) ([]Item, error) {
	params := url.Values{}
	params.Set("search_query", a.BuildQuery())
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(a.cfg.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create arxiv request: %w", err)
	}
	req.Header.Set("User-Agent", "autodigest/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv status %d", resp.StatusCode)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	now := a.now().UTC()
	cutoff := now.AddDate(0, 0, -a.cfg.DaysBack)

	var items []Item
	for _, entry := range feed.Entries {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}
		items = append(items, paperFromEntry(entry, published, now))
	}

	return items, nil
}

// The raw Atom parser is used instead of the universal one because arXiv
// marks its PDF link rel="related", which the universal translator drops.
func paperFromEntry(entry *atom.Entry, published, now time.Time) Item {
	var authors []string
	for _, p := range entry.Authors {
		if p != nil && p.Name != "" {
			authors = append(authors, p.Name)
		}
	}

	absURL := strings.TrimSpace(entry.ID)
	for _, l := range entry.Links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") && l.Href != "" {
			absURL = l.Href
			break
		}
	}

	var categories []string
	for _, c := range entry.Categories {
		if c != nil && c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	title := strings.TrimSpace(entry.Title)
	return Item{
		ID:          StableID(title, strings.Join(authors, ","), published.Format("2006-01-02")),
		Kind:        KindPaper,
		Title:       title,
		Description: strings.TrimSpace(entry.Summary),
		URL:         absURL,
		PDFURL:      pdfLink(entry, absURL),
		Authors:     authors,
		Categories:  categories,
		PublishedAt: published,
		CollectedAt: now,
	}
}

// pdfLink prefers the entry's pdf link and otherwise derives it from the abs URL.
func pdfLink(entry *atom.Entry, absURL string) string {
	for _, l := range entry.Links {
		if l == nil {
			continue
		}
		if l.Title == "pdf" || l.Type == "application/pdf" || strings.Contains(l.Href, "/pdf/") {
			return l.Href
		}
	}
	if strings.Contains(absURL, "/abs/") {
		return strings.Replace(absURL, "/abs/", "/pdf/", 1)
	}
	return ""
}

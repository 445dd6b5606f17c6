package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultGitHubURL = "https://api.github.com"

// ErrRateLimited is returned when GitHub rejects a search with 403.
var ErrRateLimited = errors.New("github rate limit exceeded")

// GitHubConfig configures the GitHub collector.
type GitHubConfig struct {
	Token           string
	Keywords        []string
	Topics          []string
	MaxPerQuery     int
	DaysBack        int
	RequestInterval time.Duration // spacing between search calls; search API allows 30/min
	BaseURL         string
}

// GitHub collects recently created repositories from the search API.
type GitHub struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     GitHubConfig
	now     func() time.Time
}

// NewGitHub creates a new GitHub collector.
func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.MaxPerQuery <= 0 {
		cfg.MaxPerQuery = 20
	}
	if cfg.MaxPerQuery > 100 {
		cfg.MaxPerQuery = 100
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 7
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 2 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGitHubURL
	}
	return &GitHub{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (g *GitHub) Name() string { return "github" }

// BuildQueries returns one query per topic and one per keyword (first five keywords).
func (g *GitHub) BuildQueries() []string {
	cutoff := g.now().AddDate(0, 0, -g.cfg.DaysBack).Format("2006-01-02")

	var queries []string
	for _, topic := range g.cfg.Topics {
		queries = append(queries, fmt.Sprintf("topic:%s stars:>20 created:>%s", topic, cutoff))
	}

	keywords := g.cfg.Keywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	for _, kw := range keywords {
		queries = append(queries, fmt.Sprintf(`"%s" in:description,readme stars:>10 created:>%s fork:false`, kw, cutoff))
	}
	return queries
}

// Collect runs every query and returns the union of repositories.
// Failed queries are reported in the joined error; successful ones are kept.
func (g *GitHub) Collect(ctx context.Context) ([]Item, error) {
	var (
		items []Item
		errs  []error
		seen  = make(map[int64]bool)
	)

	for _, query := range g.BuildQueries() {
		if err := g.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		repos, err := g.search(ctx, query)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %q: %w", query, err))
			continue
		}

		for _, repo := range repos {
			if seen[repo.ID] {
				continue
			}
			seen[repo.ID] = true
			items = append(items, g.itemFromRepo(repo))
		}
	}

	return items, errors.Join(errs...)
}

func (g *GitHub) search(ctx context.Context, query string) ([]ghRepo, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(g.cfg.MaxPerQuery))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/search/repositories?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create github request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "autodigest/1.0")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch github search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API status %d", resp.StatusCode)
	}

	var result ghSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}
	return result.Items, nil
}

func (g *GitHub) itemFromRepo(repo ghRepo) Item {
	return Item{
		ID:          StableID(repo.FullName, repo.CreatedAt.UTC().Format(time.RFC3339)),
		Kind:        KindRepository,
		Title:       repo.FullName,
		Description: repo.Description,
		URL:         repo.HTMLURL,
		FullName:    repo.FullName,
		Stars:       max(repo.Stars, 0),
		Forks:       max(repo.Forks, 0),
		Language:    repo.Language,
		Topics:      repo.Topics,
		Owner:       repo.Owner.Login,
		CreatedAt:   repo.CreatedAt.UTC(),
		UpdatedAt:   repo.UpdatedAt.UTC(),
		CollectedAt: g.now().UTC(),
	}
}

type ghSearchResult struct {
	TotalCount int      `json:"total_count"`
	Items      []ghRepo `json:"items"`
}

type ghRepo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Owner       ghOwner   `json:"owner"`
}

type ghOwner struct {
	Login string `json:"login"`
}

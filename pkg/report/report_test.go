package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

func testSummaries() []summarize.Summary {
	paper := summarize.Fallback(source.Item{
		ID:          "p1",
		Kind:        source.KindPaper,
		Title:       "Code Generation with LLMs",
		Description: "A study.",
		URL:         "https://arxiv.org/abs/1",
		Authors:     []string{"A", "B", "C", "D", "E", "F", "G"},
		Categories:  []string{"cs.AI"},
	})
	low := summarize.Fallback(source.Item{
		ID:    "r1",
		Kind:  source.KindRepository,
		Title: "acme/small-tool",
		URL:   "https://github.com/acme/small-tool",
		Stars: 5,
	})
	high := summarize.Fallback(source.Item{
		ID:    "r2",
		Kind:  source.KindRepository,
		Title: "acme/big-tool",
		URL:   "https://github.com/acme/big-tool",
		Stars: 20000,
	})
	high.CategoryTags = summarize.StringList{"tool"}
	low.CategoryTags = summarize.StringList{"tool"}
	high.Title = "Big <Tool>"
	return []summarize.Summary{paper, low, high}
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g := NewGenerator(Config{OutputDir: filepath.Join(t.TempDir(), "out")})
	g.now = func() time.Time { return time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC) }
	return g
}

func TestGenerate(t *testing.T) {
	g := newTestGenerator(t)

	files, err := g.Generate(context.Background(), testSummaries(), "2024-03-01")
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(g.Dir(), "daily_2024-03-01.json"), files[FormatJSON])
	assert.Equal(t, filepath.Join(g.Dir(), "daily_2024-03-01.md"), files[FormatMarkdown])
	assert.Equal(t, filepath.Join(g.Dir(), "daily_2024-03-01.html"), files[FormatHTML])
	assert.NotContains(t, files, FormatPDF)

	doc, err := loadDocument(files[FormatJSON])
	require.NoError(t, err)
	assert.Equal(t, 3, doc.TotalItems)
	assert.Equal(t, map[string]int{"paper": 1, "repository": 2}, doc.Sources)
	assert.Equal(t, 2, doc.Categories["tool"])

	loaded, err := LoadSummaries(files[FormatJSON])
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "p1", loaded[0].OriginalID)
}

func TestMarkdownReport(t *testing.T) {
	g := newTestGenerator(t)
	files, err := g.Generate(context.Background(), testSummaries(), "2024-03-01")
	require.NoError(t, err)

	data, err := os.ReadFile(files[FormatMarkdown])
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "# 🧠 AI Coding Digest - 2024-03-01")
	assert.Contains(t, md, "Generated on 2024-03-01 08:30:00")
	assert.Contains(t, md, "**Sources**: paper: 1, repository: 2")
	assert.Contains(t, md, "- [📄 arXiv Papers](#paper-section) (1 items)")
	assert.Contains(t, md, "  - [Code Generation](#paper-code-generation) (1 items)")
	assert.Contains(t, md, "**👥 Authors**: A, B, C, D, E (+2 more)")
	assert.Contains(t, md, "**Score Breakdown**:")
	assert.Contains(t, md, "  - Popularity: 10/10 (weight 25%) = 2.5")
	assert.Contains(t, md, "  - Technical Innovation: 5/10 (weight 20%) = 1")
	assert.Contains(t, md, "(weight 15%)")
	assert.Contains(t, md, "`code_generation`")

	papers := strings.Index(md, "## 📄 arXiv Papers")
	repos := strings.Index(md, "## 💻 GitHub Repositories")
	require.True(t, papers > 0 && repos > papers, "papers section comes first")

	big := strings.Index(md, "#### Big <Tool>")
	small := strings.Index(md, "#### acme/small-tool")
	require.True(t, big > 0 && small > big, "items are sorted by final score, descending")
}

func TestHTMLReportEscapes(t *testing.T) {
	g := newTestGenerator(t)
	files, err := g.Generate(context.Background(), testSummaries(), "2024-03-01")
	require.NoError(t, err)

	data, err := os.ReadFile(files[FormatHTML])
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, "<title>AI Coding Digest - 2024-03-01</title>")
	assert.Contains(t, page, "Big &lt;Tool&gt;")
	assert.NotContains(t, page, "Big <Tool>")
	assert.Contains(t, page, `<h2 id="repository-section">`)
	assert.Contains(t, page, `<span class="tag">tool</span>`)
	assert.Contains(t, page, "<li>Popularity: 10/10 (weight 25%) = 2.5</li>")
}

func TestMarkdownReportKeepsUnknownKinds(t *testing.T) {
	g := newTestGenerator(t)
	summaries := testSummaries()
	odd := summarize.Fallback(source.Item{ID: "n1", Kind: "newsletter", Title: "Weekly Roundup"})
	summaries = append(summaries, odd)

	files, err := g.Generate(context.Background(), summaries, "2024-03-01")
	require.NoError(t, err)
	data, err := os.ReadFile(files[FormatMarkdown])
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "**Total Items**: 4")
	assert.Contains(t, md, "#### Weekly Roundup")
	assert.Contains(t, md, "](#newsletter-section) (1 items)")

	repos := strings.Index(md, "## 💻 GitHub Repositories")
	other := strings.Index(md, "## 📌 newsletter")
	require.True(t, repos > 0 && other > repos, "unknown kinds follow the known sections")
}

func TestGenerateEmpty(t *testing.T) {
	g := newTestGenerator(t)
	files, err := g.Generate(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Dir(), "daily_2024-03-01.json"), files[FormatJSON])

	data, err := os.ReadFile(files[FormatJSON])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"summaries": []`)
}

func TestGeneratePDFFailureIsNotFatal(t *testing.T) {
	g := NewGenerator(Config{
		OutputDir:  t.TempDir(),
		PDF:        true,
		PandocPath: "definitely-not-pandoc-binary",
	})
	files, err := g.Generate(context.Background(), testSummaries(), "2024-03-01")
	require.NoError(t, err)
	assert.NotContains(t, files, FormatPDF)
	assert.Contains(t, files, FormatHTML)
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"daily_2024-01-05.json", "daily_2024-01-05.html",
		"daily_2024-02-10.json", "daily_2024-02-10.md", "daily_2024-02-10.html",
		"daily_garbage.json", "notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	date, files, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-10", date)
	assert.Equal(t, Files{
		FormatJSON:     filepath.Join(dir, "daily_2024-02-10.json"),
		FormatMarkdown: filepath.Join(dir, "daily_2024-02-10.md"),
		FormatHTML:     filepath.Join(dir, "daily_2024-02-10.html"),
	}, files)
}

func TestLatestEmpty(t *testing.T) {
	_, _, err := Latest(t.TempDir())
	assert.ErrorIs(t, err, ErrNoReports)
}

func TestCategoryName(t *testing.T) {
	assert.Equal(t, "Code Generation", CategoryName("code_generation"))
	assert.Equal(t, "Other", CategoryName("other"))
}

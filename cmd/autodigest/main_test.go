package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungLulu/auto-digest/internal/pipeline"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "collect", "report", "send", "serve", "daemon"}, names)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("dry-run"))
	assert.NotNil(t, run.Flags().Lookup("date"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

type namedSource string

func (n namedSource) Name() string { return string(n) }

func (n namedSource) Collect(context.Context) ([]source.Item, error) { return nil, nil }

func TestSelectSources(t *testing.T) {
	all := []source.Source{namedSource("arxiv"), namedSource("github")}

	got, err := selectSources(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = selectSources(all, []string{" GitHub "})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "github", got[0].Name())

	_, err = selectSources(all, []string{"reddit"})
	assert.Error(t, err)
}

func TestRenderers(t *testing.T) {
	var buf bytes.Buffer
	renderSummaries(&buf, nil, false)
	assert.Contains(t, buf.String(), "no summaries found")

	buf.Reset()
	renderSummaries(&buf, []summarize.Summary{{Title: "Tool", URL: "https://x", RelevanceScore: 7, CategoryTags: summarize.StringList{"code_generation"}}}, true)
	assert.Contains(t, buf.String(), "Tool")
	assert.Contains(t, buf.String(), "7.00")
	assert.NotContains(t, buf.String(), "Score Breakdown", "nothing to explain without comprehensive scores")

	buf.Reset()
	scored := summarize.Fallback(source.Item{Kind: source.KindRepository, Title: "acme/big", Stars: 20000})
	renderSummaries(&buf, []summarize.Summary{scored}, true)
	assert.Contains(t, buf.String(), "Score Breakdown")
	assert.Contains(t, buf.String(), "Popularity: 10.00/10 (weight 25%) = 2.50")

	buf.Reset()
	renderItems(&buf, []source.Item{{Kind: source.KindRepository, Title: "acme/x", Stars: 42, URL: "https://github.com/acme/x"}})
	assert.Contains(t, buf.String(), "GitHub Repositories (1)")
	assert.Contains(t, buf.String(), "★ 42")

	buf.Reset()
	renderResult(&buf, &pipeline.Result{RunID: "abc", Date: "2024-01-15", Fetched: 3, Cleaned: 2})
	assert.Contains(t, buf.String(), "2024-01-15")
	assert.Contains(t, buf.String(), "3 fetched, 2 after cleaning")
}

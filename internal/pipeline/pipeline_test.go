package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungLulu/auto-digest/internal/store"
	"github.com/YoungLulu/auto-digest/pkg/notify"
	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

type fakeSource struct {
	name  string
	items []source.Item
	err   error
	block chan struct{}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Collect(ctx context.Context) ([]source.Item, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	err     error
	digests []*notify.Digest
}

func (f *fakeBroadcaster) HasNotifiers() bool { return true }

func (f *fakeBroadcaster) Broadcast(_ context.Context, d *notify.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests = append(f.digests, d)
	return f.err
}

type fixture struct {
	runner *Runner
	store  *store.SQLiteStore
	bcast  *fakeBroadcaster
	outDir string
}

func newFixture(t *testing.T, sources ...source.Source) *fixture {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	out := t.TempDir()
	bcast := &fakeBroadcaster{}
	r := New(Config{
		Sources:    sources,
		Filter:     source.NewFilter([]string{"code"}, []string{"crypto"}),
		Summarizer: summarize.New(summarize.Config{}),
		Store:      db,
		Reporter:   report.NewGenerator(report.Config{OutputDir: out}),
		Notifier:   bcast,
	})
	return &fixture{runner: r, store: db, bcast: bcast, outDir: out}
}

func papers() []source.Item {
	day := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	return []source.Item{
		{ID: "p1", Kind: source.KindPaper, Title: "Code generation with LLMs", Authors: []string{"A"}, PublishedAt: day},
		{ID: "p1", Kind: source.KindPaper, Title: "Code generation with LLMs", Authors: []string{"A"}, PublishedAt: day},
		{ID: "p2", Kind: source.KindPaper, Title: "Crypto code trading", Authors: []string{"B"}, PublishedAt: day},
	}
}

func TestRunEndToEnd(t *testing.T) {
	repos := &fakeSource{
		name:  "github",
		items: []source.Item{{ID: "r1", Kind: source.KindRepository, Title: "acme/coder", FullName: "acme/coder", Description: "code assistant", Stars: 1200}},
		err:   source.ErrRateLimited,
	}
	f := newFixture(t, &fakeSource{name: "arxiv", items: papers()}, repos)

	res, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Cleaned, "duplicate dropped and excluded keyword filtered")
	require.Len(t, res.Summaries, 2)
	assert.ErrorIs(t, res.SourceErr, source.ErrRateLimited)
	assert.True(t, res.Delivered)

	for _, fmtName := range []report.Format{report.FormatJSON, report.FormatMarkdown, report.FormatHTML} {
		p, ok := res.Files[fmtName]
		require.True(t, ok, fmtName)
		assert.FileExists(t, p)
	}
	_, ok := res.Files[report.FormatPDF]
	assert.False(t, ok)

	require.Len(t, f.bcast.digests, 1)
	d := f.bcast.digests[0]
	assert.Equal(t, "2024-01-15", d.Date)
	assert.Equal(t, 2, d.Stats.TotalItems)

	run, err := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, 4, run.Fetched)
	assert.Equal(t, 2, run.Summarized)
	assert.Equal(t, f.outDir, run.ReportDir)

	stored, err := f.store.ListSummaries(context.Background(), store.SummaryListOpts{RunID: res.RunID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, "acme/coder", stored[0].Title, "higher final score first")
}

func TestRunDryRunSkipsDelivery(t *testing.T) {
	f := newFixture(t, &fakeSource{name: "arxiv", items: papers()})

	res, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15", DryRun: true})
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Empty(t, f.bcast.digests)
}

func TestRunNothingFetched(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, &fakeSource{name: "arxiv", err: boom}, &fakeSource{name: "github"})

	res, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingFetched)
	assert.ErrorIs(t, err, boom)

	run, gerr := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, gerr)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Contains(t, run.Error, "no items fetched")
	require.NotNil(t, run.FinishedAt)

	entries, _ := os.ReadDir(f.outDir)
	assert.Empty(t, entries, "no reports for an empty run")
}

func TestRunDeliveryFailureFailsRun(t *testing.T) {
	f := newFixture(t, &fakeSource{name: "arxiv", items: papers()})
	f.bcast.err = errors.New("smtp down")

	res, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.NotEmpty(t, res.Files, "reports are kept when delivery fails")

	run, gerr := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, gerr)
	assert.Equal(t, store.RunFailed, run.Status)
}

func TestRunRejectsInvalidDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Run(context.Background(), Options{Date: "15/01/2024"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestRunDefaultsDateToToday(t *testing.T) {
	f := newFixture(t, &fakeSource{name: "arxiv", items: papers()})
	f.runner.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }

	res, err := f.runner.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", res.Date)
	assert.FileExists(t, filepath.Join(f.outDir, "daily_2024-03-09.json"))
}

func TestRunRejectsOverlap(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, &fakeSource{name: "arxiv", items: papers(), block: block})

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15", DryRun: true})
		done <- err
	}()

	require.Eventually(t, f.runner.Running, time.Second, 5*time.Millisecond)
	_, err := f.runner.Run(context.Background(), Options{Date: "2024-01-15"})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	require.NoError(t, <-done)
	assert.False(t, f.runner.Running())
}

func TestCollectWithoutStore(t *testing.T) {
	r := New(Config{Sources: []source.Source{&fakeSource{name: "arxiv", items: papers()}}})
	col := r.Collect(context.Background())
	assert.Equal(t, 3, col.Fetched)
	assert.Len(t, col.Items, 2)
	assert.NoError(t, col.Err)
}

func TestDeliverWithoutNotifiers(t *testing.T) {
	r := New(Config{})
	err := r.Deliver(context.Background(), "2024-01-15", nil, nil)
	assert.Error(t, err)
}

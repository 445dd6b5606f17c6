package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungLulu/auto-digest/internal/pipeline"
	"github.com/YoungLulu/auto-digest/internal/store"
	"github.com/YoungLulu/auto-digest/pkg/scoring"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	calls   []pipeline.Options
}

func (f *fakeRunner) Run(_ context.Context, opts pipeline.Options) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return &pipeline.Result{RunID: "r"}, nil
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.CreateRun(ctx, &store.Run{ID: "run-1", Date: "2024-01-15"}))

	items := []source.Item{
		{ID: "p1", Kind: source.KindPaper, Title: "Paper"},
		{ID: "r1", Kind: source.KindRepository, Title: "acme/tool", Stars: 20000},
	}
	require.NoError(t, db.UpsertItems(ctx, items))

	high := scoring.Score(items[1], nil)
	low := scoring.Score(items[0], scoring.Bundle{scoring.TechnicalInnovation: 0, scoring.Readability: 0})
	require.NoError(t, db.SaveSummaries(ctx, "run-1", []summarize.Summary{
		{OriginalID: "r1", Title: "acme/tool", Source: source.KindRepository, ComprehensiveScores: &high, FinalScore: high.FinalScore},
		{OriginalID: "p1", Title: "Paper", Source: source.KindPaper, ComprehensiveScores: &low, FinalScore: low.FinalScore},
	}))
	return db
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Count int             `json:"count"`
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := New(seededStore(t), &fakeRunner{}, 0, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","running":false}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(seededStore(t), nil, 0, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListRunsAndGetRun(t *testing.T) {
	s := New(seededStore(t), nil, 0, nil)
	h := s.Handler()

	resp := decodeList(t, do(t, h, http.MethodGet, "/api/v1/runs", ""))
	assert.Equal(t, 1, resp.Count)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "2024-01-15", run.Date)

	rec = do(t, h, http.MethodGet, "/api/v1/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSummaries(t *testing.T) {
	h := New(seededStore(t), nil, 0, nil).Handler()

	resp := decodeList(t, do(t, h, http.MethodGet, "/api/v1/summaries", ""))
	assert.Equal(t, 2, resp.Count)
	var all []summarize.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Equal(t, "acme/tool", all[0].Title)

	resp = decodeList(t, do(t, h, http.MethodGet, "/api/v1/summaries?run=run-1&min_score=5", ""))
	assert.Equal(t, 1, resp.Count)

	resp = decodeList(t, do(t, h, http.MethodGet, "/api/v1/summaries?run=other", ""))
	assert.Equal(t, 0, resp.Count)

	rec := do(t, h, http.MethodGet, "/api/v1/summaries?min_score=eleven", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListItemsByKind(t *testing.T) {
	h := New(seededStore(t), nil, 0, nil).Handler()

	resp := decodeList(t, do(t, h, http.MethodGet, "/api/v1/items?kind=repository", ""))
	require.Equal(t, 1, resp.Count)
	var items []source.Item
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	assert.Equal(t, "acme/tool", items[0].Title)

	resp = decodeList(t, do(t, h, http.MethodGet, "/api/v1/items", ""))
	assert.Equal(t, 2, resp.Count)
}

func TestStats(t *testing.T) {
	h := New(seededStore(t), nil, 0, nil).Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"GitHub Repositories","items":1`)
}

func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{}
	h := New(seededStore(t), runner, 0, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/run", `{"date":"2024-02-01","dry_run":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)
	runner.mu.Lock()
	assert.Equal(t, pipeline.Options{Date: "2024-02-01", DryRun: true}, runner.calls[0])
	runner.mu.Unlock()
}

func TestTriggerRunRejections(t *testing.T) {
	runner := &fakeRunner{running: true}
	h := New(seededStore(t), runner, 0, nil).Handler()

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/run", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/run", `{"date":"tomorrow"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/run", `{not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/run", "").Code)

	noRunner := New(seededStore(t), nil, 0, nil).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, noRunner, http.MethodPost, "/api/v1/run", "").Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(seededStore(t), nil, 18931, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18931/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// blockingRunner holds Run open until release is closed.
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (b *blockingRunner) Run(ctx context.Context, _ pipeline.Options) (*pipeline.Result, error) {
	close(b.started)
	<-b.release
	close(b.finished)
	return &pipeline.Result{}, nil
}

func (b *blockingRunner) Running() bool { return false }

func TestListenAndServeWaitsForTriggeredRuns(t *testing.T) {
	runner := newBlockingRunner()
	s := New(seededStore(t), runner, 18932, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://127.0.0.1:18932/api/v1/run", "application/json", strings.NewReader(`{}`))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusAccepted
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not start")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("server returned while a triggered run was still in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the run finished")
	}

	select {
	case <-runner.finished:
	default:
		t.Fatal("run had not finished when the server returned")
	}
}

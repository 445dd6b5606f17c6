// Package pipeline runs one digest end to end: collect, clean, summarize,
// persist, report and deliver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/internal/logger"
	"github.com/YoungLulu/auto-digest/internal/metrics"
	"github.com/YoungLulu/auto-digest/internal/store"
	"github.com/YoungLulu/auto-digest/pkg/notify"
	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

const dateLayout = "2006-01-02"

var (
	// ErrNothingFetched is returned when every source came back empty.
	ErrNothingFetched = errors.New("no items fetched")
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// Summarizer turns items into summaries.
type Summarizer interface {
	SummarizeItems(ctx context.Context, items []source.Item) []summarize.Summary
}

// Reporter renders summaries into report files.
type Reporter interface {
	Generate(ctx context.Context, summaries []summarize.Summary, date string) (report.Files, error)
}

// Broadcaster delivers a digest.
type Broadcaster interface {
	HasNotifiers() bool
	Broadcast(ctx context.Context, d *notify.Digest) error
}

// Config wires a Runner.
type Config struct {
	Sources    []source.Source
	Filter     *source.Filter // nil keeps every item
	Summarizer Summarizer
	Store      store.Store
	Reporter   Reporter
	Notifier   Broadcaster // nil or empty disables delivery
	Logger     *zap.Logger
}

// Options tune a single run.
type Options struct {
	Date   string // YYYY-MM-DD; defaults to today
	DryRun bool   // skip delivery
}

// Result describes a finished run.
type Result struct {
	RunID     string
	Date      string
	Fetched   int
	Cleaned   int
	Summaries []summarize.Summary
	Files     report.Files
	Delivered bool
	// SourceErr holds collection failures that did not stop the run.
	SourceErr error
}

// Collection is the cleaned output of all sources.
type Collection struct {
	Fetched int
	Items   []source.Item
	Err     error
}

// Runner executes pipeline runs. At most one run is active at a time.
type Runner struct {
	cfg     Config
	logger  *zap.Logger
	running atomic.Bool
	now     func() time.Time
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: cfg.Logger, now: time.Now}
}

// Collect fetches from every source, then cleans, deduplicates and filters.
// A failing source is logged and skipped.
func (r *Runner) Collect(ctx context.Context) Collection {
	log := logger.FromContextOr(ctx, r.logger)

	var (
		raw  []source.Item
		errs []error
	)
	for _, src := range r.cfg.Sources {
		items, err := src.Collect(ctx)
		metrics.ItemsCollectedTotal.WithLabelValues(src.Name()).Add(float64(len(items)))
		if err != nil {
			metrics.SourceErrorsTotal.WithLabelValues(src.Name()).Inc()
			log.Warn("source failed", zap.String("source", src.Name()), zap.Int("partial", len(items)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
		log.Info("collected", zap.String("source", src.Name()), zap.Int("items", len(items)))
		raw = append(raw, items...)
	}

	cleaned := source.NewCleaner().CleanAndDeduplicate(raw)
	if r.cfg.Filter != nil {
		cleaned = r.cfg.Filter.Apply(cleaned)
	}

	return Collection{Fetched: len(raw), Items: cleaned, Err: errors.Join(errs...)}
}

// Run executes one full pipeline pass. The run record is finalized whether
// or not the pass succeeds.
func (r *Runner) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	start := r.now()
	if opts.Date == "" {
		opts.Date = start.Format(dateLayout)
	}
	if _, perr := time.Parse(dateLayout, opts.Date); perr != nil {
		return nil, fmt.Errorf("invalid date %q: %w", opts.Date, perr)
	}

	run := &store.Run{ID: uuid.NewString(), Date: opts.Date, DryRun: opts.DryRun, StartedAt: start.UTC()}
	log := r.logger.With(zap.String("run_id", run.ID), zap.String("date", opts.Date))
	ctx = logger.WithContext(ctx, log)

	if err := r.cfg.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	log.Info("run started", zap.Bool("dry_run", opts.DryRun))

	res = &Result{RunID: run.ID, Date: opts.Date}
	defer func() {
		r.finish(run, res, err, start, log)
	}()

	col := r.Collect(ctx)
	res.Fetched, res.Cleaned, res.SourceErr = col.Fetched, len(col.Items), col.Err
	run.Fetched, run.Cleaned = res.Fetched, res.Cleaned
	if col.Fetched == 0 {
		if col.Err != nil {
			return res, errors.Join(ErrNothingFetched, col.Err)
		}
		return res, ErrNothingFetched
	}

	if err := r.cfg.Store.UpsertItems(ctx, col.Items); err != nil {
		return res, fmt.Errorf("store items: %w", err)
	}

	res.Summaries = r.cfg.Summarizer.SummarizeItems(ctx, col.Items)
	run.Summarized = len(res.Summaries)
	log.Info("summarized", zap.Int("summaries", len(res.Summaries)))

	if err := r.cfg.Store.SaveSummaries(ctx, run.ID, res.Summaries); err != nil {
		return res, fmt.Errorf("store summaries: %w", err)
	}

	res.Files, err = r.cfg.Reporter.Generate(ctx, res.Summaries, opts.Date)
	if err != nil {
		return res, fmt.Errorf("generate reports: %w", err)
	}
	if p, ok := res.Files[report.FormatJSON]; ok {
		run.ReportDir = filepath.Dir(p)
	}

	switch {
	case opts.DryRun:
		log.Info("dry run, skipping delivery")
	case r.cfg.Notifier == nil || !r.cfg.Notifier.HasNotifiers():
		log.Info("delivery disabled")
	default:
		if err := r.Deliver(ctx, opts.Date, res.Summaries, res.Files); err != nil {
			return res, err
		}
		res.Delivered = true
	}

	return res, nil
}

// Deliver broadcasts a digest built from summaries and report files.
func (r *Runner) Deliver(ctx context.Context, date string, summaries []summarize.Summary, files report.Files) error {
	if r.cfg.Notifier == nil || !r.cfg.Notifier.HasNotifiers() {
		return errors.New("no notifiers configured")
	}
	if err := r.cfg.Notifier.Broadcast(ctx, notify.NewDigest(date, summaries, files)); err != nil {
		return fmt.Errorf("deliver digest: %w", err)
	}
	return nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) finish(run *store.Run, res *Result, err error, start time.Time, log *zap.Logger) {
	elapsed := r.now().Sub(start)
	metrics.RunDuration.Observe(elapsed.Seconds())

	run.Status = store.RunSuccess
	if err != nil {
		run.Status = store.RunFailed
		run.Error = err.Error()
		log.Error("run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		metrics.LastSuccessTimestamp.SetToCurrentTime()
		log.Info("run finished",
			zap.Duration("elapsed", elapsed),
			zap.Int("fetched", res.Fetched),
			zap.Int("summaries", len(res.Summaries)),
			zap.Bool("delivered", res.Delivered))
	}
	metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()

	// Finalize even when the run context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := r.cfg.Store.FinishRun(ctx, run); ferr != nil {
		log.Error("finalize run record", zap.Error(ferr))
	}
}

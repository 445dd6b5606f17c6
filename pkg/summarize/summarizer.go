package summarize

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YoungLulu/auto-digest/internal/metrics"
	"github.com/YoungLulu/auto-digest/pkg/llm"
	"github.com/YoungLulu/auto-digest/pkg/source"
)

// Config configures a Summarizer.
type Config struct {
	Completer       llm.Completer // nil runs every item through Fallback
	Cache           Cache         // optional
	Prompt          *Prompt
	Concurrency     int
	RequestInterval time.Duration
	Logger          *zap.Logger
}

// Summarizer produces one Summary per item.
type Summarizer struct {
	completer llm.Completer
	cache     Cache
	prompt    *Prompt
	limit     int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	if cfg.Prompt == nil {
		cfg.Prompt = NewPrompt("")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Summarizer{
		completer: cfg.Completer,
		cache:     cfg.Cache,
		prompt:    cfg.Prompt,
		limit:     cfg.Concurrency,
		limiter:   rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		logger:    cfg.Logger,
	}
}

// Enabled reports whether an LLM backs this summarizer.
func (s *Summarizer) Enabled() bool {
	return s.completer != nil
}

// SummarizeItems returns one summary per item, in input order. Failures on
// individual items are logged and replaced by Fallback summaries.
func (s *Summarizer) SummarizeItems(ctx context.Context, items []source.Item) []Summary {
	out := make([]Summary, len(items))
	if len(items) == 0 {
		return out
	}

	if s.completer == nil {
		s.logger.Warn("no llm configured, using fallback summaries", zap.Int("items", len(items)))
	}

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, item := range items {
		g.Go(func() error {
			out[i] = s.summarize(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Summarizer) summarize(ctx context.Context, item source.Item) Summary {
	if s.completer == nil {
		metrics.SummariesTotal.WithLabelValues("fallback").Inc()
		return Fallback(item)
	}

	log := s.logger.With(zap.String("item", item.ID), zap.String("title", item.Title))
	key := s.cacheKey(item)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			metrics.SummaryCacheTotal.WithLabelValues("hit").Inc()
			metrics.SummariesTotal.WithLabelValues("cache").Inc()
			cached.Fallback = false
			cached.attach(item)
			return *cached
		case errors.Is(err, ErrCacheMiss):
			metrics.SummaryCacheTotal.WithLabelValues("miss").Inc()
		default:
			log.Warn("summary cache read failed", zap.Error(err))
		}
	}

	sum, err := s.complete(ctx, item)
	if err != nil {
		log.Warn("summarize failed, using fallback", zap.Error(err))
		metrics.SummariesTotal.WithLabelValues("fallback").Inc()
		return Fallback(item)
	}
	metrics.SummariesTotal.WithLabelValues("llm").Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, &sum); err != nil {
			log.Warn("summary cache write failed", zap.Error(err))
		}
	}
	return sum
}

func (s *Summarizer) complete(ctx context.Context, item source.Item) (Summary, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Summary{}, err
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, s.prompt.Render(item))
	if err != nil {
		return Summary{}, err
	}

	sum, err := ParseResponse(raw)
	if err != nil {
		return Summary{}, err
	}
	sum.attach(item)
	return sum, nil
}

func (s *Summarizer) cacheKey(item source.Item) string {
	return s.completer.Model() + ":" + item.ID
}

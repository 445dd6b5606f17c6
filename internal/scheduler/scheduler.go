package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/internal/pipeline"
)

// Runner is the pipeline entry point the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// Scheduler runs the pipeline on a fixed interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger
}

// New creates a new scheduler.
func New(runner Runner, interval time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
// A failed run is logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.logger.Info("scheduler: initial run")
		s.runOnce(ctx)
	}

	s.logger.Info("scheduler: running", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	res, err := s.runner.Run(ctx, pipeline.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run complete",
		zap.String("run_id", res.RunID),
		zap.Int("summaries", len(res.Summaries)),
		zap.Bool("delivered", res.Delivered))
}

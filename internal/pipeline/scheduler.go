package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jprome/auct-alert/internal/config"
)

// Scheduler drives the coordinator on three independent tickers: the full
// pipeline pass, the outcome sweep and the learning loop. Each job carries
// an in-flight guard so a slow run never overlaps the next tick.
type Scheduler struct {
	coord  *Coordinator
	cfg    *config.AppConfig
	logger *slog.Logger

	pipelineBusy atomic.Bool
	outcomeBusy  atomic.Bool
	learningBusy atomic.Bool

	wg sync.WaitGroup
}

func NewScheduler(coord *Coordinator, cfg *config.AppConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{coord: coord, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. The pipeline runs once immediately at
// startup; the sweeps wait for their first tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.String("pipeline_interval", s.cfg.PipelineInterval.String()),
		slog.String("outcome_interval", s.cfg.OutcomeInterval.String()),
		slog.String("learning_interval", s.cfg.LearningInterval.String()))

	s.coord.Start(ctx)
	s.launch(func() { s.runPipeline(ctx) })

	pipelineTicker := time.NewTicker(s.cfg.PipelineInterval)
	defer pipelineTicker.Stop()
	outcomeTicker := time.NewTicker(s.cfg.OutcomeInterval)
	defer outcomeTicker.Stop()
	learningTicker := time.NewTicker(s.cfg.LearningInterval)
	defer learningTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			s.wg.Wait()
			s.coord.Shutdown(30 * time.Second)
			s.logger.Info("scheduler stopped")
			return

		case <-pipelineTicker.C:
			s.launch(func() { s.runPipeline(ctx) })

		case <-outcomeTicker.C:
			s.launch(func() { s.runOutcomeSweep(ctx) })

		case <-learningTicker.C:
			s.launch(func() { s.runLearning(ctx) })
		}
	}
}

func (s *Scheduler) launch(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scheduler) runPipeline(ctx context.Context) {
	if !s.pipelineBusy.CompareAndSwap(false, true) {
		s.logger.Warn("pipeline run still in flight, skipping tick")
		return
	}
	defer s.pipelineBusy.Store(false)

	if _, err := s.coord.RunFull(ctx); err != nil {
		s.logger.Error("pipeline run failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) runOutcomeSweep(ctx context.Context) {
	if !s.outcomeBusy.CompareAndSwap(false, true) {
		s.logger.Warn("outcome sweep still in flight, skipping tick")
		return
	}
	defer s.outcomeBusy.Store(false)

	if _, err := s.coord.RunOutcomeSweep(ctx); err != nil {
		s.logger.Error("outcome sweep failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) runLearning(ctx context.Context) {
	if !s.learningBusy.CompareAndSwap(false, true) {
		s.logger.Warn("learning run still in flight, skipping tick")
		return
	}
	defer s.learningBusy.Store(false)

	changes, err := s.coord.RunLearning(ctx)
	if err != nil {
		s.logger.Error("learning run failed", slog.String("error", err.Error()))
		return
	}
	for _, ch := range changes {
		s.logger.Info("parameter adjusted",
			slog.String("param", ch.Param),
			slog.Float64("old_value", ch.OldValue),
			slog.Float64("new_value", ch.NewValue),
			slog.String("direction", ch.Direction))
	}
}

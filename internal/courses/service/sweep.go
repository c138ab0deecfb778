package service

import (
	"context"
	"time"

	"rally/internal/courses/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
)

const sweepBatchSize = 100

// CompletionSweeper periodically transitions CONFIRMED courses whose slot
// has ended. Completion is idempotent, so overlapping sweeps (or a manual
// completion racing a sweep) are harmless.
type CompletionSweeper struct {
	courses CourseService
	repo    repository.CourseRepository
	clock   clock.Clock
	cfg     *config.Config
}

func NewCompletionSweeper(courses CourseService, repo repository.CourseRepository, clk clock.Clock, cfg *config.Config) *CompletionSweeper {
	return &CompletionSweeper{courses: courses, repo: repo, clock: clk, cfg: cfg}
}

func (s *CompletionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.cfg.Log.Info("Completion sweeper started", "interval", s.cfg.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Completion sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CompletionSweeper) sweep(ctx context.Context) {
	ended, err := s.repo.FindConfirmedEndedBefore(ctx, s.clock.Now(), sweepBatchSize)
	if err != nil {
		s.cfg.Log.Error("Completion sweep query failed", "error", err)
		return
	}

	for _, course := range ended {
		if ctx.Err() != nil {
			return
		}
		if err := s.courses.Complete(ctx, course.ID); err != nil {
			s.cfg.Log.Warn("Failed to complete ended course", "id", course.ID, "error", err)
		}
	}

	if len(ended) > 0 {
		s.cfg.Log.Info("Completion sweep finished", "processed", len(ended))
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"rally/internal/quota/repository"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
)

// CancellationPolicy enforces the per-student monthly cancellation cap.
// The policy fails closed: a counter that cannot be read blocks the
// cancellation rather than allowing it.
type CancellationPolicy interface {
	// Check returns QuotaExceeded when the student's counter for the month
	// containing now has reached the limit.
	Check(ctx context.Context, studentID string, now time.Time) error
	// Record attributes one cancellation to the month containing when.
	Record(ctx context.Context, studentID string, when time.Time) error
	// Used reports the consumed and allowed counts for the month
	// containing now.
	Used(ctx context.Context, studentID string, now time.Time) (int, int, error)
}

type cancellationPolicy struct {
	repo repository.CounterRepository
	cfg  *config.Config
}

func NewCancellationPolicy(repo repository.CounterRepository, cfg *config.Config) CancellationPolicy {
	return &cancellationPolicy{repo: repo, cfg: cfg}
}

func (p *cancellationPolicy) Check(ctx context.Context, studentID string, now time.Time) error {
	count, err := p.repo.Count(ctx, studentID, model.YearMonth(now))
	if err != nil {
		return apperrors.Internal("Failed to read cancellation counter", err)
	}
	if count >= p.cfg.MonthlyCancelLimit {
		return apperrors.QuotaExceeded(fmt.Sprintf(
			"Monthly cancellation limit reached (%d of %d used)", count, p.cfg.MonthlyCancelLimit,
		)).WithDetails(map[string]any{
			"student_id": studentID,
			"year_month": model.YearMonth(now),
			"used":       count,
			"limit":      p.cfg.MonthlyCancelLimit,
		})
	}
	return nil
}

func (p *cancellationPolicy) Record(ctx context.Context, studentID string, when time.Time) error {
	if err := p.repo.Increment(ctx, studentID, model.YearMonth(when)); err != nil {
		return apperrors.Internal("Failed to record cancellation", err)
	}
	return nil
}

func (p *cancellationPolicy) Used(ctx context.Context, studentID string, now time.Time) (int, int, error) {
	count, err := p.repo.Count(ctx, studentID, model.YearMonth(now))
	if err != nil {
		return 0, 0, apperrors.Internal("Failed to read cancellation counter", err)
	}
	return count, p.cfg.MonthlyCancelLimit, nil
}

package service

import (
	"context"
	"errors"

	courseerrors "rally/internal/courses/errors"
	"rally/internal/courses/repository"
	"rally/pkg/model"
)

// CourseChargeGuard answers whether a deferred course fee is still owed
// when the compensator replays it. A fee stays due only while the course is
// CONFIRMED or already COMPLETED; a course cancelled before the replay
// lands owes nothing.
type CourseChargeGuard struct {
	repo repository.CourseRepository
}

func NewCourseChargeGuard(repo repository.CourseRepository) *CourseChargeGuard {
	return &CourseChargeGuard{repo: repo}
}

func (g *CourseChargeGuard) ChargeDue(ctx context.Context, courseID string) (bool, error) {
	course, err := g.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, courseerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return course.Status == model.CourseConfirmed || course.Status == model.CourseCompleted, nil
}

// ChargeApplied stamps the course so a later cancellation knows to refund
// the replayed fee.
func (g *CourseChargeGuard) ChargeApplied(ctx context.Context, courseID string, at model.DateTime) error {
	return g.repo.MarkCharged(ctx, courseID, at)
}

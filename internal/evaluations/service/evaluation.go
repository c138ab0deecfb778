package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	evalerrors "rally/internal/evaluations/errors"
	"rally/internal/evaluations/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
	"rally/pkg/sanitizer"
)

// CourseReader resolves courses for the completion and authorship checks.
// Satisfied by the courses repository.
type CourseReader interface {
	FindByID(ctx context.Context, id string) (*model.Course, error)
}

type EvaluationService interface {
	// Create accepts feedback only for a COMPLETED course and only from
	// that course's student or coach.
	Create(ctx context.Context, actor model.Actor, courseID string, rating int, content string) (*model.Evaluation, error)
	ListByCourse(ctx context.Context, courseID string) ([]*model.Evaluation, error)
	ListByAuthor(ctx context.Context, actor model.Actor, authorID string, page, size int) ([]*model.Evaluation, int64, error)
}

type evaluationService struct {
	repo    repository.EvaluationRepository
	courses CourseReader
	clock   clock.Clock
	cfg     *config.Config
}

func NewEvaluationService(repo repository.EvaluationRepository, courses CourseReader, clk clock.Clock, cfg *config.Config) EvaluationService {
	return &evaluationService{repo: repo, courses: courses, clock: clk, cfg: cfg}
}

func (s *evaluationService) Create(ctx context.Context, actor model.Actor, courseID string, rating int, content string) (*model.Evaluation, error) {
	if courseID == "" {
		return nil, apperrors.InvalidInput("course_id is required")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, apperrors.NotFoundWithID("Course", courseID)
	}

	var role model.Role
	switch actor.UserID {
	case course.StudentID:
		role = model.RoleStudent
	case course.CoachID:
		role = model.RoleCoach
	default:
		return nil, apperrors.Forbidden("Only the course's student or coach can evaluate it")
	}

	if course.Status != model.CourseCompleted {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot evaluate a course in status %s", course.Status))
	}

	evaluation := &model.Evaluation{
		CourseID:   courseID,
		AuthorID:   actor.UserID,
		AuthorRole: role,
		Rating:     sanitizer.NormalizeRating(rating),
		Content:    sanitizer.NormalizeText(content),
		CreatedAt:  model.NewDateTime(s.clock.Now()),
	}
	if err := s.repo.Create(ctx, evaluation); err != nil {
		if errors.Is(err, evalerrors.ErrDuplicate) {
			return nil, apperrors.Conflict("You have already evaluated this course")
		}
		return nil, apperrors.Internal("Failed to create evaluation", err)
	}

	s.cfg.Log.Info("Evaluation created", "id", evaluation.ID, "course_id", courseID, "author_id", actor.UserID)
	return evaluation, nil
}

func (s *evaluationService) ListByCourse(ctx context.Context, courseID string) ([]*model.Evaluation, error) {
	evaluations, err := s.repo.FindByCourse(ctx, courseID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list evaluations", err)
	}
	return evaluations, nil
}

func (s *evaluationService) ListByAuthor(ctx context.Context, actor model.Actor, authorID string, page, size int) ([]*model.Evaluation, int64, error) {
	if actor.UserID != authorID && !actor.Admin() {
		return nil, 0, apperrors.Forbidden("Only the author or an admin can list an author's evaluations")
	}

	var (
		evaluations []*model.Evaluation
		total       int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.CountByAuthor(gctx, authorID)
		if err != nil {
			return apperrors.Internal("Failed to count evaluations", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		evaluations, err = s.repo.FindByAuthor(gctx, authorID, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list evaluations", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return evaluations, total, nil
}

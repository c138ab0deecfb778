package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	evalerrors "rally/internal/evaluations/errors"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/model"
)

type mockEvalRepo struct {
	createFunc func(ctx context.Context, evaluation *model.Evaluation) error
	created    []*model.Evaluation
}

func (m *mockEvalRepo) Create(ctx context.Context, evaluation *model.Evaluation) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, evaluation)
	}
	evaluation.ID = "evaluation-1"
	m.created = append(m.created, evaluation)
	return nil
}

func (m *mockEvalRepo) FindByCourse(ctx context.Context, courseID string) ([]*model.Evaluation, error) {
	return m.created, nil
}

func (m *mockEvalRepo) FindByAuthor(ctx context.Context, authorID string, page, size int) ([]*model.Evaluation, error) {
	return m.created, nil
}

func (m *mockEvalRepo) CountByAuthor(ctx context.Context, authorID string) (int64, error) {
	return int64(len(m.created)), nil
}

type mockCourseReader struct {
	course *model.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*model.Course, error) {
	return m.course, nil
}

func newEvalService(t *testing.T, status model.CourseStatus) (EvaluationService, *mockEvalRepo) {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.JSON, Output: io.Discard})
	repo := &mockEvalRepo{}
	courses := &mockCourseReader{course: &model.Course{
		ID:        "course-1",
		CoachID:   "coach-1",
		StudentID: "student-1",
		Status:    status,
	}}
	svc := NewEvaluationService(repo, courses,
		clock.Fixed(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		&config.Config{Log: log})
	return svc, repo
}

func TestCreateAcceptsCompletedCourseParticipant(t *testing.T) {
	svc, repo := newEvalService(t, model.CourseCompleted)

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	evaluation, err := svc.Create(context.Background(), actor, "course-1", 5, "  great session  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if evaluation.AuthorRole != model.RoleStudent {
		t.Errorf("author role = %s, want student", evaluation.AuthorRole)
	}
	if evaluation.Content != "great session" {
		t.Errorf("content = %q, want trimmed", evaluation.Content)
	}
	if len(repo.created) != 1 {
		t.Errorf("created = %d, want 1", len(repo.created))
	}
}

func TestCreateRejectsNonCompletedCourse(t *testing.T) {
	svc, _ := newEvalService(t, model.CourseConfirmed)

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := svc.Create(context.Background(), actor, "course-1", 4, "early")
	if !apperrors.IsKind(err, apperrors.KindInvalidState) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestCreateRejectsNonParticipant(t *testing.T) {
	svc, _ := newEvalService(t, model.CourseCompleted)

	actor := model.Actor{UserID: "stranger", Role: model.RoleStudent}
	_, err := svc.Create(context.Background(), actor, "course-1", 4, "nice")
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestCreateClampsRatingAndTruncatesContent(t *testing.T) {
	svc, _ := newEvalService(t, model.CourseCompleted)

	actor := model.Actor{UserID: "coach-1", Role: model.RoleCoach}
	evaluation, err := svc.Create(context.Background(), actor, "course-1", 9, strings.Repeat("x", 5000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if evaluation.Rating != 5 {
		t.Errorf("rating = %d, want clamped to 5", evaluation.Rating)
	}
	if len(evaluation.Content) != 2000 {
		t.Errorf("content length = %d, want truncated to 2000", len(evaluation.Content))
	}
	if evaluation.AuthorRole != model.RoleCoach {
		t.Errorf("author role = %s, want coach", evaluation.AuthorRole)
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	svc, repo := newEvalService(t, model.CourseCompleted)
	repo.createFunc = func(ctx context.Context, evaluation *model.Evaluation) error {
		return evalerrors.ErrDuplicate
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := svc.Create(context.Background(), actor, "course-1", 3, "again")
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

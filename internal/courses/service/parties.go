package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	courseerrors "rally/internal/courses/errors"
	"rally/internal/courses/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
	"rally/pkg/sanitizer"
)

// PartyService manages the bookable entities: coaches, students and
// tables. Creation is an admin concern; the booking scheduler only reads.
type PartyService interface {
	CreateCoach(ctx context.Context, actor model.Actor, coach *model.Coach) (*model.Coach, error)
	CreateStudent(ctx context.Context, actor model.Actor, student *model.Student) (*model.Student, error)
	CreateTable(ctx context.Context, actor model.Actor, table *model.Table) (*model.Table, error)
	GetCoach(ctx context.Context, id string) (*model.Coach, error)
	ListCoaches(ctx context.Context, campusID string, page, size int) ([]*model.Coach, int64, error)
}

type partyService struct {
	coaches  repository.CoachRepository
	students repository.StudentRepository
	tables   repository.TableRepository
	clock    clock.Clock
	cfg      *config.Config
}

func NewPartyService(
	coaches repository.CoachRepository,
	students repository.StudentRepository,
	tables repository.TableRepository,
	clk clock.Clock,
	cfg *config.Config,
) PartyService {
	return &partyService{
		coaches:  coaches,
		students: students,
		tables:   tables,
		clock:    clk,
		cfg:      cfg,
	}
}

func (s *partyService) CreateCoach(ctx context.Context, actor model.Actor, coach *model.Coach) (*model.Coach, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can create coaches")
	}
	if coach.CampusID == "" || coach.Name == "" {
		return nil, apperrors.InvalidInput("campus_id and name are required")
	}
	if coach.HourlyRate <= 0 {
		return nil, apperrors.InvalidInput("hourly_rate must be positive")
	}

	coach.Name = sanitizer.NormalizeName(coach.Name)
	if coach.MaxStudents <= 0 {
		coach.MaxStudents = s.cfg.CoachMaxStudents
	}
	coach.CreatedAt = model.NewDateTime(s.clock.Now())

	if err := s.coaches.Create(ctx, coach); err != nil {
		return nil, apperrors.Internal("Failed to create coach", err)
	}

	s.cfg.Log.Info("Coach created", "id", coach.ID, "campus_id", coach.CampusID)
	return coach, nil
}

func (s *partyService) CreateStudent(ctx context.Context, actor model.Actor, student *model.Student) (*model.Student, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can create students")
	}
	if student.CampusID == "" || student.Name == "" {
		return nil, apperrors.InvalidInput("campus_id and name are required")
	}

	student.Name = sanitizer.NormalizeName(student.Name)
	student.CreatedAt = model.NewDateTime(s.clock.Now())

	if err := s.students.Create(ctx, student); err != nil {
		return nil, apperrors.Internal("Failed to create student", err)
	}

	s.cfg.Log.Info("Student created", "id", student.ID, "campus_id", student.CampusID)
	return student, nil
}

func (s *partyService) CreateTable(ctx context.Context, actor model.Actor, table *model.Table) (*model.Table, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can create tables")
	}
	if table.CampusID == "" || table.Number == "" {
		return nil, apperrors.InvalidInput("campus_id and number are required")
	}

	table.CreatedAt = model.NewDateTime(s.clock.Now())

	if err := s.tables.Create(ctx, table); err != nil {
		return nil, apperrors.Internal("Failed to create table", err)
	}

	s.cfg.Log.Info("Table created", "id", table.ID, "campus_id", table.CampusID, "number", table.Number)
	return table, nil
}

func (s *partyService) GetCoach(ctx context.Context, id string) (*model.Coach, error) {
	coach, err := s.coaches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, courseerrors.ErrCoachNotFound) {
			return nil, apperrors.NotFoundWithID("Coach", id)
		}
		return nil, apperrors.Internal("Failed to load coach", err)
	}
	return coach, nil
}

func (s *partyService) ListCoaches(ctx context.Context, campusID string, page, size int) ([]*model.Coach, int64, error) {
	var (
		coaches []*model.Coach
		total   int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.coaches.CountByCampus(gctx, campusID)
		if err != nil {
			return apperrors.Internal("Failed to count coaches", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		coaches, err = s.coaches.FindByCampus(gctx, campusID, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list coaches", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return coaches, total, nil
}

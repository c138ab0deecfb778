package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"golang.org/x/sync/errgroup"

	"rally/internal/notify"
	tournamenterrors "rally/internal/tournaments/errors"
	"rally/internal/tournaments/repository"
	"rally/internal/tournaments/validator"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
	"rally/pkg/sanitizer"
)

type TournamentService interface {
	Create(ctx context.Context, actor model.Actor, req *validator.CreateRequest) (*model.Tournament, error)
	Publish(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error)
	Register(ctx context.Context, actor model.Actor, tournamentID, studentID, group string) (*model.Enrollment, error)
	CloseRegistration(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error)
	// Start closes the bracket: generates the match schedule from the
	// enrollments and moves the tournament to IN_PROGRESS.
	Start(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error)
	// End completes the tournament once every match has a result.
	End(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error)
	// AdminCancel aborts from any non-terminal state. Idempotent under
	// retry: cancelling a CANCELLED tournament is a no-op.
	AdminCancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Tournament, error)
	RecordResult(ctx context.Context, actor model.Actor, matchID, winnerID string) (*model.Match, error)
	GetByID(ctx context.Context, id string) (*model.Tournament, error)
	List(ctx context.Context, filter repository.TournamentFilter, page, size int) ([]*model.Tournament, int64, error)
	Enrollments(ctx context.Context, tournamentID string) ([]*model.Enrollment, error)
	Matches(ctx context.Context, tournamentID string) ([]*model.Match, error)
	// SweepRegistrationWindows closes registration on PUBLISHED
	// tournaments whose window has passed. Driven by a background worker.
	SweepRegistrationWindows(ctx context.Context) error
}

type tournamentService struct {
	repo        repository.TournamentRepository
	enrollments repository.EnrollmentRepository
	matches     repository.MatchRepository
	sink        notify.Sink
	validator   *validator.TournamentValidator
	clock       clock.Clock
	cfg         *config.Config
}

func NewTournamentService(
	repo repository.TournamentRepository,
	enrollments repository.EnrollmentRepository,
	matches repository.MatchRepository,
	sink notify.Sink,
	v *validator.TournamentValidator,
	clk clock.Clock,
	cfg *config.Config,
) TournamentService {
	return &tournamentService{
		repo:        repo,
		enrollments: enrollments,
		matches:     matches,
		sink:        sink,
		validator:   v,
		clock:       clk,
		cfg:         cfg,
	}
}

func (s *tournamentService) Create(ctx context.Context, actor model.Actor, req *validator.CreateRequest) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can create tournaments")
	}

	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, apperrors.Validation("Tournament validation failed", map[string]any{"error": err.Error()})
	}

	now := model.NewDateTime(s.clock.Now())
	tournament := &model.Tournament{
		CampusID:  req.CampusID,
		Name:      sanitizer.NormalizeName(req.Name),
		Groups:    req.Groups,
		EventDate: req.EventDate,
		RegistrationWindow: model.RegistrationWindow{
			Open:  req.Open,
			Close: req.Close,
		},
		Status:    model.TournamentDraft,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, tournament); err != nil {
		return nil, apperrors.Internal("Failed to create tournament", err)
	}

	s.cfg.Log.Info("Tournament created", "id", tournament.ID, "name", tournament.Name, "campus_id", tournament.CampusID)
	return tournament, nil
}

func (s *tournamentService) Publish(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can publish tournaments")
	}

	tournament, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != model.TournamentDraft {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot publish a tournament in status %s", tournament.Status))
	}

	now := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.TournamentStatus{model.TournamentDraft},
		model.TournamentPublished, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to publish tournament", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Tournament status changed concurrently")
	}
	tournament.Status = model.TournamentPublished
	tournament.UpdatedAt = now

	s.cfg.Log.Info("Tournament published", "id", id)

	s.publish(ctx, notify.Event{
		Type:       notify.EventTournamentPublished,
		EntityID:   id,
		Payload:    map[string]any{"name": tournament.Name, "campus_id": tournament.CampusID},
		OccurredAt: s.clock.Now(),
	})

	return tournament, nil
}

func (s *tournamentService) Register(ctx context.Context, actor model.Actor, tournamentID, studentID, group string) (*model.Enrollment, error) {
	if studentID == "" || group == "" {
		return nil, apperrors.InvalidInput("student_id and group are required")
	}
	if actor.Role == model.RoleStudent && actor.UserID != studentID {
		return nil, apperrors.Forbidden("Students can only register themselves")
	}
	if actor.Role == model.RoleCoach {
		return nil, apperrors.Forbidden("Coaches cannot register for tournaments")
	}

	tournament, err := s.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != model.TournamentPublished {
		return nil, apperrors.InvalidState("Registration is not open for this tournament")
	}

	now := s.clock.Now()
	if now.Before(tournament.RegistrationWindow.Open.Time) {
		return nil, apperrors.InvalidState("Registration has not opened yet")
	}
	if !now.Before(tournament.RegistrationWindow.Close.Time) {
		return nil, apperrors.InvalidState("Registration is closed")
	}

	if !tournament.HasGroup(group) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Group %q is not part of this tournament", group))
	}

	enrollment := &model.Enrollment{
		TournamentID: tournamentID,
		StudentID:    studentID,
		Group:        group,
		CreatedAt:    model.NewDateTime(now),
	}
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// Re-asserting PUBLISHED writes the tournament document inside the
		// same transaction as the insert, so a concurrent close and this
		// registration cannot both commit.
		matched, err := s.repo.Transition(sessCtx, tournamentID,
			[]model.TournamentStatus{model.TournamentPublished},
			model.TournamentPublished, model.NewDateTime(now))
		if err != nil {
			return apperrors.Internal("Failed to verify registration status", err)
		}
		if !matched {
			return apperrors.InvalidState("Registration is closed")
		}
		if err := s.enrollments.Create(sessCtx, enrollment); err != nil {
			if errors.Is(err, tournamenterrors.ErrDuplicateEnrollment) {
				return apperrors.Conflict("Student is already enrolled in this tournament")
			}
			return apperrors.Internal("Failed to create enrollment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Tournament registration", "tournament_id", tournamentID, "student_id", studentID, "group", group)
	return enrollment, nil
}

func (s *tournamentService) CloseRegistration(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can close registration")
	}
	return s.closeRegistration(ctx, id)
}

func (s *tournamentService) closeRegistration(ctx context.Context, id string) (*model.Tournament, error) {
	tournament, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status == model.TournamentRegistrationClosed {
		return tournament, nil
	}
	if tournament.Status != model.TournamentPublished {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot close registration in status %s", tournament.Status))
	}

	now := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.TournamentStatus{model.TournamentPublished},
		model.TournamentRegistrationClosed, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to close registration", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Tournament status changed concurrently")
	}
	tournament.Status = model.TournamentRegistrationClosed
	tournament.UpdatedAt = now

	s.cfg.Log.Info("Tournament registration closed", "id", id)

	s.notifyEnrolled(ctx, tournament, notify.EventTournamentClosed, nil)
	return tournament, nil
}

func (s *tournamentService) Start(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can start tournaments")
	}

	tournament, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != model.TournamentRegistrationClosed {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot start a tournament in status %s", tournament.Status))
	}

	enrollments, err := s.enrollments.FindByTournament(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to load enrollments", err)
	}
	if len(enrollments) < 2 {
		return nil, apperrors.InvalidState("At least two enrollments are required to start")
	}

	now := model.NewDateTime(s.clock.Now())
	schedule := buildSchedule(tournament, enrollments, now)

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		matched, err := s.repo.Transition(sessCtx, id,
			[]model.TournamentStatus{model.TournamentRegistrationClosed},
			model.TournamentInProgress, now)
		if err != nil {
			return apperrors.Internal("Failed to start tournament", err)
		}
		if !matched {
			return apperrors.InvalidState("Tournament status changed concurrently")
		}
		if err := s.matches.CreateMany(sessCtx, schedule); err != nil {
			return apperrors.Internal("Failed to create match schedule", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tournament.Status = model.TournamentInProgress
	tournament.UpdatedAt = now

	s.cfg.Log.Info("Tournament started", "id", id, "matches", len(schedule))

	s.notifyEnrolledList(ctx, tournament, enrollments, notify.EventTournamentStarted, map[string]any{
		"matches": len(schedule),
	})
	return tournament, nil
}

func (s *tournamentService) End(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can end tournaments")
	}

	tournament, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != model.TournamentInProgress {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot end a tournament in status %s", tournament.Status))
	}

	pending, err := s.matches.CountPending(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to count pending matches", err)
	}
	if pending > 0 {
		return nil, apperrors.InvalidState(fmt.Sprintf("%d matches still have no result", pending))
	}

	now := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.TournamentStatus{model.TournamentInProgress},
		model.TournamentCompleted, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to end tournament", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Tournament status changed concurrently")
	}
	tournament.Status = model.TournamentCompleted
	tournament.UpdatedAt = now

	s.cfg.Log.Info("Tournament completed", "id", id)

	s.notifyEnrolled(ctx, tournament, notify.EventTournamentCompleted, nil)
	return tournament, nil
}

func (s *tournamentService) AdminCancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Tournament, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can cancel tournaments")
	}

	tournament, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status == model.TournamentCancelled {
		return tournament, nil
	}
	if tournament.Status.Terminal() {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot cancel a tournament in status %s", tournament.Status))
	}

	now := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.TournamentStatus{
			model.TournamentDraft,
			model.TournamentPublished,
			model.TournamentRegistrationClosed,
			model.TournamentInProgress,
		},
		model.TournamentCancelled, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to cancel tournament", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Tournament status changed concurrently")
	}
	tournament.Status = model.TournamentCancelled
	tournament.UpdatedAt = now

	s.cfg.Log.Info("Tournament cancelled", "id", id, "reason", reason)

	s.notifyEnrolled(ctx, tournament, notify.EventTournamentCancelled, map[string]any{"reason": reason})
	return tournament, nil
}

func (s *tournamentService) RecordResult(ctx context.Context, actor model.Actor, matchID, winnerID string) (*model.Match, error) {
	if !actor.Admin() {
		return nil, apperrors.Forbidden("Only admins can record match results")
	}
	if winnerID == "" {
		return nil, apperrors.InvalidInput("winner_id is required")
	}

	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, tournamenterrors.ErrMatchNotFound) {
			return nil, apperrors.NotFoundWithID("Match", matchID)
		}
		return nil, apperrors.Internal("Failed to load match", err)
	}

	if match.Status != model.MatchPending {
		return nil, apperrors.InvalidState("Match already has a result")
	}
	if winnerID != match.Player1ID && winnerID != match.Player2ID {
		return nil, apperrors.InvalidInput("Winner must be one of the match players")
	}

	matched, err := s.matches.SetResult(ctx, matchID, winnerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to record match result", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Match result recorded concurrently")
	}
	match.WinnerID = winnerID
	match.Status = model.MatchCompleted

	s.cfg.Log.Info("Match result recorded", "match_id", matchID, "winner_id", winnerID)
	return match, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id string) (*model.Tournament, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Tournament ID cannot be empty")
	}

	tournament, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, tournamenterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Tournament", id)
		}
		return nil, apperrors.Internal("Failed to load tournament", err)
	}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter repository.TournamentFilter, page, size int) ([]*model.Tournament, int64, error) {
	var (
		tournaments []*model.Tournament
		total       int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		if err != nil {
			return apperrors.Internal("Failed to count tournaments", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tournaments, err = s.repo.Find(gctx, filter, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list tournaments", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return tournaments, total, nil
}

func (s *tournamentService) Enrollments(ctx context.Context, tournamentID string) ([]*model.Enrollment, error) {
	enrollments, err := s.enrollments.FindByTournament(ctx, tournamentID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list enrollments", err)
	}
	return enrollments, nil
}

func (s *tournamentService) Matches(ctx context.Context, tournamentID string) ([]*model.Match, error) {
	matches, err := s.matches.FindByTournament(ctx, tournamentID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list matches", err)
	}
	return matches, nil
}

func (s *tournamentService) SweepRegistrationWindows(ctx context.Context) error {
	const batchSize = 50

	closing, err := s.repo.FindPublishedClosingBefore(ctx, s.clock.Now(), batchSize)
	if err != nil {
		return err
	}

	for _, tournament := range closing {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.closeRegistration(ctx, tournament.ID); err != nil {
			s.cfg.Log.Warn("Failed to close registration", "id", tournament.ID, "error", err)
		}
	}

	if len(closing) > 0 {
		s.cfg.Log.Info("Registration window sweep finished", "processed", len(closing))
	}
	return nil
}

// --- Helpers ---

func (s *tournamentService) notifyEnrolled(ctx context.Context, tournament *model.Tournament, eventType notify.EventType, payload map[string]any) {
	enrollments, err := s.enrollments.FindByTournament(ctx, tournament.ID)
	if err != nil {
		s.cfg.Log.Warn("Failed to load enrollments for notification", "tournament_id", tournament.ID, "error", err)
		return
	}
	s.notifyEnrolledList(ctx, tournament, enrollments, eventType, payload)
}

func (s *tournamentService) notifyEnrolledList(ctx context.Context, tournament *model.Tournament, enrollments []*model.Enrollment, eventType notify.EventType, payload map[string]any) {
	recipients := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		recipients = append(recipients, e.StudentID)
	}

	s.publish(ctx, notify.Event{
		Type:       eventType,
		EntityID:   tournament.ID,
		Recipients: recipients,
		Payload:    payload,
		OccurredAt: s.clock.Now(),
	})
}

func (s *tournamentService) publish(ctx context.Context, event notify.Event) {
	if err := s.sink.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish notification",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

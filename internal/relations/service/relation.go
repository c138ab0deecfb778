package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/mongo"

	"golang.org/x/sync/errgroup"

	courseerrors "rally/internal/courses/errors"
	"rally/internal/notify"
	relationerrors "rally/internal/relations/errors"
	"rally/internal/relations/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
)

// TerminatedReason marks relations ended by an explicit terminate call
// rather than a coach's rejection of the application.
const TerminatedReason = "terminated"

// CoachDirectory resolves coaches for capacity checks. Satisfied by the
// courses coach repository.
type CoachDirectory interface {
	FindByID(ctx context.Context, id string) (*model.Coach, error)
}

// StudentDirectory resolves students. Satisfied by the courses student
// repository.
type StudentDirectory interface {
	FindByID(ctx context.Context, id string) (*model.Student, error)
}

type RelationService interface {
	Apply(ctx context.Context, actor model.Actor, coachID, studentID string) (*model.Relation, error)
	Approve(ctx context.Context, actor model.Actor, id string) (*model.Relation, error)
	Reject(ctx context.Context, actor model.Actor, id, reason string) (*model.Relation, error)
	// Terminate ends an APPROVED relation, freeing the coach's capacity.
	Terminate(ctx context.Context, actor model.Actor, id, reason string) (*model.Relation, error)
	// ChangeCoach atomically supersedes the student's APPROVED relation
	// with oldCoachID and opens a PENDING application to newCoachID.
	ChangeCoach(ctx context.Context, actor model.Actor, studentID, oldCoachID, newCoachID string) (*model.Relation, error)
	GetByID(ctx context.Context, actor model.Actor, id string) (*model.Relation, error)
	List(ctx context.Context, actor model.Actor, filter repository.RelationFilter, page, size int) ([]*model.Relation, int64, error)
}

type relationService struct {
	repo     repository.RelationRepository
	locks    repository.RelationLockRepository
	coaches  CoachDirectory
	students StudentDirectory
	sink     notify.Sink
	clock    clock.Clock
	cfg      *config.Config
}

func NewRelationService(
	repo repository.RelationRepository,
	locks repository.RelationLockRepository,
	coaches CoachDirectory,
	students StudentDirectory,
	sink notify.Sink,
	clk clock.Clock,
	cfg *config.Config,
) RelationService {
	return &relationService{
		repo:     repo,
		locks:    locks,
		coaches:  coaches,
		students: students,
		sink:     sink,
		clock:    clk,
		cfg:      cfg,
	}
}

func (s *relationService) Apply(ctx context.Context, actor model.Actor, coachID, studentID string) (*model.Relation, error) {
	if coachID == "" || studentID == "" {
		return nil, apperrors.InvalidInput("coach_id and student_id are required")
	}
	if actor.Role == model.RoleStudent && actor.UserID != studentID {
		return nil, apperrors.Forbidden("Students can only apply for themselves")
	}
	if actor.Role == model.RoleCoach {
		return nil, apperrors.Forbidden("Coaches cannot apply to themselves")
	}

	coach, err := s.findCoach(ctx, coachID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findStudent(ctx, studentID); err != nil {
		return nil, err
	}

	activeCoaches, err := s.repo.CountActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.Internal("Failed to count student relations", err)
	}
	if activeCoaches >= int64(s.cfg.MaxCoachesPerStudent) {
		return nil, apperrors.QuotaExceeded(fmt.Sprintf(
			"Student already has %d active coach relations (limit %d)", activeCoaches, s.cfg.MaxCoachesPerStudent,
		))
	}

	approved, err := s.repo.CountApprovedByCoach(ctx, coachID)
	if err != nil {
		return nil, apperrors.Internal("Failed to count coach students", err)
	}
	if approved >= int64(coach.MaxStudents) {
		return nil, apperrors.QuotaExceeded(fmt.Sprintf(
			"Coach has reached the student capacity of %d", coach.MaxStudents,
		))
	}

	release, err := s.acquireLocks(ctx, pairKey(coachID, studentID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	relation := &model.Relation{
		CoachID:   coachID,
		StudentID: studentID,
		Status:    model.RelationPending,
		AppliedAt: model.NewDateTime(now),
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.repo.FindActivePair(sessCtx, coachID, studentID); err == nil {
			return apperrors.Conflict("An application or approved relation already exists for this pair")
		} else if !errors.Is(err, relationerrors.ErrNotFound) {
			return apperrors.Internal("Failed to check existing relation", err)
		}

		if err := s.repo.Create(sessCtx, relation); err != nil {
			return apperrors.Internal("Failed to create relation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Relation applied", "id", relation.ID, "coach_id", coachID, "student_id", studentID)

	s.publish(ctx, notify.Event{
		Type:       notify.EventRelationApplied,
		EntityID:   relation.ID,
		Recipients: []string{coachID},
		Payload:    map[string]any{"student_id": studentID},
		OccurredAt: now,
	})

	return relation, nil
}

func (s *relationService) Approve(ctx context.Context, actor model.Actor, id string) (*model.Relation, error) {
	relation, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != relation.CoachID && !actor.Admin() {
		return nil, apperrors.Forbidden("Only the coach or an admin can approve an application")
	}
	if relation.Status != model.RelationPending {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot approve a relation in status %s", relation.Status))
	}

	coach, err := s.findCoach(ctx, relation.CoachID)
	if err != nil {
		return nil, err
	}

	// The coach lock serializes competing approvals so the capacity count
	// cannot be raced past the limit.
	release, err := s.acquireLocks(ctx, coachKey(relation.CoachID))
	if err != nil {
		return nil, err
	}
	defer release()

	decidedAt := model.NewDateTime(s.clock.Now())
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		approved, err := s.repo.CountApprovedByCoach(sessCtx, relation.CoachID)
		if err != nil {
			return apperrors.Internal("Failed to count coach students", err)
		}
		if approved >= int64(coach.MaxStudents) {
			return apperrors.QuotaExceeded(fmt.Sprintf(
				"Coach has reached the student capacity of %d", coach.MaxStudents,
			))
		}

		matched, err := s.repo.Transition(sessCtx, id,
			[]model.RelationStatus{model.RelationPending},
			model.RelationApproved, "", decidedAt)
		if err != nil {
			return apperrors.Internal("Failed to approve relation", err)
		}
		if !matched {
			return apperrors.InvalidState("Relation status changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	relation.Status = model.RelationApproved
	relation.DecidedAt = &decidedAt

	s.cfg.Log.Info("Relation approved", "id", id, "coach_id", relation.CoachID, "student_id", relation.StudentID)

	s.publish(ctx, notify.Event{
		Type:       notify.EventRelationApproved,
		EntityID:   id,
		Recipients: []string{relation.StudentID},
		OccurredAt: s.clock.Now(),
	})

	return relation, nil
}

func (s *relationService) Reject(ctx context.Context, actor model.Actor, id, reason string) (*model.Relation, error) {
	relation, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != relation.CoachID && !actor.Admin() {
		return nil, apperrors.Forbidden("Only the coach or an admin can reject an application")
	}
	if relation.Status != model.RelationPending {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot reject a relation in status %s", relation.Status))
	}

	decidedAt := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.RelationStatus{model.RelationPending},
		model.RelationRejected, reason, decidedAt)
	if err != nil {
		return nil, apperrors.Internal("Failed to reject relation", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Relation status changed concurrently")
	}
	relation.Status = model.RelationRejected
	relation.Reason = reason
	relation.DecidedAt = &decidedAt

	s.cfg.Log.Info("Relation rejected", "id", id, "reason", reason)

	s.publish(ctx, notify.Event{
		Type:       notify.EventRelationRejected,
		EntityID:   id,
		Recipients: []string{relation.StudentID},
		Payload:    map[string]any{"reason": reason},
		OccurredAt: s.clock.Now(),
	})

	return relation, nil
}

func (s *relationService) Terminate(ctx context.Context, actor model.Actor, id, reason string) (*model.Relation, error) {
	relation, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	participant := actor.UserID == relation.CoachID || actor.UserID == relation.StudentID
	if !participant && !actor.Admin() {
		return nil, apperrors.Forbidden("Only a participant or an admin can terminate a relation")
	}
	if relation.Status != model.RelationApproved {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot terminate a relation in status %s", relation.Status))
	}

	if reason == "" {
		reason = TerminatedReason
	}

	decidedAt := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id,
		[]model.RelationStatus{model.RelationApproved},
		model.RelationRejected, reason, decidedAt)
	if err != nil {
		return nil, apperrors.Internal("Failed to terminate relation", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Relation status changed concurrently")
	}
	relation.Status = model.RelationRejected
	relation.Reason = reason
	relation.DecidedAt = &decidedAt

	s.cfg.Log.Info("Relation terminated", "id", id, "by", actor.UserID)

	recipient := relation.StudentID
	if actor.UserID == relation.StudentID {
		recipient = relation.CoachID
	}
	s.publish(ctx, notify.Event{
		Type:       notify.EventRelationTerminated,
		EntityID:   id,
		Recipients: []string{recipient},
		Payload:    map[string]any{"reason": reason},
		OccurredAt: s.clock.Now(),
	})

	return relation, nil
}

func (s *relationService) ChangeCoach(ctx context.Context, actor model.Actor, studentID, oldCoachID, newCoachID string) (*model.Relation, error) {
	if studentID == "" || oldCoachID == "" || newCoachID == "" {
		return nil, apperrors.InvalidInput("student_id, old_coach_id and new_coach_id are required")
	}
	if oldCoachID == newCoachID {
		return nil, apperrors.InvalidInput("new coach must differ from the old coach")
	}
	if actor.Role == model.RoleStudent && actor.UserID != studentID {
		return nil, apperrors.Forbidden("Students can only change their own coach")
	}
	if actor.Role == model.RoleCoach {
		return nil, apperrors.Forbidden("Coaches cannot change a student's coach")
	}

	newCoach, err := s.findCoach(ctx, newCoachID)
	if err != nil {
		return nil, err
	}

	approved, err := s.repo.CountApprovedByCoach(ctx, newCoachID)
	if err != nil {
		return nil, apperrors.Internal("Failed to count coach students", err)
	}
	if approved >= int64(newCoach.MaxStudents) {
		return nil, apperrors.QuotaExceeded(fmt.Sprintf(
			"Coach has reached the student capacity of %d", newCoach.MaxStudents,
		))
	}

	release, err := s.acquireLocks(ctx,
		pairKey(oldCoachID, studentID),
		pairKey(newCoachID, studentID),
	)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	decidedAt := model.NewDateTime(now)
	newRelation := &model.Relation{
		CoachID:   newCoachID,
		StudentID: studentID,
		Status:    model.RelationPending,
		AppliedAt: decidedAt,
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		old, err := s.repo.FindActivePair(sessCtx, oldCoachID, studentID)
		if err != nil {
			if errors.Is(err, relationerrors.ErrNotFound) {
				return apperrors.NotFound("Active relation with the old coach")
			}
			return apperrors.Internal("Failed to load old relation", err)
		}
		if old.Status != model.RelationApproved {
			return apperrors.InvalidState("The relation with the old coach is not approved")
		}

		if _, err := s.repo.FindActivePair(sessCtx, newCoachID, studentID); err == nil {
			return apperrors.Conflict("An application or approved relation already exists with the new coach")
		} else if !errors.Is(err, relationerrors.ErrNotFound) {
			return apperrors.Internal("Failed to check new relation", err)
		}

		matched, err := s.repo.Transition(sessCtx, old.ID,
			[]model.RelationStatus{model.RelationApproved},
			model.RelationRejected, model.SupersededReason, decidedAt)
		if err != nil {
			return apperrors.Internal("Failed to supersede old relation", err)
		}
		if !matched {
			return apperrors.InvalidState("Old relation changed concurrently")
		}

		if err := s.repo.Create(sessCtx, newRelation); err != nil {
			return apperrors.Internal("Failed to create new relation", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to change coach", "student_id", studentID, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Coach changed",
		"student_id", studentID,
		"old_coach_id", oldCoachID,
		"new_coach_id", newCoachID,
		"new_relation_id", newRelation.ID,
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventRelationApplied,
		EntityID:   newRelation.ID,
		Recipients: []string{newCoachID},
		Payload:    map[string]any{"student_id": studentID, "superseded_coach_id": oldCoachID},
		OccurredAt: now,
	})

	return newRelation, nil
}

func (s *relationService) GetByID(ctx context.Context, actor model.Actor, id string) (*model.Relation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Relation ID cannot be empty")
	}

	relation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, relationerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Relation", id)
		}
		return nil, apperrors.Internal("Failed to load relation", err)
	}

	if actor.UserID != relation.CoachID && actor.UserID != relation.StudentID && !actor.Admin() {
		return nil, apperrors.Forbidden("Not a participant of this relation")
	}
	return relation, nil
}

func (s *relationService) List(ctx context.Context, actor model.Actor, filter repository.RelationFilter, page, size int) ([]*model.Relation, int64, error) {
	switch actor.Role {
	case model.RoleStudent:
		filter.StudentID = actor.UserID
	case model.RoleCoach:
		filter.CoachID = actor.UserID
	default:
		if !actor.Admin() {
			return nil, 0, apperrors.Forbidden("Unknown caller role")
		}
	}

	var (
		relations []*model.Relation
		total     int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		if err != nil {
			return apperrors.Internal("Failed to count relations", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		relations, err = s.repo.Find(gctx, filter, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list relations", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return relations, total, nil
}

// --- Helpers ---

func pairKey(coachID, studentID string) string {
	return "pair:" + coachID + ":" + studentID
}

func coachKey(coachID string) string {
	return "coach:" + coachID
}

// acquireLocks takes the given advisory locks in sorted key order so that
// any two callers contending on overlapping key sets lock in the same
// global order.
func (s *relationService) acquireLocks(ctx context.Context, keys ...string) (func(), error) {
	sort.Strings(keys)
	acquired := make([]string, 0, len(keys))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := s.locks.Release(ctx, acquired[i]); err != nil {
				s.cfg.Log.Warn("Failed to release relation lock", "lock_id", acquired[i], "error", err)
			}
		}
	}

	now := s.clock.Now()
	for _, key := range keys {
		lock := &model.SlotLock{
			ID:        key,
			ExpiresAt: model.NewDateTime(now.Add(s.cfg.SlotLockTTL)),
			CreatedAt: model.NewDateTime(now),
		}
		if err := s.locks.Acquire(ctx, lock); err != nil {
			release()
			if mongo.IsDuplicateKeyError(err) {
				return nil, apperrors.Conflict("A concurrent relation change is in progress. Please try again.")
			}
			return nil, apperrors.Internal("Failed to acquire relation lock", err)
		}
		acquired = append(acquired, key)
	}

	return release, nil
}

func (s *relationService) findCoach(ctx context.Context, id string) (*model.Coach, error) {
	coach, err := s.coaches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, courseerrors.ErrCoachNotFound) {
			return nil, apperrors.NotFoundWithID("Coach", id)
		}
		return nil, apperrors.Internal("Failed to look up coach", err)
	}
	return coach, nil
}

func (s *relationService) findStudent(ctx context.Context, id string) (*model.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, courseerrors.ErrStudentNotFound) {
			return nil, apperrors.NotFoundWithID("Student", id)
		}
		return nil, apperrors.Internal("Failed to look up student", err)
	}
	return student, nil
}

func (s *relationService) publish(ctx context.Context, event notify.Event) {
	if err := s.sink.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish notification",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

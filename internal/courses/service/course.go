package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"golang.org/x/sync/errgroup"

	courseerrors "rally/internal/courses/errors"
	"rally/internal/courses/repository"
	"rally/internal/courses/validator"
	"rally/internal/notify"
	quotaservice "rally/internal/quota/service"
	"rally/pkg/clock"
	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/model"
)

// RelationChecker answers whether a student is approved to book a coach.
// Implemented by the relations repository.
type RelationChecker interface {
	HasApprovedRelation(ctx context.Context, coachID, studentID string) (bool, error)
}

// PaymentLedger is the balance collaborator as seen from the scheduler.
// Calls happen strictly after the owning transaction commits; failures
// are compensated, never rolled back into.
type PaymentLedger interface {
	Charge(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	Refund(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	BalanceOf(ctx context.Context, userID string) (model.Amount, error)
}

// Compensator queues downstream effects that failed post-commit.
type Compensator interface {
	EnqueueCharge(ctx context.Context, userID string, amount model.Amount, relatedID string)
	EnqueueRefund(ctx context.Context, userID string, amount model.Amount, relatedID string)
	EnqueueNotify(ctx context.Context, event notify.Event)
}

type CourseService interface {
	Book(ctx context.Context, actor model.Actor, req *validator.BookRequest) (*model.Course, error)
	Confirm(ctx context.Context, actor model.Actor, id string) (*model.Course, error)
	Reject(ctx context.Context, actor model.Actor, id, reason string) (*model.Course, error)
	Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Course, error)
	// Complete transitions a CONFIRMED course whose slot has ended.
	// Idempotent: completing a COMPLETED course is a no-op.
	Complete(ctx context.Context, id string) error
	GetByID(ctx context.Context, actor model.Actor, id string) (*model.Course, error)
	List(ctx context.Context, actor model.Actor, filter repository.CourseFilter, page, size int) ([]*model.Course, int64, error)
	AvailableTables(ctx context.Context, campusID string, start, end time.Time) ([]*model.Table, error)
	MonthlyIncome(ctx context.Context, actor model.Actor, coachID, yearMonth string) (model.Amount, error)
	TodayConfirmedCount(ctx context.Context, actor model.Actor, campusID string) (int64, error)
	CancellationsUsed(ctx context.Context, actor model.Actor, studentID string) (int, int, error)
}

type courseService struct {
	repo      repository.CourseRepository
	slots     repository.SlotIndex
	locks     repository.SlotLockRepository
	coaches   repository.CoachRepository
	students  repository.StudentRepository
	tables    repository.TableRepository
	relations RelationChecker
	policy    quotaservice.CancellationPolicy
	ledger    PaymentLedger
	comp      Compensator
	sink      notify.Sink
	validator *validator.CourseValidator
	clock     clock.Clock
	cfg       *config.Config
}

type Deps struct {
	Courses   repository.CourseRepository
	Slots     repository.SlotIndex
	Locks     repository.SlotLockRepository
	Coaches   repository.CoachRepository
	Students  repository.StudentRepository
	Tables    repository.TableRepository
	Relations RelationChecker
	Policy    quotaservice.CancellationPolicy
	Ledger    PaymentLedger
	Comp      Compensator
	Sink      notify.Sink
	Validator *validator.CourseValidator
	Clock     clock.Clock
	Config    *config.Config
}

func NewCourseService(d Deps) CourseService {
	return &courseService{
		repo:      d.Courses,
		slots:     d.Slots,
		locks:     d.Locks,
		coaches:   d.Coaches,
		students:  d.Students,
		tables:    d.Tables,
		relations: d.Relations,
		policy:    d.Policy,
		ledger:    d.Ledger,
		comp:      d.Comp,
		sink:      d.Sink,
		validator: d.Validator,
		clock:     d.Clock,
		cfg:       d.Config,
	}
}

func (s *courseService) Book(ctx context.Context, actor model.Actor, req *validator.BookRequest) (*model.Course, error) {
	if actor.Role == model.RoleStudent && req.StudentID != actor.UserID {
		return nil, apperrors.Forbidden("Students can only book for themselves")
	}
	if actor.Role == model.RoleCoach {
		return nil, apperrors.Forbidden("Coaches cannot book sessions")
	}

	if err := s.validator.ValidateBook(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	now := s.clock.Now()
	if !req.StartTime.After(now) {
		return nil, apperrors.InvalidInput("start_time must be in the future")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, courseerrors.ErrStudentNotFound) {
			return nil, apperrors.NotFoundWithID("Student", req.StudentID)
		}
		return nil, apperrors.Internal("Failed to look up student", err)
	}

	coach, err := s.coaches.FindByID(ctx, req.CoachID)
	if err != nil {
		if errors.Is(err, courseerrors.ErrCoachNotFound) {
			return nil, apperrors.NotFoundWithID("Coach", req.CoachID)
		}
		return nil, apperrors.Internal("Failed to look up coach", err)
	}

	table, err := s.tables.FindByID(ctx, req.TableID)
	if err != nil {
		if errors.Is(err, courseerrors.ErrTableNotFound) {
			return nil, apperrors.NotFoundWithID("Table", req.TableID)
		}
		return nil, apperrors.Internal("Failed to look up table", err)
	}
	if table.Status != model.TableAvailable {
		return nil, apperrors.Conflict("Table is not available for booking")
	}
	if table.CampusID != coach.CampusID {
		return nil, apperrors.InvalidInput("Coach and table belong to different campuses")
	}

	approved, err := s.relations.HasApprovedRelation(ctx, coach.ID, student.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to check coach-student relation", err)
	}
	if !approved {
		return nil, apperrors.Forbidden("An approved coach-student relation is required to book")
	}

	minutes := int64(req.EndTime.Sub(req.StartTime.Time) / time.Minute)
	course := &model.Course{
		CoachID:   coach.ID,
		StudentID: student.ID,
		CampusID:  coach.CampusID,
		TableID:   table.ID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Fee:       coach.HourlyRate.PerMinutes(minutes),
		Status:    model.CoursePending,
		CreatedAt: model.NewDateTime(now),
		UpdatedAt: model.NewDateTime(now),
	}

	// Coach then table, always in that order, so two competing bookings
	// can never hold one lock each and wait on the other.
	release, err := s.acquireSlotLocks(ctx, coach.ID, table.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.policy.Check(sessCtx, student.ID, now); err != nil {
			return err
		}

		overlapping, err := s.slots.FindOverlapping(sessCtx, coach.ID, table.ID, req.StartTime.Time, req.EndTime.Time)
		if err != nil {
			return apperrors.Internal("Failed to check slot availability", err)
		}
		if len(overlapping) > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"Requested slot overlaps an existing booking (%s - %s)",
				overlapping[0].StartTime.Format(model.DateTimeLayout),
				overlapping[0].EndTime.Format(model.DateTimeLayout),
			))
		}

		if err := s.repo.Create(sessCtx, course); err != nil {
			return apperrors.Internal("Failed to create course", err)
		}

		reservation := &model.SlotReservation{
			CourseID:  course.ID,
			CoachID:   coach.ID,
			TableID:   table.ID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			CreatedAt: model.NewDateTime(now),
		}
		if err := s.slots.Reserve(sessCtx, reservation); err != nil {
			if errors.Is(err, courseerrors.ErrSlotTaken) {
				return apperrors.Conflict("Requested slot was just taken")
			}
			return apperrors.Internal("Failed to reserve slot", err)
		}

		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to book course", "coach_id", coach.ID, "student_id", student.ID, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Course booked",
		"id", course.ID,
		"coach_id", coach.ID,
		"student_id", student.ID,
		"table_id", table.ID,
		"start_time", req.StartTime.Format(model.DateTimeLayout),
		"fee", course.Fee.String(),
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventCourseBooked,
		EntityID:   course.ID,
		Recipients: []string{coach.ID},
		Payload: map[string]any{
			"student_id": student.ID,
			"start_time": req.StartTime.Format(model.DateTimeLayout),
		},
		OccurredAt: now,
	})

	return course, nil
}

func (s *courseService) Confirm(ctx context.Context, actor model.Actor, id string) (*model.Course, error) {
	course, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != course.CoachID && !actor.Admin() {
		return nil, apperrors.Forbidden("Only the assigned coach or an admin can confirm a booking")
	}

	if course.Status == model.CourseConfirmed && actor.Admin() {
		// Admin retries are idempotent.
		return course, nil
	}
	if course.Status != model.CoursePending {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot confirm a course in status %s", course.Status))
	}

	// Pre-check only: the actual debit happens post-commit, so the
	// student may still race their balance down. The charge then lands in
	// the compensation queue rather than blocking the confirmation.
	balance, err := s.ledger.BalanceOf(ctx, course.StudentID)
	if err != nil {
		return nil, err
	}
	if balance < course.Fee {
		return nil, apperrors.Conflict("Student balance does not cover the course fee").WithDetails(map[string]any{
			"required": course.Fee.String(),
			"balance":  balance.String(),
		})
	}

	now := model.NewDateTime(s.clock.Now())
	matched, err := s.repo.Transition(ctx, id, []model.CourseStatus{model.CoursePending}, repository.StatusUpdate{
		Status:    model.CourseConfirmed,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to confirm course", err)
	}
	if !matched {
		return nil, apperrors.InvalidState("Course status changed concurrently")
	}
	course.Status = model.CourseConfirmed
	course.UpdatedAt = now

	if _, err := s.ledger.Charge(ctx, course.StudentID, course.Fee, course.ID); err != nil {
		s.cfg.Log.Warn("Course fee charge failed after confirmation, queuing compensation",
			"id", course.ID,
			"student_id", course.StudentID,
			"error", err,
		)
		s.comp.EnqueueCharge(ctx, course.StudentID, course.Fee, course.ID)
	} else {
		if err := s.repo.MarkCharged(ctx, course.ID, now); err != nil {
			s.cfg.Log.Error("Failed to mark course charged", "id", course.ID, "error", err)
		}
		course.ChargedAt = &now
	}

	s.cfg.Log.Info("Course confirmed", "id", course.ID, "by", actor.UserID)

	s.publish(ctx, notify.Event{
		Type:       notify.EventCourseConfirmed,
		EntityID:   course.ID,
		Recipients: []string{course.StudentID},
		OccurredAt: s.clock.Now(),
	})

	return course, nil
}

func (s *courseService) Reject(ctx context.Context, actor model.Actor, id, reason string) (*model.Course, error) {
	course, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != course.CoachID && !actor.Admin() {
		return nil, apperrors.Forbidden("Only the assigned coach or an admin can reject a booking")
	}
	if course.Status != model.CoursePending {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot reject a course in status %s", course.Status))
	}

	now := model.NewDateTime(s.clock.Now())
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		matched, err := s.repo.Transition(sessCtx, id, []model.CourseStatus{model.CoursePending}, repository.StatusUpdate{
			Status:       model.CourseRejected,
			CancelReason: reason,
			UpdatedAt:    now,
		})
		if err != nil {
			return apperrors.Internal("Failed to reject course", err)
		}
		if !matched {
			return apperrors.InvalidState("Course status changed concurrently")
		}
		if err := s.slots.ReleaseByCourse(sessCtx, id); err != nil {
			return apperrors.Internal("Failed to release slot reservation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	course.Status = model.CourseRejected
	course.UpdatedAt = now

	s.cfg.Log.Info("Course rejected", "id", course.ID, "by", actor.UserID, "reason", reason)

	s.publish(ctx, notify.Event{
		Type:       notify.EventCourseRejected,
		EntityID:   course.ID,
		Recipients: []string{course.StudentID},
		Payload:    map[string]any{"reason": reason},
		OccurredAt: s.clock.Now(),
	})

	return course, nil
}

func (s *courseService) Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Course, error) {
	course, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	participant := actor.UserID == course.StudentID || actor.UserID == course.CoachID
	if !participant && !actor.Admin() {
		return nil, apperrors.Forbidden("Only a participant or an admin can cancel a booking")
	}

	if course.Status == model.CourseCancelled && actor.Admin() {
		// Admin retries are idempotent.
		return course, nil
	}
	if course.Status.Terminal() {
		return nil, apperrors.InvalidState(fmt.Sprintf("Cannot cancel a course in status %s", course.Status))
	}

	now := s.clock.Now()
	if !actor.Admin() {
		notice := time.Duration(s.cfg.CancelNoticeHours) * time.Hour
		if course.StartTime.Sub(now) < notice {
			return nil, apperrors.Conflict(fmt.Sprintf(
				"Cancellation requires at least %d hours notice", s.cfg.CancelNoticeHours,
			))
		}
	}

	cancelledAt := model.NewDateTime(now)
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// The cap binds participants; admin overrides bypass the check but
		// still consume the student's quota on an actual transition.
		if !actor.Admin() {
			if err := s.policy.Check(sessCtx, course.StudentID, now); err != nil {
				return err
			}
		}

		matched, err := s.repo.Transition(sessCtx, id,
			[]model.CourseStatus{model.CoursePending, model.CourseConfirmed},
			repository.StatusUpdate{
				Status:       model.CourseCancelled,
				CancelReason: reason,
				CancelledBy:  actor.UserID,
				CancelledAt:  &cancelledAt,
				UpdatedAt:    cancelledAt,
			})
		if err != nil {
			return apperrors.Internal("Failed to cancel course", err)
		}
		if !matched {
			return apperrors.InvalidState("Course status changed concurrently")
		}

		if err := s.slots.ReleaseByCourse(sessCtx, id); err != nil {
			return apperrors.Internal("Failed to release slot reservation", err)
		}

		// Attributed to the student and keyed by the cancellation's own
		// month, regardless of who cancelled.
		if err := s.policy.Record(sessCtx, course.StudentID, now); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel course", "id", id, "error", err)
		return nil, err
	}
	prevStatus := course.Status
	course.Status = model.CourseCancelled
	course.CancelReason = reason
	course.CancelledBy = actor.UserID
	course.CancelledAt = &cancelledAt
	course.UpdatedAt = cancelledAt

	if prevStatus == model.CourseConfirmed && course.Charged() {
		if _, err := s.ledger.Refund(ctx, course.StudentID, course.Fee, course.ID); err != nil {
			s.cfg.Log.Warn("Refund failed after cancellation, queuing compensation",
				"id", course.ID,
				"student_id", course.StudentID,
				"error", err,
			)
			s.comp.EnqueueRefund(ctx, course.StudentID, course.Fee, course.ID)
		}
	}

	s.cfg.Log.Info("Course cancelled",
		"id", course.ID,
		"by", actor.UserID,
		"previous_status", prevStatus,
		"reason", reason,
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventCourseCancelled,
		EntityID:   course.ID,
		Recipients: []string{course.StudentID, course.CoachID},
		Payload:    map[string]any{"reason": reason, "cancelled_by": actor.UserID},
		OccurredAt: now,
	})

	return course, nil
}

func (s *courseService) Complete(ctx context.Context, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, courseerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Course", id)
		}
		return apperrors.Internal("Failed to load course", err)
	}

	if course.Status == model.CourseCompleted {
		return nil
	}
	if course.Status != model.CourseConfirmed {
		return apperrors.InvalidState(fmt.Sprintf("Cannot complete a course in status %s", course.Status))
	}

	now := s.clock.Now()
	if course.EndTime.After(now) {
		return apperrors.InvalidState("Course slot has not ended yet")
	}

	completedAt := model.NewDateTime(now)
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		matched, err := s.repo.Transition(sessCtx, id, []model.CourseStatus{model.CourseConfirmed}, repository.StatusUpdate{
			Status:    model.CourseCompleted,
			UpdatedAt: completedAt,
		})
		if err != nil {
			return apperrors.Internal("Failed to complete course", err)
		}
		if !matched {
			// Lost the race to another sweep pass; the course is done.
			return nil
		}
		if err := s.slots.ReleaseByCourse(sessCtx, id); err != nil {
			return apperrors.Internal("Failed to release slot reservation", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Course completed", "id", id)

	s.publish(ctx, notify.Event{
		Type:       notify.EventCourseCompleted,
		EntityID:   id,
		Recipients: []string{course.StudentID, course.CoachID},
		OccurredAt: now,
	})

	return nil
}

func (s *courseService) GetByID(ctx context.Context, actor model.Actor, id string) (*model.Course, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Course ID cannot be empty")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, courseerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Course", id)
		}
		return nil, apperrors.Internal("Failed to load course", err)
	}

	if actor.UserID != course.StudentID && actor.UserID != course.CoachID && !actor.Admin() {
		return nil, apperrors.Forbidden("Not a participant of this course")
	}

	return course, nil
}

func (s *courseService) List(ctx context.Context, actor model.Actor, filter repository.CourseFilter, page, size int) ([]*model.Course, int64, error) {
	// Non-admin callers only ever see their own courses.
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
		courses []*model.Course
		total   int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		if err != nil {
			return apperrors.Internal("Failed to count courses", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		courses, err = s.repo.Find(gctx, filter, page, size)
		if err != nil {
			return apperrors.Internal("Failed to list courses", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (s *courseService) AvailableTables(ctx context.Context, campusID string, start, end time.Time) ([]*model.Table, error) {
	if campusID == "" {
		return nil, apperrors.InvalidInput("Campus ID cannot be empty")
	}
	if !end.After(start) {
		return nil, apperrors.InvalidInput("end_time must be after start_time")
	}

	busy, err := s.slots.BusyTableIDs(ctx, start, end)
	if err != nil {
		return nil, apperrors.Internal("Failed to list busy tables", err)
	}

	tables, err := s.tables.FindAvailable(ctx, campusID, busy)
	if err != nil {
		return nil, apperrors.Internal("Failed to list available tables", err)
	}
	return tables, nil
}

func (s *courseService) MonthlyIncome(ctx context.Context, actor model.Actor, coachID, yearMonth string) (model.Amount, error) {
	if actor.UserID != coachID && !actor.Admin() {
		return 0, apperrors.Forbidden("Only the coach or an admin can view coach income")
	}

	monthStart, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		return 0, apperrors.InvalidInput("year_month must be in YYYY-MM format")
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	total, err := s.repo.SumCompletedFees(ctx, coachID, monthStart, monthEnd)
	if err != nil {
		return 0, apperrors.Internal("Failed to aggregate coach income", err)
	}
	return total, nil
}

func (s *courseService) TodayConfirmedCount(ctx context.Context, actor model.Actor, campusID string) (int64, error) {
	if !actor.Admin() {
		return 0, apperrors.Forbidden("Only admins can view campus statistics")
	}

	now := s.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	count, err := s.repo.CountConfirmedBetween(ctx, campusID, dayStart, dayEnd)
	if err != nil {
		return 0, apperrors.Internal("Failed to count confirmed courses", err)
	}
	return count, nil
}

func (s *courseService) CancellationsUsed(ctx context.Context, actor model.Actor, studentID string) (int, int, error) {
	if actor.UserID != studentID && !actor.Admin() {
		return 0, 0, apperrors.Forbidden("Only the student or an admin can view cancellation usage")
	}
	return s.policy.Used(ctx, studentID, s.clock.Now())
}

// --- Helpers ---

func (s *courseService) acquireSlotLocks(ctx context.Context, coachID, tableID string) (func(), error) {
	keys := []string{"coach:" + coachID, "table:" + tableID}
	acquired := make([]string, 0, len(keys))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := s.locks.Release(ctx, acquired[i]); err != nil {
				s.cfg.Log.Warn("Failed to release slot lock", "lock_id", acquired[i], "error", err)
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
				return nil, apperrors.Conflict("This slot is currently being booked by another request. Please try again.")
			}
			return nil, apperrors.Internal("Failed to acquire slot lock", err)
		}
		acquired = append(acquired, key)
	}

	return release, nil
}

// publish sends a lifecycle event; a failed publish degrades to a queued
// compensation task instead of failing the caller.
func (s *courseService) publish(ctx context.Context, event notify.Event) {
	if err := s.sink.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish notification, queuing compensation",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"error", err,
		)
		s.comp.EnqueueNotify(ctx, event)
	}
}

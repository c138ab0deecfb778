package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	courseerrors "rally/internal/courses/errors"
	"rally/internal/courses/repository"
	"rally/internal/courses/validator"
	"rally/internal/notify"
	"rally/pkg/clock"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/model"
)

// --- Mocks ---

type mockCourseRepo struct {
	createFunc          func(ctx context.Context, course *model.Course) error
	findByIDFunc        func(ctx context.Context, id string) (*model.Course, error)
	findFunc            func(ctx context.Context, filter repository.CourseFilter, page, size int) ([]*model.Course, error)
	countFunc           func(ctx context.Context, filter repository.CourseFilter) (int64, error)
	transitionFunc      func(ctx context.Context, id string, from []model.CourseStatus, update repository.StatusUpdate) (bool, error)
	markChargedFunc     func(ctx context.Context, id string, at model.DateTime) error
	endedBeforeFunc     func(ctx context.Context, before time.Time, limit int) ([]*model.Course, error)
	countConfirmedFunc  func(ctx context.Context, campusID string, from, to time.Time) (int64, error)
	sumCompletedFunc    func(ctx context.Context, coachID string, from, to time.Time) (model.Amount, error)
}

func (m *mockCourseRepo) Create(ctx context.Context, course *model.Course) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, course)
	}
	course.ID = "course-1"
	return nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, courseerrors.ErrNotFound
}

func (m *mockCourseRepo) Find(ctx context.Context, filter repository.CourseFilter, page, size int) ([]*model.Course, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, page, size)
	}
	return nil, nil
}

func (m *mockCourseRepo) Count(ctx context.Context, filter repository.CourseFilter) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, filter)
	}
	return 0, nil
}

func (m *mockCourseRepo) Transition(ctx context.Context, id string, from []model.CourseStatus, update repository.StatusUpdate) (bool, error) {
	if m.transitionFunc != nil {
		return m.transitionFunc(ctx, id, from, update)
	}
	return true, nil
}

func (m *mockCourseRepo) MarkCharged(ctx context.Context, id string, at model.DateTime) error {
	if m.markChargedFunc != nil {
		return m.markChargedFunc(ctx, id, at)
	}
	return nil
}

func (m *mockCourseRepo) FindConfirmedEndedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Course, error) {
	if m.endedBeforeFunc != nil {
		return m.endedBeforeFunc(ctx, before, limit)
	}
	return nil, nil
}

func (m *mockCourseRepo) CountConfirmedBetween(ctx context.Context, campusID string, from, to time.Time) (int64, error) {
	if m.countConfirmedFunc != nil {
		return m.countConfirmedFunc(ctx, campusID, from, to)
	}
	return 0, nil
}

func (m *mockCourseRepo) SumCompletedFees(ctx context.Context, coachID string, from, to time.Time) (model.Amount, error) {
	if m.sumCompletedFunc != nil {
		return m.sumCompletedFunc(ctx, coachID, from, to)
	}
	return 0, nil
}

func (m *mockCourseRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockSlotIndex struct {
	reserveFunc     func(ctx context.Context, res *model.SlotReservation) error
	releaseFunc     func(ctx context.Context, courseID string) error
	overlappingFunc func(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error)
	busyTablesFunc  func(ctx context.Context, start, end time.Time) ([]string, error)
	released        []string
}

func (m *mockSlotIndex) Reserve(ctx context.Context, res *model.SlotReservation) error {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, res)
	}
	return nil
}

func (m *mockSlotIndex) ReleaseByCourse(ctx context.Context, courseID string) error {
	m.released = append(m.released, courseID)
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, courseID)
	}
	return nil
}

func (m *mockSlotIndex) FindOverlapping(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error) {
	if m.overlappingFunc != nil {
		return m.overlappingFunc(ctx, coachID, tableID, start, end)
	}
	return nil, nil
}

func (m *mockSlotIndex) BusyTableIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	if m.busyTablesFunc != nil {
		return m.busyTablesFunc(ctx, start, end)
	}
	return nil, nil
}

type mockSlotLocks struct {
	acquireFunc func(ctx context.Context, lock *model.SlotLock) error
	acquired    []string
	released    []string
}

func (m *mockSlotLocks) Acquire(ctx context.Context, lock *model.SlotLock) error {
	if m.acquireFunc != nil {
		if err := m.acquireFunc(ctx, lock); err != nil {
			return err
		}
	}
	m.acquired = append(m.acquired, lock.ID)
	return nil
}

func (m *mockSlotLocks) Release(ctx context.Context, lockID string) error {
	m.released = append(m.released, lockID)
	return nil
}

type mockCoachRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Coach, error)
}

func (m *mockCoachRepo) Create(ctx context.Context, coach *model.Coach) error { return nil }
func (m *mockCoachRepo) FindByID(ctx context.Context, id string) (*model.Coach, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, courseerrors.ErrCoachNotFound
}
func (m *mockCoachRepo) FindByCampus(ctx context.Context, campusID string, page, size int) ([]*model.Coach, error) {
	return nil, nil
}
func (m *mockCoachRepo) CountByCampus(ctx context.Context, campusID string) (int64, error) {
	return 0, nil
}

type mockStudentRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Student, error)
}

func (m *mockStudentRepo) Create(ctx context.Context, student *model.Student) error { return nil }
func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*model.Student, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, courseerrors.ErrStudentNotFound
}

type mockTableRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Table, error)
}

func (m *mockTableRepo) Create(ctx context.Context, table *model.Table) error { return nil }
func (m *mockTableRepo) FindByID(ctx context.Context, id string) (*model.Table, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, courseerrors.ErrTableNotFound
}
func (m *mockTableRepo) FindAvailable(ctx context.Context, campusID string, excludeIDs []string) ([]*model.Table, error) {
	return nil, nil
}

type mockRelations struct {
	approved bool
	err      error
}

func (m *mockRelations) HasApprovedRelation(ctx context.Context, coachID, studentID string) (bool, error) {
	return m.approved, m.err
}

type mockPolicy struct {
	checkFunc  func(ctx context.Context, studentID string, now time.Time) error
	recordFunc func(ctx context.Context, studentID string, when time.Time) error
	recorded   []string
}

func (m *mockPolicy) Check(ctx context.Context, studentID string, now time.Time) error {
	if m.checkFunc != nil {
		return m.checkFunc(ctx, studentID, now)
	}
	return nil
}

func (m *mockPolicy) Record(ctx context.Context, studentID string, when time.Time) error {
	m.recorded = append(m.recorded, studentID+"@"+model.YearMonth(when))
	if m.recordFunc != nil {
		return m.recordFunc(ctx, studentID, when)
	}
	return nil
}

func (m *mockPolicy) Used(ctx context.Context, studentID string, now time.Time) (int, int, error) {
	return len(m.recorded), 3, nil
}

type mockLedger struct {
	balanceFunc func(ctx context.Context, userID string) (model.Amount, error)
	chargeFunc  func(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	refundFunc  func(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error)
	charges     []model.Amount
	refunds     []model.Amount
}

func (m *mockLedger) BalanceOf(ctx context.Context, userID string) (model.Amount, error) {
	if m.balanceFunc != nil {
		return m.balanceFunc(ctx, userID)
	}
	return 1_000_000, nil
}

func (m *mockLedger) Charge(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error) {
	if m.chargeFunc != nil {
		return m.chargeFunc(ctx, userID, amount, relatedID)
	}
	m.charges = append(m.charges, amount)
	return &model.Transaction{}, nil
}

func (m *mockLedger) Refund(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error) {
	if m.refundFunc != nil {
		return m.refundFunc(ctx, userID, amount, relatedID)
	}
	m.refunds = append(m.refunds, amount)
	return &model.Transaction{}, nil
}

type mockCompensator struct {
	charges []string
	refunds []string
	events  []notify.Event
}

func (m *mockCompensator) EnqueueCharge(ctx context.Context, userID string, amount model.Amount, relatedID string) {
	m.charges = append(m.charges, relatedID)
}

func (m *mockCompensator) EnqueueRefund(ctx context.Context, userID string, amount model.Amount, relatedID string) {
	m.refunds = append(m.refunds, relatedID)
}

func (m *mockCompensator) EnqueueNotify(ctx context.Context, event notify.Event) {
	m.events = append(m.events, event)
}

type mockSink struct {
	publishFunc func(ctx context.Context, event notify.Event) error
	events      []notify.Event
}

func (m *mockSink) Publish(ctx context.Context, event notify.Event) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, event)
	}
	m.events = append(m.events, event)
	return nil
}

// --- Fixture ---

type fixture struct {
	svc     CourseService
	repo    *mockCourseRepo
	slots   *mockSlotIndex
	locks   *mockSlotLocks
	coaches *mockCoachRepo
	tables  *mockTableRepo
	policy  *mockPolicy
	ledger  *mockLedger
	comp    *mockCompensator
	sink    *mockSink
	clock   *clock.FixedClock
	cfg     *config.Config
}

var fixtureNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.JSON, Output: io.Discard})
	cfg := &config.Config{
		Log:                log,
		MonthlyCancelLimit: 3,
		CancelNoticeHours:  24,
		SlotLockTTL:        30 * time.Second,
		SweepInterval:      time.Minute,
	}

	f := &fixture{
		repo: &mockCourseRepo{},
		slots: &mockSlotIndex{},
		locks: &mockSlotLocks{},
		coaches: &mockCoachRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.Coach, error) {
				return &model.Coach{ID: id, CampusID: "campus-1", HourlyRate: 10000, MaxStudents: 20}, nil
			},
		},
		tables: &mockTableRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.Table, error) {
				return &model.Table{ID: id, CampusID: "campus-1", Status: model.TableAvailable}, nil
			},
		},
		policy: &mockPolicy{},
		ledger: &mockLedger{},
		comp:   &mockCompensator{},
		sink:   &mockSink{},
		clock:  clock.Fixed(fixtureNow),
		cfg:    cfg,
	}

	f.svc = NewCourseService(Deps{
		Courses: f.repo,
		Slots:   f.slots,
		Locks:   f.locks,
		Coaches: f.coaches,
		Students: &mockStudentRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.Student, error) {
				return &model.Student{ID: id}, nil
			},
		},
		Tables:    f.tables,
		Relations: &mockRelations{approved: true},
		Policy:    f.policy,
		Ledger:    f.ledger,
		Comp:      f.comp,
		Sink:      f.sink,
		Validator: validator.NewCourseValidator(log),
		Clock:     f.clock,
		Config:    cfg,
	})
	return f
}

func bookRequest() *validator.BookRequest {
	return &validator.BookRequest{
		CoachID:   "coach-1",
		StudentID: "student-1",
		TableID:   "table-1",
		StartTime: model.NewDateTime(fixtureNow.Add(48 * time.Hour)),
		EndTime:   model.NewDateTime(fixtureNow.Add(49 * time.Hour)),
	}
}

func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !apperrors.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// --- Book ---

func TestBookCreatesPendingCourseAndReservation(t *testing.T) {
	f := newFixture(t)

	var reserved *model.SlotReservation
	f.slots.reserveFunc = func(ctx context.Context, res *model.SlotReservation) error {
		reserved = res
		return nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	course, err := f.svc.Book(context.Background(), actor, bookRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if course.Status != model.CoursePending {
		t.Errorf("status = %s, want PENDING", course.Status)
	}
	if course.Fee != 10000 {
		t.Errorf("fee = %d, want 10000 (one hour at the coach rate)", course.Fee)
	}
	if reserved == nil || reserved.CourseID != course.ID {
		t.Errorf("slot reservation not tied to the course: %+v", reserved)
	}
	if len(f.sink.events) != 1 || f.sink.events[0].Type != notify.EventCourseBooked {
		t.Errorf("expected one course.booked event, got %+v", f.sink.events)
	}
}

func TestBookAcquiresCoachLockBeforeTableLock(t *testing.T) {
	f := newFixture(t)

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	if _, err := f.svc.Book(context.Background(), actor, bookRequest()); err != nil {
		t.Fatalf("Book: %v", err)
	}

	want := []string{"coach:coach-1", "table:table-1"}
	if len(f.locks.acquired) != 2 || f.locks.acquired[0] != want[0] || f.locks.acquired[1] != want[1] {
		t.Errorf("lock order = %v, want %v", f.locks.acquired, want)
	}
	if len(f.locks.released) != 2 {
		t.Errorf("locks not released: %v", f.locks.released)
	}
}

func TestBookRejectsOverlappingSlot(t *testing.T) {
	f := newFixture(t)

	f.slots.overlappingFunc = func(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error) {
		return []*model.SlotReservation{{
			CourseID:  "other",
			StartTime: model.NewDateTime(start),
			EndTime:   model.NewDateTime(end),
		}}, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Book(context.Background(), actor, bookRequest())
	assertKind(t, err, apperrors.KindConflict)

	if len(f.locks.released) != len(f.locks.acquired) {
		t.Errorf("locks leaked on conflict: acquired %v, released %v", f.locks.acquired, f.locks.released)
	}
}

func TestBookRejectsWithoutApprovedRelation(t *testing.T) {
	f := newFixture(t)

	svc := f.svc.(*courseService)
	svc.relations = &mockRelations{approved: false}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := svc.Book(context.Background(), actor, bookRequest())
	assertKind(t, err, apperrors.KindForbidden)
}

func TestBookRejectsStudentBookingForAnother(t *testing.T) {
	f := newFixture(t)

	actor := model.Actor{UserID: "student-2", Role: model.RoleStudent}
	_, err := f.svc.Book(context.Background(), actor, bookRequest())
	assertKind(t, err, apperrors.KindForbidden)
}

func TestBookRejectsPastStart(t *testing.T) {
	f := newFixture(t)

	req := bookRequest()
	req.StartTime = model.NewDateTime(fixtureNow.Add(-time.Hour))
	req.EndTime = model.NewDateTime(fixtureNow.Add(time.Hour))

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Book(context.Background(), actor, req)
	assertKind(t, err, apperrors.KindInvalidInput)
}

func TestBookWhenQuotaExhausted(t *testing.T) {
	f := newFixture(t)

	f.policy.checkFunc = func(ctx context.Context, studentID string, now time.Time) error {
		return apperrors.QuotaExceeded("limit reached")
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Book(context.Background(), actor, bookRequest())
	assertKind(t, err, apperrors.KindQuotaExceeded)
}

func TestBookPublishFailureQueuesCompensation(t *testing.T) {
	f := newFixture(t)

	f.sink.publishFunc = func(ctx context.Context, event notify.Event) error {
		return errors.New("broker unavailable")
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	course, err := f.svc.Book(context.Background(), actor, bookRequest())
	if err != nil {
		t.Fatalf("Book should degrade, not fail: %v", err)
	}
	if course.Status != model.CoursePending {
		t.Errorf("status = %s, want PENDING", course.Status)
	}
	if len(f.comp.events) != 1 {
		t.Errorf("expected queued notify compensation, got %d", len(f.comp.events))
	}
}

// --- Confirm ---

func confirmedFixtureCourse(status model.CourseStatus) *model.Course {
	return &model.Course{
		ID:        "course-1",
		CoachID:   "coach-1",
		StudentID: "student-1",
		CampusID:  "campus-1",
		TableID:   "table-1",
		StartTime: model.NewDateTime(fixtureNow.Add(48 * time.Hour)),
		EndTime:   model.NewDateTime(fixtureNow.Add(49 * time.Hour)),
		Fee:       10000,
		Status:    status,
	}
}

func TestConfirmChargesStudent(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}

	actor := model.Actor{UserID: "coach-1", Role: model.RoleCoach}
	course, err := f.svc.Confirm(context.Background(), actor, "course-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if course.Status != model.CourseConfirmed {
		t.Errorf("status = %s, want CONFIRMED", course.Status)
	}
	if len(f.ledger.charges) != 1 || f.ledger.charges[0] != 10000 {
		t.Errorf("charges = %v, want one charge of 10000", f.ledger.charges)
	}
	if !course.Charged() {
		t.Error("course not marked charged after successful debit")
	}
}

func TestConfirmRequiresAssignedCoach(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}

	actor := model.Actor{UserID: "coach-2", Role: model.RoleCoach}
	_, err := f.svc.Confirm(context.Background(), actor, "course-1")
	assertKind(t, err, apperrors.KindForbidden)
}

func TestConfirmRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}
	f.ledger.balanceFunc = func(ctx context.Context, userID string) (model.Amount, error) {
		return 5000, nil
	}

	actor := model.Actor{UserID: "coach-1", Role: model.RoleCoach}
	_, err := f.svc.Confirm(context.Background(), actor, "course-1")
	assertKind(t, err, apperrors.KindConflict)
}

func TestConfirmChargeFailureQueuesCompensation(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}
	f.ledger.chargeFunc = func(ctx context.Context, userID string, amount model.Amount, relatedID string) (*model.Transaction, error) {
		return nil, apperrors.Dependency("ledger down", nil)
	}

	actor := model.Actor{UserID: "coach-1", Role: model.RoleCoach}
	course, err := f.svc.Confirm(context.Background(), actor, "course-1")
	if err != nil {
		t.Fatalf("Confirm should degrade, not fail: %v", err)
	}
	if course.Status != model.CourseConfirmed {
		t.Errorf("status = %s, want CONFIRMED", course.Status)
	}
	if len(f.comp.charges) != 1 || f.comp.charges[0] != "course-1" {
		t.Errorf("expected queued charge compensation, got %v", f.comp.charges)
	}
}

func TestAdminConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CourseConfirmed), nil
	}
	f.repo.transitionFunc = func(ctx context.Context, id string, from []model.CourseStatus, update repository.StatusUpdate) (bool, error) {
		t.Fatal("idempotent confirm must not write")
		return false, nil
	}

	actor := model.Actor{UserID: "admin-1", Role: model.RoleCampusAdmin}
	course, err := f.svc.Confirm(context.Background(), actor, "course-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if course.Status != model.CourseConfirmed {
		t.Errorf("status = %s, want CONFIRMED", course.Status)
	}
	if len(f.ledger.charges) != 0 {
		t.Errorf("idempotent confirm must not charge, got %v", f.ledger.charges)
	}
}

// --- Cancel ---

func TestCancelConfirmedRefundsAndRecordsQuota(t *testing.T) {
	f := newFixture(t)

	course := confirmedFixtureCourse(model.CourseConfirmed)
	chargedAt := model.NewDateTime(fixtureNow.Add(-time.Hour))
	course.ChargedAt = &chargedAt
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return course, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	cancelled, err := f.svc.Cancel(context.Background(), actor, "course-1", "schedule change")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if cancelled.Status != model.CourseCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if len(f.ledger.refunds) != 1 || f.ledger.refunds[0] != 10000 {
		t.Errorf("refunds = %v, want one refund of 10000", f.ledger.refunds)
	}
	if len(f.policy.recorded) != 1 || f.policy.recorded[0] != "student-1@2026-03" {
		t.Errorf("quota record = %v, want student-1 in the cancellation month", f.policy.recorded)
	}
	if len(f.slots.released) != 1 || f.slots.released[0] != "course-1" {
		t.Errorf("reservation not released: %v", f.slots.released)
	}
}

func TestCancelPendingDoesNotRefund(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	if _, err := f.svc.Cancel(context.Background(), actor, "course-1", "changed my mind"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(f.ledger.refunds) != 0 {
		t.Errorf("pending course must not refund, got %v", f.ledger.refunds)
	}
}

func TestCancelEnforcesNoticePeriod(t *testing.T) {
	f := newFixture(t)

	course := confirmedFixtureCourse(model.CourseConfirmed)
	course.StartTime = model.NewDateTime(fixtureNow.Add(2 * time.Hour))
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return course, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Cancel(context.Background(), actor, "course-1", "too late")
	assertKind(t, err, apperrors.KindConflict)
}

func TestAdminCancelBypassesNoticeAndQuotaCheck(t *testing.T) {
	f := newFixture(t)

	course := confirmedFixtureCourse(model.CourseConfirmed)
	course.StartTime = model.NewDateTime(fixtureNow.Add(time.Hour))
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return course, nil
	}
	f.policy.checkFunc = func(ctx context.Context, studentID string, now time.Time) error {
		return apperrors.QuotaExceeded("limit reached")
	}

	actor := model.Actor{UserID: "admin-1", Role: model.RoleSuperAdmin}
	cancelled, err := f.svc.Cancel(context.Background(), actor, "course-1", "venue closed")
	if err != nil {
		t.Fatalf("admin Cancel: %v", err)
	}
	if cancelled.Status != model.CourseCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	// The override still consumes the student's quota.
	if len(f.policy.recorded) != 1 {
		t.Errorf("quota record = %v, want one entry", f.policy.recorded)
	}
}

func TestAdminCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CourseCancelled), nil
	}

	actor := model.Actor{UserID: "admin-1", Role: model.RoleCampusAdmin}
	if _, err := f.svc.Cancel(context.Background(), actor, "course-1", "retry"); err != nil {
		t.Fatalf("idempotent admin Cancel: %v", err)
	}
	if len(f.policy.recorded) != 0 {
		t.Errorf("idempotent cancel must not consume quota, got %v", f.policy.recorded)
	}
}

func TestCancelTerminalCourseFails(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CourseCompleted), nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Cancel(context.Background(), actor, "course-1", "no")
	assertKind(t, err, apperrors.KindInvalidState)
}

// --- Complete ---

func TestCompleteAfterEnd(t *testing.T) {
	f := newFixture(t)

	course := confirmedFixtureCourse(model.CourseConfirmed)
	course.StartTime = model.NewDateTime(fixtureNow.Add(-2 * time.Hour))
	course.EndTime = model.NewDateTime(fixtureNow.Add(-time.Hour))
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return course, nil
	}

	if err := f.svc.Complete(context.Background(), "course-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(f.slots.released) != 1 {
		t.Errorf("reservation not released on completion: %v", f.slots.released)
	}
}

func TestCompleteBeforeEndFails(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CourseConfirmed), nil
	}

	err := f.svc.Complete(context.Background(), "course-1")
	assertKind(t, err, apperrors.KindInvalidState)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CourseCompleted), nil
	}
	f.repo.transitionFunc = func(ctx context.Context, id string, from []model.CourseStatus, update repository.StatusUpdate) (bool, error) {
		t.Fatal("idempotent complete must not write")
		return false, nil
	}

	if err := f.svc.Complete(context.Background(), "course-1"); err != nil {
		t.Fatalf("second Complete must be a no-op: %v", err)
	}
}

// --- List scoping ---

func TestListScopesStudentToOwnCourses(t *testing.T) {
	f := newFixture(t)

	var gotFilter repository.CourseFilter
	f.repo.findFunc = func(ctx context.Context, filter repository.CourseFilter, page, size int) ([]*model.Course, error) {
		gotFilter = filter
		return nil, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	if _, _, err := f.svc.List(context.Background(), actor, repository.CourseFilter{StudentID: "someone-else"}, 0, 10); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotFilter.StudentID != "student-1" {
		t.Errorf("student filter = %q, want forced to the caller", gotFilter.StudentID)
	}
}

func TestGetByIDRequiresParticipant(t *testing.T) {
	f := newFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		return confirmedFixtureCourse(model.CoursePending), nil
	}

	actor := model.Actor{UserID: "stranger", Role: model.RoleStudent}
	_, err := f.svc.GetByID(context.Background(), actor, "course-1")
	assertKind(t, err, apperrors.KindForbidden)
}

// --- Charge guard ---

func TestChargeGuardOwesOnlyConfirmedOrCompleted(t *testing.T) {
	repo := &mockCourseRepo{}
	guard := NewCourseChargeGuard(repo)

	cases := map[model.CourseStatus]bool{
		model.CoursePending:   false,
		model.CourseConfirmed: true,
		model.CourseCompleted: true,
		model.CourseCancelled: false,
	}
	for status, want := range cases {
		repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
			return confirmedFixtureCourse(status), nil
		}
		due, err := guard.ChargeDue(context.Background(), "course-1")
		if err != nil {
			t.Fatalf("ChargeDue(%s): %v", status, err)
		}
		if due != want {
			t.Errorf("ChargeDue(%s) = %v, want %v", status, due, want)
		}
	}

	// A course that no longer exists owes nothing either.
	repo.findByIDFunc = nil
	due, err := guard.ChargeDue(context.Background(), "course-9")
	if err != nil {
		t.Fatalf("ChargeDue for missing course: %v", err)
	}
	if due {
		t.Error("missing course reported as owing a fee")
	}
}

// --- Full lifecycle ---

// Walks one slot through its whole life: a booking takes it, a rival is
// turned away, the coach confirms, an admin cancels, and the freed slot
// then accepts the rival's retry. The repo and slot index mocks carry
// state between calls so each step sees the previous one's effects.
func TestBookingLifecycleFreesSlotForRetry(t *testing.T) {
	f := newFixture(t)

	courses := map[string]*model.Course{}
	nextID := 0
	f.repo.createFunc = func(ctx context.Context, course *model.Course) error {
		nextID++
		course.ID = fmt.Sprintf("course-%d", nextID)
		stored := *course
		courses[course.ID] = &stored
		return nil
	}
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Course, error) {
		course, ok := courses[id]
		if !ok {
			return nil, courseerrors.ErrNotFound
		}
		out := *course
		return &out, nil
	}
	f.repo.transitionFunc = func(ctx context.Context, id string, from []model.CourseStatus, update repository.StatusUpdate) (bool, error) {
		course, ok := courses[id]
		if !ok {
			return false, nil
		}
		matched := false
		for _, status := range from {
			if course.Status == status {
				matched = true
			}
		}
		if !matched {
			return false, nil
		}
		course.Status = update.Status
		course.UpdatedAt = update.UpdatedAt
		return true, nil
	}
	f.repo.markChargedFunc = func(ctx context.Context, id string, at model.DateTime) error {
		if course, ok := courses[id]; ok {
			course.ChargedAt = &at
		}
		return nil
	}

	reservations := map[string]*model.SlotReservation{}
	f.slots.reserveFunc = func(ctx context.Context, res *model.SlotReservation) error {
		reservations[res.CourseID] = res
		return nil
	}
	f.slots.overlappingFunc = func(ctx context.Context, coachID, tableID string, start, end time.Time) ([]*model.SlotReservation, error) {
		var out []*model.SlotReservation
		for _, res := range reservations {
			if res.CoachID == coachID && res.TableID == tableID &&
				res.StartTime.Before(end) && start.Before(res.EndTime.Time) {
				out = append(out, res)
			}
		}
		return out, nil
	}
	f.slots.releaseFunc = func(ctx context.Context, courseID string) error {
		delete(reservations, courseID)
		return nil
	}

	student := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	rival := model.Actor{UserID: "student-2", Role: model.RoleStudent}
	rivalReq := bookRequest()
	rivalReq.StudentID = "student-2"

	booked, err := f.svc.Book(context.Background(), student, bookRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if booked.Status != model.CoursePending {
		t.Fatalf("status = %s, want PENDING", booked.Status)
	}

	_, err = f.svc.Book(context.Background(), rival, rivalReq)
	assertKind(t, err, apperrors.KindConflict)

	coach := model.Actor{UserID: "coach-1", Role: model.RoleCoach}
	confirmed, err := f.svc.Confirm(context.Background(), coach, booked.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != model.CourseConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", confirmed.Status)
	}
	if len(f.ledger.charges) != 1 || f.ledger.charges[0] != 10000 {
		t.Fatalf("charges = %v, want one charge of 10000", f.ledger.charges)
	}

	admin := model.Actor{UserID: "admin-1", Role: model.RoleCampusAdmin}
	cancelled, err := f.svc.Cancel(context.Background(), admin, booked.ID, "coach unavailable")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.CourseCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}
	if len(f.ledger.refunds) != 1 || f.ledger.refunds[0] != 10000 {
		t.Fatalf("refunds = %v, want one refund of 10000", f.ledger.refunds)
	}
	if len(reservations) != 0 {
		t.Fatalf("reservation not released on cancel: %+v", reservations)
	}

	retry, err := f.svc.Book(context.Background(), rival, rivalReq)
	if err != nil {
		t.Fatalf("retry Book after cancel: %v", err)
	}
	if retry.ID == booked.ID {
		t.Fatalf("retry reused the cancelled course id %s", retry.ID)
	}
	if _, ok := reservations[retry.ID]; !ok {
		t.Fatalf("retry did not take the freed slot: %+v", reservations)
	}
}

// --- Slot lock conflict ---

func TestBookSurfacesLockContention(t *testing.T) {
	f := newFixture(t)

	f.locks.acquireFunc = func(ctx context.Context, lock *model.SlotLock) error {
		if lock.ID == "table:table-1" {
			return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
		return nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Book(context.Background(), actor, bookRequest())
	assertKind(t, err, apperrors.KindConflict)

	// The coach lock acquired before the contention must be released.
	if len(f.locks.released) != 1 || f.locks.released[0] != "coach:coach-1" {
		t.Errorf("released = %v, want the coach lock", f.locks.released)
	}
}

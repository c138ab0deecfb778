package service

import (
	"context"
	"io"
	"testing"
	"time"

	"rally/internal/notify"
	tournamenterrors "rally/internal/tournaments/errors"
	"rally/internal/tournaments/repository"
	"rally/internal/tournaments/validator"
	"rally/pkg/clock"
	"rally/pkg/config"
	mongotx "rally/pkg/db/mongo"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/model"
)

type mockTournamentRepo struct {
	findByIDFunc   func(ctx context.Context, id string) (*model.Tournament, error)
	transitionFunc func(ctx context.Context, id string, from []model.TournamentStatus, to model.TournamentStatus, updatedAt model.DateTime) (bool, error)
	closingFunc    func(ctx context.Context, before time.Time, limit int) ([]*model.Tournament, error)
	created        []*model.Tournament
	transitions    []string
}

func (m *mockTournamentRepo) Create(ctx context.Context, tournament *model.Tournament) error {
	tournament.ID = "tournament-1"
	m.created = append(m.created, tournament)
	return nil
}

func (m *mockTournamentRepo) FindByID(ctx context.Context, id string) (*model.Tournament, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, tournamenterrors.ErrNotFound
}

func (m *mockTournamentRepo) Find(ctx context.Context, filter repository.TournamentFilter, page, size int) ([]*model.Tournament, error) {
	return nil, nil
}

func (m *mockTournamentRepo) Count(ctx context.Context, filter repository.TournamentFilter) (int64, error) {
	return 0, nil
}

func (m *mockTournamentRepo) Transition(ctx context.Context, id string, from []model.TournamentStatus, to model.TournamentStatus, updatedAt model.DateTime) (bool, error) {
	m.transitions = append(m.transitions, id+"->"+string(to))
	if m.transitionFunc != nil {
		return m.transitionFunc(ctx, id, from, to, updatedAt)
	}
	return true, nil
}

func (m *mockTournamentRepo) FindPublishedClosingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Tournament, error) {
	if m.closingFunc != nil {
		return m.closingFunc(ctx, before, limit)
	}
	return nil, nil
}

func (m *mockTournamentRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockEnrollmentRepo struct {
	createFunc func(ctx context.Context, enrollment *model.Enrollment) error
	byTourney  []*model.Enrollment
	created    []*model.Enrollment
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *model.Enrollment) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, enrollment)
	}
	enrollment.ID = "enrollment-1"
	m.created = append(m.created, enrollment)
	return nil
}

func (m *mockEnrollmentRepo) FindByTournament(ctx context.Context, tournamentID string) ([]*model.Enrollment, error) {
	return m.byTourney, nil
}

func (m *mockEnrollmentRepo) CountByTournament(ctx context.Context, tournamentID string) (int64, error) {
	return int64(len(m.byTourney)), nil
}

type mockMatchRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Match, error)
	pending      int64
	created      []*model.Match
	results      []string
}

func (m *mockMatchRepo) CreateMany(ctx context.Context, matches []*model.Match) error {
	m.created = append(m.created, matches...)
	return nil
}

func (m *mockMatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, tournamenterrors.ErrMatchNotFound
}

func (m *mockMatchRepo) FindByTournament(ctx context.Context, tournamentID string) ([]*model.Match, error) {
	return m.created, nil
}

func (m *mockMatchRepo) CountPending(ctx context.Context, tournamentID string) (int64, error) {
	return m.pending, nil
}

func (m *mockMatchRepo) SetResult(ctx context.Context, id, winnerID string) (bool, error) {
	m.results = append(m.results, id+":"+winnerID)
	return true, nil
}

type noopSink struct{}

func (noopSink) Publish(ctx context.Context, event notify.Event) error { return nil }

var tourneyNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type tourneyFixture struct {
	svc         TournamentService
	repo        *mockTournamentRepo
	enrollments *mockEnrollmentRepo
	matches     *mockMatchRepo
	clock       *clock.FixedClock
}

func newTourneyFixture(t *testing.T) *tourneyFixture {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.JSON, Output: io.Discard})
	cfg := &config.Config{Log: log, SweepInterval: time.Minute}

	f := &tourneyFixture{
		repo:        &mockTournamentRepo{},
		enrollments: &mockEnrollmentRepo{},
		matches:     &mockMatchRepo{},
		clock:       clock.Fixed(tourneyNow),
	}
	f.svc = NewTournamentService(
		f.repo,
		f.enrollments,
		f.matches,
		noopSink{},
		validator.NewTournamentValidator(log),
		f.clock,
		cfg,
	)
	return f
}

func publishedTournament() *model.Tournament {
	return &model.Tournament{
		ID:        "tournament-1",
		CampusID:  "campus-1",
		Name:      "Spring Open",
		Groups:    []string{"U12", "U16"},
		EventDate: model.NewDateTime(tourneyNow.Add(14 * 24 * time.Hour)),
		RegistrationWindow: model.RegistrationWindow{
			Open:  model.NewDateTime(tourneyNow.Add(-24 * time.Hour)),
			Close: model.NewDateTime(tourneyNow.Add(7 * 24 * time.Hour)),
		},
		Status: model.TournamentPublished,
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

var admin = model.Actor{UserID: "admin-1", Role: model.RoleCampusAdmin}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newTourneyFixture(t)

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Create(context.Background(), actor, &validator.CreateRequest{})
	assertKind(t, err, apperrors.KindForbidden)
}

func TestCreateValidatesWindow(t *testing.T) {
	f := newTourneyFixture(t)

	req := &validator.CreateRequest{
		CampusID:  "campus-1",
		Name:      "Spring Open",
		Groups:    []string{"U12"},
		EventDate: model.NewDateTime(tourneyNow.Add(24 * time.Hour)),
		Open:      model.NewDateTime(tourneyNow.Add(48 * time.Hour)),
		Close:     model.NewDateTime(tourneyNow.Add(24 * time.Hour)),
	}
	_, err := f.svc.Create(context.Background(), admin, req)
	assertKind(t, err, apperrors.KindValidation)
}

func TestRegisterWithinWindow(t *testing.T) {
	f := newTourneyFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return publishedTournament(), nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	enrollment, err := f.svc.Register(context.Background(), actor, "tournament-1", "student-1", "U12")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if enrollment.Group != "U12" {
		t.Errorf("group = %q, want U12", enrollment.Group)
	}
}

func TestRegisterAtWindowCloseRejected(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.RegistrationWindow.Close = model.NewDateTime(tourneyNow)
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Register(context.Background(), actor, "tournament-1", "student-1", "U12")
	assertKind(t, err, apperrors.KindInvalidState)
}

func TestRegisterUnknownGroupRejected(t *testing.T) {
	f := newTourneyFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return publishedTournament(), nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Register(context.Background(), actor, "tournament-1", "student-1", "U99")
	assertKind(t, err, apperrors.KindInvalidInput)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	f := newTourneyFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return publishedTournament(), nil
	}
	f.enrollments.createFunc = func(ctx context.Context, enrollment *model.Enrollment) error {
		return tournamenterrors.ErrDuplicateEnrollment
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Register(context.Background(), actor, "tournament-1", "student-1", "U12")
	assertKind(t, err, apperrors.KindConflict)
}

func TestRegisterLosingRaceWithCloseRejected(t *testing.T) {
	f := newTourneyFixture(t)

	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return publishedTournament(), nil
	}
	// Registration closed between the status read and the insert; the
	// transactional re-assertion of PUBLISHED no longer matches.
	f.repo.transitionFunc = func(ctx context.Context, id string, from []model.TournamentStatus, to model.TournamentStatus, updatedAt model.DateTime) (bool, error) {
		return false, nil
	}

	actor := model.Actor{UserID: "student-1", Role: model.RoleStudent}
	_, err := f.svc.Register(context.Background(), actor, "tournament-1", "student-1", "U12")
	assertKind(t, err, apperrors.KindInvalidState)
	if len(f.enrollments.created) != 0 {
		t.Fatalf("enrollment admitted after registration closed: %+v", f.enrollments.created)
	}
}

func TestStartGeneratesRoundRobin(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentRegistrationClosed
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		f.enrollments.byTourney = append(f.enrollments.byTourney, &model.Enrollment{
			TournamentID: "tournament-1",
			StudentID:    id,
			Group:        "U12",
		})
	}

	started, err := f.svc.Start(context.Background(), admin, "tournament-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if started.Status != model.TournamentInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", started.Status)
	}
	// Four players round-robin is C(4,2) = 6 matches.
	if len(f.matches.created) != 6 {
		t.Fatalf("matches = %d, want 6", len(f.matches.created))
	}

	// Every pair meets exactly once.
	pairs := make(map[string]int)
	for _, match := range f.matches.created {
		a, b := match.Player1ID, match.Player2ID
		if a > b {
			a, b = b, a
		}
		pairs[a+"/"+b]++
	}
	for pair, count := range pairs {
		if count != 1 {
			t.Errorf("pair %s scheduled %d times", pair, count)
		}
	}
	if len(pairs) != 6 {
		t.Errorf("distinct pairs = %d, want 6", len(pairs))
	}
}

func TestStartSplitsLargeGroupIntoPools(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentRegistrationClosed
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}
	for i := 0; i < 8; i++ {
		f.enrollments.byTourney = append(f.enrollments.byTourney, &model.Enrollment{
			TournamentID: "tournament-1",
			StudentID:    string(rune('a' + i)),
			Group:        "U16",
		})
	}

	if _, err := f.svc.Start(context.Background(), admin, "tournament-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Eight players split 4/4; each pool round-robin is 6 matches.
	if len(f.matches.created) != 12 {
		t.Fatalf("matches = %d, want 12", len(f.matches.created))
	}
	groups := make(map[string]int)
	for _, match := range f.matches.created {
		groups[match.Group]++
	}
	if groups["U16-A"] != 6 || groups["U16-B"] != 6 {
		t.Errorf("pool distribution = %v, want 6 per pool", groups)
	}
}

func TestStartWithTooFewEnrollmentsFails(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentRegistrationClosed
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}

	_, err := f.svc.Start(context.Background(), admin, "tournament-1")
	assertKind(t, err, apperrors.KindInvalidState)
}

func TestEndWithPendingMatchesFails(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentInProgress
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}
	f.matches.pending = 2

	_, err := f.svc.End(context.Background(), admin, "tournament-1")
	assertKind(t, err, apperrors.KindInvalidState)
}

func TestAdminCancelIsIdempotent(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentCancelled
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}

	cancelled, err := f.svc.AdminCancel(context.Background(), admin, "tournament-1", "retry")
	if err != nil {
		t.Fatalf("idempotent AdminCancel: %v", err)
	}
	if cancelled.Status != model.TournamentCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if len(f.repo.transitions) != 0 {
		t.Errorf("idempotent cancel must not write, got %v", f.repo.transitions)
	}
}

func TestAdminCancelCompletedFails(t *testing.T) {
	f := newTourneyFixture(t)

	tournament := publishedTournament()
	tournament.Status = model.TournamentCompleted
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return tournament, nil
	}

	_, err := f.svc.AdminCancel(context.Background(), admin, "tournament-1", "too late")
	assertKind(t, err, apperrors.KindInvalidState)
}

func TestRecordResultRequiresPlayer(t *testing.T) {
	f := newTourneyFixture(t)

	f.matches.findByIDFunc = func(ctx context.Context, id string) (*model.Match, error) {
		return &model.Match{
			ID:        "match-1",
			Player1ID: "s1",
			Player2ID: "s2",
			Status:    model.MatchPending,
		}, nil
	}

	_, err := f.svc.RecordResult(context.Background(), admin, "match-1", "s3")
	assertKind(t, err, apperrors.KindInvalidInput)

	match, err := f.svc.RecordResult(context.Background(), admin, "match-1", "s2")
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if match.WinnerID != "s2" || match.Status != model.MatchCompleted {
		t.Errorf("match = %+v, want s2 recorded as winner", match)
	}
}

func TestSweepClosesExpiredWindows(t *testing.T) {
	f := newTourneyFixture(t)

	expired := publishedTournament()
	expired.RegistrationWindow.Close = model.NewDateTime(tourneyNow.Add(-time.Hour))
	f.repo.closingFunc = func(ctx context.Context, before time.Time, limit int) ([]*model.Tournament, error) {
		return []*model.Tournament{expired}, nil
	}
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Tournament, error) {
		return expired, nil
	}

	if err := f.svc.SweepRegistrationWindows(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(f.repo.transitions) != 1 || f.repo.transitions[0] != "tournament-1->REGISTRATION_CLOSED" {
		t.Errorf("transitions = %v, want registration closed", f.repo.transitions)
	}
}

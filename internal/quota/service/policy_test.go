package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"rally/pkg/config"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
)

type mockCounterRepo struct {
	counts     map[string]int
	countErr   error
	increments []string
}

func (m *mockCounterRepo) Count(_ context.Context, studentID, yearMonth string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.counts[studentID+"@"+yearMonth], nil
}

func (m *mockCounterRepo) Increment(_ context.Context, studentID, yearMonth string) error {
	m.increments = append(m.increments, studentID+"@"+yearMonth)
	return nil
}

func newPolicy(t *testing.T, repo *mockCounterRepo) CancellationPolicy {
	t.Helper()
	cfg := &config.Config{
		MonthlyCancelLimit: 3,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.JSON,
			Output: io.Discard,
		}),
	}
	return NewCancellationPolicy(repo, cfg)
}

func TestCheckUnderLimitPasses(t *testing.T) {
	repo := &mockCounterRepo{counts: map[string]int{"student-1@2026-03": 2}}
	policy := newPolicy(t, repo)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := policy.Check(context.Background(), "student-1", now); err != nil {
		t.Fatalf("Check failed under limit: %v", err)
	}
}

func TestCheckAtLimitQuotaExceeded(t *testing.T) {
	repo := &mockCounterRepo{counts: map[string]int{"student-1@2026-03": 3}}
	policy := newPolicy(t, repo)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	err := policy.Check(context.Background(), "student-1", now)
	if !apperrors.IsKind(err, apperrors.KindQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

func TestCheckFailsClosedOnCounterError(t *testing.T) {
	repo := &mockCounterRepo{countErr: errors.New("mongo down")}
	policy := newPolicy(t, repo)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	err := policy.Check(context.Background(), "student-1", now)
	if !apperrors.IsKind(err, apperrors.KindInternal) {
		t.Fatalf("expected INTERNAL when counter unreadable, got %v", err)
	}
}

func TestRecordKeysByCancellationMonth(t *testing.T) {
	repo := &mockCounterRepo{counts: map[string]int{}}
	policy := newPolicy(t, repo)

	// The month boundary belongs to the new month.
	when := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if err := policy.Record(context.Background(), "student-1", when); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(repo.increments) != 1 || repo.increments[0] != "student-1@2026-04" {
		t.Fatalf("unexpected increments: %v", repo.increments)
	}
}

func TestUsedReportsCountAndLimit(t *testing.T) {
	repo := &mockCounterRepo{counts: map[string]int{"student-1@2026-03": 1}}
	policy := newPolicy(t, repo)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	used, limit, err := policy.Used(context.Background(), "student-1", now)
	if err != nil {
		t.Fatalf("Used failed: %v", err)
	}
	if used != 1 || limit != 3 {
		t.Fatalf("expected 1 of 3, got %d of %d", used, limit)
	}
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/service"
	"ashkicharm/backend/internal/store/memory"
)

type rolloverRecorder struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (r *rolloverRecorder) rollover(_ context.Context, now time.Time) (*domain.WorkerIncome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, now)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.WorkerIncome{WeekStart: now, Income: decimal.Zero, IsCurrent: true}, nil
}

func TestStartRunsRolloverImmediatelyAndSchedulesWeeklyJob(t *testing.T) {
	rec := &rolloverRecorder{}
	s := New(time.UTC, rec.rollover)
	fixed := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	rec.mu.Lock()
	calls := append([]time.Time(nil), rec.calls...)
	rec.mu.Unlock()
	if len(calls) < 1 || !calls[0].Equal(fixed) {
		t.Fatalf("expected a startup rollover at %s, got %v", fixed, calls)
	}
	if jobs := s.scheduler.Jobs(); len(jobs) != 1 {
		t.Fatalf("expected one scheduled job, got %d", len(jobs))
	}
}

func TestRolloverFailureDoesNotStopScheduler(t *testing.T) {
	rec := &rolloverRecorder{err: errors.New("database down")}
	s := New(nil, rec.rollover)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start should not fail when the first rollover fails: %v", err)
	}
	defer s.Stop()

	if !s.scheduler.IsRunning() {
		t.Fatalf("expected scheduler to be running")
	}
}

func TestRolloverAgainstServiceMarksCurrentWeek(t *testing.T) {
	loc := time.UTC
	svc := service.New(memory.New(), loc)
	s := New(loc, svc.RolloverWeek)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 5, 0, loc) }

	s.run(context.Background())

	rows, err := svc.ListIncome(context.Background())
	if err != nil {
		t.Fatalf("list income: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(rows))
	}
	want := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)
	if !rows[0].WeekStart.Equal(want) || !rows[0].IsCurrent || !rows[0].Income.IsZero() {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

// CurrentWeek returns this week's ledger row. A week with no transactions
// yet is reported as a zero row without being written; it is not flagged
// current until the Monday rollover or the first transaction stores it.
func (s *Service) CurrentWeek(ctx context.Context) (*domain.WorkerIncome, error) {
	weekStart := WeekStart(s.clock(), s.location)
	row, err := s.repo.GetIncome(ctx, weekStart)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.WorkerIncome{WeekStart: weekStart, Income: decimal.Zero}, nil
	}
	return row, err
}

func (s *Service) ListIncome(ctx context.Context) ([]domain.WorkerIncome, error) {
	return s.repo.ListIncome(ctx)
}

// RolloverWeek makes the week containing now the current one, creating its
// row at zero if nothing was recorded yet.
func (s *Service) RolloverWeek(ctx context.Context, now time.Time) (*domain.WorkerIncome, error) {
	weekStart := WeekStart(now, s.location)
	var row *domain.WorkerIncome
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		row, err = tx.AddIncome(ctx, weekStart, decimal.Zero)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "income.rollover").Time("week_start", weekStart).Msg("income week rolled over")
	return row, nil
}

func (s *Service) incomeFor(ctx context.Context, weekStart time.Time) (decimal.Decimal, error) {
	row, err := s.repo.GetIncome(ctx, weekStart)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Income, nil
}

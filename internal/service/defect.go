package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

// RegisterDefect writes off stock as a zero-revenue line with no customer
// and debits the current week by the commission share of the loss.
func (s *Service) RegisterDefect(ctx context.Context, line domain.CartLine) (*domain.DefectReceipt, error) {
	if err := validateLine(line); err != nil {
		return nil, err
	}
	now := s.clock()
	var receipt *domain.DefectReceipt

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		r, err := resolveLine(ctx, tx, line)
		if err != nil {
			return err
		}
		if _, err := tx.Reserve(ctx, r.flavor.ID, r.qty); err != nil {
			return reserveError(ctx, tx, r, err)
		}
		sale, err := tx.CreateSale(ctx, newSale(kindDefect, r, unitPrice(r.product, r.qty, kindDefect), nil, now))
		if err != nil {
			return err
		}
		debit := sale.Commission()
		if _, err := tx.AddIncome(ctx, WeekStart(now, s.location), debit); err != nil {
			return err
		}
		receipt = &domain.DefectReceipt{Sale: *sale, Loss: sale.Loss(), Debit: debit.Neg()}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			stockRejections.Inc()
		}
		return nil, err
	}

	defectsRegistered.Inc()
	s.audit(ctx, "defect.register").
		Int64("sale_id", receipt.Sale.ID).
		Str("loss", receipt.Loss.String()).
		Msg("defect registered")
	return receipt, nil
}

// DefectHistory groups all defect records by product name.
func (s *Service) DefectHistory(ctx context.Context) (*domain.DefectHistory, error) {
	defects, err := s.repo.ListDefects(ctx)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]*domain.DefectSummary)
	history := &domain.DefectHistory{Items: make([]domain.DefectSummary, 0)}
	for _, d := range defects {
		item, ok := byProduct[d.ProductName]
		if !ok {
			item = &domain.DefectSummary{Product: d.ProductName}
			byProduct[d.ProductName] = item
		}
		item.Quantity += d.Quantity
		item.Loss = item.Loss.Add(d.Loss())
		history.TotalQuantity += d.Quantity
		history.TotalLoss = history.TotalLoss.Add(d.Loss())
	}
	for _, item := range byProduct {
		history.Items = append(history.Items, *item)
	}
	slices.SortFunc(history.Items, func(a, b domain.DefectSummary) int {
		return strings.Compare(a.Product, b.Product)
	})
	return history, nil
}

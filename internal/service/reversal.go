package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

// EditSale returns the old line's stock to the shelf, then reserves the new
// line and rewrites the sale in place at the base price. The income ledger
// receives the difference in commission.
func (s *Service) EditSale(ctx context.Context, saleID int64, line domain.CartLine) (*domain.Sale, error) {
	if err := validateLine(line); err != nil {
		return nil, err
	}
	now := s.clock()
	var updated *domain.Sale

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		old, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if old.IsDefect() {
			return invalidInput("defect records cannot be edited")
		}
		if err := releaseSale(ctx, tx, *old); err != nil {
			return err
		}

		r, err := resolveLine(ctx, tx, line)
		if err != nil {
			return err
		}
		if _, err := tx.Reserve(ctx, r.flavor.ID, r.qty); err != nil {
			return reserveError(ctx, tx, r, err)
		}

		next := newSale(kindEdit, r, unitPrice(r.product, r.qty, kindEdit), old.CustomerID, old.Date)
		next.ID = old.ID
		updated, err = tx.UpdateSale(ctx, next)
		if err != nil {
			return err
		}

		delta := updated.Commission().Sub(old.Commission())
		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), delta)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			stockRejections.Inc()
		}
		return nil, err
	}

	saleReversals.WithLabelValues("edit").Inc()
	s.audit(ctx, "sale.edit").Int64("sale_id", saleID).Msg("sale edited")
	return updated, nil
}

// AddSaleLine appends a new line to an existing customer at the base price.
func (s *Service) AddSaleLine(ctx context.Context, customerID int64, line domain.CartLine) (*domain.Sale, error) {
	if err := validateLine(line); err != nil {
		return nil, err
	}
	now := s.clock()
	var created *domain.Sale

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		r, err := resolveLine(ctx, tx, line)
		if err != nil {
			return err
		}
		if _, err := tx.Reserve(ctx, r.flavor.ID, r.qty); err != nil {
			return reserveError(ctx, tx, r, err)
		}
		created, err = tx.CreateSale(ctx, newSale(kindAddLine, r, unitPrice(r.product, r.qty, kindAddLine), &customer.ID, now))
		if err != nil {
			return err
		}
		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), created.Commission())
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			stockRejections.Inc()
		}
		return nil, err
	}

	saleLinesCommitted.WithLabelValues(kindAddLine.String()).Inc()
	s.audit(ctx, "sale.add_line").Int64("customer_id", customerID).Int64("sale_id", created.ID).Msg("line added")
	return created, nil
}

// DeleteSale reverses one line: stock goes back and its commission is
// taken out of the current week.
func (s *Service) DeleteSale(ctx context.Context, saleID int64) error {
	now := s.clock()
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if err := releaseSale(ctx, tx, *sale); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, sale.ID); err != nil {
			return err
		}
		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), sale.Commission().Neg())
		return err
	})
	if err != nil {
		return err
	}

	saleReversals.WithLabelValues("delete").Inc()
	s.audit(ctx, "sale.delete").Int64("sale_id", saleID).Msg("sale deleted")
	return nil
}

// DeleteAllSalesForCustomer reverses every line of the customer and then
// removes the customer. It returns the number of lines removed.
func (s *Service) DeleteAllSalesForCustomer(ctx context.Context, customerID int64) (int, error) {
	now := s.clock()
	removed := 0
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		sales, err := tx.ListSalesByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		reversed := decimal.Zero
		for _, sale := range sales {
			if err := releaseSale(ctx, tx, sale); err != nil {
				return err
			}
			if err := tx.DeleteSale(ctx, sale.ID); err != nil {
				return err
			}
			reversed = reversed.Add(sale.Commission())
		}
		if err := tx.DeleteCustomer(ctx, customerID); err != nil {
			return err
		}
		removed = len(sales)
		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), reversed.Neg())
		return err
	})
	if err != nil {
		return 0, err
	}

	saleReversals.WithLabelValues("delete").Add(float64(removed))
	s.audit(ctx, "customer.delete_all").Int64("customer_id", customerID).Int("lines", removed).Msg("customer sales deleted")
	return removed, nil
}

// releaseSale puts a sale's quantity back on its flavor. A flavor that was
// deleted since the sale has nowhere to return stock to; that is logged and
// skipped.
func releaseSale(ctx context.Context, tx store.Tx, sale domain.Sale) error {
	if sale.FlavorID == nil {
		log.Warn().Int64("sale_id", sale.ID).Str("flavor", sale.FlavorName).Msg("flavor no longer exists, stock not returned")
		return nil
	}
	if _, err := tx.Release(ctx, *sale.FlavorID, sale.Quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Int64("sale_id", sale.ID).Int64("flavor_id", *sale.FlavorID).Msg("flavor no longer exists, stock not returned")
			return nil
		}
		return err
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

const (
	maxCommitAttempts    = 3
	anonymousCustomerFmt = "Покупатель %d"
)

// CommitCart applies a whole cart in one transaction. Every line is checked
// against stock first; if any line is short nothing is written and the error
// lists only the short lines.
func (s *Service) CommitCart(ctx context.Context, lines []domain.CartLine, customerName string) (*domain.Receipt, error) {
	if len(lines) == 0 {
		return nil, invalidInput("cart is empty")
	}
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return nil, err
		}
	}
	customerName = strings.TrimSpace(customerName)

	var receipt *domain.Receipt
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		receipt, err = s.commitCart(ctx, lines, customerName)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("cart commit lost a race, retrying")
	}
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			stockRejections.Inc()
		}
		return nil, err
	}

	saleLinesCommitted.WithLabelValues(kindCart.String()).Add(float64(len(receipt.Lines)))
	s.audit(ctx, "cart.commit").
		Int64("customer_id", receipt.Customer.ID).
		Int("lines", len(receipt.Lines)).
		Str("revenue", receipt.TotalRevenue.String()).
		Msg("cart committed")
	return receipt, nil
}

func (s *Service) commitCart(ctx context.Context, lines []domain.CartLine, customerName string) (*domain.Receipt, error) {
	now := s.clock()
	var receipt *domain.Receipt

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		resolved := make([]resolvedLine, 0, len(lines))
		for _, line := range lines {
			r, err := resolveLine(ctx, tx, line)
			if err != nil {
				return err
			}
			resolved = append(resolved, r)
		}
		if err := preflight(resolved); err != nil {
			return err
		}

		customer, err := resolveCustomer(ctx, tx, customerName, now)
		if err != nil {
			return err
		}

		totals := productTotals(resolved)
		receipt = &domain.Receipt{Customer: customer, CreatedAt: now}
		for _, line := range resolved {
			if _, err := tx.Reserve(ctx, line.flavor.ID, line.qty); err != nil {
				return reserveError(ctx, tx, line, err)
			}
			price := unitPrice(line.product, totals[line.product.ID], kindCart)
			sale, err := tx.CreateSale(ctx, newSale(kindCart, line, price, &customer.ID, now))
			if err != nil {
				return err
			}
			addReceiptLine(receipt, *sale)
		}

		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), receipt.Commission)
		return err
	})
	if err != nil {
		return nil, err
	}
	receipt.Text = FormatReceipt(*receipt)
	return receipt, nil
}

// ProcessSale is the one-shot path: a single line, no customer, base price.
func (s *Service) ProcessSale(ctx context.Context, line domain.CartLine) (*domain.Receipt, error) {
	if err := validateLine(line); err != nil {
		return nil, err
	}
	now := s.clock()
	receipt := &domain.Receipt{CreatedAt: now}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		r, err := resolveLine(ctx, tx, line)
		if err != nil {
			return err
		}
		if _, err := tx.Reserve(ctx, r.flavor.ID, r.qty); err != nil {
			return reserveError(ctx, tx, r, err)
		}
		sale, err := tx.CreateSale(ctx, newSale(kindQuick, r, unitPrice(r.product, r.qty, kindQuick), nil, now))
		if err != nil {
			return err
		}
		addReceiptLine(receipt, *sale)
		_, err = tx.AddIncome(ctx, WeekStart(now, s.location), receipt.Commission)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			stockRejections.Inc()
		}
		return nil, err
	}

	receipt.Text = FormatReceipt(*receipt)
	saleLinesCommitted.WithLabelValues(kindQuick.String()).Inc()
	s.audit(ctx, "sale.quick").Int64("sale_id", receipt.Lines[0].SaleID).Msg("quick sale recorded")
	return receipt, nil
}

func preflight(lines []resolvedLine) error {
	remaining := make(map[int64]int, len(lines))
	shortages := make([]StockShortage, 0)
	for _, l := range lines {
		available, seen := remaining[l.flavor.ID]
		if !seen {
			available = l.flavor.Quantity
		}
		if l.qty > available {
			shortages = append(shortages, StockShortage{
				Product:   l.product.Name,
				Flavor:    l.flavor.Name,
				Requested: l.qty,
				Available: available,
			})
			remaining[l.flavor.ID] = available
			continue
		}
		remaining[l.flavor.ID] = available - l.qty
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Lines: shortages}
	}
	return nil
}

// reserveError turns a failed reservation into the same per-line report the
// pre-flight pass produces.
func reserveError(ctx context.Context, tx store.Reader, line resolvedLine, err error) error {
	if !errors.Is(err, store.ErrInsufficientStock) {
		return err
	}
	available := 0
	if current, lookupErr := tx.GetFlavor(ctx, line.flavor.ID); lookupErr == nil {
		available = current.Quantity
	}
	return &InsufficientStockError{Lines: []StockShortage{{
		Product:   line.product.Name,
		Flavor:    line.flavor.Name,
		Requested: line.qty,
		Available: available,
	}}}
}

func resolveCustomer(ctx context.Context, tx store.Tx, name string, now time.Time) (*domain.Customer, error) {
	if name != "" {
		existing, err := tx.FindCustomerByName(ctx, name)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return tx.CreateCustomer(ctx, name, now)
	}

	maxID, err := tx.MaxCustomerID(ctx)
	if err != nil {
		return nil, err
	}
	for n := maxID + 1; ; n++ {
		candidate := fmt.Sprintf(anonymousCustomerFmt, n)
		_, err := tx.FindCustomerByName(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return tx.CreateCustomer(ctx, candidate, now)
		}
		if err != nil {
			return nil, err
		}
	}
}

func addReceiptLine(r *domain.Receipt, sale domain.Sale) {
	r.Lines = append(r.Lines, domain.ReceiptLine{
		SaleID:    sale.ID,
		Product:   sale.ProductName,
		Flavor:    sale.FlavorName,
		Quantity:  sale.Quantity,
		UnitPrice: sale.SalePrice,
		Amount:    sale.Revenue(),
	})
	r.TotalRevenue = r.TotalRevenue.Add(sale.Revenue())
	r.TotalProfit = r.TotalProfit.Add(sale.Profit())
	r.Commission = r.Commission.Add(sale.Commission())
}

// FormatReceipt renders the receipt text shown to the operator.
func FormatReceipt(r domain.Receipt) string {
	var b strings.Builder
	b.WriteString("🧾 Продажа оформлена\n")
	if r.Customer != nil {
		fmt.Fprintf(&b, "Покупатель: %s\n", r.Customer.Name)
	}
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "• %s (%s) × %d по %s = %s\n", l.Product, l.Flavor, l.Quantity, l.UnitPrice.String(), l.Amount.String())
	}
	fmt.Fprintf(&b, "Итого: %s\n", r.TotalRevenue.String())
	fmt.Fprintf(&b, "Прибыль: %s", r.TotalProfit.String())
	return b.String()
}

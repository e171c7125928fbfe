package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// DailySales aggregates sales per day over [from, to], both days inclusive.
// Defect records are not revenue and are left out.
func (s *Service) DailySales(ctx context.Context, from time.Time, to time.Time) (*domain.DailySalesReport, error) {
	start := dayStart(from, s.location)
	end := dayStart(to, s.location).AddDate(0, 0, 1)
	if !end.After(start) {
		return nil, invalidInput("report range ends before it starts")
	}

	sales, err := s.repo.ListSalesBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &domain.DailySalesReport{From: start, To: end.AddDate(0, 0, -1), Rows: make([]domain.DailySalesRow, 0)}
	index := make(map[string]int)
	for _, sale := range sales {
		if sale.IsDefect() {
			continue
		}
		day := sale.Date.In(s.location).Format(dateLayout)
		i, ok := index[day]
		if !ok {
			i = len(report.Rows)
			index[day] = i
			report.Rows = append(report.Rows, domain.DailySalesRow{Date: day})
		}
		report.Rows[i].Add(sale)
		report.Totals.Add(sale)
	}
	return report, nil
}

func (s *Service) customersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CustomerSales, error) {
	customers, err := s.repo.ListCustomersBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CustomerSales, 0, len(customers))
	for _, c := range customers {
		sales, err := s.repo.ListSalesByCustomer(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, customerSales(c, sales))
	}
	return out, nil
}

func customerSales(c domain.Customer, sales []domain.Sale) domain.CustomerSales {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Revenue())
	}
	return domain.CustomerSales{Customer: c, Sales: sales, Total: total}
}

// MonthCustomers joins customers created in the month with their sales.
func (s *Service) MonthCustomers(ctx context.Context, year int, month time.Month) ([]domain.CustomerSales, error) {
	if month < time.January || month > time.December {
		return nil, invalidInput("month must be 1-12, got %d", month)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.location)
	return s.customersBetween(ctx, start, start.AddDate(0, 1, 0))
}

func (s *Service) TodayCustomers(ctx context.Context) ([]domain.CustomerSales, error) {
	start := dayStart(s.clock(), s.location)
	return s.customersBetween(ctx, start, start.AddDate(0, 0, 1))
}

func (s *Service) CustomerSales(ctx context.Context, customerID int64) (*domain.CustomerSales, error) {
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSalesByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := customerSales(*c, sales)
	return &out, nil
}

// Stats summarises today, this week and this month, plus the ledger totals
// for this and the previous week.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	now := s.clock()
	today := dayStart(now, s.location)
	week := WeekStart(now, s.location)
	month := monthStart(now, s.location)

	earliest := month
	if week.Before(earliest) {
		earliest = week
	}
	sales, err := s.repo.ListSalesBetween(ctx, earliest, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	stats := &domain.Stats{}
	for _, sale := range sales {
		if sale.IsDefect() {
			continue
		}
		if !sale.Date.Before(today) {
			stats.Today.Add(sale)
		}
		if !sale.Date.Before(week) {
			stats.Week.Add(sale)
		}
		if !sale.Date.Before(month) {
			stats.Month.Add(sale)
		}
	}

	if stats.CurrentWeekIncome, err = s.incomeFor(ctx, week); err != nil {
		return nil, err
	}
	if stats.LastWeekIncome, err = s.incomeFor(ctx, week.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	return stats, nil
}

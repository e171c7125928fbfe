package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("ASHKI_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ASHKI_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("IT Product %d", time.Now().UnixNano())

	var flavor *domain.Flavor
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		product, err := tx.CreateProduct(ctx, domain.Product{
			Name:          name,
			PurchasePrice: decimal.NewFromInt(100),
			SalePrice:     decimal.NewFromInt(200),
			SalePrice2:    decimal.NewFromInt(180),
		})
		if err != nil {
			return err
		}
		flavor, err = tx.CreateFlavor(ctx, domain.Flavor{ProductID: product.ID, Name: "Mint", Quantity: 5})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE name = $1`, name)
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx store.Tx) error {
				_, err := tx.Reserve(ctx, flavor.ID, 2)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 2 {
		t.Fatalf("expected exactly 2 reservations of 2 from stock 5, got %d", succeeded)
	}
	got, err := s.GetFlavor(ctx, flavor.ID)
	if err != nil {
		t.Fatalf("get flavor: %v", err)
	}
	if got.Quantity != 1 {
		t.Fatalf("expected remaining quantity 1, got %d", got.Quantity)
	}
}

func TestAddIncomeMovesCurrentFlag(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	base := time.Date(1990+int(time.Now().UnixNano()%30), 1, 1, 0, 0, 0, 0, time.UTC)
	week1 := base
	week2 := base.AddDate(0, 0, 7)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM worker_income WHERE week_start IN ($1, $2)`, week1, week2)
	})

	for _, week := range []time.Time{week1, week2, week1} {
		if err := s.WithinTx(ctx, func(tx store.Tx) error {
			_, err := tx.AddIncome(ctx, week, decimal.RequireFromString("12.5"))
			return err
		}); err != nil {
			t.Fatalf("add income: %v", err)
		}
	}

	row, err := s.GetIncome(ctx, week1)
	if err != nil {
		t.Fatalf("get income: %v", err)
	}
	if !row.IsCurrent || !row.Income.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected week1 current with 25, got current=%v income=%s", row.IsCurrent, row.Income)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM worker_income WHERE is_current`).Scan(&current); err != nil {
		t.Fatalf("count current: %v", err)
	}
	if current != 1 {
		t.Fatalf("expected exactly one current row, got %d", current)
	}
}

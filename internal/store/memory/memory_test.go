package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

func seedFlavor(t *testing.T, s *Store, qty int) (domain.Product, domain.Flavor) {
	t.Helper()
	var product *domain.Product
	var flavor *domain.Flavor
	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		product, err = tx.CreateProduct(context.Background(), domain.Product{
			Name:          "Elf Bar",
			PurchasePrice: decimal.NewFromInt(100),
			SalePrice:     decimal.NewFromInt(200),
			SalePrice2:    decimal.NewFromInt(180),
		})
		if err != nil {
			return err
		}
		flavor, err = tx.CreateFlavor(context.Background(), domain.Flavor{ProductID: product.ID, Name: "Apple", Quantity: qty})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return *product, *flavor
}

func TestReserveFailsWithoutMutatingWhenShort(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, flavor := seedFlavor(t, s, 3)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.Reserve(ctx, flavor.ID, 4)
		return err
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	got, _ := s.GetFlavor(ctx, flavor.ID)
	if got.Quantity != 3 {
		t.Fatalf("expected quantity to stay 3, got %d", got.Quantity)
	}
}

func TestReserveThenReleaseNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, flavor := seedFlavor(t, s, 5)

	ops := []struct {
		reserve bool
		qty     int
	}{
		{true, 2}, {true, 3}, {true, 1}, {false, 4}, {true, 4}, {true, 1},
	}
	for _, op := range ops {
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			if op.reserve {
				_, err := tx.Reserve(ctx, flavor.ID, op.qty)
				return err
			}
			_, err := tx.Release(ctx, flavor.ID, op.qty)
			return err
		})
		got, _ := s.GetFlavor(ctx, flavor.ID)
		if got.Quantity < 0 {
			t.Fatalf("quantity went negative: %d", got.Quantity)
		}
	}

	got, _ := s.GetFlavor(ctx, flavor.ID)
	if got.Quantity != 0 {
		t.Fatalf("expected final quantity 0, got %d", got.Quantity)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, flavor := seedFlavor(t, s, 5)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Reserve(ctx, flavor.ID, 2); err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(ctx, "Аня", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetFlavor(ctx, flavor.ID)
	if got.Quantity != 5 {
		t.Fatalf("expected rollback to restore quantity 5, got %d", got.Quantity)
	}
	if _, err := s.FindCustomerByName(ctx, "Аня"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected customer to be rolled back, got %v", err)
	}
}

func TestFindFlavorIsCaseAndSpaceInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()
	product, flavor := seedFlavor(t, s, 1)

	got, err := s.FindFlavor(ctx, product.ID, store.NormalizeName("  APPLE "))
	if err != nil {
		t.Fatalf("find flavor: %v", err)
	}
	if got.ID != flavor.ID {
		t.Fatalf("expected flavor %d, got %d", flavor.ID, got.ID)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateFlavor(ctx, domain.Flavor{ProductID: product.ID, Name: "apple ", Quantity: 1})
		return err
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate flavor, got %v", err)
	}
}

func TestAddIncomeKeepsSingleCurrentRow(t *testing.T) {
	ctx := context.Background()
	s := New()
	week1 := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	week2 := week1.AddDate(0, 0, 7)

	for _, step := range []struct {
		week  time.Time
		delta int64
	}{
		{week1, 30}, {week2, 15}, {week1, -10},
	} {
		if err := s.WithinTx(ctx, func(tx store.Tx) error {
			_, err := tx.AddIncome(ctx, step.week, decimal.NewFromInt(step.delta))
			return err
		}); err != nil {
			t.Fatalf("add income: %v", err)
		}
	}

	rows, _ := s.ListIncome(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 income rows, got %d", len(rows))
	}
	current := 0
	for _, row := range rows {
		if row.IsCurrent {
			current++
			if !row.WeekStart.Equal(week1) {
				t.Fatalf("expected week1 to be current, got %s", row.WeekStart)
			}
			if !row.Income.Equal(decimal.NewFromInt(20)) {
				t.Fatalf("expected week1 income 20, got %s", row.Income)
			}
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current row, got %d", current)
	}
}

func TestDeleteProductCascadesFlavorsAndDetachesSales(t *testing.T) {
	ctx := context.Background()
	s := New()
	product, flavor := seedFlavor(t, s, 5)

	var saleID int64
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		sale, err := tx.CreateSale(ctx, domain.Sale{
			Kind:        domain.SaleKindSale,
			ProductID:   &product.ID,
			FlavorID:    &flavor.ID,
			ProductName: product.Name,
			FlavorName:  flavor.Name,
			Quantity:    1,
			SalePrice:   product.SalePrice,
			Date:        time.Now(),
		})
		if err != nil {
			return err
		}
		saleID = sale.ID
		return tx.DeleteProduct(ctx, product.ID)
	})
	if err != nil {
		t.Fatalf("delete product: %v", err)
	}

	if _, err := s.GetFlavor(ctx, flavor.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected flavor to be deleted, got %v", err)
	}
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.ProductID != nil || sale.FlavorID != nil {
		t.Fatalf("expected sale references to be cleared")
	}
	if sale.ProductName != "Elf Bar" || sale.FlavorName != "Apple" {
		t.Fatalf("expected name snapshots to survive, got %q/%q", sale.ProductName, sale.FlavorName)
	}
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, flavor := seedFlavor(t, s, 5)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected the panic to propagate")
			}
		}()
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			if _, err := tx.Reserve(ctx, flavor.ID, 3); err != nil {
				return err
			}
			panic("half-applied")
		})
	}()

	got, err := s.GetFlavor(ctx, flavor.ID)
	if err != nil {
		t.Fatalf("get flavor: %v", err)
	}
	if got.Quantity != 5 {
		t.Fatalf("expected quantity 5 after panic, got %d", got.Quantity)
	}
}

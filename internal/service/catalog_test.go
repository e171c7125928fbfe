package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

func TestAddFlavorsMergeSumsIntoExistingFlavor(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, svc, "Elf Bar", "100 200 180", "Apple 3")
	ctx := context.Background()
	before, err := repo.FindFlavor(ctx, product.ID, store.NormalizeName("Apple"))
	if err != nil {
		t.Fatalf("find flavor: %v", err)
	}

	got, err := svc.AddFlavors(ctx, product.ID, domain.FlavorAddRequest{Lines: "apple  2", Merge: true})
	if err != nil {
		t.Fatalf("merge flavors: %v", err)
	}
	if len(got) != 1 || got[0].ID != before.ID || got[0].Quantity != 5 {
		t.Fatalf("expected flavor %d merged to 5, got %+v", before.ID, got)
	}
	if qty := flavorQty(t, repo, product.ID, "Apple"); qty != 5 {
		t.Fatalf("expected stored quantity 5, got %d", qty)
	}
	flavors, _ := repo.ListFlavors(ctx, product.ID)
	if len(flavors) != 1 {
		t.Fatalf("expected no new flavor row, got %d flavors", len(flavors))
	}
}

func TestAddFlavorsSumsRepeatedNamesInBatch(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, svc, "Elf Bar", "100 200 180", "Apple 3")

	got, err := svc.AddFlavors(context.Background(), product.ID, domain.FlavorAddRequest{Lines: "Mango 1\nmango 2"})
	if err != nil {
		t.Fatalf("add flavors: %v", err)
	}
	if len(got) != 1 || got[0].Quantity != 3 {
		t.Fatalf("expected a single flavor with 3, got %+v", got)
	}
	if qty := flavorQty(t, repo, product.ID, "Mango"); qty != 3 {
		t.Fatalf("expected stored quantity 3, got %d", qty)
	}
}

func TestAddFlavorsReportsAtMostFiveProblemsAndWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, svc, "Elf Bar", "100 200 180", "Apple 3")
	ctx := context.Background()

	lines := []string{"Mango 1", "Lime", "Kiwi x", "7", "Peach -1", "Berry", "Cola two", "Mint"}
	_, err := svc.AddFlavors(ctx, product.ID, domain.FlavorAddRequest{Lines: strings.Join(lines, "\n")})

	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if len(invalid.Problems) != 5 {
		t.Fatalf("expected 5 reported problems, got %d: %v", len(invalid.Problems), invalid.Problems)
	}
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected error to wrap ErrInvalidInput")
	}
	if _, err := repo.FindFlavor(ctx, product.ID, store.NormalizeName("Mango")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected valid line not to be written, got %v", err)
	}
}

func TestParsePrices(t *testing.T) {
	prices, err := ParsePrices("100 200")
	if err != nil {
		t.Fatalf("two fields: %v", err)
	}
	if !prices.Purchase.Equal(dec("100")) || !prices.Sale.Equal(dec("200")) || !prices.Sale2.Equal(prices.Sale) {
		t.Fatalf("expected sale2 to default to sale, got %+v", prices)
	}

	prices, err = ParsePrices("100,5 200 180")
	if err != nil {
		t.Fatalf("comma decimal: %v", err)
	}
	if !prices.Purchase.Equal(dec("100.5")) || !prices.Sale2.Equal(dec("180")) {
		t.Fatalf("unexpected prices %+v", prices)
	}

	for _, bad := range []string{"100", "1 2 3 4", "abc 200", "-1 200", ""} {
		if _, err := ParsePrices(bad); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
}

func TestQuantitiesBeyondStockColumnAreRejected(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, svc, "Elf Bar", "100 200 180", "Apple 2147483647")
	ctx := context.Background()

	if _, err := ParseFlavorLines("Mango 3000000000"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected oversized line quantity to be rejected, got %v", err)
	}
	if _, err := svc.AddFlavors(ctx, product.ID, domain.FlavorAddRequest{Lines: "Mango 2147483000\nmango 1000"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected oversized batch sum to be rejected, got %v", err)
	}
	if _, err := svc.AddFlavors(ctx, product.ID, domain.FlavorAddRequest{Lines: "Apple 1", Merge: true}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected oversized merge to be rejected, got %v", err)
	}
	if qty := flavorQty(t, repo, product.ID, "Apple"); qty != maxQuantity {
		t.Fatalf("expected quantity unchanged, got %d", qty)
	}

	apple, _ := repo.FindFlavor(ctx, product.ID, store.NormalizeName("Apple"))
	if _, err := svc.SetFlavorQuantity(ctx, apple.ID, maxQuantity+1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected oversized set quantity to be rejected, got %v", err)
	}
	line := []domain.CartLine{{Product: "Elf Bar", Flavor: "Apple", Quantity: maxQuantity + 1}}
	if _, err := svc.CommitCart(ctx, line, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected oversized cart line to be rejected, got %v", err)
	}
}

func TestCurrentWeekWithoutRowIsNotFlaggedCurrent(t *testing.T) {
	svc, repo := newTestService(t)
	seedProduct(t, svc, "Elf Bar", "100 200 180", "Apple 10")
	ctx := context.Background()

	if _, err := svc.CommitCart(ctx, []domain.CartLine{{Product: "Elf Bar", Flavor: "Apple", Quantity: 1}}, ""); err != nil {
		t.Fatalf("commit: %v", err)
	}
	svc.now = func() time.Time { return testNow.AddDate(0, 0, 7) }

	row, err := svc.CurrentWeek(ctx)
	if err != nil {
		t.Fatalf("current week: %v", err)
	}
	if row.IsCurrent || !row.Income.IsZero() {
		t.Fatalf("expected unstored zero row not flagged current, got %+v", row)
	}
	prev, err := repo.GetIncome(ctx, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("previous week: %v", err)
	}
	if !prev.IsCurrent {
		t.Fatalf("expected stored week to keep the current flag until rollover")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

func (s *Service) ListCatalog(ctx context.Context) ([]domain.CatalogProduct, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make([]domain.CatalogProduct, 0, len(products))
	for _, p := range products {
		flavors, err := s.repo.ListFlavors(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		entry := domain.CatalogProduct{Product: p, Flavors: make([]domain.CatalogFlavor, 0, len(flavors))}
		for _, f := range flavors {
			entry.Flavors = append(entry.Flavors, domain.CatalogFlavor{Flavor: f, InStock: f.Quantity > 0})
		}
		catalog = append(catalog, entry)
	}
	return catalog, nil
}

// PriceList renders the catalog for chat display. Out-of-stock flavors are
// struck through.
func (s *Service) PriceList(ctx context.Context) (string, error) {
	catalog, err := s.ListCatalog(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, p := range catalog {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<b>%s</b> — %s / от 2 шт. %s\n", p.Name, p.SalePrice.String(), p.SalePrice2.String())
		for _, f := range p.Flavors {
			if f.InStock {
				fmt.Fprintf(&b, "  • %s\n", f.Name)
				continue
			}
			fmt.Fprintf(&b, "  • <s>%s</s>\n", f.Name)
		}
	}
	return b.String(), nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidInput("product name is required")
	}
	prices, err := ParsePrices(req.Prices)
	if err != nil {
		return nil, err
	}

	var product *domain.Product
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		product, err = tx.CreateProduct(ctx, domain.Product{
			Name:          name,
			PurchasePrice: prices.Purchase,
			SalePrice:     prices.Sale,
			SalePrice2:    prices.Sale2,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("product %q: %w", name, store.ErrDuplicate)
		}
		return nil, err
	}
	s.audit(ctx, "product.create").Int64("product_id", product.ID).Str("name", product.Name).Msg("product created")
	return product, nil
}

func (s *Service) UpdateProductPrices(ctx context.Context, productID int64, req domain.PriceUpdateRequest) (*domain.Product, error) {
	prices, err := ParsePrices(req.Prices)
	if err != nil {
		return nil, err
	}
	var product *domain.Product
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		product, err = tx.UpdateProductPrices(ctx, productID, prices.Purchase, prices.Sale, prices.Sale2)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "product.prices").Int64("product_id", productID).Msg("prices updated")
	return product, nil
}

// DeleteProduct removes the product and its flavors. Existing sales keep
// their name snapshots.
func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, productID)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "product.delete").Int64("product_id", productID).Msg("product deleted")
	return nil
}

func (s *Service) DeleteFlavor(ctx context.Context, flavorID int64) error {
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteFlavor(ctx, flavorID)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "flavor.delete").Int64("flavor_id", flavorID).Msg("flavor deleted")
	return nil
}

func (s *Service) SetFlavorQuantity(ctx context.Context, flavorID int64, qty int) (*domain.Flavor, error) {
	if qty < 0 {
		return nil, invalidInput("quantity must not be negative, got %d", qty)
	}
	if qty > maxQuantity {
		return nil, invalidInput("quantity %d is too large", qty)
	}
	var flavor *domain.Flavor
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		flavor, err = tx.SetFlavorQuantity(ctx, flavorID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "flavor.quantity").Int64("flavor_id", flavorID).Int("quantity", qty).Msg("flavor quantity set")
	return flavor, nil
}

// AddFlavors parses "name quantity" lines and adds them to the product.
// Lines repeating a name within the batch are summed. Names that already
// exist on the product are summed into the existing flavor only when merge
// is set; otherwise a DuplicateFlavorError lists them and nothing changes.
func (s *Service) AddFlavors(ctx context.Context, productID int64, req domain.FlavorAddRequest) ([]domain.Flavor, error) {
	entries, err := ParseFlavorLines(req.Lines)
	if err != nil {
		return nil, err
	}
	entries = mergeEntries(entries)
	for _, e := range entries {
		if e.Quantity > maxQuantity {
			return nil, invalidInput("flavor %q: total quantity %d is too large", e.Name, e.Quantity)
		}
	}

	result := make([]domain.Flavor, 0, len(entries))
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}

		existing := make(map[string]domain.Flavor, len(entries))
		duplicates := make([]string, 0)
		for _, e := range entries {
			f, err := tx.FindFlavor(ctx, productID, store.NormalizeName(e.Name))
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			existing[store.NormalizeName(e.Name)] = *f
			duplicates = append(duplicates, f.Name)
		}
		if len(duplicates) > 0 && !req.Merge {
			return &DuplicateFlavorError{Names: duplicates}
		}

		for _, e := range entries {
			if f, ok := existing[store.NormalizeName(e.Name)]; ok {
				if f.Quantity > maxQuantity-e.Quantity {
					return invalidInput("flavor %q: merged quantity exceeds %d", f.Name, maxQuantity)
				}
				updated, err := tx.SetFlavorQuantity(ctx, f.ID, f.Quantity+e.Quantity)
				if err != nil {
					return err
				}
				result = append(result, *updated)
				continue
			}
			created, err := tx.CreateFlavor(ctx, domain.Flavor{ProductID: productID, Name: e.Name, Quantity: e.Quantity})
			if err != nil {
				return err
			}
			result = append(result, *created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "flavor.add").Int64("product_id", productID).Int("flavors", len(result)).Msg("flavors added")
	return result, nil
}

func mergeEntries(entries []FlavorEntry) []FlavorEntry {
	index := make(map[string]int, len(entries))
	out := make([]FlavorEntry, 0, len(entries))
	for _, e := range entries {
		key := store.NormalizeName(e.Name)
		if i, ok := index[key]; ok {
			out[i].Quantity += e.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out
}

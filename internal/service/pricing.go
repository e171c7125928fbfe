package service

import (
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
)

// saleKind selects the pricing policy for a line written by the engine.
type saleKind int

const (
	kindCart saleKind = iota
	kindQuick
	kindAddLine
	kindEdit
	kindDefect
)

func (k saleKind) String() string {
	switch k {
	case kindCart:
		return "cart"
	case kindQuick:
		return "quick"
	case kindAddLine:
		return "add_line"
	case kindEdit:
		return "edit"
	case kindDefect:
		return "defect"
	}
	return "unknown"
}

// unitPrice is the single pricing policy. Only the cart path applies the
// two-unit tier, keyed on the total quantity of the product in the cart.
// Single-line additions and edits stay on the base price.
func unitPrice(p domain.Product, productTotal int, kind saleKind) decimal.Decimal {
	switch kind {
	case kindDefect:
		return decimal.Zero
	case kindCart:
		if productTotal >= 2 {
			return p.SalePrice2
		}
	}
	return p.SalePrice
}

func productTotals(lines []resolvedLine) map[int64]int {
	totals := make(map[int64]int, len(lines))
	for _, l := range lines {
		totals[l.product.ID] += l.qty
	}
	return totals
}

func newSale(kind saleKind, line resolvedLine, price decimal.Decimal, customerID *int64, at time.Time) domain.Sale {
	productID := line.product.ID
	flavorID := line.flavor.ID
	recordKind := domain.SaleKindSale
	if kind == kindDefect {
		recordKind = domain.SaleKindDefect
	}
	return domain.Sale{
		Kind:          recordKind,
		ProductID:     &productID,
		FlavorID:      &flavorID,
		CustomerID:    customerID,
		ProductName:   line.product.Name,
		FlavorName:    line.flavor.Name,
		Quantity:      line.qty,
		PurchasePrice: line.product.PurchasePrice,
		SalePrice:     price,
		Date:          at,
	}
}

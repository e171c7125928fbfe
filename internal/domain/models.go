package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRate is the worker's share of profit on sales and of loss on defects.
var CommissionRate = decimal.RequireFromString("0.3")

const (
	SaleKindSale   = "sale"
	SaleKindDefect = "defect"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	SalePrice2    decimal.Decimal `json:"sale_price_2"`
}

type Flavor struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type CatalogFlavor struct {
	Flavor
	InStock bool `json:"in_stock"`
}

type CatalogProduct struct {
	Product
	Flavors []CatalogFlavor `json:"flavors"`
}

type Customer struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// Sale is one committed line. Product and flavor names are snapshots taken
// when the line was written, so the row stays readable after catalog deletes.
type Sale struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	ProductID     *int64          `json:"product_id,omitempty"`
	FlavorID      *int64          `json:"flavor_id,omitempty"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	ProductName   string          `json:"product_name"`
	FlavorName    string          `json:"flavor_name"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Date          time.Time       `json:"date"`
}

func (s Sale) IsDefect() bool {
	return s.Kind == SaleKindDefect
}

func (s Sale) Revenue() decimal.Decimal {
	return s.SalePrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

func (s Sale) Profit() decimal.Decimal {
	return s.SalePrice.Sub(s.PurchasePrice).Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Loss is the purchase value written off by a defect.
func (s Sale) Loss() decimal.Decimal {
	return s.PurchasePrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Commission is the signed amount this line contributes to the income ledger.
func (s Sale) Commission() decimal.Decimal {
	if s.IsDefect() {
		return s.Loss().Mul(CommissionRate).Neg()
	}
	return s.Profit().Mul(CommissionRate)
}

type WorkerIncome struct {
	ID        int64           `json:"id"`
	WeekStart time.Time       `json:"week_start"`
	Income    decimal.Decimal `json:"income"`
	IsCurrent bool            `json:"is_current"`
}

type CartLine struct {
	Product  string `json:"product"`
	Flavor   string `json:"flavor"`
	Quantity int    `json:"quantity"`
}

type ReceiptLine struct {
	SaleID    int64           `json:"sale_id"`
	Product   string          `json:"product"`
	Flavor    string          `json:"flavor"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type Receipt struct {
	Customer     *Customer       `json:"customer,omitempty"`
	Lines        []ReceiptLine   `json:"lines"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	Commission   decimal.Decimal `json:"commission"`
	CreatedAt    time.Time       `json:"created_at"`
	Text         string          `json:"text"`
}

type DefectReceipt struct {
	Sale  Sale            `json:"sale"`
	Loss  decimal.Decimal `json:"loss"`
	Debit decimal.Decimal `json:"debit"`
}

type DefectSummary struct {
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Loss     decimal.Decimal `json:"loss"`
}

type DefectHistory struct {
	Items         []DefectSummary `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalLoss     decimal.Decimal `json:"total_loss"`
}

type CustomerSales struct {
	Customer Customer        `json:"customer"`
	Sales    []Sale          `json:"sales"`
	Total    decimal.Decimal `json:"total"`
}

type SalesAggregate struct {
	Count      int             `json:"count"`
	Revenue    decimal.Decimal `json:"revenue"`
	Profit     decimal.Decimal `json:"profit"`
	Commission decimal.Decimal `json:"commission"`
}

func (a *SalesAggregate) Add(s Sale) {
	a.Count++
	a.Revenue = a.Revenue.Add(s.Revenue())
	a.Profit = a.Profit.Add(s.Profit())
	a.Commission = a.Commission.Add(s.Commission())
}

type DailySalesRow struct {
	Date string `json:"date"`
	SalesAggregate
}

type DailySalesReport struct {
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Rows   []DailySalesRow `json:"rows"`
	Totals SalesAggregate  `json:"totals"`
}

type Stats struct {
	Today             SalesAggregate  `json:"today"`
	Week              SalesAggregate  `json:"week"`
	Month             SalesAggregate  `json:"month"`
	CurrentWeekIncome decimal.Decimal `json:"current_week_income"`
	LastWeekIncome    decimal.Decimal `json:"last_week_income"`
}

type Actor struct {
	Subject string `json:"subject"`
}

type LoginRequest struct {
	Passphrase string `json:"passphrase"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type ProductCreateRequest struct {
	Name   string `json:"name"`
	Prices string `json:"prices"`
}

type PriceUpdateRequest struct {
	Prices string `json:"prices"`
}

type FlavorAddRequest struct {
	Lines string `json:"lines"`
	Merge bool   `json:"merge"`
}

type FlavorQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CommitRequest struct {
	CustomerName string `json:"customer_name"`
}

type CartCommitRequest struct {
	Lines        []CartLine `json:"lines"`
	CustomerName string     `json:"customer_name"`
}

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("already exists")
	// ErrConflict marks a write that lost a race with a concurrent transaction.
	// Retrying the whole transaction is safe.
	ErrConflict = errors.New("conflict")
)

// NormalizeName is the key used for case and whitespace insensitive name matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Reader interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)
	ListFlavors(ctx context.Context, productID int64) ([]domain.Flavor, error)
	GetFlavor(ctx context.Context, id int64) (*domain.Flavor, error)
	// FindFlavor matches on NormalizeName of the stored flavor name.
	FindFlavor(ctx context.Context, productID int64, normalizedName string) (*domain.Flavor, error)

	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error)
	ListCustomersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Customer, error)
	MaxCustomerID(ctx context.Context) (int64, error)

	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error)
	// ListSalesBetween returns sales and defects with from <= date < to, oldest first.
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListDefects(ctx context.Context) ([]domain.Sale, error)

	GetIncome(ctx context.Context, weekStart time.Time) (*domain.WorkerIncome, error)
	ListIncome(ctx context.Context) ([]domain.WorkerIncome, error)
}

// Tx is the write side. Every method runs inside the transaction opened by
// Repository.WithinTx and is committed or rolled back as a unit.
type Tx interface {
	Reader

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProductPrices(ctx context.Context, id int64, purchase, sale, sale2 decimal.Decimal) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateFlavor(ctx context.Context, flavor domain.Flavor) (*domain.Flavor, error)
	DeleteFlavor(ctx context.Context, id int64) error
	SetFlavorQuantity(ctx context.Context, id int64, qty int) (*domain.Flavor, error)

	// Reserve decrements stock only if qty <= current quantity, atomically.
	// It returns ErrInsufficientStock without touching the row otherwise.
	Reserve(ctx context.Context, flavorID int64, qty int) (*domain.Flavor, error)
	// Release increments stock unconditionally.
	Release(ctx context.Context, flavorID int64, qty int) (*domain.Flavor, error)

	CreateCustomer(ctx context.Context, name string, date time.Time) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error

	// AddIncome adds delta to the row for weekStart, creating it if needed,
	// and makes it the only row flagged current.
	AddIncome(ctx context.Context, weekStart time.Time, delta decimal.Decimal) (*domain.WorkerIncome, error)
}

type Repository interface {
	Reader
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

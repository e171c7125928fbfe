package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	products  map[int64]domain.Product
	flavors   map[int64]domain.Flavor
	customers map[int64]domain.Customer
	sales     map[int64]domain.Sale
	income    map[int64]domain.WorkerIncome

	nextProductID  int64
	nextFlavorID   int64
	nextCustomerID int64
	nextSaleID     int64
	nextIncomeID   int64
}

func New() *Store {
	return &Store{st: &state{
		products:  make(map[int64]domain.Product),
		flavors:   make(map[int64]domain.Flavor),
		customers: make(map[int64]domain.Customer),
		sales:     make(map[int64]domain.Sale),
		income:    make(map[int64]domain.WorkerIncome),
	}}
}

// NewSeeded returns a store with a small demo catalog for local runs.
func NewSeeded() *Store {
	s := New()
	seed := []struct {
		name                  string
		purchase, sale, sale2 string
		flavors               map[string]int
	}{
		{"Elf Bar 5000", "300", "500", "450", map[string]int{"Арбуз": 10, "Манго": 5, "Мята": 0}},
		{"HQD Cuvie", "250", "400", "350", map[string]int{"Кола": 8, "Виноград": 3}},
	}
	for _, p := range seed {
		product, _ := s.st.CreateProduct(context.Background(), domain.Product{
			Name:          p.name,
			PurchasePrice: decimal.RequireFromString(p.purchase),
			SalePrice:     decimal.RequireFromString(p.sale),
			SalePrice2:    decimal.RequireFromString(p.sale2),
		})
		names := slices.Sorted(maps.Keys(p.flavors))
		for _, name := range names {
			_, _ = s.st.CreateFlavor(context.Background(), domain.Flavor{ProductID: product.ID, Name: name, Quantity: p.flavors[name]})
		}
	}
	log.Warn().Str("component", "memory-store").Msg("using seeded demo catalog; data is lost on restart")
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			panic(r)
		}
	}()
	if err = fn(s.st); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListProducts(ctx)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetProduct(ctx, id)
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.FindProductByName(ctx, name)
}

func (s *Store) ListFlavors(ctx context.Context, productID int64) ([]domain.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListFlavors(ctx, productID)
}

func (s *Store) GetFlavor(ctx context.Context, id int64) (*domain.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetFlavor(ctx, id)
}

func (s *Store) FindFlavor(ctx context.Context, productID int64, normalizedName string) (*domain.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.FindFlavor(ctx, productID, normalizedName)
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetCustomer(ctx, id)
}

func (s *Store) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.FindCustomerByName(ctx, name)
}

func (s *Store) ListCustomersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListCustomersBetween(ctx, from, to)
}

func (s *Store) MaxCustomerID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.MaxCustomerID(ctx)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetSale(ctx, id)
}

func (s *Store) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListSalesByCustomer(ctx, customerID)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListSalesBetween(ctx, from, to)
}

func (s *Store) ListDefects(ctx context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListDefects(ctx)
}

func (s *Store) GetIncome(ctx context.Context, weekStart time.Time) (*domain.WorkerIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.GetIncome(ctx, weekStart)
}

func (s *Store) ListIncome(ctx context.Context) ([]domain.WorkerIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ListIncome(ctx)
}

func (st *state) clone() *state {
	out := *st
	out.products = maps.Clone(st.products)
	out.flavors = maps.Clone(st.flavors)
	out.customers = maps.Clone(st.customers)
	out.sales = maps.Clone(st.sales)
	out.income = maps.Clone(st.income)
	return &out
}

func (st *state) ListProducts(_ context.Context) ([]domain.Product, error) {
	out := slices.Collect(maps.Values(st.products))
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

func (st *state) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (st *state) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	key := store.NormalizeName(name)
	for _, p := range st.products {
		if store.NormalizeName(p.Name) == key {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) ListFlavors(_ context.Context, productID int64) ([]domain.Flavor, error) {
	out := make([]domain.Flavor, 0)
	for _, f := range st.flavors {
		if f.ProductID == productID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b domain.Flavor) int { return int(a.ID - b.ID) })
	return out, nil
}

func (st *state) GetFlavor(_ context.Context, id int64) (*domain.Flavor, error) {
	f, ok := st.flavors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

func (st *state) FindFlavor(_ context.Context, productID int64, normalizedName string) (*domain.Flavor, error) {
	for _, f := range st.flavors {
		if f.ProductID == productID && store.NormalizeName(f.Name) == normalizedName {
			return &f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	c, ok := st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (st *state) FindCustomerByName(_ context.Context, name string) (*domain.Customer, error) {
	for _, c := range st.customers {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) ListCustomersBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Customer, error) {
	out := make([]domain.Customer, 0)
	for _, c := range st.customers {
		if !c.Date.Before(from) && c.Date.Before(to) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Customer) int { return int(a.ID - b.ID) })
	return out, nil
}

func (st *state) MaxCustomerID(_ context.Context) (int64, error) {
	var max int64
	for id := range st.customers {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (st *state) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	sale, ok := st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (st *state) ListSalesByCustomer(_ context.Context, customerID int64) ([]domain.Sale, error) {
	return st.filterSales(func(sale domain.Sale) bool {
		return sale.CustomerID != nil && *sale.CustomerID == customerID
	}), nil
}

func (st *state) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return st.filterSales(func(sale domain.Sale) bool {
		return !sale.Date.Before(from) && sale.Date.Before(to)
	}), nil
}

func (st *state) ListDefects(_ context.Context) ([]domain.Sale, error) {
	return st.filterSales(domain.Sale.IsDefect), nil
}

func (st *state) filterSales(keep func(domain.Sale) bool) []domain.Sale {
	out := make([]domain.Sale, 0)
	for _, sale := range st.sales {
		if keep(sale) {
			out = append(out, sale)
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

func (st *state) GetIncome(_ context.Context, weekStart time.Time) (*domain.WorkerIncome, error) {
	row, ok := st.income[weekStart.Unix()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (st *state) ListIncome(_ context.Context) ([]domain.WorkerIncome, error) {
	out := slices.Collect(maps.Values(st.income))
	slices.SortFunc(out, func(a, b domain.WorkerIncome) int { return b.WeekStart.Compare(a.WeekStart) })
	return out, nil
}

func (st *state) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	key := store.NormalizeName(product.Name)
	for _, existing := range st.products {
		if store.NormalizeName(existing.Name) == key {
			return nil, store.ErrDuplicate
		}
	}
	st.nextProductID++
	product.ID = st.nextProductID
	st.products[product.ID] = product
	return &product, nil
}

func (st *state) UpdateProductPrices(_ context.Context, id int64, purchase, sale, sale2 decimal.Decimal) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.PurchasePrice = purchase
	p.SalePrice = sale
	p.SalePrice2 = sale2
	st.products[id] = p
	return &p, nil
}

func (st *state) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := st.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.products, id)
	for flavorID, f := range st.flavors {
		if f.ProductID == id {
			delete(st.flavors, flavorID)
		}
	}
	for saleID, sale := range st.sales {
		if sale.ProductID != nil && *sale.ProductID == id {
			sale.ProductID = nil
			sale.FlavorID = nil
			st.sales[saleID] = sale
		}
	}
	return nil
}

func (st *state) CreateFlavor(_ context.Context, flavor domain.Flavor) (*domain.Flavor, error) {
	if _, ok := st.products[flavor.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	if flavor.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	key := store.NormalizeName(flavor.Name)
	for _, existing := range st.flavors {
		if existing.ProductID == flavor.ProductID && store.NormalizeName(existing.Name) == key {
			return nil, store.ErrDuplicate
		}
	}
	st.nextFlavorID++
	flavor.ID = st.nextFlavorID
	st.flavors[flavor.ID] = flavor
	return &flavor, nil
}

func (st *state) DeleteFlavor(_ context.Context, id int64) error {
	if _, ok := st.flavors[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.flavors, id)
	for saleID, sale := range st.sales {
		if sale.FlavorID != nil && *sale.FlavorID == id {
			sale.FlavorID = nil
			st.sales[saleID] = sale
		}
	}
	return nil
}

func (st *state) SetFlavorQuantity(_ context.Context, id int64, qty int) (*domain.Flavor, error) {
	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	f, ok := st.flavors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.Quantity = qty
	st.flavors[id] = f
	return &f, nil
}

func (st *state) Reserve(_ context.Context, flavorID int64, qty int) (*domain.Flavor, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	f, ok := st.flavors[flavorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if qty > f.Quantity {
		return nil, store.ErrInsufficientStock
	}
	f.Quantity -= qty
	st.flavors[flavorID] = f
	return &f, nil
}

func (st *state) Release(_ context.Context, flavorID int64, qty int) (*domain.Flavor, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	f, ok := st.flavors[flavorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.Quantity += qty
	st.flavors[flavorID] = f
	return &f, nil
}

func (st *state) CreateCustomer(_ context.Context, name string, date time.Time) (*domain.Customer, error) {
	for _, existing := range st.customers {
		if existing.Name == name {
			return nil, store.ErrConflict
		}
	}
	st.nextCustomerID++
	c := domain.Customer{ID: st.nextCustomerID, Name: name, Date: date}
	st.customers[c.ID] = c
	return &c, nil
}

func (st *state) DeleteCustomer(_ context.Context, id int64) error {
	if _, ok := st.customers[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range st.sales {
		if sale.CustomerID != nil && *sale.CustomerID == id {
			return store.ErrInvalidInput
		}
	}
	delete(st.customers, id)
	return nil
}

func (st *state) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if sale.CustomerID != nil {
		if _, ok := st.customers[*sale.CustomerID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	st.nextSaleID++
	sale.ID = st.nextSaleID
	st.sales[sale.ID] = sale
	return &sale, nil
}

func (st *state) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if _, ok := st.sales[sale.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if sale.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	st.sales[sale.ID] = sale
	return &sale, nil
}

func (st *state) DeleteSale(_ context.Context, id int64) error {
	if _, ok := st.sales[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.sales, id)
	return nil
}

func (st *state) AddIncome(_ context.Context, weekStart time.Time, delta decimal.Decimal) (*domain.WorkerIncome, error) {
	key := weekStart.Unix()
	row, ok := st.income[key]
	if !ok {
		st.nextIncomeID++
		row = domain.WorkerIncome{ID: st.nextIncomeID, WeekStart: weekStart, Income: decimal.Zero}
	}
	row.Income = row.Income.Add(delta)
	row.IsCurrent = true
	for k, other := range st.income {
		if k != key && other.IsCurrent {
			other.IsCurrent = false
			st.income[k] = other
		}
	}
	st.income[key] = row
	return &row, nil
}

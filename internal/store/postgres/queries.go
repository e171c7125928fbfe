package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

const (
	productColumns = `id, name, purchase_price, sale_price, sale_price_2`
	flavorColumns  = `id, product_id, name, quantity`
	saleColumns    = `id, kind, product_id, flavor_id, customer_id, product_name, flavor_name, quantity, purchase_price, sale_price, sold_at`
	incomeColumns  = `id, week_start, income, is_current`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.PurchasePrice, &p.SalePrice, &p.SalePrice2); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func scanFlavor(row scanner) (*domain.Flavor, error) {
	var f domain.Flavor
	if err := row.Scan(&f.ID, &f.ProductID, &f.Name, &f.Quantity); err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func scanCustomer(row scanner) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Date); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func scanSale(row scanner) (*domain.Sale, error) {
	var sale domain.Sale
	var productID, flavorID, customerID sql.NullInt64
	if err := row.Scan(
		&sale.ID, &sale.Kind, &productID, &flavorID, &customerID,
		&sale.ProductName, &sale.FlavorName, &sale.Quantity,
		&sale.PurchasePrice, &sale.SalePrice, &sale.Date,
	); err != nil {
		return nil, mapError(err)
	}
	sale.ProductID = nullableID(productID)
	sale.FlavorID = nullableID(flavorID)
	sale.CustomerID = nullableID(customerID)
	return &sale, nil
}

func scanIncome(row scanner) (*domain.WorkerIncome, error) {
	var w domain.WorkerIncome
	if err := row.Scan(&w.ID, &w.WeekStart, &w.Income, &w.IsCurrent); err != nil {
		return nil, mapError(err)
	}
	return &w, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func collect[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0, 16)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queries) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProduct)
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(q.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (q *queries) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return scanProduct(q.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE name_key = $1`, store.NormalizeName(name)))
}

func (q *queries) ListFlavors(ctx context.Context, productID int64) ([]domain.Flavor, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+flavorColumns+` FROM flavors WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFlavor)
}

func (q *queries) GetFlavor(ctx context.Context, id int64) (*domain.Flavor, error) {
	return scanFlavor(q.q.QueryRowContext(ctx, `SELECT `+flavorColumns+` FROM flavors WHERE id = $1`, id))
}

func (q *queries) FindFlavor(ctx context.Context, productID int64, normalizedName string) (*domain.Flavor, error) {
	return scanFlavor(q.q.QueryRowContext(ctx, `
		SELECT `+flavorColumns+`
		FROM flavors
		WHERE product_id = $1 AND name_key = $2
	`, productID, normalizedName))
}

func (q *queries) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return scanCustomer(q.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM customers WHERE id = $1`, id))
}

func (q *queries) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	return scanCustomer(q.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM customers WHERE name = $1`, name))
}

func (q *queries) ListCustomersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Customer, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM customers
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCustomer)
}

func (q *queries) MaxCustomerID(ctx context.Context) (int64, error) {
	var max int64
	if err := q.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM customers`).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func (q *queries) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return scanSale(q.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (q *queries) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE customer_id = $1
		ORDER BY sold_at, id
	`, customerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func (q *queries) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY sold_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func (q *queries) ListDefects(ctx context.Context) ([]domain.Sale, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE kind = 'defect'
		ORDER BY sold_at, id
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func (q *queries) GetIncome(ctx context.Context, weekStart time.Time) (*domain.WorkerIncome, error) {
	return scanIncome(q.q.QueryRowContext(ctx, `SELECT `+incomeColumns+` FROM worker_income WHERE week_start = $1`, weekStart))
}

func (q *queries) ListIncome(ctx context.Context) ([]domain.WorkerIncome, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+incomeColumns+` FROM worker_income ORDER BY week_start DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanIncome)
}

func (q *queries) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return scanProduct(q.q.QueryRowContext(ctx, `
		INSERT INTO products (name, name_key, purchase_price, sale_price, sale_price_2)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		product.Name, store.NormalizeName(product.Name), product.PurchasePrice, product.SalePrice, product.SalePrice2,
	))
}

func (q *queries) UpdateProductPrices(ctx context.Context, id int64, purchase, sale, sale2 decimal.Decimal) (*domain.Product, error) {
	return scanProduct(q.q.QueryRowContext(ctx, `
		UPDATE products
		SET purchase_price = $2, sale_price = $3, sale_price_2 = $4
		WHERE id = $1
		RETURNING `+productColumns,
		id, purchase, sale, sale2,
	))
}

func (q *queries) DeleteProduct(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func (q *queries) CreateFlavor(ctx context.Context, flavor domain.Flavor) (*domain.Flavor, error) {
	return scanFlavor(q.q.QueryRowContext(ctx, `
		INSERT INTO flavors (product_id, name, name_key, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING `+flavorColumns,
		flavor.ProductID, flavor.Name, store.NormalizeName(flavor.Name), flavor.Quantity,
	))
}

func (q *queries) DeleteFlavor(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, `DELETE FROM flavors WHERE id = $1`, id)
}

func (q *queries) SetFlavorQuantity(ctx context.Context, id int64, qty int) (*domain.Flavor, error) {
	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	return scanFlavor(q.q.QueryRowContext(ctx, `
		UPDATE flavors SET quantity = $2 WHERE id = $1
		RETURNING `+flavorColumns,
		id, qty,
	))
}

func (q *queries) Reserve(ctx context.Context, flavorID int64, qty int) (*domain.Flavor, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	flavor, err := scanFlavor(q.q.QueryRowContext(ctx, `
		UPDATE flavors
		SET quantity = quantity - $2
		WHERE id = $1 AND quantity >= $2
		RETURNING `+flavorColumns,
		flavorID, qty,
	))
	if errors.Is(err, store.ErrNotFound) {
		if _, lookupErr := q.GetFlavor(ctx, flavorID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, store.ErrInsufficientStock
	}
	return flavor, err
}

func (q *queries) Release(ctx context.Context, flavorID int64, qty int) (*domain.Flavor, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	return scanFlavor(q.q.QueryRowContext(ctx, `
		UPDATE flavors
		SET quantity = quantity + $2
		WHERE id = $1
		RETURNING `+flavorColumns,
		flavorID, qty,
	))
}

func (q *queries) CreateCustomer(ctx context.Context, name string, date time.Time) (*domain.Customer, error) {
	customer, err := scanCustomer(q.q.QueryRowContext(ctx, `
		INSERT INTO customers (name, created_at)
		VALUES ($1, $2)
		RETURNING id, name, created_at
	`, name, date))
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent transaction took the name after our lookup.
		return nil, store.ErrConflict
	}
	return customer, err
}

func (q *queries) DeleteCustomer(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, `DELETE FROM customers WHERE id = $1`, id)
}

func (q *queries) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return scanSale(q.q.QueryRowContext(ctx, `
		INSERT INTO sales (
			kind, product_id, flavor_id, customer_id, product_name, flavor_name,
			quantity, purchase_price, sale_price, sold_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+saleColumns,
		sale.Kind, sale.ProductID, sale.FlavorID, sale.CustomerID, sale.ProductName, sale.FlavorName,
		sale.Quantity, sale.PurchasePrice, sale.SalePrice, sale.Date,
	))
}

func (q *queries) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return scanSale(q.q.QueryRowContext(ctx, `
		UPDATE sales
		SET product_id = $2, flavor_id = $3, product_name = $4, flavor_name = $5,
			quantity = $6, purchase_price = $7, sale_price = $8
		WHERE id = $1
		RETURNING `+saleColumns,
		sale.ID, sale.ProductID, sale.FlavorID, sale.ProductName, sale.FlavorName,
		sale.Quantity, sale.PurchasePrice, sale.SalePrice,
	))
}

func (q *queries) DeleteSale(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, `DELETE FROM sales WHERE id = $1`, id)
}

func (q *queries) AddIncome(ctx context.Context, weekStart time.Time, delta decimal.Decimal) (*domain.WorkerIncome, error) {
	// Clear the old flag first; the partial unique index allows one current row.
	if _, err := q.q.ExecContext(ctx, `
		UPDATE worker_income SET is_current = false
		WHERE is_current AND week_start <> $1
	`, weekStart); err != nil {
		return nil, mapError(err)
	}
	return scanIncome(q.q.QueryRowContext(ctx, `
		INSERT INTO worker_income (week_start, income, is_current)
		VALUES ($1, $2, true)
		ON CONFLICT (week_start)
		DO UPDATE SET income = worker_income.income + EXCLUDED.income, is_current = true
		RETURNING `+incomeColumns,
		weekStart, delta,
	))
}

func (q *queries) deleteByID(ctx context.Context, query string, id int64) error {
	res, err := q.q.ExecContext(ctx, query, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

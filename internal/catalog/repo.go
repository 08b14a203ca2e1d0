package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bagaspry/go-shop-orders/internal/domain"
	"github.com/bagaspry/go-shop-orders/internal/postgres"
)

// Repo owns reads and conditional stock mutations against the catalog
// tables (products, product_sizes, stores, cart_items).
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) GetProductAndStock(ctx context.Context, productID, sizeID string) (domain.ProductStock, error) {
	if uuid.Validate(productID) != nil || uuid.Validate(sizeID) != nil {
		return domain.ProductStock{}, domain.ErrInvalidID
	}

	const query = `
SELECT p.id, s.id, p.price_cents, p.discount_cents, p.discount_starts_at, p.discount_ends_at, s.quantity
FROM products p
JOIN product_sizes s ON s.product_id = p.id
WHERE p.id = $1 AND s.id = $2`

	var ps domain.ProductStock
	err := postgres.QueryRow(ctx, r.pool, query, productID, sizeID).Scan(
		&ps.ProductID, &ps.SizeID, &ps.PriceCents, &ps.DiscountCents,
		&ps.DiscountStartsAt, &ps.DiscountEndsAt, &ps.Quantity,
	)
	if err == nil {
		return ps, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductStock{}, fmt.Errorf("get product and stock: %w", err)
	}

	// Distinguish an unknown product from an unknown size.
	var exists bool
	if err := postgres.QueryRow(ctx, r.pool,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
	).Scan(&exists); err != nil {
		return domain.ProductStock{}, fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return domain.ProductStock{}, domain.ErrProductNotFound
	}
	return domain.ProductStock{}, domain.ErrSizeNotFound
}

// DecrementStock takes qty units off the size's stock in one conditional
// statement, so concurrent orders can never drive the quantity negative.
// It returns the remaining quantity after the decrement.
func (r *Repo) DecrementStock(ctx context.Context, productID, sizeID string, qty int) (int, error) {
	const stmt = `
UPDATE product_sizes
SET quantity = quantity - $3, updated_at = NOW()
WHERE product_id = $1 AND id = $2 AND quantity >= $3
RETURNING quantity`

	var remaining int
	err := postgres.QueryRow(ctx, r.pool, stmt, productID, sizeID, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientStock
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, nil
}

func (r *Repo) IncrementStock(ctx context.Context, productID, sizeID string, qty int) error {
	const stmt = `
UPDATE product_sizes
SET quantity = quantity + $3, updated_at = NOW()
WHERE product_id = $1 AND id = $2`

	ct, err := postgres.Exec(ctx, r.pool, stmt, productID, sizeID, qty)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSizeNotFound
	}
	return nil
}

// AlertInfo gathers everything a depletion notification needs: the
// owning seller, display names, and the buyers currently holding the
// product/size in their cart.
func (r *Repo) AlertInfo(ctx context.Context, productID, sizeID string) (domain.StockAlert, error) {
	const query = `
SELECT st.seller_id, st.name, p.name, s.name
FROM products p
JOIN stores st ON st.id = p.store_id
JOIN product_sizes s ON s.product_id = p.id
WHERE p.id = $1 AND s.id = $2`

	alert := domain.StockAlert{ProductID: productID, SizeID: sizeID}
	err := postgres.QueryRow(ctx, r.pool, query, productID, sizeID).Scan(
		&alert.SellerID, &alert.StoreName, &alert.ProductName, &alert.SizeName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockAlert{}, domain.ErrProductNotFound
		}
		return domain.StockAlert{}, fmt.Errorf("alert info: %w", err)
	}

	rows, err := postgres.Query(ctx, r.pool,
		`SELECT user_id FROM cart_items WHERE product_id = $1 AND size_id = $2`, productID, sizeID)
	if err != nil {
		return domain.StockAlert{}, fmt.Errorf("alert cart holders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return domain.StockAlert{}, fmt.Errorf("alert cart holders: %w", err)
		}
		alert.CartUserIDs = append(alert.CartUserIDs, userID)
	}
	return alert, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := postgres.Query(ctx, r.pool, `
SELECT id, store_id, name, price_cents, created_at, updated_at
FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

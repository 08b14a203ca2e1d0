package orders

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

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Insert(ctx context.Context, o domain.Order) error {
	const orderStmt = `
INSERT INTO orders (id, buyer_id, recipient_name, phone, address, status, total_cents, used_points, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := postgres.Exec(ctx, r.pool, orderStmt,
		o.ID, o.BuyerID, o.RecipientName, o.Phone, o.Address,
		o.Status, o.TotalCents, o.UsedPoints, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (id, order_id, product_id, size_id, price_cents, qty, reviewed)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, it := range o.Items {
		if _, err := postgres.Exec(ctx, r.pool, itemStmt,
			it.ID, o.ID, it.ProductID, it.SizeID, it.PriceCents, it.Qty, it.Reviewed,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, orderID string) (domain.Order, error) {
	if uuid.Validate(orderID) != nil {
		return domain.Order{}, domain.ErrInvalidID
	}

	const query = `
SELECT id, buyer_id, recipient_name, phone, address, status, total_cents, used_points, created_at, updated_at
FROM orders WHERE id = $1`

	var o domain.Order
	err := postgres.QueryRow(ctx, r.pool, query, orderID).Scan(
		&o.ID, &o.BuyerID, &o.RecipientName, &o.Phone, &o.Address,
		&o.Status, &o.TotalCents, &o.UsedPoints, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// UpdateStatus moves an order from an expected state to a new one. The
// affected-row check makes concurrent cancels lose cleanly instead of
// repeating the compensation.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) error {
	ct, err := postgres.Exec(ctx, r.pool,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		orderID, from, to,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotCancellable
	}
	return nil
}

// List returns one page of the buyer's orders, newest first, optionally
// filtered by status, together with the total row count for the filter.
func (r *Repo) List(ctx context.Context, buyerID string, status *domain.Status, page, limit int) ([]domain.Order, int, error) {
	if uuid.Validate(buyerID) != nil {
		return nil, 0, domain.ErrInvalidID
	}

	countQuery := `SELECT COUNT(*) FROM orders WHERE buyer_id = $1`
	listQuery := `
SELECT id, buyer_id, recipient_name, phone, address, status, total_cents, used_points, created_at, updated_at
FROM orders WHERE buyer_id = $1`
	args := []any{buyerID}
	if status != nil {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, *status)
	}
	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	var total int
	if err := postgres.QueryRow(ctx, r.pool, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := postgres.Query(ctx, r.pool, listQuery, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	ids := make([]string, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.BuyerID, &o.RecipientName, &o.Phone, &o.Address,
			&o.Status, &o.TotalCents, &o.UsedPoints, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("list orders: %w", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, total, nil
}

func (r *Repo) itemsFor(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := postgres.Query(ctx, r.pool, `
SELECT id, order_id, product_id, size_id, price_cents, qty, reviewed
FROM order_items WHERE order_id = ANY($1)
ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderItem)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SizeID, &it.PriceCents, &it.Qty, &it.Reviewed); err != nil {
			return nil, fmt.Errorf("load order items: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

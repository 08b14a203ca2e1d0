package ledger

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

// Repo is the point ledger over the users table. Debits are conditional
// on the balance so they can never push it negative, mirroring the stock
// discipline in the catalog.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Balance returns the available points for an enabled buyer account. A
// missing or disabled account surfaces as ErrBuyerNotFound.
func (r *Repo) Balance(ctx context.Context, userID string) (int, error) {
	if uuid.Validate(userID) != nil {
		return 0, domain.ErrInvalidID
	}

	var points int
	err := postgres.QueryRow(ctx, r.pool,
		`SELECT points FROM users WHERE id = $1 AND enabled`, userID,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrBuyerNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return points, nil
}

func (r *Repo) Debit(ctx context.Context, userID string, amount int) error {
	if amount == 0 {
		return nil
	}
	ct, err := postgres.Exec(ctx, r.pool,
		`UPDATE users SET points = points - $2 WHERE id = $1 AND points >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("debit points: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInsufficientPoints
	}
	return nil
}

func (r *Repo) Credit(ctx context.Context, userID string, amount int) error {
	if amount == 0 {
		return nil
	}
	ct, err := postgres.Exec(ctx, r.pool,
		`UPDATE users SET points = points + $2 WHERE id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrBuyerNotFound
	}
	return nil
}

package orders

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bagaspry/go-shop-orders/internal/clock"
	"github.com/bagaspry/go-shop-orders/internal/domain"
)

// CatalogStore is the slice of the catalog the order workflow needs:
// price/stock reads plus atomic conditional stock mutations.
type CatalogStore interface {
	GetProductAndStock(ctx context.Context, productID, sizeID string) (domain.ProductStock, error)
	DecrementStock(ctx context.Context, productID, sizeID string, qty int) (remaining int, err error)
	IncrementStock(ctx context.Context, productID, sizeID string, qty int) error
	AlertInfo(ctx context.Context, productID, sizeID string) (domain.StockAlert, error)
}

type AccountLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int) error
	Credit(ctx context.Context, userID string, amount int) error
}

type OrderRepository interface {
	Insert(ctx context.Context, o domain.Order) error
	GetByID(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) error
	List(ctx context.Context, buyerID string, status *domain.Status, page, limit int) ([]domain.Order, int, error)
}

// NotificationSink delivers stock-depletion alerts. Delivery is best
// effort; the workflow logs failures and moves on.
type NotificationSink interface {
	NotifyOutOfStock(ctx context.Context, alert domain.StockAlert) error
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	tx      TxRunner
	catalog CatalogStore
	ledger  AccountLedger
	repo    OrderRepository
	sink    NotificationSink
	clock   clock.Clock
	log     *slog.Logger
}

func NewService(tx TxRunner, catalog CatalogStore, ledger AccountLedger, repo OrderRepository, sink NotificationSink, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		tx:      tx,
		catalog: catalog,
		ledger:  ledger,
		repo:    repo,
		sink:    sink,
		clock:   clk,
		log:     log,
	}
}

type LineItemInput struct {
	ProductID string
	SizeID    string
	Qty       int
}

type CreateOrderInput struct {
	RecipientName string
	Phone         string
	Address       string
	Items         []LineItemInput
	UsePoints     int
}

// CreateOrder prices the requested items against the current catalog,
// validates the point redemption, then commits stock decrements, the
// point debit and the order rows as one transaction. Nothing persists if
// any step fails. Lines whose stock reaches zero trigger a best-effort
// depletion alert after commit.
func (s *Service) CreateOrder(ctx context.Context, buyerID string, in CreateOrderInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, domain.ErrNoItems
	}
	for _, it := range in.Items {
		if it.Qty < 1 {
			return domain.Order{}, domain.ErrInvalidQuantity
		}
	}
	if in.UsePoints < 0 {
		return domain.Order{}, domain.ErrInvalidPoints
	}

	now := s.clock.Now()

	// Snapshot the effective unit price now; the stored price never
	// changes again, whatever happens to the catalog later.
	items := make([]domain.OrderItem, 0, len(in.Items))
	subtotal := 0
	for _, it := range in.Items {
		ps, err := s.catalog.GetProductAndStock(ctx, it.ProductID, it.SizeID)
		if err != nil {
			return domain.Order{}, err
		}
		price := ps.EffectivePriceCents(now)
		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  it.ProductID,
			SizeID:     it.SizeID,
			PriceCents: price,
			Qty:        it.Qty,
		})
		subtotal += price * it.Qty
	}

	balance, err := s.ledger.Balance(ctx, buyerID)
	if err != nil {
		return domain.Order{}, err
	}
	if in.UsePoints > balance || in.UsePoints > subtotal {
		return domain.Order{}, domain.ErrInsufficientPoints
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		RecipientName: in.RecipientName,
		Phone:         in.Phone,
		Address:       in.Address,
		Status:        domain.StatusAwaitingPayment,
		TotalCents:    subtotal - in.UsePoints,
		UsedPoints:    in.UsePoints,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	var depleted []domain.OrderItem
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		depleted = depleted[:0]
		for _, it := range order.Items {
			remaining, err := s.catalog.DecrementStock(txCtx, it.ProductID, it.SizeID, it.Qty)
			if err != nil {
				return err
			}
			if remaining == 0 {
				depleted = append(depleted, it)
			}
		}
		if err := s.ledger.Debit(txCtx, buyerID, in.UsePoints); err != nil {
			return err
		}
		return s.repo.Insert(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.alertDepleted(ctx, depleted)
	return order, nil
}

// CancelOrder reverses a placed order: stock back, points back, status
// to CANCELLED. Only the owning buyer may cancel, and only while the
// order is still awaiting payment.
func (s *Service) CancelOrder(ctx context.Context, buyerID, orderID string) (domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.BuyerID != buyerID {
		return domain.Order{}, domain.ErrForbidden
	}
	if !order.Status.Cancellable() {
		return domain.Order{}, domain.ErrOrderNotCancellable
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		// The conditional status flip goes first: it takes the row lock
		// and fails a second concurrent cancel before any compensation.
		if err := s.repo.UpdateStatus(txCtx, orderID, domain.StatusAwaitingPayment, domain.StatusCancelled); err != nil {
			return err
		}
		for _, it := range order.Items {
			if err := s.catalog.IncrementStock(txCtx, it.ProductID, it.SizeID, it.Qty); err != nil {
				return err
			}
		}
		return s.ledger.Credit(txCtx, buyerID, order.UsedPoints)
	})
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.StatusCancelled
	return order, nil
}

// GetOrder returns a single order, restricted to its owner.
func (s *Service) GetOrder(ctx context.Context, buyerID, orderID string) (domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.BuyerID != buyerID {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

type ListOrdersInput struct {
	Status *domain.Status
	Page   int
	Limit  int
}

type OrderPage struct {
	Orders []domain.Order
	Total  int
	Page   int
	Limit  int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) ListOrders(ctx context.Context, buyerID string, in ListOrdersInput) (OrderPage, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > maxPageSize {
		in.Limit = defaultPageSize
	}
	orders, total, err := s.repo.List(ctx, buyerID, in.Status, in.Page, in.Limit)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Orders: orders, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

func (s *Service) alertDepleted(ctx context.Context, items []domain.OrderItem) {
	for _, it := range items {
		alert, err := s.catalog.AlertInfo(ctx, it.ProductID, it.SizeID)
		if err != nil {
			s.log.Warn("stock alert lookup failed",
				"product_id", it.ProductID, "size_id", it.SizeID, "err", err)
			continue
		}
		if err := s.sink.NotifyOutOfStock(ctx, alert); err != nil {
			s.log.Warn("stock alert delivery failed",
				"product_id", it.ProductID, "size_id", it.SizeID, "err", err)
		}
	}
}

package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagaspry/go-shop-orders/internal/clock"
	"github.com/bagaspry/go-shop-orders/internal/domain"
)

type stockKey struct {
	productID string
	sizeID    string
}

// fakeStore backs all workflow collaborators with in-memory state. Its
// transaction runner serializes units of work and restores a snapshot
// on error, mirroring the rollback guarantee of the real database.
type fakeStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	stock    map[stockKey]domain.ProductStock
	alerts   map[stockKey]domain.StockAlert
	balances map[string]int
	orders   map[string]domain.Order

	failInsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stock:    make(map[stockKey]domain.ProductStock),
		alerts:   make(map[stockKey]domain.StockAlert),
		balances: make(map[string]int),
		orders:   make(map[string]domain.Order),
	}
}

func (f *fakeStore) addProduct(productID, sizeID string, ps domain.ProductStock) {
	ps.ProductID = productID
	ps.SizeID = sizeID
	f.stock[stockKey{productID, sizeID}] = ps
}

// CatalogStore

func (f *fakeStore) GetProductAndStock(_ context.Context, productID, sizeID string) (domain.ProductStock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ps, ok := f.stock[stockKey{productID, sizeID}]; ok {
		return ps, nil
	}
	for k := range f.stock {
		if k.productID == productID {
			return domain.ProductStock{}, domain.ErrSizeNotFound
		}
	}
	return domain.ProductStock{}, domain.ErrProductNotFound
}

func (f *fakeStore) DecrementStock(_ context.Context, productID, sizeID string, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := stockKey{productID, sizeID}
	ps, ok := f.stock[k]
	if !ok || ps.Quantity < qty {
		return 0, domain.ErrInsufficientStock
	}
	ps.Quantity -= qty
	f.stock[k] = ps
	return ps.Quantity, nil
}

func (f *fakeStore) IncrementStock(_ context.Context, productID, sizeID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := stockKey{productID, sizeID}
	ps, ok := f.stock[k]
	if !ok {
		return domain.ErrSizeNotFound
	}
	ps.Quantity += qty
	f.stock[k] = ps
	return nil
}

func (f *fakeStore) AlertInfo(_ context.Context, productID, sizeID string) (domain.StockAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := stockKey{productID, sizeID}
	if a, ok := f.alerts[k]; ok {
		return a, nil
	}
	if _, ok := f.stock[k]; !ok {
		return domain.StockAlert{}, domain.ErrProductNotFound
	}
	return domain.StockAlert{ProductID: productID, SizeID: sizeID}, nil
}

// AccountLedger

func (f *fakeStore) Balance(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[userID]
	if !ok {
		return 0, domain.ErrBuyerNotFound
	}
	return bal, nil
}

func (f *fakeStore) Debit(_ context.Context, userID string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID] < amount {
		return domain.ErrInsufficientPoints
	}
	f.balances[userID] -= amount
	return nil
}

func (f *fakeStore) Credit(_ context.Context, userID string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[userID]; !ok {
		return domain.ErrBuyerNotFound
	}
	f.balances[userID] += amount
	return nil
}

// OrderRepository

func (f *fakeStore) Insert(_ context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return errors.New("insert failed")
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, orderID string, from, to domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return domain.ErrOrderNotCancellable
	}
	o.Status = to
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) List(_ context.Context, buyerID string, status *domain.Status, page, limit int) ([]domain.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Order
	for _, o := range f.orders {
		if o.BuyerID != buyerID {
			continue
		}
		if status != nil && o.Status != *status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// TxRunner

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snapStock := make(map[stockKey]domain.ProductStock, len(f.stock))
	for k, v := range f.stock {
		snapStock[k] = v
	}
	snapBalances := make(map[string]int, len(f.balances))
	for k, v := range f.balances {
		snapBalances[k] = v
	}
	snapOrders := make(map[string]domain.Order, len(f.orders))
	for k, v := range f.orders {
		snapOrders[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.stock = snapStock
		f.balances = snapBalances
		f.orders = snapOrders
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
	err    error
}

func (s *fakeSink) NotifyOutOfStock(_ context.Context, alert domain.StockAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore, sink *fakeSink) *Service {
	return NewService(store, store, store, store, sink, clock.NewFixed(testNow), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedBasic(store *fakeStore) {
	store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 1000, Quantity: 10})
	store.balances["buyer"] = 500
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	input := func(qty, points int) CreateOrderInput {
		return CreateOrderInput{
			RecipientName: "Jae Kim",
			Phone:         "010-1234-5678",
			Address:       "1 Main St",
			Items:         []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: qty}},
			UsePoints:     points,
		}
	}

	t.Run("places order and decrements stock and points", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})

		order, err := svc.CreateOrder(context.Background(), "buyer", input(3, 200))
		require.NoError(t, err)

		assert.Equal(t, domain.StatusAwaitingPayment, order.Status)
		assert.Equal(t, 3000-200, order.TotalCents)
		assert.Equal(t, 200, order.UsedPoints)
		require.Len(t, order.Items, 1)
		assert.Equal(t, 1000, order.Items[0].PriceCents)
		assert.Equal(t, order.ID, order.Items[0].OrderID)

		assert.Equal(t, 7, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 300, store.balances["buyer"])
		_, ok := store.orders[order.ID]
		assert.True(t, ok)
	})

	t.Run("uses discounted price inside the window and freezes it", func(t *testing.T) {
		store := newFakeStore()
		start := testNow.Add(-time.Hour)
		end := testNow.Add(time.Hour)
		store.addProduct("p1", "s1", domain.ProductStock{
			PriceCents:       1000,
			DiscountCents:    800,
			DiscountStartsAt: &start,
			DiscountEndsAt:   &end,
			Quantity:         10,
		})
		store.balances["buyer"] = 0
		svc := newTestService(store, &fakeSink{})

		order, err := svc.CreateOrder(context.Background(), "buyer", input(1, 0))
		require.NoError(t, err)
		assert.Equal(t, 800, order.Items[0].PriceCents)
		assert.Equal(t, 800, order.TotalCents)

		// A later catalog price change must not touch the stored order.
		ps := store.stock[stockKey{"p1", "s1"}]
		ps.PriceCents = 1200
		store.stock[stockKey{"p1", "s1"}] = ps

		got, err := store.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, 800, got.Items[0].PriceCents)
	})

	t.Run("ignores expired discount window", func(t *testing.T) {
		store := newFakeStore()
		start := testNow.Add(-2 * time.Hour)
		end := testNow.Add(-time.Hour)
		store.addProduct("p1", "s1", domain.ProductStock{
			PriceCents:       1000,
			DiscountCents:    800,
			DiscountStartsAt: &start,
			DiscountEndsAt:   &end,
			Quantity:         10,
		})
		store.balances["buyer"] = 0
		svc := newTestService(store, &fakeSink{})

		order, err := svc.CreateOrder(context.Background(), "buyer", input(1, 0))
		require.NoError(t, err)
		assert.Equal(t, 1000, order.Items[0].PriceCents)
	})

	t.Run("rejects points above balance", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CreateOrder(context.Background(), "buyer", input(1, 600))
		require.ErrorIs(t, err, domain.ErrInsufficientPoints)
		assert.Equal(t, 10, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 500, store.balances["buyer"])
	})

	t.Run("rejects points above subtotal", func(t *testing.T) {
		store := newFakeStore()
		store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 1000, Quantity: 10})
		store.balances["buyer"] = 10_000
		svc := newTestService(store, &fakeSink{})

		// subtotal 5000, redeeming 6000 would make the charge negative
		in := input(5, 6000)
		_, err := svc.CreateOrder(context.Background(), "buyer", in)
		require.ErrorIs(t, err, domain.ErrInsufficientPoints)

		// redeeming exactly the subtotal is fine and charges zero
		in.UsePoints = 5000
		order, err := svc.CreateOrder(context.Background(), "buyer", in)
		require.NoError(t, err)
		assert.Equal(t, 0, order.TotalCents)
		assert.Equal(t, 5000, store.balances["buyer"])
	})

	t.Run("insufficient stock rolls back every line", func(t *testing.T) {
		store := newFakeStore()
		store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 1000, Quantity: 10})
		store.addProduct("p2", "s2", domain.ProductStock{PriceCents: 500, Quantity: 1})
		store.balances["buyer"] = 100
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "Jae Kim", Phone: "010", Address: "x",
			Items: []LineItemInput{
				{ProductID: "p1", SizeID: "s1", Qty: 2},
				{ProductID: "p2", SizeID: "s2", Qty: 5},
			},
			UsePoints: 100,
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		assert.Equal(t, 10, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 1, store.stock[stockKey{"p2", "s2"}].Quantity)
		assert.Equal(t, 100, store.balances["buyer"])
		assert.Empty(t, store.orders)
	})

	t.Run("persistence failure rolls back stock and points", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		store.failInsert = true
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CreateOrder(context.Background(), "buyer", input(2, 100))
		require.Error(t, err)
		assert.Equal(t, 10, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 500, store.balances["buyer"])
		assert.Empty(t, store.orders)
	})

	t.Run("unknown product, size, and buyer", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "a", Phone: "b", Address: "c",
			Items: []LineItemInput{{ProductID: "nope", SizeID: "s1", Qty: 1}},
		})
		require.ErrorIs(t, err, domain.ErrProductNotFound)

		_, err = svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "a", Phone: "b", Address: "c",
			Items: []LineItemInput{{ProductID: "p1", SizeID: "nope", Qty: 1}},
		})
		require.ErrorIs(t, err, domain.ErrSizeNotFound)

		_, err = svc.CreateOrder(context.Background(), "ghost", input(1, 0))
		require.ErrorIs(t, err, domain.ErrBuyerNotFound)
	})

	t.Run("input validation", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{RecipientName: "a"})
		require.ErrorIs(t, err, domain.ErrNoItems)

		in := input(0, 0)
		_, err = svc.CreateOrder(context.Background(), "buyer", in)
		require.ErrorIs(t, err, domain.ErrInvalidQuantity)

		in = input(1, -5)
		_, err = svc.CreateOrder(context.Background(), "buyer", in)
		require.ErrorIs(t, err, domain.ErrInvalidPoints)
	})
}

func TestCreateOrderConcurrentNoOversell(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 100, Quantity: 5})
	for i := 0; i < 10; i++ {
		store.balances[buyerN(i)] = 0
	}
	svc := newTestService(store, &fakeSink{})

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.CreateOrder(context.Background(), buyerN(i), CreateOrderInput{
				RecipientName: "r", Phone: "p", Address: "a",
				Items: []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, store.stock[stockKey{"p1", "s1"}].Quantity)
}

func buyerN(i int) string {
	return "buyer-" + string(rune('a'+i))
}

func TestCreateOrderDepletionAlerts(t *testing.T) {
	t.Parallel()

	t.Run("alerts once when stock hits zero", func(t *testing.T) {
		store := newFakeStore()
		store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 100, Quantity: 2})
		store.alerts[stockKey{"p1", "s1"}] = domain.StockAlert{
			ProductID: "p1", SizeID: "s1", SellerID: "seller",
			StoreName: "Shoes", ProductName: "Runner", SizeName: "M",
			CartUserIDs: []string{"u1", "u2"},
		}
		store.balances["buyer"] = 0
		sink := &fakeSink{}
		svc := newTestService(store, sink)

		_, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "r", Phone: "p", Address: "a",
			Items: []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: 2}},
		})
		require.NoError(t, err)
		require.Len(t, sink.alerts, 1)
		assert.Equal(t, "seller", sink.alerts[0].SellerID)
		assert.Equal(t, []string{"u1", "u2"}, sink.alerts[0].CartUserIDs)
	})

	t.Run("no alert while stock remains", func(t *testing.T) {
		store := newFakeStore()
		store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 100, Quantity: 3})
		store.balances["buyer"] = 0
		sink := &fakeSink{}
		svc := newTestService(store, sink)

		_, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "r", Phone: "p", Address: "a",
			Items: []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: 2}},
		})
		require.NoError(t, err)
		assert.Empty(t, sink.alerts)
	})

	t.Run("sink failure does not fail the order", func(t *testing.T) {
		store := newFakeStore()
		store.addProduct("p1", "s1", domain.ProductStock{PriceCents: 100, Quantity: 1})
		store.balances["buyer"] = 0
		sink := &fakeSink{err: errors.New("broker down")}
		svc := newTestService(store, sink)

		order, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "r", Phone: "p", Address: "a",
			Items: []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: 1}},
		})
		require.NoError(t, err)
		_, ok := store.orders[order.ID]
		assert.True(t, ok)
	})
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	place := func(t *testing.T, store *fakeStore, svc *Service) domain.Order {
		t.Helper()
		order, err := svc.CreateOrder(context.Background(), "buyer", CreateOrderInput{
			RecipientName: "r", Phone: "p", Address: "a",
			Items:     []LineItemInput{{ProductID: "p1", SizeID: "s1", Qty: 3}},
			UsePoints: 200,
		})
		require.NoError(t, err)
		return order
	}

	t.Run("restores stock and points", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})
		order := place(t, store, svc)

		require.Equal(t, 7, store.stock[stockKey{"p1", "s1"}].Quantity)
		require.Equal(t, 300, store.balances["buyer"])

		cancelled, err := svc.CancelOrder(context.Background(), "buyer", order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		assert.Equal(t, 10, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 500, store.balances["buyer"])
		assert.Equal(t, domain.StatusCancelled, store.orders[order.ID].Status)
	})

	t.Run("second cancel is rejected without extra mutation", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})
		order := place(t, store, svc)

		_, err := svc.CancelOrder(context.Background(), "buyer", order.ID)
		require.NoError(t, err)

		_, err = svc.CancelOrder(context.Background(), "buyer", order.ID)
		require.ErrorIs(t, err, domain.ErrOrderNotCancellable)
		assert.Equal(t, 10, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 500, store.balances["buyer"])
	})

	t.Run("only the owner may cancel", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		store.balances["other"] = 0
		svc := newTestService(store, &fakeSink{})
		order := place(t, store, svc)

		_, err := svc.CancelOrder(context.Background(), "other", order.ID)
		require.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, 7, store.stock[stockKey{"p1", "s1"}].Quantity)
		assert.Equal(t, 300, store.balances["buyer"])
		assert.Equal(t, domain.StatusAwaitingPayment, store.orders[order.ID].Status)
	})

	t.Run("fulfilled order is not cancellable", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})
		order := place(t, store, svc)

		o := store.orders[order.ID]
		o.Status = domain.StatusShipped
		store.orders[order.ID] = o

		_, err := svc.CancelOrder(context.Background(), "buyer", order.ID)
		require.ErrorIs(t, err, domain.ErrOrderNotCancellable)
	})

	t.Run("unknown order", func(t *testing.T) {
		store := newFakeStore()
		seedBasic(store)
		svc := newTestService(store, &fakeSink{})

		_, err := svc.CancelOrder(context.Background(), "buyer", "missing")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestListOrders(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.balances["buyer"] = 0
	for i := 0; i < 5; i++ {
		id := "o" + string(rune('0'+i))
		st := domain.StatusAwaitingPayment
		if i%2 == 1 {
			st = domain.StatusCancelled
		}
		store.orders[id] = domain.Order{
			ID:        id,
			BuyerID:   "buyer",
			Status:    st,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}
	}
	store.orders["foreign"] = domain.Order{ID: "foreign", BuyerID: "other", CreatedAt: testNow}
	svc := newTestService(store, &fakeSink{})

	t.Run("newest first with total count", func(t *testing.T) {
		page, err := svc.ListOrders(context.Background(), "buyer", ListOrdersInput{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		require.Len(t, page.Orders, 2)
		assert.Equal(t, "o4", page.Orders[0].ID)
		assert.Equal(t, "o3", page.Orders[1].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		st := domain.StatusCancelled
		page, err := svc.ListOrders(context.Background(), "buyer", ListOrdersInput{Status: &st})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
	})

	t.Run("normalizes page and limit", func(t *testing.T) {
		page, err := svc.ListOrders(context.Background(), "buyer", ListOrdersInput{Page: 0, Limit: -1})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, defaultPageSize, page.Limit)
	})
}

func TestGetOrder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.orders["o1"] = domain.Order{ID: "o1", BuyerID: "buyer"}
	svc := newTestService(store, &fakeSink{})

	_, err := svc.GetOrder(context.Background(), "buyer", "o1")
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), "other", "o1")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.GetOrder(context.Background(), "buyer", "nope")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

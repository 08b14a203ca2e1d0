package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/bagaspry/go-shop-orders/internal/domain"
	"github.com/bagaspry/go-shop-orders/internal/orders"
	"github.com/bagaspry/go-shop-orders/internal/redisx"
)

// The authenticating gateway puts the verified account id here.
const userIDHeader = "X-User-Id"

// OrderService is the workflow surface the handler needs.
type OrderService interface {
	CreateOrder(ctx context.Context, buyerID string, in orders.CreateOrderInput) (domain.Order, error)
	CancelOrder(ctx context.Context, buyerID, orderID string) (domain.Order, error)
	GetOrder(ctx context.Context, buyerID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, buyerID string, in orders.ListOrdersInput) (orders.OrderPage, error)
}

type OrdersHandler struct {
	Svc   OrderService
	Redis *redis.Client
	Log   *slog.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Delete("/orders/{id}", h.cancelOrder)
}

type lineItemReq struct {
	ProductID string `json:"product_id"`
	SizeID    string `json:"size_id"`
	Qty       int    `json:"qty"`
}

type createOrderReq struct {
	RecipientName string        `json:"recipient_name"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	Items         []lineItemReq `json:"items"`
	UsePoints     int           `json:"use_points"`
}

type orderItemResp struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	SizeID     string `json:"size_id"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
	Reviewed   bool   `json:"reviewed"`
}

type orderResp struct {
	ID            string          `json:"id"`
	RecipientName string          `json:"recipient_name"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	Status        string          `json:"status"`
	TotalCents    int             `json:"total_cents"`
	UsedPoints    int             `json:"used_points"`
	Items         []orderItemResp `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

type listOrdersResp struct {
	Orders []orderResp `json:"orders"`
	Total  int         `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

func toOrderResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			ID:         it.ID,
			ProductID:  it.ProductID,
			SizeID:     it.SizeID,
			PriceCents: it.PriceCents,
			Qty:        it.Qty,
			Reviewed:   it.Reviewed,
		})
	}
	return orderResp{
		ID:            o.ID,
		RecipientName: o.RecipientName,
		Phone:         o.Phone,
		Address:       o.Address,
		Status:        string(o.Status),
		TotalCents:    o.TotalCents,
		UsedPoints:    o.UsedPoints,
		Items:         items,
		CreatedAt:     o.CreatedAt,
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(userIDHeader)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.RecipientName == "" || req.Phone == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "recipient_name, phone and address are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	items := make([]orders.LineItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItemInput{ProductID: it.ProductID, SizeID: it.SizeID, Qty: it.Qty})
	}

	order, err := h.Svc.CreateOrder(ctx, buyerID, orders.CreateOrderInput{
		RecipientName: req.RecipientName,
		Phone:         req.Phone,
		Address:       req.Address,
		Items:         items,
		UsePoints:     req.UsePoints,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusCreated, toOrderResp(order))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(userIDHeader)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	order, err := h.Svc.CancelOrder(ctx, buyerID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(userIDHeader)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	order, err := h.Svc.GetOrder(ctx, buyerID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(userIDHeader)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}

	in := orders.ListOrdersInput{
		Page:  atoiDefault(r.URL.Query().Get("page"), 1),
		Limit: atoiDefault(r.URL.Query().Get("limit"), 20),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_status", "invalid status filter")
			return
		}
		in.Status = &st
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	page, err := h.Svc.ListOrders(ctx, buyerID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listOrdersResp{
		Orders: make([]orderResp, 0, len(page.Orders)),
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
	}
	for _, o := range page.Orders {
		resp.Orders = append(resp.Orders, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getOrderStatus serves the cached status snapshot when present and
// falls back to the database otherwise.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(userIDHeader)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	order, err := h.Svc.GetOrder(ctx, buyerID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(order.Status)})
}

// cacheStatus keeps a short-lived status snapshot in Redis so status
// polling does not hit the database. Failures only cost the cache.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o domain.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body := fmt.Sprintf(`{"status":%q}`, o.Status)
	if err := h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache write failed", "order_id", o.ID, "err", err)
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

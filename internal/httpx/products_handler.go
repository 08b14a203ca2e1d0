package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bagaspry/go-shop-orders/internal/domain"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type ProductsHandler struct {
	Catalog ProductLister
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
}

type productResp struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, productResp{
			ID:         p.ID,
			StoreID:    p.StoreID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			CreatedAt:  p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

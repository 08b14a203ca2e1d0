package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bagaspry/go-shop-orders/internal/notify"
)

// StreamHandler serves the Server-Sent-Events push channel. One stream
// per user; the hub evicts the old stream when the same user reconnects.
type StreamHandler struct {
	Hub *notify.Hub
}

func (h *StreamHandler) Register(r *chi.Mux) {
	r.Get("/notifications/stream", h.stream)
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing user id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Tell the client it is connected before the first event arrives.
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := h.Hub.Register(userID)
	defer h.Hub.Unregister(userID, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == notify.EventPing {
				_, _ = fmt.Fprint(w, ": ping\n\n")
			} else {
				_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			}
			flusher.Flush()
		}
	}
}

package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/redisx"
	"github.com/lojinha/checkout/internal/watcher"
)

// OrderStore is the slice of the repo the status endpoints read from;
// *orders.Repo implements it.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	GetStatus(ctx context.Context, id string) (orders.Status, orders.PaymentStatus, error)
}

type StatusHandler struct {
	Store   OrderStore
	Redis   *redis.Client
	Watcher *watcher.Watcher
}

func (h *StatusHandler) Register(r *chi.Mux) {
	timed(r).Get("/orders/{id}", h.getStatus)
	// the confirmation stream blocks until a terminal state or the watcher
	// ceiling; the request timeout must not cut it off
	r.Get("/orders/{id}/confirmation", h.streamConfirmation)
}

// getStatus is the pull half of the dual-channel confirmation: cheap enough
// for a 10s client poll because transitions keep the cache warm.
func (h *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, pay, err := h.Store.GetStatus(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, _ := json.Marshal(map[string]any{"status": status, "payment_status": pay})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// streamConfirmation is the push half: an SSE stream that emits one terminal
// event when the order confirms or expires, then closes.
func (h *StatusHandler) streamConfirmation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	loadCtx, cancel := contextWithTimeout(r, 3*time.Second)
	o, err := h.Store.GetOrder(loadCtx, orderID)
	cancel()
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorBody(w, http.StatusInternalServerError, "internal_error", "Streaming não suportado.")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(status string) {
		fmt.Fprintf(w, "data: {\"status\":%q}\n\n", status)
		flusher.Flush()
	}

	switch o.PaymentStatus {
	case orders.PaymentConfirmed:
		send("confirmed")
		return
	case orders.PaymentExpired, orders.PaymentFailed:
		send("expired")
		return
	}
	send("waiting")

	var pixExpiry time.Time
	if o.Pix != nil {
		pixExpiry = o.Pix.Expiration
	}
	outcome := h.Watcher.Watch(r.Context(), orderID, pixExpiry, nil, nil)
	if outcome == watcher.OutcomeNone {
		return // client went away
	}
	send(string(outcome))
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

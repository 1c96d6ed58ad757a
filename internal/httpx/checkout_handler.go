package httpx

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojinha/checkout/internal/checkout"
	"github.com/lojinha/checkout/internal/orders"
)

type CheckoutHandler struct {
	Svc      *checkout.Service
	Sessions *checkout.SessionStore
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	t := timed(r)
	t.Post("/checkout", h.create)
	t.Get("/checkout/session", h.resumeSession)
}

type pixResponse struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Pix         *orders.PixPayload `json:"pix"`
	InvoiceURL  string             `json:"invoice_url"`
}

type cardResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"` // "confirmed" | "pending"
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_json", "Corpo da requisição inválido.")
		return
	}

	// authentication happens upstream; the edge injects the profile id
	customerID := r.Header.Get("X-Customer-Id")
	sessionID := r.Header.Get("X-Checkout-Session")

	ctx := r.Context()
	if sessionID != "" {
		// persist the in-flight payload so a reload resumes instead of
		// losing the cart
		if err := h.Sessions.Save(ctx, sessionID, req); err != nil {
			log.Printf("checkout session save: %v", err)
		}
	}

	res, err := h.Svc.Checkout(ctx, customerID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	if sessionID != "" {
		if err := h.Sessions.Clear(ctx, sessionID); err != nil {
			log.Printf("checkout session clear: %v", err)
		}
	}

	switch res.Method {
	case checkout.MethodPix:
		writeJSON(w, http.StatusOK, pixResponse{
			OrderID:     res.OrderID,
			OrderNumber: res.OrderNumber,
			Pix:         res.Pix,
			InvoiceURL:  res.InvoiceURL,
		})
	default:
		writeJSON(w, http.StatusOK, cardResponse{
			OrderID:     res.OrderID,
			OrderNumber: res.OrderNumber,
			Status:      res.CardStatus,
		})
	}
}

// resumeSession returns the persisted payload for a reloaded checkout page.
func (h *CheckoutHandler) resumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Checkout-Session")
	if sessionID == "" {
		writeErrorBody(w, http.StatusBadRequest, "missing_session", "Sessão de checkout ausente.")
		return
	}
	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()

	req, found, err := h.Sessions.Load(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeErrorBody(w, http.StatusNotFound, "session_not_found", "Sessão de checkout expirada.")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

package httpx

import (
	"crypto/subtle"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojinha/checkout/internal/webhook"
)

type WebhookHandler struct {
	Ingestor *webhook.Ingestor
	Secret   string
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	timed(r).Post("/webhooks/gateway", h.receive)
}

type webhookAck struct {
	Received  bool `json:"received"`
	Processed bool `json:"processed"`
}

// receive always acknowledges 200 once authenticated: repeated non-success
// responses make the gateway pause delivery entirely, so internal failures
// are logged, never surfaced to the transport.
func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("asaas-access-token")
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Printf("webhook read: %v", err)
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	processed, err := h.Ingestor.Process(r.Context(), raw)
	if err != nil {
		log.Printf("webhook process: %v", err)
	}
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Processed: processed})
}

package httpx

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/lojinha/checkout/internal/orders"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps domain errors to the wire contract. Buyer-facing messages
// are localized here and decoupled from internal error text; raw causes go to
// the log only.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr     *orders.ValidationError
		item     *orders.InvalidItemError
		mismatch *orders.BrandMismatchError
		below    *orders.BelowMinimumOrderError
		capErr   *orders.InstallmentCapError
		oos      *orders.OutOfStockError
		payment  *orders.PaymentFailedError
	)
	switch {
	case errors.As(err, &verr):
		writeErrorBody(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("Dados inválidos em %s.", verr.Field))
	case errors.As(err, &item):
		writeErrorBody(w, http.StatusBadRequest, "invalid_item",
			"Um dos produtos do carrinho não está mais disponível.")
	case errors.As(err, &mismatch):
		writeErrorBody(w, http.StatusBadRequest, "brand_mismatch",
			"Um dos produtos não pertence a esta loja.")
	case errors.As(err, &below):
		writeErrorBody(w, http.StatusBadRequest, "below_minimum_order",
			fmt.Sprintf("O pedido mínimo desta loja é %s.", formatBRL(below.MinimumCents)))
	case errors.As(err, &capErr):
		writeErrorBody(w, http.StatusBadRequest, "installment_cap_exceeded",
			fmt.Sprintf("Parcelamento máximo de %dx.", capErr.Max))
	case errors.As(err, &oos):
		writeErrorBody(w, http.StatusBadRequest, "out_of_stock",
			fmt.Sprintf("%s esgotado. Restam %d unidades.", oos.Name, oos.Available))
	case errors.As(err, &payment):
		writeErrorBody(w, http.StatusBadRequest, "payment_failed", payment.Message)
	case errors.Is(err, orders.ErrBrandNotFound):
		writeErrorBody(w, http.StatusBadRequest, "brand_not_found", "Loja não encontrada.")
	case errors.Is(err, orders.ErrOrderNotFound):
		writeErrorBody(w, http.StatusNotFound, "order_not_found", "Pedido não encontrado.")
	default:
		log.Printf("internal error: %v", err)
		writeErrorBody(w, http.StatusInternalServerError, "internal_error",
			"Ocorreu um erro inesperado. Tente novamente.")
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func formatBRL(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

package gateway

import "fmt"

// Error is a non-2xx gateway response. Raw descriptions are logged by callers;
// only the mapped UserMessage ever reaches a buyer.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Validation reports whether the gateway rejected our input, as opposed to
// failing internally.
func (e *Error) Validation() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

var userMessages = map[string]string{
	"invalid_cpfCnpj":     "CPF/CNPJ inválido. Verifique os dados e tente novamente.",
	"invalid_mobilePhone": "Telefone inválido. Verifique os dados e tente novamente.",
	"invalid_creditCard":  "Cartão recusado. Verifique os dados ou use outro cartão.",
	"invalid_value":       "Valor da cobrança inválido.",
}

const genericUserMessage = "Não foi possível processar o pagamento. Tente novamente em instantes."

// UserMessage maps known gateway validation codes to localized buyer-facing
// text; anything unknown surfaces generically.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return genericUserMessage
}

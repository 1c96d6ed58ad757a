// Package gateway wraps the Asaas-style payment API: customer resolution,
// charge creation and PIX QR retrieval. Card data passes through in memory
// only and is never written anywhere.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lojinha/checkout/internal/redisx"
)

// Mappings persists the tax-id -> gateway-customer-id relation durably;
// *orders.Repo implements it.
type Mappings interface {
	GatewayCustomerID(ctx context.Context, taxID string) (string, error)
	SaveGatewayCustomer(ctx context.Context, taxID, gatewayID string) error
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	RDB     *redis.Client
	Store   Mappings
}

func New(baseURL, apiKey string, rdb *redis.Client, store Mappings) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		RDB:     rdb,
		Store:   store,
	}
}

type CustomerIdentity struct {
	Name  string
	Email string
	TaxID string
	Phone string
}

type ChargeRequest struct {
	CustomerID        string
	BillingType       string // "PIX" | "CREDIT_CARD"
	ValueCents        int64
	DueDate           time.Time
	Description       string
	ExternalReference string // order id: lets the gateway recognize a retried call
	Card              *Card
	// InstallmentCount > 1 splits ValueCents across installments on the
	// gateway side; the last installment absorbs any division remainder.
	InstallmentCount int
}

type Card struct {
	HolderName  string
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CCV         string
}

type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // PENDING | CONFIRMED | RECEIVED | ...
	BillingType string `json:"billingType"`
	InvoiceURL  string `json:"invoiceUrl"`
}

type PixQr struct {
	EncodedImage string
	Payload      string
	Expiration   time.Time
}

// Confirmed statuses the gateway may answer synchronously for card charges.
func (p Payment) Confirmed() bool {
	return p.Status == "CONFIRMED" || p.Status == "RECEIVED"
}

// FindOrCreateCustomer resolves the gateway customer for a buyer: redis cache
// by tax id, then the durable mapping, then a gateway search, then creation.
// The mapping is persisted whichever path found it.
func (c *Client) FindOrCreateCustomer(ctx context.Context, id CustomerIdentity) (string, error) {
	cacheKey := fmt.Sprintf(redisx.KeyGatewayCustomer, id.TaxID)
	if c.RDB != nil {
		if v, err := c.RDB.Get(ctx, cacheKey).Result(); err == nil && v != "" {
			return v, nil
		}
	}
	if gid, err := c.Store.GatewayCustomerID(ctx, id.TaxID); err != nil {
		return "", err
	} else if gid != "" {
		c.cacheCustomer(ctx, cacheKey, gid)
		return gid, nil
	}

	gid, err := c.searchCustomer(ctx, id.TaxID)
	if err != nil {
		return "", err
	}
	if gid == "" {
		gid, err = c.createCustomer(ctx, id)
		if err != nil {
			return "", err
		}
	}
	if err := c.Store.SaveGatewayCustomer(ctx, id.TaxID, gid); err != nil {
		return "", err
	}
	c.cacheCustomer(ctx, cacheKey, gid)
	return gid, nil
}

func (c *Client) cacheCustomer(ctx context.Context, key, gid string) {
	if c.RDB == nil {
		return
	}
	if err := c.RDB.Set(ctx, key, gid, redisx.TTLGatewayCustomer).Err(); err != nil {
		log.Printf("gateway customer cache: %v", err)
	}
}

func (c *Client) searchCustomer(ctx context.Context, taxID string) (string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	// idempotent lookup: one retry is safe
	err := c.doRetry(ctx, http.MethodGet, "/customers?cpfCnpj="+url.QueryEscape(taxID), nil, &out)
	if err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", nil
	}
	return out.Data[0].ID, nil
}

func (c *Client) createCustomer(ctx context.Context, id CustomerIdentity) (string, error) {
	body := map[string]string{
		"name":        id.Name,
		"email":       id.Email,
		"cpfCnpj":     id.TaxID,
		"mobilePhone": id.Phone,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/customers", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateCharge performs exactly one attempt. Charge creation is never blindly
// retried: the external reference is what lets a deliberate caller retry be
// recognized by the gateway as the same operation.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (Payment, error) {
	body := map[string]any{
		"customer":          req.CustomerID,
		"billingType":       req.BillingType,
		"dueDate":           req.DueDate.Format("2006-01-02"),
		"description":       req.Description,
		"externalReference": req.ExternalReference,
	}
	if req.InstallmentCount > 1 {
		// totalValue, never a per-installment value: the split must add up
		// to the exact recomputed order total
		body["installmentCount"] = req.InstallmentCount
		body["totalValue"] = centsToValue(req.ValueCents)
	} else {
		body["value"] = centsToValue(req.ValueCents)
	}
	if req.Card != nil {
		body["creditCard"] = map[string]string{
			"holderName":  req.Card.HolderName,
			"number":      req.Card.Number,
			"expiryMonth": req.Card.ExpiryMonth,
			"expiryYear":  req.Card.ExpiryYear,
			"ccv":         req.Card.CCV,
		}
	}
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/payments", body, &out); err != nil {
		return Payment{}, err
	}
	return out, nil
}

// FetchQrCode retrieves the PIX payload for a created charge. Idempotent, so
// it tolerates one retry on transient failure.
func (c *Client) FetchQrCode(ctx context.Context, paymentID string) (PixQr, error) {
	var out struct {
		EncodedImage   string `json:"encodedImage"`
		Payload        string `json:"payload"`
		ExpirationDate string `json:"expirationDate"`
	}
	if err := c.doRetry(ctx, http.MethodGet, "/payments/"+paymentID+"/pixQrCode", nil, &out); err != nil {
		return PixQr{}, err
	}
	qr := PixQr{EncodedImage: out.EncodedImage, Payload: out.Payload}
	if t, err := time.Parse("2006-01-02 15:04:05", out.ExpirationDate); err == nil {
		qr.Expiration = t
	}
	return qr, nil
}

func centsToValue(cents int64) float64 {
	return float64(cents) / 100
}

func (c *Client) doRetry(ctx context.Context, method, path string, body, out any) error {
	err := c.do(ctx, method, path, body, out)
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Validation() {
		return err // retrying a rejected request cannot succeed
	}
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gateway decode: %w", err)
		}
	}
	return nil
}

func parseError(status int, raw []byte) error {
	var body struct {
		Errors []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"errors"`
	}
	e := &Error{StatusCode: status}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 {
		e.Code = body.Errors[0].Code
		e.Message = body.Errors[0].Description
	}
	return e
}

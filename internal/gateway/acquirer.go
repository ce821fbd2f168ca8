package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Charge statuses reported by the acquirer.
const (
	ChargeApproved  = "approved"
	ChargeDeclined  = "declined"
	ChargePending   = "pending"
	ChargeFailed    = "failed"
	ChargeExpired   = "expired"
	ChargeCancelled = "cancelled"
)

type ChargeCard struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

type ChargePayer struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Document string `json:"document,omitempty"`
}

type ChargeRequest struct {
	Reference    string          `json:"reference"`
	Method       string          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Installments int             `json:"installments,omitempty"`
	Description  string          `json:"description,omitempty"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	Card         *ChargeCard     `json:"card,omitempty"`
	Payer        *ChargePayer    `json:"payer,omitempty"`
}

type PixCharge struct {
	Key       string    `json:"key"`
	QRPayload string    `json:"qr_payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

type BoletoCharge struct {
	Number  string    `json:"number"`
	Barcode string    `json:"barcode"`
	DueDate time.Time `json:"due_date"`
}

type Charge struct {
	ID                string          `json:"id"`
	Reference         string          `json:"reference"`
	Method            string          `json:"method"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	AuthorizationCode string          `json:"authorization_code,omitempty"`
	ResponseCode      string          `json:"response_code,omitempty"`
	ResponseMessage   string          `json:"response_message,omitempty"`
	Fee               decimal.Decimal `json:"fee"`
	Pix               *PixCharge      `json:"pix,omitempty"`
	Boleto            *BoletoCharge   `json:"boleto,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrMalformedResponse is returned when the acquirer answers 2xx without a
// usable charge.
var ErrMalformedResponse = errors.New("malformed acquirer response")

type AcquirerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// AcquirerClient talks to the card acquirer's charge API.
type AcquirerClient struct {
	http *resty.Client
}

func NewAcquirerClient(cfg AcquirerConfig) *AcquirerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &AcquirerClient{http: c}
}

func (c *AcquirerClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var out Charge
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/charges")
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	return checkCharge(resp, &out, &failure)
}

func (c *AcquirerClient) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var out Charge
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&failure).
		Get("/v1/charges/{id}")
	if err != nil {
		return nil, fmt.Errorf("get charge %s: %w", id, err)
	}
	return checkCharge(resp, &out, &failure)
}

func checkCharge(resp *resty.Response, out *Charge, failure *apiError) (*Charge, error) {
	if resp.IsError() {
		if failure.Message != "" {
			return nil, fmt.Errorf("acquirer returned %d: %s", resp.StatusCode(), failure.Message)
		}
		return nil, fmt.Errorf("acquirer returned %d", resp.StatusCode())
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode())
	}
	if out.ID == "" || out.Status == "" {
		return nil, ErrMalformedResponse
	}
	return out, nil
}

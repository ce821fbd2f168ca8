package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Order payment statuses understood by the storefront.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PaymentUpdate is sent to the storefront when a payment settles.
type PaymentUpdate struct {
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client updates orders through the storefront API.
type Client struct {
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: c}
}

// UpdatePayment sets the payment status of one order. The storefront treats
// repeated updates with the same transaction id as a no-op.
func (c *Client) UpdatePayment(ctx context.Context, orderID int64, update PaymentUpdate) error {
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprintf("%d", orderID)).
		SetBody(update).
		SetError(&failure).
		Patch("/api/orders/{id}/payment")
	if err != nil {
		return fmt.Errorf("update order %d: %w", orderID, err)
	}
	if resp.IsError() {
		if failure.Message != "" {
			return fmt.Errorf("update order %d: storefront returned %d: %s", orderID, resp.StatusCode(), failure.Message)
		}
		return fmt.Errorf("update order %d: storefront returned %d", orderID, resp.StatusCode())
	}
	return nil
}

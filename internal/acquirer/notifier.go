package acquirer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookSecretHeader carries the shared secret on every callback.
const WebhookSecretHeader = "X-Webhook-Secret"

// Callback is the body posted to the merchant when a charge settles.
type Callback struct {
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	GatewayReference string `json:"gateway_reference"`
	Message          string `json:"message,omitempty"`
}

// Notifier delivers settlement callbacks.
type Notifier interface {
	Notify(ctx context.Context, cb Callback) error
}

type WebhookNotifier struct {
	http *resty.Client
	url  string
}

func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader(WebhookSecretHeader, secret)
	return &WebhookNotifier{http: c, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, cb Callback) error {
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(cb).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("deliver callback for %s: %w", cb.TransactionID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("callback for %s rejected with %d", cb.TransactionID, resp.StatusCode())
	}
	return nil
}

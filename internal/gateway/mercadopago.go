package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
)

// MercadoPagoAPI is the subset of the SDK payment client we call.
type MercadoPagoAPI interface {
	Create(ctx context.Context, request mppayment.Request) (*mppayment.Response, error)
	Get(ctx context.Context, id int) (*mppayment.Response, error)
}

// NewMercadoPagoAPI builds the SDK client from an access token.
func NewMercadoPagoAPI(accessToken string) (MercadoPagoAPI, error) {
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	return mppayment.NewClient(cfg), nil
}

type MercadoPagoConfig struct {
	NotificationURL string
	PayerEmail      string
	// PixKey is the merchant key printed next to the QR code.
	PixKey string
}

// MercadoPago issues PIX charges and boletos through Mercado Pago. Cards stay
// with the acquirer.
type MercadoPago struct {
	api MercadoPagoAPI
	cfg MercadoPagoConfig
}

func NewMercadoPago(api MercadoPagoAPI, cfg MercadoPagoConfig) *MercadoPago {
	return &MercadoPago{api: api, cfg: cfg}
}

type mpPayer struct {
	Email          string            `json:"email"`
	FirstName      string            `json:"first_name,omitempty"`
	LastName       string            `json:"last_name,omitempty"`
	Identification *mpIdentification `json:"identification,omitempty"`
}

type mpIdentification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type mpRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
	Payer             mpPayer `json:"payer"`
}

// mpPayment is read from the SDK response re-encoded as JSON, so only the
// fields below need to track the API.
type mpPayment struct {
	ID                 int64      `json:"id"`
	Status             string     `json:"status"`
	StatusDetail       string     `json:"status_detail"`
	DateOfExpiration   *time.Time `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
		DigitableLine       string `json:"digitable_line"`
	} `json:"transaction_details"`
	Barcode struct {
		Content string `json:"content"`
	} `json:"barcode"`
}

// Mercado Pago payment statuses, collapsed into ours by MapMercadoPagoStatus.
const (
	mpApproved    = "approved"
	mpRejected    = "rejected"
	mpCancelled   = "cancelled"
	mpRefunded    = "refunded"
	mpChargedBack = "charged_back"
)

func (m *MercadoPago) CreatePix(ctx context.Context, reference string, req PixRequest, expiresAt time.Time) (*Charge, map[string]any, error) {
	body := m.request(reference, "pix", req.Amount.InexactFloat64(), req.Description, req.Payer)
	body.DateOfExpiration = expiresAt.Format("2006-01-02T15:04:05.000-07:00")

	p, raw, err := m.create(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	td := p.PointOfInteraction.TransactionData
	if td.QRCode == "" {
		return nil, nil, fmt.Errorf("%w: pix charge %d has no qr code", ErrMalformedResponse, p.ID)
	}
	exp := expiresAt
	if p.DateOfExpiration != nil && !p.DateOfExpiration.IsZero() {
		exp = *p.DateOfExpiration
	}
	return &Charge{
		ID:              strconv.FormatInt(p.ID, 10),
		Reference:       reference,
		Status:          chargeStatusFromMercadoPago(p.Status),
		ResponseCode:    p.StatusDetail,
		ResponseMessage: p.Status,
		Pix: &PixCharge{
			Key:       m.cfg.PixKey,
			QRPayload: td.QRCode,
			ExpiresAt: exp,
		},
	}, raw, nil
}

func (m *MercadoPago) CreateBoleto(ctx context.Context, reference string, req BoletoRequest, due time.Time) (*Charge, map[string]any, error) {
	body := m.request(reference, "bolbradesco", req.Amount.InexactFloat64(), req.Description, req.Payer)
	body.DateOfExpiration = due.Format("2006-01-02T15:04:05.000-07:00")

	p, raw, err := m.create(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	number := p.TransactionDetails.DigitableLine
	if number == "" {
		number = p.TransactionDetails.ExternalResourceURL
	}
	if number == "" {
		return nil, nil, fmt.Errorf("%w: boleto %d has no digitable line", ErrMalformedResponse, p.ID)
	}
	return &Charge{
		ID:              strconv.FormatInt(p.ID, 10),
		Reference:       reference,
		Status:          chargeStatusFromMercadoPago(p.Status),
		ResponseCode:    p.StatusDetail,
		ResponseMessage: p.Status,
		Boleto: &BoletoCharge{
			Number:  number,
			Barcode: p.Barcode.Content,
			DueDate: due,
		},
	}, raw, nil
}

// chargeStatusFromMercadoPago puts a create-time status in the acquirer's
// vocabulary so Remote reads every instant provider the same way.
func chargeStatusFromMercadoPago(status string) string {
	switch MapMercadoPagoStatus(status).Status {
	case payment.StatusApproved:
		return ChargeApproved
	case payment.StatusFailed:
		return ChargeDeclined
	}
	return ChargePending
}

// Status fetches the current Mercado Pago status of a payment by its id.
func (m *MercadoPago) Status(ctx context.Context, reference string) (string, error) {
	id, err := strconv.Atoi(reference)
	if err != nil {
		return "", fmt.Errorf("mercado pago reference %q: %w", reference, err)
	}
	resp, err := m.api.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get mercado pago payment %d: %w", id, err)
	}
	return resp.Status, nil
}

func (m *MercadoPago) request(reference, methodID string, amount float64, description string, payer Payer) mpRequest {
	email := payer.Email
	if email == "" {
		email = m.cfg.PayerEmail
	}
	first, last, _ := strings.Cut(strings.TrimSpace(payer.Name), " ")
	r := mpRequest{
		TransactionAmount: amount,
		Description:       description,
		PaymentMethodID:   methodID,
		ExternalReference: reference,
		NotificationURL:   m.cfg.NotificationURL,
		Payer:             mpPayer{Email: email, FirstName: first, LastName: last},
	}
	if cpf := validation.Digits(payer.CPF); cpf != "" {
		r.Payer.Identification = &mpIdentification{Type: "CPF", Number: cpf}
	}
	return r
}

func (m *MercadoPago) create(ctx context.Context, body mpRequest) (*mpPayment, map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	var req mppayment.Request
	if err := json.Unmarshal(encoded, &req); err != nil {
		return nil, nil, fmt.Errorf("build mercado pago request: %w", err)
	}

	resp, err := m.api.Create(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("create mercado pago payment: %w", err)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("encode mercado pago response: %w", err)
	}
	var p mpPayment
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if p.ID == 0 {
		return nil, nil, ErrMalformedResponse
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	return &p, raw, nil
}

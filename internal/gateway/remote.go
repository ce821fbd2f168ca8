package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/frahmantamala/estore-payments/internal/gateway")

const gatewayErrorMessage = "Erro ao comunicar com o gateway de pagamento"

// InstantProvider issues PIX charges and boletos on a real provider.
type InstantProvider interface {
	Name() string
	CreatePix(ctx context.Context, reference string, req PixRequest, expiresAt time.Time) (*Charge, map[string]any, error)
	CreateBoleto(ctx context.Context, reference string, req BoletoRequest, due time.Time) (*Charge, map[string]any, error)
}

func (m *MercadoPago) Name() string { return "mercadopago" }

// AcquirerInstant issues PIX and boleto through the acquirer's charge API
// when no dedicated provider is configured.
type AcquirerInstant struct {
	client *AcquirerClient
}

func NewAcquirerInstant(client *AcquirerClient) *AcquirerInstant {
	return &AcquirerInstant{client: client}
}

func (a *AcquirerInstant) Name() string { return "acquirer" }

func (a *AcquirerInstant) CreatePix(ctx context.Context, reference string, req PixRequest, expiresAt time.Time) (*Charge, map[string]any, error) {
	charge, err := a.client.CreateCharge(ctx, ChargeRequest{
		Reference:   reference,
		Method:      string(payment.MethodPIX),
		Amount:      req.Amount,
		Currency:    "BRL",
		Description: req.Description,
		DueDate:     &expiresAt,
		Payer:       chargePayer(req.Payer),
	})
	if err != nil {
		return nil, nil, err
	}
	if charge.Pix == nil || charge.Pix.QRPayload == "" {
		return nil, nil, fmt.Errorf("%w: pix charge %s has no payload", ErrMalformedResponse, charge.ID)
	}
	return charge, chargeResponse(charge), nil
}

func (a *AcquirerInstant) CreateBoleto(ctx context.Context, reference string, req BoletoRequest, due time.Time) (*Charge, map[string]any, error) {
	charge, err := a.client.CreateCharge(ctx, ChargeRequest{
		Reference:   reference,
		Method:      string(payment.MethodBoleto),
		Amount:      req.Amount,
		Currency:    "BRL",
		Description: req.Description,
		DueDate:     &due,
		Payer:       chargePayer(req.Payer),
	})
	if err != nil {
		return nil, nil, err
	}
	if charge.Boleto == nil || charge.Boleto.Number == "" {
		return nil, nil, fmt.Errorf("%w: boleto charge %s has no number", ErrMalformedResponse, charge.ID)
	}
	return charge, chargeResponse(charge), nil
}

type RemoteConfig struct {
	Cards   *AcquirerClient
	Instant InstantProvider
	Timeout time.Duration
	Logger  *slog.Logger
}

// Remote forwards every attempt to real providers. Any transport problem,
// timeout or unusable answer becomes a gateway_error failure.
type Remote struct {
	gen     *artifact.Generator
	cards   *AcquirerClient
	instant InstantProvider
	timeout time.Duration
	logger  *slog.Logger
}

func NewRemote(gen *artifact.Generator, cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{gen: gen, cards: cfg.Cards, instant: cfg.Instant, timeout: timeout, logger: logger}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) ProcessCreditCard(ctx context.Context, req CardRequest) (*Result, error) {
	return r.processCard(ctx, req, creditPolicy)
}

func (r *Remote) ProcessDebitCard(ctx context.Context, req CardRequest) (*Result, error) {
	return r.processCard(ctx, req, debitPolicy)
}

func (r *Remote) processCard(ctx context.Context, req CardRequest, p cardPolicy) (*Result, error) {
	method := p.method()
	if r.cards == nil {
		return nil, &ConfigurationError{Method: method, Reason: "Adquirente de cartões não configurado."}
	}

	details := &CardDetails{
		Debit:        p.debit,
		LastFour:     artifact.LastFour(req.Number),
		Brand:        artifact.DetectCardBrand(req.Number),
		Installments: p.installments(req.Installments),
	}
	res := &Result{
		TransactionID: r.gen.TransactionID(method),
		Method:        method,
		GatewayName:   "acquirer",
		Details:       details,
	}

	ctx, span := r.start(ctx, "gateway.acquirer.charge", res)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	charge, err := r.cards.CreateCharge(ctx, ChargeRequest{
		Reference:    res.TransactionID,
		Method:       string(method),
		Amount:       req.Amount,
		Currency:     "BRL",
		Installments: details.Installments,
		Description:  req.Description,
		Card: &ChargeCard{
			Number:     validation.Digits(req.Number),
			HolderName: req.HolderName,
			Expiry:     req.Expiry,
			CVV:        req.CVV,
		},
		Payer: chargePayer(req.Payer),
	})
	if err != nil {
		return r.gatewayFailure(span, res, err), nil
	}

	res.GatewayReference = charge.ID
	res.GatewayResponse = chargeResponse(charge)
	details.AuthorizationCode = charge.AuthorizationCode
	details.ProcessorCode = charge.ResponseCode
	details.ProcessorMessage = charge.ResponseMessage

	switch charge.Status {
	case ChargeApproved:
		details.ProcessingFee = charge.Fee.Round(2)
		res.Success = true
		res.Status = payment.StatusApproved
		res.Message = "Pagamento aprovado com sucesso"
	case ChargeDeclined:
		msg := charge.ResponseMessage
		if msg == "" {
			msg = p.declineMessage
		}
		res.Status = payment.StatusFailed
		res.Message = p.declineMessage
		res.Failure = &Failure{Category: FailureDeclined, Code: charge.ResponseCode, Message: msg}
		span.SetAttributes(attribute.String("payment.decline_code", charge.ResponseCode))
	default:
		return r.gatewayFailure(span, res, fmt.Errorf("%w: card charge status %q", ErrMalformedResponse, charge.Status)), nil
	}
	return res, nil
}

func (r *Remote) ProcessPIX(ctx context.Context, req PixRequest) (*Result, error) {
	if r.instant == nil {
		return nil, &ConfigurationError{Method: payment.MethodPIX, Reason: "Provedor PIX não configurado."}
	}

	details := &PixDetails{ExpiresAt: r.gen.PixExpiresAt()}
	res := &Result{
		TransactionID: r.gen.TransactionID(payment.MethodPIX),
		Method:        payment.MethodPIX,
		GatewayName:   r.instant.Name(),
		Details:       details,
	}

	ctx, span := r.start(ctx, "gateway."+r.instant.Name()+".pix", res)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	charge, raw, err := r.instant.CreatePix(ctx, res.TransactionID, req, details.ExpiresAt)
	if err != nil {
		return r.gatewayFailure(span, res, err), nil
	}

	details.PixKey = charge.Pix.Key
	if details.PixKey == "" {
		details.PixKey = r.gen.PixKey()
	}
	details.QRCode = r.gen.QRImage(charge.Pix.QRPayload, req.Amount)
	if !charge.Pix.ExpiresAt.IsZero() {
		details.ExpiresAt = charge.Pix.ExpiresAt
	}
	res.GatewayReference = charge.ID
	res.GatewayResponse = withField(raw, "qr_payload", charge.Pix.QRPayload)
	r.instantOutcome(span, res, charge, "PIX gerado com sucesso. Escaneie o QR Code ou use a chave PIX.")
	return res, nil
}

func (r *Remote) ProcessBoleto(ctx context.Context, req BoletoRequest) (*Result, error) {
	if r.instant == nil {
		return nil, &ConfigurationError{Method: payment.MethodBoleto, Reason: "Provedor de boleto não configurado."}
	}

	due := r.gen.BoletoDueDate(req.DueDays)
	details := &BoletoDetails{DueDate: due}
	res := &Result{
		TransactionID: r.gen.TransactionID(payment.MethodBoleto),
		Method:        payment.MethodBoleto,
		GatewayName:   r.instant.Name(),
		Details:       details,
	}

	ctx, span := r.start(ctx, "gateway."+r.instant.Name()+".boleto", res)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	charge, raw, err := r.instant.CreateBoleto(ctx, res.TransactionID, req, due)
	if err != nil {
		return r.gatewayFailure(span, res, err), nil
	}

	details.Number = charge.Boleto.Number
	details.Barcode = charge.Boleto.Barcode
	if details.Barcode == "" {
		details.Barcode = artifact.BoletoBarcode(artifact.FallbackBoletoBank(), due, req.Amount)
	}
	if !charge.Boleto.DueDate.IsZero() {
		details.DueDate = charge.Boleto.DueDate
	}
	res.GatewayReference = charge.ID
	res.GatewayResponse = raw
	r.instantOutcome(span, res, charge,
		fmt.Sprintf("Boleto gerado com sucesso. Vence em %s.", details.DueDate.Format("02/01/2006")))
	return res, nil
}

// instantOutcome settles a PIX or boleto result from the status the provider
// answered at creation. Most charges start pending; a provider may also
// approve or reject on the spot.
func (r *Remote) instantOutcome(span trace.Span, res *Result, charge *Charge, pendingMessage string) {
	settled := MapChargeStatus(charge.Status)
	switch settled.Status {
	case payment.StatusApproved:
		res.Success = true
		res.Status = payment.StatusApproved
		res.Message = "Pagamento aprovado com sucesso"
	case payment.StatusFailed:
		code := charge.ResponseCode
		if code == "" {
			code = charge.Status
		}
		res.Success = false
		res.Status = payment.StatusFailed
		res.Message = "Pagamento recusado pelo provedor"
		res.Failure = &Failure{Category: FailureDeclined, Code: code, Message: res.Message}
		span.SetAttributes(attribute.String("payment.decline_code", code))
		r.logger.Info("instant charge rejected at creation",
			"gateway", res.GatewayName,
			"method", res.Method,
			"transaction_id", res.TransactionID,
			"status", charge.Status,
			"code", code)
	default:
		res.Success = true
		res.Status = payment.StatusPending
		res.Message = pendingMessage
	}
}

func (r *Remote) start(ctx context.Context, name string, res *Result) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("payment.method", string(res.Method)),
		attribute.String("payment.transaction_id", res.TransactionID),
	))
}

func (r *Remote) gatewayFailure(span trace.Span, res *Result, err error) *Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Warn("gateway call failed",
		"gateway", res.GatewayName,
		"method", res.Method,
		"transaction_id", res.TransactionID,
		"error", err)

	res.Success = false
	res.Status = payment.StatusFailed
	res.Message = gatewayErrorMessage
	res.Failure = &Failure{Category: FailureGateway, Code: "GATEWAY_ERROR", Message: err.Error()}
	res.GatewayResponse = map[string]any{"error": err.Error()}
	return res
}

func chargePayer(p Payer) *ChargePayer {
	if p == (Payer{}) {
		return nil
	}
	return &ChargePayer{Name: p.Name, Email: p.Email, Document: validation.Digits(p.CPF)}
}

func chargeResponse(c *Charge) map[string]any {
	out := map[string]any{
		"id":     c.ID,
		"status": c.Status,
	}
	if c.AuthorizationCode != "" {
		out["authorization_code"] = c.AuthorizationCode
	}
	if c.ResponseCode != "" {
		out["response_code"] = c.ResponseCode
		out["response_message"] = c.ResponseMessage
	}
	if !c.Fee.Equal(decimal.Zero) {
		out["fee"] = c.Fee.StringFixed(2)
	}
	if c.Pix != nil {
		out["pix_key"] = c.Pix.Key
		out["expires_at"] = c.Pix.ExpiresAt
	}
	if c.Boleto != nil {
		out["boleto_number"] = c.Boleto.Number
		out["due_date"] = c.Boleto.DueDate
	}
	return out
}

func withField(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}

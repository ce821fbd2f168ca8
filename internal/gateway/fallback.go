package gateway

import (
	"context"

	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
)

// Fallback needs no configuration at all: fixed approval odds, a random PIX
// key and a generic boleto.
type Fallback struct {
	gen *artifact.Generator
}

func NewFallback(gen *artifact.Generator) *Fallback {
	return &Fallback{gen: gen}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) ProcessCreditCard(_ context.Context, req CardRequest) (*Result, error) {
	return simulateCard(f.gen, f.Name(), req, creditPolicy, DefaultCardSettings()), nil
}

func (f *Fallback) ProcessDebitCard(_ context.Context, req CardRequest) (*Result, error) {
	return simulateCard(f.gen, f.Name(), req, debitPolicy, DefaultCardSettings()), nil
}

func (f *Fallback) ProcessPIX(_ context.Context, req PixRequest) (*Result, error) {
	key := f.gen.PixKey()
	details := &PixDetails{
		PixKey:    key,
		ExpiresAt: f.gen.PixExpiresAt(),
		Recipient: "E-Store",
		QRCode: f.gen.PixQRCode(artifact.PixPayload{
			Amount:      req.Amount,
			Key:         key,
			Merchant:    "E-Store",
			Description: "Pagamento E-commerce",
		}),
	}

	return &Result{
		Success:       true,
		TransactionID: f.gen.TransactionID(payment.MethodPIX),
		Method:        payment.MethodPIX,
		Status:        payment.StatusPending,
		Message:       "PIX gerado com sucesso. Escaneie o QR Code ou use a chave PIX.",
		Details:       details,
		GatewayName:   f.Name(),
		GatewayResponse: map[string]any{
			"pix_key":    key,
			"expires_at": details.ExpiresAt,
		},
	}, nil
}

func (f *Fallback) ProcessBoleto(_ context.Context, req BoletoRequest) (*Result, error) {
	due := f.gen.BoletoDueDate(artifact.DefaultBoletoDays)
	details := &BoletoDetails{
		Number:  f.gen.FallbackBoletoNumber(),
		Barcode: artifact.BoletoBarcode(artifact.FallbackBoletoBank(), due, req.Amount),
		DueDate: due,
	}

	return &Result{
		Success:       true,
		TransactionID: f.gen.TransactionID(payment.MethodBoleto),
		Method:        payment.MethodBoleto,
		Status:        payment.StatusPending,
		Message:       "Boleto gerado com sucesso. Vence em 3 dias úteis.",
		Details:       details,
		GatewayName:   f.Name(),
		GatewayResponse: map[string]any{
			"boleto_number": details.Number,
			"due_date":      due,
		},
	}, nil
}

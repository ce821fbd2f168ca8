package gateway

import (
	"context"
	"fmt"

	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
)

// Simulator behaves like a gateway driven by the operator's own PIX key, bank
// account and card fee schedule.
type Simulator struct {
	gen      *artifact.Generator
	settings SettingsSource
}

func NewSimulator(gen *artifact.Generator, settings SettingsSource) *Simulator {
	return &Simulator{gen: gen, settings: settings}
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) current(ctx context.Context) (Settings, error) {
	st, err := s.settings.Settings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load gateway settings: %w", err)
	}
	return st, nil
}

func (s *Simulator) ProcessCreditCard(ctx context.Context, req CardRequest) (*Result, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return simulateCard(s.gen, s.Name(), req, creditPolicy, cardSettingsOrDefault(st.Card)), nil
}

func (s *Simulator) ProcessDebitCard(ctx context.Context, req CardRequest) (*Result, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return simulateCard(s.gen, s.Name(), req, debitPolicy, cardSettingsOrDefault(st.Card)), nil
}

func (s *Simulator) ProcessPIX(ctx context.Context, req PixRequest) (*Result, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	pix := st.Pix
	if pix.Key == "" {
		return nil, &ConfigurationError{
			Method: payment.MethodPIX,
			Reason: "Chave PIX não configurada. Configure no painel administrativo.",
		}
	}

	description := pix.Description
	if description == "" {
		description = "Pagamento E-commerce"
	}
	details := &PixDetails{
		PixKey:    pix.Key,
		ExpiresAt: s.gen.PixExpiresAt(),
		Recipient: pix.Recipient,
		QRCode: s.gen.PixQRCode(artifact.PixPayload{
			Amount:      req.Amount,
			Key:         pix.Key,
			Merchant:    pix.Recipient,
			City:        pix.City,
			Description: description,
		}),
	}

	return &Result{
		Success:       true,
		TransactionID: s.gen.TransactionID(payment.MethodPIX),
		Method:        payment.MethodPIX,
		Status:        payment.StatusPending,
		Message:       fmt.Sprintf("PIX gerado para %s", pix.Recipient),
		Details:       details,
		GatewayName:   s.Name(),
		GatewayResponse: map[string]any{
			"pix_key":    pix.Key,
			"recipient":  pix.Recipient,
			"city":       pix.City,
			"expires_at": details.ExpiresAt,
		},
	}, nil
}

func (s *Simulator) ProcessBoleto(ctx context.Context, req BoletoRequest) (*Result, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	bol := st.Boleto
	if bol.Bank == "" {
		return nil, &ConfigurationError{
			Method: payment.MethodBoleto,
			Reason: "Configuração bancária não encontrada. Configure no painel administrativo.",
		}
	}

	days := req.DueDays
	if days <= 0 {
		days = bol.DueDays
	}
	due := s.gen.BoletoDueDate(days)
	number := s.gen.BoletoNumber(bol.Bank, bol.Branch, bol.Account)
	details := &BoletoDetails{
		Number:  number,
		Barcode: artifact.BoletoBarcode(bol.Bank, due, req.Amount),
		DueDate: due,
		Cedente: bol.Cedente,
		CNPJ:    bol.CNPJ,
	}

	return &Result{
		Success:       true,
		TransactionID: s.gen.TransactionID(payment.MethodBoleto),
		Method:        payment.MethodBoleto,
		Status:        payment.StatusPending,
		Message:       fmt.Sprintf("Boleto gerado - Banco %s", bol.Bank),
		Details:       details,
		GatewayName:   s.Name(),
		GatewayResponse: map[string]any{
			"bank":     bol.Bank,
			"cedente":  bol.Cedente,
			"cnpj":     bol.CNPJ,
			"due_date": due,
		},
	}, nil
}

func cardSettingsOrDefault(cs CardSettings) CardSettings {
	def := DefaultCardSettings()
	if cs.MerchantID == "" {
		cs.MerchantID = def.MerchantID
	}
	return cs
}

package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Settings is the operator configuration the simulator reads before every
// call.
type Settings struct {
	Pix    PixSettings
	Boleto BoletoSettings
	Card   CardSettings
}

type PixSettings struct {
	Key         string `json:"key"`
	Recipient   string `json:"recipient"`
	City        string `json:"city"`
	Description string `json:"description"`
}

type BoletoSettings struct {
	Bank    string `json:"bank"`
	Branch  string `json:"branch"`
	Account string `json:"account"`
	Cedente string `json:"cedente"`
	CNPJ    string `json:"cnpj"`
	DueDays int    `json:"due_days"`
}

type CardSettings struct {
	MerchantID string          `json:"merchant_id"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	FixedFee   decimal.Decimal `json:"fixed_fee"`
}

func DefaultSettings() Settings {
	return Settings{
		Pix: PixSettings{
			Recipient:   "E-Store",
			City:        "São Paulo",
			Description: "Pagamento E-commerce",
		},
		Boleto: BoletoSettings{
			Bank:    "341",
			Branch:  "1234",
			Account: "12345-6",
			Cedente: "E-Store LTDA",
			CNPJ:    "12.345.678/0001-90",
			DueDays: 3,
		},
		Card: DefaultCardSettings(),
	}
}

func DefaultCardSettings() CardSettings {
	return CardSettings{
		MerchantID: "MERCHANT123",
		FeePercent: decimal.RequireFromString("2.99"),
		FixedFee:   decimal.RequireFromString("0.50"),
	}
}

// Configured reports whether the operator has set up anything the simulator
// can serve.
func (s Settings) Configured() bool {
	return s.Pix.Key != "" || s.Boleto.Bank != ""
}

// SettingsSource hands out the current settings. Implementations decide when
// to refresh; callers must not cache the returned value across calls.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

type StaticSettings Settings

func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}

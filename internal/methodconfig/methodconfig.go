package methodconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*payment.MethodConfig, error)
	GetByMethod(ctx context.Context, method payment.Method) (*payment.MethodConfig, error)
	Create(ctx context.Context, cfg *payment.MethodConfig) error
	Update(ctx context.Context, cfg *payment.MethodConfig) error
	DeleteAll(ctx context.Context) error
}

// Definition is one method as written in a seed file.
type Definition struct {
	Method        payment.Method `yaml:"method"`
	IsActive      *bool          `yaml:"is_active"`
	ProcessingFee string         `yaml:"processing_fee"`
	MinAmount     string         `yaml:"min_amount"`
	MaxAmount     string         `yaml:"max_amount"`
	Config        map[string]any `yaml:"config"`
}

type seedFile struct {
	PaymentMethods []Definition `yaml:"payment_methods"`
}

// LoadDefinitions reads a YAML seed file with a top level payment_methods
// list.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if len(f.PaymentMethods) == 0 {
		return nil, fmt.Errorf("seed file has no payment_methods")
	}
	return f.PaymentMethods, nil
}

func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Method:        payment.MethodPIX,
			ProcessingFee: "0.00",
			MinAmount:     "0.01",
			MaxAmount:     "999999.99",
			Config: map[string]any{
				"key":         "",
				"recipient":   "E-Store",
				"city":        "São Paulo",
				"description": "Pagamento E-commerce",
			},
		},
		{
			Method:        payment.MethodCreditCard,
			ProcessingFee: "2.99",
			MinAmount:     "1.00",
			MaxAmount:     "999999.99",
			Config: map[string]any{
				"merchant_id": "MERCHANT123",
				"api_key":     "API_KEY_SIMULADA",
				"fixed_fee":   "0.50",
			},
		},
		{
			Method:        payment.MethodDebitCard,
			ProcessingFee: "1.50",
			MinAmount:     "1.00",
			MaxAmount:     "999999.99",
			Config: map[string]any{
				"merchant_id": "MERCHANT123",
			},
		},
		{
			Method:        payment.MethodBoleto,
			ProcessingFee: "0.00",
			MinAmount:     "1.00",
			MaxAmount:     "999999.99",
			Config: map[string]any{
				"bank":     "341",
				"branch":   "1234",
				"account":  "12345-6",
				"cedente":  "E-Store LTDA",
				"cnpj":     "12.345.678/0001-90",
				"due_days": 3,
			},
		},
	}
}

func (d Definition) ToDataModel() (*payment.MethodConfig, error) {
	if !d.Method.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", d.Method)
	}
	fee, err := parseAmount("processing_fee", d.ProcessingFee)
	if err != nil {
		return nil, err
	}
	minAmount, err := parseAmount("min_amount", d.MinAmount)
	if err != nil {
		return nil, err
	}
	maxAmount, err := parseAmount("max_amount", d.MaxAmount)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(fee, minAmount, maxAmount); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Method, err)
	}

	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	cfg := map[string]any{}
	if d.Config != nil {
		cfg = d.Config
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s config: %w", d.Method, err)
	}

	return &payment.MethodConfig{
		MethodName:    d.Method,
		IsActive:      active,
		ProcessingFee: fee,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		ConfigData:    datatypes.JSON(raw),
	}, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

var hundred = decimal.NewFromInt(100)

func checkBounds(fee, minAmount, maxAmount decimal.Decimal) error {
	if fee.IsNegative() || fee.GreaterThan(hundred) {
		return fmt.Errorf("processing_fee must be between 0 and 100")
	}
	if !minAmount.IsPositive() {
		return fmt.Errorf("min_amount must be positive")
	}
	if maxAmount.LessThan(minAmount) {
		return fmt.Errorf("max_amount must not be below min_amount")
	}
	return nil
}

// MethodView is what the storefront sees for an active method.
type MethodView struct {
	Method        payment.Method  `json:"method"`
	Label         string          `json:"label"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
}

type AdminMethodView struct {
	MethodView
	IsActive  bool           `json:"is_active"`
	Config    map[string]any `json:"config"`
	UpdatedAt string         `json:"updated_at"`
}

func ToView(c *payment.MethodConfig) MethodView {
	return MethodView{
		Method:        c.MethodName,
		Label:         c.MethodName.Label(),
		ProcessingFee: c.ProcessingFee,
		MinAmount:     c.MinAmount,
		MaxAmount:     c.MaxAmount,
	}
}

func ToAdminView(c *payment.MethodConfig) AdminMethodView {
	cfg := map[string]any{}
	if len(c.ConfigData) > 0 {
		_ = json.Unmarshal(c.ConfigData, &cfg)
	}
	return AdminMethodView{
		MethodView: ToView(c),
		IsActive:   c.IsActive,
		Config:     cfg,
		UpdatedAt:  c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// UpdateRequest changes only the fields that are present.
type UpdateRequest struct {
	IsActive      *bool            `json:"is_active"`
	ProcessingFee *decimal.Decimal `json:"processing_fee"`
	MinAmount     *decimal.Decimal `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount"`
	Config        map[string]any   `json:"config"`
}

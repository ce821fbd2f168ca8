package artifact

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	PixExpiry          = 30 * time.Minute
	DefaultBoletoDays  = 3
	placeholderQRURL   = "https://via.placeholder.com/200x200/667eea/white?text=PIX+"
	qrImageSize        = 256
	fallbackBoletoBank = "341"
)

// QREncoder turns a payload into PNG bytes.
type QREncoder func(content string) ([]byte, error)

func defaultQREncoder(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, qrImageSize)
}

type Generator struct {
	src    Source
	now    func() time.Time
	encode QREncoder
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithQREncoder(enc QREncoder) Option {
	return func(g *Generator) { g.encode = enc }
}

func NewGenerator(src Source, opts ...Option) *Generator {
	g := &Generator{
		src:    src,
		now:    time.Now,
		encode: defaultQREncoder,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Now() time.Time {
	return g.now()
}

func (g *Generator) Source() Source {
	return g.src
}

// Prefix maps a method to its transaction id prefix. Unknown methods get TXN.
func Prefix(m payment.Method) string {
	switch m {
	case payment.MethodPIX:
		return "PIX"
	case payment.MethodCreditCard:
		return "CC"
	case payment.MethodDebitCard:
		return "DC"
	case payment.MethodBoleto:
		return "BOL"
	}
	return "TXN"
}

// TransactionID is <PREFIX><yyyymmddHHMMSS><8 upper hex>. Uniqueness is
// enforced by the store, not here.
func (g *Generator) TransactionID(m payment.Method) string {
	return Prefix(m) + g.now().Format("20060102150405") + g.hexUpper(4)
}

func (g *Generator) AuthorizationCode() string {
	return "AUTH" + g.hexUpper(4)
}

// PixKey is a random 32 hex char key for merchants without a configured one.
func (g *Generator) PixKey() string {
	return hex.EncodeToString(randomBytes(g.src, 16))
}

func (g *Generator) hexUpper(n int) string {
	return strings.ToUpper(hex.EncodeToString(randomBytes(g.src, n)))
}

type PixPayload struct {
	Amount      decimal.Decimal `json:"amount"`
	Key         string          `json:"key"`
	Merchant    string          `json:"merchant"`
	City        string          `json:"city,omitempty"`
	Description string          `json:"description"`
}

// PixQRCode renders the payload as a PNG data URI, or the placeholder image
// URL when encoding fails.
func (g *Generator) PixQRCode(p PixPayload) string {
	content, err := json.Marshal(p)
	if err != nil {
		return PlaceholderQRCode(p.Amount)
	}
	return g.QRImage(string(content), p.Amount)
}

// QRImage encodes an already built payload, such as a provider's copy-and-paste
// PIX code.
func (g *Generator) QRImage(content string, amount decimal.Decimal) string {
	png, err := g.encode(content)
	if err != nil {
		return PlaceholderQRCode(amount)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func PlaceholderQRCode(amount decimal.Decimal) string {
	return placeholderQRURL + amount.StringFixed(2)
}

func (g *Generator) PixExpiresAt() time.Time {
	return g.now().Add(PixExpiry)
}

// BoletoNumber is <bank>.<branch:4>.<account:8>.<5 random digits>.
func (g *Generator) BoletoNumber(bank, branch, account string) string {
	account = strings.ReplaceAll(account, "-", "")
	return fmt.Sprintf("%s.%s.%s.%05d", bank, zfill(branch, 4), zfill(account, 8), g.src.IntN(100000))
}

// FallbackBoletoNumber is used when no bank is configured at all.
func (g *Generator) FallbackBoletoNumber() string {
	return fmt.Sprintf("34191.%04d.%04d.%05d.%05d",
		g.src.IntN(10000), g.src.IntN(10000), g.src.IntN(100000), g.src.IntN(100000))
}

func FallbackBoletoBank() string {
	return fallbackBoletoBank
}

// BoletoBarcode is bank + "9" + ddmmyyyy + amount in cents padded to 10 + "00".
// The trailing check digits are simulated.
func BoletoBarcode(bank string, due time.Time, amount decimal.Decimal) string {
	cents := amount.Round(2).Shift(2).IntPart()
	return fmt.Sprintf("%s9%s%010d00", bank, due.Format("02012006"), cents)
}

func (g *Generator) BoletoDueDate(days int) time.Time {
	if days <= 0 {
		days = DefaultBoletoDays
	}
	return g.now().AddDate(0, 0, days)
}

func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

package artifact

import (
	"strings"

	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

type brandRule struct {
	brand    string
	prefixes []string
}

// Evaluated in order, first match wins.
var brandRules = []brandRule{
	{"Visa", []string{"4"}},
	{"Mastercard", []string{"51", "52", "53", "54", "55"}},
	{"American Express", []string{"34", "37"}},
	{"Diners Club", []string{"30", "36", "38"}},
	{"Discover", []string{"6011"}},
}

const defaultBrand = "Elo"

func DetectCardBrand(number string) string {
	digits := validation.Digits(number)
	for _, rule := range brandRules {
		for _, p := range rule.prefixes {
			if strings.HasPrefix(digits, p) {
				return rule.brand
			}
		}
	}
	return defaultBrand
}

func LastFour(number string) string {
	digits := validation.Digits(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

var hundred = decimal.NewFromInt(100)

// ProcessingFee is amount*pct/100 + fixed, rounded to cents.
func ProcessingFee(amount, pct, fixed decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Add(fixed).Round(2)
}

// DebitProcessingFee charges half the credit percentage and half the fixed fee.
func DebitProcessingFee(amount, creditPct, creditFixed decimal.Decimal) decimal.Decimal {
	half := decimal.NewFromFloat(0.5)
	return ProcessingFee(amount, creditPct.Mul(half), creditFixed.Mul(half))
}

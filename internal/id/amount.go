package id

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
)

// AmountPlaces is the fixed precision of coin amounts on chainweb.
const AmountPlaces = 12

// ParseAmount parses a positive decimal amount rounded to AmountPlaces.
func ParseAmount(input string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return decimal.Decimal{}, clierr.New(clierr.CodeValidation, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("invalid amount %q", input), err)
	}
	d = d.Round(AmountPlaces)
	if !d.IsPositive() {
		return decimal.Decimal{}, clierr.New(clierr.CodeValidation, "amount must be greater than zero")
	}
	return d, nil
}

// FormatAmount renders an amount with exactly AmountPlaces fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}

// FormatFiat renders a display value with two fractional digits.
func FormatFiat(d decimal.Decimal) string {
	return d.StringFixed(2)
}

package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money amounts in the ledger are int64 minor units (cents for USD). Decimal
// arithmetic is only used for rates and presentation.

// ErrInvalidCurrency is returned for codes that are not ISO 4217
var ErrInvalidCurrency = errors.New("invalid ISO 4217 currency code")

// NormalizeCurrency validates an ISO 4217 code and returns it lower-cased,
// matching what the payment processor expects on the wire.
func NormalizeCurrency(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return strings.ToLower(unit.String()), nil
}

// MinorUnitScale returns how many decimal places the currency's minor unit has
func MinorUnitScale(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// TaxOn applies a fractional rate (0.0825 for 8.25%) to a minor-unit amount,
// rounding half away from zero to the nearest minor unit.
func TaxOn(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// DecimalString renders a minor-unit amount in major units, e.g. 4999 usd -> "49.99"
func DecimalString(amount int64, code string) string {
	scale := MinorUnitScale(code)
	return decimal.New(amount, -scale).StringFixed(scale)
}

// FormatMinor renders a minor-unit amount for humans, e.g. 4999 usd -> "49.99 USD"
func FormatMinor(amount int64, code string) string {
	return DecimalString(amount, code) + " " + strings.ToUpper(code)
}

// Average returns total/count rounded to a minor unit, zero when count is zero
func Average(total int64, count int64) int64 {
	if count == 0 {
		return 0
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(count)).Round(0).IntPart()
}

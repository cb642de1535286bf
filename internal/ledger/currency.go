package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is used when a request leaves the currency empty.
const DefaultCurrency = "INR"

// NormalizeCurrency validates an ISO 4217 code and returns its canonical form.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

func ValidCurrency(code string) bool {
	_, err := NormalizeCurrency(code)
	return err == nil
}

// Scale returns the number of minor-unit digits of a currency: 2 for INR
// (100 paise), 0 for JPY. Unknown codes fall back to 2.
func Scale(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// ToMinorUnits converts a decimal string like "10.50" to 1050 for INR.
// More fractional digits than the currency allows is an error rather than
// a silent rounding.
func ToMinorUnits(amount string, code string) (int64, error) {
	cur, err := NormalizeCurrency(code)
	if err != nil {
		return 0, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	minor := d.Shift(int32(Scale(cur)))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places for %s", ErrInvalidAmount, amount, Scale(cur), cur)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, amount)
	}
	return minor.IntPart(), nil
}

// FormatAmount converts minor units to a display string. E.g. 1050 INR -> "10.50".
func FormatAmount(amount int64, code string) string {
	scale := int32(Scale(code))
	return decimal.New(amount, -scale).StringFixed(scale)
}

// CheckedAdd adds two minor-unit amounts, reporting overflow.
func CheckedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

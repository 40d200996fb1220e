package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
)

// Scale is the number of decimal places kept for every stored or compared amount
const Scale int32 = 2

// Cent is the smallest representable monetary step
var Cent = decimal.New(1, -Scale)

// Currency is an ISO 4217 currency code
type Currency string

const (
	// ARS is the default reporting currency
	ARS Currency = "ARS"
	// USD is the default secondary currency
	USD Currency = "USD"
)

// String implements fmt.Stringer
func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalizes and validates a 3-letter currency code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", errors.NewValidationError(fmt.Sprintf("invalid currency code %q, should be a 3-letter code", code))
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", errors.NewValidationError(fmt.Sprintf("invalid currency code %q, should be a 3-letter code", code))
		}
	}
	return Currency(code), nil
}

// Pair is the set of currencies the ledger accepts: one reporting currency that
// every movement is aggregated in, plus one secondary currency
type Pair struct {
	Reporting Currency `json:"reporting"`
	Secondary Currency `json:"secondary"`
}

// DefaultPair returns ARS as reporting and USD as secondary currency
func DefaultPair() Pair {
	return Pair{Reporting: ARS, Secondary: USD}
}

// Supports reports whether c is one of the two ledger currencies
func (p Pair) Supports(c Currency) bool {
	return c == p.Reporting || c == p.Secondary
}

// IsReporting reports whether c is the reporting currency
func (p Pair) IsReporting(c Currency) bool {
	return c == p.Reporting
}

// Validate checks that the pair is made of two distinct valid codes
func (p Pair) Validate() error {
	if _, err := ParseCurrency(string(p.Reporting)); err != nil {
		return err
	}
	if _, err := ParseCurrency(string(p.Secondary)); err != nil {
		return err
	}
	if p.Reporting == p.Secondary {
		return errors.NewValidationError("reporting and secondary currencies must differ")
	}
	return nil
}

// Round rounds an amount to Scale decimals, half away from zero
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// ParseAmount parses a decimal string and rounds it to Scale decimals
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.NewValidationError("amount is required")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.NewInvalidInputError(fmt.Sprintf("invalid amount %q", value), err)
	}
	return Round(amount), nil
}

// Format renders an amount with its currency, e.g. "1300.00 ARS"
func Format(amount decimal.Decimal, currency Currency) string {
	return fmt.Sprintf("%s %s", Round(amount).StringFixed(Scale), currency)
}

// WithinTolerance reports whether a and b differ by at most one cent
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Cent)
}

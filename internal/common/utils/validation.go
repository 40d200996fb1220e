package utils

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

var (
	// DateRegex validates ISO 8601 date strings (YYYY-MM-DD)
	DateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ValidateISODate validates an ISO 8601 date string (YYYY-MM-DD)
func ValidateISODate(date string) error {
	if !DateRegex.MatchString(date) {
		return errors.NewValidationError("invalid date format, should be YYYY-MM-DD")
	}

	// Parse the date to ensure it's valid
	_, err := time.Parse("2006-01-02", date)
	if err != nil {
		return errors.NewValidationError("invalid date value")
	}

	return nil
}

// ParseOptionalDate parses an ISO date, returning now when date is empty
func ParseOptionalDate(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return now, nil
	}
	if err := ValidateISODate(date); err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", date)
}

// ValidateCurrency validates a currency code against the ledger pair
func ValidateCurrency(code string, pair money.Pair) (money.Currency, error) {
	currency, err := money.ParseCurrency(code)
	if err != nil {
		return "", err
	}
	if !pair.Supports(currency) {
		return "", errors.NewValidationError("currency " + string(currency) + " is not supported, use " +
			string(pair.Reporting) + " or " + string(pair.Secondary))
	}
	return currency, nil
}

// ValidatePositiveAmount validates that an amount is greater than zero
func ValidatePositiveAmount(amount decimal.Decimal, fieldName string) error {
	if !amount.IsPositive() {
		return errors.NewValidationError(fieldName + " must be greater than zero")
	}
	return nil
}

// ValidateRequiredString validates that a string is not empty
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(fieldName + " is required")
	}
	return nil
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by every ledger component
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeMissingRate         = "MISSING_RATE"
	CodeAccountingOnly      = "ACCOUNTING_ONLY_ACCOUNT"
	CodeCurrencyMismatch    = "CURRENCY_MISMATCH"
)

// Sentinels usable as errors.Is targets; matching is done on Code only.
var (
	ErrValidation          = AppError{Code: CodeValidation}
	ErrNotFound            = AppError{Code: CodeNotFound}
	ErrConflict            = AppError{Code: CodeConflict}
	ErrInsufficientBalance = AppError{Code: CodeInsufficientBalance}
	ErrMissingRate         = AppError{Code: CodeMissingRate}
	ErrAccountingOnly      = AppError{Code: CodeAccountingOnly}
	ErrCurrencyMismatch    = AppError{Code: CodeCurrencyMismatch}
)

// AppError is a custom error type for application errors
type AppError struct {
	Code       string
	Message    string
	StatusCode int // Same rule as HTTP status codes
	Err        error
	Details    map[string]interface{}
}

// Error returns a string representation of the error
func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface
func (e AppError) Is(target error) bool {
	if target, ok := target.(AppError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e AppError) WithDetails(details map[string]interface{}) AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e AppError) WithDetail(key string, value interface{}) AppError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// CodeOf returns the AppError code carried by err, or an empty string
func CodeOf(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// NewValidationError creates a new validation error
func NewValidationError(message string) AppError {
	return AppError{
		Code:       CodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string, err error) AppError {
	return AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) AppError {
	return AppError{
		Code:       CodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) AppError {
	return AppError{
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) AppError {
	return AppError{
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInsufficientBalanceError reports a debit that would overdraw an account
func NewInsufficientBalanceError(message string) AppError {
	return AppError{
		Code:       CodeInsufficientBalance,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewMissingRateError reports a conversion that had no usable exchange rate
func NewMissingRateError(message string) AppError {
	return AppError{
		Code:       CodeMissingRate,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewAccountingOnlyAccountError reports a receivable/payable control account used as a cash source
func NewAccountingOnlyAccountError(message string) AppError {
	return AppError{
		Code:       CodeAccountingOnly,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewCurrencyMismatchError reports accounts or amounts in incompatible currencies
func NewCurrencyMismatchError(message string) AppError {
	return AppError{
		Code:       CodeCurrencyMismatch,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

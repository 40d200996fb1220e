package currency

import (
	"context"
)

// Repository defines the interface for exchange rate storage
type Repository interface {
	// PutRate stores the rate for its date, replacing any previous value
	PutRate(ctx context.Context, rate *ExchangeRate) error

	// GetRate returns the rate recorded for exactly this date, or a NotFound error
	GetRate(ctx context.Context, date string) (*ExchangeRate, error)

	// GetLatestRateOnOrBefore returns the most recent rate whose date is <= date, or a NotFound error
	GetLatestRateOnOrBefore(ctx context.Context, date string) (*ExchangeRate, error)
}

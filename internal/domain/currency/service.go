package currency

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// DefaultFallbackRate is the conservative rate used when no rate has ever been
// recorded. It is deliberately configurable (FALLBACK_EXCHANGE_RATE) and every
// use of it is logged as a degraded-mode warning.
var DefaultFallbackRate = decimal.NewFromInt(1000)

// Config holds the currency settings of the ledger
type Config struct {
	Pair         money.Pair
	FallbackRate decimal.Decimal
}

// Service resolves exchange rates and converts amounts between the ledger currencies
type Service struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new currency conversion service
func NewService(repo Repository, cfg Config, logger *slog.Logger) *Service {
	if cfg.Pair.Reporting == "" || cfg.Pair.Secondary == "" {
		cfg.Pair = money.DefaultPair()
	}
	if !cfg.FallbackRate.IsPositive() {
		cfg.FallbackRate = DefaultFallbackRate
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Pair returns the configured reporting/secondary currencies
func (s *Service) Pair() money.Pair {
	return s.cfg.Pair
}

// FallbackRate returns the constant used when no rate is stored
func (s *Service) FallbackRate() decimal.Decimal {
	return s.cfg.FallbackRate
}

// ResolveRate returns a usable rate for the date. It never fails.
func (s *Service) ResolveRate(ctx context.Context, date time.Time) decimal.Decimal {
	return s.Resolve(ctx, date).Rate
}

// LatestRate returns the rate that applies today
func (s *Service) LatestRate(ctx context.Context) decimal.Decimal {
	return s.ResolveRate(ctx, s.now())
}

// Resolve walks the fallback chain: exact date, then the most recent rate on or
// before the date, then the configured constant
func (s *Service) Resolve(ctx context.Context, date time.Time) *Resolution {
	day := date.UTC().Format(DateLayout)
	resolution := &Resolution{RequestedDate: day}

	rate, err := s.repo.GetRate(ctx, day)
	if err == nil && rate.Rate.IsPositive() {
		resolution.Rate = rate.Rate
		resolution.RateDate = rate.Date
		resolution.Source = SourceExact
		return resolution
	}
	s.logLookupError(day, "exact", err)

	rate, err = s.repo.GetLatestRateOnOrBefore(ctx, day)
	if err == nil && rate.Rate.IsPositive() && rate.Date <= day {
		resolution.Rate = rate.Rate
		resolution.RateDate = rate.Date
		resolution.Source = SourcePrevious
		return resolution
	}
	s.logLookupError(day, "previous", err)

	s.logger.Warn("no exchange rate recorded, using fallback rate",
		"date", day,
		"fallbackRate", s.cfg.FallbackRate.String(),
		"currency", s.cfg.Pair.Secondary,
	)
	resolution.Rate = s.cfg.FallbackRate
	resolution.Source = SourceFallback
	return resolution
}

func (s *Service) logLookupError(day, step string, err error) {
	if err == nil || stderrors.Is(err, errors.ErrNotFound) {
		return
	}
	s.logger.Warn("exchange rate lookup failed, continuing fallback chain",
		"date", day,
		"step", step,
		"error", err,
	)
}

// ToReportingCurrency converts an amount in currency into the reporting currency
func (s *Service) ToReportingCurrency(amount decimal.Decimal, currency money.Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	if err := s.requireSupported(currency); err != nil {
		return decimal.Zero, err
	}
	if s.cfg.Pair.IsReporting(currency) {
		return money.Round(amount), nil
	}
	if rate == nil || !rate.IsPositive() {
		return decimal.Zero, errors.NewMissingRateError(
			fmt.Sprintf("an exchange rate is required to convert %s into %s", currency, s.cfg.Pair.Reporting))
	}
	return money.Round(amount.Mul(*rate)), nil
}

// FromReportingCurrency converts a reporting-currency amount into currency
func (s *Service) FromReportingCurrency(amount decimal.Decimal, currency money.Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	if err := s.requireSupported(currency); err != nil {
		return decimal.Zero, err
	}
	if s.cfg.Pair.IsReporting(currency) {
		return money.Round(amount), nil
	}
	if rate == nil || !rate.IsPositive() {
		return decimal.Zero, errors.NewMissingRateError(
			fmt.Sprintf("an exchange rate is required to convert %s into %s", s.cfg.Pair.Reporting, currency))
	}
	return money.Round(amount.Div(*rate)), nil
}

// Convert moves an amount between the two ledger currencies in either direction
func (s *Service) Convert(amount decimal.Decimal, from, to money.Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	if err := s.requireSupported(from); err != nil {
		return decimal.Zero, err
	}
	if err := s.requireSupported(to); err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return money.Round(amount), nil
	}
	if s.cfg.Pair.IsReporting(to) {
		return s.ToReportingCurrency(amount, from, rate)
	}
	return s.FromReportingCurrency(amount, to, rate)
}

// SetRate records the rate for an ISO date
func (s *Service) SetRate(ctx context.Context, date string, rate decimal.Decimal, source string) (*ExchangeRate, error) {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, errors.NewValidationError("exchange rate date must be in YYYY-MM-DD format")
	}
	if !rate.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("exchange rate must be positive, got %s", rate.String()))
	}
	if source == "" {
		source = "manual"
	}

	exchangeRate := &ExchangeRate{
		Date:      parsed.Format(DateLayout),
		Rate:      rate,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.PutRate(ctx, exchangeRate); err != nil {
		return nil, err
	}

	s.logger.Info("exchange rate recorded", "date", exchangeRate.Date, "rate", rate.String(), "source", source)
	return exchangeRate, nil
}

func (s *Service) requireSupported(currency money.Currency) error {
	if !s.cfg.Pair.Supports(currency) {
		return errors.NewValidationError(fmt.Sprintf("unsupported currency %q, expected %s or %s",
			currency, s.cfg.Pair.Reporting, s.cfg.Pair.Secondary))
	}
	return nil
}

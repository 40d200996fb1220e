package currency_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/memory"
)

func setupService(t *testing.T) (*currency.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return currency.NewService(store, currency.Config{
		Pair:         money.DefaultPair(),
		FallbackRate: decimal.NewFromInt(1000),
	}, logger), store
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(currency.DateLayout, value)
	require.NoError(t, err)
	return parsed
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("exact date wins", func(t *testing.T) {
		// Setup
		service, _ := setupService(t)
		_, err := service.SetRate(ctx, "2024-03-01", decimal.NewFromInt(850), "")
		require.NoError(t, err)
		_, err = service.SetRate(ctx, "2024-03-05", decimal.NewFromInt(870), "")
		require.NoError(t, err)

		// Act
		resolution := service.Resolve(ctx, day(t, "2024-03-05"))

		// Assert
		assert.Equal(t, currency.SourceExact, resolution.Source)
		assert.Equal(t, "2024-03-05", resolution.RateDate)
		assert.True(t, resolution.Rate.Equal(decimal.NewFromInt(870)))
		assert.False(t, resolution.Degraded())
	})

	t.Run("most recent earlier rate when the date has none", func(t *testing.T) {
		// Setup
		service, _ := setupService(t)
		_, err := service.SetRate(ctx, "2024-03-01", decimal.NewFromInt(850), "")
		require.NoError(t, err)
		_, err = service.SetRate(ctx, "2024-03-04", decimal.NewFromInt(860), "")
		require.NoError(t, err)
		_, err = service.SetRate(ctx, "2024-03-09", decimal.NewFromInt(900), "")
		require.NoError(t, err)

		// Act
		resolution := service.Resolve(ctx, day(t, "2024-03-07"))

		// Assert
		assert.Equal(t, currency.SourcePrevious, resolution.Source)
		assert.Equal(t, "2024-03-04", resolution.RateDate)
		assert.Equal(t, "2024-03-07", resolution.RequestedDate)
		assert.True(t, resolution.Rate.Equal(decimal.NewFromInt(860)))
	})

	t.Run("configured constant when nothing is stored", func(t *testing.T) {
		// Setup
		service, _ := setupService(t)

		// Act
		resolution := service.Resolve(ctx, day(t, "2024-03-07"))

		// Assert
		assert.Equal(t, currency.SourceFallback, resolution.Source)
		assert.True(t, resolution.Degraded())
		assert.True(t, resolution.Rate.Equal(decimal.NewFromInt(1000)))
		assert.Empty(t, resolution.RateDate)
	})

	t.Run("rates after the date are never used", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.SetRate(ctx, "2024-04-01", decimal.NewFromInt(950), "")
		require.NoError(t, err)

		rate := service.ResolveRate(ctx, day(t, "2024-03-31"))

		assert.True(t, rate.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("latest rate uses today", func(t *testing.T) {
		service, _ := setupService(t)
		today := time.Now().UTC().Format(currency.DateLayout)
		_, err := service.SetRate(ctx, today, decimal.NewFromInt(1234), "")
		require.NoError(t, err)

		assert.True(t, service.LatestRate(ctx).Equal(decimal.NewFromInt(1234)))
	})

	t.Run("default fallback applies when none is configured", func(t *testing.T) {
		service := currency.NewService(memory.NewStore(), currency.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

		assert.True(t, service.FallbackRate().Equal(currency.DefaultFallbackRate))
		assert.Equal(t, money.DefaultPair(), service.Pair())
	})
}

func TestService_SetRate(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the rate with the default source", func(t *testing.T) {
		// Setup
		service, store := setupService(t)

		// Act
		rate, err := service.SetRate(ctx, "2024-03-01", decimal.RequireFromString("855.5"), "")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "manual", rate.Source)
		stored, err := store.GetRate(ctx, "2024-03-01")
		require.NoError(t, err)
		assert.True(t, stored.Rate.Equal(decimal.RequireFromString("855.5")))
	})

	t.Run("replaces the rate of the same date", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.SetRate(ctx, "2024-03-01", decimal.NewFromInt(850), "bna")
		require.NoError(t, err)
		_, err = service.SetRate(ctx, "2024-03-01", decimal.NewFromInt(851), "bna")
		require.NoError(t, err)

		assert.True(t, service.ResolveRate(ctx, day(t, "2024-03-01")).Equal(decimal.NewFromInt(851)))
	})

	t.Run("rejects a malformed date", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.SetRate(ctx, "01/03/2024", decimal.NewFromInt(850), "")

		assert.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("rejects a non-positive rate", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.SetRate(ctx, "2024-03-01", decimal.Zero, "")

		assert.ErrorIs(t, err, errors.ErrValidation)
	})
}

func TestService_Conversion(t *testing.T) {
	service, _ := setupService(t)
	rate := decimal.NewFromInt(1000)

	t.Run("secondary to reporting multiplies by the rate", func(t *testing.T) {
		amount, err := service.ToReportingCurrency(decimal.NewFromInt(10), money.USD, &rate)

		require.NoError(t, err)
		assert.Equal(t, "10000.00", amount.StringFixed(2))
	})

	t.Run("reporting amounts are only rounded", func(t *testing.T) {
		amount, err := service.ToReportingCurrency(decimal.RequireFromString("12.345"), money.ARS, nil)

		require.NoError(t, err)
		assert.Equal(t, "12.35", amount.StringFixed(2))
	})

	t.Run("secondary currency needs a rate", func(t *testing.T) {
		_, err := service.ToReportingCurrency(decimal.NewFromInt(10), money.USD, nil)

		assert.ErrorIs(t, err, errors.ErrMissingRate)
	})

	t.Run("reporting to secondary divides by the rate", func(t *testing.T) {
		amount, err := service.FromReportingCurrency(decimal.NewFromInt(2500), money.USD, &rate)

		require.NoError(t, err)
		assert.Equal(t, "2.50", amount.StringFixed(2))
	})

	t.Run("convert in both directions", func(t *testing.T) {
		toARS, err := service.Convert(decimal.NewFromInt(3), money.USD, money.ARS, &rate)
		require.NoError(t, err)
		toUSD, err := service.Convert(decimal.NewFromInt(3000), money.ARS, money.USD, &rate)
		require.NoError(t, err)
		same, err := service.Convert(decimal.RequireFromString("7.777"), money.USD, money.USD, nil)
		require.NoError(t, err)

		assert.Equal(t, "3000.00", toARS.StringFixed(2))
		assert.Equal(t, "3.00", toUSD.StringFixed(2))
		assert.Equal(t, "7.78", same.StringFixed(2))
	})

	t.Run("round trip stays within one cent at non-integral rates", func(t *testing.T) {
		rates := []string{"1.37", "333.33", "987.65", "1234.5678"}
		amounts := []string{"0.01", "0.05", "3.33", "99.99", "12345.67"}

		for _, r := range rates {
			for _, a := range amounts {
				// Setup
				rate := decimal.RequireFromString(r)
				amount := decimal.RequireFromString(a)

				// Act
				reporting, err := service.ToReportingCurrency(amount, money.USD, &rate)
				require.NoError(t, err)
				back, err := service.FromReportingCurrency(reporting, money.USD, &rate)
				require.NoError(t, err)

				// Assert
				assert.True(t, money.WithinTolerance(amount, back), "%s USD at %s came back as %s", a, r, back.StringFixed(2))
			}
		}
	})

	t.Run("unsupported currency", func(t *testing.T) {
		_, err := service.Convert(decimal.NewFromInt(1), "EUR", money.ARS, &rate)

		assert.ErrorIs(t, err, errors.ErrValidation)
	})
}

package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	t.Run("rounding is idempotent", func(t *testing.T) {
		values := []string{"0", "0.005", "-0.005", "1.234999", "1300.015", "99999999.999", "-42.4449"}
		for _, v := range values {
			x := decimal.RequireFromString(v)
			once := Round(x)
			assert.True(t, Round(once).Equal(once), "round(round(%s)) != round(%s)", v, v)
		}
	})

	t.Run("half away from zero", func(t *testing.T) {
		assert.Equal(t, "0.01", Round(decimal.RequireFromString("0.005")).StringFixed(2))
		assert.Equal(t, "-0.01", Round(decimal.RequireFromString("-0.005")).StringFixed(2))
		assert.Equal(t, "1300.02", Round(decimal.RequireFromString("1300.015")).StringFixed(2))
	})
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 1300.004 ")
	require.NoError(t, err)
	assert.Equal(t, "1300.00", amount.StringFixed(2))

	_, err = ParseAmount("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")

	_, err = ParseAmount("12,50")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT")
}

func TestPair(t *testing.T) {
	pair := DefaultPair()

	assert.True(t, pair.Supports(ARS))
	assert.True(t, pair.Supports(USD))
	assert.False(t, pair.Supports("EUR"))
	assert.True(t, pair.IsReporting(ARS))
	assert.NoError(t, pair.Validate())

	assert.Error(t, Pair{Reporting: USD, Secondary: USD}.Validate())
	assert.Error(t, Pair{Reporting: "us", Secondary: USD}.Validate())
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	_, err = ParseCurrency("US1")
	assert.Error(t, err)
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.RequireFromString("10000.00")
	assert.True(t, WithinTolerance(a, decimal.RequireFromString("10000.01")))
	assert.False(t, WithinTolerance(a, decimal.RequireFromString("10000.02")))
	assert.Equal(t, "1300.00 ARS", Format(decimal.NewFromInt(1300), ARS))
}

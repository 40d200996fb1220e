package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss hands out a generation token", func(t *testing.T) {
		c := NewBalanceCache(NewMemoryLayer("test"), 0)

		_, token, ok, err := c.Get(ctx, "acc-1")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.NotEmpty(t, token)
	})

	t.Run("set under current token is returned", func(t *testing.T) {
		// Setup
		c := NewBalanceCache(NewMemoryLayer("test"), 0)
		_, token, _, err := c.Get(ctx, "acc-1")
		require.NoError(t, err)

		// Act
		require.NoError(t, c.Set(ctx, "acc-1", token, decimal.RequireFromString("1300.00")))
		value, again, ok, err := c.Get(ctx, "acc-1")

		// Assert
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, token, again)
		assert.True(t, value.Equal(decimal.RequireFromString("1300")))
	})

	t.Run("invalidate drops the value and changes the token", func(t *testing.T) {
		c := NewBalanceCache(NewMemoryLayer("test"), 0)
		_, token, _, _ := c.Get(ctx, "acc-1")
		require.NoError(t, c.Set(ctx, "acc-1", token, decimal.NewFromInt(10)))

		require.NoError(t, c.Invalidate(ctx, "acc-1"))
		_, next, ok, err := c.Get(ctx, "acc-1")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.NotEqual(t, token, next)
	})

	t.Run("set with a token older than the last invalidate is never read", func(t *testing.T) {
		// Setup: a computation observes the token, then a write invalidates
		c := NewBalanceCache(NewMemoryLayer("test"), 0)
		_, stale, _, _ := c.Get(ctx, "acc-1")
		require.NoError(t, c.Invalidate(ctx, "acc-1"))

		// Act: the slow computation stores its now stale result
		require.NoError(t, c.Set(ctx, "acc-1", stale, decimal.NewFromInt(999)))
		_, _, ok, err := c.Get(ctx, "acc-1")

		// Assert
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("accounts are independent", func(t *testing.T) {
		c := NewBalanceCache(NewMemoryLayer("test"), 0)
		_, tokenA, _, _ := c.Get(ctx, "acc-a")
		_, tokenB, _, _ := c.Get(ctx, "acc-b")
		require.NoError(t, c.Set(ctx, "acc-a", tokenA, decimal.NewFromInt(1)))
		require.NoError(t, c.Set(ctx, "acc-b", tokenB, decimal.NewFromInt(2)))

		require.NoError(t, c.Invalidate(ctx, "acc-a"))

		_, _, okA, _ := c.Get(ctx, "acc-a")
		valueB, _, okB, _ := c.Get(ctx, "acc-b")
		assert.False(t, okA)
		assert.True(t, okB)
		assert.True(t, valueB.Equal(decimal.NewFromInt(2)))
	})

	t.Run("empty token is ignored", func(t *testing.T) {
		layer := NewMemoryLayer("test")
		c := NewBalanceCache(layer, 0)

		require.NoError(t, c.Set(ctx, "acc-1", "", decimal.NewFromInt(5)))

		assert.Equal(t, 0, layer.Len())
	})

	t.Run("values expire with ttl", func(t *testing.T) {
		layer := NewMemoryLayer("test")
		now := time.Now()
		layer.now = func() time.Time { return now }
		c := NewBalanceCache(layer, time.Minute)
		_, token, _, _ := c.Get(ctx, "acc-1")
		require.NoError(t, c.Set(ctx, "acc-1", token, decimal.NewFromInt(5)))

		now = now.Add(2 * time.Minute)
		_, sameToken, ok, err := c.Get(ctx, "acc-1")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, token, sameToken)
	})
}

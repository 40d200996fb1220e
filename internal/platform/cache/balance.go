package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
)

// BalanceCache implements balance.Cache on top of any Layer.
//
// Each account has a generation key (balance:gen:<id>) and the balance is
// stored under balance:<id>:<generation>. Invalidate swaps the generation, so a
// Set carrying the previous generation lands on a key nobody reads anymore.
type BalanceCache struct {
	layer Layer
	ttl   time.Duration
}

var _ balance.Cache = (*BalanceCache)(nil)

// NewBalanceCache creates a balance cache; a zero ttl keeps values until invalidated
func NewBalanceCache(layer Layer, ttl time.Duration) *BalanceCache {
	return &BalanceCache{layer: layer, ttl: ttl}
}

func generationKey(accountID string) string {
	return "balance:gen:" + accountID
}

func valueKey(accountID, generation string) string {
	return fmt.Sprintf("balance:%s:%s", accountID, generation)
}

// Get implements balance.Cache
func (c *BalanceCache) Get(ctx context.Context, accountID string) (decimal.Decimal, string, bool, error) {
	generation, err := c.generation(ctx, accountID)
	if err != nil {
		return decimal.Zero, "", false, err
	}

	raw, err := c.layer.Get(ctx, valueKey(accountID, generation))
	if err != nil {
		if IsNotFound(err) {
			return decimal.Zero, generation, false, nil
		}
		return decimal.Zero, "", false, err
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		// Unreadable entry: report a miss so the caller recomputes and overwrites it
		return decimal.Zero, generation, false, nil
	}
	return value, generation, true, nil
}

// Set implements balance.Cache
func (c *BalanceCache) Set(ctx context.Context, accountID, token string, value decimal.Decimal) error {
	if token == "" {
		return nil
	}
	return c.layer.Set(ctx, valueKey(accountID, token), value.String(), c.ttl)
}

// Invalidate implements balance.Cache
func (c *BalanceCache) Invalidate(ctx context.Context, accountID string) error {
	previous, err := c.layer.Get(ctx, generationKey(accountID))
	if err != nil && !IsNotFound(err) {
		return err
	}

	if err := c.layer.Set(ctx, generationKey(accountID), uuid.NewString(), 0); err != nil {
		return err
	}

	if previous != "" {
		// The old value is unreachable now; dropping it only frees space
		_ = c.layer.Delete(ctx, valueKey(accountID, previous))
	}
	return nil
}

// generation returns the current generation of the account, starting one if none exists
func (c *BalanceCache) generation(ctx context.Context, accountID string) (string, error) {
	generation, err := c.layer.Get(ctx, generationKey(accountID))
	if err == nil {
		return generation, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	generation = uuid.NewString()
	if err := c.layer.Set(ctx, generationKey(accountID), generation, 0); err != nil {
		return "", err
	}
	return generation, nil
}

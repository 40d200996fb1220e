package balance

import (
	"context"

	"github.com/shopspring/decimal"
)

// Cache memoizes derived account balances. It is an optimization only: a miss
// or an error always falls back to recomputing from the ledger.
//
// Get hands out a generation token alongside the value. Set must be given the
// token observed before the balance was computed, so that a computation racing
// an Invalidate can never store a stale balance under the current generation.
type Cache interface {
	// Get returns the memoized balance, the current generation token and whether a value was found
	Get(ctx context.Context, accountID string) (balance decimal.Decimal, token string, ok bool, err error)

	// Set memoizes a balance computed under the given generation token
	Set(ctx context.Context, accountID, token string, balance decimal.Decimal) error

	// Invalidate starts a new generation for the account, dropping its memoized balance
	Invalidate(ctx context.Context, accountID string) error
}

// NopCache never memoizes anything
type NopCache struct{}

// Get always misses
func (NopCache) Get(context.Context, string) (decimal.Decimal, string, bool, error) {
	return decimal.Zero, "", false, nil
}

// Set does nothing
func (NopCache) Set(context.Context, string, string, decimal.Decimal) error { return nil }

// Invalidate does nothing
func (NopCache) Invalidate(context.Context, string) error { return nil }

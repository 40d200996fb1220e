package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// Store is an in-memory implementation of every ledger repository.
// It is safe for concurrent use; data is lost on restart, so it backs local
// runs and tests only.
type Store struct {
	mu sync.RWMutex

	accounts    map[string]*account.FinancialAccount
	categories  map[string]*account.Category
	rates       map[string]*currency.ExchangeRate
	movements   map[string]*ledger.Movement
	byAccount   map[string][]string
	idempotency map[string]string
	payables    map[string]*settlement.Payable
	commissions map[string]*commission.Commission
}

// NewStore creates a new empty in-memory store
func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]*account.FinancialAccount),
		categories:  make(map[string]*account.Category),
		rates:       make(map[string]*currency.ExchangeRate),
		movements:   make(map[string]*ledger.Movement),
		byAccount:   make(map[string][]string),
		idempotency: make(map[string]string),
		payables:    make(map[string]*settlement.Payable),
		commissions: make(map[string]*commission.Commission),
	}
}

var (
	_ account.Repository    = (*Store)(nil)
	_ currency.Repository   = (*Store)(nil)
	_ ledger.Repository     = (*Store)(nil)
	_ settlement.Repository = (*Store)(nil)
	_ commission.Repository = (*Store)(nil)
)

// CreateAccount implements account.Repository
func (s *Store) CreateAccount(ctx context.Context, acc *account.FinancialAccount) (*account.FinancialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.AccountID]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("account %s already exists", acc.AccountID))
	}
	accCopy := *acc
	s.accounts[acc.AccountID] = &accCopy
	return acc, nil
}

// GetAccount implements account.Repository
func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.FinancialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, exists := s.accounts[accountID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("account %s not found", accountID))
	}
	accCopy := *acc
	return &accCopy, nil
}

// ListAccounts implements account.Repository
func (s *Store) ListAccounts(ctx context.Context, filter *account.ListAccountsFilter) ([]*account.FinancialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.FinancialAccount, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if !filter.Matches(acc) {
			continue
		}
		accCopy := *acc
		result = append(result, &accCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

// UpdateAccount implements account.Repository
func (s *Store) UpdateAccount(ctx context.Context, acc *account.FinancialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.accounts[acc.AccountID]
	if !exists {
		return errors.NewNotFoundError(fmt.Sprintf("account %s not found", acc.AccountID))
	}
	accCopy := *acc
	// Currency and opening balance are fixed at creation
	accCopy.Currency = existing.Currency
	accCopy.OpeningBalance = existing.OpeningBalance
	s.accounts[acc.AccountID] = &accCopy
	return nil
}

// CreateCategory implements account.Repository
func (s *Store) CreateCategory(ctx context.Context, category *account.Category) (*account.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.CategoryID]; exists {
		return nil, errors.NewConflictError(fmt.Sprintf("category %s already exists", category.CategoryID))
	}
	categoryCopy := *category
	s.categories[category.CategoryID] = &categoryCopy
	return category, nil
}

// GetCategory implements account.Repository
func (s *Store) GetCategory(ctx context.Context, categoryID string) (*account.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[categoryID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("category %s not found", categoryID))
	}
	categoryCopy := *category
	return &categoryCopy, nil
}

// PutRate implements currency.Repository
func (s *Store) PutRate(ctx context.Context, rate *currency.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rateCopy := *rate
	s.rates[rate.Date] = &rateCopy
	return nil
}

// GetRate implements currency.Repository
func (s *Store) GetRate(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, exists := s.rates[date]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no exchange rate for %s", date))
	}
	rateCopy := *rate
	return &rateCopy, nil
}

// GetLatestRateOnOrBefore implements currency.Repository
func (s *Store) GetLatestRateOnOrBefore(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *currency.ExchangeRate
	for day, rate := range s.rates {
		// ISO dates compare correctly as strings
		if day > date {
			continue
		}
		if best == nil || day > best.Date {
			best = rate
		}
	}
	if best == nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no exchange rate on or before %s", date))
	}
	rateCopy := *best
	return &rateCopy, nil
}

package account

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// IsAccountingOnly reports whether the account is a receivable/payable control
// account that must never be used as a real source of money
func (s *Service) IsAccountingOnly(ctx context.Context, accountID string) (bool, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return s.Classify(ctx, acc)
}

// Classify applies the accounting-only rule to an already loaded account.
// The chart-of-accounts link wins; the account kind is only consulted when the
// account has no category.
func (s *Service) Classify(ctx context.Context, acc *FinancialAccount) (bool, error) {
	if acc.CategoryID == "" {
		return acc.Kind == Receivable || acc.Kind == Payable, nil
	}

	category, err := s.repo.GetCategory(ctx, acc.CategoryID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			// Dangling link: fall back to the kind rather than trusting a missing row
			s.logger.Warn("account references a missing category", "accountId", acc.AccountID, "categoryId", acc.CategoryID)
			return acc.Kind == Receivable || acc.Kind == Payable, nil
		}
		return false, err
	}
	return category.Control == ReceivableControl || category.Control == PayableControl, nil
}

// RequireFundingAccount returns the account if it may be used as a real money
// source: it exists, is active and is not accounting-only
func (s *Service) RequireFundingAccount(ctx context.Context, accountID string) (*FinancialAccount, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, errors.NewValidationError(fmt.Sprintf("account %s (%s) is inactive", acc.AccountID, acc.Name))
	}

	accountingOnly, err := s.Classify(ctx, acc)
	if err != nil {
		return nil, err
	}
	if accountingOnly {
		return nil, errors.NewAccountingOnlyAccountError(
			fmt.Sprintf("account %s (%s) is a receivable/payable control account and cannot be used as a funding source",
				acc.AccountID, acc.Name)).
			WithDetail("accountId", acc.AccountID)
	}
	return acc, nil
}

// ListFundingAccounts lists the active accounts that can fund payments,
// optionally restricted to one currency
func (s *Service) ListFundingAccounts(ctx context.Context, currency money.Currency) ([]*FinancialAccount, error) {
	accounts, err := s.repo.ListAccounts(ctx, &ListAccountsFilter{Currency: currency})
	if err != nil {
		return nil, err
	}

	funding := make([]*FinancialAccount, 0, len(accounts))
	for _, acc := range accounts {
		accountingOnly, err := s.Classify(ctx, acc)
		if err != nil {
			return nil, err
		}
		if !accountingOnly {
			funding = append(funding, acc)
		}
	}
	return funding, nil
}

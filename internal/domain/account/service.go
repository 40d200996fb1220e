package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Service provides financial account business logic
type Service struct {
	repo   Repository
	pair   money.Pair
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new account service
func NewService(repo Repository, pair money.Pair, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		pair:   pair,
		logger: logger,
		now:    time.Now,
	}
}

// CreateAccount creates a new financial account
func (s *Service) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*FinancialAccount, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidationError("account name is required")
	}
	if !req.Kind.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid account kind %q", req.Kind))
	}
	if !s.pair.Supports(req.Currency) {
		return nil, errors.NewValidationError(fmt.Sprintf("account currency must be %s or %s, got %q",
			s.pair.Reporting, s.pair.Secondary, req.Currency))
	}

	// Verify the chart-of-accounts link
	if req.CategoryID != "" {
		if _, err := s.repo.GetCategory(ctx, req.CategoryID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	acc := &FinancialAccount{
		AccountID:      req.AccountID,
		Name:           strings.TrimSpace(req.Name),
		Kind:           req.Kind,
		Currency:       req.Currency,
		OpeningBalance: money.Round(req.OpeningBalance),
		Active:         true,
		CategoryID:     req.CategoryID,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      req.CreatedBy,
	}
	if acc.AccountID == "" {
		acc.AccountID = ulid.Make().String()
	}

	created, err := s.repo.CreateAccount(ctx, acc)
	if err != nil {
		return nil, err
	}

	s.logger.Info("financial account created",
		"accountId", created.AccountID,
		"kind", created.Kind,
		"currency", created.Currency,
		"openingBalance", created.OpeningBalance.StringFixed(money.Scale),
	)
	return created, nil
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, accountID string) (*FinancialAccount, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.NewValidationError("account ID is required")
	}
	return s.repo.GetAccount(ctx, accountID)
}

// ListAccounts retrieves accounts matching the filter
func (s *Service) ListAccounts(ctx context.Context, filter *ListAccountsFilter) ([]*FinancialAccount, error) {
	return s.repo.ListAccounts(ctx, filter)
}

// RenameAccount changes the display name of an account
func (s *Service) RenameAccount(ctx context.Context, accountID, name string) (*FinancialAccount, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewValidationError("account name is required")
	}
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	acc.Name = strings.TrimSpace(name)
	acc.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// DeactivateAccount soft-deactivates an account. Movements keep referencing it.
func (s *Service) DeactivateAccount(ctx context.Context, accountID string) (*FinancialAccount, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return acc, nil
	}

	acc.Active = false
	acc.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}

	s.logger.Info("financial account deactivated", "accountId", acc.AccountID)
	return acc, nil
}

// CreateCategory creates a chart-of-accounts category
func (s *Service) CreateCategory(ctx context.Context, req *CreateCategoryRequest) (*Category, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, errors.NewValidationError("category code is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidationError("category name is required")
	}
	if !req.Type.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid category type %q", req.Type))
	}
	switch req.Control {
	case NoControl, ReceivableControl, PayableControl:
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("invalid category control %q", req.Control))
	}

	category := &Category{
		CategoryID: req.CategoryID,
		Code:       strings.TrimSpace(req.Code),
		Name:       strings.TrimSpace(req.Name),
		Type:       req.Type,
		Control:    req.Control,
		CreatedAt:  s.now().UTC(),
	}
	if category.CategoryID == "" {
		category.CategoryID = ulid.Make().String()
	}

	return s.repo.CreateCategory(ctx, category)
}

// GetCategory retrieves a category by ID
func (s *Service) GetCategory(ctx context.Context, categoryID string) (*Category, error) {
	return s.repo.GetCategory(ctx, categoryID)
}

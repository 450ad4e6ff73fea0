package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service posts balanced entry sets and derives account balances
type Service struct {
	repo Repository
}

// NewService creates a ledger service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// PostEntries validates that the set is balanced and appends it. Must be
// called inside an active transaction; the repository rejects bare writes.
func (s *Service) PostEntries(ctx context.Context, entries []*Entry) error {
	if err := ValidateBalanced(entries); err != nil {
		return err
	}
	if err := s.repo.CreateAll(ctx, entries); err != nil {
		return fmt.Errorf("failed to post ledger entries: %w", err)
	}
	return nil
}

// AccountBalance returns the derived balance for an account
func (s *Service) AccountBalance(ctx context.Context, ledgerType LedgerType, accountRef string) (decimal.Decimal, error) {
	return s.repo.AccountBalance(ctx, ledgerType, accountRef)
}

// EntriesByAccount lists recent entries for an account
func (s *Service) EntriesByAccount(ctx context.Context, ledgerType LedgerType, accountRef string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.FindByAccount(ctx, ledgerType, accountRef, limit)
}

// EntriesByExternalRef lists the set posted under one external reference
func (s *Service) EntriesByExternalRef(ctx context.Context, externalRef string) ([]Entry, error) {
	return s.repo.FindByExternalRef(ctx, externalRef)
}

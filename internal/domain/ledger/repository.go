package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository persists ledger entries. Implementations must refuse writes
// outside an ambient transaction and rely on the unique idempotency-key
// index to reject double posting.
type Repository interface {
	// CreateAll inserts the entries; returns shared.ErrConflict when any
	// entry's idempotency key was already posted
	CreateAll(ctx context.Context, entries []*Entry) error
	// AccountBalance derives sum(credits) - sum(debits) for an account.
	// Balances are never stored counters.
	AccountBalance(ctx context.Context, ledgerType LedgerType, accountRef string) (decimal.Decimal, error)
	// FindByAccount returns entries for an account, newest first
	FindByAccount(ctx context.Context, ledgerType LedgerType, accountRef string, limit int) ([]Entry, error)
	// FindByExternalRef returns the balanced set posted under one reference
	FindByExternalRef(ctx context.Context, externalRef string) ([]Entry, error)
}

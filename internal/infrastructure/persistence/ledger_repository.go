package persistence

import (
	"context"
	"errors"

	"github.com/invest/backend/internal/domain/ledger"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormLedgerRepository implements ledger.Repository using GORM
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// CreateAll appends the entries. Writes are refused outside an ambient
// transaction: ledger postings must commit with the mutation they belong to.
func (r *GormLedgerRepository) CreateAll(ctx context.Context, entries []*ledger.Entry) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return shared.NewDomainError(shared.CodeInvalidInput, "Ledger entries must be posted inside a transaction")
	}
	if err := tx.Create(entries).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError(shared.CodeConflict, "A ledger entry with this idempotency key was already posted")
		}
		return err
	}
	return nil
}

func (r *GormLedgerRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// AccountBalance derives sum(credits) - sum(debits) for the account
func (r *GormLedgerRepository) AccountBalance(ctx context.Context, ledgerType ledger.LedgerType, accountRef string) (decimal.Decimal, error) {
	var raw *string
	err := r.conn(ctx).
		Model(&ledger.Entry{}).
		Select("SUM(CASE WHEN direction = ? THEN amount ELSE -amount END)", ledger.DirectionCredit).
		Where("ledger_type = ? AND account_ref = ?", ledgerType, accountRef).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// FindByAccount returns entries for an account, newest first
func (r *GormLedgerRepository) FindByAccount(ctx context.Context, ledgerType ledger.LedgerType, accountRef string, limit int) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	if err := r.conn(ctx).
		Where("ledger_type = ? AND account_ref = ?", ledgerType, accountRef).
		Order("posted_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByExternalRef returns the set posted under one external reference
func (r *GormLedgerRepository) FindByExternalRef(ctx context.Context, externalRef string) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	if err := r.conn(ctx).
		Where("external_ref = ?", externalRef).
		Order("posted_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

var _ ledger.Repository = (*GormLedgerRepository)(nil)

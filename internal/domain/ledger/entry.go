package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Direction of a ledger entry
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// IsValid returns true for a known direction
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// LedgerType partitions entries into independent books
type LedgerType string

const (
	LedgerEscrow LedgerType = "escrow"
	LedgerPayout LedgerType = "payout"
	LedgerFee    LedgerType = "fee"
)

// Entry is an immutable record of value movement on one account. Entries are
// never updated or deleted; corrections are new offsetting entries.
type Entry struct {
	ID             uuid.UUID            `gorm:"type:uuid;primary_key"`
	LedgerType     LedgerType           `gorm:"type:varchar(30);not null;index"`
	AccountRef     string               `gorm:"type:varchar(100);not null;index"`
	Direction      Direction            `gorm:"type:varchar(10);not null"`
	Amount         decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency       valueobject.Currency `gorm:"type:varchar(3);not null"`
	EntityType     string               `gorm:"type:varchar(30);not null"`
	EntityID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	ExternalRef    string               `gorm:"type:varchar(100);not null;index"`
	IdempotencyKey string               `gorm:"type:varchar(160);not null;uniqueIndex"`
	PostedAt       time.Time            `gorm:"not null"`
	Metadata       string               `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (Entry) TableName() string {
	return "ledger_entries"
}

// NewEntry creates a validated ledger entry
func NewEntry(
	ledgerType LedgerType,
	accountRef string,
	direction Direction,
	amount valueobject.Money,
	entityType string,
	entityID uuid.UUID,
	externalRef string,
	idempotencyKey string,
) (*Entry, error) {
	if accountRef == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account reference cannot be empty")
	}
	if !direction.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Direction must be CREDIT or DEBIT")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Entry amount must be positive")
	}
	if externalRef == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "External reference cannot be empty")
	}
	if idempotencyKey == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Idempotency key cannot be empty")
	}

	return &Entry{
		ID:             uuid.New(),
		LedgerType:     ledgerType,
		AccountRef:     accountRef,
		Direction:      direction,
		Amount:         amount.Amount(),
		Currency:       amount.Currency(),
		EntityType:     entityType,
		EntityID:       entityID,
		ExternalRef:    externalRef,
		IdempotencyKey: idempotencyKey,
		PostedAt:       time.Now(),
	}, nil
}

// ValidateBalanced checks that, per currency, debit and credit totals of the
// set are equal. Entries posted together share one external reference.
func ValidateBalanced(entries []*Entry) error {
	if len(entries) == 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Entry set cannot be empty")
	}

	externalRef := entries[0].ExternalRef
	net := make(map[valueobject.Currency]decimal.Decimal)
	for _, e := range entries {
		if e.ExternalRef != externalRef {
			return shared.NewDomainError(shared.CodeInvalidInput, "All entries in a set must share one external reference")
		}
		switch e.Direction {
		case DirectionCredit:
			net[e.Currency] = net[e.Currency].Add(e.Amount)
		case DirectionDebit:
			net[e.Currency] = net[e.Currency].Sub(e.Amount)
		default:
			return shared.NewDomainError(shared.CodeInvalidInput, "Direction must be CREDIT or DEBIT")
		}
	}

	for currency, sum := range net {
		if !sum.IsZero() {
			return shared.NewDomainError(
				shared.CodeInvalidInput,
				"Unbalanced entry set for currency "+string(currency)+": credits minus debits is "+sum.String(),
			)
		}
	}
	return nil
}

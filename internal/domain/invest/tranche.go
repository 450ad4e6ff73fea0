package invest

import (
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/shopspring/decimal"
)

// Tranche is a slice of offering funds released against a milestone
type Tranche struct {
	shared.BaseAggregateRoot
	Reference   string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	OfferingID  uuid.UUID            `gorm:"type:uuid;not null;index"`
	MilestoneID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency    valueobject.Currency `gorm:"type:varchar(3);not null"`
	State       statemachine.State   `gorm:"type:varchar(30);not null;index"`
	ReleasedAt  *time.Time
}

// TableName returns the table name for GORM
func (Tranche) TableName() string {
	return "tranches"
}

// NewTranche creates a locked tranche
func NewTranche(reference string, offeringID, milestoneID uuid.UUID, amount valueobject.Money) (*Tranche, error) {
	if reference == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Tranche reference cannot be empty")
	}
	if offeringID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Offering ID cannot be empty")
	}
	if milestoneID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Milestone ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Tranche amount must be positive")
	}
	return &Tranche{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Reference:         reference,
		OfferingID:        offeringID,
		MilestoneID:       milestoneID,
		Amount:            amount.Amount(),
		Currency:          amount.Currency(),
		State:             statemachine.TrancheLocked,
	}, nil
}

// AmountMoney returns the tranche amount as Money
func (t *Tranche) AmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(t.Amount, t.Currency)
	return m
}

// PayoutAccountRef is the ledger account receiving released funds
func (t *Tranche) PayoutAccountRef() string {
	return "payout:" + t.Reference
}

// MoveTo records a transition already asserted against the registry
func (t *Tranche) MoveTo(state statemachine.State) {
	now := time.Now()
	t.State = state
	if state == statemachine.TrancheReleased {
		t.ReleasedAt = &now
	}
	t.UpdatedAt = now
	t.IncrementVersion()
}

package invest

import (
	"time"

	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/shopspring/decimal"
)

// Offering is an investment offering subscribers commit into
type Offering struct {
	shared.BaseAggregateRoot
	Reference    string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string               `gorm:"type:varchar(200);not null"`
	TargetAmount decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency     valueobject.Currency `gorm:"type:varchar(3);not null"`
	State        statemachine.State   `gorm:"type:varchar(30);not null;index"`
	OpenedAt     *time.Time
	ClosedAt     *time.Time
}

// TableName returns the table name for GORM
func (Offering) TableName() string {
	return "offerings"
}

// NewOffering creates a draft offering
func NewOffering(reference, name string, target valueobject.Money) (*Offering, error) {
	if reference == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Offering reference cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Offering name cannot be empty")
	}
	if !target.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Target amount must be positive")
	}
	return &Offering{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Reference:         reference,
		Name:              name,
		TargetAmount:      target.Amount(),
		Currency:          target.Currency(),
		State:             statemachine.OfferingDraft,
	}, nil
}

// EscrowAccountRef is the ledger account holding this offering's escrow funds
func (o *Offering) EscrowAccountRef() string {
	return "escrow:" + o.Reference
}

// MoveTo records a transition already asserted against the registry
func (o *Offering) MoveTo(state statemachine.State) {
	now := time.Now()
	o.State = state
	switch state {
	case statemachine.OfferingOpen:
		if o.OpenedAt == nil {
			o.OpenedAt = &now
		}
	case statemachine.OfferingClosed:
		o.ClosedAt = &now
	}
	o.UpdatedAt = now
	o.IncrementVersion()
}

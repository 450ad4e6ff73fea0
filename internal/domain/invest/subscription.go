package invest

import (
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/shopspring/decimal"
)

// Subscription is an investor's commitment into an offering
type Subscription struct {
	shared.BaseAggregateRoot
	Reference  string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	OfferingID uuid.UUID            `gorm:"type:uuid;not null;index"`
	InvestorID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency   valueobject.Currency `gorm:"type:varchar(3);not null"`
	State      statemachine.State   `gorm:"type:varchar(30);not null;index"`
	PaidAt     *time.Time
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription creates a draft subscription
func NewSubscription(reference string, offeringID, investorID uuid.UUID, amount valueobject.Money) (*Subscription, error) {
	if reference == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Subscription reference cannot be empty")
	}
	if offeringID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Offering ID cannot be empty")
	}
	if investorID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Investor ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Subscription amount must be positive")
	}
	return &Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Reference:         reference,
		OfferingID:        offeringID,
		InvestorID:        investorID,
		Amount:            amount.Amount(),
		Currency:          amount.Currency(),
		State:             statemachine.SubscriptionDraft,
	}, nil
}

// AmountMoney returns the committed amount as Money
func (s *Subscription) AmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(s.Amount, s.Currency)
	return m
}

// ReceivableAccountRef is the ledger account tracking expected payment
func (s *Subscription) ReceivableAccountRef() string {
	return "receivable:" + s.Reference
}

// MoveTo records a transition already asserted against the registry
func (s *Subscription) MoveTo(state statemachine.State) {
	now := time.Now()
	s.State = state
	if state == statemachine.SubscriptionPaid {
		s.PaidAt = &now
	}
	s.UpdatedAt = now
	s.IncrementVersion()
}

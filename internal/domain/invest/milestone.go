package invest

import (
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
)

// Milestone gates tranche releases on verified progress
type Milestone struct {
	shared.BaseAggregateRoot
	OfferingID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Title      string             `gorm:"type:varchar(200);not null"`
	State      statemachine.State `gorm:"type:varchar(30);not null;index"`
	VerifiedAt *time.Time
}

// TableName returns the table name for GORM
func (Milestone) TableName() string {
	return "milestones"
}

// NewMilestone creates a milestone in its initial state
func NewMilestone(offeringID uuid.UUID, title string) (*Milestone, error) {
	if offeringID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Offering ID cannot be empty")
	}
	if title == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Milestone title cannot be empty")
	}
	return &Milestone{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OfferingID:        offeringID,
		Title:             title,
		State:             statemachine.MilestoneNotStarted,
	}, nil
}

// IsVerified reports whether the milestone reached its verified state
func (m *Milestone) IsVerified() bool {
	return m.State == statemachine.MilestoneVerified
}

// MoveTo records a transition already asserted against the registry
func (m *Milestone) MoveTo(state statemachine.State) {
	now := time.Now()
	m.State = state
	if state == statemachine.MilestoneVerified {
		m.VerifiedAt = &now
	}
	m.UpdatedAt = now
	m.IncrementVersion()
}

package invest

import (
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
)

// Application is an investment application moving through review
type Application struct {
	shared.BaseAggregateRoot
	Reference   string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	ApplicantID uuid.UUID          `gorm:"type:uuid;not null;index"`
	State       statemachine.State `gorm:"type:varchar(30);not null;index"`
	SubmittedAt *time.Time
	DecidedAt   *time.Time
}

// TableName returns the table name for GORM
func (Application) TableName() string {
	return "applications"
}

// NewApplication creates a draft application
func NewApplication(reference string, applicantID uuid.UUID) (*Application, error) {
	if reference == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Application reference cannot be empty")
	}
	if applicantID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Applicant ID cannot be empty")
	}
	return &Application{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Reference:         reference,
		ApplicantID:       applicantID,
		State:             statemachine.ApplicationDraft,
	}, nil
}

// MoveTo records a transition already asserted against the registry
func (a *Application) MoveTo(state statemachine.State) {
	now := time.Now()
	a.State = state
	switch state {
	case statemachine.ApplicationSubmitted:
		a.SubmittedAt = &now
	case statemachine.ApplicationApproved, statemachine.ApplicationRejected, statemachine.ApplicationWithdrawn:
		a.DecidedAt = &now
	}
	a.UpdatedAt = now
	a.IncrementVersion()
}

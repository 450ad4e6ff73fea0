package dto

import (
	"time"

	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ParseMoney builds a Money value from request fields. An empty currency
// defaults to USD.
func ParseMoney(amount, currency string) (valueobject.Money, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return valueobject.Money{}, shared.NewDomainError(shared.CodeInvalidInput, "Amount must be a decimal number")
	}
	if currency == "" {
		currency = string(valueobject.USD)
	}
	return valueobject.NewMoney(value, valueobject.Currency(currency))
}

// CreateApplicationRequest opens a draft application
type CreateApplicationRequest struct {
	Reference   string `json:"reference" binding:"required,max=50"`
	ApplicantID string `json:"applicant_id" binding:"required,uuid"`
}

// TransitionRequest carries the optional note shared by plain transitions
type TransitionRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// ApproveApplicationRequest carries the approval review checklist
type ApproveApplicationRequest struct {
	TasksComplete           bool   `json:"tasks_complete"`
	EvidenceVerified        bool   `json:"evidence_verified"`
	LegalChecklistSatisfied bool   `json:"legal_checklist_satisfied"`
	Notes                   string `json:"notes" binding:"max=2000"`
}

// CreateOfferingRequest opens a draft offering
type CreateOfferingRequest struct {
	Reference    string `json:"reference" binding:"required,max=50"`
	Name         string `json:"name" binding:"required,max=200"`
	TargetAmount string `json:"target_amount" binding:"required"`
	Currency     string `json:"currency" binding:"omitempty,len=3"`
}

// OpenOfferingRequest carries the review outcome for opening
type OpenOfferingRequest struct {
	ReviewApproved bool   `json:"review_approved"`
	Notes          string `json:"notes" binding:"max=2000"`
}

// CloseOfferingRequest closes the subscription window with the final
// allocation to anchor
type CloseOfferingRequest struct {
	Allocation map[string]any `json:"allocation" binding:"required"`
	Notes      string         `json:"notes" binding:"max=2000"`
}

// CreateSubscriptionRequest opens a draft subscription
type CreateSubscriptionRequest struct {
	Reference  string `json:"reference" binding:"required,max=50"`
	OfferingID string `json:"offering_id" binding:"required,uuid"`
	InvestorID string `json:"investor_id" binding:"required,uuid"`
	Amount     string `json:"amount" binding:"required"`
	Currency   string `json:"currency" binding:"omitempty,len=3"`
}

// MarkPaidRequest settles a pending payment
type MarkPaidRequest struct {
	PaymentReceived bool   `json:"payment_received"`
	Notes           string `json:"notes" binding:"max=2000"`
}

// CreateMilestoneRequest registers a milestone for an offering
type CreateMilestoneRequest struct {
	OfferingID string `json:"offering_id" binding:"required,uuid"`
	Title      string `json:"title" binding:"required,max=200"`
}

// VerifyMilestoneRequest carries the verification review outcome
type VerifyMilestoneRequest struct {
	ReviewItemsComplete bool   `json:"review_items_complete"`
	Notes               string `json:"notes" binding:"max=2000"`
}

// CreateTrancheRequest registers a locked tranche
type CreateTrancheRequest struct {
	Reference   string `json:"reference" binding:"required,max=50"`
	OfferingID  string `json:"offering_id" binding:"required,uuid"`
	MilestoneID string `json:"milestone_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"omitempty,len=3"`
}

// ReleaseTrancheRequest carries the payout approval
type ReleaseTrancheRequest struct {
	PayoutApproved bool   `json:"payout_approved"`
	Notes          string `json:"notes" binding:"max=2000"`
}

// ApplicationResponse is the API shape of an application
type ApplicationResponse struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"`
	ApplicantID string     `json:"applicant_id"`
	State       string     `json:"state"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewApplicationResponse maps an application to its API shape
func NewApplicationResponse(a *invest.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:          a.ID.String(),
		Reference:   a.Reference,
		ApplicantID: a.ApplicantID.String(),
		State:       string(a.State),
		SubmittedAt: a.SubmittedAt,
		DecidedAt:   a.DecidedAt,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// OfferingResponse is the API shape of an offering
type OfferingResponse struct {
	ID           string     `json:"id"`
	Reference    string     `json:"reference"`
	Name         string     `json:"name"`
	TargetAmount string     `json:"target_amount"`
	Currency     string     `json:"currency"`
	State        string     `json:"state"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewOfferingResponse maps an offering to its API shape
func NewOfferingResponse(o *invest.Offering) OfferingResponse {
	return OfferingResponse{
		ID:           o.ID.String(),
		Reference:    o.Reference,
		Name:         o.Name,
		TargetAmount: o.TargetAmount.String(),
		Currency:     string(o.Currency),
		State:        string(o.State),
		OpenedAt:     o.OpenedAt,
		ClosedAt:     o.ClosedAt,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// SubscriptionResponse is the API shape of a subscription
type SubscriptionResponse struct {
	ID         string     `json:"id"`
	Reference  string     `json:"reference"`
	OfferingID string     `json:"offering_id"`
	InvestorID string     `json:"investor_id"`
	Amount     string     `json:"amount"`
	Currency   string     `json:"currency"`
	State      string     `json:"state"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewSubscriptionResponse maps a subscription to its API shape
func NewSubscriptionResponse(s *invest.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:         s.ID.String(),
		Reference:  s.Reference,
		OfferingID: s.OfferingID.String(),
		InvestorID: s.InvestorID.String(),
		Amount:     s.Amount.String(),
		Currency:   string(s.Currency),
		State:      string(s.State),
		PaidAt:     s.PaidAt,
		Version:    s.Version,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// MilestoneResponse is the API shape of a milestone
type MilestoneResponse struct {
	ID         string     `json:"id"`
	OfferingID string     `json:"offering_id"`
	Title      string     `json:"title"`
	State      string     `json:"state"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewMilestoneResponse maps a milestone to its API shape
func NewMilestoneResponse(m *invest.Milestone) MilestoneResponse {
	return MilestoneResponse{
		ID:         m.ID.String(),
		OfferingID: m.OfferingID.String(),
		Title:      m.Title,
		State:      string(m.State),
		VerifiedAt: m.VerifiedAt,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// TrancheResponse is the API shape of a tranche
type TrancheResponse struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"`
	OfferingID  string     `json:"offering_id"`
	MilestoneID string     `json:"milestone_id"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	State       string     `json:"state"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTrancheResponse maps a tranche to its API shape
func NewTrancheResponse(t *invest.Tranche) TrancheResponse {
	return TrancheResponse{
		ID:          t.ID.String(),
		Reference:   t.Reference,
		OfferingID:  t.OfferingID.String(),
		MilestoneID: t.MilestoneID.String(),
		Amount:      t.Amount.String(),
		Currency:    string(t.Currency),
		State:       string(t.State),
		ReleasedAt:  t.ReleasedAt,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

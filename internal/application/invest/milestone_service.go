package invest

import (
	"context"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
	"go.uber.org/zap"
)

// MilestoneService drives milestone verification
type MilestoneService struct {
	milestones invest.MilestoneRepository
	registry   *statemachine.Registry
	auditLog   *audit.Log
	logger     *zap.Logger
}

// NewMilestoneService creates a MilestoneService
func NewMilestoneService(
	milestones invest.MilestoneRepository,
	registry *statemachine.Registry,
	auditLog *audit.Log,
	logger *zap.Logger,
) *MilestoneService {
	return &MilestoneService{
		milestones: milestones,
		registry:   registry,
		auditLog:   auditLog,
		logger:     logger,
	}
}

// CreateMilestoneInput carries the fields for a new milestone
type CreateMilestoneInput struct {
	Actor      audit.Actor
	OfferingID uuid.UUID
	Title      string
}

// Create registers a milestone for an offering
func (s *MilestoneService) Create(ctx context.Context, in CreateMilestoneInput) (*invest.Milestone, error) {
	milestone, err := invest.NewMilestone(in.OfferingID, in.Title)
	if err != nil {
		return nil, err
	}
	if err := s.milestones.Create(ctx, milestone); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityMilestone), milestone.ID, "MilestoneCreated", ""); err != nil {
		return nil, err
	}
	return milestone, nil
}

// TransitionMilestoneInput moves a milestone along a registered edge
type TransitionMilestoneInput struct {
	Actor       audit.Actor
	MilestoneID uuid.UUID
	Notes       string
}

// VerifyMilestoneInput carries the verify transition's review guard
type VerifyMilestoneInput struct {
	Actor               audit.Actor
	MilestoneID         uuid.UUID
	ReviewItemsComplete bool
	Notes               string
}

// SubmitEvidence records that evidence was submitted for a milestone
func (s *MilestoneService) SubmitEvidence(ctx context.Context, in TransitionMilestoneInput) (*invest.Milestone, error) {
	return s.transition(ctx, in, statemachine.MilestoneEvidenceSubmitted, "MilestoneEvidenceSubmitted", nil)
}

// StartReview picks up submitted evidence for review
func (s *MilestoneService) StartReview(ctx context.Context, in TransitionMilestoneInput) (*invest.Milestone, error) {
	return s.transition(ctx, in, statemachine.MilestoneInReview, "MilestoneReviewStarted", nil)
}

// Verify confirms the milestone once every review item is complete
func (s *MilestoneService) Verify(ctx context.Context, in VerifyMilestoneInput) (*invest.Milestone, error) {
	guards := statemachine.Guards{
		statemachine.GuardReviewItemsComplete: in.ReviewItemsComplete,
	}
	return s.transition(ctx, TransitionMilestoneInput{
		Actor:       in.Actor,
		MilestoneID: in.MilestoneID,
		Notes:       in.Notes,
	}, statemachine.MilestoneVerified, "MilestoneVerified", guards)
}

// Reject fails the milestone's review
func (s *MilestoneService) Reject(ctx context.Context, in TransitionMilestoneInput) (*invest.Milestone, error) {
	return s.transition(ctx, in, statemachine.MilestoneRejected, "MilestoneRejected", nil)
}

// Get returns a milestone by ID
func (s *MilestoneService) Get(ctx context.Context, id uuid.UUID) (*invest.Milestone, error) {
	milestone, err := s.milestones.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Milestone not found")
	}
	return milestone, nil
}

func (s *MilestoneService) transition(
	ctx context.Context,
	in TransitionMilestoneInput,
	to statemachine.State,
	action string,
	guards statemachine.Guards,
) (*invest.Milestone, error) {
	milestone, err := s.Get(ctx, in.MilestoneID)
	if err != nil {
		return nil, err
	}
	from := milestone.State
	if err := s.registry.AssertTransition(statemachine.EntityMilestone, from, to, guards); err != nil {
		return nil, err
	}
	milestone.MoveTo(to)
	if err := s.milestones.Save(ctx, milestone); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityMilestone), milestone.ID, action, in.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("Milestone transitioned",
		zap.String("milestone_id", milestone.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return milestone, nil
}

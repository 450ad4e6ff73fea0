package invest

import (
	"context"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AnchorAllocationFinalized is the checkpoint written when an offering
// closes with its final allocation. Entering servicing requires it.
const AnchorAllocationFinalized = "AllocationFinalized"

// OfferingService drives the offering lifecycle
type OfferingService struct {
	offerings invest.OfferingRepository
	registry  *statemachine.Registry
	auditLog  *audit.Log
	anchors   *audit.AnchorService
	logger    *zap.Logger
}

// NewOfferingService creates an OfferingService
func NewOfferingService(
	offerings invest.OfferingRepository,
	registry *statemachine.Registry,
	auditLog *audit.Log,
	anchors *audit.AnchorService,
	logger *zap.Logger,
) *OfferingService {
	return &OfferingService{
		offerings: offerings,
		registry:  registry,
		auditLog:  auditLog,
		anchors:   anchors,
		logger:    logger,
	}
}

// CreateOfferingInput carries the fields for a new draft offering
type CreateOfferingInput struct {
	Actor     audit.Actor
	Reference string
	Name      string
	Target    valueobject.Money
}

// Create opens a draft offering
func (s *OfferingService) Create(ctx context.Context, in CreateOfferingInput) (*invest.Offering, error) {
	offering, err := invest.NewOffering(in.Reference, in.Name, in.Target)
	if err != nil {
		return nil, err
	}
	if err := s.offerings.Create(ctx, offering); err != nil {
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return nil, shared.NewDomainError(shared.CodeConflict, "An offering with this reference already exists")
		}
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityOffering), offering.ID, "OfferingCreated", ""); err != nil {
		return nil, err
	}
	return offering, nil
}

// TransitionOfferingInput moves an offering along a registered edge
type TransitionOfferingInput struct {
	Actor      audit.Actor
	OfferingID uuid.UUID
	Notes      string
}

// OpenOfferingInput carries the open transition's review guard
type OpenOfferingInput struct {
	Actor          audit.Actor
	OfferingID     uuid.UUID
	ReviewApproved bool
	Notes          string
}

// CloseOfferingInput closes an offering and anchors its final allocation
type CloseOfferingInput struct {
	Actor      audit.Actor
	OfferingID uuid.UUID
	// Allocation is the final allocation summary. Its canonical hash becomes
	// the AllocationFinalized anchor.
	Allocation any
	Notes      string
}

// SubmitForReview sends a draft offering to compliance review
func (s *OfferingService) SubmitForReview(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingPendingReview, "OfferingSubmittedForReview", nil)
}

// Open makes a reviewed offering available for subscriptions
func (s *OfferingService) Open(ctx context.Context, in OpenOfferingInput) (*invest.Offering, error) {
	guards := statemachine.Guards{
		statemachine.GuardReviewApproved: in.ReviewApproved,
	}
	return s.transition(ctx, TransitionOfferingInput{
		Actor:      in.Actor,
		OfferingID: in.OfferingID,
		Notes:      in.Notes,
	}, statemachine.OfferingOpen, "OfferingOpened", guards)
}

// RequestRevision sends an offering back to its sponsor for changes
func (s *OfferingService) RequestRevision(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingNeedsRevision, "OfferingRevisionRequested", nil)
}

// Resubmit returns a revised offering to review
func (s *OfferingService) Resubmit(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingPendingReview, "OfferingResubmitted", nil)
}

// Pause suspends new subscriptions into an open offering
func (s *OfferingService) Pause(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingPaused, "OfferingPaused", nil)
}

// Resume reopens a paused offering
func (s *OfferingService) Resume(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingOpen, "OfferingResumed", nil)
}

// Close ends the subscription window and anchors the final allocation.
// The anchor and the state change commit in the same transaction.
func (s *OfferingService) Close(ctx context.Context, in CloseOfferingInput) (*invest.Offering, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "offering", "close",
		attribute.String(telemetry.SpanAttrEntityID, in.OfferingID.String()),
	)
	defer span.End()

	offering, err := s.transition(ctx, TransitionOfferingInput{
		Actor:      in.Actor,
		OfferingID: in.OfferingID,
		Notes:      in.Notes,
	}, statemachine.OfferingClosed, "OfferingClosed", nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if _, err := s.anchors.CreateAnchorRecord(ctx, string(statemachine.EntityOffering), offering.ID, AnchorAllocationFinalized, in.Allocation); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return offering, nil
}

// Cancel retires a closed offering without servicing
func (s *OfferingService) Cancel(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingCancelled, "OfferingCancelled", nil)
}

// EnterServicing moves a closed offering into servicing. The
// allocation_finalized guard is derived from the AllocationFinalized
// anchor, not supplied by the caller.
func (s *OfferingService) EnterServicing(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "offering", "enter_servicing",
		attribute.String(telemetry.SpanAttrEntityID, in.OfferingID.String()),
	)
	defer span.End()

	anchored, err := s.anchors.HasAnchor(ctx, string(statemachine.EntityOffering), in.OfferingID, AnchorAllocationFinalized)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	guards := statemachine.Guards{
		statemachine.GuardAllocationFinalized: anchored,
	}
	offering, err := s.transition(ctx, in, statemachine.OfferingServicing, "OfferingEnteredServicing", guards)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return offering, nil
}

// Exit completes servicing for an offering
func (s *OfferingService) Exit(ctx context.Context, in TransitionOfferingInput) (*invest.Offering, error) {
	return s.transition(ctx, in, statemachine.OfferingExited, "OfferingExited", nil)
}

// Get returns an offering by ID
func (s *OfferingService) Get(ctx context.Context, id uuid.UUID) (*invest.Offering, error) {
	offering, err := s.offerings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if offering == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Offering not found")
	}
	return offering, nil
}

func (s *OfferingService) transition(
	ctx context.Context,
	in TransitionOfferingInput,
	to statemachine.State,
	action string,
	guards statemachine.Guards,
) (*invest.Offering, error) {
	offering, err := s.Get(ctx, in.OfferingID)
	if err != nil {
		return nil, err
	}
	from := offering.State
	if err := s.registry.AssertTransition(statemachine.EntityOffering, from, to, guards); err != nil {
		return nil, err
	}
	offering.MoveTo(to)
	if err := s.offerings.Save(ctx, offering); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityOffering), offering.ID, action, in.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("Offering transitioned",
		zap.String("offering_id", offering.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return offering, nil
}

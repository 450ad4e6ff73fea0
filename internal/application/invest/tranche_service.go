package invest

import (
	"context"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/ledger"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TrancheService drives milestone-gated fund releases. Release moves money
// from the offering's escrow account to the tranche's payout account.
type TrancheService struct {
	tranches   invest.TrancheRepository
	milestones invest.MilestoneRepository
	offerings  invest.OfferingRepository
	registry   *statemachine.Registry
	ledger     *ledger.Service
	auditLog   *audit.Log
	logger     *zap.Logger
}

// NewTrancheService creates a TrancheService
func NewTrancheService(
	tranches invest.TrancheRepository,
	milestones invest.MilestoneRepository,
	offerings invest.OfferingRepository,
	registry *statemachine.Registry,
	ledgerService *ledger.Service,
	auditLog *audit.Log,
	logger *zap.Logger,
) *TrancheService {
	return &TrancheService{
		tranches:   tranches,
		milestones: milestones,
		offerings:  offerings,
		registry:   registry,
		ledger:     ledgerService,
		auditLog:   auditLog,
		logger:     logger,
	}
}

// CreateTrancheInput carries the fields for a new locked tranche
type CreateTrancheInput struct {
	Actor       audit.Actor
	Reference   string
	OfferingID  uuid.UUID
	MilestoneID uuid.UUID
	Amount      valueobject.Money
}

// Create registers a locked tranche against a milestone
func (s *TrancheService) Create(ctx context.Context, in CreateTrancheInput) (*invest.Tranche, error) {
	milestone, err := s.milestones.FindByID(ctx, in.MilestoneID)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Milestone not found")
	}
	if milestone.OfferingID != in.OfferingID {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Milestone belongs to a different offering")
	}
	tranche, err := invest.NewTranche(in.Reference, in.OfferingID, in.MilestoneID, in.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.tranches.Create(ctx, tranche); err != nil {
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return nil, shared.NewDomainError(shared.CodeConflict, "A tranche with this reference already exists")
		}
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityTranche), tranche.ID, "TrancheCreated", ""); err != nil {
		return nil, err
	}
	return tranche, nil
}

// TransitionTrancheInput moves a tranche along a registered edge
type TransitionTrancheInput struct {
	Actor     audit.Actor
	TrancheID uuid.UUID
	Notes     string
}

// ReleaseTrancheInput releases eligible funds. IdempotencyKey is the
// command's key; it seeds the ledger entry keys.
type ReleaseTrancheInput struct {
	Actor          audit.Actor
	TrancheID      uuid.UUID
	PayoutApproved bool
	IdempotencyKey string
	Notes          string
}

// ReverseTrancheInput claws back a released payout. Like Release, the
// command's idempotency key seeds the offsetting ledger entry keys.
type ReverseTrancheInput struct {
	Actor          audit.Actor
	TrancheID      uuid.UUID
	IdempotencyKey string
	Notes          string
}

// MarkEligible unlocks a tranche. The milestone_verified guard is derived
// from the gating milestone's state, not supplied by the caller.
func (s *TrancheService) MarkEligible(ctx context.Context, in TransitionTrancheInput) (*invest.Tranche, error) {
	tranche, err := s.Get(ctx, in.TrancheID)
	if err != nil {
		return nil, err
	}
	milestone, err := s.milestones.FindByID(ctx, tranche.MilestoneID)
	if err != nil {
		return nil, err
	}
	guards := statemachine.Guards{
		statemachine.GuardMilestoneVerified: milestone != nil && milestone.IsVerified(),
	}
	return s.transition(ctx, in, statemachine.TrancheEligible, "TrancheMarkedEligible", guards)
}

// Release pays out an eligible tranche. The state change and the
// escrow-debit/payout-credit postings commit in one transaction.
func (s *TrancheService) Release(ctx context.Context, in ReleaseTrancheInput) (*invest.Tranche, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tranche", "release",
		attribute.String(telemetry.SpanAttrEntityID, in.TrancheID.String()),
	)
	defer span.End()

	guards := statemachine.Guards{
		statemachine.GuardPayoutApproved: in.PayoutApproved,
	}
	tranche, err := s.transition(ctx, TransitionTrancheInput{
		Actor:     in.Actor,
		TrancheID: in.TrancheID,
		Notes:     in.Notes,
	}, statemachine.TrancheReleased, "TrancheReleased", guards)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.postRelease(ctx, tranche, in.IdempotencyKey, false); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.AddEvent(span, "ledger_posted",
		attribute.String(telemetry.SpanAttrAmount, tranche.Amount.String()),
	)
	return tranche, nil
}

// Fail retires an eligible tranche without a payout
func (s *TrancheService) Fail(ctx context.Context, in TransitionTrancheInput) (*invest.Tranche, error) {
	return s.transition(ctx, in, statemachine.TrancheFailed, "TrancheFailed", nil)
}

// Reverse claws back a released payout. The state change and the mirroring
// escrow-credit/payout-debit postings commit in one transaction.
func (s *TrancheService) Reverse(ctx context.Context, in ReverseTrancheInput) (*invest.Tranche, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tranche", "reverse",
		attribute.String(telemetry.SpanAttrEntityID, in.TrancheID.String()),
	)
	defer span.End()

	tranche, err := s.transition(ctx, TransitionTrancheInput{
		Actor:     in.Actor,
		TrancheID: in.TrancheID,
		Notes:     in.Notes,
	}, statemachine.TrancheReversed, "TrancheReversed", nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.postRelease(ctx, tranche, in.IdempotencyKey, true); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.AddEvent(span, "ledger_posted",
		attribute.String(telemetry.SpanAttrAmount, tranche.Amount.String()),
	)
	return tranche, nil
}

// Get returns a tranche by ID
func (s *TrancheService) Get(ctx context.Context, id uuid.UUID) (*invest.Tranche, error) {
	tranche, err := s.tranches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tranche == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Tranche not found")
	}
	return tranche, nil
}

// postRelease posts the release entry set, or its mirror when reversed is
// true. Both legs carry the same external reference so they read back as
// one posting.
func (s *TrancheService) postRelease(ctx context.Context, tranche *invest.Tranche, commandKey string, reversed bool) error {
	offering, err := s.offerings.FindByID(ctx, tranche.OfferingID)
	if err != nil {
		return err
	}
	if offering == nil {
		return shared.NewDomainError(shared.CodeNotFound, "Offering not found")
	}

	amount := tranche.AmountMoney()
	externalRef := "tranche:" + tranche.Reference + ":release"
	escrowDirection, payoutDirection := ledger.DirectionDebit, ledger.DirectionCredit
	if reversed {
		externalRef = "tranche:" + tranche.Reference + ":reversal"
		escrowDirection, payoutDirection = ledger.DirectionCredit, ledger.DirectionDebit
	}

	escrowLeg, err := ledger.NewEntry(
		ledger.LedgerEscrow, offering.EscrowAccountRef(), escrowDirection,
		amount, string(statemachine.EntityTranche), tranche.ID,
		externalRef, commandKey+":escrow",
	)
	if err != nil {
		return err
	}
	payoutLeg, err := ledger.NewEntry(
		ledger.LedgerPayout, tranche.PayoutAccountRef(), payoutDirection,
		amount, string(statemachine.EntityTranche), tranche.ID,
		externalRef, commandKey+":payout",
	)
	if err != nil {
		return err
	}
	return s.ledger.PostEntries(ctx, []*ledger.Entry{escrowLeg, payoutLeg})
}

func (s *TrancheService) transition(
	ctx context.Context,
	in TransitionTrancheInput,
	to statemachine.State,
	action string,
	guards statemachine.Guards,
) (*invest.Tranche, error) {
	tranche, err := s.Get(ctx, in.TrancheID)
	if err != nil {
		return nil, err
	}
	from := tranche.State
	if err := s.registry.AssertTransition(statemachine.EntityTranche, from, to, guards); err != nil {
		return nil, err
	}
	tranche.MoveTo(to)
	if err := s.tranches.Save(ctx, tranche); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityTranche), tranche.ID, action, in.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("Tranche transitioned",
		zap.String("tranche_id", tranche.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return tranche, nil
}

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

// SubscriptionService drives subscriptions and their money movement. The
// financial methods post balanced ledger entry sets inside the command's
// transaction, keyed by the command's idempotency key so the unique index
// refuses a double posting even if a retry slips past the orchestrator.
type SubscriptionService struct {
	subscriptions invest.SubscriptionRepository
	offerings     invest.OfferingRepository
	registry      *statemachine.Registry
	ledger        *ledger.Service
	auditLog      *audit.Log
	logger        *zap.Logger
}

// NewSubscriptionService creates a SubscriptionService
func NewSubscriptionService(
	subscriptions invest.SubscriptionRepository,
	offerings invest.OfferingRepository,
	registry *statemachine.Registry,
	ledgerService *ledger.Service,
	auditLog *audit.Log,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subscriptions,
		offerings:     offerings,
		registry:      registry,
		ledger:        ledgerService,
		auditLog:      auditLog,
		logger:        logger,
	}
}

// CreateSubscriptionInput carries the fields for a new draft subscription
type CreateSubscriptionInput struct {
	Actor      audit.Actor
	Reference  string
	OfferingID uuid.UUID
	InvestorID uuid.UUID
	Amount     valueobject.Money
}

// Create opens a draft subscription into an open offering
func (s *SubscriptionService) Create(ctx context.Context, in CreateSubscriptionInput) (*invest.Subscription, error) {
	offering, err := s.offerings.FindByID(ctx, in.OfferingID)
	if err != nil {
		return nil, err
	}
	if offering == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Offering not found")
	}
	if offering.State != statemachine.OfferingOpen {
		return nil, shared.NewDomainError(shared.CodeInvalidTransition, "Subscriptions can only be created into an open offering")
	}
	sub, err := invest.NewSubscription(in.Reference, in.OfferingID, in.InvestorID, in.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return nil, shared.NewDomainError(shared.CodeConflict, "A subscription with this reference already exists")
		}
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntitySubscription), sub.ID, "SubscriptionCreated", ""); err != nil {
		return nil, err
	}
	return sub, nil
}

// TransitionSubscriptionInput moves a subscription along a registered edge
type TransitionSubscriptionInput struct {
	Actor          audit.Actor
	SubscriptionID uuid.UUID
	Notes          string
}

// MarkPaidInput settles a pending payment. IdempotencyKey is the command's
// key; it seeds the ledger entry keys.
type MarkPaidInput struct {
	Actor           audit.Actor
	SubscriptionID  uuid.UUID
	PaymentReceived bool
	IdempotencyKey  string
	Notes           string
}

// RefundInput reverses a settled subscription with offsetting entries
type RefundInput struct {
	Actor          audit.Actor
	SubscriptionID uuid.UUID
	IdempotencyKey string
	Notes          string
}

// Commit locks in a draft subscription
func (s *SubscriptionService) Commit(ctx context.Context, in TransitionSubscriptionInput) (*invest.Subscription, error) {
	return s.transition(ctx, in, statemachine.SubscriptionCommitted, "SubscriptionCommitted", nil)
}

// RequestPayment asks the investor to fund a committed subscription
func (s *SubscriptionService) RequestPayment(ctx context.Context, in TransitionSubscriptionInput) (*invest.Subscription, error) {
	return s.transition(ctx, in, statemachine.SubscriptionPaymentPending, "SubscriptionPaymentRequested", nil)
}

// MarkPaid settles payment for a subscription. The state change and the
// escrow-credit/receivable-debit postings commit in one transaction.
func (s *SubscriptionService) MarkPaid(ctx context.Context, in MarkPaidInput) (*invest.Subscription, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", "mark_paid",
		attribute.String(telemetry.SpanAttrEntityID, in.SubscriptionID.String()),
	)
	defer span.End()

	guards := statemachine.Guards{
		statemachine.GuardPaymentReceived: in.PaymentReceived,
	}
	sub, err := s.transition(ctx, TransitionSubscriptionInput{
		Actor:          in.Actor,
		SubscriptionID: in.SubscriptionID,
		Notes:          in.Notes,
	}, statemachine.SubscriptionPaid, "SubscriptionPaid", guards)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.postPayment(ctx, sub, in.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.AddEvent(span, "ledger_posted",
		attribute.String(telemetry.SpanAttrAmount, sub.Amount.String()),
	)
	return sub, nil
}

// ConfirmAllocation confirms the investor's allocation after close
func (s *SubscriptionService) ConfirmAllocation(ctx context.Context, in TransitionSubscriptionInput) (*invest.Subscription, error) {
	return s.transition(ctx, in, statemachine.SubscriptionAllocationConfirmed, "SubscriptionAllocationConfirmed", nil)
}

// Redeem completes a confirmed subscription
func (s *SubscriptionService) Redeem(ctx context.Context, in TransitionSubscriptionInput) (*invest.Subscription, error) {
	return s.transition(ctx, in, statemachine.SubscriptionRedeemed, "SubscriptionRedeemed", nil)
}

// Cancel retires an active subscription without money movement
func (s *SubscriptionService) Cancel(ctx context.Context, in TransitionSubscriptionInput) (*invest.Subscription, error) {
	return s.transition(ctx, in, statemachine.SubscriptionCancelled, "SubscriptionCancelled", nil)
}

// Refund retires a subscription and reverses its settlement with
// offsetting entries. Corrections are always new entries, never updates.
func (s *SubscriptionService) Refund(ctx context.Context, in RefundInput) (*invest.Subscription, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", "refund",
		attribute.String(telemetry.SpanAttrEntityID, in.SubscriptionID.String()),
	)
	defer span.End()

	before, err := s.Get(ctx, in.SubscriptionID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	wasSettled := before.PaidAt != nil

	sub, err := s.transition(ctx, TransitionSubscriptionInput{
		Actor:          in.Actor,
		SubscriptionID: in.SubscriptionID,
		Notes:          in.Notes,
	}, statemachine.SubscriptionRefunded, "SubscriptionRefunded", nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if wasSettled {
		if err := s.postRefund(ctx, sub, in.IdempotencyKey); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	return sub, nil
}

// Get returns a subscription by ID
func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*invest.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Subscription not found")
	}
	return sub, nil
}

func (s *SubscriptionService) postPayment(ctx context.Context, sub *invest.Subscription, commandKey string) error {
	offering, err := s.offerings.FindByID(ctx, sub.OfferingID)
	if err != nil {
		return err
	}
	if offering == nil {
		return shared.NewDomainError(shared.CodeNotFound, "Offering not found")
	}

	amount := sub.AmountMoney()
	externalRef := "subscription:" + sub.Reference + ":payment"

	credit, err := ledger.NewEntry(
		ledger.LedgerEscrow, offering.EscrowAccountRef(), ledger.DirectionCredit,
		amount, string(statemachine.EntitySubscription), sub.ID,
		externalRef, commandKey+":escrow",
	)
	if err != nil {
		return err
	}
	debit, err := ledger.NewEntry(
		ledger.LedgerEscrow, sub.ReceivableAccountRef(), ledger.DirectionDebit,
		amount, string(statemachine.EntitySubscription), sub.ID,
		externalRef, commandKey+":receivable",
	)
	if err != nil {
		return err
	}
	return s.ledger.PostEntries(ctx, []*ledger.Entry{credit, debit})
}

func (s *SubscriptionService) postRefund(ctx context.Context, sub *invest.Subscription, commandKey string) error {
	offering, err := s.offerings.FindByID(ctx, sub.OfferingID)
	if err != nil {
		return err
	}
	if offering == nil {
		return shared.NewDomainError(shared.CodeNotFound, "Offering not found")
	}

	amount := sub.AmountMoney()
	externalRef := "subscription:" + sub.Reference + ":refund"

	debit, err := ledger.NewEntry(
		ledger.LedgerEscrow, offering.EscrowAccountRef(), ledger.DirectionDebit,
		amount, string(statemachine.EntitySubscription), sub.ID,
		externalRef, commandKey+":escrow",
	)
	if err != nil {
		return err
	}
	credit, err := ledger.NewEntry(
		ledger.LedgerEscrow, sub.ReceivableAccountRef(), ledger.DirectionCredit,
		amount, string(statemachine.EntitySubscription), sub.ID,
		externalRef, commandKey+":receivable",
	)
	if err != nil {
		return err
	}
	return s.ledger.PostEntries(ctx, []*ledger.Entry{debit, credit})
}

func (s *SubscriptionService) transition(
	ctx context.Context,
	in TransitionSubscriptionInput,
	to statemachine.State,
	action string,
	guards statemachine.Guards,
) (*invest.Subscription, error) {
	sub, err := s.Get(ctx, in.SubscriptionID)
	if err != nil {
		return nil, err
	}
	from := sub.State
	if err := s.registry.AssertTransition(statemachine.EntitySubscription, from, to, guards); err != nil {
		return nil, err
	}
	sub.MoveTo(to)
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntitySubscription), sub.ID, action, in.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("Subscription transitioned",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return sub, nil
}

package invest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	appcommand "github.com/invest/backend/internal/application/command"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/ledger"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db            *gorm.DB
	executor      *persistence.TxExecutor
	orchestrator  *appcommand.Orchestrator
	applications  *ApplicationService
	offerings     *OfferingService
	subscriptions *SubscriptionService
	milestones    *MilestoneService
	tranches      *TrancheService
	ledger        *ledger.Service
	auditLog      *audit.Log
	offeringRepo  *persistence.GormOfferingRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))

	log := zap.NewNop()
	registry := statemachine.NewRegistry()
	auditLog := audit.NewLog(persistence.NewGormAuditEventRepository(db))
	anchors := audit.NewAnchorService(persistence.NewGormAnchorRepository(db))
	ledgerService := ledger.NewService(persistence.NewGormLedgerRepository(db))

	appRepo := persistence.NewGormApplicationRepository(db)
	offeringRepo := persistence.NewGormOfferingRepository(db)
	subRepo := persistence.NewGormSubscriptionRepository(db)
	milestoneRepo := persistence.NewGormMilestoneRepository(db)
	trancheRepo := persistence.NewGormTrancheRepository(db)

	executor := persistence.NewTxExecutor(db)

	return &fixture{
		db:       db,
		executor: executor,
		orchestrator: appcommand.NewOrchestrator(
			persistence.NewGormIdempotencyRepository(db),
			executor,
			nil,
			time.Hour,
			log,
		),
		applications:  NewApplicationService(appRepo, registry, auditLog, log),
		offerings:     NewOfferingService(offeringRepo, registry, auditLog, anchors, log),
		subscriptions: NewSubscriptionService(subRepo, offeringRepo, registry, ledgerService, auditLog, log),
		milestones:    NewMilestoneService(milestoneRepo, registry, auditLog, log),
		tranches:      NewTrancheService(trancheRepo, milestoneRepo, offeringRepo, registry, ledgerService, auditLog, log),
		ledger:        ledgerService,
		auditLog:      auditLog,
		offeringRepo:  offeringRepo,
	}
}

// inTx runs fn inside a transaction, the way the orchestrator runs service
// methods in production.
func (f *fixture) inTx(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	return f.executor.Execute(context.Background(), fn)
}

func testActor() audit.Actor {
	return audit.Actor{ID: uuid.New(), Role: "reviewer"}
}

// openOffering creates an offering and walks it to the open state.
func (f *fixture) openOffering(t *testing.T, reference string) *invest.Offering {
	t.Helper()
	actor := testActor()
	var offering *invest.Offering
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		offering, err = f.offerings.Create(ctx, CreateOfferingInput{
			Actor:     actor,
			Reference: reference,
			Name:      "Test Offering",
			Target:    valueobject.NewMoneyUSDFromFloat(1_000_000),
		})
		if err != nil {
			return err
		}
		if _, err = f.offerings.SubmitForReview(ctx, TransitionOfferingInput{Actor: actor, OfferingID: offering.ID}); err != nil {
			return err
		}
		offering, err = f.offerings.Open(ctx, OpenOfferingInput{Actor: actor, OfferingID: offering.ID, ReviewApproved: true})
		return err
	}))
	return offering
}

func TestApplicationReviewFlow(t *testing.T) {
	f := newFixture(t)
	actor := testActor()

	var app *invest.Application
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		app, err = f.applications.Create(ctx, CreateApplicationInput{
			Actor:       actor,
			Reference:   "APP-A1",
			ApplicantID: uuid.New(),
		})
		if err != nil {
			return err
		}
		if _, err = f.applications.Submit(ctx, TransitionApplicationInput{Actor: actor, ApplicationID: app.ID}); err != nil {
			return err
		}
		_, err = f.applications.StartReview(ctx, TransitionApplicationInput{Actor: actor, ApplicationID: app.ID})
		return err
	}))

	// Approval with an unmet guard fails and leaves the state untouched.
	err := f.inTx(t, func(ctx context.Context) error {
		_, err := f.applications.Approve(ctx, ApproveApplicationInput{
			Actor:                   actor,
			ApplicationID:           app.ID,
			TasksComplete:           true,
			EvidenceVerified:        false,
			LegalChecklistSatisfied: true,
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))

	current, err := f.applications.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.ApplicationInReview, current.State)

	// All guards satisfied approves the application.
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.applications.Approve(ctx, ApproveApplicationInput{
			Actor:                   actor,
			ApplicationID:           app.ID,
			TasksComplete:           true,
			EvidenceVerified:        true,
			LegalChecklistSatisfied: true,
		})
		return err
	}))

	current, err = f.applications.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.ApplicationApproved, current.State)
	assert.NotNil(t, current.DecidedAt)

	// Approving twice is an invalid transition, not a silent no-op.
	err = f.inTx(t, func(ctx context.Context) error {
		_, err := f.applications.Approve(ctx, ApproveApplicationInput{
			Actor:                   actor,
			ApplicationID:           app.ID,
			TasksComplete:           true,
			EvidenceVerified:        true,
			LegalChecklistSatisfied: true,
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))

	trail, err := f.auditLog.Trail(context.Background(), string(statemachine.EntityApplication), app.ID)
	require.NoError(t, err)
	actions := make([]string, len(trail))
	for i, e := range trail {
		actions[i] = e.Action
	}
	assert.Equal(t, []string{
		"ApplicationCreated",
		"ApplicationSubmitted",
		"ApplicationReviewStarted",
		"ApplicationApproved",
	}, actions, "one audit event per committed mutation, failed attempts excluded")
}

func TestSubscriptionPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	actor := testActor()
	offering := f.openOffering(t, "OFF-B1")

	var sub *invest.Subscription
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		sub, err = f.subscriptions.Create(ctx, CreateSubscriptionInput{
			Actor:      actor,
			Reference:  "SUB-B1",
			OfferingID: offering.ID,
			InvestorID: uuid.New(),
			Amount:     valueobject.NewMoneyUSDFromFloat(50_000),
		})
		if err != nil {
			return err
		}
		if _, err = f.subscriptions.Commit(ctx, TransitionSubscriptionInput{Actor: actor, SubscriptionID: sub.ID}); err != nil {
			return err
		}
		_, err = f.subscriptions.RequestPayment(ctx, TransitionSubscriptionInput{Actor: actor, SubscriptionID: sub.ID})
		return err
	}))

	key := "pay-sub-b1"
	payload := map[string]any{"payment_received": true}
	spec := appcommand.Spec{
		Key:       &key,
		UserID:    actor.ID,
		Route:     "POST /api/v1/subscriptions/:id/pay",
		Payload:   payload,
		Financial: true,
		Execute: func(ctx context.Context) (any, error) {
			return f.subscriptions.MarkPaid(ctx, MarkPaidInput{
				Actor:           actor,
				SubscriptionID:  sub.ID,
				PaymentReceived: true,
				IdempotencyKey:  key,
			})
		},
	}

	ctx := context.Background()
	_, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)

	escrow, err := f.ledger.AccountBalance(ctx, ledger.LedgerEscrow, offering.EscrowAccountRef())
	require.NoError(t, err)
	assert.True(t, escrow.Equal(sub.Amount), "escrow balance %s != %s", escrow, sub.Amount)

	// Retrying the same command replays; the money moves exactly once.
	_, err = f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)

	escrow, err = f.ledger.AccountBalance(ctx, ledger.LedgerEscrow, offering.EscrowAccountRef())
	require.NoError(t, err)
	assert.True(t, escrow.Equal(sub.Amount), "replay must not double post")

	receivable, err := f.ledger.AccountBalance(ctx, ledger.LedgerEscrow, sub.ReceivableAccountRef())
	require.NoError(t, err)
	assert.True(t, receivable.Equal(sub.Amount.Neg()))

	// Same key with a different payload is a conflict.
	spec.Payload = map[string]any{"payment_received": true, "amount": 1}
	_, err = f.orchestrator.Run(ctx, spec)
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeConflict))

	// Paying without a key fails the idempotency guard before executing.
	spec.Key = nil
	_, err = f.orchestrator.Run(ctx, spec)
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))
}

func TestSubscriptionRefundPostsOffsettingEntries(t *testing.T) {
	f := newFixture(t)
	actor := testActor()
	offering := f.openOffering(t, "OFF-B2")

	var sub *invest.Subscription
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		sub, err = f.subscriptions.Create(ctx, CreateSubscriptionInput{
			Actor:      actor,
			Reference:  "SUB-B2",
			OfferingID: offering.ID,
			InvestorID: uuid.New(),
			Amount:     valueobject.NewMoneyUSDFromFloat(25_000),
		})
		if err != nil {
			return err
		}
		if _, err = f.subscriptions.Commit(ctx, TransitionSubscriptionInput{Actor: actor, SubscriptionID: sub.ID}); err != nil {
			return err
		}
		if _, err = f.subscriptions.RequestPayment(ctx, TransitionSubscriptionInput{Actor: actor, SubscriptionID: sub.ID}); err != nil {
			return err
		}
		_, err = f.subscriptions.MarkPaid(ctx, MarkPaidInput{
			Actor:           actor,
			SubscriptionID:  sub.ID,
			PaymentReceived: true,
			IdempotencyKey:  "pay-sub-b2",
		})
		return err
	}))

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.subscriptions.Refund(ctx, RefundInput{
			Actor:          actor,
			SubscriptionID: sub.ID,
			IdempotencyKey: "refund-sub-b2",
		})
		return err
	}))

	ctx := context.Background()
	escrow, err := f.ledger.AccountBalance(ctx, ledger.LedgerEscrow, offering.EscrowAccountRef())
	require.NoError(t, err)
	assert.True(t, escrow.IsZero(), "refund must offset the payment, got %s", escrow)

	entries, err := f.ledger.EntriesByExternalRef(ctx, "subscription:SUB-B2:refund")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.NoError(t, ledger.ValidateBalanced(entriesToPointers(entries)))
}

func TestTrancheReleaseFlow(t *testing.T) {
	f := newFixture(t)
	actor := testActor()
	offering := f.openOffering(t, "OFF-C1")

	var milestone *invest.Milestone
	var tranche *invest.Tranche
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		milestone, err = f.milestones.Create(ctx, CreateMilestoneInput{
			Actor:      actor,
			OfferingID: offering.ID,
			Title:      "Construction complete",
		})
		if err != nil {
			return err
		}
		tranche, err = f.tranches.Create(ctx, CreateTrancheInput{
			Actor:       actor,
			Reference:   "TR-C1",
			OfferingID:  offering.ID,
			MilestoneID: milestone.ID,
			Amount:      valueobject.NewMoneyUSDFromFloat(10_000),
		})
		return err
	}))

	// Eligibility is gated on the verified milestone.
	err := f.inTx(t, func(ctx context.Context) error {
		_, err := f.tranches.MarkEligible(ctx, TransitionTrancheInput{Actor: actor, TrancheID: tranche.ID})
		return err
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		if _, err := f.milestones.SubmitEvidence(ctx, TransitionMilestoneInput{Actor: actor, MilestoneID: milestone.ID}); err != nil {
			return err
		}
		if _, err := f.milestones.StartReview(ctx, TransitionMilestoneInput{Actor: actor, MilestoneID: milestone.ID}); err != nil {
			return err
		}
		if _, err := f.milestones.Verify(ctx, VerifyMilestoneInput{Actor: actor, MilestoneID: milestone.ID, ReviewItemsComplete: true}); err != nil {
			return err
		}
		_, err := f.tranches.MarkEligible(ctx, TransitionTrancheInput{Actor: actor, TrancheID: tranche.ID})
		return err
	}))

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.tranches.Release(ctx, ReleaseTrancheInput{
			Actor:          actor,
			TrancheID:      tranche.ID,
			PayoutApproved: true,
			IdempotencyKey: "release-tr-c1",
		})
		return err
	}))

	ctx := context.Background()
	payout, err := f.ledger.AccountBalance(ctx, ledger.LedgerPayout, tranche.PayoutAccountRef())
	require.NoError(t, err)
	assert.True(t, payout.Equal(tranche.Amount))

	escrow, err := f.ledger.AccountBalance(ctx, ledger.LedgerEscrow, offering.EscrowAccountRef())
	require.NoError(t, err)
	assert.True(t, escrow.Equal(tranche.Amount.Neg()))

	// Reversal mirrors the release and keys its entries by the command's
	// idempotency key, so a retried reversal cannot double-post.
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.tranches.Reverse(ctx, ReverseTrancheInput{
			Actor:          actor,
			TrancheID:      tranche.ID,
			IdempotencyKey: "reverse-tr-c1",
		})
		return err
	}))
	payout, err = f.ledger.AccountBalance(ctx, ledger.LedgerPayout, tranche.PayoutAccountRef())
	require.NoError(t, err)
	assert.True(t, payout.IsZero())

	reversal, err := f.ledger.EntriesByExternalRef(ctx, "tranche:TR-C1:reversal")
	require.NoError(t, err)
	require.Len(t, reversal, 2)
	keys := []string{reversal[0].IdempotencyKey, reversal[1].IdempotencyKey}
	assert.ElementsMatch(t, []string{"reverse-tr-c1:escrow", "reverse-tr-c1:payout"}, keys)

	// Reposting with the same command key is refused by the ledger.
	err = f.inTx(t, func(ctx context.Context) error {
		current, err := f.tranches.Get(ctx, tranche.ID)
		if err != nil {
			return err
		}
		return f.tranches.postRelease(ctx, current, "reverse-tr-c1", true)
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestOfferingServicingRequiresAllocationAnchor(t *testing.T) {
	f := newFixture(t)
	actor := testActor()
	offering := f.openOffering(t, "OFF-D1")

	allocation := map[string]any{"SUB-1": "60%", "SUB-2": "40%"}
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.offerings.Close(ctx, CloseOfferingInput{
			Actor:      actor,
			OfferingID: offering.ID,
			Allocation: allocation,
		})
		return err
	}))

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		_, err := f.offerings.EnterServicing(ctx, TransitionOfferingInput{Actor: actor, OfferingID: offering.ID})
		return err
	}))

	current, err := f.offerings.Get(context.Background(), offering.ID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.OfferingServicing, current.State)
}

func TestOfferingServicingBlockedWithoutAnchor(t *testing.T) {
	f := newFixture(t)
	actor := testActor()

	// A closed offering with no allocation anchor, as if closed before the
	// anchoring checkpoint existed.
	offering, err := invest.NewOffering("OFF-D2", "Legacy", valueobject.NewMoneyUSDFromFloat(100))
	require.NoError(t, err)
	offering.State = statemachine.OfferingClosed
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		return f.offeringRepo.Create(ctx, offering)
	}))

	err = f.inTx(t, func(ctx context.Context) error {
		_, err := f.offerings.EnterServicing(ctx, TransitionOfferingInput{Actor: actor, OfferingID: offering.ID})
		return err
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))
}

func entriesToPointers(entries []ledger.Entry) []*ledger.Entry {
	out := make([]*ledger.Entry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	return out
}

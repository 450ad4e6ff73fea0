package statemachine

import (
	"errors"
	"testing"

	"github.com/invest/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertTransition(t *testing.T) {
	registry := NewRegistry()

	t.Run("allows registered edge without guards", func(t *testing.T) {
		err := registry.AssertTransition(EntityApplication, ApplicationDraft, ApplicationSubmitted, nil)
		assert.NoError(t, err)
	})

	t.Run("rejects unregistered edge", func(t *testing.T) {
		err := registry.AssertTransition(EntityApplication, ApplicationDraft, ApplicationApproved, nil)
		require.Error(t, err)
		assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))
	})

	t.Run("rejects unknown entity type", func(t *testing.T) {
		err := registry.AssertTransition(EntityType("invoice"), "draft", "sent", nil)
		require.Error(t, err)
		assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))
	})

	t.Run("allows guarded edge when all guards true", func(t *testing.T) {
		err := registry.AssertTransition(EntityApplication, ApplicationInReview, ApplicationApproved, Guards{
			GuardTasksComplete:           true,
			GuardEvidenceVerified:        true,
			GuardLegalChecklistSatisfied: true,
		})
		assert.NoError(t, err)
	})

	t.Run("fails guarded edge when a guard is false", func(t *testing.T) {
		err := registry.AssertTransition(EntityApplication, ApplicationInReview, ApplicationApproved, Guards{
			GuardTasksComplete:           true,
			GuardEvidenceVerified:        false,
			GuardLegalChecklistSatisfied: true,
		})
		require.Error(t, err)
		var guardErr *GuardError
		require.True(t, errors.As(err, &guardErr))
		assert.Equal(t, GuardEvidenceVerified, guardErr.Guard)
		assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))
	})

	t.Run("fails guarded edge when a guard is absent", func(t *testing.T) {
		err := registry.AssertTransition(EntityTranche, TrancheEligible, TrancheReleased, Guards{})
		require.Error(t, err)
		var guardErr *GuardError
		require.True(t, errors.As(err, &guardErr))
		assert.Equal(t, GuardPayoutApproved, guardErr.Guard)
	})

	t.Run("extra guard facts are ignored", func(t *testing.T) {
		err := registry.AssertTransition(EntityMilestone, MilestoneInReview, MilestoneVerified, Guards{
			GuardReviewItemsComplete: true,
			GuardPayoutApproved:      false,
		})
		assert.NoError(t, err)
	})
}

// Every registered edge must succeed when all its guards are true, and every
// unregistered pair over the entity's state set must fail.
func TestTransitionSoundness(t *testing.T) {
	registry := NewRegistry()
	entities := []EntityType{EntityApplication, EntityOffering, EntitySubscription, EntityMilestone, EntityTranche}

	allGuardsTrue := Guards{
		GuardTasksComplete:           true,
		GuardEvidenceVerified:        true,
		GuardLegalChecklistSatisfied: true,
		GuardReviewApproved:          true,
		GuardAllocationFinalized:     true,
		GuardPaymentReceived:         true,
		GuardReviewItemsComplete:     true,
		GuardMilestoneVerified:       true,
		GuardPayoutApproved:          true,
	}

	for _, entityType := range entities {
		edges := registry.Edges(entityType)
		require.NotEmpty(t, edges, "entity %s has no table", entityType)

		registered := make(map[[2]State]bool, len(edges))
		for _, e := range edges {
			registered[e] = true
			assert.NoError(t,
				registry.AssertTransition(entityType, e[0], e[1], allGuardsTrue),
				"%s: registered edge %s->%s must pass with all guards true", entityType, e[0], e[1])
		}

		states := registry.States(entityType)
		for _, from := range states {
			for _, to := range states {
				if registered[[2]State{from, to}] {
					continue
				}
				err := registry.AssertTransition(entityType, from, to, allGuardsTrue)
				require.Error(t, err, "%s: %s->%s must be rejected", entityType, from, to)
				assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	registry := NewRegistry()

	terminal := map[EntityType][]State{
		EntityApplication:  {ApplicationApproved, ApplicationRejected, ApplicationWithdrawn},
		EntityOffering:     {OfferingCancelled, OfferingExited},
		EntitySubscription: {SubscriptionRedeemed, SubscriptionCancelled, SubscriptionRefunded},
		EntityMilestone:    {MilestoneVerified, MilestoneRejected},
		EntityTranche:      {TrancheFailed, TrancheReversed},
	}

	for entityType, states := range terminal {
		for _, s := range states {
			assert.True(t, registry.IsTerminal(entityType, s), "%s %s should be terminal", entityType, s)
		}
	}

	assert.False(t, registry.IsTerminal(EntityTranche, TrancheReleased), "released tranche can still be reversed")
	assert.False(t, registry.IsTerminal(EntityApplication, ApplicationDraft))
	assert.False(t, registry.IsTerminal(EntityOffering, OfferingServicing))
}

func TestRequiredGuards(t *testing.T) {
	registry := NewRegistry()

	guards := registry.RequiredGuards(EntityApplication, ApplicationInReview, ApplicationApproved)
	assert.ElementsMatch(t, []GuardName{GuardTasksComplete, GuardEvidenceVerified, GuardLegalChecklistSatisfied}, guards)

	assert.Empty(t, registry.RequiredGuards(EntityApplication, ApplicationDraft, ApplicationRejected))
}

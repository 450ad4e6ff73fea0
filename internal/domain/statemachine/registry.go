package statemachine

import (
	"fmt"

	"github.com/invest/backend/internal/domain/shared"
)

type edge struct {
	from State
	to   State
}

// transitionTable maps each legal edge to the guards it requires
type transitionTable map[edge][]GuardName

// Registry holds the per-entity transition tables. It is built once at
// startup and never mutated afterwards; consumers share one instance.
type Registry struct {
	tables map[EntityType]transitionTable
}

// NewRegistry builds the registry with the platform's lifecycle tables
func NewRegistry() *Registry {
	r := &Registry{tables: make(map[EntityType]transitionTable)}

	r.tables[EntityApplication] = transitionTable{
		{ApplicationDraft, ApplicationSubmitted}:     nil,
		{ApplicationSubmitted, ApplicationInReview}:  nil,
		{ApplicationInReview, ApplicationNeedsInfo}:  nil,
		{ApplicationInReview, ApplicationApproved}:   {GuardTasksComplete, GuardEvidenceVerified, GuardLegalChecklistSatisfied},
		{ApplicationInReview, ApplicationRejected}:   nil,
		{ApplicationNeedsInfo, ApplicationSubmitted}: nil,
		// any active application can be withdrawn by the applicant
		{ApplicationDraft, ApplicationWithdrawn}:     nil,
		{ApplicationSubmitted, ApplicationWithdrawn}: nil,
		{ApplicationInReview, ApplicationWithdrawn}:  nil,
		{ApplicationNeedsInfo, ApplicationWithdrawn}: nil,
	}

	r.tables[EntityOffering] = transitionTable{
		{OfferingDraft, OfferingPendingReview}:         nil,
		{OfferingPendingReview, OfferingOpen}:          {GuardReviewApproved},
		{OfferingPendingReview, OfferingNeedsRevision}: nil,
		{OfferingNeedsRevision, OfferingPendingReview}: nil,
		{OfferingOpen, OfferingPaused}:                 nil,
		{OfferingPaused, OfferingOpen}:                 nil,
		{OfferingOpen, OfferingClosed}:                 nil,
		{OfferingPaused, OfferingClosed}:               nil,
		{OfferingClosed, OfferingCancelled}:            nil,
		{OfferingClosed, OfferingServicing}:            {GuardAllocationFinalized},
		{OfferingServicing, OfferingExited}:            nil,
	}

	r.tables[EntitySubscription] = transitionTable{
		{SubscriptionDraft, SubscriptionCommitted}:              nil,
		{SubscriptionCommitted, SubscriptionPaymentPending}:     nil,
		{SubscriptionPaymentPending, SubscriptionPaid}:          {GuardPaymentReceived},
		{SubscriptionPaid, SubscriptionAllocationConfirmed}:     nil,
		{SubscriptionAllocationConfirmed, SubscriptionRedeemed}: nil,
		// any active subscription can be cancelled or refunded
		{SubscriptionCommitted, SubscriptionCancelled}:           nil,
		{SubscriptionPaymentPending, SubscriptionCancelled}:      nil,
		{SubscriptionPaid, SubscriptionCancelled}:                nil,
		{SubscriptionAllocationConfirmed, SubscriptionCancelled}: nil,
		{SubscriptionCommitted, SubscriptionRefunded}:            nil,
		{SubscriptionPaymentPending, SubscriptionRefunded}:       nil,
		{SubscriptionPaid, SubscriptionRefunded}:                 nil,
		{SubscriptionAllocationConfirmed, SubscriptionRefunded}:  nil,
	}

	r.tables[EntityMilestone] = transitionTable{
		{MilestoneNotStarted, MilestoneEvidenceSubmitted}: nil,
		{MilestoneEvidenceSubmitted, MilestoneInReview}:   nil,
		{MilestoneInReview, MilestoneVerified}:            {GuardReviewItemsComplete},
		{MilestoneInReview, MilestoneRejected}:            nil,
	}

	r.tables[EntityTranche] = transitionTable{
		{TrancheLocked, TrancheEligible}:   {GuardMilestoneVerified},
		{TrancheEligible, TrancheReleased}: {GuardPayoutApproved},
		{TrancheEligible, TrancheFailed}:   nil,
		{TrancheReleased, TrancheReversed}: nil,
	}

	return r
}

// AssertTransition checks that (from, to) is a registered edge for the
// entity type and that every guard the edge requires is present and true.
// A failed assertion must abort the caller's unit of work.
func (r *Registry) AssertTransition(entityType EntityType, from, to State, guards Guards) error {
	table, ok := r.tables[entityType]
	if !ok {
		return shared.NewDomainError(shared.CodeInvalidTransition, fmt.Sprintf("no transition table registered for entity type %q", entityType))
	}

	required, ok := table[edge{from, to}]
	if !ok {
		return NewInvalidTransitionError(entityType, from, to)
	}

	for _, guard := range required {
		if satisfied, present := guards[guard]; !present || !satisfied {
			return NewGuardError(guard)
		}
	}

	return nil
}

// RequiredGuards returns the guards a registered edge requires, or nil when
// the edge is not registered.
func (r *Registry) RequiredGuards(entityType EntityType, from, to State) []GuardName {
	table, ok := r.tables[entityType]
	if !ok {
		return nil
	}
	required := table[edge{from, to}]
	out := make([]GuardName, len(required))
	copy(out, required)
	return out
}

// IsTerminal reports whether the state has no outgoing edges for the entity
func (r *Registry) IsTerminal(entityType EntityType, state State) bool {
	table, ok := r.tables[entityType]
	if !ok {
		return false
	}
	for e := range table {
		if e.from == state {
			return false
		}
	}
	return true
}

// Edges returns every registered (from, to) pair for the entity type
func (r *Registry) Edges(entityType EntityType) [][2]State {
	table, ok := r.tables[entityType]
	if !ok {
		return nil
	}
	out := make([][2]State, 0, len(table))
	for e := range table {
		out = append(out, [2]State{e.from, e.to})
	}
	return out
}

// States returns every state mentioned by the entity's table
func (r *Registry) States(entityType EntityType) []State {
	table, ok := r.tables[entityType]
	if !ok {
		return nil
	}
	seen := make(map[State]struct{})
	out := make([]State, 0)
	for e := range table {
		if _, dup := seen[e.from]; !dup {
			seen[e.from] = struct{}{}
			out = append(out, e.from)
		}
		if _, dup := seen[e.to]; !dup {
			seen[e.to] = struct{}{}
			out = append(out, e.to)
		}
	}
	return out
}

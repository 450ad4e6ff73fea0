package statemachine

// EntityType identifies which lifecycle table governs an entity
type EntityType string

const (
	EntityApplication  EntityType = "application"
	EntityOffering     EntityType = "offering"
	EntitySubscription EntityType = "subscription"
	EntityMilestone    EntityType = "milestone"
	EntityTranche      EntityType = "tranche"
)

// IsValid returns true for a known entity type
func (e EntityType) IsValid() bool {
	switch e {
	case EntityApplication, EntityOffering, EntitySubscription, EntityMilestone, EntityTranche:
		return true
	}
	return false
}

// State is a lifecycle state of a governed entity
type State string

// Application lifecycle states
const (
	ApplicationDraft     State = "draft"
	ApplicationSubmitted State = "submitted"
	ApplicationInReview  State = "in_review"
	ApplicationNeedsInfo State = "needs_info"
	ApplicationApproved  State = "approved"
	ApplicationRejected  State = "rejected"
	ApplicationWithdrawn State = "withdrawn"
)

// Offering lifecycle states
const (
	OfferingDraft         State = "draft"
	OfferingPendingReview State = "pending_review"
	OfferingNeedsRevision State = "needs_revision"
	OfferingOpen          State = "open"
	OfferingPaused        State = "paused"
	OfferingClosed        State = "closed"
	OfferingCancelled     State = "cancelled"
	OfferingServicing     State = "servicing"
	OfferingExited        State = "exited"
)

// Subscription lifecycle states
const (
	SubscriptionDraft               State = "draft"
	SubscriptionCommitted           State = "committed"
	SubscriptionPaymentPending      State = "payment_pending"
	SubscriptionPaid                State = "paid"
	SubscriptionAllocationConfirmed State = "allocation_confirmed"
	SubscriptionRedeemed            State = "redeemed"
	SubscriptionCancelled           State = "cancelled"
	SubscriptionRefunded            State = "refunded"
)

// Milestone lifecycle states
const (
	MilestoneNotStarted        State = "not_started"
	MilestoneEvidenceSubmitted State = "evidence_submitted"
	MilestoneInReview          State = "in_review"
	MilestoneVerified          State = "verified"
	MilestoneRejected          State = "rejected"
)

// Tranche lifecycle states
const (
	TrancheLocked   State = "locked"
	TrancheEligible State = "eligible"
	TrancheReleased State = "released"
	TrancheFailed   State = "failed"
	TrancheReversed State = "reversed"
)

// GuardName identifies a named boolean precondition on a transition edge.
// Guards are facts the caller computes; the registry only checks presence
// and truth.
type GuardName string

// Guard names referenced by the transition tables
const (
	GuardTasksComplete           GuardName = "tasksComplete"
	GuardEvidenceVerified        GuardName = "evidenceVerified"
	GuardLegalChecklistSatisfied GuardName = "legalChecklistSatisfied"
	GuardReviewApproved          GuardName = "reviewApproved"
	GuardAllocationFinalized     GuardName = "allocationFinalized"
	GuardPaymentReceived         GuardName = "paymentReceived"
	GuardReviewItemsComplete     GuardName = "reviewItemsComplete"
	GuardMilestoneVerified       GuardName = "milestoneVerified"
	GuardPayoutApproved          GuardName = "payoutApproved"
	GuardIdempotencyKeyPresent   GuardName = "idempotency_key_present"
)

// Guards maps guard names to caller-computed boolean facts
type Guards map[GuardName]bool

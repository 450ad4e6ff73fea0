package invest

import (
	"context"

	"github.com/google/uuid"
)

// ApplicationRepository persists applications
type ApplicationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Application, error)
	Create(ctx context.Context, application *Application) error
	Save(ctx context.Context, application *Application) error
}

// OfferingRepository persists offerings
type OfferingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Offering, error)
	Create(ctx context.Context, offering *Offering) error
	Save(ctx context.Context, offering *Offering) error
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Create(ctx context.Context, subscription *Subscription) error
	Save(ctx context.Context, subscription *Subscription) error
}

// MilestoneRepository persists milestones
type MilestoneRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Milestone, error)
	Create(ctx context.Context, milestone *Milestone) error
	Save(ctx context.Context, milestone *Milestone) error
}

// TrancheRepository persists tranches
type TrancheRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tranche, error)
	Create(ctx context.Context, tranche *Tranche) error
	Save(ctx context.Context, tranche *Tranche) error
}

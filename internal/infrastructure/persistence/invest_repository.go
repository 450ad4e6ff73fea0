package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// gormEntityRepository is the shared CRUD base for invest aggregates.
// Save uses optimistic locking on the aggregate version: a concurrent
// writer that bumped the version first turns the update into a no-op,
// surfaced as a concurrency conflict for the executor to retry or abort.
type gormEntityRepository[T any] struct {
	db *gorm.DB
}

func (r *gormEntityRepository[T]) conn(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *gormEntityRepository[T]) findByID(ctx context.Context, id uuid.UUID) (*T, error) {
	var entity T
	if err := r.conn(ctx).First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

func (r *gormEntityRepository[T]) create(ctx context.Context, entity *T) error {
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *gormEntityRepository[T]) saveWithVersion(ctx context.Context, entity *T, id uuid.UUID, version int) error {
	result := r.conn(ctx).
		Model(entity).
		Where("id = ? AND version = ?", id, version-1).
		Select("*").
		Omit("id", "created_at").
		Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Entity was modified by another process")
	}
	return nil
}

// GormApplicationRepository implements invest.ApplicationRepository
type GormApplicationRepository struct {
	gormEntityRepository[invest.Application]
}

// NewGormApplicationRepository creates a new GormApplicationRepository
func NewGormApplicationRepository(db *gorm.DB) *GormApplicationRepository {
	return &GormApplicationRepository{gormEntityRepository[invest.Application]{db: db}}
}

// FindByID finds an application by ID
func (r *GormApplicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*invest.Application, error) {
	return r.findByID(ctx, id)
}

// Create inserts a new application
func (r *GormApplicationRepository) Create(ctx context.Context, application *invest.Application) error {
	return r.create(ctx, application)
}

// Save updates an application with optimistic locking
func (r *GormApplicationRepository) Save(ctx context.Context, application *invest.Application) error {
	return r.saveWithVersion(ctx, application, application.ID, application.Version)
}

// GormOfferingRepository implements invest.OfferingRepository
type GormOfferingRepository struct {
	gormEntityRepository[invest.Offering]
}

// NewGormOfferingRepository creates a new GormOfferingRepository
func NewGormOfferingRepository(db *gorm.DB) *GormOfferingRepository {
	return &GormOfferingRepository{gormEntityRepository[invest.Offering]{db: db}}
}

// FindByID finds an offering by ID
func (r *GormOfferingRepository) FindByID(ctx context.Context, id uuid.UUID) (*invest.Offering, error) {
	return r.findByID(ctx, id)
}

// Create inserts a new offering
func (r *GormOfferingRepository) Create(ctx context.Context, offering *invest.Offering) error {
	return r.create(ctx, offering)
}

// Save updates an offering with optimistic locking
func (r *GormOfferingRepository) Save(ctx context.Context, offering *invest.Offering) error {
	return r.saveWithVersion(ctx, offering, offering.ID, offering.Version)
}

// GormSubscriptionRepository implements invest.SubscriptionRepository
type GormSubscriptionRepository struct {
	gormEntityRepository[invest.Subscription]
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{gormEntityRepository[invest.Subscription]{db: db}}
}

// FindByID finds a subscription by ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*invest.Subscription, error) {
	return r.findByID(ctx, id)
}

// Create inserts a new subscription
func (r *GormSubscriptionRepository) Create(ctx context.Context, subscription *invest.Subscription) error {
	return r.create(ctx, subscription)
}

// Save updates a subscription with optimistic locking
func (r *GormSubscriptionRepository) Save(ctx context.Context, subscription *invest.Subscription) error {
	return r.saveWithVersion(ctx, subscription, subscription.ID, subscription.Version)
}

// GormMilestoneRepository implements invest.MilestoneRepository
type GormMilestoneRepository struct {
	gormEntityRepository[invest.Milestone]
}

// NewGormMilestoneRepository creates a new GormMilestoneRepository
func NewGormMilestoneRepository(db *gorm.DB) *GormMilestoneRepository {
	return &GormMilestoneRepository{gormEntityRepository[invest.Milestone]{db: db}}
}

// FindByID finds a milestone by ID
func (r *GormMilestoneRepository) FindByID(ctx context.Context, id uuid.UUID) (*invest.Milestone, error) {
	return r.findByID(ctx, id)
}

// Create inserts a new milestone
func (r *GormMilestoneRepository) Create(ctx context.Context, milestone *invest.Milestone) error {
	return r.create(ctx, milestone)
}

// Save updates a milestone with optimistic locking
func (r *GormMilestoneRepository) Save(ctx context.Context, milestone *invest.Milestone) error {
	return r.saveWithVersion(ctx, milestone, milestone.ID, milestone.Version)
}

// GormTrancheRepository implements invest.TrancheRepository
type GormTrancheRepository struct {
	gormEntityRepository[invest.Tranche]
}

// NewGormTrancheRepository creates a new GormTrancheRepository
func NewGormTrancheRepository(db *gorm.DB) *GormTrancheRepository {
	return &GormTrancheRepository{gormEntityRepository[invest.Tranche]{db: db}}
}

// FindByID finds a tranche by ID
func (r *GormTrancheRepository) FindByID(ctx context.Context, id uuid.UUID) (*invest.Tranche, error) {
	return r.findByID(ctx, id)
}

// Create inserts a new tranche
func (r *GormTrancheRepository) Create(ctx context.Context, tranche *invest.Tranche) error {
	return r.create(ctx, tranche)
}

// Save updates a tranche with optimistic locking
func (r *GormTrancheRepository) Save(ctx context.Context, tranche *invest.Tranche) error {
	return r.saveWithVersion(ctx, tranche, tranche.ID, tranche.Version)
}

var (
	_ invest.ApplicationRepository  = (*GormApplicationRepository)(nil)
	_ invest.OfferingRepository     = (*GormOfferingRepository)(nil)
	_ invest.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
	_ invest.MilestoneRepository    = (*GormMilestoneRepository)(nil)
	_ invest.TrancheRepository      = (*GormTrancheRepository)(nil)
)

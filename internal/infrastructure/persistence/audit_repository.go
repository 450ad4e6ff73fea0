package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormAuditEventRepository implements audit.EventRepository using GORM
type GormAuditEventRepository struct {
	db *gorm.DB
}

// NewGormAuditEventRepository creates a new GormAuditEventRepository
func NewGormAuditEventRepository(db *gorm.DB) *GormAuditEventRepository {
	return &GormAuditEventRepository{db: db}
}

// Create appends an audit event. Writes are refused outside an ambient
// transaction so an event can never outlive an aborted mutation.
func (r *GormAuditEventRepository) Create(ctx context.Context, event *audit.Event) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return shared.NewDomainError(shared.CodeInvalidInput, "Audit events must be appended inside a transaction")
	}
	return tx.Create(event).Error
}

// FindByEntity returns the audit trail for an entity, oldest first
func (r *GormAuditEventRepository) FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]audit.Event, error) {
	conn := r.db.WithContext(ctx)
	if tx, ok := TxFromContext(ctx); ok {
		conn = tx
	}
	var events []audit.Event
	if err := conn.
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

var _ audit.EventRepository = (*GormAuditEventRepository)(nil)

// GormAnchorRepository implements audit.AnchorRepository using GORM
type GormAnchorRepository struct {
	db *gorm.DB
}

// NewGormAnchorRepository creates a new GormAnchorRepository
func NewGormAnchorRepository(db *gorm.DB) *GormAnchorRepository {
	return &GormAnchorRepository{db: db}
}

func (r *GormAnchorRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create inserts an anchor, translating the unique-index violation
func (r *GormAnchorRepository) Create(ctx context.Context, record *audit.AnchorRecord) error {
	if err := r.conn(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Find returns the anchor for a checkpoint, or nil when absent
func (r *GormAnchorRepository) Find(ctx context.Context, entityType string, entityID uuid.UUID, eventType string) (*audit.AnchorRecord, error) {
	var record audit.AnchorRecord
	if err := r.conn(ctx).
		First(&record, "entity_type = ? AND entity_id = ? AND event_type = ?", entityType, entityID, eventType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

var _ audit.AnchorRepository = (*GormAnchorRepository)(nil)

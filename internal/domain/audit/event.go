package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
)

// Actor identifies who performed a mutation
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Event is one append-only audit trail entry. Every committed mutation has
// exactly one event, written in the same transaction as the mutation.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ActorRole  string    `gorm:"type:varchar(50);not null"`
	EntityType string    `gorm:"type:varchar(30);not null;index:idx_audit_entity,priority:1"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity,priority:2"`
	Action     string    `gorm:"type:varchar(100);not null"`
	Notes      string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (Event) TableName() string {
	return "audit_events"
}

// NewEvent creates a validated audit event
func NewEvent(actor Actor, entityType string, entityID uuid.UUID, action, notes string) (*Event, error) {
	if actor.ID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Actor ID cannot be empty")
	}
	if entityType == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Entity type cannot be empty")
	}
	if entityID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Entity ID cannot be empty")
	}
	if action == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Action cannot be empty")
	}

	return &Event{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Notes:      notes,
		OccurredAt: time.Now(),
	}, nil
}

// EventRepository persists audit events
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Event, error)
}

// Log appends audit events inside the mutation's transaction
type Log struct {
	repo EventRepository
}

// NewLog creates an audit log
func NewLog(repo EventRepository) *Log {
	return &Log{repo: repo}
}

// Append writes one audit event. Callers must invoke it inside the same
// transaction as the mutation it documents so both commit or abort together.
func (l *Log) Append(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, action, notes string) error {
	event, err := NewEvent(actor, entityType, entityID, action, notes)
	if err != nil {
		return err
	}
	return l.repo.Create(ctx, event)
}

// Trail returns the events recorded for an entity, oldest first
func (l *Log) Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]Event, error) {
	return l.repo.FindByEntity(ctx, entityType, entityID)
}

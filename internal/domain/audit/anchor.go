package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
)

// AnchorRecord is a tamper-evident checkpoint: the canonical hash of a
// payload captured at a significant lifecycle moment. At most one anchor
// exists per (entityType, entityID, eventType); the first write wins.
type AnchorRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityType    string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_anchor_entity_event,priority:1"`
	EntityID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_anchor_entity_event,priority:2"`
	EventType     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_anchor_entity_event,priority:3"`
	CanonicalHash string    `gorm:"type:char(64);not null"`
	Payload       string    `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AnchorRecord) TableName() string {
	return "anchor_records"
}

// AnchorRepository persists anchor records
type AnchorRepository interface {
	// Create inserts an anchor; returns shared.ErrAlreadyExists when one
	// exists for the same (entityType, entityID, eventType)
	Create(ctx context.Context, record *AnchorRecord) error
	Find(ctx context.Context, entityType string, entityID uuid.UUID, eventType string) (*AnchorRecord, error)
}

// AnchorService creates and looks up checkpoint anchors
type AnchorService struct {
	repo AnchorRepository
}

// NewAnchorService creates an anchor service
func NewAnchorService(repo AnchorRepository) *AnchorService {
	return &AnchorService{repo: repo}
}

// CreateAnchorRecord anchors the canonical hash of payload for the given
// checkpoint. Repeated calls with the same payload return the stored anchor
// without writing; a different payload for an existing checkpoint fails with
// CONFLICT rather than silently replacing the evidence.
func (s *AnchorService) CreateAnchorRecord(ctx context.Context, entityType string, entityID uuid.UUID, eventType string, payload any) (*AnchorRecord, error) {
	if entityType == "" || eventType == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Entity type and event type are required")
	}
	if entityID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Entity ID cannot be empty")
	}

	canonical, err := shared.CanonicalJSON(payload)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Payload cannot be canonicalized: "+err.Error())
	}
	hash, err := shared.CanonicalHash(payload)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, entityType, entityID, eventType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.reconcile(existing, hash)
	}

	record := &AnchorRecord{
		ID:            uuid.New(),
		EntityType:    entityType,
		EntityID:      entityID,
		EventType:     eventType,
		CanonicalHash: hash,
		Payload:       string(canonical),
		CreatedAt:     time.Now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// A concurrent call won the unique index race; return its anchor.
		if shared.IsCode(err, "ALREADY_EXISTS") {
			winner, findErr := s.repo.Find(ctx, entityType, entityID, eventType)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return s.reconcile(winner, hash)
			}
		}
		return nil, err
	}
	return record, nil
}

func (s *AnchorService) reconcile(existing *AnchorRecord, hash string) (*AnchorRecord, error) {
	if existing.CanonicalHash != hash {
		return nil, shared.NewDomainError(
			shared.CodeConflict,
			"Anchor already exists for this checkpoint with a different payload hash",
		)
	}
	return existing, nil
}

// HasAnchor reports whether a checkpoint anchor exists
func (s *AnchorService) HasAnchor(ctx context.Context, entityType string, entityID uuid.UUID, eventType string) (bool, error) {
	record, err := s.repo.Find(ctx, entityType, entityID, eventType)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// GetAnchor returns the checkpoint anchor, or nil when absent
func (s *AnchorService) GetAnchor(ctx context.Context, entityType string, entityID uuid.UUID, eventType string) (*AnchorRecord, error) {
	return s.repo.Find(ctx, entityType, entityID, eventType)
}

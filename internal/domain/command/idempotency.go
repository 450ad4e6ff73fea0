package command

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord stores the outcome of an executed mutating command so a
// retried command with the same key replays the stored response instead of
// executing again. Records are immutable once written.
type IdempotencyRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	Key          string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_idempotency_key_user_route,priority:1"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_key_user_route,priority:2"`
	Route        string    `gorm:"type:varchar(200);not null;uniqueIndex:idx_idempotency_key_user_route,priority:3"`
	RequestHash  string    `gorm:"type:char(64);not null"`
	ResponseBody string    `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// NewIdempotencyRecord creates a record for a freshly executed command
func NewIdempotencyRecord(key string, userID uuid.UUID, route, requestHash string, responseBody []byte) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:           uuid.New(),
		Key:          key,
		UserID:       userID,
		Route:        route,
		RequestHash:  requestHash,
		ResponseBody: string(responseBody),
		CreatedAt:    time.Now(),
	}
}

// Repository persists idempotency records
type Repository interface {
	// Find returns the record for (key, userID, route), or nil when absent
	Find(ctx context.Context, key string, userID uuid.UUID, route string) (*IdempotencyRecord, error)
	// Create inserts a new record; returns shared.ErrAlreadyExists when a
	// concurrent command already inserted one for the same (key, user, route)
	Create(ctx context.Context, record *IdempotencyRecord) error
}

package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/command"
	"github.com/invest/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormIdempotencyRepository implements command.Repository using GORM
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewGormIdempotencyRepository creates a new GormIdempotencyRepository
func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

func (r *GormIdempotencyRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Find returns the record for (key, userID, route), or nil when absent
func (r *GormIdempotencyRepository) Find(ctx context.Context, key string, userID uuid.UUID, route string) (*command.IdempotencyRecord, error) {
	var record command.IdempotencyRecord
	if err := r.conn(ctx).
		First(&record, "key = ? AND user_id = ? AND route = ?", key, userID, route).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Create inserts a new record, translating unique violations so the caller
// can converge on the concurrent winner's response
func (r *GormIdempotencyRepository) Create(ctx context.Context, record *command.IdempotencyRecord) error {
	if err := r.conn(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

var _ command.Repository = (*GormIdempotencyRepository)(nil)

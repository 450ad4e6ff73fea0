package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEventRepo struct {
	mu     sync.Mutex
	events []Event
}

func (r *memEventRepo) Create(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memEventRepo) FindByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAnchorRepo struct {
	mu      sync.Mutex
	anchors map[string]AnchorRecord
}

func newMemAnchorRepo() *memAnchorRepo {
	return &memAnchorRepo{anchors: make(map[string]AnchorRecord)}
}

func anchorKey(entityType string, entityID uuid.UUID, eventType string) string {
	return entityType + "/" + entityID.String() + "/" + eventType
}

func (r *memAnchorRepo) Create(_ context.Context, record *AnchorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := anchorKey(record.EntityType, record.EntityID, record.EventType)
	if _, exists := r.anchors[key]; exists {
		return shared.ErrAlreadyExists
	}
	r.anchors[key] = *record
	return nil
}

func (r *memAnchorRepo) Find(_ context.Context, entityType string, entityID uuid.UUID, eventType string) (*AnchorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.anchors[anchorKey(entityType, entityID, eventType)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func TestLogAppend(t *testing.T) {
	repo := &memEventRepo{}
	log := NewLog(repo)
	actor := Actor{ID: uuid.New(), Role: "reviewer"}
	entityID := uuid.New()

	t.Run("appends one event per mutation", func(t *testing.T) {
		err := log.Append(context.Background(), actor, "application", entityID, "ApplicationApproved", "all checks passed")
		require.NoError(t, err)

		trail, err := log.Trail(context.Background(), "application", entityID)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, "ApplicationApproved", trail[0].Action)
		assert.Equal(t, actor.ID, trail[0].ActorID)
		assert.Equal(t, "reviewer", trail[0].ActorRole)
	})

	t.Run("rejects empty action", func(t *testing.T) {
		err := log.Append(context.Background(), actor, "application", entityID, "", "")
		require.Error(t, err)
	})

	t.Run("rejects nil actor", func(t *testing.T) {
		err := log.Append(context.Background(), Actor{}, "application", entityID, "ApplicationApproved", "")
		require.Error(t, err)
	})
}

func TestAnchorService(t *testing.T) {
	entityID := uuid.New()
	payload := map[string]any{"allocations": []any{"sub-1", "sub-2"}, "total": "1000.00"}

	t.Run("creates anchor with deterministic hash", func(t *testing.T) {
		svc := NewAnchorService(newMemAnchorRepo())
		record, err := svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", payload)
		require.NoError(t, err)
		assert.Len(t, record.CanonicalHash, 64)

		expected, err := shared.CanonicalHash(payload)
		require.NoError(t, err)
		assert.Equal(t, expected, record.CanonicalHash)
	})

	t.Run("repeat call with same payload returns stored anchor", func(t *testing.T) {
		svc := NewAnchorService(newMemAnchorRepo())
		first, err := svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", payload)
		require.NoError(t, err)

		// Key order differs; canonical hash must not.
		same := map[string]any{"total": "1000.00", "allocations": []any{"sub-1", "sub-2"}}
		second, err := svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", same)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.CanonicalHash, second.CanonicalHash)
	})

	t.Run("different payload for existing checkpoint fails with conflict", func(t *testing.T) {
		svc := NewAnchorService(newMemAnchorRepo())
		_, err := svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", payload)
		require.NoError(t, err)

		_, err = svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", map[string]any{"total": "999.00"})
		require.Error(t, err)
		assert.True(t, shared.IsCode(err, shared.CodeConflict))
	})

	t.Run("HasAnchor reflects the single checkpoint", func(t *testing.T) {
		svc := NewAnchorService(newMemAnchorRepo())
		has, err := svc.HasAnchor(context.Background(), "offering", entityID, "AllocationFinalized")
		require.NoError(t, err)
		assert.False(t, has)

		_, err = svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", payload)
		require.NoError(t, err)

		has, err = svc.HasAnchor(context.Background(), "offering", entityID, "AllocationFinalized")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("losing an insert race converges to the winner's anchor", func(t *testing.T) {
		repo := newMemAnchorRepo()
		svc := NewAnchorService(repo)

		winner := &AnchorRecord{
			ID:         uuid.New(),
			EntityType: "offering",
			EntityID:   entityID,
			EventType:  "AllocationFinalized",
		}
		hash, err := shared.CanonicalHash(payload)
		require.NoError(t, err)
		winner.CanonicalHash = hash
		require.NoError(t, repo.Create(context.Background(), winner))

		record, err := svc.CreateAnchorRecord(context.Background(), "offering", entityID, "AllocationFinalized", payload)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, record.ID)
	})
}

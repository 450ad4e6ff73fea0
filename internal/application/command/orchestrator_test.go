package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/command"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/cache"
	"github.com/invest/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type orchestratorFixture struct {
	db           *gorm.DB
	orchestrator *Orchestrator
	apps         *persistence.GormApplicationRepository
	cache        *cache.InMemoryReplayCache
}

func newFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))

	replayCache := cache.NewInMemoryReplayCache()
	t.Cleanup(func() { _ = replayCache.Close() })

	return &orchestratorFixture{
		db: db,
		orchestrator: NewOrchestrator(
			persistence.NewGormIdempotencyRepository(db),
			persistence.NewTxExecutor(db),
			replayCache,
			time.Hour,
			zap.NewNop(),
		),
		apps:  persistence.NewGormApplicationRepository(db),
		cache: replayCache,
	}
}

func strPtr(s string) *string { return &s }

func TestRunExecutesOnceAndReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	executions := 0

	spec := Spec{
		Key:     strPtr("key-1"),
		UserID:  userID,
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{"reference": "APP-100"},
		Execute: func(txCtx context.Context) (any, error) {
			executions++
			app, err := invest.NewApplication("APP-100", userID)
			if err != nil {
				return nil, err
			}
			if err := f.apps.Create(txCtx, app); err != nil {
				return nil, err
			}
			return map[string]string{"id": app.ID.String()}, nil
		},
	}

	first, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, executions)

	second, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, executions, "replay must not re-execute")
	assert.JSONEq(t, string(first), string(second))

	var count int64
	require.NoError(t, f.db.Model(&invest.Application{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRunConflictOnKeyReuseWithDifferentPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	spec := Spec{
		Key:     strPtr("key-reuse"),
		UserID:  userID,
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{"reference": "APP-200"},
		Execute: func(context.Context) (any, error) {
			return map[string]string{"ok": "yes"}, nil
		},
	}
	_, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)

	spec.Payload = map[string]any{"reference": "APP-201"}
	_, err = f.orchestrator.Run(ctx, spec)
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestRunPayloadKeyOrderDoesNotMatter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	executions := 0

	execute := func(context.Context) (any, error) {
		executions++
		return map[string]string{"ok": "yes"}, nil
	}

	_, err := f.orchestrator.Run(ctx, Spec{
		Key:     strPtr("key-order"),
		UserID:  userID,
		Route:   "POST /api/v1/things",
		Payload: map[string]any{"a": 1, "b": "two"},
		Execute: execute,
	})
	require.NoError(t, err)

	// Same logical payload built in a different insertion order.
	payload := map[string]any{}
	payload["b"] = "two"
	payload["a"] = 1
	_, err = f.orchestrator.Run(ctx, Spec{
		Key:     strPtr("key-order"),
		UserID:  userID,
		Route:   "POST /api/v1/things",
		Payload: payload,
		Execute: execute,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, executions)
}

func TestRunScopesKeysByUserAndRoute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executions := 0

	makeSpec := func(userID uuid.UUID, route string) Spec {
		return Spec{
			Key:     strPtr("shared-key"),
			UserID:  userID,
			Route:   route,
			Payload: map[string]any{"n": 1},
			Execute: func(context.Context) (any, error) {
				executions++
				return map[string]int{"n": executions}, nil
			},
		}
	}

	userA, userB := uuid.New(), uuid.New()
	_, err := f.orchestrator.Run(ctx, makeSpec(userA, "POST /api/v1/a"))
	require.NoError(t, err)
	_, err = f.orchestrator.Run(ctx, makeSpec(userB, "POST /api/v1/a"))
	require.NoError(t, err)
	_, err = f.orchestrator.Run(ctx, makeSpec(userA, "POST /api/v1/b"))
	require.NoError(t, err)

	assert.Equal(t, 3, executions, "different user or route is a different scope")
}

func TestRunFinancialRequiresKey(t *testing.T) {
	f := newFixture(t)
	executions := 0

	_, err := f.orchestrator.Run(context.Background(), Spec{
		Key:       nil,
		UserID:    uuid.New(),
		Route:     "POST /api/v1/subscriptions/1/pay",
		Payload:   map[string]any{},
		Financial: true,
		Execute: func(context.Context) (any, error) {
			executions++
			return nil, nil
		},
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodePreconditionFailed))

	var guardErr *statemachine.GuardError
	require.True(t, errors.As(err, &guardErr))
	assert.Equal(t, statemachine.GuardIdempotencyKeyPresent, guardErr.Guard)
	assert.Zero(t, executions)
}

func TestRunUnprotectedExecutesEveryTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executions := 0

	spec := Spec{
		Key:     nil,
		UserID:  uuid.New(),
		Route:   "POST /api/v1/applications/1/review",
		Payload: map[string]any{},
		Execute: func(context.Context) (any, error) {
			executions++
			return map[string]int{"n": executions}, nil
		},
	}

	_, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	_, err = f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 2, executions)
}

func TestRunFailureLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	executions := 0
	boom := errors.New("downstream failure")

	spec := Spec{
		Key:     strPtr("key-atomic"),
		UserID:  userID,
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{"reference": "APP-300"},
		Execute: func(txCtx context.Context) (any, error) {
			executions++
			app, err := invest.NewApplication("APP-300", userID)
			if err != nil {
				return nil, err
			}
			if err := f.apps.Create(txCtx, app); err != nil {
				return nil, err
			}
			if executions == 1 {
				return nil, boom
			}
			return map[string]string{"id": app.ID.String()}, nil
		},
	}

	_, err := f.orchestrator.Run(ctx, spec)
	require.ErrorIs(t, err, boom)

	var apps int64
	require.NoError(t, f.db.Model(&invest.Application{}).Count(&apps).Error)
	assert.Zero(t, apps, "failed command must not leave partial writes")

	// A failed attempt stores no record, so the retry executes for real.
	_, err = f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 2, executions)

	require.NoError(t, f.db.Model(&invest.Application{}).Count(&apps).Error)
	assert.EqualValues(t, 1, apps)
}

func TestRunRejectsEmptyKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.Run(context.Background(), Spec{
		Key:     strPtr(""),
		UserID:  uuid.New(),
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{},
		Execute: func(context.Context) (any, error) { return nil, nil },
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeInvalidInput))
}

func TestRunPopulatesReplayCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := Spec{
		Key:     strPtr("key-cache"),
		UserID:  uuid.New(),
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{"reference": "APP-400"},
		Execute: func(context.Context) (any, error) {
			return map[string]string{"ok": "yes"}, nil
		},
	}
	body, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Size())

	// Cache hit still returns the stored response.
	replayed, err := f.orchestrator.Run(ctx, spec)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(replayed))

	var raw json.RawMessage = replayed
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "yes", decoded["ok"])
}

// lostRaceRepository simulates the losing side of the insert race: the
// pre-execution Find sees no record, Create hits the unique index, and the
// follow-up Find returns whatever the winner stored.
type lostRaceRepository struct {
	winner *command.IdempotencyRecord
	finds  int
}

func (r *lostRaceRepository) Find(context.Context, string, uuid.UUID, string) (*command.IdempotencyRecord, error) {
	r.finds++
	if r.finds == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *lostRaceRepository) Create(context.Context, *command.IdempotencyRecord) error {
	return shared.ErrAlreadyExists
}

// passthroughTx runs the unit of work without a database. The repository
// stub above supplies the race outcome.
type passthroughTx struct{}

func (passthroughTx) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestRunLostInsertRaceReplaysWinner(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	route := "POST /api/v1/applications"
	payload := map[string]any{"reference": "APP-500"}
	requestHash, err := shared.CanonicalHash(payload)
	require.NoError(t, err)

	repo := &lostRaceRepository{
		winner: command.NewIdempotencyRecord("key-race", userID, route, requestHash, []byte(`{"id":"winner"}`)),
	}
	o := NewOrchestrator(repo, passthroughTx{}, nil, time.Hour, zap.NewNop())

	executions := 0
	body, err := o.Run(ctx, Spec{
		Key:     strPtr("key-race"),
		UserID:  userID,
		Route:   route,
		Payload: payload,
		Execute: func(context.Context) (any, error) {
			executions++
			return map[string]string{"id": "loser"}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, executions, "losing side must not execute again after the race")
	assert.JSONEq(t, `{"id":"winner"}`, string(body))
	assert.Equal(t, 2, repo.finds, "winner is fetched once after the failed insert")
}

func TestRunLostInsertRaceWithMissingWinnerConflicts(t *testing.T) {
	// Create reports a duplicate but the record never becomes visible, e.g.
	// the winning transaction rolled back after taking the index slot.
	o := NewOrchestrator(&lostRaceRepository{winner: nil}, passthroughTx{}, nil, time.Hour, zap.NewNop())

	_, err := o.Run(context.Background(), Spec{
		Key:     strPtr("key-race-lost"),
		UserID:  uuid.New(),
		Route:   "POST /api/v1/applications",
		Payload: map[string]any{"reference": "APP-501"},
		Execute: func(context.Context) (any, error) {
			return map[string]string{"id": "loser"}, nil
		},
	})
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeConflict))
}

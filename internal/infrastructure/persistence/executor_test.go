package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxExecutorCommit(t *testing.T) {
	db := newTestDB(t)
	executor := NewTxExecutor(db)
	repo := NewGormApplicationRepository(db)
	ctx := context.Background()

	app, err := invest.NewApplication("APP-001", uuid.New())
	require.NoError(t, err)

	err = executor.Execute(ctx, func(txCtx context.Context) error {
		assert.True(t, InTransaction(txCtx))
		return repo.Create(txCtx, app)
	})
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "APP-001", found.Reference)
}

func TestTxExecutorRollback(t *testing.T) {
	db := newTestDB(t)
	executor := NewTxExecutor(db)
	repo := NewGormApplicationRepository(db)
	ctx := context.Background()

	app, err := invest.NewApplication("APP-002", uuid.New())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = executor.Execute(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, app); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := repo.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Nil(t, found, "rolled back write must not be visible")
}

func TestTxExecutorNestedReusesAmbientTx(t *testing.T) {
	db := newTestDB(t)
	executor := NewTxExecutor(db)
	repo := NewGormApplicationRepository(db)
	ctx := context.Background()

	app, err := invest.NewApplication("APP-003", uuid.New())
	require.NoError(t, err)

	boom := errors.New("outer failure")
	err = executor.Execute(ctx, func(outerCtx context.Context) error {
		// The nested call must join the outer transaction, so the inner
		// write aborts with the outer failure.
		if err := executor.Execute(outerCtx, func(innerCtx context.Context) error {
			tx, ok := TxFromContext(innerCtx)
			require.True(t, ok)
			outerTx, _ := TxFromContext(outerCtx)
			assert.Same(t, outerTx, tx)
			return repo.Create(innerCtx, app)
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := repo.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestIsTransientWriteConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)"), true},
		{"deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientWriteConflict(tt.err))
		})
	}
}

func TestSaveWithVersionConflict(t *testing.T) {
	db := newTestDB(t)
	executor := NewTxExecutor(db)
	repo := NewGormApplicationRepository(db)
	ctx := context.Background()

	app, err := invest.NewApplication("APP-004", uuid.New())
	require.NoError(t, err)
	require.NoError(t, executor.Execute(ctx, func(txCtx context.Context) error {
		return repo.Create(txCtx, app)
	}))

	stale, err := repo.FindByID(ctx, app.ID)
	require.NoError(t, err)

	// First writer bumps the version.
	first, err := repo.FindByID(ctx, app.ID)
	require.NoError(t, err)
	first.IncrementVersion()
	require.NoError(t, executor.Execute(ctx, func(txCtx context.Context) error {
		return repo.Save(txCtx, first)
	}))

	// Stale writer loses.
	stale.IncrementVersion()
	err = executor.Execute(ctx, func(txCtx context.Context) error {
		return repo.Save(txCtx, stale)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modified by another process")
}

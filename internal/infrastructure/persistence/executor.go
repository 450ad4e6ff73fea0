package persistence

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/invest/backend/internal/domain/shared"
	"gorm.io/gorm"
)

type txContextKey struct{}

// withTx stores the transaction handle in the context so nested work and
// repositories join the ambient transaction instead of opening a new one.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the ambient transaction handle, if any
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*gorm.DB)
	return tx, ok
}

// InTransaction reports whether the context carries an ambient transaction
func InTransaction(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// TxExecutor runs units of work inside database transactions. Transient
// write conflicts (serialization failures, deadlocks) are retried with
// backoff up to maxAttempts before surfacing TRANSIENT_WRITE_CONFLICT.
type TxExecutor struct {
	db          *gorm.DB
	maxAttempts int
	backoffBase time.Duration
}

// NewTxExecutor creates an executor with the default retry policy
func NewTxExecutor(db *gorm.DB) *TxExecutor {
	return &TxExecutor{
		db:          db,
		maxAttempts: 3,
		backoffBase: 25 * time.Millisecond,
	}
}

// Execute opens a transaction, passes a context carrying its handle to fn,
// commits on normal return and rolls back on error. Nested calls reuse the
// ambient transaction; a nested transaction is never opened, so inner work
// commits or aborts with the outer unit.
func (e *TxExecutor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		lastErr = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(withTx(ctx, tx))
		})
		if lastErr == nil {
			return nil
		}
		if !isTransientWriteConflict(lastErr) {
			return lastErr
		}
		if attempt < e.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoffBase << (attempt - 1)):
			}
		}
	}
	return shared.NewDomainError(
		shared.CodeTransientWriteConflict,
		"Write conflict persisted after "+strconv.Itoa(e.maxAttempts)+" attempts: "+lastErr.Error(),
	)
}

// isTransientWriteConflict recognizes conflicts the executor may safely
// retry: postgres serialization failures (40001) and deadlocks (40P01).
func isTransientWriteConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "SQLSTATE 40001") ||
		strings.Contains(msg, "SQLSTATE 40P01")
}

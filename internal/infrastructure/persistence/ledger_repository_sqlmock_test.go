package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/invest/backend/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDB opens a GORM connection backed by sqlmock so tests can pin the
// exact SQL the repository issues against postgres.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestAccountBalanceDerivesSignedSum(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT SUM(CASE WHEN direction = $1 THEN amount ELSE -amount END) FROM "ledger_entries" WHERE ledger_type = $2 AND account_ref = $3`,
	)).
		WithArgs(string(ledger.DirectionCredit), string(ledger.LedgerEscrow), "escrow:offering:off-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("2500.0000"))

	balance, err := repo.AccountBalance(context.Background(), ledger.LedgerEscrow, "escrow:offering:off-1")
	require.NoError(t, err)
	assert.Equal(t, "2500", balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountBalanceEmptyAccountIsZero(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLedgerRepository(db)

	// no rows for the account: SUM returns NULL
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT SUM(CASE WHEN direction = $1 THEN amount ELSE -amount END) FROM "ledger_entries" WHERE ledger_type = $2 AND account_ref = $3`,
	)).
		WithArgs(string(ledger.DirectionCredit), string(ledger.LedgerPayout), "payout:tranche:none").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	balance, err := repo.AccountBalance(context.Background(), ledger.LedgerPayout, "payout:tranche:none")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAllRefusesBareWrites(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLedgerRepository(db)

	err := repo.CreateAll(context.Background(), []*ledger.Entry{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside a transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

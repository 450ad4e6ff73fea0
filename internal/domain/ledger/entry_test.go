package ledger

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(t *testing.T, direction Direction, amount float64, externalRef string) *Entry {
	t.Helper()
	account := "escrow:offering-1"
	if direction == DirectionDebit {
		account = "receivable:sub-1"
	}
	e, err := NewEntry(
		LedgerEscrow,
		account,
		direction,
		valueobject.NewMoneyUSDFromFloat(amount),
		"subscription",
		uuid.New(),
		externalRef,
		uuid.NewString(),
	)
	require.NoError(t, err)
	return e
}

func TestNewEntry(t *testing.T) {
	t.Run("creates entry with valid inputs", func(t *testing.T) {
		e := testEntry(t, DirectionCredit, 100.00, "ref-1")
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Equal(t, LedgerEscrow, e.LedgerType)
		assert.Equal(t, DirectionCredit, e.Direction)
		assert.Equal(t, valueobject.USD, e.Currency)
		assert.False(t, e.PostedAt.IsZero())
	})

	t.Run("fails with empty account ref", func(t *testing.T) {
		_, err := NewEntry(LedgerEscrow, "", DirectionCredit, valueobject.NewMoneyUSDFromFloat(1), "subscription", uuid.New(), "ref", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Account reference")
	})

	t.Run("fails with invalid direction", func(t *testing.T) {
		_, err := NewEntry(LedgerEscrow, "a", Direction("SIDEWAYS"), valueobject.NewMoneyUSDFromFloat(1), "subscription", uuid.New(), "ref", "key")
		require.Error(t, err)
	})

	t.Run("fails with non-positive amount", func(t *testing.T) {
		_, err := NewEntry(LedgerEscrow, "a", DirectionDebit, valueobject.NewMoneyUSDFromFloat(0), "subscription", uuid.New(), "ref", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})

	t.Run("fails with empty idempotency key", func(t *testing.T) {
		_, err := NewEntry(LedgerEscrow, "a", DirectionDebit, valueobject.NewMoneyUSDFromFloat(1), "subscription", uuid.New(), "ref", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Idempotency key")
	})
}

func TestValidateBalanced(t *testing.T) {
	t.Run("accepts balanced credit and debit pair", func(t *testing.T) {
		entries := []*Entry{
			testEntry(t, DirectionCredit, 250.00, "ref-a"),
			testEntry(t, DirectionDebit, 250.00, "ref-a"),
		}
		assert.NoError(t, ValidateBalanced(entries))
	})

	t.Run("accepts multi-leg balanced set", func(t *testing.T) {
		entries := []*Entry{
			testEntry(t, DirectionCredit, 70.00, "ref-b"),
			testEntry(t, DirectionCredit, 30.00, "ref-b"),
			testEntry(t, DirectionDebit, 100.00, "ref-b"),
		}
		assert.NoError(t, ValidateBalanced(entries))
	})

	t.Run("rejects unbalanced set", func(t *testing.T) {
		entries := []*Entry{
			testEntry(t, DirectionCredit, 100.00, "ref-c"),
			testEntry(t, DirectionDebit, 99.99, "ref-c"),
		}
		err := ValidateBalanced(entries)
		require.Error(t, err)
		assert.True(t, shared.IsCode(err, shared.CodeInvalidInput))
		assert.Contains(t, err.Error(), "Unbalanced")
	})

	t.Run("rejects mixed external refs", func(t *testing.T) {
		entries := []*Entry{
			testEntry(t, DirectionCredit, 10.00, "ref-d"),
			testEntry(t, DirectionDebit, 10.00, "ref-e"),
		}
		err := ValidateBalanced(entries)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "one external reference")
	})

	t.Run("rejects empty set", func(t *testing.T) {
		require.Error(t, ValidateBalanced(nil))
	})

	t.Run("randomized balanced sets always validate", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 50; i++ {
			ref := fmt.Sprintf("rand-%d", i)
			legs := 1 + rng.Intn(5)
			var entries []*Entry
			total := decimal.Zero
			for l := 0; l < legs; l++ {
				amount := float64(1+rng.Intn(10_000)) / 100
				entries = append(entries, testEntry(t, DirectionCredit, amount, ref))
				total = total.Add(decimal.NewFromFloat(amount))
			}
			// one debit leg mirrors the credit total
			debit, err := NewEntry(
				LedgerEscrow, "receivable:rand", DirectionDebit,
				valueobject.NewMoneyUSD(total),
				"subscription", uuid.New(), ref, uuid.NewString(),
			)
			require.NoError(t, err)
			entries = append(entries, debit)

			assert.NoError(t, ValidateBalanced(entries))

			// perturbing any single amount breaks the balance
			victim := entries[rng.Intn(len(entries))]
			victim.Amount = victim.Amount.Add(decimal.NewFromFloat(0.01))
			assert.Error(t, ValidateBalanced(entries))
			victim.Amount = victim.Amount.Sub(decimal.NewFromFloat(0.01))
		}
	})

	t.Run("balances per currency independently", func(t *testing.T) {
		usdCredit := testEntry(t, DirectionCredit, 10.00, "ref-f")
		usdDebit := testEntry(t, DirectionDebit, 10.00, "ref-f")
		eurCredit := testEntry(t, DirectionCredit, 5.00, "ref-f")
		eurCredit.Currency = valueobject.EUR
		err := ValidateBalanced([]*Entry{usdCredit, usdDebit, eurCredit})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EUR")
	})
}

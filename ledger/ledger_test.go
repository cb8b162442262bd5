package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() (*ledger.Ledger, *store.Memory) {
	mem := store.NewMemory()
	return ledger.NewLedger(mem, nil), mem
}

func entry(id string, key ledger.ItemKey, delta int64, idemKey string) ledger.Entry {
	return ledger.Entry{
		ID:             id,
		Key:            key,
		Delta:          decimal.NewFromInt(delta),
		Reason:         "test",
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now(),
	}
}

// =============================================================================
// BALANCE DERIVATION TESTS
// =============================================================================

func TestLedger_BalanceIsSumOfDeltas(t *testing.T) {
	// GIVEN: Three gold entries: +100, -30, +5
	// WHEN: Summing the gold balance
	// THEN: Balance is 75

	l, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("e1", ledger.GoldKey(), 100, "")))
	require.NoError(t, l.Append(ctx, entry("e2", ledger.GoldKey(), -30, "")))
	require.NoError(t, l.Append(ctx, entry("e3", ledger.GoldKey(), 5, "")))

	gold, err := l.SumBalance(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.True(t, gold.Equal(decimal.NewFromInt(75)), "expected 75, got %s", gold)
}

func TestLedger_MissingKeyReadsAsZero(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Summing a color nobody ever recorded
	// THEN: Balance is zero, not an error

	l, _ := newTestLedger()

	ml, err := l.SumBalance(context.Background(), ledger.MlKey("green"))
	require.NoError(t, err)
	assert.True(t, ml.IsZero())
}

func TestLedger_KeysAreIndependent(t *testing.T) {
	// GIVEN: Entries across gold, two colors, and a potion SKU
	// WHEN: Summing each key
	// THEN: Each balance reflects only its own entries

	l, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.AppendBatch(ctx, []ledger.Entry{
		entry("e1", ledger.GoldKey(), 100, ""),
		entry("e2", ledger.MlKey("green"), 1000, ""),
		entry("e3", ledger.MlKey("red"), 500, ""),
		entry("e4", ledger.PotionKey("GREEN_POTION"), 5, ""),
	}))

	byColor, err := l.SumBalancesGroupedByItem(ctx, ledger.ItemMl)
	require.NoError(t, err)
	assert.True(t, byColor["green"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, byColor["red"].Equal(decimal.NewFromInt(500)))

	potions, err := l.SumBalance(ctx, ledger.PotionKey("GREEN_POTION"))
	require.NoError(t, err)
	assert.True(t, potions.Equal(decimal.NewFromInt(5)))
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestLedger_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: An entry committed with idempotency key "op-1"
	// WHEN: Appending another entry with the same key
	// THEN: The append fails and the balance is unchanged

	l, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("e1", ledger.GoldKey(), 100, "op-1")))

	err := l.Append(ctx, entry("e2", ledger.GoldKey(), 100, "op-1"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	gold, err := l.SumBalance(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.True(t, gold.Equal(decimal.NewFromInt(100)), "replay must not double-apply")
}

func TestLedger_BatchWithDuplicateKey_NothingApplied(t *testing.T) {
	// GIVEN: A committed entry with key "op-1"
	// WHEN: Appending a batch where one entry replays "op-1"
	// THEN: The whole batch is rejected, including the clean entries

	l, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("e1", ledger.GoldKey(), 100, "op-1")))

	err := l.AppendBatch(ctx, []ledger.Entry{
		entry("e2", ledger.MlKey("red"), 1000, ""),
		entry("e3", ledger.GoldKey(), -250, "op-1"),
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	ml, err := l.SumBalance(ctx, ledger.MlKey("red"))
	require.NoError(t, err)
	assert.True(t, ml.IsZero(), "sibling entries of a rejected batch must not land")
}

// =============================================================================
// TRUNCATE TESTS
// =============================================================================

func TestLedger_TruncateDestroysEverything(t *testing.T) {
	// GIVEN: A ledger with entries and idempotency keys
	// WHEN: Truncating
	// THEN: Balances are zero and replayed keys are accepted again

	l, _ := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("e1", ledger.GoldKey(), 100, "op-1")))

	n, err := l.Truncate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gold, err := l.SumBalance(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.True(t, gold.IsZero())

	// The key space was destroyed with the entries.
	assert.NoError(t, l.Append(ctx, entry("e2", ledger.GoldKey(), 50, "op-1")))
}

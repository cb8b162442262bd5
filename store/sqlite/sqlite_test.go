package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func goldEntry(id string, delta int64, idemKey string) ledger.Entry {
	return ledger.Entry{
		ID:             id,
		Key:            ledger.GoldKey(),
		Delta:          decimal.NewFromInt(delta),
		Reason:         "test",
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now().UTC(),
	}
}

// =============================================================================
// LEDGER PERSISTENCE TESTS
// =============================================================================

func TestSQLite_AppendAndSum(t *testing.T) {
	// GIVEN: Appended gold and ml entries
	// WHEN: Summing
	// THEN: Decimal-exact totals per key

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Entry{
		goldEntry("e1", 100, ""),
		goldEntry("e2", -30, ""),
		{ID: "e3", Key: ledger.MlKey("green"), Delta: decimal.NewFromInt(1000), CreatedAt: time.Now().UTC()},
	}))

	gold, err := store.Sum(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.True(t, gold.Equal(decimal.NewFromInt(70)))

	byColor, err := store.SumByType(ctx, ledger.ItemMl)
	require.NoError(t, err)
	assert.True(t, byColor["green"].Equal(decimal.NewFromInt(1000)))
}

func TestSQLite_LoadRoundTripsEntries(t *testing.T) {
	// GIVEN: An entry with every field populated
	// WHEN: Loading the log back
	// THEN: The entry survives intact, delta exact

	store := newTestStore(t)
	ctx := context.Background()

	in := ledger.Entry{
		ID:             "e1",
		Key:            ledger.PotionKey("TEAL_POTION"),
		Delta:          decimal.RequireFromString("3.00"),
		Reason:         "bottling",
		ReferenceID:    "order-1",
		IdempotencyKey: "bottling-order-1",
		CreatedAt:      time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendBatch(ctx, []ledger.Entry{in}))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in.ID, out[0].ID)
	assert.Equal(t, in.Key, out[0].Key)
	assert.True(t, in.Delta.Equal(out[0].Delta))
	assert.Equal(t, in.ReferenceID, out[0].ReferenceID)
	assert.Equal(t, in.IdempotencyKey, out[0].IdempotencyKey)
	assert.True(t, in.CreatedAt.Equal(out[0].CreatedAt))
}

func TestSQLite_UniqueIdempotencyKeyEnforced(t *testing.T) {
	// GIVEN: A committed entry with idempotency key "op-1"
	// WHEN: Inserting another entry with the same key
	// THEN: The append fails with ErrDuplicateIdempotencyKey

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Entry{goldEntry("e1", 100, "op-1")}))

	err := store.AppendBatch(ctx, []ledger.Entry{goldEntry("e2", 100, "op-1")})
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	exists, err := store.Exists(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_TruncateReportsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Entry{
		goldEntry("e1", 100, ""),
		goldEntry("e2", 50, ""),
	}))

	n, err := store.Truncate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// TRANSACTIONAL UNIT TESTS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A unit that appends and then fails
	// WHEN: The unit returns an error
	// THEN: No entries remain

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(u ledger.Unit) error {
		if err := u.AppendBatch(ctx, []ledger.Entry{goldEntry("e1", 100, "")}); err != nil {
			return err
		}
		return context.DeadlineExceeded
	})
	assert.Error(t, err)

	gold, err := store.Sum(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.True(t, gold.IsZero(), "rolled-back unit must leave zero entries")
}

func TestSQLite_WithTxReadsItsOwnWrites(t *testing.T) {
	// GIVEN: A unit that appends gold
	// WHEN: Summing inside the same unit
	// THEN: The uncommitted entry is visible to the unit

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(u ledger.Unit) error {
		if err := u.AppendBatch(ctx, []ledger.Entry{goldEntry("e1", 100, "")}); err != nil {
			return err
		}
		gold, err := u.Sum(ctx, ledger.GoldKey())
		if err != nil {
			return err
		}
		assert.True(t, gold.Equal(decimal.NewFromInt(100)))
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_CapacityCommitsWithUnit(t *testing.T) {
	// GIVEN: A unit that saves capacity and then fails
	// WHEN: The unit rolls back
	// THEN: The capacity write is rolled back with it

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(u ledger.Unit) error {
		if err := u.SaveCapacity(ctx, ledger.CapacityLimits{PotionCapacity: 50, MlCapacity: 10000}); err != nil {
			return err
		}
		return context.DeadlineExceeded
	})
	assert.Error(t, err)

	_, err = store.LoadCapacity(ctx)
	assert.ErrorIs(t, err, ledger.ErrNoCapacity)
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestSQLite_SnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)

	in := ledger.Snapshot{
		Gold:    800,
		Ml:      map[string]int64{"green": 1000},
		Potions: map[string]int64{"GREEN_POTION": 10},
		TakenAt: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveSnapshot(ctx, in))

	out, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	// Saving again replaces the single row, never accumulates.
	in.Gold = 900
	require.NoError(t, store.SaveSnapshot(ctx, in))
	out, err = store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(900), out.Gold)
}

package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedEntries(t *testing.T, mem *store.Memory) {
	t.Helper()
	require.NoError(t, mem.AppendBatch(context.Background(), []ledger.Entry{
		entry("e1", ledger.GoldKey(), 100, ""),
		entry("e2", ledger.MlKey("green"), 1200, ""),
		entry("e3", ledger.MlKey("green"), -200, ""),
		entry("e4", ledger.PotionKey("GREEN_POTION"), 7, ""),
	}))
}

// failingSnapshotStore rejects every save, for failure-injection tests.
type failingSnapshotStore struct{}

func (failingSnapshotStore) SaveSnapshot(context.Context, ledger.Snapshot) error {
	return errors.New("disk full")
}

func (failingSnapshotStore) LoadSnapshot(context.Context) (ledger.Snapshot, error) {
	return ledger.Snapshot{}, ledger.ErrNoSnapshot
}

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestReconcile_SnapshotMatchesLedger(t *testing.T) {
	// GIVEN: A ledger with gold, ml, and potion entries
	// WHEN: Reconciling
	// THEN: The snapshot holds the exact derived balances

	mem := store.NewMemory()
	seedEntries(t, mem)

	r := ledger.NewReconciler(mem, mem, nil, nil)
	snap, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), snap.Gold)
	assert.Equal(t, int64(1000), snap.Ml["green"])
	assert.Equal(t, int64(7), snap.Potions["GREEN_POTION"])
}

func TestReconcile_Idempotent(t *testing.T) {
	// GIVEN: A reconciled ledger with no intervening writes
	// WHEN: Reconciling again
	// THEN: The two snapshots hold equal balances

	mem := store.NewMemory()
	seedEntries(t, mem)
	ctx := context.Background()

	r := ledger.NewReconciler(mem, mem, nil, nil)
	first, err := r.Reconcile(ctx)
	require.NoError(t, err)

	second, err := r.Reconcile(ctx)
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "back-to-back reconciles must agree")
}

func TestReconcile_FailedSwapKeepsPreviousSnapshot(t *testing.T) {
	// GIVEN: A reconciler whose snapshot store rejects saves
	// WHEN: Reconciling
	// THEN: The run fails and nothing half-written is observable

	mem := store.NewMemory()
	seedEntries(t, mem)

	r := ledger.NewReconciler(mem, failingSnapshotStore{}, nil, nil)
	_, err := r.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestSnapshot_ReconcilesOnceWhenMissing(t *testing.T) {
	// GIVEN: A fresh store with entries but no snapshot yet
	// WHEN: Reading the snapshot
	// THEN: One is built from the ledger instead of erroring

	mem := store.NewMemory()
	seedEntries(t, mem)

	r := ledger.NewReconciler(mem, mem, nil, nil)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Gold)
}

func TestSnapshot_StaleUntilReconciled(t *testing.T) {
	// GIVEN: A reconciled snapshot, then a direct ledger append
	// WHEN: Reading the snapshot before and after reconciling
	// THEN: The read is stale first and exact afterwards

	mem := store.NewMemory()
	seedEntries(t, mem)
	ctx := context.Background()

	clock := func() time.Time { return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC) }
	r := ledger.NewReconciler(mem, mem, clock, nil)
	_, err := r.Reconcile(ctx)
	require.NoError(t, err)

	require.NoError(t, mem.AppendBatch(ctx, []ledger.Entry{entry("e5", ledger.GoldKey(), 50, "")}))

	stale, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stale.Gold, "snapshot reads never recompute")

	fresh, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), fresh.Gold)
}

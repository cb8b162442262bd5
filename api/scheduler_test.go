package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/api"
	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/ledger/store"
	"github.com/alembic/shop-engine/shop"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestScheduler(t *testing.T, initialGold int64) (*api.RestockScheduler, *store.Memory) {
	t.Helper()

	cfg := shop.Default()
	cfg.InitialGold = initialGold

	mem := store.NewMemory()
	reconciler := ledger.NewReconciler(mem, mem, nil, nil)
	coord := shop.NewCoordinator(mem, reconciler, cfg, nil, nil)
	require.NoError(t, coord.EnsureSeed(context.Background()))

	s := api.NewRestockScheduler(coord, shop.NewPlanner(mem, cfg), nil)
	s.TickInterval = time.Hour
	return s, mem
}

// =============================================================================
// SCHEDULER TESTS
// =============================================================================

func TestRestockScheduler_StopTwiceIsSafe(t *testing.T) {
	// GIVEN: A started scheduler
	// WHEN: Stopping it twice (main defers Stop after an explicit Stop)
	// THEN: The second call is a no-op, never a panic

	s, _ := newTestScheduler(t, 100)
	s.Start()

	s.Stop()
	assert.NotPanics(t, s.Stop)
}

func TestRestockScheduler_StopWithoutStartIsSafe(t *testing.T) {
	s, _ := newTestScheduler(t, 100)
	assert.NotPanics(t, s.Stop)
}

func TestRestockScheduler_RunNowRestocksEmptyCellar(t *testing.T) {
	// GIVEN: An empty cellar and gold for every planned barrel
	// WHEN: Running one tick
	// THEN: Each color is restocked to a full barrel and gold is debited

	s, mem := newTestScheduler(t, 5000)
	ctx := context.Background()

	s.RunNow()

	ml, err := mem.Sum(ctx, ledger.MlKey("green"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ml.IntPart())

	gold, err := mem.Sum(ctx, ledger.GoldKey())
	require.NoError(t, err)
	// 5000 - (250 + 200 + 300 + 400)
	assert.Equal(t, int64(3850), gold.IntPart())
}

func TestRestockScheduler_UnaffordablePlanIsSkipped(t *testing.T) {
	// GIVEN: The 100 gold seed - plans are advisory and exceed it
	// WHEN: Running one tick
	// THEN: The delivery is skipped and no balance moves

	s, mem := newTestScheduler(t, 100)
	ctx := context.Background()

	s.RunNow()

	gold, err := mem.Sum(ctx, ledger.GoldKey())
	require.NoError(t, err)
	assert.Equal(t, int64(100), gold.IntPart())

	ml, err := mem.Sum(ctx, ledger.MlKey("green"))
	require.NoError(t, err)
	assert.True(t, ml.IsZero())
}

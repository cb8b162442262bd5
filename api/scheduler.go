/*
scheduler.go - Automated restock scheduler

PURPOSE:
  Periodically plans a barrel restock from current balances and commits
  the resulting purchase, so the shop never idles on an empty cellar.
  Each tick also reconciles the snapshot, which self-heals any drift.

DESIGN:
  - Runs a background goroutine with a configurable tick interval
  - Each tick: reconcile, plan, and (if the plan is non-empty) deliver
  - Every tick's delivery carries a fresh order id; the coordinator's
    idempotency guard makes accidental double-delivery impossible
  - An empty plan is the normal steady state, logged at debug only

USAGE:
  s := NewRestockScheduler(coord, planner, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - shop/policy.go: PlanRestock, the greedy budget planner
  - shop/coordinator.go: RecordDelivery, the transactional commit
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alembic/shop-engine/shop"
	"github.com/alembic/shop-engine/telemetry"
)

// RestockScheduler buys barrels on a timer.
type RestockScheduler struct {
	Coordinator  *shop.Coordinator
	Planner      *shop.Planner
	TickInterval time.Duration
	Enabled      bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRestockScheduler creates a scheduler with a 1 minute tick.
func NewRestockScheduler(coord *shop.Coordinator, planner *shop.Planner, log *zap.Logger) *RestockScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RestockScheduler{
		Coordinator:  coord,
		Planner:      planner,
		TickInterval: 1 * time.Minute,
		Enabled:      true,
		log:          log,
		stop:         make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RestockScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("restock scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.TickInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info("restock scheduler started", zap.Duration("tick_interval", rs.TickInterval))
}

// Stop stops the scheduler. Safe to call more than once.
func (rs *RestockScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.ticker = nil
	close(rs.stop)
	rs.wg.Wait()
	rs.log.Info("restock scheduler stopped")
}

func (rs *RestockScheduler) run() {
	defer rs.wg.Done()

	// Stop nils out rs.ticker, so hold on to the channel.
	ticks := rs.ticker.C

	// Run immediately on start
	rs.tick()

	for {
		select {
		case <-ticks:
			rs.tick()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RestockScheduler) tick() {
	ctx := context.Background()

	// Self-healing: rebuild the snapshot from the ledger before planning.
	if _, err := rs.Coordinator.ResyncSnapshot(ctx); err != nil {
		telemetry.RestockRunsTotal.WithLabelValues("error").Inc()
		rs.log.Error("scheduled reconcile failed", zap.Error(err))
		return
	}

	plan, err := rs.Planner.PlanRestock(ctx)
	if err != nil {
		telemetry.RestockRunsTotal.WithLabelValues("error").Inc()
		rs.log.Error("restock planning failed", zap.Error(err))
		return
	}

	if len(plan.Barrels) == 0 {
		telemetry.RestockRunsTotal.WithLabelValues("empty").Inc()
		rs.log.Debug("restock tick: nothing to buy")
		return
	}

	var planned int64
	barrels := make([]shop.BarrelDelivery, 0, len(plan.Barrels))
	for _, b := range plan.Barrels {
		planned += b.Quantity
		barrels = append(barrels, shop.BarrelDelivery{
			SKU:         b.SKU,
			Color:       b.Color,
			MlPerBarrel: rs.Planner.MlPerBarrel(),
			Quantity:    b.Quantity,
			UnitPrice:   b.UnitPrice,
		})
	}
	telemetry.RestockBarrelsPlanned.Add(float64(planned))

	orderID := "restock-" + uuid.NewString()
	receipt, err := rs.Coordinator.RecordDelivery(ctx, orderID, barrels)
	if err != nil {
		// Plans are advisory and may exceed the gold on hand; an
		// unaffordable plan is a skip, not a failure.
		if shop.IsClientError(err) {
			telemetry.RestockRunsTotal.WithLabelValues("skipped").Inc()
			rs.log.Info("restock skipped",
				zap.String("order_id", orderID),
				zap.Int64("planned_cost", plan.TotalCost),
				zap.Error(err))
			return
		}
		telemetry.RestockRunsTotal.WithLabelValues("error").Inc()
		rs.log.Error("restock delivery failed",
			zap.String("order_id", orderID),
			zap.Int64("planned_cost", plan.TotalCost),
			zap.Error(err))
		return
	}

	telemetry.RestockRunsTotal.WithLabelValues("ok").Inc()
	rs.log.Info("restock committed",
		zap.String("order_id", orderID),
		zap.Int64("barrels", planned),
		zap.Int64("cost", -receipt.GoldDelta),
		zap.Int64("gold_after", receipt.Snapshot.Gold))
}

// RunNow triggers an immediate tick (for testing/admin).
func (rs *RestockScheduler) RunNow() {
	rs.tick()
}

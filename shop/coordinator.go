/*
coordinator.go - Transactional shop operations

PURPOSE:
  The Transaction Coordinator turns each logical shop operation into one
  atomic unit against the ledger store:

    Begin    -> open a serializable unit (TxStore.WithTx)
    Validate -> compute required entries, check affordability/capacity
                against balances read INSIDE the unit (never a cached
                snapshot - this closes the double-spend race)
    Commit   -> append all entries as one batch, then reconcile the
                snapshot synchronously before returning
    Abort    -> on any validation or storage error, no entries are
                appended and the snapshot is untouched

  Terminal states are Committed and Aborted; no partial commit is ever
  observable.

IDEMPOTENCY:
  Every operation that carries an order id derives an idempotency key
  from it. Replaying a committed order fails with ErrDuplicateOrder and
  applies nothing, so the scheduler can retry failed calls blindly.

SEE ALSO:
  - ledger/ledger.go: The append surface every unit writes through
  - ledger/store.go: The isolation contract WithTx must provide
  - policy.go: Produces the plans these operations execute
  - reconcile.go (ledger): The post-commit snapshot swap
*/
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/telemetry"
)

// Coordinator executes shop operations as atomic ledger units.
type Coordinator struct {
	store      ledger.TxStore
	reconciler *ledger.Reconciler
	cfg        Config
	clock      func() time.Time
	log        *zap.Logger
}

// NewCoordinator wires a coordinator. clock may be nil for time.Now.
func NewCoordinator(store ledger.TxStore, reconciler *ledger.Reconciler, cfg Config, clock func() time.Time, log *zap.Logger) *Coordinator {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: store, reconciler: reconciler, cfg: cfg, clock: clock, log: log}
}

// EnsureSeed initializes a fresh shop: the configured starting gold and
// capacity limits. Safe to call on every boot; an already-seeded shop
// is left alone.
func (c *Coordinator) EnsureSeed(ctx context.Context) error {
	err := c.store.WithTx(ctx, func(u ledger.Unit) error {
		if _, err := u.LoadCapacity(ctx); errors.Is(err, ledger.ErrNoCapacity) {
			if err := u.SaveCapacity(ctx, c.seedCapacity()); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		seeded, err := u.Exists(ctx, "seed-genesis")
		if err != nil {
			return err
		}
		if seeded {
			return nil
		}
		return ledger.NewLedger(u, c.log).Append(ctx, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.GoldKey(),
			Delta:          decimal.NewFromInt(c.cfg.InitialGold),
			Reason:         "initial seed",
			IdempotencyKey: "seed-genesis",
			CreatedAt:      c.clock(),
		})
	})
	if err != nil {
		return err
	}
	_, err = c.reconciler.Reconcile(ctx)
	return err
}

// GetSnapshot returns the current materialized inventory view.
func (c *Coordinator) GetSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	return c.reconciler.Snapshot(ctx)
}

// ResyncSnapshot forces a reconciliation pass and returns the rebuilt
// snapshot. Used by the scheduler as a self-healing step.
func (c *Coordinator) ResyncSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	return c.reconciler.Reconcile(ctx)
}

// =============================================================================
// DELIVERY - Buy barrels: credit ml, debit gold
// =============================================================================

// RecordDelivery commits a barrel delivery: each line credits its
// color's ml and one sibling entry debits the total gold cost.
func (c *Coordinator) RecordDelivery(ctx context.Context, orderID string, barrels []BarrelDelivery) (*Receipt, error) {
	if len(barrels) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, b := range barrels {
		// A negative price would turn the payment debit into a credit.
		if b.Quantity <= 0 || b.MlPerBarrel <= 0 || b.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: invalid barrel line %q", ErrEmptyOrder, b.SKU)
		}
	}

	var totalCost, entryCount int64
	err := c.withUnit(ctx, "delivery", orderID, func(u ledger.Unit) error {
		calc := ledger.NewCalculator(u)

		for _, b := range barrels {
			totalCost += b.Cost()
		}

		gold, err := calc.Gold(ctx)
		if err != nil {
			return err
		}
		if gold.LessThan(decimal.NewFromInt(totalCost)) {
			return &InsufficientFundsError{Available: gold.IntPart(), Required: totalCost}
		}

		// Aggregate volume per color for the capacity check.
		addedMl := make(map[Color]int64)
		for _, b := range barrels {
			addedMl[b.Color] += b.TotalMl()
		}
		if err := c.checkMlCapacity(ctx, u, calc, addedMl); err != nil {
			return err
		}

		entries := make([]ledger.Entry, 0, len(barrels)+1)
		for _, b := range barrels {
			entries = append(entries, ledger.Entry{
				ID:          uuid.NewString(),
				Key:         ledger.MlKey(string(b.Color)),
				Delta:       decimal.NewFromInt(b.TotalMl()),
				Reason:      fmt.Sprintf("barrel delivery: %d x %s", b.Quantity, b.SKU),
				ReferenceID: orderID,
				CreatedAt:   c.clock(),
			})
		}
		entries = append(entries, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.GoldKey(),
			Delta:          decimal.NewFromInt(-totalCost),
			Reason:         "barrel delivery payment",
			ReferenceID:    orderID,
			IdempotencyKey: idemKey("delivery", orderID),
			CreatedAt:      c.clock(),
		})

		entryCount = int64(len(entries))
		return ledger.NewLedger(u, c.log).AppendBatch(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	return c.commitReceipt(ctx, "delivery", orderID, -totalCost, entryCount)
}

// =============================================================================
// SALE - Cart checkout: debit potions, credit gold
// =============================================================================

// RecordSale commits a checkout: each SKU's potions are debited and one
// sibling entry credits the revenue.
func (c *Coordinator) RecordSale(ctx context.Context, orderID string, items []SaleItem) (*Receipt, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	// Collapse duplicate SKU lines so validation sees each key once.
	wanted := make(map[string]int64)
	order := make([]string, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: non-positive quantity for %q", ErrEmptyOrder, it.SKU)
		}
		if _, ok := c.cfg.MixBySKU(it.SKU); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSKU, it.SKU)
		}
		if _, seen := wanted[it.SKU]; !seen {
			order = append(order, it.SKU)
		}
		wanted[it.SKU] += it.Quantity
	}

	var revenue, entryCount int64
	err := c.withUnit(ctx, "sale", orderID, func(u ledger.Unit) error {
		calc := ledger.NewCalculator(u)

		entries := make([]ledger.Entry, 0, len(order)+1)
		for _, sku := range order {
			qty := wanted[sku]
			stock, err := calc.PotionCount(ctx, sku)
			if err != nil {
				return err
			}
			if stock.LessThan(decimal.NewFromInt(qty)) {
				return &InsufficientStockError{SKU: sku, Available: stock.IntPart(), Requested: qty}
			}

			mix, _ := c.cfg.MixBySKU(sku)
			revenue += mix.Price * qty
			entries = append(entries, ledger.Entry{
				ID:          uuid.NewString(),
				Key:         ledger.PotionKey(sku),
				Delta:       decimal.NewFromInt(-qty),
				Reason:      fmt.Sprintf("sale: %d x %s", qty, sku),
				ReferenceID: orderID,
				CreatedAt:   c.clock(),
			})
		}
		entries = append(entries, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.GoldKey(),
			Delta:          decimal.NewFromInt(revenue),
			Reason:         "sale revenue",
			ReferenceID:    orderID,
			IdempotencyKey: idemKey("sale", orderID),
			CreatedAt:      c.clock(),
		})

		entryCount = int64(len(entries))
		return ledger.NewLedger(u, c.log).AppendBatch(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	return c.commitReceipt(ctx, "sale", orderID, revenue, entryCount)
}

// =============================================================================
// BOTTLING - Convert ml into potions per recipe
// =============================================================================

// RecordBottling commits a bottling run: each recipe color's ml is
// debited and the SKU's potion count credited, all as siblings.
func (c *Coordinator) RecordBottling(ctx context.Context, orderID, sku string, quantity int64) (*Receipt, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity", ErrEmptyOrder)
	}
	mix, ok := c.cfg.MixBySKU(sku)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}

	var entryCount int64
	err := c.withUnit(ctx, "bottling", orderID, func(u ledger.Unit) error {
		calc := ledger.NewCalculator(u)

		// Potion-slot capacity.
		if limits, err := u.LoadCapacity(ctx); err == nil {
			total, err := calc.TotalPotions(ctx)
			if err != nil {
				return err
			}
			if total.IntPart()+quantity > limits.PotionCapacity {
				return &CapacityExceededError{
					Kind:     "potion",
					Current:  total.IntPart(),
					Adding:   quantity,
					Capacity: limits.PotionCapacity,
				}
			}
		} else if !errors.Is(err, ledger.ErrNoCapacity) {
			return err
		}

		entries := make([]ledger.Entry, 0, len(mix.Composition)+1)
		for _, color := range c.cfg.Colors {
			share := mix.MlPerPotion(color)
			if share <= 0 {
				continue
			}
			required := share * quantity
			available, err := calc.Ml(ctx, string(color))
			if err != nil {
				return err
			}
			if available.LessThan(decimal.NewFromInt(required)) {
				return &InsufficientLiquidError{Color: color, Available: available.IntPart(), Required: required}
			}
			entries = append(entries, ledger.Entry{
				ID:          uuid.NewString(),
				Key:         ledger.MlKey(string(color)),
				Delta:       decimal.NewFromInt(-required),
				Reason:      fmt.Sprintf("bottling: %d x %s", quantity, sku),
				ReferenceID: orderID,
				CreatedAt:   c.clock(),
			})
		}
		entries = append(entries, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.PotionKey(sku),
			Delta:          decimal.NewFromInt(quantity),
			Reason:         fmt.Sprintf("bottling: %d x %s", quantity, sku),
			ReferenceID:    orderID,
			IdempotencyKey: idemKey("bottling", orderID),
			CreatedAt:      c.clock(),
		})

		entryCount = int64(len(entries))
		return ledger.NewLedger(u, c.log).AppendBatch(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	return c.commitReceipt(ctx, "bottling", orderID, 0, entryCount)
}

// =============================================================================
// CAPACITY PURCHASE - Buy storage: debit gold, raise limits
// =============================================================================

// PurchaseCapacity buys potionUnits capacity units of potion slots and
// mlUnits of ml storage. The gold debit and the limit raise commit in
// the same unit.
func (c *Coordinator) PurchaseCapacity(ctx context.Context, orderID string, potionUnits, mlUnits int64) (*Receipt, error) {
	if potionUnits < 0 || mlUnits < 0 {
		return nil, fmt.Errorf("%w: negative capacity units", ErrEmptyOrder)
	}
	if potionUnits == 0 && mlUnits == 0 {
		return nil, ErrEmptyOrder
	}

	cost := (potionUnits + mlUnits) * c.cfg.CapacityUnitPrice
	err := c.withUnit(ctx, "capacity", orderID, func(u ledger.Unit) error {
		calc := ledger.NewCalculator(u)

		gold, err := calc.Gold(ctx)
		if err != nil {
			return err
		}
		if gold.LessThan(decimal.NewFromInt(cost)) {
			return &InsufficientFundsError{Available: gold.IntPart(), Required: cost}
		}

		limits, err := u.LoadCapacity(ctx)
		if errors.Is(err, ledger.ErrNoCapacity) {
			limits = c.seedCapacity()
		} else if err != nil {
			return err
		}
		limits.PotionCapacity += potionUnits * c.cfg.PotionCapacitySeed
		limits.MlCapacity += mlUnits * c.cfg.MlCapacitySeed
		if err := u.SaveCapacity(ctx, limits); err != nil {
			return err
		}

		return ledger.NewLedger(u, c.log).Append(ctx, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.GoldKey(),
			Delta:          decimal.NewFromInt(-cost),
			Reason:         fmt.Sprintf("capacity purchase: %d potion, %d ml units", potionUnits, mlUnits),
			ReferenceID:    orderID,
			IdempotencyKey: idemKey("capacity", orderID),
			CreatedAt:      c.clock(),
		})
	})
	if err != nil {
		return nil, err
	}

	return c.commitReceipt(ctx, "capacity", orderID, -cost, 1)
}

// =============================================================================
// RESET - Destroy and re-seed
// =============================================================================

// ResetAll destroys the ledger and re-seeds gold and capacity to their
// configured values. Destructive and fully logged.
func (c *Coordinator) ResetAll(ctx context.Context) (ledger.Snapshot, error) {
	err := c.store.WithTx(ctx, func(u ledger.Unit) error {
		lg := ledger.NewLedger(u, c.log)
		if _, err := lg.Truncate(ctx); err != nil {
			return err
		}
		if err := u.SaveCapacity(ctx, c.seedCapacity()); err != nil {
			return err
		}
		return lg.Append(ctx, ledger.Entry{
			ID:             uuid.NewString(),
			Key:            ledger.GoldKey(),
			Delta:          decimal.NewFromInt(c.cfg.InitialGold),
			Reason:         "reset seed",
			IdempotencyKey: "reset-" + uuid.NewString(),
			CreatedAt:      c.clock(),
		})
	})
	if err != nil {
		telemetry.UnitsAbortedTotal.WithLabelValues("reset", abortReason(err)).Inc()
		return ledger.Snapshot{}, err
	}

	telemetry.UnitsCommittedTotal.WithLabelValues("reset").Inc()
	return c.reconciler.Reconcile(ctx)
}

// =============================================================================
// INTERNALS
// =============================================================================

// withUnit runs fn as one unit with the order-replay guard applied
// first, and records abort metrics on failure.
func (c *Coordinator) withUnit(ctx context.Context, op, orderID string, fn func(ledger.Unit) error) error {
	err := c.store.WithTx(ctx, func(u ledger.Unit) error {
		if key := idemKey(op, orderID); key != "" {
			replayed, err := u.Exists(ctx, key)
			if err != nil {
				return err
			}
			if replayed {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, orderID)
			}
		}
		return fn(u)
	})
	if err != nil {
		telemetry.UnitsAbortedTotal.WithLabelValues(op, abortReason(err)).Inc()
		c.log.Info("unit aborted",
			zap.String("operation", op),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return err
}

// commitReceipt reconciles after a committed unit and builds the receipt.
// Reconciliation runs synchronously so the caller's next read is
// guaranteed consistent.
func (c *Coordinator) commitReceipt(ctx context.Context, op, orderID string, goldDelta, entries int64) (*Receipt, error) {
	telemetry.UnitsCommittedTotal.WithLabelValues(op).Inc()
	telemetry.EntriesAppendedTotal.Add(float64(entries))

	snap, err := c.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Info("unit committed",
		zap.String("operation", op),
		zap.String("order_id", orderID),
		zap.Int64("gold_delta", goldDelta),
		zap.Int64("gold", snap.Gold))

	return &Receipt{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Operation: op,
		GoldDelta: goldDelta,
		Entries:   int(entries),
		Snapshot:  snap,
		Committed: c.clock(),
	}, nil
}

func (c *Coordinator) checkMlCapacity(ctx context.Context, u ledger.Unit, calc *ledger.Calculator, addedMl map[Color]int64) error {
	limits, err := u.LoadCapacity(ctx)
	if errors.Is(err, ledger.ErrNoCapacity) {
		return nil // unseeded shop, no limits yet
	}
	if err != nil {
		return err
	}
	for _, color := range c.cfg.Colors {
		adding := addedMl[color]
		if adding == 0 {
			continue
		}
		current, err := calc.Ml(ctx, string(color))
		if err != nil {
			return err
		}
		if current.IntPart()+adding > limits.MlCapacity {
			return &CapacityExceededError{
				Kind:     "ml",
				ItemID:   string(color),
				Current:  current.IntPart(),
				Adding:   adding,
				Capacity: limits.MlCapacity,
			}
		}
	}
	return nil
}

func (c *Coordinator) seedCapacity() ledger.CapacityLimits {
	return ledger.CapacityLimits{
		PotionCapacity: c.cfg.PotionCapacitySeed,
		MlCapacity:     c.cfg.MlCapacitySeed,
	}
}

func idemKey(prefix, orderID string) string {
	if orderID == "" {
		return ""
	}
	return prefix + "-" + orderID
}

func abortReason(err error) string {
	switch {
	case ledger.IsRetryable(err):
		return "conflict"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate"
	case IsClientError(err):
		return "business"
	default:
		return "storage"
	}
}

/*
ledger.go - Append-only inventory log

PURPOSE:
  The Ledger is the immutable source of truth for all inventory changes.
  Every delivery, sale, bottling run, capacity purchase, and reset seed
  is recorded here. Balances are always computed by summing entries -
  there is no separate counter that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, no per-entry Delete
  2. IMMUTABLE: Once written, entries cannot be modified
  3. COMPLETE: sum(Delta) for a key at time T is the true balance at T
  4. IDEMPOTENT: Same idempotency key = same operation (no duplicates)

WHY APPEND-ONLY?
  Direct mutation of aggregate counters ("UPDATE inventory SET gold =
  gold - cost") is exactly the race-prone pattern this engine exists to
  eliminate. Signed entries commute, so concurrent appends never lose an
  update, and any balance can be explained by replaying its history.

RESET:
  The one sanctioned destruction is Truncate, used by the admin reset.
  It is logged with the number of entries destroyed, and the reset unit
  immediately re-seeds the ledger.

SEE ALSO:
  - store.go: Low-level persistence interface
  - shop/coordinator.go: Writes entries through transactional units
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the engine-level surface over a Store. It adds idempotency
// pre-checks on appends and logging around the destructive operations.
type Ledger struct {
	store Store
	log   *zap.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, log: log}
}

// Append records a single entry.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	return l.AppendBatch(ctx, []Entry{entry})
}

// AppendBatch records entries atomically. Idempotency keys are checked
// before the write so a replayed operation fails without side effects.
func (l *Ledger) AppendBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		exists, err := l.store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.store.AppendBatch(ctx, entries)
}

// SumBalance returns the aggregate change for one key; zero if the key
// has no entries.
func (l *Ledger) SumBalance(ctx context.Context, key ItemKey) (decimal.Decimal, error) {
	return l.store.Sum(ctx, key)
}

// SumBalancesGroupedByItem returns item_id -> aggregate for one item
// type in a single bulk read.
func (l *Ledger) SumBalancesGroupedByItem(ctx context.Context, itemType ItemType) (map[string]decimal.Decimal, error) {
	return l.store.SumByType(ctx, itemType)
}

// AllEntries returns the full log. Administrative use only.
func (l *Ledger) AllEntries(ctx context.Context) ([]Entry, error) {
	return l.store.Load(ctx)
}

// Truncate destroys the log. Destructive; only the reset path calls it,
// and the destruction is always logged.
func (l *Ledger) Truncate(ctx context.Context) (int, error) {
	n, err := l.store.Truncate(ctx)
	if err != nil {
		return 0, err
	}
	l.log.Warn("ledger truncated", zap.Int("entries_destroyed", n))
	return n, nil
}

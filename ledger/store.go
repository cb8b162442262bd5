/*
store.go - Persistence interfaces for the inventory ledger

PURPOSE:
  Defines the interface between the engine and the database. The Store
  keeps append-only semantics; different implementations back it with
  SQLite or in-memory maps.

KEY INTERFACES:
  Store:         Entry persistence (append, sum, load, truncate)
  Unit:          What a transactional closure sees (Store + capacity)
  TxStore:       Store with serializable multi-write units
  SnapshotStore: Materialized snapshot persistence
  CapacityStore: Capacity limit persistence

APPEND-ONLY CONTRACT:
  There is no Update and no per-entry Delete. Corrections are made via
  counter-entries. Truncate exists only for the explicit, fully-logged
  reset operation and reports how many entries it destroyed.

ATOMIC BATCHES:
  AppendBatch ensures all-or-nothing semantics. A barrel delivery writes
  the ml credits and the gold debit as siblings; either all become
  visible or none do.

ISOLATION:
  WithTx must make the validate-then-commit sequence of one unit
  serializable with respect to every other unit. Two concurrent
  "check gold, then debit gold" sequences must never both pass
  validation against the same starting balance.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (sqlx over mattn/go-sqlite3)
  - ledger/store: In-memory for tests and dev

SEE ALSO:
  - reconcile.go: Uses SnapshotStore
  - shop/coordinator.go: Drives WithTx units
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Append-only entry persistence
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Append-only. Truncate is reserved for the reset operation.
type Store interface {
	// AppendBatch persists entries atomically: all become visible or
	// none do. Fails with ErrDuplicateIdempotencyKey if any entry
	// replays an existing key, with a StorageError on I/O failure.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Sum returns the aggregate Delta for one key. A key with no
	// entries sums to zero; absence is not an error.
	Sum(ctx context.Context, key ItemKey) (decimal.Decimal, error)

	// SumByType returns item_id -> aggregate for every item of one
	// type. Bulk read used by the reconciler to avoid N+1 queries.
	SumByType(ctx context.Context, itemType ItemType) (map[string]decimal.Decimal, error)

	// Load returns every entry, ordered by creation. Administrative
	// read used by the reset/audit paths.
	Load(ctx context.Context) ([]Entry, error)

	// Truncate destroys all entries and returns how many were removed.
	// Destructive; used only by the reset operation, which logs it.
	Truncate(ctx context.Context) (int, error)

	// Exists checks whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// Unit is the view a transactional closure operates on. Balance reads
// taken through it observe the unit's own isolation, never a stale cache.
type Unit interface {
	Store
	CapacityStore
}

// TxStore wraps Store with serializable units of work.
type TxStore interface {
	Store
	CapacityStore

	// WithTx executes fn within one atomic, serializable unit.
	// If fn returns an error the unit is rolled back and no entries
	// remain; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Unit) error) error
}

// =============================================================================
// SNAPSHOT STORE - Materialized view persistence
// =============================================================================

// Snapshot is the materialized "current inventory" view. It is a derived
// cache: at rest it equals the ledger aggregate for every tracked key,
// and it can always be rebuilt from the entries.
type Snapshot struct {
	Gold    int64
	Ml      map[string]int64
	Potions map[string]int64
	TakenAt time.Time
}

// Clone returns a deep copy so callers can hold a snapshot without
// aliasing the reconciler's maps.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Gold: s.Gold, TakenAt: s.TakenAt}
	out.Ml = make(map[string]int64, len(s.Ml))
	for k, v := range s.Ml {
		out.Ml[k] = v
	}
	out.Potions = make(map[string]int64, len(s.Potions))
	for k, v := range s.Potions {
		out.Potions[k] = v
	}
	return out
}

// Equal compares balances only; TakenAt is bookkeeping, not state.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Gold != o.Gold || len(s.Ml) != len(o.Ml) || len(s.Potions) != len(o.Potions) {
		return false
	}
	for k, v := range s.Ml {
		if o.Ml[k] != v {
			return false
		}
	}
	for k, v := range s.Potions {
		if o.Potions[k] != v {
			return false
		}
	}
	return true
}

// TotalPotions returns the potion count across all SKUs, used for
// capacity checks.
func (s Snapshot) TotalPotions() int64 {
	var n int64
	for _, v := range s.Potions {
		n += v
	}
	return n
}

// SnapshotStore persists the materialized view. The reconciler is the
// only writer; everyone else reads.
type SnapshotStore interface {
	// SaveSnapshot atomically replaces the current snapshot.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LoadSnapshot returns the current snapshot, or ErrNoSnapshot if
	// none has been written yet.
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// =============================================================================
// CAPACITY STORE - Purchasable storage limits
// =============================================================================

// CapacityLimits bounds how much the shop can hold. PotionCapacity is
// potion slots, MlCapacity is ml per color. Mutated only by capacity
// purchase units, which debit gold in the same unit.
type CapacityLimits struct {
	PotionCapacity int64
	MlCapacity     int64
}

// CapacityStore persists capacity limits.
type CapacityStore interface {
	// LoadCapacity returns current limits, or ErrNoCapacity before seeding.
	LoadCapacity(ctx context.Context) (CapacityLimits, error)

	// SaveCapacity replaces the limits.
	SaveCapacity(ctx context.Context, limits CapacityLimits) error
}

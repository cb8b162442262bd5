/*
Package ledger provides the core inventory accounting engine.

PURPOSE:
  This package contains the types and algorithms for event-sourced
  inventory tracking. Whether the quantity is gold coins, milliliters of
  raw liquid, or bottled potions, the same engine records signed changes,
  derives balances, and keeps a materialized snapshot in sync.

KEY CONCEPTS IN THIS FILE (types.go):
  - ItemType/ItemKey: The closed key space for tracked quantities
  - Entry: An immutable ledger record of one balance change
  - Balances: Derived per-key totals

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only appended
  2. Precision: Uses decimal.Decimal so sums are exact at any magnitude
  3. Closed keys: ItemType is an enum; item ids are plain values, never
     string-built column or field names
  4. Derivation: Balances are always computed from entries - there is no
     mutable counter that can drift

USAGE:
  entry := ledger.Entry{
      ID:     uuid.NewString(),
      Key:    ledger.MlKey("green"),
      Delta:  decimal.NewFromInt(1000),
      Reason: "barrel delivery",
  }

SEE ALSO:
  - store.go: Persistence interfaces
  - balance.go: Balance calculation from entries
  - reconcile.go: Snapshot reconciliation
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ITEM KEYS - Closed key space for tracked quantities
// =============================================================================

// ItemType identifies which kind of quantity an entry affects.
type ItemType string

const (
	ItemGold   ItemType = "gold"
	ItemMl     ItemType = "ml"
	ItemPotion ItemType = "potion"
)

// GoldItemID is the item id used for gold entries. Gold has no
// sub-resource, so every gold entry shares this id.
const GoldItemID = "N/A"

// ItemTypes lists all tracked item types in declaration order.
// Reconciliation iterates this list; the order is stable.
var ItemTypes = []ItemType{ItemGold, ItemMl, ItemPotion}

// ItemKey identifies a single tracked balance: (item_type, item_id).
// For ml the id is a color, for potions a SKU, for gold always GoldItemID.
type ItemKey struct {
	Type   ItemType
	ItemID string
}

func GoldKey() ItemKey             { return ItemKey{Type: ItemGold, ItemID: GoldItemID} }
func MlKey(color string) ItemKey   { return ItemKey{Type: ItemMl, ItemID: color} }
func PotionKey(sku string) ItemKey { return ItemKey{Type: ItemPotion, ItemID: sku} }

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.ItemID)
}

// Valid reports whether the key uses a known item type and a non-empty id.
func (k ItemKey) Valid() bool {
	switch k.Type {
	case ItemGold, ItemMl, ItemPotion:
		return k.ItemID != ""
	}
	return false
}

// =============================================================================
// ENTRY - Immutable record of one balance change
// =============================================================================

// Entry is a single inventory-affecting fact. Positive Delta credits the
// balance, negative debits it. Entries are append-only: the sum of Delta
// for a key at time T is the true balance at T.
type Entry struct {
	ID    string
	Key   ItemKey
	Delta decimal.Decimal

	// Reason is the free-text explanation: delivery, sale, bottling,
	// capacity purchase, reset seed.
	Reason string

	// ReferenceID links sibling entries of one logical operation
	// (typically the caller-supplied order id).
	ReferenceID string

	// IdempotencyKey, when set, makes replays of the same logical
	// operation fail with ErrDuplicateIdempotencyKey instead of
	// double-applying.
	IdempotencyKey string

	CreatedAt time.Time
}

// =============================================================================
// BALANCES - Derived per-key totals
// =============================================================================

// Balances holds the derived totals for every tracked key.
type Balances struct {
	Gold    decimal.Decimal
	Ml      map[string]decimal.Decimal
	Potions map[string]decimal.Decimal
}

// Get returns the balance for a key, zero when the key has no entries.
// Absence means zero, not an error.
func (b Balances) Get(key ItemKey) decimal.Decimal {
	switch key.Type {
	case ItemGold:
		return b.Gold
	case ItemMl:
		return b.Ml[key.ItemID]
	case ItemPotion:
		return b.Potions[key.ItemID]
	}
	return decimal.Zero
}

/*
Package shop implements the potion-shop domain on top of the ledger engine.

PURPOSE:
  Turns shop operations (barrel deliveries, bottling runs, cart sales,
  capacity purchases, resets) into atomic sets of ledger entries, and
  turns balances plus static configuration into purchase/bottling plans.

KEY CONCEPTS IN THIS FILE (types.go):
  - Color: Base liquid colors, with the classic [r,g,b,d] wire vector
  - PotionMix: Catalog entry - recipe, price, never a stored quantity
  - BarrelDelivery/SaleItem: Inputs to the transaction coordinator
  - PurchasePlan/BottlingPlan: Ephemeral policy-engine outputs
  - Receipt: Result of a committed unit

SEE ALSO:
  - policy.go: Planning algorithms
  - coordinator.go: Transactional operations
  - config.go: Static configuration and validation
*/
package shop

import (
	"time"

	"github.com/alembic/shop-engine/ledger"
)

// =============================================================================
// COLORS
// =============================================================================

// Color is a base liquid color.
type Color string

const (
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
	ColorDark  Color = "dark"
)

// colorVectorOrder is the wire order of the potion_type vector.
var colorVectorOrder = []Color{ColorRed, ColorGreen, ColorBlue, ColorDark}

// ColorFromVector maps a pure single-color [r,g,b,d] vector to its
// color. Returns false for mixed or empty vectors.
func ColorFromVector(v [4]int) (Color, bool) {
	found := -1
	for i, part := range v {
		if part == 0 {
			continue
		}
		if found >= 0 {
			return "", false
		}
		found = i
	}
	if found < 0 {
		return "", false
	}
	return colorVectorOrder[found], true
}

// =============================================================================
// POTION MIX - Catalog entity
// =============================================================================

// PotionMix is a catalog recipe. Quantity is never stored here; current
// stock is always derived from the ledger.
type PotionMix struct {
	SKU  string
	Name string

	// Composition maps colors to percentage shares. Shares are
	// non-negative and sum to exactly 100. A full-strength (100%)
	// component requires 100 ml per unit potion, so a share of N
	// costs N ml per potion.
	Composition map[Color]int

	// Price in gold per potion.
	Price int64
}

// MlPerPotion returns how many ml of a color one potion consumes.
func (m PotionMix) MlPerPotion(color Color) int64 {
	return int64(m.Composition[color])
}

// TypeVector renders the composition in [r,g,b,d] wire order.
func (m PotionMix) TypeVector() [4]int {
	var v [4]int
	for i, c := range colorVectorOrder {
		v[i] = m.Composition[c]
	}
	return v
}

// =============================================================================
// COORDINATOR INPUTS
// =============================================================================

// BarrelDelivery is one line of a delivery: quantity barrels of a single
// color, each holding MlPerBarrel of liquid, at UnitPrice gold apiece.
type BarrelDelivery struct {
	SKU         string
	Color       Color
	MlPerBarrel int64
	Quantity    int64
	UnitPrice   int64
}

// Cost returns the gold cost of this line.
func (b BarrelDelivery) Cost() int64 { return b.UnitPrice * b.Quantity }

// TotalMl returns the liquid volume this line delivers.
func (b BarrelDelivery) TotalMl() int64 { return b.MlPerBarrel * b.Quantity }

// SaleItem is one line of a checkout.
type SaleItem struct {
	SKU      string
	Quantity int64
}

// =============================================================================
// POLICY ENGINE OUTPUTS
// =============================================================================

// PlannedBarrel is one line of a restock plan.
type PlannedBarrel struct {
	SKU           string
	Color         Color
	Quantity      int64
	UnitPrice     int64
	EstimatedCost int64
}

// PurchasePlan is the ephemeral output of restock planning. Never
// persisted; recomputed on each planning call.
type PurchasePlan struct {
	Barrels   []PlannedBarrel
	TotalCost int64
}

// BottlingItem is one line of a bottling plan.
type BottlingItem struct {
	SKU      string
	Quantity int64
}

// CapacityPlan is the ephemeral output of capacity planning: how many
// storage units to buy, in whole units.
type CapacityPlan struct {
	PotionUnits int64
	MlUnits     int64
	TotalCost   int64
}

// =============================================================================
// RECEIPT
// =============================================================================

// Receipt reports a committed unit: what changed and the reconciled
// snapshot the caller can trust for its next read.
type Receipt struct {
	ID        string
	OrderID   string
	Operation string

	// GoldDelta is the net gold change of the unit (negative = spent).
	GoldDelta int64

	// Entries is how many ledger entries the unit appended.
	Entries int

	Snapshot  ledger.Snapshot
	Committed time.Time
}

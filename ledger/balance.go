/*
balance.go - Balance derivation from ledger entries

PURPOSE:
  Computes current quantities from the ledger. This is the central
  calculation that answers "how much gold / green ml / red potions does
  the shop have right now?"

KEY INSIGHT:
  The calculator is a pure function layer over a Store read. Point it at
  a transactional Unit and the balances observe that unit's isolation;
  point it at the plain store and they reflect last committed state.
  Sums are commutative, so entry order never affects the result.

MISSING KEYS:
  A key with no entries reads as zero. Absence means zero - a brand new
  color or SKU simply has nothing recorded yet.

SEE ALSO:
  - reconcile.go: Uses All() to rebuild the snapshot
  - shop/policy.go: Plans purchases from these balances
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Calculator derives current balances from a store read. No side
// effects; safe to construct ad hoc around any Store.
type Calculator struct {
	store Store
}

// NewCalculator creates a calculator over the given store (or unit).
func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// Gold returns the current gold balance. Negative gold is never allowed
// by policy; seeing one here is a defect signal, not a valid state.
func (c *Calculator) Gold(ctx context.Context) (decimal.Decimal, error) {
	return c.store.Sum(ctx, GoldKey())
}

// Ml returns the current raw-liquid balance for a color.
func (c *Calculator) Ml(ctx context.Context, color string) (decimal.Decimal, error) {
	return c.store.Sum(ctx, MlKey(color))
}

// PotionCount returns the current bottled count for a SKU.
func (c *Calculator) PotionCount(ctx context.Context, sku string) (decimal.Decimal, error) {
	return c.store.Sum(ctx, PotionKey(sku))
}

// TotalPotions returns the potion count across all SKUs.
func (c *Calculator) TotalPotions(ctx context.Context) (decimal.Decimal, error) {
	bySKU, err := c.store.SumByType(ctx, ItemPotion)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range bySKU {
		total = total.Add(v)
	}
	return total, nil
}

// All returns every tracked balance using one bulk read per item type.
func (c *Calculator) All(ctx context.Context) (Balances, error) {
	goldByID, err := c.store.SumByType(ctx, ItemGold)
	if err != nil {
		return Balances{}, err
	}
	ml, err := c.store.SumByType(ctx, ItemMl)
	if err != nil {
		return Balances{}, err
	}
	potions, err := c.store.SumByType(ctx, ItemPotion)
	if err != nil {
		return Balances{}, err
	}

	gold := decimal.Zero
	for _, v := range goldByID {
		gold = gold.Add(v)
	}

	return Balances{Gold: gold, Ml: ml, Potions: potions}, nil
}

/*
policy.go - Planning algorithms

PURPOSE:
  Turns current balances plus static configuration into actionable
  plans. Three algorithms live here:

  1. Restock planning: For each color below its ml threshold, buy
     enough whole barrels (ceiling division) to refill it, greedily in
     declared color order, cutting off once the running cost would
     exceed the configured budget limit. Partial plans are expected -
     this is a greedy, order-dependent cutoff, not global optimization.
     The plan is advisory and may exceed the gold on hand; the binding
     affordability check happens when the delivery commits.

  2. Bottling planning: For each SKU, the limiting color is the one
     whose available ml supports the fewest potions. A share of N in
     the recipe costs N ml per potion (100 ml per full-strength unit),
     so max = floor(min over colors of available_ml / share_ml).
     SKUs that bottle zero are skipped, never errored.

  3. Affordability: A purchase is rejected when gold < cost. The
     authoritative check happens inside the coordinator's unit; the
     helper here exists for plan previews only.

ORDERING CONTRACT:
  Iteration order over colors and SKUs follows configuration
  declaration order and is observable: the same balances always produce
  the same plan.

SEE ALSO:
  - coordinator.go: Executes plans transactionally
  - api/scheduler.go: Calls PlanRestock on a timer
*/
package shop

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alembic/shop-engine/ledger"
)

// Planner is the policy engine. Read-only: it consumes balances and
// configuration, and produces ephemeral plans.
type Planner struct {
	calc *ledger.Calculator
	cfg  Config
}

// NewPlanner creates a planner reading balances from the given store.
func NewPlanner(store ledger.Store, cfg Config) *Planner {
	return &Planner{calc: ledger.NewCalculator(store), cfg: cfg}
}

// MlPerBarrel exposes the configured barrel volume planned purchases use.
func (p *Planner) MlPerBarrel() int64 { return p.cfg.MlPerBarrel }

// PlanRestock builds the barrel purchase plan. Colors are visited in
// declared order; planning stops at the first color whose barrels would
// push the running cost past the configured budget limit.
func (p *Planner) PlanRestock(ctx context.Context) (PurchasePlan, error) {
	budget := p.cfg.RestockBudget // zero = no cap

	var plan PurchasePlan
	for _, color := range p.cfg.Colors {
		ml, err := p.calc.Ml(ctx, string(color))
		if err != nil {
			return PurchasePlan{}, err
		}

		current := ml.IntPart()
		if current >= p.cfg.MlThreshold {
			continue
		}

		needed := p.cfg.MlThreshold - current
		barrels := ceilDiv(needed, p.cfg.MlPerBarrel)
		price := p.cfg.BarrelPrices[color]
		cost := barrels * price

		if budget > 0 && plan.TotalCost+cost > budget {
			break
		}

		plan.Barrels = append(plan.Barrels, PlannedBarrel{
			SKU:           p.cfg.BarrelSKU(color),
			Color:         color,
			Quantity:      barrels,
			UnitPrice:     price,
			EstimatedCost: cost,
		})
		plan.TotalCost += cost
	}

	return plan, nil
}

// PlanBottling reports, per SKU in catalog order, how many potions the
// current liquid supports. SKUs limited to zero are omitted.
func (p *Planner) PlanBottling(ctx context.Context) ([]BottlingItem, error) {
	byColor, err := p.calc.All(ctx)
	if err != nil {
		return nil, err
	}

	var items []BottlingItem
	for _, mix := range p.cfg.Mixes {
		count := maxPotions(mix, byColor.Ml)
		if count <= 0 {
			continue
		}
		items = append(items, BottlingItem{SKU: mix.SKU, Quantity: count})
	}
	return items, nil
}

// PlanCapacity recommends storage purchases: when a storage kind sits
// at or above 80% utilization, one unit of that kind is planned, and
// units are dropped (potion first) until the total fits the gold on
// hand. Limits are passed in because the planner itself only reads
// balances.
func (p *Planner) PlanCapacity(ctx context.Context, limits ledger.CapacityLimits) (CapacityPlan, error) {
	balances, err := p.calc.All(ctx)
	if err != nil {
		return CapacityPlan{}, err
	}

	var plan CapacityPlan
	if limits.PotionCapacity > 0 {
		var potions int64
		for _, count := range balances.Potions {
			potions += count.IntPart()
		}
		if potions*10 >= limits.PotionCapacity*8 {
			plan.PotionUnits = 1
		}
	}
	if limits.MlCapacity > 0 {
		var ml int64
		for _, vol := range balances.Ml {
			ml += vol.IntPart()
		}
		if ml*10 >= limits.MlCapacity*8 {
			plan.MlUnits = 1
		}
	}

	gold := balances.Gold.IntPart()
	plan.TotalCost = (plan.PotionUnits + plan.MlUnits) * p.cfg.CapacityUnitPrice
	for plan.TotalCost > gold && plan.PotionUnits+plan.MlUnits > 0 {
		if plan.PotionUnits > 0 {
			plan.PotionUnits--
		} else {
			plan.MlUnits--
		}
		plan.TotalCost = (plan.PotionUnits + plan.MlUnits) * p.cfg.CapacityUnitPrice
	}
	return plan, nil
}

// Affordable reports whether a cost fits the current gold balance.
// Preview only - the binding check runs inside the coordinator's unit.
func (p *Planner) Affordable(ctx context.Context, cost int64) (bool, error) {
	gold, err := p.calc.Gold(ctx)
	if err != nil {
		return false, err
	}
	return !gold.LessThan(decimal.NewFromInt(cost)), nil
}

// maxPotions applies the limiting-component rule: the color whose
// available ml supports the fewest potions bounds the run.
func maxPotions(mix PotionMix, mlByColor map[string]decimal.Decimal) int64 {
	limit := int64(-1)
	for color, share := range mix.Composition {
		if share <= 0 {
			continue
		}
		available := mlByColor[string(color)].IntPart()
		supported := available / int64(share) // floor
		if limit < 0 || supported < limit {
			limit = supported
		}
	}
	if limit < 0 {
		return 0
	}
	return limit
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

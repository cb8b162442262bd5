/*
config.go - Static shop configuration

PURPOSE:
  Holds the thresholds, capacities, prices, and potion recipes the
  policy engine and coordinator consume. Loaded once at startup; static
  for the process lifetime. Malformed configuration (a recipe that does
  not sum to 100, a color with no barrel price) is fatal at load time,
  never a per-request error.

SOURCES:
  Defaults here mirror the classic shop setup: 100 starting gold,
  1000 ml barrels, 1000 gold per capacity unit, a 50-gold green potion.
  A .env file or the environment overrides the numeric knobs
  (SHOP_INITIAL_GOLD, SHOP_ML_THRESHOLD, ...).

SEE ALSO:
  - policy.go: Consumes thresholds, prices, budget
  - coordinator.go: Consumes seeds, capacity pricing, recipes
*/
package shop

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the static shop configuration.
type Config struct {
	// InitialGold seeds the ledger at first boot and after a reset.
	InitialGold int64

	// MlThreshold triggers restocking: a color below this many ml gets
	// barrels planned.
	MlThreshold int64

	// MlPerBarrel is the volume of one purchasable barrel.
	MlPerBarrel int64

	// BarrelPrices maps each color to its barrel unit price in gold.
	BarrelPrices map[Color]int64

	// RestockBudget caps the estimated cost of one restock plan.
	// Zero means no cap: plans may exceed the gold on hand, and the
	// delivery's affordability check is what rejects them.
	RestockBudget int64

	// PotionCapacitySeed / MlCapacitySeed are the storage limits at
	// first boot and after a reset. Further capacity is purchased.
	PotionCapacitySeed int64
	MlCapacitySeed     int64

	// CapacityUnitPrice is the gold cost of one capacity unit
	// (potion slot or ml-capacity block).
	CapacityUnitPrice int64

	// Colors lists the tracked liquid colors. The order is part of the
	// planning contract: restock iterates colors in this order.
	Colors []Color

	// Mixes is the potion catalog.
	Mixes []PotionMix
}

// Default returns the standard shop setup.
func Default() Config {
	return Config{
		InitialGold: 100,
		MlThreshold: 500,
		MlPerBarrel: 1000,
		BarrelPrices: map[Color]int64{
			ColorRed:   250,
			ColorGreen: 200,
			ColorBlue:  300,
			ColorDark:  400,
		},
		RestockBudget:      0,
		PotionCapacitySeed: 50,
		MlCapacitySeed:     10000,
		CapacityUnitPrice:  1000,
		Colors:             []Color{ColorRed, ColorGreen, ColorBlue, ColorDark},
		Mixes: []PotionMix{
			{
				SKU:         "RED_POTION",
				Name:        "Red Potion",
				Composition: map[Color]int{ColorRed: 100},
				Price:       50,
			},
			{
				SKU:         "GREEN_POTION",
				Name:        "Green Potion",
				Composition: map[Color]int{ColorGreen: 100},
				Price:       50,
			},
			{
				SKU:         "BLUE_POTION",
				Name:        "Blue Potion",
				Composition: map[Color]int{ColorBlue: 100},
				Price:       60,
			},
			{
				SKU:         "TEAL_POTION",
				Name:        "Teal Potion",
				Composition: map[Color]int{ColorGreen: 50, ColorBlue: 50},
				Price:       65,
			},
		},
	}
}

// Load returns the default configuration with environment overrides
// applied (a .env file is honored when present) and validates it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.InitialGold = envInt64("SHOP_INITIAL_GOLD", cfg.InitialGold)
	cfg.MlThreshold = envInt64("SHOP_ML_THRESHOLD", cfg.MlThreshold)
	cfg.MlPerBarrel = envInt64("SHOP_ML_PER_BARREL", cfg.MlPerBarrel)
	cfg.RestockBudget = envInt64("SHOP_RESTOCK_BUDGET", cfg.RestockBudget)
	cfg.PotionCapacitySeed = envInt64("SHOP_POTION_CAPACITY", cfg.PotionCapacitySeed)
	cfg.MlCapacitySeed = envInt64("SHOP_ML_CAPACITY", cfg.MlCapacitySeed)
	cfg.CapacityUnitPrice = envInt64("SHOP_CAPACITY_UNIT_PRICE", cfg.CapacityUnitPrice)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system relies on.
func (c Config) Validate() error {
	if c.InitialGold < 0 {
		return &ConfigurationError{Field: "initial_gold", Detail: "must be non-negative"}
	}
	if c.MlPerBarrel <= 0 {
		return &ConfigurationError{Field: "ml_per_barrel", Detail: "must be positive"}
	}
	if c.MlThreshold < 0 {
		return &ConfigurationError{Field: "ml_threshold", Detail: "must be non-negative"}
	}
	if c.CapacityUnitPrice <= 0 {
		return &ConfigurationError{Field: "capacity_unit_price", Detail: "must be positive"}
	}
	if len(c.Colors) == 0 {
		return &ConfigurationError{Field: "colors", Detail: "at least one color required"}
	}

	known := make(map[Color]bool, len(c.Colors))
	for _, color := range c.Colors {
		if known[color] {
			return &ConfigurationError{Field: "colors", Detail: fmt.Sprintf("duplicate color %q", color)}
		}
		known[color] = true
		if price, ok := c.BarrelPrices[color]; !ok || price <= 0 {
			return &ConfigurationError{
				Field:  "barrel_prices",
				Detail: fmt.Sprintf("missing or non-positive price for color %q", color),
			}
		}
	}

	skus := make(map[string]bool, len(c.Mixes))
	for _, mix := range c.Mixes {
		if mix.SKU == "" {
			return &ConfigurationError{Field: "mixes", Detail: "mix with empty sku"}
		}
		if skus[mix.SKU] {
			return &ConfigurationError{Field: "mixes", Detail: fmt.Sprintf("duplicate sku %q", mix.SKU)}
		}
		skus[mix.SKU] = true

		if mix.Price <= 0 {
			return &ConfigurationError{Field: "mixes", Detail: fmt.Sprintf("%s: price must be positive", mix.SKU)}
		}

		sum := 0
		for color, part := range mix.Composition {
			if !known[color] {
				return &ConfigurationError{Field: "mixes", Detail: fmt.Sprintf("%s: unknown color %q", mix.SKU, color)}
			}
			if part < 0 {
				return &ConfigurationError{Field: "mixes", Detail: fmt.Sprintf("%s: negative share for %q", mix.SKU, color)}
			}
			sum += part
		}
		if sum != 100 {
			return &ConfigurationError{
				Field:  "mixes",
				Detail: fmt.Sprintf("%s: composition sums to %d, must be exactly 100", mix.SKU, sum),
			}
		}
	}

	return nil
}

// MixBySKU looks up a catalog entry.
func (c Config) MixBySKU(sku string) (PotionMix, bool) {
	for _, m := range c.Mixes {
		if m.SKU == sku {
			return m, true
		}
	}
	return PotionMix{}, false
}

// BarrelSKU names the wholesale barrel for a color, e.g. SMALL_GREEN_BARREL.
func (c Config) BarrelSKU(color Color) string {
	size := "SMALL"
	switch c.MlPerBarrel {
	case 10000:
		size = "LARGE"
	case 2500:
		size = "MEDIUM"
	}
	return fmt.Sprintf("%s_%s_BARREL", size, strings.ToUpper(string(color)))
}

func envInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

/*
errors.go - Business-rule errors for shop operations

PURPOSE:
  Typed validation failures raised inside transactional units. Every one
  of these aborts the unit cleanly: no entries are appended and the
  snapshot is untouched. Storage and concurrency errors come from the
  ledger package and pass through unchanged.

USAGE:
  var insufficient *shop.InsufficientFundsError
  if errors.As(err, &insufficient) {
      // 400-class response; balances unchanged
  }

SEE ALSO:
  - ledger/errors.go: Engine-level errors (storage, concurrency)
  - coordinator.go: Where these are raised
*/
package shop

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientFunds is returned when a purchase costs more gold
	// than the shop holds.
	ErrInsufficientFunds = errors.New("insufficient gold")

	// ErrInsufficientStock is returned when a sale requests more
	// potions than are bottled.
	ErrInsufficientStock = errors.New("insufficient potion stock")

	// ErrInsufficientLiquid is returned when a bottling run needs more
	// ml than a color holds.
	ErrInsufficientLiquid = errors.New("insufficient raw liquid")

	// ErrCapacityExceeded is returned when a delivery or bottling run
	// would overflow the purchased storage limits.
	ErrCapacityExceeded = errors.New("storage capacity exceeded")

	// ErrDuplicateOrder is returned when an order id has already been
	// committed. The original result stands; the retry applied nothing.
	ErrDuplicateOrder = errors.New("order already processed")

	// ErrUnknownSKU is returned when an operation references a SKU
	// that is not in the catalog.
	ErrUnknownSKU = errors.New("unknown sku")

	// ErrEmptyOrder is returned when an operation carries no items.
	ErrEmptyOrder = errors.New("order has no items")
)

// =============================================================================
// STRUCTURED ERRORS - Carry validation context
// =============================================================================

// InsufficientFundsError reports a gold shortfall.
type InsufficientFundsError struct {
	Available int64
	Required  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient gold: have %d, need %d", e.Available, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InsufficientStockError reports a potion shortfall for one SKU.
type InsufficientStockError struct {
	SKU       string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %s: have %d, requested %d", e.SKU, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientLiquidError reports an ml shortfall for one color.
type InsufficientLiquidError struct {
	Color     Color
	Available int64
	Required  int64
}

func (e *InsufficientLiquidError) Error() string {
	return fmt.Sprintf("insufficient %s ml: have %d, need %d", e.Color, e.Available, e.Required)
}

func (e *InsufficientLiquidError) Unwrap() error { return ErrInsufficientLiquid }

// CapacityExceededError reports a storage overflow.
type CapacityExceededError struct {
	Kind     string // "ml" or "potion"
	ItemID   string // color for ml, empty for potion slots
	Current  int64
	Adding   int64
	Capacity int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%s capacity exceeded: %d + %d > %d", e.Kind, e.Current, e.Adding, e.Capacity)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// ConfigurationError reports malformed static configuration. Detected
// at load time and fatal to startup, never per-request.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for business-rule violations the caller
// can correct, as opposed to storage failures.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientLiquid) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrDuplicateOrder) ||
		errors.Is(err, ErrUnknownSKU) ||
		errors.Is(err, ErrEmptyOrder)
}

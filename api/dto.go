/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external wire contract, which keeps
  the classic field names (potion_type vectors, ml_per_barrel) stable
  while the domain model uses colors and SKUs.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMAT NOTES:
  potion_type is the classic [r, g, b, d] percentage vector. Barrels are
  always single-color, so their vectors have exactly one non-zero part.

VALIDATION:
  Validation is done in handlers and the coordinator, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - shop/types.go: The domain-side equivalents
*/
package api

import (
	"time"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/shop"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BarrelDTO is one barrel line on the wire, in a delivery or a plan.
type BarrelDTO struct {
	SKU         string `json:"sku"`
	MlPerBarrel int64  `json:"ml_per_barrel"`
	PotionType  [4]int `json:"potion_type"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

// PotionDTO is one bottled-potion line on the wire.
type PotionDTO struct {
	PotionType [4]int `json:"potion_type"`
	Quantity   int64  `json:"quantity"`
}

// CatalogItemDTO is one sellable potion listing.
type CatalogItemDTO struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	Price      int64  `json:"price"`
	PotionType [4]int `json:"potion_type"`
}

// CheckoutRequest is a cart checkout body.
type CheckoutRequest struct {
	Items []CheckoutItemDTO `json:"items"`
}

// CheckoutItemDTO is one cart line.
type CheckoutItemDTO struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// AuditDTO is the materialized inventory view.
type AuditDTO struct {
	Gold            int64            `json:"gold"`
	NumberOfPotions int64            `json:"number_of_potions"`
	MlInBarrels     int64            `json:"ml_in_barrels"`
	MlByColor       map[string]int64 `json:"ml_by_color"`
	PotionsBySKU    map[string]int64 `json:"potions_by_sku"`
	TakenAt         string           `json:"taken_at"`
}

// CapacityPlanDTO reports recommended storage purchases, in whole units.
type CapacityPlanDTO struct {
	PotionCapacity int64 `json:"potion_capacity"`
	MlCapacity     int64 `json:"ml_capacity"`
	TotalCost      int64 `json:"total_cost"`
}

// CapacityDeliverRequest commits a storage purchase.
type CapacityDeliverRequest struct {
	PotionCapacity int64 `json:"potion_capacity"`
	MlCapacity     int64 `json:"ml_capacity"`
}

// ReceiptDTO reports a committed operation.
type ReceiptDTO struct {
	ID        string   `json:"id"`
	OrderID   string   `json:"order_id"`
	Operation string   `json:"operation"`
	GoldDelta int64    `json:"gold_delta"`
	Entries   int      `json:"entries"`
	Audit     AuditDTO `json:"audit"`
	Committed string   `json:"committed"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

// colorVector renders a single-color barrel as a [r,g,b,d] vector.
func colorVector(color shop.Color) [4]int {
	mix := shop.PotionMix{Composition: map[shop.Color]int{color: 100}}
	return mix.TypeVector()
}

func toAuditDTO(snap ledger.Snapshot) AuditDTO {
	var ml int64
	mlByColor := make(map[string]int64, len(snap.Ml))
	for color, vol := range snap.Ml {
		ml += vol
		mlByColor[color] = vol
	}

	var potions int64
	bySKU := make(map[string]int64, len(snap.Potions))
	for sku, count := range snap.Potions {
		potions += count
		bySKU[sku] = count
	}

	return AuditDTO{
		Gold:            snap.Gold,
		NumberOfPotions: potions,
		MlInBarrels:     ml,
		MlByColor:       mlByColor,
		PotionsBySKU:    bySKU,
		TakenAt:         snap.TakenAt.Format(time.RFC3339),
	}
}

func toReceiptDTO(r *shop.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:        r.ID,
		OrderID:   r.OrderID,
		Operation: r.Operation,
		GoldDelta: r.GoldDelta,
		Entries:   r.Entries,
		Audit:     toAuditDTO(r.Snapshot),
		Committed: r.Committed.Format(time.RFC3339),
	}
}

func toPlannedBarrelDTOs(plan shop.PurchasePlan, mlPerBarrel int64) []BarrelDTO {
	dtos := make([]BarrelDTO, len(plan.Barrels))
	for i, b := range plan.Barrels {
		dtos[i] = BarrelDTO{
			SKU:         b.SKU,
			MlPerBarrel: mlPerBarrel,
			PotionType:  colorVector(b.Color),
			Price:       b.UnitPrice,
			Quantity:    b.Quantity,
		}
	}
	return dtos
}

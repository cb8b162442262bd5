/*
handlers.go - HTTP API handlers for the shop engine

PURPOSE:
  Exposes the shop engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the coordinator and planner.

ENDPOINTS:
  Barrels (wholesale liquid):
    POST   /api/barrels/plan               Plan a restock purchase
    POST   /api/barrels/deliver/{orderID}  Commit a delivery

  Bottler (liquid -> potions):
    POST   /api/bottler/plan               Plan a bottling run
    POST   /api/bottler/deliver/{orderID}  Commit bottled potions

  Carts:
    POST   /api/carts/{cartID}/checkout    Sell potions for gold

  Catalog:
    GET    /api/catalog                    Sellable potions with stock

  Inventory:
    GET    /api/inventory/audit            Current inventory snapshot
    POST   /api/inventory/plan             Plan a capacity purchase
    POST   /api/inventory/deliver/{orderID} Commit a capacity purchase

  Admin:
    POST   /api/admin/reset                Destroy ledger, re-seed

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business-rule violations
  - 409: Duplicate order (idempotent replay), write conflict
  - 500: Storage errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - shop/coordinator.go: The transactional operations behind these
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/shop"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *shop.Coordinator
	Planner     *shop.Planner
	Capacity    ledger.CapacityStore
	Config      shop.Config

	log *zap.Logger
}

// NewHandler wires a handler. log may be nil.
func NewHandler(coord *shop.Coordinator, planner *shop.Planner, capacity ledger.CapacityStore, cfg shop.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Coordinator: coord,
		Planner:     planner,
		Capacity:    capacity,
		Config:      cfg,
		log:         log,
	}
}

// =============================================================================
// BARREL HANDLERS
// =============================================================================

// PlanBarrels returns the restock purchase plan for the current balances.
// POST /api/barrels/plan
func (h *Handler) PlanBarrels(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Planner.PlanRestock(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to plan restock", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlannedBarrelDTOs(plan, h.Config.MlPerBarrel))
}

// DeliverBarrels commits a barrel delivery.
// POST /api/barrels/deliver/{orderID}
func (h *Handler) DeliverBarrels(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var body []BarrelDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	barrels := make([]shop.BarrelDelivery, 0, len(body))
	for _, dto := range body {
		color, ok := shop.ColorFromVector(dto.PotionType)
		if !ok {
			writeError(w, http.StatusBadRequest, "Barrels must be single-color",
				fmt.Errorf("mixed potion_type on %q", dto.SKU))
			return
		}
		barrels = append(barrels, shop.BarrelDelivery{
			SKU:         dto.SKU,
			Color:       color,
			MlPerBarrel: dto.MlPerBarrel,
			Quantity:    dto.Quantity,
			UnitPrice:   dto.Price,
		})
	}

	receipt, err := h.Coordinator.RecordDelivery(r.Context(), orderID, barrels)
	if err != nil {
		writeDomainError(w, "Delivery rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// =============================================================================
// BOTTLER HANDLERS
// =============================================================================

// PlanBottling reports how many potions the current liquid supports.
// POST /api/bottler/plan
func (h *Handler) PlanBottling(w http.ResponseWriter, r *http.Request) {
	items, err := h.Planner.PlanBottling(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to plan bottling", err)
		return
	}

	dtos := make([]PotionDTO, 0, len(items))
	for _, item := range items {
		mix, ok := h.Config.MixBySKU(item.SKU)
		if !ok {
			continue
		}
		dtos = append(dtos, PotionDTO{PotionType: mix.TypeVector(), Quantity: item.Quantity})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeliverBottles commits bottled potions. Each line is one bottling run;
// lines are keyed orderID-0, orderID-1, ... so a replay of the whole
// request is rejected line by line.
// POST /api/bottler/deliver/{orderID}
func (h *Handler) DeliverBottles(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var body []PotionDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty bottling order", shop.ErrEmptyOrder)
		return
	}

	var receipts []ReceiptDTO
	for i, dto := range body {
		sku, ok := h.mixByVector(dto.PotionType)
		if !ok {
			writeError(w, http.StatusBadRequest, "No catalog recipe for potion_type",
				fmt.Errorf("%w: vector %v", shop.ErrUnknownSKU, dto.PotionType))
			return
		}

		lineOrder := fmt.Sprintf("%s-%d", orderID, i)
		receipt, err := h.Coordinator.RecordBottling(r.Context(), lineOrder, sku, dto.Quantity)
		if err != nil {
			writeDomainError(w, "Bottling rejected", err)
			return
		}
		receipts = append(receipts, toReceiptDTO(receipt))
	}
	writeJSON(w, http.StatusOK, receipts)
}

// =============================================================================
// CART HANDLERS
// =============================================================================

// Checkout sells the cart's potions for gold.
// POST /api/carts/{cartID}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	var body CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items := make([]shop.SaleItem, 0, len(body.Items))
	for _, it := range body.Items {
		items = append(items, shop.SaleItem{SKU: it.SKU, Quantity: it.Quantity})
	}

	receipt, err := h.Coordinator.RecordSale(r.Context(), cartID, items)
	if err != nil {
		writeDomainError(w, "Checkout rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// GetCatalog lists sellable potions with current stock. SKUs with no
// bottled stock are omitted.
// GET /api/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Coordinator.GetSnapshot(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to read inventory", err)
		return
	}

	items := make([]CatalogItemDTO, 0, len(h.Config.Mixes))
	for _, mix := range h.Config.Mixes {
		stock := snap.Potions[mix.SKU]
		if stock <= 0 {
			continue
		}
		items = append(items, CatalogItemDTO{
			SKU:        mix.SKU,
			Name:       mix.Name,
			Quantity:   stock,
			Price:      mix.Price,
			PotionType: mix.TypeVector(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// GetAudit returns the materialized inventory view.
// GET /api/inventory/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Coordinator.GetSnapshot(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to read inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(snap))
}

// PlanCapacity recommends storage purchases for the current utilization.
// POST /api/inventory/plan
func (h *Handler) PlanCapacity(w http.ResponseWriter, r *http.Request) {
	limits, err := h.Capacity.LoadCapacity(r.Context())
	if err != nil && !errors.Is(err, ledger.ErrNoCapacity) {
		writeDomainError(w, "Failed to load capacity", err)
		return
	}

	plan, err := h.Planner.PlanCapacity(r.Context(), limits)
	if err != nil {
		writeDomainError(w, "Failed to plan capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityPlanDTO{
		PotionCapacity: plan.PotionUnits,
		MlCapacity:     plan.MlUnits,
		TotalCost:      plan.TotalCost,
	})
}

// DeliverCapacity commits a storage purchase.
// POST /api/inventory/deliver/{orderID}
func (h *Handler) DeliverCapacity(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var body CapacityDeliverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.Coordinator.PurchaseCapacity(r.Context(), orderID, body.PotionCapacity, body.MlCapacity)
	if err != nil {
		writeDomainError(w, "Capacity purchase rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reset destroys the ledger and re-seeds the shop. Destructive.
// POST /api/admin/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Coordinator.ResetAll(r.Context())
	if err != nil {
		writeDomainError(w, "Reset failed", err)
		return
	}
	h.log.Warn("shop reset via api")
	writeJSON(w, http.StatusOK, toAuditDTO(snap))
}

// =============================================================================
// HELPERS
// =============================================================================

// mixByVector finds the catalog SKU whose recipe matches the wire vector.
func (h *Handler) mixByVector(v [4]int) (string, bool) {
	for _, mix := range h.Config.Mixes {
		if mix.TypeVector() == v {
			return mix.SKU, true
		}
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps coordinator and ledger errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, shop.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	case shop.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alembic/shop-engine/api"
	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/ledger/store"
	"github.com/alembic/shop-engine/shop"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T, initialGold int64) *httptest.Server {
	t.Helper()

	cfg := shop.Default()
	cfg.InitialGold = initialGold

	mem := store.NewMemory()
	reconciler := ledger.NewReconciler(mem, mem, nil, nil)
	coord := shop.NewCoordinator(mem, reconciler, cfg, nil, nil)
	require.NoError(t, coord.EnsureSeed(context.Background()))

	handler := api.NewHandler(coord, shop.NewPlanner(mem, cfg), mem, cfg, nil)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func greenBarrelDTO(qty int64) api.BarrelDTO {
	return api.BarrelDTO{
		SKU:         "SMALL_GREEN_BARREL",
		MlPerBarrel: 1000,
		PotionType:  [4]int{0, 100, 0, 0},
		Price:       200,
		Quantity:    qty,
	}
}

// =============================================================================
// DELIVERY FLOW TESTS
// =============================================================================

func TestAPI_DeliverBarrels_HappyPath(t *testing.T) {
	// GIVEN: A shop with 1000 gold
	// WHEN: POSTing one green barrel to /api/barrels/deliver/{orderID}
	// THEN: 200 with a receipt showing gold 800 and 1000 green ml

	srv := newTestServer(t, 1000)

	resp := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", []api.BarrelDTO{greenBarrelDTO(1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	receipt := decode[api.ReceiptDTO](t, resp)
	assert.Equal(t, int64(-200), receipt.GoldDelta)
	assert.Equal(t, int64(800), receipt.Audit.Gold)
	assert.Equal(t, int64(1000), receipt.Audit.MlByColor["green"])
}

func TestAPI_DeliverBarrels_InsufficientGoldIs400(t *testing.T) {
	// GIVEN: The default 100 gold seed
	// WHEN: Delivering a 200-gold barrel
	// THEN: 400 with an error body, and the audit still shows 100 gold

	srv := newTestServer(t, 100)

	resp := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", []api.BarrelDTO{greenBarrelDTO(1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	audit, err := http.Get(srv.URL + "/api/inventory/audit")
	require.NoError(t, err)
	defer audit.Body.Close()
	dto := decode[api.AuditDTO](t, audit)
	assert.Equal(t, int64(100), dto.Gold)
}

func TestAPI_DeliverBarrels_ReplayIs409(t *testing.T) {
	// GIVEN: A committed delivery under order id "order-1"
	// WHEN: Replaying it
	// THEN: 409 Conflict and no double-apply

	srv := newTestServer(t, 1000)
	body := []api.BarrelDTO{greenBarrelDTO(1)}

	first := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", body)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", body)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestAPI_DeliverBarrels_MixedVectorIs400(t *testing.T) {
	// GIVEN: A barrel line with a mixed potion_type vector
	// WHEN: Delivering it
	// THEN: 400 - barrels are single-color by contract

	srv := newTestServer(t, 1000)

	mixed := greenBarrelDTO(1)
	mixed.PotionType = [4]int{50, 50, 0, 0}

	resp := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", []api.BarrelDTO{mixed})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// BOTTLING / CATALOG / CHECKOUT FLOW
// =============================================================================

func TestAPI_FullShopCycle(t *testing.T) {
	// GIVEN: A shop with 1000 gold
	// WHEN: Delivering, planning bottling, bottling, listing, checking out
	// THEN: Every step agrees with the ledger-derived balances

	srv := newTestServer(t, 1000)

	// Deliver one green barrel.
	resp := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", []api.BarrelDTO{greenBarrelDTO(1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The bottler plan offers 10 green potions (100 ml each).
	resp = postJSON(t, srv.URL+"/api/bottler/plan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[[]api.PotionDTO](t, resp)
	require.Len(t, plan, 1)
	assert.Equal(t, [4]int{0, 100, 0, 0}, plan[0].PotionType)
	assert.Equal(t, int64(10), plan[0].Quantity)

	// Bottle them.
	resp = postJSON(t, srv.URL+"/api/bottler/deliver/order-2", plan)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// They show up in the catalog.
	catalogResp, err := http.Get(srv.URL + "/api/catalog")
	require.NoError(t, err)
	defer catalogResp.Body.Close()
	catalog := decode[[]api.CatalogItemDTO](t, catalogResp)
	require.Len(t, catalog, 1)
	assert.Equal(t, "GREEN_POTION", catalog[0].SKU)
	assert.Equal(t, int64(10), catalog[0].Quantity)

	// Sell all ten.
	resp = postJSON(t, srv.URL+"/api/carts/cart-1/checkout", api.CheckoutRequest{
		Items: []api.CheckoutItemDTO{{SKU: "GREEN_POTION", Quantity: 10}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[api.ReceiptDTO](t, resp)

	// 1000 - 200 + 10*50
	assert.Equal(t, int64(1300), receipt.Audit.Gold)
	assert.Equal(t, int64(0), receipt.Audit.NumberOfPotions)
}

func TestAPI_CheckoutOverStockIs400(t *testing.T) {
	// GIVEN: An empty shop
	// WHEN: Checking out a potion nobody bottled
	// THEN: 400 with InsufficientStock details

	srv := newTestServer(t, 1000)

	resp := postJSON(t, srv.URL+"/api/carts/cart-1/checkout", api.CheckoutRequest{
		Items: []api.CheckoutItemDTO{{SKU: "GREEN_POTION", Quantity: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// ADMIN / OPERATIONAL ENDPOINTS
// =============================================================================

func TestAPI_ResetRestoresSeed(t *testing.T) {
	// GIVEN: A shop mutated by a delivery
	// WHEN: POSTing /api/admin/reset
	// THEN: The returned audit shows exactly the seed state

	srv := newTestServer(t, 1000)

	resp := postJSON(t, srv.URL+"/api/barrels/deliver/order-1", []api.BarrelDTO{greenBarrelDTO(1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/admin/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	audit := decode[api.AuditDTO](t, resp)
	assert.Equal(t, int64(1000), audit.Gold)
	assert.Equal(t, int64(0), audit.NumberOfPotions)
	assert.Equal(t, int64(0), audit.MlInBarrels)
}

func TestAPI_Healthz(t *testing.T) {
	srv := newTestServer(t, 100)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

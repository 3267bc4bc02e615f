package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*chiServer, *sqlite.Store) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	router := api.NewRouter(api.NewHandler(st))
	return &chiServer{router: router}, st
}

type chiServer struct {
	router http.Handler
}

func (s *chiServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func seedCatalog(t *testing.T, st *sqlite.Store) {
	ctx := context.Background()
	two := decimal.NewFromInt(2)
	one := decimal.NewFromInt(1)
	three := decimal.NewFromInt(3)

	require.NoError(t, st.SaveItem(ctx, "x", "Item X", "1kg", decimal.Zero))
	require.NoError(t, st.SaveItem(ctx, "y", "Item Y", "500g", decimal.Zero))
	require.NoError(t, st.SaveRecipe(ctx, "menu-m1", []bom.RecipeLine{{ItemCode: "x", QtyPerUnit: two}}))
	require.NoError(t, st.SaveRecipe(ctx, "menu-m2", []bom.RecipeLine{
		{ItemCode: "x", QtyPerUnit: one},
		{ItemCode: "y", QtyPerUnit: three},
	}))
	require.NoError(t, st.SavePromotion(ctx, "promo-p", []bom.PromoComponent{
		{MenuID: "menu-m1", Multiplier: 2},
		{MenuID: "menu-m2", Multiplier: 1},
	}))
}

// =============================================================================
// POSTINGS
// =============================================================================

func TestAPI_InboundThenStock(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "POST", "/api/inbound", map[string]any{
		"location":    "Store A",
		"item_code":   "flour",
		"qty":         "20",
		"counterpart": "Mill & Co.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, "GET", "/api/stock/Store%20A", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stock []struct {
			ItemCode string          `json:"item_code"`
			Qty      decimal.Decimal `json:"qty"`
		} `json:"stock"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Stock, 1)
	assert.Equal(t, "flour", resp.Stock[0].ItemCode)
	assert.Equal(t, "20", resp.Stock[0].Qty.String())
}

func TestAPI_InboundValidationRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "POST", "/api/inbound", map[string]any{
		"location":  "",
		"item_code": "flour",
		"qty":       "20",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_TransferShowsBothLegs(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "POST", "/api/transfers", map[string]any{
		"from":      "HQ",
		"to":        "Store A",
		"item_code": "flour",
		"qty":       "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, "GET", "/api/stock/HQ/items/flour", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hq struct {
		Qty decimal.Decimal `json:"qty"`
	}
	decode(t, rec, &hq)
	assert.Equal(t, "-10", hq.Qty.String())

	rec = srv.do(t, "GET", "/api/movements?location=store%20a&type=force_push", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var moves struct {
		Movements []struct {
			Qty       decimal.Decimal `json:"qty"`
			Magnitude decimal.Decimal `json:"magnitude"`
			Type      string          `json:"type"`
		} `json:"movements"`
	}
	decode(t, rec, &moves)
	require.Len(t, moves.Movements, 1)
	assert.Equal(t, "10", moves.Movements[0].Magnitude.String())
}

func TestAPI_MovementsRejectsUnknownType(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "GET", "/api/movements?type=mystery", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Details string `json:"details"`
	}
	decode(t, rec, &resp)
	assert.Contains(t, resp.Details, "mystery")
}

// =============================================================================
// POS COMPLETION
// =============================================================================

func TestAPI_CompleteOrderIdempotent(t *testing.T) {
	srv, st := newTestServer(t)
	seedCatalog(t, st)

	body := map[string]any{
		"location": "Store A",
		"lines": []map[string]any{
			{"type": "promotion", "promo_id": "promo-p", "quantity": 1},
		},
	}

	rec := srv.do(t, "POST", "/api/orders/order-77/complete", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first struct {
		AlreadyApplied bool                       `json:"already_applied"`
		Deducted       map[string]decimal.Decimal `json:"deducted"`
	}
	decode(t, rec, &first)
	assert.False(t, first.AlreadyApplied)
	assert.Equal(t, "5", first.Deducted["x"].String())
	assert.Equal(t, "3", first.Deducted["y"].String())

	// Duplicate completion: still 200, flagged, no further effects
	rec = srv.do(t, "POST", "/api/orders/order-77/complete", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		AlreadyApplied bool `json:"already_applied"`
	}
	decode(t, rec, &second)
	assert.True(t, second.AlreadyApplied)

	rec = srv.do(t, "GET", "/api/stock/store%20a/items/x", nil)
	var bal struct {
		Qty decimal.Decimal `json:"qty"`
	}
	decode(t, rec, &bal)
	assert.Equal(t, "-5", bal.Qty.String(), "two completions, one deduction")
}

func TestAPI_CompleteOrderBadCartLine(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "POST", "/api/orders/order-1/complete", map[string]any{
		"location": "Store A",
		"lines":    []map[string]any{{"type": "mystery", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ORDER RECEIPT
// =============================================================================

func TestAPI_ReceiveOrderIdempotent(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.CreateOrder(context.Background(), "po-9", "Store A"))

	body := map[string]any{
		"location": "Store A",
		"lines":    []map[string]any{{"item_code": "flour", "qty": "12"}},
	}

	rec := srv.do(t, "POST", "/api/orders/po-9/receive", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		AlreadyReceived bool `json:"already_received"`
	}
	decode(t, rec, &first)
	assert.False(t, first.AlreadyReceived)

	rec = srv.do(t, "POST", "/api/orders/po-9/receive", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		AlreadyReceived bool `json:"already_received"`
	}
	decode(t, rec, &second)
	assert.True(t, second.AlreadyReceived)
}

func TestAPI_ReceiveUnknownOrderIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, "POST", "/api/orders/po-nope/receive", map[string]any{
		"location": "Store A",
		"lines":    []map[string]any{{"item_code": "flour", "qty": "12"}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

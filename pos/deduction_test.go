package pos_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
	"github.com/warp/stock-ledger/pos"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// promotionCatalog is the worked example:
//
//	promo-p = 2x menu-m1 + 1x menu-m2
//	menu-m1 consumes 2 X per unit, menu-m2 consumes 1 X and 3 Y per unit
//	=> 1x promo-p consumes 5 X and 3 Y
func promotionCatalog() *bom.StaticCatalog {
	catalog := bom.NewStaticCatalog()
	catalog.Recipes["menu-m1"] = []bom.RecipeLine{
		{ItemCode: "x", ItemName: "Item X", QtyPerUnit: d("2")},
	}
	catalog.Recipes["menu-m2"] = []bom.RecipeLine{
		{ItemCode: "x", ItemName: "Item X", QtyPerUnit: d("1")},
		{ItemCode: "y", ItemName: "Item Y", QtyPerUnit: d("3")},
	}
	catalog.Promotions["promo-p"] = []bom.PromoComponent{
		{MenuID: "menu-m1", Multiplier: 2},
		{MenuID: "menu-m2", Multiplier: 1},
	}
	return catalog
}

func newTestDeductor() (*pos.Deductor, *store.Memory, *ledger.Projector) {
	mem := store.NewMemory()
	deductor := pos.NewDeductor(mem, bom.NewResolver(promotionCatalog()))
	return deductor, mem, ledger.NewProjector(mem)
}

func promoOrder(correlationID string) pos.CompletedOrder {
	return pos.CompletedOrder{
		CorrelationID: correlationID,
		Location:      "Store A",
		Lines:         []bom.CartLine{bom.PromoLine{PromoID: "promo-p", Quantity: 1}},
	}
}

// =============================================================================
// DEDUCTION EFFECTS
// =============================================================================

func TestDeduction_PromotionProducesOneEventPerItem(t *testing.T) {
	// GIVEN: Store A sells 1x promo-p
	// THEN: exactly one negative event per raw item: X -5, Y -3

	deductor, mem, proj := newTestDeductor()
	ctx := context.Background()

	result, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-1"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, "5", result.Deducted["x"].String())
	assert.Equal(t, "3", result.Deducted["y"].String())

	xEvents, err := mem.EventsByItem(ctx, "Store A", "x")
	require.NoError(t, err)
	require.Len(t, xEvents, 1, "shared ingredient yields one combined event")
	assert.Equal(t, "-5", xEvents[0].Qty.String())
	assert.Equal(t, ledger.EventPosConsumption, xEvents[0].Type)
	assert.Equal(t, "order-1", xEvents[0].CorrelationID)

	yBalance, err := proj.Balance(ctx, "store a", "y", nil)
	require.NoError(t, err)
	assert.Equal(t, "-3", yBalance.String())
}

func TestDeduction_TwoLinesSharingItemCombine(t *testing.T) {
	deductor, mem, _ := newTestDeductor()
	ctx := context.Background()

	order := pos.CompletedOrder{
		CorrelationID: "order-2",
		Location:      "Store A",
		Lines: []bom.CartLine{
			bom.MenuLine{MenuID: "menu-m1", Quantity: 1}, // 2 X
			bom.MenuLine{MenuID: "menu-m2", Quantity: 1}, // 1 X, 3 Y
		},
	}
	_, err := deductor.ApplyOrderCompleted(ctx, order)
	require.NoError(t, err)

	xEvents, err := mem.EventsByItem(ctx, "Store A", "x")
	require.NoError(t, err)
	require.Len(t, xEvents, 1)
	assert.Equal(t, "-3", xEvents[0].Qty.String())
}

func TestDeduction_UntrackedLinesStillSucceedAndRecord(t *testing.T) {
	// An order resolving to zero tracked consumption is still "applied":
	// zero events, a deduction record, and idempotent retries.

	deductor, mem, _ := newTestDeductor()
	ctx := context.Background()

	order := pos.CompletedOrder{
		CorrelationID: "order-3",
		Location:      "Store A",
		Lines:         []bom.CartLine{bom.MenuLine{MenuID: "menu-service-charge", Quantity: 1}},
	}

	result, err := deductor.ApplyOrderCompleted(ctx, order)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Empty(t, result.Deducted)

	evs, err := mem.EventsByLocation(ctx, "Store A")
	require.NoError(t, err)
	assert.Empty(t, evs)

	result, err = deductor.ApplyOrderCompleted(ctx, order)
	require.NoError(t, err)
	assert.True(t, result.AlreadyApplied)
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestDeduction_SameOrderTwiceDeductsOnce(t *testing.T) {
	// Duplicate completion signals are expected under at-least-once delivery:
	// both calls succeed, one set of events exists.

	deductor, mem, proj := newTestDeductor()
	ctx := context.Background()

	first, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-dup"))
	require.NoError(t, err)
	assert.False(t, first.AlreadyApplied)

	second, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-dup"))
	require.NoError(t, err, "duplicate completion is a success, not an error")
	assert.True(t, second.AlreadyApplied)

	xEvents, err := mem.EventsByItem(ctx, "Store A", "x")
	require.NoError(t, err)
	assert.Len(t, xEvents, 1)

	balance, err := proj.Balance(ctx, "Store A", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "-5", balance.String(), "balance reflects exactly one deduction")
}

// racingStore simulates the race window: the pre-check misses a concurrent
// writer's record, forcing the uniqueness constraint to decide.
type racingStore struct {
	pos.Store
}

func (r racingStore) HasDeduction(context.Context, string) (bool, error) {
	return false, nil
}

func TestDeduction_ConstraintDecidesRace(t *testing.T) {
	// GIVEN: the fast-path existence check reports "not applied" even though
	//        a concurrent writer already inserted the record
	// THEN: the losing writer hits the constraint, rolls back, and reports
	//       AlreadyApplied success with no extra events

	deductor, mem, _ := newTestDeductor()
	ctx := context.Background()

	_, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-race"))
	require.NoError(t, err)

	racer := pos.NewDeductor(racingStore{Store: mem}, bom.NewResolver(promotionCatalog()))
	result, err := racer.ApplyOrderCompleted(ctx, promoOrder("order-race"))
	require.NoError(t, err)
	assert.True(t, result.AlreadyApplied)

	xEvents, err := mem.EventsByItem(ctx, "Store A", "x")
	require.NoError(t, err)
	assert.Len(t, xEvents, 1, "losing writer must leave no events behind")
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestDeduction_RequiresCorrelationID(t *testing.T) {
	deductor, _, _ := newTestDeductor()

	order := promoOrder("")
	_, err := deductor.ApplyOrderCompleted(context.Background(), order)

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestDeduction_RequiresLocation(t *testing.T) {
	deductor, _, _ := newTestDeductor()

	order := promoOrder("order-x")
	order.Location = "   "
	_, err := deductor.ApplyOrderCompleted(context.Background(), order)

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// SQLITE END TO END
// =============================================================================

func TestDeduction_SqliteCatalogEndToEnd(t *testing.T) {
	// Same worked example, with the catalog and the ledger both in SQLite.

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	require.NoError(t, st.SaveItem(ctx, "x", "Item X", "1kg", decimal.Zero))
	require.NoError(t, st.SaveItem(ctx, "y", "Item Y", "500g", decimal.Zero))
	require.NoError(t, st.SaveRecipe(ctx, "menu-m1", []bom.RecipeLine{
		{ItemCode: "x", QtyPerUnit: d("2")},
	}))
	require.NoError(t, st.SaveRecipe(ctx, "menu-m2", []bom.RecipeLine{
		{ItemCode: "x", QtyPerUnit: d("1")},
		{ItemCode: "y", QtyPerUnit: d("3")},
	}))
	require.NoError(t, st.SavePromotion(ctx, "promo-p", []bom.PromoComponent{
		{MenuID: "menu-m1", Multiplier: 2},
		{MenuID: "menu-m2", Multiplier: 1},
	}))

	deductor := pos.NewDeductor(st, bom.NewResolver(st))

	result, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-sql"))
	require.NoError(t, err)
	assert.Equal(t, "5", result.Deducted["x"].String())

	again, err := deductor.ApplyOrderCompleted(ctx, promoOrder("order-sql"))
	require.NoError(t, err)
	assert.True(t, again.AlreadyApplied)

	proj := ledger.NewProjector(st)
	xBalance, err := proj.Balance(ctx, " STORE a", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "-5", xBalance.String())

	xEvents, err := st.EventsByItem(ctx, "Store A", "x")
	require.NoError(t, err)
	require.Len(t, xEvents, 1)
	assert.Equal(t, "Item X", xEvents[0].ItemName, "display fields denormalized from catalog")
}

package bom_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/bom"
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

// newTestCatalog builds the fixture used across these tests:
//
//	menu-m1 consumes 2 X per unit
//	menu-m2 consumes 1 X and 3 Y per unit
//	promo-p = 2x menu-m1 + 1x menu-m2
func newTestCatalog() *bom.StaticCatalog {
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

// =============================================================================
// DIRECT MENU LINES
// =============================================================================

func TestResolve_DirectMenuLine(t *testing.T) {
	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.MenuLine{MenuID: "menu-m2", Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "3", got.Qty("x").String())
	assert.Equal(t, "9", got.Qty("y").String())
}

func TestResolve_SharedIngredientAcrossLinesCombines(t *testing.T) {
	// GIVEN: two cart lines whose recipes both consume item X
	// THEN: X appears once in the consumption map with the combined total

	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.MenuLine{MenuID: "menu-m1", Quantity: 1}, // 2 X
		bom.MenuLine{MenuID: "menu-m2", Quantity: 2}, // 2 X, 6 Y
	})
	require.NoError(t, err)

	assert.Equal(t, 2, got.Len(), "one entry per raw item, not per cart line")
	assert.Equal(t, "4", got.Qty("x").String())
	assert.Equal(t, "6", got.Qty("y").String())
}

// =============================================================================
// PROMOTIONS
// =============================================================================

func TestResolve_PromotionExpansion(t *testing.T) {
	// 1x promo-p where promo-p = 2x menu-m1 + 1x menu-m2:
	//   X: 2*2 + 1*1 = 5, Y: 1*3 = 3

	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.PromoLine{PromoID: "promo-p", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "5", got.Qty("x").String())
	assert.Equal(t, "3", got.Qty("y").String())
}

func TestResolve_PromotionScalesBySoldQuantity(t *testing.T) {
	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.PromoLine{PromoID: "promo-p", Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "15", got.Qty("x").String())
	assert.Equal(t, "9", got.Qty("y").String())
}

func TestResolve_PromotionWithPreResolvedComponents(t *testing.T) {
	// GIVEN: the order source already carries the promotion's composition
	// THEN: the resolver uses it verbatim instead of a catalog lookup

	catalog := newTestCatalog()
	delete(catalog.Promotions, "promo-p") // lookup would find nothing
	resolver := bom.NewResolver(catalog)

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.PromoLine{
			PromoID:  "promo-p",
			Quantity: 1,
			Components: []bom.PromoComponent{
				{MenuID: "menu-m1", Multiplier: 2},
				{MenuID: "menu-m2", Multiplier: 1},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "5", got.Qty("x").String())
	assert.Equal(t, "3", got.Qty("y").String())
}

// =============================================================================
// MISSING RECIPES
// =============================================================================

func TestResolve_MissingRecipeContributesZero(t *testing.T) {
	// Not every sold line maps to tracked raw inventory (service charges).
	// A line with no recipe rows resolves to nothing and is not an error.

	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.MenuLine{MenuID: "menu-service-charge", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestResolve_MissingPromotionContributesZero(t *testing.T) {
	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.PromoLine{PromoID: "promo-unknown", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestResolve_MixedCartStillAggregates(t *testing.T) {
	resolver := bom.NewResolver(newTestCatalog())

	got, err := resolver.Resolve(context.Background(), []bom.CartLine{
		bom.PromoLine{PromoID: "promo-p", Quantity: 1},        // 5 X, 3 Y
		bom.MenuLine{MenuID: "menu-m1", Quantity: 1},          // 2 X
		bom.MenuLine{MenuID: "menu-untracked", Quantity: 4},   // nothing
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, got.Items())
	assert.Equal(t, "7", got.Qty("x").String())
	assert.Equal(t, "3", got.Qty("y").String())
}

// =============================================================================
// CATALOG LOADER
// =============================================================================

func TestParseCatalog_RoundTrip(t *testing.T) {
	doc := `{
		"menus": [
			{"id": "menu-m1", "recipe": [
				{"item_code": "x", "item_name": "Item X", "spec": "1kg", "qty_per_unit": "2.5"}
			]}
		],
		"promotions": [
			{"id": "promo-p", "components": [
				{"menu_id": "menu-m1", "multiplier": 2}
			]}
		]
	}`

	catalog, err := bom.ParseCatalog([]byte(doc))
	require.NoError(t, err)

	recipe, err := catalog.Recipe(context.Background(), "menu-m1")
	require.NoError(t, err)
	require.Len(t, recipe, 1)
	assert.Equal(t, "2.5", recipe[0].QtyPerUnit.String())

	comps, err := catalog.Promotion(context.Background(), "promo-p")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, int64(2), comps[0].Multiplier)
}

func TestParseCatalog_RejectsBadQty(t *testing.T) {
	doc := `{"menus": [{"id": "m", "recipe": [{"item_code": "x", "qty_per_unit": "two"}]}]}`

	_, err := bom.ParseCatalog([]byte(doc))
	assert.Error(t, err)
}

func TestParseCatalog_RejectsNonPositiveMultiplier(t *testing.T) {
	doc := `{"promotions": [{"id": "p", "components": [{"menu_id": "m", "multiplier": 0}]}]}`

	_, err := bom.ParseCatalog([]byte(doc))
	assert.Error(t, err)
}

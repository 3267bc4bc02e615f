package bom

import "context"

// =============================================================================
// STATIC CATALOG - Map-backed Catalog for tests and demos
// =============================================================================

// StaticCatalog serves recipes and promotion compositions from maps.
// Useful in tests and as the target of the JSON loader.
type StaticCatalog struct {
	Recipes    map[string][]RecipeLine
	Promotions map[string][]PromoComponent
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		Recipes:    make(map[string][]RecipeLine),
		Promotions: make(map[string][]PromoComponent),
	}
}

func (c *StaticCatalog) Recipe(_ context.Context, menuID string) ([]RecipeLine, error) {
	return c.Recipes[menuID], nil
}

func (c *StaticCatalog) Promotion(_ context.Context, promoID string) ([]PromoComponent, error) {
	return c.Promotions[promoID], nil
}

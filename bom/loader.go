/*
loader.go - JSON catalog documents

PURPOSE:
  Parses a JSON catalog definition into recipes and promotion compositions.
  Catalog editing is owned by external management flows; this loader exists
  so fixtures, demo data, and migration scripts can describe a catalog
  without code changes.

JSON SCHEMA:
  {
    "menus": [
      {
        "id": "menu-m1",
        "recipe": [
          {"item_code": "x", "item_name": "Item X", "spec": "1kg", "qty_per_unit": "2"}
        ]
      }
    ],
    "promotions": [
      {
        "id": "promo-p",
        "components": [
          {"menu_id": "menu-m1", "option_id": "", "multiplier": 2}
        ]
      }
    ]
  }

  Quantities are JSON strings parsed as decimals, never floats.

USAGE:
  catalog, err := bom.ParseCatalog(jsonBytes)
*/
package bom

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON DOCUMENT TYPES
// =============================================================================

type CatalogJSON struct {
	Menus      []MenuJSON  `json:"menus"`
	Promotions []PromoJSON `json:"promotions"`
}

type MenuJSON struct {
	ID     string           `json:"id"`
	Recipe []RecipeLineJSON `json:"recipe"`
}

type RecipeLineJSON struct {
	ItemCode   string `json:"item_code"`
	ItemName   string `json:"item_name"`
	Spec       string `json:"spec"`
	QtyPerUnit string `json:"qty_per_unit"`
}

type PromoJSON struct {
	ID         string          `json:"id"`
	Components []ComponentJSON `json:"components"`
}

type ComponentJSON struct {
	MenuID     string `json:"menu_id"`
	OptionID   string `json:"option_id"`
	Multiplier int64  `json:"multiplier"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog converts a JSON catalog document into a StaticCatalog.
func ParseCatalog(data []byte) (*StaticCatalog, error) {
	var doc CatalogJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	catalog := NewStaticCatalog()
	for _, menu := range doc.Menus {
		if menu.ID == "" {
			return nil, fmt.Errorf("menu with empty id")
		}
		lines := make([]RecipeLine, 0, len(menu.Recipe))
		for _, rl := range menu.Recipe {
			qty, err := decimal.NewFromString(rl.QtyPerUnit)
			if err != nil {
				return nil, fmt.Errorf("menu %s item %s: bad qty_per_unit %q: %w",
					menu.ID, rl.ItemCode, rl.QtyPerUnit, err)
			}
			lines = append(lines, RecipeLine{
				ItemCode:   rl.ItemCode,
				ItemName:   rl.ItemName,
				Spec:       rl.Spec,
				QtyPerUnit: qty,
			})
		}
		catalog.Recipes[menu.ID] = lines
	}

	for _, promo := range doc.Promotions {
		if promo.ID == "" {
			return nil, fmt.Errorf("promotion with empty id")
		}
		comps := make([]PromoComponent, 0, len(promo.Components))
		for _, c := range promo.Components {
			if c.Multiplier <= 0 {
				return nil, fmt.Errorf("promotion %s menu %s: multiplier must be positive", promo.ID, c.MenuID)
			}
			comps = append(comps, PromoComponent{
				MenuID:     c.MenuID,
				OptionID:   c.OptionID,
				Multiplier: c.Multiplier,
			})
		}
		catalog.Promotions[promo.ID] = comps
	}

	return catalog, nil
}

/*
Package bom resolves sold cart lines into raw-ingredient consumption.

PURPOSE:
  The bill of materials (BOM) maps a sellable menu item to the raw items and
  quantities it consumes, and a promotion to the menu items that compose it.
  This package owns the read-side types for that reference data and the
  Resolver that expands a completed order's cart into a per-item consumption
  map.

KEY CONCEPTS IN THIS FILE (types.go):
  - Catalog:      Read-only source of recipes and promotion compositions
  - CartLine:     Tagged variant - a line sells either a menu item directly
                  or a promotion bundle; the two expand differently
  - Consumption:  Accumulating map of itemCode -> total quantity consumed

OWNERSHIP:
  Recipes and promotion compositions are owned by external catalog
  management. This core only reads them at resolution time; there are no
  write operations on Catalog.

SEE ALSO:
  - resolver.go: The expansion algorithm
  - loader.go: JSON catalog documents for fixtures and demos
*/
package bom

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG - Read-only reference data
// =============================================================================

// RecipeLine is one ingredient of a menu item's recipe.
type RecipeLine struct {
	ItemCode   string
	ItemName   string
	Spec       string
	QtyPerUnit decimal.Decimal
}

// PromoComponent is one constituent menu of a promotion bundle.
type PromoComponent struct {
	MenuID     string
	OptionID   string
	Multiplier int64 // units of this menu per unit of the promotion sold
}

// Catalog is the read-only BOM source. A menu or promotion with no rows is
// not an error: both methods return an empty slice and a nil error, and the
// resolver treats that as zero consumption (service charges, untracked
// items).
type Catalog interface {
	// Recipe returns the ingredient lines for a menu item.
	Recipe(ctx context.Context, menuID string) ([]RecipeLine, error)

	// Promotion returns the menu components of a promotion bundle.
	Promotion(ctx context.Context, promoID string) ([]PromoComponent, error)
}

// =============================================================================
// CART LINES - Tagged variant for order contents
// =============================================================================

// CartLine is one line of a completed order's cart. The two shapes - a menu
// item sold directly and a promotion bundle - expand differently, so they
// are distinct types behind a sealed interface rather than one struct with
// shape-sniffed optional fields.
type CartLine interface {
	cartLine()
}

// MenuLine sells Quantity units of one menu item.
type MenuLine struct {
	MenuID   string
	OptionID string
	Quantity int64
}

func (MenuLine) cartLine() {}

// PromoLine sells Quantity units of a promotion bundle.
//
// When Components is non-empty the caller has already resolved the
// promotion's composition (the order source often carries it) and the
// resolver uses it verbatim instead of looking the promotion up. Recipes of
// the component menus are still resolved through the catalog either way.
type PromoLine struct {
	PromoID    string
	Quantity   int64
	Components []PromoComponent
}

func (PromoLine) cartLine() {}

// =============================================================================
// CONSUMPTION - Accumulating raw-item totals
// =============================================================================

// Consumption maps itemCode to the total quantity consumed by an order.
// All cart lines of one order accumulate into a single Consumption before
// any ledger event is emitted, so an ingredient shared by two lines yields
// exactly one combined total.
type Consumption struct {
	totals map[string]decimal.Decimal
	names  map[string]RecipeLine // first-seen display fields per item
}

func NewConsumption() *Consumption {
	return &Consumption{
		totals: make(map[string]decimal.Decimal),
		names:  make(map[string]RecipeLine),
	}
}

func (c *Consumption) add(line RecipeLine, qty decimal.Decimal) {
	if _, seen := c.names[line.ItemCode]; !seen {
		c.names[line.ItemCode] = line
	}
	c.totals[line.ItemCode] = c.totals[line.ItemCode].Add(qty)
}

// Qty returns the accumulated total for an item (zero if absent).
func (c *Consumption) Qty(itemCode string) decimal.Decimal {
	return c.totals[itemCode]
}

// Len returns the number of distinct items consumed.
func (c *Consumption) Len() int {
	return len(c.totals)
}

// Items returns the consumed item codes in deterministic (sorted) order, so
// event emission and tests are stable.
func (c *Consumption) Items() []string {
	codes := make([]string, 0, len(c.totals))
	for code := range c.totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Display returns the denormalized display fields recorded for an item.
func (c *Consumption) Display(itemCode string) (name, spec string) {
	line := c.names[itemCode]
	return line.ItemName, line.Spec
}

// Totals returns a copy of the accumulated map.
func (c *Consumption) Totals() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.totals))
	for code, qty := range c.totals {
		out[code] = qty
	}
	return out
}

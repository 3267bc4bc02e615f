/*
resolver.go - Cart line to raw-item consumption expansion

PURPOSE:
  Expands the cart of a completed order into the raw items it consumed.
  A direct menu line multiplies its recipe by the sold quantity; a promotion
  line first expands into its constituent menus (each with its own
  multiplier), then resolves each constituent like a direct line, scaled by
  the promotion's sold quantity.

WORKED EXAMPLE:
  1x Promotion P where P = 2x Menu M1 + 1x Menu M2,
  M1 consumes 2 X per unit, M2 consumes 1 X and 3 Y per unit:
    X: 1*(2*2) + 1*(1*1) = 5
    Y: 1*(1*3)           = 3
  One combined total per item, regardless of how many lines touched it.

MISSING RECIPES:
  A menu or promotion with no catalog rows contributes zero consumption.
  That is expected - not every sold line maps to tracked raw inventory -
  and is logged for visibility, never raised as an error.

SEE ALSO:
  - types.go: CartLine variants and Consumption
  - pos/: Turns the resolved consumption into ledger events
*/
package bom

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Catalog Catalog

	// Log, when set, receives a line for every cart line that resolved to
	// zero consumption. Optional.
	Log *log.Logger
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{Catalog: catalog}
}

// Resolve expands all cart lines of one order into a single accumulated
// consumption map. Lines sharing an ingredient combine; lines with no
// recipe contribute nothing.
func (r *Resolver) Resolve(ctx context.Context, lines []CartLine) (*Consumption, error) {
	total := NewConsumption()
	for _, line := range lines {
		switch l := line.(type) {
		case MenuLine:
			if err := r.resolveMenu(ctx, total, l.MenuID, decimal.NewFromInt(l.Quantity)); err != nil {
				return nil, err
			}
		case PromoLine:
			if err := r.resolvePromo(ctx, total, l); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown cart line type %T", line)
		}
	}
	return total, nil
}

func (r *Resolver) resolveMenu(ctx context.Context, total *Consumption, menuID string, soldQty decimal.Decimal) error {
	recipe, err := r.Catalog.Recipe(ctx, menuID)
	if err != nil {
		return fmt.Errorf("recipe lookup for menu %s: %w", menuID, err)
	}
	if len(recipe) == 0 {
		r.logf("menu %s has no recipe rows, contributes zero consumption", menuID)
		return nil
	}
	for _, ing := range recipe {
		total.add(ing, ing.QtyPerUnit.Mul(soldQty))
	}
	return nil
}

func (r *Resolver) resolvePromo(ctx context.Context, total *Consumption, line PromoLine) error {
	components := line.Components
	if len(components) == 0 {
		var err error
		components, err = r.Catalog.Promotion(ctx, line.PromoID)
		if err != nil {
			return fmt.Errorf("composition lookup for promotion %s: %w", line.PromoID, err)
		}
	}
	if len(components) == 0 {
		r.logf("promotion %s has no composition rows, contributes zero consumption", line.PromoID)
		return nil
	}

	sold := decimal.NewFromInt(line.Quantity)
	for _, comp := range components {
		// per-menu multiplier scaled by promotion units sold
		menuQty := decimal.NewFromInt(comp.Multiplier).Mul(sold)
		if err := r.resolveMenu(ctx, total, comp.MenuID, menuQty); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

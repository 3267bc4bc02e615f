/*
Package pos applies completed point-of-sale orders to the stock ledger,
exactly once.

PURPOSE:
  The order source delivers "order completed" signals at least once, so the
  same completion can arrive twice (retries, redelivery, double-clicks).
  This package guarantees that one completed order produces exactly one set
  of negative PosConsumption events, no matter how many times the signal
  arrives.

HOW THE GUARANTEE WORKS:
  1. A cheap existence check on the deduction record skips resolution work
     for known-applied orders. This check is an OPTIMIZATION ONLY - it has
     a race window under concurrent retries.
  2. The real mechanism is a uniqueness constraint on the deduction
     record's correlation id. Record insert and event appends happen in one
     storage transaction; a losing concurrent writer hits the constraint,
     its transaction rolls back entirely, and it reports "already applied"
     as a success.

  Duplicate completions are therefore never errors: both callers get a
  success response, one of them with AlreadyApplied set.

LIFECYCLE:
  Only the transition INTO completed triggers deduction, and it is
  one-directional. "Uncompleting" an order is not modeled; reversing a
  deduction means appending new Adjustment events via the transfer
  orchestrator, never deleting or re-interpreting PosConsumption rows.

SEE ALSO:
  - bom/: Cart expansion into raw-item consumption
  - ledger/: Event preparation and the balance invariant
*/
package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// STORE - Deduction-aware persistence
// =============================================================================

// Store is the persistence surface the deductor needs. Implemented by the
// sqlite store and the in-memory store.
type Store interface {
	// HasDeduction reports whether a deduction record exists for the
	// correlation id. Pre-check only; not the source of the guarantee.
	HasDeduction(ctx context.Context, correlationID string) (bool, error)

	// ApplyDeduction inserts the deduction record and appends the events in
	// ONE transaction. Returns ledger.ErrDuplicateCorrelationID (with
	// nothing written) when the record already exists - including when a
	// concurrent writer inserted it after our pre-check.
	ApplyDeduction(ctx context.Context, correlationID string, appliedAt time.Time, evs []ledger.StockEvent) error
}

// =============================================================================
// COMPLETED ORDER - Input from the order source
// =============================================================================

// CompletedOrder is the payload of an "order completed" signal.
type CompletedOrder struct {
	// CorrelationID is the order's id at the order source. It deduplicates
	// ledger effects and is stamped on every emitted event for audit; it
	// never participates in balance arithmetic.
	CorrelationID string

	// Location is the selling store, as entered upstream.
	Location string

	// CompletedAt is when the order completed. Zero means "now".
	CompletedAt time.Time

	Lines []bom.CartLine
}

// Result reports what a deduction call did.
type Result struct {
	// AlreadyApplied is true when a previous (or concurrent) call already
	// applied this order. The call is still a success.
	AlreadyApplied bool

	// Deducted maps itemCode to the positive consumed quantity. Empty for
	// AlreadyApplied results and for orders resolving to zero consumption.
	Deducted map[string]decimal.Decimal
}

// =============================================================================
// DEDUCTOR
// =============================================================================

type Deductor struct {
	Store    Store
	Resolver *bom.Resolver

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewDeductor(store Store, resolver *bom.Resolver) *Deductor {
	return &Deductor{Store: store, Resolver: resolver, Now: time.Now}
}

// ApplyOrderCompleted translates one completed order into raw-item stock
// decrements at the selling location, at most once per correlation id.
//
// An order whose cart resolves to zero tracked consumption still writes its
// deduction record: the order IS applied, with zero ledger effects, and a
// retry must not re-resolve it forever.
func (d *Deductor) ApplyOrderCompleted(ctx context.Context, order CompletedOrder) (Result, error) {
	if order.CorrelationID == "" {
		return Result{}, &ledger.ValidationError{Field: "correlationId", Reason: "is required"}
	}
	if ledger.NormalizeLocation(order.Location) == "" {
		return Result{}, &ledger.ValidationError{Field: "location", Reason: "is required"}
	}

	// Fast path: skip resolution for orders we know are applied.
	applied, err := d.Store.HasDeduction(ctx, order.CorrelationID)
	if err != nil {
		return Result{}, fmt.Errorf("deduction pre-check: %w", err)
	}
	if applied {
		return Result{AlreadyApplied: true}, nil
	}

	consumption, err := d.Resolver.Resolve(ctx, order.Lines)
	if err != nil {
		return Result{}, fmt.Errorf("resolve order %s: %w", order.CorrelationID, err)
	}

	now := d.Now()
	occurredAt := order.CompletedAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	evs := make([]ledger.StockEvent, 0, consumption.Len())
	for _, itemCode := range consumption.Items() {
		name, spec := consumption.Display(itemCode)
		evs = append(evs, ledger.StockEvent{
			Location:      order.Location,
			ItemCode:      itemCode,
			ItemName:      name,
			Spec:          spec,
			Qty:           consumption.Qty(itemCode).Neg(),
			OccurredAt:    occurredAt,
			Counterpart:   "POS order " + order.CorrelationID,
			Type:          ledger.EventPosConsumption,
			CorrelationID: order.CorrelationID,
		})
	}

	prepared, err := ledger.Prepare(now, evs...)
	if err != nil {
		return Result{}, err
	}

	err = d.Store.ApplyDeduction(ctx, order.CorrelationID, now, prepared)
	if errors.Is(err, ledger.ErrDuplicateCorrelationID) {
		// Lost the race to a concurrent retry. Its write stands; ours rolled
		// back. Same outcome as the fast path.
		return Result{AlreadyApplied: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("apply deduction for order %s: %w", order.CorrelationID, err)
	}

	return Result{Deducted: consumption.Totals()}, nil
}

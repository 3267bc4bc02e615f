/*
projection.go - Read-side balance and movement projections

PURPOSE:
  Derives everything readers want to know from the raw event stream:
  - current stock per item at a location
  - the balance of one item, optionally as of a point in time
  - filtered movement history for reporting

KEY INSIGHT:
  There is no stored balance. Every answer here is a fold over immutable
  events, which is what makes the balance invariant trivially true:
  appending one event moves the projection by exactly that event's Qty.

SCAN-AND-SUM:
  Balances are computed by scanning rows in application code. At restaurant
  scale (thousands of events per location) this is cheap and keeps the
  invariant obvious. A materialized running balance would be a valid
  optimization but would have to be updated in the same transaction as
  every insert to stay honest.

REPORT FORMATTING:
  Outbound-style reports display magnitudes, not signs. MovementRow carries
  both the signed Qty and Magnitude so view layers don't re-derive either.

SEE ALSO:
  - ledger.go: Write path
  - store.go: MovementFilter and the page-size cap
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROJECTOR - Pure read-side views over a Store
// =============================================================================

type Projector struct {
	Store Store
}

func NewProjector(store Store) *Projector {
	return &Projector{Store: store}
}

// Balance returns the stock level of one item at a location. With a non-nil
// asOf, only events with OccurredAt <= asOf are folded.
func (p *Projector) Balance(ctx context.Context, location, itemCode string, asOf *time.Time) (decimal.Decimal, error) {
	evs, err := p.Store.EventsByItem(ctx, location, itemCode)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, ev := range evs {
		if asOf != nil && ev.OccurredAt.After(*asOf) {
			continue
		}
		balance = balance.Add(ev.Qty)
	}
	return balance, nil
}

// CurrentStock folds all events for a location into a per-item balance map.
// Items whose events sum to zero are still present in the map; callers that
// only want stocked items filter themselves.
func (p *Projector) CurrentStock(ctx context.Context, location string) (map[string]decimal.Decimal, error) {
	evs, err := p.Store.EventsByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	stock := make(map[string]decimal.Decimal)
	for _, ev := range evs {
		stock[ev.ItemCode] = stock[ev.ItemCode].Add(ev.Qty)
	}
	return stock, nil
}

// =============================================================================
// MOVEMENT HISTORY - Report rows
// =============================================================================

// MovementRow is one line of a movement report: the event plus the formatted
// fields reporting consumers ask for.
type MovementRow struct {
	Date        time.Time
	Location    string
	ItemCode    string
	ItemName    string
	Spec        string
	Qty         decimal.Decimal // signed
	Magnitude   decimal.Decimal // absolute, for outbound-style views
	Counterpart string
	Type        EventType
}

// MovementHistory returns report rows matching the filter, newest first,
// truncated at MaxMovementPageSize (see store.go). Truncation is silent.
func (p *Projector) MovementHistory(ctx context.Context, f MovementFilter) ([]MovementRow, error) {
	evs, err := p.Store.Movements(ctx, f)
	if err != nil {
		return nil, err
	}

	rows := make([]MovementRow, len(evs))
	for i, ev := range evs {
		rows[i] = MovementRow{
			Date:        ev.OccurredAt,
			Location:    ev.Location,
			ItemCode:    ev.ItemCode,
			ItemName:    ev.ItemName,
			Spec:        ev.Spec,
			Qty:         ev.Qty,
			Magnitude:   ev.Magnitude(),
			Counterpart: ev.Counterpart,
			Type:        ev.Type,
		}
	}
	return rows, nil
}

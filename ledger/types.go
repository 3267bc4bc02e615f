/*
Package ledger provides the core inventory stock ledger engine.

PURPOSE:
  This package contains the types and algorithms for tracking inventory
  movements across restaurant locations (stores, headquarters, warehouses,
  transient staging locations). Whether recording a vendor delivery, a
  forced HQ-to-store transfer, or a point-of-sale ingredient deduction,
  the same engine handles event recording, balance calculation, and
  movement reporting.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockEvent: An immutable ledger entry recording one signed quantity change
  - EventType:  Classifies the business operation behind an event
  - Location normalization: case/whitespace-insensitive location matching

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified or deleted, only appended
  2. Derived balances: Stock on hand is always a fold over events, never
     a mutable counter that can drift
  3. Precision: Uses decimal.Decimal to avoid floating-point errors
  4. Auditability: Every event carries a counterpart and, where applicable,
     the correlation id of the originating order

USAGE:
  ev := ledger.StockEvent{
      Location:   "Store A",
      ItemCode:   "flour-00",
      Qty:        decimal.NewFromInt(20),
      Type:       ledger.EventInbound,
      Counterpart: "Mill & Co.",
  }
  err := led.Append(ctx, ev)

SEE ALSO:
  - ledger.go: Write path (validation + append)
  - projection.go: Read path (balances, movement history)
  - store.go: Persistence interface
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT TYPE - Business classification of a stock movement
// =============================================================================

type EventType string

const (
	// EventInbound records goods received from a vendor or from headquarters.
	EventInbound EventType = "inbound"

	// EventOutbound records goods shipped out of a location.
	EventOutbound EventType = "outbound"

	// EventUsage records consumption at a location (kitchen prep, spoilage
	// handled by callers as usage with a reason).
	EventUsage EventType = "usage"

	// EventAdjustment records a manual correction by a privileged caller.
	// Adjustments are never merged into the inbound/usage streams so that
	// correction history stays filterable by type.
	EventAdjustment EventType = "adjustment"

	// EventForcePush / EventForceOutbound are the two legs of a forced
	// inter-location transfer. They are always written together, atomically.
	EventForcePush     EventType = "force_push"
	EventForceOutbound EventType = "force_outbound"

	// EventPosConsumption records raw-ingredient deduction triggered by a
	// completed point-of-sale order (see the pos package).
	EventPosConsumption EventType = "pos_consumption"
)

// KnownEventTypes lists every event type the ledger accepts.
func KnownEventTypes() []EventType {
	return []EventType{
		EventInbound, EventOutbound, EventUsage, EventAdjustment,
		EventForcePush, EventForceOutbound, EventPosConsumption,
	}
}

func (t EventType) Valid() bool {
	switch t {
	case EventInbound, EventOutbound, EventUsage, EventAdjustment,
		EventForcePush, EventForceOutbound, EventPosConsumption:
		return true
	}
	return false
}

// =============================================================================
// STOCK EVENT - Atomic, immutable change to stock at one location
// =============================================================================

// StockEvent is one row of the append-only ledger.
//
// INVARIANT: for any (location, itemCode), the balance at time T equals the
// sum of Qty over all events with that key and OccurredAt <= T. CorrelationID
// is audit metadata only and never participates in balance arithmetic.
type StockEvent struct {
	ID string

	// Location as entered upstream ("Store A", "HQ", "inbound-staging", ...).
	// Preserved verbatim for display.
	Location string

	// LocationKey is the normalized matching key derived from Location.
	// Filled by Prepare; all balance and movement queries match on it.
	LocationKey string

	ItemCode string

	// ItemName and Spec are denormalized display fields copied from the
	// catalog at write time. Not authoritative.
	ItemName string
	Spec     string

	// Qty is the signed delta: positive = stock increase, negative = decrease.
	Qty decimal.Decimal

	OccurredAt time.Time

	// Counterpart is free text: vendor name, source/destination location,
	// or the reason for an adjustment.
	Counterpart string

	Type EventType

	// CorrelationID links the event to the originating order or request.
	// Used by the pos deduction guard and for auditing.
	CorrelationID string

	CreatedAt time.Time
}

// Magnitude returns the absolute quantity, for report views that display
// outbound rows without the sign.
func (e StockEvent) Magnitude() decimal.Decimal {
	return e.Qty.Abs()
}

// =============================================================================
// LOCATION NORMALIZATION
// =============================================================================

// NormalizeLocation produces the matching key for a location string.
// Upstream data entry is inconsistent ("Store A" vs "store a "), so matching
// is case-insensitive and whitespace-insensitive: the key is lowercased with
// runs of whitespace collapsed to a single space and outer whitespace trimmed.
//
// Every write and every read MUST go through this function. Normalizing on
// only one side silently fragments balances across spelling variants.
func NormalizeLocation(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

// SameLocation reports whether two location strings refer to the same
// normalized location.
func SameLocation(a, b string) bool {
	return NormalizeLocation(a) == NormalizeLocation(b)
}

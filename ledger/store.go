/*
store.go - Persistence interface for stock events

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The Store persists events while maintaining append-only semantics.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append():      Single event write
  - AppendBatch(): Atomic multi-event write (all-or-nothing)
  - NO Update() or Delete() methods exist

ATOMIC BATCHES:
  AppendBatch() is mandatory for paired transfers: the ForcePush and
  ForceOutbound legs of a forced inter-location transfer must never be
  observable one without the other.

NORMALIZED LOOKUPS:
  All read methods take raw location strings and match on the normalized
  key (see NormalizeLocation). Implementations must not match on the raw
  column.

IMPLEMENTATIONS:
  - store/sqlite:      Production SQLite store
  - ledger/store:      In-memory store for tests

SEE ALSO:
  - ledger.go: Write-side wrapper with validation
  - projection.go: Read-side wrapper folding events into balances
*/
package ledger

import (
	"context"
	"time"
)

// MaxMovementPageSize is the hard cap on rows returned by movement queries.
// Results past the cap are silently truncated; callers wanting more must
// narrow their filter. This is a documented property, not an error.
const MaxMovementPageSize = 500

// =============================================================================
// STORE - Interface for event persistence (append-only)
// =============================================================================

// Store handles persistence of stock events.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via new Adjustment events.
type Store interface {
	// Append persists one event. The event must already be prepared
	// (see Prepare): validated, with ID and LocationKey filled.
	Append(ctx context.Context, ev StockEvent) error

	// AppendBatch persists multiple events atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, evs []StockEvent) error

	// EventsByItem returns all events for (location, itemCode), ordered by
	// OccurredAt ascending. Location is matched on its normalized key.
	EventsByItem(ctx context.Context, location, itemCode string) ([]StockEvent, error)

	// EventsByLocation returns all events for a location across all items,
	// ordered by OccurredAt ascending.
	EventsByLocation(ctx context.Context, location string) ([]StockEvent, error)

	// Movements returns events matching the filter, ordered by OccurredAt
	// descending (ties broken by CreatedAt descending), capped at
	// MaxMovementPageSize rows.
	Movements(ctx context.Context, f MovementFilter) ([]StockEvent, error)
}

// =============================================================================
// MOVEMENT FILTER
// =============================================================================

// MovementFilter narrows movement-history queries. Zero-value fields are
// ignored. Query is matched case-insensitively against item code, item name,
// and counterpart.
type MovementFilter struct {
	From     *time.Time
	To       *time.Time
	Location string
	Types    []EventType
	Query    string

	// Limit caps the result size. Zero or anything above MaxMovementPageSize
	// means MaxMovementPageSize.
	Limit int
}

// EffectiveLimit resolves the page size honoring the hard cap.
func (f MovementFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxMovementPageSize {
		return MaxMovementPageSize
	}
	return f.Limit
}

// WantsType reports whether the filter admits the given event type.
func (f MovementFilter) WantsType(t EventType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

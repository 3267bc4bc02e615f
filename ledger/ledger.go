/*
ledger.go - Append-only stock event log

PURPOSE:
  The Ledger is the immutable source of truth for all stock changes.
  Every delivery, usage, adjustment, forced transfer leg, and POS deduction
  is recorded here. Stock on hand is always computed by folding events -
  there is no separate "quantity" column that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, events cannot be modified
  3. DERIVED: balance(location, item, asOf) = sum of Qty over stored events
  4. NORMALIZED: location matching uses NormalizeLocation on both sides

CORRECTIONS:
  If a mistake is made, you don't edit the event. Instead:
  1. Append an Adjustment event with the opposite sign and a reason
  2. Both rows remain in the ledger
  3. Net effect is the correction, history is preserved

CONCURRENCY:
  Because balances are folds over immutable rows, concurrent appends to the
  same (location, item) never race on a shared counter. The only place that
  needs mutual exclusion is POS deduction dedup, which lives in the pos
  package on top of a uniqueness constraint.

SEE ALSO:
  - store.go: Persistence interface
  - projection.go: Balance and movement projections
  - transfer/: Business-operation encoding on top of Append/AppendBatch
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PREPARE - Validation and defaulting for the write path
// =============================================================================

// ValidateEvent rejects events that must never reach storage. It checks the
// fields every event needs; operation-specific rules (e.g. "inbound quantity
// must be positive") belong to the transfer orchestrator.
func ValidateEvent(ev StockEvent) error {
	if NormalizeLocation(ev.Location) == "" {
		return &ValidationError{Field: "location", Reason: "is required"}
	}
	if ev.ItemCode == "" {
		return &ValidationError{Field: "itemCode", Reason: "is required"}
	}
	if ev.Qty.IsZero() {
		return &ValidationError{Field: "qty", Reason: "must be non-zero"}
	}
	if !ev.Type.Valid() {
		return &ValidationError{Field: "eventType", Reason: "is unknown"}
	}
	return nil
}

// Prepare validates events and fills the fields the engine owns: ID (uuid if
// absent), LocationKey, OccurredAt default, CreatedAt. It returns a new slice
// and never mutates its input. Every write path - plain appends, paired
// transfers, POS deductions - goes through Prepare so that normalization is
// applied exactly once, at write time.
func Prepare(now time.Time, evs ...StockEvent) ([]StockEvent, error) {
	out := make([]StockEvent, len(evs))
	for i, ev := range evs {
		if err := ValidateEvent(ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.LocationKey = NormalizeLocation(ev.Location)
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = now
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.CreatedAt = now.UTC()
		out[i] = ev
	}
	return out, nil
}

// =============================================================================
// LEDGER - Validated write access over a Store
// =============================================================================

// Ledger wraps a Store with validation and preparation. All single-event and
// batch writes should go through it; composite operations that also touch
// other tables (POS deduction, order reconciliation) call Prepare themselves
// and hand prepared events to their store in one transaction.
type Ledger struct {
	Store Store

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Append validates, prepares, and persists one event.
func (l *Ledger) Append(ctx context.Context, ev StockEvent) error {
	prepared, err := Prepare(l.Now(), ev)
	if err != nil {
		return err
	}
	return l.Store.Append(ctx, prepared[0])
}

// AppendBatch validates, prepares, and persists events atomically. Used for
// paired transfers where both legs are one logical transaction.
func (l *Ledger) AppendBatch(ctx context.Context, evs ...StockEvent) error {
	prepared, err := Prepare(l.Now(), evs...)
	if err != nil {
		return err
	}
	return l.Store.AppendBatch(ctx, prepared)
}

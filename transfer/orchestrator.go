/*
Package transfer encodes business inventory operations as ledger events.

PURPOSE:
  Each business transaction type maps to one event or one atomic pair:

  Receiving        -> one +qty Inbound at the receiving location
  Usage / Outbound -> one -qty Usage/Outbound at the location
  Adjustment       -> one signed Adjustment with a reason and actor
  Forced transfer  -> +qty ForcePush at destination AND -qty ForceOutbound
                      at source, written atomically as one logical transaction
  From-HQ receipt  -> purchase order marked received + Inbound events,
                      in one transaction, idempotent at the order level

DEDUPLICATION SCOPE:
  These operations are NOT deduplicated the way POS deductions are. They
  are human-triggered, comparatively rare, and reviewable in the movement
  history; callers are responsible for not double-submitting. The one
  exception is From-HQ receipt, which no-ops when the order is already
  marked received.

SEE ALSO:
  - ledger/: Event preparation, validation, atomic batch append
  - pos/: The POS deduction path with its exactly-once guard
*/
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// ORDER STORE - Purchase-order surface for From-HQ reconciliation
// =============================================================================

// OrderStore is the purchase-order persistence the orchestrator needs.
// Implemented by the sqlite store and the in-memory store.
type OrderStore interface {
	// OrderReceived reports the order's receipt status.
	// Returns ledger.ErrOrderNotFound for unknown orders.
	OrderReceived(ctx context.Context, orderID string) (bool, error)

	// ReceiveOrder marks the order received and appends the events in ONE
	// transaction. Returns ledger.ErrOrderAlreadyReceived (nothing written)
	// when the order was already received.
	ReceiveOrder(ctx context.Context, orderID string, receivedAt time.Time, evs []ledger.StockEvent) error
}

// =============================================================================
// REQUESTS
// =============================================================================

// ItemRef carries the item identity plus denormalized display fields copied
// onto the emitted events.
type ItemRef struct {
	Code string
	Name string
	Spec string
}

// MovementRequest is the common shape of single-event operations. Qty is
// always entered positive; the orchestrator applies the sign.
type MovementRequest struct {
	Location    string
	Item        ItemRef
	Qty         decimal.Decimal
	Counterpart string // vendor/source for inbound, reason/destination for outbound
	OccurredAt  time.Time
}

// AuthContext identifies who triggered a privileged operation. Authorization
// itself is decided upstream; the orchestrator only records the actor.
type AuthContext struct {
	ActorID string
	Role    string
}

// AdjustRequest is a manual stock correction. Qty is signed.
type AdjustRequest struct {
	Location   string
	Item       ItemRef
	Qty        decimal.Decimal
	Reason     string
	Auth       AuthContext
	OccurredAt time.Time
}

// ForceTransferRequest moves Qty of an item between two locations.
type ForceTransferRequest struct {
	From       string
	To         string
	Item       ItemRef
	Qty        decimal.Decimal
	OccurredAt time.Time

	// CorrelationID links the two legs for audit. Generated when empty.
	CorrelationID string
}

// OrderLine is one received line of a store-to-HQ purchase order.
type OrderLine struct {
	Item ItemRef
	Qty  decimal.Decimal
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type Orchestrator struct {
	Ledger *ledger.Ledger
	Orders OrderStore

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func New(led *ledger.Ledger, orders OrderStore) *Orchestrator {
	return &Orchestrator{Ledger: led, Orders: orders, Now: time.Now}
}

// ReceiveInbound records goods received from a vendor or from headquarters.
func (o *Orchestrator) ReceiveInbound(ctx context.Context, req MovementRequest) error {
	if err := requirePositive(req.Qty); err != nil {
		return err
	}
	return o.Ledger.Append(ctx, ledger.StockEvent{
		Location:    req.Location,
		ItemCode:    req.Item.Code,
		ItemName:    req.Item.Name,
		Spec:        req.Item.Spec,
		Qty:         req.Qty,
		OccurredAt:  req.OccurredAt,
		Counterpart: req.Counterpart,
		Type:        ledger.EventInbound,
	})
}

// RecordUsage records consumption at a location (kitchen prep, waste).
func (o *Orchestrator) RecordUsage(ctx context.Context, req MovementRequest) error {
	return o.recordNegative(ctx, req, ledger.EventUsage)
}

// RecordOutbound records goods shipped out of a location.
func (o *Orchestrator) RecordOutbound(ctx context.Context, req MovementRequest) error {
	return o.recordNegative(ctx, req, ledger.EventOutbound)
}

func (o *Orchestrator) recordNegative(ctx context.Context, req MovementRequest, t ledger.EventType) error {
	if err := requirePositive(req.Qty); err != nil {
		return err
	}
	return o.Ledger.Append(ctx, ledger.StockEvent{
		Location:    req.Location,
		ItemCode:    req.Item.Code,
		ItemName:    req.Item.Name,
		Spec:        req.Item.Spec,
		Qty:         req.Qty.Neg(),
		OccurredAt:  req.OccurredAt,
		Counterpart: req.Counterpart,
		Type:        t,
	})
}

// Adjust records a manual correction. The event keeps its own type so that
// adjustment history can always be isolated from the inbound/usage streams.
func (o *Orchestrator) Adjust(ctx context.Context, req AdjustRequest) error {
	if req.Reason == "" {
		return &ledger.ValidationError{Field: "reason", Reason: "is required"}
	}
	if req.Auth.ActorID == "" {
		return &ledger.ValidationError{Field: "actorId", Reason: "is required"}
	}
	counterpart := req.Reason + " (by " + req.Auth.ActorID + ")"
	return o.Ledger.Append(ctx, ledger.StockEvent{
		Location:    req.Location,
		ItemCode:    req.Item.Code,
		ItemName:    req.Item.Name,
		Spec:        req.Item.Spec,
		Qty:         req.Qty,
		OccurredAt:  req.OccurredAt,
		Counterpart: counterpart,
		Type:        ledger.EventAdjustment,
	})
}

// ForceTransfer moves stock between locations as a ForcePush/ForceOutbound
// pair. The pair is ONE logical transaction: the batch append is atomic, so
// a transfer is never observable as only one leg.
func (o *Orchestrator) ForceTransfer(ctx context.Context, req ForceTransferRequest) error {
	if err := requirePositive(req.Qty); err != nil {
		return err
	}
	if ledger.SameLocation(req.From, req.To) {
		return &ledger.ValidationError{Field: "to", Reason: "must differ from source location"}
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	push := ledger.StockEvent{
		Location:      req.To,
		ItemCode:      req.Item.Code,
		ItemName:      req.Item.Name,
		Spec:          req.Item.Spec,
		Qty:           req.Qty,
		OccurredAt:    req.OccurredAt,
		Counterpart:   req.From,
		Type:          ledger.EventForcePush,
		CorrelationID: correlationID,
	}
	out := ledger.StockEvent{
		Location:      req.From,
		ItemCode:      req.Item.Code,
		ItemName:      req.Item.Name,
		Spec:          req.Item.Spec,
		Qty:           req.Qty.Neg(),
		OccurredAt:    req.OccurredAt,
		Counterpart:   req.To,
		Type:          ledger.EventForceOutbound,
		CorrelationID: correlationID,
	}
	return o.Ledger.AppendBatch(ctx, push, out)
}

// ReceiveFromHQ reconciles an approved store-to-HQ purchase order on physical
// receipt: the order is marked received and one Inbound event per line is
// appended at the store, all in one transaction. A second receive of the same
// order is a no-op success (alreadyReceived=true), independent of the POS
// idempotency guard.
func (o *Orchestrator) ReceiveFromHQ(ctx context.Context, orderID, storeLocation string, lines []OrderLine) (alreadyReceived bool, err error) {
	received, err := o.Orders.OrderReceived(ctx, orderID)
	if err != nil {
		return false, err
	}
	if received {
		return true, nil
	}

	now := o.Now()
	evs := make([]ledger.StockEvent, 0, len(lines))
	for _, line := range lines {
		if err := requirePositive(line.Qty); err != nil {
			return false, err
		}
		evs = append(evs, ledger.StockEvent{
			Location:      storeLocation,
			ItemCode:      line.Item.Code,
			ItemName:      line.Item.Name,
			Spec:          line.Item.Spec,
			Qty:           line.Qty,
			Counterpart:   "From HQ",
			Type:          ledger.EventInbound,
			CorrelationID: orderID,
		})
	}

	prepared, err := ledger.Prepare(now, evs...)
	if err != nil {
		return false, err
	}

	err = o.Orders.ReceiveOrder(ctx, orderID, now, prepared)
	if errors.Is(err, ledger.ErrOrderAlreadyReceived) {
		// Raced a concurrent receive; its write stands.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("receive order %s: %w", orderID, err)
	}
	return false, nil
}

func requirePositive(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return &ledger.ValidationError{Field: "qty", Reason: "must be positive"}
	}
	return nil
}

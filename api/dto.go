/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Quantities are decimal.Decimal, which accepts JSON numbers or strings and
  round-trips without floating-point loss.

CART LINES:
  A cart line is either a menu line or a promotion line. The JSON carries a
  "type" discriminator ("menu" | "promotion"); toCartLine converts it to the
  bom tagged variant.

SEE ALSO:
  - handlers.go: Uses these types
  - bom/types.go: The tagged cart-line variants
*/
package api

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/bom"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// MovementRequest covers inbound, usage, and outbound postings.
type MovementRequest struct {
	Location    string          `json:"location"`
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name,omitempty"`
	Spec        string          `json:"spec,omitempty"`
	Qty         decimal.Decimal `json:"qty"`
	Counterpart string          `json:"counterpart"`
	OccurredAt  string          `json:"occurred_at,omitempty"` // RFC3339, defaults to now
}

// AdjustmentRequest is a privileged manual correction. Qty is signed.
type AdjustmentRequest struct {
	Location   string          `json:"location"`
	ItemCode   string          `json:"item_code"`
	ItemName   string          `json:"item_name,omitempty"`
	Spec       string          `json:"spec,omitempty"`
	Qty        decimal.Decimal `json:"qty"`
	Reason     string          `json:"reason"`
	ActorID    string          `json:"actor_id"`
	ActorRole  string          `json:"actor_role,omitempty"`
	OccurredAt string          `json:"occurred_at,omitempty"`
}

// TransferRequest is a forced inter-location transfer.
type TransferRequest struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name,omitempty"`
	Spec     string          `json:"spec,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
}

// ReceiveOrderRequest reconciles an approved purchase order on receipt.
type ReceiveOrderRequest struct {
	Location string             `json:"location"`
	Lines    []OrderLineRequest `json:"lines"`
}

type OrderLineRequest struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name,omitempty"`
	Spec     string          `json:"spec,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
}

// CompleteOrderRequest is the "order completed" signal from the order source.
type CompleteOrderRequest struct {
	Location    string        `json:"location"`
	CompletedAt string        `json:"completed_at,omitempty"`
	Lines       []CartLineDTO `json:"lines"`
}

// CartLineDTO is the wire form of a cart line. Type is "menu" or "promotion".
type CartLineDTO struct {
	Type     string `json:"type"`
	MenuID   string `json:"menu_id,omitempty"`
	OptionID string `json:"option_id,omitempty"`
	PromoID  string `json:"promo_id,omitempty"`
	Quantity int64  `json:"quantity"`

	// Components, optional for promotion lines, carries a pre-resolved
	// composition from the order source.
	Components []ComponentDTO `json:"components,omitempty"`
}

type ComponentDTO struct {
	MenuID     string `json:"menu_id"`
	OptionID   string `json:"option_id,omitempty"`
	Multiplier int64  `json:"multiplier"`
}

func toCartLine(dto CartLineDTO) (bom.CartLine, error) {
	switch dto.Type {
	case "menu":
		if dto.MenuID == "" {
			return nil, fmt.Errorf("menu line requires menu_id")
		}
		return bom.MenuLine{MenuID: dto.MenuID, OptionID: dto.OptionID, Quantity: dto.Quantity}, nil
	case "promotion":
		if dto.PromoID == "" {
			return nil, fmt.Errorf("promotion line requires promo_id")
		}
		comps := make([]bom.PromoComponent, len(dto.Components))
		for i, c := range dto.Components {
			comps[i] = bom.PromoComponent{MenuID: c.MenuID, OptionID: c.OptionID, Multiplier: c.Multiplier}
		}
		return bom.PromoLine{PromoID: dto.PromoID, Quantity: dto.Quantity, Components: comps}, nil
	default:
		return nil, fmt.Errorf("unknown cart line type %q", dto.Type)
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// StockDTO is one item's balance at a location.
type StockDTO struct {
	ItemCode string          `json:"item_code"`
	Qty      decimal.Decimal `json:"qty"`
}

// MovementDTO is one row of a movement report.
type MovementDTO struct {
	Date        string          `json:"date"`
	Location    string          `json:"location"`
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name,omitempty"`
	Spec        string          `json:"spec,omitempty"`
	Qty         decimal.Decimal `json:"qty"`
	Magnitude   decimal.Decimal `json:"magnitude"`
	Counterpart string          `json:"counterpart,omitempty"`
	Type        string          `json:"type"`
}

// CompleteOrderResponse reports what a deduction did. AlreadyApplied is true
// for duplicate completion signals; the HTTP status is 200 either way.
type CompleteOrderResponse struct {
	OrderID        string                     `json:"order_id"`
	AlreadyApplied bool                       `json:"already_applied"`
	Deducted       map[string]decimal.Decimal `json:"deducted,omitempty"`
}

// ReceiveOrderResponse reports a reconciliation outcome.
type ReceiveOrderResponse struct {
	OrderID         string `json:"order_id"`
	AlreadyReceived bool   `json:"already_received"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

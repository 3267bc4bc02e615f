/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the ledger's operation surface via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the domain
  packages. No inventory semantics live here.

ENDPOINTS:
  Postings:
    POST /api/inbound               Receive goods from a vendor/HQ
    POST /api/usage                 Record consumption at a location
    POST /api/outbound              Record goods shipped out
    POST /api/adjustments           Manual correction (privileged)
    POST /api/transfers             Forced inter-location transfer (paired)

  Orders:
    POST /api/orders/{id}/receive   From-HQ purchase order reconciliation
    POST /api/orders/{id}/complete  POS deduction (idempotent per order)

  Queries:
    GET  /api/stock/{location}                 Current stock, all items
    GET  /api/stock/{location}/items/{code}    One item's balance (?as_of=)
    GET  /api/movements                        Filtered movement history

ERROR HANDLING:
  - 400: Validation errors (nothing written)
  - 404: Unknown purchase order
  - 500: Storage failures
  Duplicate POS completions and duplicate order receipts are NOT errors:
  they return 200 with already_applied / already_received set.

SECURITY NOTE:
  No authentication middleware. Adjustments record the claimed actor but
  authorization is an upstream concern.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/pos"
	"github.com/warp/stock-ledger/store/sqlite"
	"github.com/warp/stock-ledger/transfer"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Projector    *ledger.Projector
	Orchestrator *transfer.Orchestrator
	Deductor     *pos.Deductor
}

// NewHandler wires the domain packages around one sqlite store.
func NewHandler(store *sqlite.Store) *Handler {
	led := ledger.New(store)
	return &Handler{
		Store:        store,
		Projector:    ledger.NewProjector(store),
		Orchestrator: transfer.New(led, store),
		Deductor:     pos.NewDeductor(store, bom.NewResolver(store)),
	}
}

// =============================================================================
// POSTING HANDLERS
// =============================================================================

func (h *Handler) ReceiveInbound(w http.ResponseWriter, r *http.Request) {
	h.postMovement(w, r, h.Orchestrator.ReceiveInbound)
}

func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	h.postMovement(w, r, h.Orchestrator.RecordUsage)
}

func (h *Handler) RecordOutbound(w http.ResponseWriter, r *http.Request) {
	h.postMovement(w, r, h.Orchestrator.RecordOutbound)
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req transfer.MovementRequest) error) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	occurredAt, err := parseTime(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at", err)
		return
	}

	err = op(r.Context(), transfer.MovementRequest{
		Location:    req.Location,
		Item:        transfer.ItemRef{Code: req.ItemCode, Name: req.ItemName, Spec: req.Spec},
		Qty:         req.Qty,
		Counterpart: req.Counterpart,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record movement", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "recorded"})
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	occurredAt, err := parseTime(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at", err)
		return
	}

	err = h.Orchestrator.Adjust(r.Context(), transfer.AdjustRequest{
		Location:   req.Location,
		Item:       transfer.ItemRef{Code: req.ItemCode, Name: req.ItemName, Spec: req.Spec},
		Qty:        req.Qty,
		Reason:     req.Reason,
		Auth:       transfer.AuthContext{ActorID: req.ActorID, Role: req.ActorRole},
		OccurredAt: occurredAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "recorded"})
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Orchestrator.ForceTransfer(r.Context(), transfer.ForceTransferRequest{
		From: req.From,
		To:   req.To,
		Item: transfer.ItemRef{Code: req.ItemCode, Name: req.ItemName, Spec: req.Spec},
		Qty:  req.Qty,
	})
	if err != nil {
		writeDomainError(w, "Failed to record transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "recorded"})
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

func (h *Handler) ReceiveOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req ReceiveOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]transfer.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = transfer.OrderLine{
			Item: transfer.ItemRef{Code: l.ItemCode, Name: l.ItemName, Spec: l.Spec},
			Qty:  l.Qty,
		}
	}

	alreadyReceived, err := h.Orchestrator.ReceiveFromHQ(r.Context(), orderID, req.Location, lines)
	if err != nil {
		writeDomainError(w, "Failed to receive order", err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiveOrderResponse{OrderID: orderID, AlreadyReceived: alreadyReceived})
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req CompleteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	completedAt, err := parseTime(req.CompletedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid completed_at", err)
		return
	}

	cart := make([]bom.CartLine, len(req.Lines))
	for i, dto := range req.Lines {
		line, err := toCartLine(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cart line", err)
			return
		}
		cart[i] = line
	}

	result, err := h.Deductor.ApplyOrderCompleted(r.Context(), pos.CompletedOrder{
		CorrelationID: orderID,
		Location:      req.Location,
		CompletedAt:   completedAt,
		Lines:         cart,
	})
	if err != nil {
		writeDomainError(w, "Failed to apply order", err)
		return
	}

	writeJSON(w, http.StatusOK, CompleteOrderResponse{
		OrderID:        orderID,
		AlreadyApplied: result.AlreadyApplied,
		Deducted:       result.Deducted,
	})
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	stock, err := h.Projector.CurrentStock(r.Context(), location)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}

	dtos := make([]StockDTO, 0, len(stock))
	for _, code := range sortedKeys(stock) {
		dtos = append(dtos, StockDTO{ItemCode: code, Qty: stock[code]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": location, "stock": dtos})
}

func (h *Handler) GetItemBalance(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")
	itemCode := chi.URLParam(r, "code")

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		asOf = &t
	}

	balance, err := h.Projector.Balance(r.Context(), location, itemCode, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, StockDTO{ItemCode: itemCode, Qty: balance})
}

func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ledger.MovementFilter{
		Location: q.Get("location"),
		Query:    q.Get("q"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from", err)
			return
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to", err)
			return
		}
		filter.To = &t
	}
	for _, raw := range q["type"] {
		t := ledger.EventType(raw)
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid type",
				fmt.Errorf("unknown event type %q (known: %v)", raw, ledger.KnownEventTypes()))
			return
		}
		filter.Types = append(filter.Types, t)
	}

	rows, err := h.Projector.MovementHistory(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query movements", err)
		return
	}

	dtos := make([]MovementDTO, len(rows))
	for i, row := range rows {
		dtos[i] = MovementDTO{
			Date:        row.Date.Format(time.RFC3339),
			Location:    row.Location,
			ItemCode:    row.ItemCode,
			ItemName:    row.ItemName,
			Spec:        row.Spec,
			Qty:         row.Qty,
			Magnitude:   row.Magnitude,
			Counterpart: row.Counterpart,
			Type:        string(row.Type),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsDuplicate(err):
		// Duplicate POS completions and order receipts are translated into
		// no-op successes before they reach here; what remains (a reused
		// event id) is a genuine conflict.
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

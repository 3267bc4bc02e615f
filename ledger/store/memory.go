// Package store provides an in-memory ledger.Store implementation for tests.
//
// Memory implements the full storage surface of the engine: the append-only
// event log, the POS deduction records with their uniqueness guarantee, and
// the purchase-order receipt flags. Composite operations (ApplyDeduction,
// ReceiveOrder) are atomic under the store mutex, mirroring the SQL
// transactions of the sqlite store.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/stock-ledger/ledger"
)

type Memory struct {
	mu sync.RWMutex

	// events per normalized location key, in append order
	events map[string][]ledger.StockEvent
	ids    map[string]bool

	deductions map[string]time.Time // correlationID -> applied at
	orders     map[string]*order
}

type order struct {
	Location   string
	Received   bool
	ReceivedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		events:     make(map[string][]ledger.StockEvent),
		ids:        make(map[string]bool),
		deductions: make(map[string]time.Time),
		orders:     make(map[string]*order),
	}
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) Append(_ context.Context, ev ledger.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(ev)
}

func (m *Memory) AppendBatch(_ context.Context, evs []ledger.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkNewIDsLocked(evs); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := m.appendLocked(ev); err != nil {
			return err
		}
	}
	return nil
}

// checkNewIDsLocked validates a whole batch before any state is touched, so a
// failing member leaves nothing behind (all-or-nothing, like a SQL
// transaction). IDs are checked against stored events AND against earlier
// members of the same batch.
func (m *Memory) checkNewIDsLocked(evs []ledger.StockEvent) error {
	seen := make(map[string]bool, len(evs))
	for _, ev := range evs {
		if m.ids[ev.ID] || seen[ev.ID] {
			return ledger.ErrEventExists
		}
		seen[ev.ID] = true
	}
	return nil
}

func (m *Memory) appendLocked(ev ledger.StockEvent) error {
	if m.ids[ev.ID] {
		return ledger.ErrEventExists
	}
	key := ledger.NormalizeLocation(ev.Location)
	m.events[key] = append(m.events[key], ev)
	m.ids[ev.ID] = true
	return nil
}

func (m *Memory) EventsByItem(_ context.Context, location, itemCode string) ([]ledger.StockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.StockEvent
	for _, ev := range m.events[ledger.NormalizeLocation(location)] {
		if ev.ItemCode == itemCode {
			result = append(result, ev)
		}
	}
	sortAscending(result)
	return result, nil
}

func (m *Memory) EventsByLocation(_ context.Context, location string) ([]ledger.StockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.events[ledger.NormalizeLocation(location)]
	result := make([]ledger.StockEvent, len(src))
	copy(result, src)
	sortAscending(result)
	return result, nil
}

func (m *Memory) Movements(_ context.Context, f ledger.MovementFilter) ([]ledger.StockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.StockEvent
	for key, evs := range m.events {
		if f.Location != "" && key != ledger.NormalizeLocation(f.Location) {
			continue
		}
		for _, ev := range evs {
			if matches(ev, f) {
				result = append(result, ev)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.After(result[j].OccurredAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit := f.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matches(ev ledger.StockEvent, f ledger.MovementFilter) bool {
	if f.From != nil && ev.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && ev.OccurredAt.After(*f.To) {
		return false
	}
	if !f.WantsType(ev.Type) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(ev.ItemCode), q) &&
			!strings.Contains(strings.ToLower(ev.ItemName), q) &&
			!strings.Contains(strings.ToLower(ev.Counterpart), q) {
			return false
		}
	}
	return true
}

func sortAscending(evs []ledger.StockEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].OccurredAt.Equal(evs[j].OccurredAt) {
			return evs[i].OccurredAt.Before(evs[j].OccurredAt)
		}
		return evs[i].CreatedAt.Before(evs[j].CreatedAt)
	})
}

// =============================================================================
// DEDUCTION RECORDS (pos.Store interface)
// =============================================================================

func (m *Memory) HasDeduction(_ context.Context, correlationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.deductions[correlationID]
	return ok, nil
}

// ApplyDeduction records the deduction marker and appends the events as one
// atomic unit. If the correlation id is already marked, nothing is written
// and ErrDuplicateCorrelationID is returned - the caller translates that
// into an idempotent success.
func (m *Memory) ApplyDeduction(_ context.Context, correlationID string, appliedAt time.Time, evs []ledger.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deductions[correlationID]; ok {
		return ledger.ErrDuplicateCorrelationID
	}
	if err := m.checkNewIDsLocked(evs); err != nil {
		return err
	}

	m.deductions[correlationID] = appliedAt
	for _, ev := range evs {
		if err := m.appendLocked(ev); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// PURCHASE ORDERS (transfer.OrderStore interface)
// =============================================================================

// CreateOrder seeds a purchase order. Order creation belongs to the external
// ordering flow; this exists so tests can stage reconciliation scenarios.
func (m *Memory) CreateOrder(_ context.Context, orderID, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = &order{Location: location}
	return nil
}

func (m *Memory) OrderReceived(_ context.Context, orderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return false, ledger.ErrOrderNotFound
	}
	return o.Received, nil
}

// ReceiveOrder marks the order received and appends the inbound events as one
// atomic unit. A second receive returns ErrOrderAlreadyReceived with nothing
// written.
func (m *Memory) ReceiveOrder(_ context.Context, orderID string, receivedAt time.Time, evs []ledger.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	if o.Received {
		return ledger.ErrOrderAlreadyReceived
	}
	if err := m.checkNewIDsLocked(evs); err != nil {
		return err
	}

	o.Received = true
	o.ReceivedAt = receivedAt
	for _, ev := range evs {
		if err := m.appendLocked(ev); err != nil {
			return err
		}
	}
	return nil
}

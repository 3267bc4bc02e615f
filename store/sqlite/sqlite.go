/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence surface of the engine using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  ledger.Store:        Append-only stock event persistence
  pos.Store:           Deduction records with the uniqueness guarantee
  transfer.OrderStore: Purchase-order receipt reconciliation
  bom.Catalog:         Read-only recipe/promotion lookups

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on stock_events
  - No DELETE statements on stock_events
  - Corrections via new Adjustment events only

KEY TABLES:
  stock_events:         Immutable ledger of all stock changes
  deduction_records:    One row per applied POS order (UNIQUE correlation id)
  purchase_orders:      Receipt status for From-HQ reconciliation
  items, menu_recipes,
  promotion_components: Catalog reference data (owned externally; seed
                        helpers exist for fixtures and demos)

IDEMPOTENCY:
  The primary key on deduction_records.correlation_id is THE exactly-once
  mechanism for POS deduction. ApplyDeduction inserts the record and the
  events in one SQL transaction; a concurrent duplicate hits the constraint
  and the whole transaction rolls back.

NORMALIZATION:
  stock_events stores both the raw location (display) and location_key
  (matching). Every read normalizes its location argument with
  ledger.NormalizeLocation and matches on location_key.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/stock.db")   // or ":memory:" for tests
  led := ledger.New(st)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Stock events (append-only ledger)
	CREATE TABLE IF NOT EXISTS stock_events (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		location_key TEXT NOT NULL,
		item_code TEXT NOT NULL,
		item_name TEXT NOT NULL DEFAULT '',
		spec TEXT NOT NULL DEFAULT '',
		qty TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		counterpart TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		correlation_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance fold per (location, item): the hot path
	CREATE INDEX IF NOT EXISTS idx_events_location_item
		ON stock_events(location_key, item_code, occurred_at);

	-- Movement history pages, newest first
	CREATE INDEX IF NOT EXISTS idx_events_occurred_at
		ON stock_events(occurred_at DESC, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_events_type
		ON stock_events(event_type);

	CREATE INDEX IF NOT EXISTS idx_events_correlation
		ON stock_events(correlation_id) WHERE correlation_id IS NOT NULL;

	-- CRITICAL: the primary key on correlation_id is the exactly-once
	-- mechanism for POS deductions. Rows are terminal markers, never removed.
	CREATE TABLE IF NOT EXISTS deduction_records (
		correlation_id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);

	-- Purchase orders (receipt status for From-HQ reconciliation)
	CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		received INTEGER NOT NULL DEFAULT 0,
		received_at TEXT,
		created_at TEXT NOT NULL
	);

	-- Catalog reference data (owned by external management flows)
	CREATE TABLE IF NOT EXISTS items (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		spec TEXT NOT NULL DEFAULT '',
		cost TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS menu_recipes (
		menu_id TEXT NOT NULL,
		item_code TEXT NOT NULL,
		qty_per_unit TEXT NOT NULL,
		PRIMARY KEY (menu_id, item_code)
	);

	CREATE TABLE IF NOT EXISTS promotion_components (
		promo_id TEXT NOT NULL,
		menu_id TEXT NOT NULL,
		option_id TEXT NOT NULL DEFAULT '',
		multiplier INTEGER NOT NULL,
		PRIMARY KEY (promo_id, menu_id, option_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (ledger.Store interface)
// =============================================================================

// Append adds one event to the ledger.
func (s *Store) Append(ctx context.Context, ev ledger.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertEvent(ctx, s.db, ev)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertEvent(ctx context.Context, db execer, ev ledger.StockEvent) error {
	query := `
		INSERT INTO stock_events
		(id, location, location_key, item_code, item_name, spec, qty,
		 occurred_at, counterpart, event_type, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		ev.ID,
		ev.Location,
		ev.LocationKey,
		ev.ItemCode,
		ev.ItemName,
		ev.Spec,
		ev.Qty.String(),
		ev.OccurredAt.UTC().Format(time.RFC3339),
		ev.Counterpart,
		string(ev.Type),
		nullString(ev.CorrelationID),
		ev.CreatedAt.UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrEventExists
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendBatch adds multiple events atomically. Mandatory for paired
// transfers: a half-written pair never becomes visible.
func (s *Store) AppendBatch(ctx context.Context, evs []ledger.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, ev := range evs {
		if err := s.insertEvent(ctx, sqlTx, ev); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// EventsByItem returns all events for (location, itemCode), oldest first.
func (s *Store) EventsByItem(ctx context.Context, location, itemCode string) ([]ledger.StockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEvents + `
		WHERE location_key = ? AND item_code = ?
		ORDER BY occurred_at ASC, created_at ASC, rowid ASC
	`
	return s.queryEvents(ctx, query, ledger.NormalizeLocation(location), itemCode)
}

// EventsByLocation returns all events for a location, oldest first.
func (s *Store) EventsByLocation(ctx context.Context, location string) ([]ledger.StockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEvents + `
		WHERE location_key = ?
		ORDER BY occurred_at ASC, created_at ASC, rowid ASC
	`
	return s.queryEvents(ctx, query, ledger.NormalizeLocation(location))
}

// Movements returns events matching the filter, newest first, truncated at
// ledger.MaxMovementPageSize. Truncation is silent (documented behavior).
func (s *Store) Movements(ctx context.Context, f ledger.MovementFilter) ([]ledger.StockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Location != "" {
		where = append(where, "location_key = ?")
		args = append(args, ledger.NormalizeLocation(f.Location))
	}
	if f.From != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		where = append(where, "(LOWER(item_code) LIKE ? OR LOWER(item_name) LIKE ? OR LOWER(counterpart) LIKE ?)")
		args = append(args, like, like, like)
	}

	query := selectEvents
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, created_at DESC, rowid DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	return s.queryEvents(ctx, query, args...)
}

const selectEvents = `
	SELECT id, location, location_key, item_code, item_name, spec, qty,
	       occurred_at, counterpart, event_type, correlation_id, created_at
	FROM stock_events
`

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ledger.StockEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.StockEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.StockEvent, error) {
	var (
		ev            ledger.StockEvent
		qty           string
		occurredAt    string
		eventType     string
		correlationID sql.NullString
		createdAt     string
	)

	err := rows.Scan(
		&ev.ID, &ev.Location, &ev.LocationKey, &ev.ItemCode, &ev.ItemName,
		&ev.Spec, &qty, &occurredAt, &ev.Counterpart, &eventType,
		&correlationID, &createdAt,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.Qty, err = decimal.NewFromString(qty)
	if err != nil {
		return ev, fmt.Errorf("corrupt qty %q on event %s: %w", qty, ev.ID, err)
	}
	ev.Type = ledger.EventType(eventType)
	ev.CorrelationID = correlationID.String
	ev.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return ev, nil
}

// =============================================================================
// DEDUCTION RECORDS (pos.Store interface)
// =============================================================================

// HasDeduction reports whether a POS order's ledger effects are applied.
func (s *Store) HasDeduction(ctx context.Context, correlationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM deduction_records WHERE correlation_id = ?",
		correlationID,
	).Scan(&count)
	return count > 0, err
}

// ApplyDeduction inserts the deduction record and the events in one SQL
// transaction. The primary key on correlation_id decides races: the losing
// writer gets ledger.ErrDuplicateCorrelationID and nothing persisted.
func (s *Store) ApplyDeduction(ctx context.Context, correlationID string, appliedAt time.Time, evs []ledger.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx,
		"INSERT INTO deduction_records (correlation_id, applied_at) VALUES (?, ?)",
		correlationID, appliedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCorrelationID
		}
		return fmt.Errorf("failed to insert deduction record: %w", err)
	}

	for _, ev := range evs {
		if err := s.insertEvent(ctx, sqlTx, ev); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// PURCHASE ORDERS (transfer.OrderStore interface)
// =============================================================================

// CreateOrder records a purchase order awaiting receipt. Order creation and
// approval belong to the external ordering flow; this is the minimal surface
// reconciliation needs (plus fixtures).
func (s *Store) CreateOrder(ctx context.Context, orderID, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO purchase_orders (id, location, received, created_at) VALUES (?, ?, 0, ?)",
		orderID, location, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// OrderReceived reports the receipt status of a purchase order.
func (s *Store) OrderReceived(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var received int
	err := s.db.QueryRowContext(ctx,
		"SELECT received FROM purchase_orders WHERE id = ?", orderID,
	).Scan(&received)
	if err == sql.ErrNoRows {
		return false, ledger.ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read order: %w", err)
	}
	return received != 0, nil
}

// ReceiveOrder marks the order received and appends the events in one SQL
// transaction. The guarded UPDATE (received = 0) makes the receive
// idempotent at the order level even under concurrent calls.
func (s *Store) ReceiveOrder(ctx context.Context, orderID string, receivedAt time.Time, evs []ledger.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		"UPDATE purchase_orders SET received = 1, received_at = ? WHERE id = ? AND received = 0",
		receivedAt.UTC().Format(time.RFC3339), orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order received: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := sqlTx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM purchase_orders WHERE id = ?", orderID,
		).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return ledger.ErrOrderNotFound
		}
		return ledger.ErrOrderAlreadyReceived
	}

	for _, ev := range evs {
		if err := s.insertEvent(ctx, sqlTx, ev); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// CATALOG (bom.Catalog interface, read-only + fixture seeding)
// =============================================================================

// Recipe returns the ingredient lines of a menu item, joined with the item
// master for display fields. No rows is not an error.
func (s *Store) Recipe(ctx context.Context, menuID string) ([]bom.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.item_code, COALESCE(i.name, ''), COALESCE(i.spec, ''), r.qty_per_unit
		FROM menu_recipes r
		LEFT JOIN items i ON i.code = r.item_code
		WHERE r.menu_id = ?
		ORDER BY r.item_code ASC
	`, menuID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe: %w", err)
	}
	defer rows.Close()

	var lines []bom.RecipeLine
	for rows.Next() {
		var (
			line bom.RecipeLine
			qty  string
		)
		if err := rows.Scan(&line.ItemCode, &line.ItemName, &line.Spec, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan recipe line: %w", err)
		}
		line.QtyPerUnit, err = decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("corrupt qty_per_unit %q for menu %s: %w", qty, menuID, err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Promotion returns the menu components of a promotion bundle.
func (s *Store) Promotion(ctx context.Context, promoID string) ([]bom.PromoComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT menu_id, option_id, multiplier
		FROM promotion_components
		WHERE promo_id = ?
		ORDER BY menu_id ASC, option_id ASC
	`, promoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotion: %w", err)
	}
	defer rows.Close()

	var comps []bom.PromoComponent
	for rows.Next() {
		var c bom.PromoComponent
		if err := rows.Scan(&c.MenuID, &c.OptionID, &c.Multiplier); err != nil {
			return nil, fmt.Errorf("failed to scan promotion component: %w", err)
		}
		comps = append(comps, c)
	}
	return comps, rows.Err()
}

// SaveItem upserts an item master row. Catalog mutation is owned by external
// flows; these setters exist for fixtures, demos, and import scripts.
func (s *Store) SaveItem(ctx context.Context, code, name, spec string, cost decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (code, name, spec, cost) VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name, spec = excluded.spec, cost = excluded.cost
	`, code, name, spec, cost.String())
	return err
}

// SaveRecipe replaces the recipe of a menu item.
func (s *Store) SaveRecipe(ctx context.Context, menuID string, lines []bom.RecipeLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM menu_recipes WHERE menu_id = ?", menuID); err != nil {
		return err
	}
	for _, line := range lines {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT INTO menu_recipes (menu_id, item_code, qty_per_unit) VALUES (?, ?, ?)",
			menuID, line.ItemCode, line.QtyPerUnit.String(),
		)
		if err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// SavePromotion replaces the composition of a promotion.
func (s *Store) SavePromotion(ctx context.Context, promoID string, comps []bom.PromoComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM promotion_components WHERE promo_id = ?", promoID); err != nil {
		return err
	}
	for _, c := range comps {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT INTO promotion_components (promo_id, menu_id, option_id, multiplier) VALUES (?, ?, ?, ?)",
			promoID, c.MenuID, c.OptionID, c.Multiplier,
		)
		if err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore, ledger.SnapshotStore and
  ledger.CapacityStore using SQLite via sqlx. The same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the inventory_ledger table
  - No per-entry DELETE; Truncate exists only for the reset path
  - Replays rejected via the UNIQUE idempotency_key index

KEY TABLES:
  inventory_ledger:    Immutable log of signed quantity changes
  inventory_snapshots: The materialized view (single row, swapped whole)
  capacity_limits:     Purchasable storage limits (single row)

AMOUNT ENCODING:
  change_amount is stored as TEXT and summed with decimal.Decimal in
  Go, never with SQL float aggregation, so sums stay exact at any
  magnitude.

CONCURRENCY:
  WithTx holds a store-level mutex for the whole unit and runs one SQL
  transaction inside it. That serializes every validate-then-commit
  sequence: two concurrent "check gold, then debit gold" units can
  never both validate against the same starting balance. SQLite is
  opened in WAL mode so plain reads don't block.

USAGE:
  st, err := sqlite.New("./data/shop.db")
  if err != nil { ... }
  defer st.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions and isolation contract
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/alembic/shop-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: plain reads must observe committed state only,
	// and ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Inventory ledger (append-only)
	CREATE TABLE IF NOT EXISTS inventory_ledger (
		id TEXT PRIMARY KEY,
		item_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		change_amount TEXT NOT NULL,
		reason TEXT,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Balance aggregation (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_item
		ON inventory_ledger(item_type, item_id);

	-- Sibling lookup per logical operation
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON inventory_ledger(reference_id) WHERE reference_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_ledger_idempotency
		ON inventory_ledger(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Materialized snapshot, single row, replaced whole
	CREATE TABLE IF NOT EXISTS inventory_snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		gold INTEGER NOT NULL,
		ml_json TEXT NOT NULL,
		potions_json TEXT NOT NULL,
		taken_at TEXT NOT NULL
	);

	-- Purchasable storage limits, single row
	CREATE TABLE IF NOT EXISTS capacity_limits (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		potion_capacity INTEGER NOT NULL,
		ml_capacity INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type entryRow struct {
	ID             string         `db:"id"`
	ItemType       string         `db:"item_type"`
	ItemID         string         `db:"item_id"`
	ChangeAmount   string         `db:"change_amount"`
	Reason         sql.NullString `db:"reason"`
	ReferenceID    sql.NullString `db:"reference_id"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      string         `db:"created_at"`
}

func (r entryRow) toEntry() (ledger.Entry, error) {
	delta, err := decimal.NewFromString(r.ChangeAmount)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt change_amount %q: %w", r.ChangeAmount, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt created_at %q: %w", r.CreatedAt, err)
	}
	return ledger.Entry{
		ID:             r.ID,
		Key:            ledger.ItemKey{Type: ledger.ItemType(r.ItemType), ItemID: r.ItemID},
		Delta:          delta,
		Reason:         r.Reason.String,
		ReferenceID:    r.ReferenceID.String,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      createdAt,
	}, nil
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// AppendBatch persists entries atomically in one SQL transaction.
func (s *Store) AppendBatch(ctx context.Context, entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ledger.NewStorageError("begin", err)
	}
	defer tx.Rollback()

	if err := appendBatch(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateErr("commit", err)
	}
	return nil
}

func appendBatch(ctx context.Context, ext sqlx.ExtContext, entries []ledger.Entry) error {
	const query = `
		INSERT INTO inventory_ledger
		(id, item_type, item_id, change_amount, reason, reference_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		_, err := ext.ExecContext(ctx, query,
			e.ID,
			string(e.Key.Type),
			e.Key.ItemID,
			e.Delta.String(),
			nullString(e.Reason),
			nullString(e.ReferenceID),
			nullString(e.IdempotencyKey),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return translateErr("append", err)
		}
	}
	return nil
}

// Sum aggregates one key with exact decimal arithmetic.
func (s *Store) Sum(ctx context.Context, key ledger.ItemKey) (decimal.Decimal, error) {
	return sumKey(ctx, s.db, key)
}

func sumKey(ctx context.Context, ext sqlx.ExtContext, key ledger.ItemKey) (decimal.Decimal, error) {
	rows, err := ext.QueryxContext(ctx,
		`SELECT change_amount FROM inventory_ledger WHERE item_type = ? AND item_id = ?`,
		string(key.Type), key.ItemID)
	if err != nil {
		return decimal.Zero, ledger.NewStorageError("sum", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, ledger.NewStorageError("sum scan", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, ledger.NewStorageError("sum parse", err)
		}
		total = total.Add(d)
	}
	return total, ledger.NewStorageError("sum rows", rows.Err())
}

// SumByType aggregates every item of one type in a single query.
func (s *Store) SumByType(ctx context.Context, itemType ledger.ItemType) (map[string]decimal.Decimal, error) {
	return sumByType(ctx, s.db, itemType)
}

func sumByType(ctx context.Context, ext sqlx.ExtContext, itemType ledger.ItemType) (map[string]decimal.Decimal, error) {
	rows, err := ext.QueryxContext(ctx,
		`SELECT item_id, change_amount FROM inventory_ledger WHERE item_type = ?`,
		string(itemType))
	if err != nil {
		return nil, ledger.NewStorageError("sum by type", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var itemID, raw string
		if err := rows.Scan(&itemID, &raw); err != nil {
			return nil, ledger.NewStorageError("sum by type scan", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, ledger.NewStorageError("sum by type parse", err)
		}
		out[itemID] = out[itemID].Add(d)
	}
	return out, ledger.NewStorageError("sum by type rows", rows.Err())
}

// Load returns the full log in append order.
func (s *Store) Load(ctx context.Context) ([]ledger.Entry, error) {
	return loadAll(ctx, s.db)
}

func loadAll(ctx context.Context, ext sqlx.ExtContext) ([]ledger.Entry, error) {
	var rows []entryRow
	err := sqlx.SelectContext(ctx, ext, &rows,
		`SELECT id, item_type, item_id, change_amount, reason, reference_id, idempotency_key, created_at
		 FROM inventory_ledger ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, ledger.NewStorageError("load", err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, ledger.NewStorageError("load decode", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Truncate destroys the log. Reset path only.
func (s *Store) Truncate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(ctx, s.db)
}

func truncate(ctx context.Context, ext sqlx.ExtContext) (int, error) {
	res, err := ext.ExecContext(ctx, `DELETE FROM inventory_ledger`)
	if err != nil {
		return 0, ledger.NewStorageError("truncate", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Exists checks an idempotency key.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, s.db, idempotencyKey)
}

func exists(ctx context.Context, ext sqlx.ExtContext, key string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, ext, &n,
		`SELECT COUNT(1) FROM inventory_ledger WHERE idempotency_key = ?`, key)
	if err != nil {
		return false, ledger.NewStorageError("exists", err)
	}
	return n > 0, nil
}

// =============================================================================
// SNAPSHOT STORE (ledger.SnapshotStore interface)
// =============================================================================

// SaveSnapshot replaces the single snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	mlJSON, err := json.Marshal(snap.Ml)
	if err != nil {
		return ledger.NewStorageError("snapshot encode", err)
	}
	potionsJSON, err := json.Marshal(snap.Potions)
	if err != nil {
		return ledger.NewStorageError("snapshot encode", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inventory_snapshots (id, gold, ml_json, potions_json, taken_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			gold = excluded.gold,
			ml_json = excluded.ml_json,
			potions_json = excluded.potions_json,
			taken_at = excluded.taken_at
	`, snap.Gold, string(mlJSON), string(potionsJSON), snap.TakenAt.UTC().Format(time.RFC3339Nano))
	return ledger.NewStorageError("snapshot save", err)
}

// LoadSnapshot returns the current snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	var row struct {
		Gold        int64  `db:"gold"`
		MlJSON      string `db:"ml_json"`
		PotionsJSON string `db:"potions_json"`
		TakenAt     string `db:"taken_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT gold, ml_json, potions_json, taken_at FROM inventory_snapshots WHERE id = 1`)
	if err == sql.ErrNoRows {
		return ledger.Snapshot{}, ledger.ErrNoSnapshot
	}
	if err != nil {
		return ledger.Snapshot{}, ledger.NewStorageError("snapshot load", err)
	}

	snap := ledger.Snapshot{Gold: row.Gold}
	if err := json.Unmarshal([]byte(row.MlJSON), &snap.Ml); err != nil {
		return ledger.Snapshot{}, ledger.NewStorageError("snapshot decode", err)
	}
	if err := json.Unmarshal([]byte(row.PotionsJSON), &snap.Potions); err != nil {
		return ledger.Snapshot{}, ledger.NewStorageError("snapshot decode", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, row.TakenAt); err == nil {
		snap.TakenAt = t
	}
	if snap.Ml == nil {
		snap.Ml = map[string]int64{}
	}
	if snap.Potions == nil {
		snap.Potions = map[string]int64{}
	}
	return snap, nil
}

// =============================================================================
// CAPACITY STORE (ledger.CapacityStore interface)
// =============================================================================

// SaveCapacity replaces the single capacity row.
func (s *Store) SaveCapacity(ctx context.Context, limits ledger.CapacityLimits) error {
	return saveCapacity(ctx, s.db, limits)
}

func saveCapacity(ctx context.Context, ext sqlx.ExtContext, limits ledger.CapacityLimits) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO capacity_limits (id, potion_capacity, ml_capacity)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			potion_capacity = excluded.potion_capacity,
			ml_capacity = excluded.ml_capacity
	`, limits.PotionCapacity, limits.MlCapacity)
	return ledger.NewStorageError("capacity save", err)
}

// LoadCapacity returns the current limits.
func (s *Store) LoadCapacity(ctx context.Context) (ledger.CapacityLimits, error) {
	return loadCapacity(ctx, s.db)
}

func loadCapacity(ctx context.Context, ext sqlx.ExtContext) (ledger.CapacityLimits, error) {
	var row struct {
		PotionCapacity int64 `db:"potion_capacity"`
		MlCapacity     int64 `db:"ml_capacity"`
	}
	err := sqlx.GetContext(ctx, ext, &row,
		`SELECT potion_capacity, ml_capacity FROM capacity_limits WHERE id = 1`)
	if err == sql.ErrNoRows {
		return ledger.CapacityLimits{}, ledger.ErrNoCapacity
	}
	if err != nil {
		return ledger.CapacityLimits{}, ledger.NewStorageError("capacity load", err)
	}
	return ledger.CapacityLimits{PotionCapacity: row.PotionCapacity, MlCapacity: row.MlCapacity}, nil
}

// =============================================================================
// TRANSACTIONAL UNITS (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn as one serializable unit: the store mutex is held
// for the whole closure and all statements run in one SQL transaction.
// If fn errors, the transaction is rolled back and no entries remain.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ledger.NewStorageError("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&txUnit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateErr("commit", err)
	}
	return nil
}

// txUnit is the view fn operates on inside WithTx.
type txUnit struct {
	tx *sqlx.Tx
}

func (u *txUnit) AppendBatch(ctx context.Context, entries []ledger.Entry) error {
	return appendBatch(ctx, u.tx, entries)
}

func (u *txUnit) Sum(ctx context.Context, key ledger.ItemKey) (decimal.Decimal, error) {
	return sumKey(ctx, u.tx, key)
}

func (u *txUnit) SumByType(ctx context.Context, itemType ledger.ItemType) (map[string]decimal.Decimal, error) {
	return sumByType(ctx, u.tx, itemType)
}

func (u *txUnit) Load(ctx context.Context) ([]ledger.Entry, error) {
	return loadAll(ctx, u.tx)
}

func (u *txUnit) Truncate(ctx context.Context) (int, error) {
	return truncate(ctx, u.tx)
}

func (u *txUnit) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, u.tx, idempotencyKey)
}

func (u *txUnit) SaveCapacity(ctx context.Context, limits ledger.CapacityLimits) error {
	return saveCapacity(ctx, u.tx, limits)
}

func (u *txUnit) LoadCapacity(ctx context.Context) (ledger.CapacityLimits, error) {
	return loadCapacity(ctx, u.tx)
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

func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ledger.ErrDuplicateIdempotencyKey
	case strings.Contains(msg, "database is locked"):
		return ledger.ErrConcurrentModification
	}
	return ledger.NewStorageError(op, err)
}

// Package store provides an in-memory implementation of the ledger
// persistence interfaces, used by tests and dev mode.
package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alembic/shop-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore, ledger.SnapshotStore and
// ledger.CapacityStore with plain maps behind one mutex.
//
// WithTx holds the write lock for the whole closure, which makes every
// unit trivially serializable: a concurrent "check gold, then debit
// gold" pair can never both validate against the same starting balance.
type Memory struct {
	mu          sync.RWMutex
	entries     []ledger.Entry
	idempotency map[string]bool

	snapshot *ledger.Snapshot
	capacity *ledger.CapacityLimits
}

func NewMemory() *Memory {
	return &Memory{idempotency: make(map[string]bool)}
}

// AppendBatch adds entries atomically.
func (m *Memory) AppendBatch(_ context.Context, entries []ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entries)
}

func (m *Memory) appendLocked(entries []ledger.Entry) error {
	// Check every idempotency key before writing anything.
	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range entries {
		m.entries = append(m.entries, e)
		if e.IdempotencyKey != "" {
			m.idempotency[e.IdempotencyKey] = true
		}
	}
	return nil
}

func (m *Memory) Sum(_ context.Context, key ledger.ItemKey) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(key), nil
}

func (m *Memory) sumLocked(key ledger.ItemKey) decimal.Decimal {
	total := decimal.Zero
	for _, e := range m.entries {
		if e.Key == key {
			total = total.Add(e.Delta)
		}
	}
	return total
}

func (m *Memory) SumByType(_ context.Context, itemType ledger.ItemType) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumByTypeLocked(itemType), nil
}

func (m *Memory) sumByTypeLocked(itemType ledger.ItemType) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range m.entries {
		if e.Key.Type != itemType {
			continue
		}
		out[e.Key.ItemID] = out[e.Key.ItemID].Add(e.Delta)
	}
	return out
}

func (m *Memory) Load(_ context.Context) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) Truncate(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.truncateLocked(), nil
}

func (m *Memory) truncateLocked() int {
	n := len(m.entries)
	m.entries = nil
	m.idempotency = make(map[string]bool)
	return n
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// SNAPSHOT / CAPACITY
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, snap ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := snap.Clone()
	m.snapshot = &clone
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context) (ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return ledger.Snapshot{}, ledger.ErrNoSnapshot
	}
	return m.snapshot.Clone(), nil
}

func (m *Memory) SaveCapacity(_ context.Context, limits ledger.CapacityLimits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCapacityLocked(limits)
	return nil
}

func (m *Memory) saveCapacityLocked(limits ledger.CapacityLimits) {
	m.capacity = &limits
}

func (m *Memory) LoadCapacity(_ context.Context) (ledger.CapacityLimits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCapacityLocked()
}

func (m *Memory) loadCapacityLocked() (ledger.CapacityLimits, error) {
	if m.capacity == nil {
		return ledger.CapacityLimits{}, ledger.ErrNoCapacity
	}
	return *m.capacity, nil
}

// =============================================================================
// TRANSACTIONAL UNITS
// =============================================================================

// WithTx executes fn as one serializable unit. The write lock is held
// across the whole closure; rollback restores a pre-unit copy of state.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Unit) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.copyStateLocked()

	if err := fn(&memoryUnit{parent: m}); err != nil {
		m.restoreLocked(saved)
		return err
	}
	return nil
}

type memoryState struct {
	entries     []ledger.Entry
	idempotency map[string]bool
	capacity    *ledger.CapacityLimits
}

func (m *Memory) copyStateLocked() memoryState {
	entries := make([]ledger.Entry, len(m.entries))
	copy(entries, m.entries)
	idem := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idem[k] = v
	}
	var limits *ledger.CapacityLimits
	if m.capacity != nil {
		c := *m.capacity
		limits = &c
	}
	return memoryState{entries: entries, idempotency: idem, capacity: limits}
}

func (m *Memory) restoreLocked(s memoryState) {
	m.entries = s.entries
	m.idempotency = s.idempotency
	m.capacity = s.capacity
}

// memoryUnit is the view fn operates on inside WithTx. The parent lock
// is already held, so it calls the *Locked helpers directly.
type memoryUnit struct {
	parent *Memory
}

func (u *memoryUnit) AppendBatch(_ context.Context, entries []ledger.Entry) error {
	return u.parent.appendLocked(entries)
}

func (u *memoryUnit) Sum(_ context.Context, key ledger.ItemKey) (decimal.Decimal, error) {
	return u.parent.sumLocked(key), nil
}

func (u *memoryUnit) SumByType(_ context.Context, itemType ledger.ItemType) (map[string]decimal.Decimal, error) {
	return u.parent.sumByTypeLocked(itemType), nil
}

func (u *memoryUnit) Load(_ context.Context) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, len(u.parent.entries))
	copy(out, u.parent.entries)
	return out, nil
}

func (u *memoryUnit) Truncate(_ context.Context) (int, error) {
	return u.parent.truncateLocked(), nil
}

func (u *memoryUnit) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return u.parent.idempotency[idempotencyKey], nil
}

func (u *memoryUnit) SaveCapacity(_ context.Context, limits ledger.CapacityLimits) error {
	u.parent.saveCapacityLocked(limits)
	return nil
}

func (u *memoryUnit) LoadCapacity(_ context.Context) (ledger.CapacityLimits, error) {
	return u.parent.loadCapacityLocked()
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory localstore.Store for testing.
// It registers itself as the "memory" driver.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
)

// DriverName is the localstore driver name of this backend
const DriverName = "memory"

func init() {
	localstore.Register(DriverName, func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (localstore.Store, error) {
		return New(), nil
	})
}

// state is the committed content of the store
type state struct {
	records map[int]models.Record
	keys    map[int]models.RemoteKeys
}

func (s *state) clone() *state {
	c := &state{
		records: make(map[int]models.Record, len(s.records)),
		keys:    make(map[int]models.RemoteKeys, len(s.keys)),
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	return c
}

// Store is a mock implementation of localstore.Store for testing
type Store struct {
	mu    sync.RWMutex
	state *state

	getError    error
	windowError error
	searchError error
	upsertError error
	keysError   error
	txError     error
	closed      bool
}

// New creates a new empty Store
func New() *Store {
	return &Store{
		state: &state{
			records: make(map[int]models.Record),
			keys:    make(map[int]models.RemoteKeys),
		},
	}
}

// WithGetError makes Get, KeysFor and Count return an error
func (m *Store) WithGetError(err error) *Store {
	m.getError = err
	return m
}

// WithWindowError makes Window return an error
func (m *Store) WithWindowError(err error) *Store {
	m.windowError = err
	return m
}

// WithSearchError makes SearchByNameOrID return an error
func (m *Store) WithSearchError(err error) *Store {
	m.searchError = err
	return m
}

// WithUpsertError makes record writes return an error, inside or outside a transaction
func (m *Store) WithUpsertError(err error) *Store {
	m.upsertError = err
	return m
}

// WithKeysError makes ledger writes return an error, inside or outside a transaction
func (m *Store) WithKeysError(err error) *Store {
	m.keysError = err
	return m
}

// WithTxError makes RunTransaction fail before fn runs
func (m *Store) WithTxError(err error) *Store {
	m.txError = err
	return m
}

// Window returns up to limit records from position offset, ordered by identity
func (m *Store) Window(ctx context.Context, offset, limit int) ([]models.Record, error) {
	if m.windowError != nil {
		return nil, errors.NewStoreError("window", m.windowError)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := m.sortedLocked()
	if offset >= len(sorted) || limit <= 0 {
		return []models.Record{}, nil
	}
	end := min(offset+limit, len(sorted))
	return slices.Clone(sorted[offset:end]), nil
}

// Get returns the record for id, or nil when absent
func (m *Store) Get(ctx context.Context, id int) (*models.Record, error) {
	if m.getError != nil {
		return nil, errors.NewStoreError("get", m.getError)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, exists := m.state.records[id]; exists {
		return &r, nil
	}
	return nil, nil
}

// SearchByNameOrID filters records with localstore.Matcher
func (m *Store) SearchByNameOrID(ctx context.Context, text string) ([]models.Record, error) {
	if m.searchError != nil {
		return nil, errors.NewStoreError("search", m.searchError)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	match := localstore.Matcher(text)
	results := []models.Record{}
	for _, r := range m.sortedLocked() {
		if match(r) {
			results = append(results, r)
		}
	}
	return results, nil
}

// Count returns the number of stored records
func (m *Store) Count(ctx context.Context) (int, error) {
	if m.getError != nil {
		return 0, errors.NewStoreError("count", m.getError)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.records), nil
}

// KeysFor returns the ledger row for id, or nil when absent
func (m *Store) KeysFor(ctx context.Context, id int) (*models.RemoteKeys, error) {
	if m.getError != nil {
		return nil, errors.NewStoreError("keys for", m.getError)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if k, exists := m.state.keys[id]; exists {
		return &k, nil
	}
	return nil, nil
}

// Upsert stores one record
func (m *Store) Upsert(ctx context.Context, record models.Record) error {
	return m.UpsertMany(ctx, []models.Record{record})
}

// UpsertMany stores records
func (m *Store) UpsertMany(ctx context.Context, records []models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer(m.state).UpsertMany(ctx, records)
}

// Clear removes all records and ledger rows
func (m *Store) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer(m.state).Clear(ctx)
}

// UpsertKeysMany stores ledger rows
func (m *Store) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer(m.state).UpsertKeysMany(ctx, keys)
}

// ClearKeys removes all ledger rows
func (m *Store) ClearKeys(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer(m.state).ClearKeys(ctx)
}

// RunTransaction runs fn against a copy of the state and swaps it in when fn
// returns nil. Readers block until the transaction ends.
func (m *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, w localstore.Writer) error) error {
	if m.txError != nil {
		return errors.NewStoreError("begin", m.txError)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.NewStoreError("begin", fmt.Errorf("store closed"))
	}

	staged := m.state.clone()
	if err := fn(ctx, m.writer(staged)); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// Close marks the store closed
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for testing

// Records returns all records ordered by identity
func (m *Store) Records() []models.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// Keys returns a copy of the ledger
func (m *Store) Keys() map[int]models.RemoteKeys {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int]models.RemoteKeys, len(m.state.keys))
	for k, v := range m.state.keys {
		result[k] = v
	}
	return result
}

func (m *Store) sortedLocked() []models.Record {
	out := make([]models.Record, 0, len(m.state.records))
	for _, r := range m.state.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.Record) int { return a.ID - b.ID })
	return out
}

func (m *Store) writer(s *state) *writer {
	return &writer{state: s, upsertError: m.upsertError, keysError: m.keysError}
}

// writer applies mutations to one state; the caller holds the write lock
type writer struct {
	state       *state
	upsertError error
	keysError   error
}

func (w *writer) Upsert(ctx context.Context, record models.Record) error {
	return w.UpsertMany(ctx, []models.Record{record})
}

func (w *writer) UpsertMany(ctx context.Context, records []models.Record) error {
	if w.upsertError != nil {
		return errors.NewStoreError("upsert", w.upsertError)
	}
	for _, r := range records {
		r.Tags = slices.Clone(r.Tags)
		r.Attributes = slices.Clone(r.Attributes)
		w.state.records[r.ID] = r
	}
	return nil
}

func (w *writer) Clear(ctx context.Context) error {
	w.state.records = make(map[int]models.Record)
	w.state.keys = make(map[int]models.RemoteKeys)
	return nil
}

func (w *writer) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	if w.keysError != nil {
		return errors.NewStoreError("upsert keys", w.keysError)
	}
	for _, k := range keys {
		if _, exists := w.state.records[k.RecordID]; !exists {
			return errors.NewStoreError("upsert keys",
				fmt.Errorf("record %d does not exist", k.RecordID))
		}
	}
	for _, k := range keys {
		w.state.keys[k.RecordID] = k
	}
	return nil
}

func (w *writer) ClearKeys(ctx context.Context) error {
	w.state.keys = make(map[int]models.RemoteKeys)
	return nil
}

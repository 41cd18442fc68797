/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package paging provides the position-based cursor over the local store.
// The store is the single source of truth: the cursor only reads it, and asks
// a RemoteMediator to fill it when a read comes close to a boundary.
package paging

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/mediator"
	"github.com/suparena/pagecache/models"
)

// RemoteMediator loads remote pages into the store. *mediator.Mediator implements it.
type RemoteMediator interface {
	Initialize(ctx context.Context) (mediator.InitializeAction, error)
	Load(ctx context.Context, lt mediator.LoadType) (mediator.Result, error)
}

// Pager is a cursor over the records of a store, ordered by identity.
//
// Reads and mediator loads of one Pager are serialised: a load is never
// issued while another one of the same Pager is outstanding. Subscribers are
// called synchronously from the goroutine that triggered the event and must
// not call Get, Start, Refresh or Retry.
type Pager struct {
	store    localstore.Store
	mediator RemoteMediator
	cfg      Config
	logger   *zap.Logger

	opMu sync.Mutex

	mu             sync.RWMutex
	items          []models.Record
	localExhausted bool
	started        bool
	anchor         int
	appendEnd      bool
	prependEnd     bool
	appendFailed   bool
	states         LoadStates
	subscribers    map[int]func(Event)
	nextSub        int
}

// Option configures a Pager
type Option func(*Pager)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pager) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pager. Nothing is read until Start or the first Get.
func New(store localstore.Store, m RemoteMediator, cfg Config, opts ...Option) *Pager {
	p := &Pager{
		store:       store,
		mediator:    m,
		cfg:         cfg.normalized(),
		logger:      zap.NewNop(),
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration
func (p *Pager) Config() Config {
	return p.cfg
}

// Start makes the one-time initialize decision, runs the initial REFRESH when
// the cache is empty and reads the initial window. Later calls do nothing.
func (p *Pager) Start(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.startLocked(ctx)
}

func (p *Pager) startLocked(ctx context.Context) error {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if started {
		return nil
	}

	action, err := p.mediator.Initialize(ctx)
	if err != nil {
		return err
	}
	p.logger.Debug("pager starting", zap.Stringer("action", action))

	if action == mediator.LaunchInitialRefresh {
		res, err := p.runLoad(ctx, mediator.Refresh{})
		if err != nil {
			return err
		}
		p.setAppendEnd(res.EndOfPagination)
	}

	if err := p.reload(ctx, p.cfg.InitialLoadSize); err != nil {
		return err
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return nil
}

// Get returns the record at index and records index as the anchor. Reading
// near the loaded end reads the next local page, and issues APPENDs when the
// store has nothing more, until index is loaded with PrefetchDistance to
// spare, pagination ends, or an APPEND fails. Reading near the start issues
// PREPEND once. Past the end of the collection Get returns a NotFoundError;
// after a failed APPEND an unloaded index returns that failure.
func (p *Pager) Get(ctx context.Context, index int) (models.Record, error) {
	if index < 0 {
		return models.Record{}, errors.NewValidationError("index", "must not be negative")
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.startLocked(ctx); err != nil {
		return models.Record{}, err
	}

	p.mu.Lock()
	p.anchor = index
	p.mu.Unlock()

	loadErr := p.ensureLoaded(ctx, index)

	p.mu.RLock()
	prependEnd := p.prependEnd
	p.mu.RUnlock()
	if index < p.cfg.PrefetchDistance && !prependEnd {
		if res, err := p.runLoad(ctx, mediator.Prepend{}); err == nil && res.EndOfPagination {
			p.mu.Lock()
			p.prependEnd = true
			p.mu.Unlock()
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < len(p.items) {
		return p.items[index], nil
	}
	if loadErr != nil {
		return models.Record{}, loadErr
	}
	return models.Record{}, errors.NewNotFoundError("position", strconv.Itoa(index))
}

// ensureLoaded loads until index is further than PrefetchDistance from the
// loaded end, or nothing more can be loaded. APPENDs repeat until then.
func (p *Pager) ensureLoaded(ctx context.Context, index int) error {
	for {
		p.mu.RLock()
		n := len(p.items)
		localExhausted := p.localExhausted
		blocked := p.appendEnd || p.appendFailed
		p.mu.RUnlock()

		if index < n-p.cfg.PrefetchDistance {
			return nil
		}

		if !localExhausted {
			if err := p.loadLocalPage(ctx); err != nil {
				return err
			}
			continue
		}

		// every APPEND moves the ledger forward, even over an empty page
		if blocked {
			return nil
		}

		lastID, err := p.lastKeyedID(ctx)
		if err != nil {
			return err
		}
		res, err := p.runLoad(ctx, mediator.Append{LastID: lastID})
		if err != nil {
			p.mu.Lock()
			p.appendFailed = true
			p.mu.Unlock()
			return err
		}
		p.setAppendEnd(res.EndOfPagination)

		if err := p.reload(ctx, max(n+p.cfg.PageSize, p.cfg.InitialLoadSize)); err != nil {
			return err
		}
	}
}

// Refresh replaces the cache with the remote page of the loaded record
// closest to the last anchor, then re-reads the window from the start.
func (p *Pager) Refresh(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	anchorID, err := p.keyedNearAnchor(ctx)
	if err != nil {
		return err
	}

	res, err := p.runLoad(ctx, mediator.Refresh{AnchorID: anchorID})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.started = true
	p.appendFailed = false
	p.prependEnd = false
	p.anchor = 0
	p.mu.Unlock()
	p.setAppendEnd(res.EndOfPagination)

	return p.reload(ctx, p.cfg.InitialLoadSize)
}

// Retry re-enables APPEND after a failed one and loads towards the last anchor.
func (p *Pager) Retry(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	p.appendFailed = false
	anchor := p.anchor
	p.mu.Unlock()

	if err := p.startLocked(ctx); err != nil {
		return err
	}
	return p.ensureLoaded(ctx, anchor)
}

// Snapshot returns a copy of the loaded records
func (p *Pager) Snapshot() []models.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.items)
}

// Len returns the number of loaded records
func (p *Pager) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// LoadStates returns the state of every load type
func (p *Pager) LoadStates() LoadStates {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states
}

// Subscribe registers f for pager events and returns its cancel function.
func (p *Pager) Subscribe(f func(Event)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = f

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subscribers, id)
		})
	}
}

// All returns the whole collection as a sequence, driving appends as it
// goes. Every iteration starts again at position 0.
func (p *Pager) All(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		for i := 0; ; i++ {
			r, err := p.Get(ctx, i)
			if errors.IsNotFound(err) {
				return
			}
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// runLoad calls the mediator and tracks the load state of lt
func (p *Pager) runLoad(ctx context.Context, lt mediator.LoadType) (mediator.Result, error) {
	p.setState(lt, LoadState{Status: StatusLoading})
	p.emit(Event{Kind: EventLoadStarted, LoadType: lt.String()})

	res, err := p.mediator.Load(ctx, lt)
	if err != nil {
		p.logger.Warn("load failed", zap.Stringer("load_type", lt), zap.Error(err))
		p.setState(lt, LoadState{Status: StatusError, Err: err})
		p.emit(Event{Kind: EventLoadFailed, LoadType: lt.String(), Err: err})
		return res, err
	}

	status := StatusIdle
	if res.EndOfPagination {
		status = StatusEndOfPagination
	}
	p.setState(lt, LoadState{Status: status})
	p.emit(Event{Kind: EventLoadFinished, LoadType: lt.String()})
	return res, nil
}

func (p *Pager) setState(lt mediator.LoadType, st LoadState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch lt.(type) {
	case mediator.Refresh:
		p.states.Refresh = st
	case mediator.Prepend:
		p.states.Prepend = st
	case mediator.Append:
		p.states.Append = st
	}
}

func (p *Pager) setAppendEnd(end bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.appendEnd = end
	if end {
		p.states.Append = LoadState{Status: StatusEndOfPagination}
	} else if p.states.Append.Status == StatusEndOfPagination {
		p.states.Append = LoadState{Status: StatusIdle}
	}
}

// reload replaces the window with the first n records of the store
func (p *Pager) reload(ctx context.Context, n int) error {
	records, err := p.store.Window(ctx, 0, n)
	if err != nil {
		return errors.NewStoreError("window", err)
	}

	p.mu.Lock()
	p.items = records
	p.localExhausted = len(records) < n
	p.mu.Unlock()

	p.emit(Event{Kind: EventInvalidated, Len: len(records)})
	return nil
}

// loadLocalPage appends the next page of the store to the window
func (p *Pager) loadLocalPage(ctx context.Context) error {
	p.mu.RLock()
	offset := len(p.items)
	p.mu.RUnlock()

	records, err := p.store.Window(ctx, offset, p.cfg.PageSize)
	if err != nil {
		return errors.NewStoreError("window", err)
	}

	p.mu.Lock()
	p.items = append(p.items, records...)
	p.localExhausted = len(records) < p.cfg.PageSize
	p.mu.Unlock()
	return nil
}

// lastKeyedID returns the last loaded record that has a ledger row.
// Write-through records have none and cannot continue pagination.
func (p *Pager) lastKeyedID(ctx context.Context) (*int, error) {
	p.mu.RLock()
	items := p.items
	p.mu.RUnlock()

	for i := len(items) - 1; i >= 0; i-- {
		k, err := p.store.KeysFor(ctx, items[i].ID)
		if err != nil {
			return nil, errors.NewStoreError("keys for", err)
		}
		if k != nil {
			return models.IntPtr(items[i].ID), nil
		}
	}
	return nil, nil
}

// keyedNearAnchor returns the loaded record with a ledger row closest to the anchor
func (p *Pager) keyedNearAnchor(ctx context.Context) (*int, error) {
	p.mu.RLock()
	items := p.items
	anchor := min(p.anchor, len(items)-1)
	p.mu.RUnlock()

	for d := 0; d < len(items); d++ {
		candidates := []int{anchor - d}
		if d > 0 {
			candidates = append(candidates, anchor+d)
		}
		for _, i := range candidates {
			if i < 0 || i >= len(items) {
				continue
			}
			k, err := p.store.KeysFor(ctx, items[i].ID)
			if err != nil {
				return nil, errors.NewStoreError("keys for", err)
			}
			if k != nil {
				return models.IntPtr(items[i].ID), nil
			}
		}
	}
	return nil, nil
}

func (p *Pager) emit(e Event) {
	p.mu.RLock()
	if e.Kind != EventInvalidated {
		e.Len = len(p.items)
	}
	subs := make([]func(Event), 0, len(p.subscribers))
	for _, f := range p.subscribers {
		subs = append(subs, f)
	}
	p.mu.RUnlock()

	for _, f := range subs {
		f(e)
	}
}

// String implements fmt.Stringer for log fields
func (p *Pager) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("Pager{len=%d, anchor=%d, appendEnd=%v}", len(p.items), p.anchor, p.appendEnd)
}

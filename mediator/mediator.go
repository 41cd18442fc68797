/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/ledger"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
	"github.com/suparena/pagecache/remote"
)

// Mediator runs load operations against one remote source and one store.
type Mediator struct {
	remote         remote.Source
	store          localstore.Store
	ledger         *ledger.Ledger
	pageSize       int
	maxConcurrency int
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Mediator
type Option func(*Mediator)

// WithPageSize sets the remote page size (default: 20)
func WithPageSize(n int) Option {
	return func(m *Mediator) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithMaxConcurrency bounds the concurrent detail fetches of one page (default: page size)
func WithMaxConcurrency(n int) Option {
	return func(m *Mediator) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Mediator) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the clock used to stamp records fetched without a timestamp
func WithClock(now func() time.Time) Option {
	return func(m *Mediator) {
		m.now = now
	}
}

// New creates a Mediator.
func New(source remote.Source, store localstore.Store, opts ...Option) *Mediator {
	m := &Mediator{
		remote:   source,
		store:    store,
		ledger:   ledger.New(store),
		pageSize: config.DefaultPageSize,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxConcurrency == 0 {
		m.maxConcurrency = m.pageSize
	}
	return m
}

// PageSize returns the remote page size.
func (m *Mediator) PageSize() int {
	return m.pageSize
}

// Initialize decides whether the cache must be filled before first use.
func (m *Mediator) Initialize(ctx context.Context) (InitializeAction, error) {
	n, err := m.store.Count(ctx)
	if err != nil {
		return LaunchInitialRefresh, errors.NewStoreError("count", err)
	}
	if n > 0 {
		m.logger.Debug("cache populated, skipping initial refresh", zap.Int("records", n))
		return SkipInitialRefresh, nil
	}
	return LaunchInitialRefresh, nil
}

// Load runs one load operation. A list fetch failure returns a
// TransientFetchError and a store failure a StoreError; in both cases the
// store is unchanged.
func (m *Mediator) Load(ctx context.Context, lt LoadType) (Result, error) {
	if lt == nil {
		return Result{}, errors.NewValidationError("loadType", "must not be nil")
	}

	log := m.logger.With(
		zap.String("load_id", uuid.NewString()),
		zap.Stringer("load_type", lt))

	switch lt := lt.(type) {
	case Refresh:
		return m.refresh(ctx, log, lt)
	case Prepend:
		log.Debug("prepend is not supported, reporting end of pagination")
		return Result{EndOfPagination: true}, nil
	case Append:
		return m.append(ctx, log, lt)
	default:
		return Result{}, errors.NewValidationError("loadType", fmt.Sprintf("unknown load type %T", lt))
	}
}

func (m *Mediator) refresh(ctx context.Context, log *zap.Logger, lt Refresh) (Result, error) {
	entry, err := m.ledger.ClosestTo(ctx, lt.AnchorID)
	if err != nil {
		return Result{}, errors.NewStoreError("keys for", err)
	}
	page := ledger.RefreshPage(entry)

	return m.fetchAndMerge(ctx, log, page, true, nil)
}

func (m *Mediator) append(ctx context.Context, log *zap.Logger, lt Append) (Result, error) {
	entry, err := m.ledger.ForLastItem(ctx, lt.LastID)
	if err != nil {
		return Result{}, errors.NewStoreError("keys for", err)
	}

	page, ok := ledger.AppendPage(entry)
	if !ok {
		log.Debug("no next page, reporting end of pagination", zap.Bool("has_entry", entry != nil))
		return Result{EndOfPagination: true}, nil
	}

	return m.fetchAndMerge(ctx, log, page, false, entry)
}

// fetchAndMerge fetches page and merges it. When nothing of an appended page
// resolves, the ledger row of after is moved past the page so the next APPEND
// does not fetch it again.
func (m *Mediator) fetchAndMerge(ctx context.Context, log *zap.Logger, page int, replace bool, after *models.RemoteKeys) (Result, error) {
	start := m.now()
	log = log.With(zap.Int("page", page))

	list, err := m.remote.FetchPage(ctx, m.pageSize, models.Offset(page, m.pageSize))
	if err != nil {
		log.Warn("list fetch failed", zap.Error(err))
		if errors.IsTransient(err) {
			return Result{}, err
		}
		return Result{}, errors.NewTransientFetchError(fmt.Sprintf("fetch page %d", page), err)
	}

	records, dropped, err := m.resolve(ctx, log, list.Summaries)
	if err != nil {
		return Result{}, err
	}

	ids := make([]int, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	keys := ledger.ForPage(page, list.HasMore, ids)
	if len(records) == 0 && after != nil {
		keys = []models.RemoteKeys{ledger.Advance(*after, page, list.HasMore)}
	}

	// the merge outlives a discarded cursor
	txCtx := context.WithoutCancel(ctx)
	err = m.store.RunTransaction(txCtx, func(ctx context.Context, w localstore.Writer) error {
		if replace {
			if err := w.Clear(ctx); err != nil {
				return err
			}
			if err := w.ClearKeys(ctx); err != nil {
				return err
			}
		}
		if err := w.UpsertMany(ctx, records); err != nil {
			return err
		}
		return w.UpsertKeysMany(ctx, keys)
	})
	if err != nil {
		log.Error("merge failed", zap.Error(err))
		return Result{}, errors.NewStoreError("merge", err)
	}

	result := Result{
		EndOfPagination: !list.HasMore,
		Page:            page,
		Merged:          len(records),
		Dropped:         dropped,
	}
	log.Info("page merged",
		zap.Bool("cleared", replace),
		zap.Int("merged", result.Merged),
		zap.Int("dropped", result.Dropped),
		zap.Bool("end_of_pagination", result.EndOfPagination),
		zap.Duration("elapsed", m.now().Sub(start)))
	return result, nil
}

// resolve fetches the details of a page concurrently, keeping list order.
// Failed details are logged and dropped.
func (m *Mediator) resolve(ctx context.Context, log *zap.Logger, summaries []models.Summary) ([]models.Record, int, error) {
	resolved := make([]*models.Record, len(summaries))
	failures := make([]error, len(summaries))

	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)

	for i, s := range summaries {
		if s.ID <= 0 {
			failures[i] = errors.NewValidationError("id", fmt.Sprintf("summary %q has no usable identity", s.Name))
			continue
		}
		g.Go(func() error {
			r, err := m.remote.FetchDetail(ctx, s.ID)
			if err != nil {
				failures[i] = err
				return nil
			}
			resolved[i] = r
			return nil
		})
	}
	_ = g.Wait()

	// a cancelled load is a failed load, not a page of dropped records
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.NewTransientFetchError("resolve details", err)
	}

	records := make([]models.Record, 0, len(summaries))
	dropped := 0
	for i, r := range resolved {
		if r == nil {
			dropped++
			log.Warn("record dropped from page",
				zap.Error(errors.NewPartialResolutionWarning(summaries[i].ID, failures[i])))
			continue
		}
		if time.Time(r.FetchedAt).IsZero() {
			r.FetchedAt = strfmt.DateTime(m.now())
		}
		records = append(records, *r)
	}
	return records, dropped, nil
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package repository is the read surface of the cache: a paged view of the
// collection, lookup by identity and free-text search.
//
// Lookups and searches are local-first. A miss falls back to the remote
// source and the resolved record is written through to the store without a
// ledger row, so it is found by identity but never continues pagination.
package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"go.uber.org/zap"

	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/mediator"
	"github.com/suparena/pagecache/models"
	"github.com/suparena/pagecache/paging"
	"github.com/suparena/pagecache/remote"
)

// Repository composes a remote source and a local store
type Repository struct {
	remote         remote.Source
	store          localstore.Store
	paging         paging.Config
	maxConcurrency int
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Repository
type Option func(*Repository)

// WithPagingConfig sets the paging constants of the views
func WithPagingConfig(cfg paging.Config) Option {
	return func(r *Repository) {
		r.paging = cfg
	}
}

// WithMaxConcurrency bounds the concurrent detail fetches of one page
func WithMaxConcurrency(n int) Option {
	return func(r *Repository) {
		r.maxConcurrency = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used to stamp write-through records
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New creates a Repository
func New(source remote.Source, store localstore.Store, opts ...Option) *Repository {
	r := &Repository{
		remote: source,
		store:  store,
		paging: paging.DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ObservePagedCollection returns a new paged view of the collection. Every
// view has its own mediator, so loads of different views do not wait on each
// other.
func (r *Repository) ObservePagedCollection() *paging.Pager {
	m := mediator.New(r.remote, r.store,
		mediator.WithPageSize(r.paging.PageSize),
		mediator.WithMaxConcurrency(r.maxConcurrency),
		mediator.WithLogger(r.logger.Named("mediator")),
		mediator.WithClock(r.now))
	return paging.New(r.store, m, r.paging, paging.WithLogger(r.logger.Named("pager")))
}

// LookupByID returns the record for id. A cached record is returned without
// a remote call. A record only the remote has is written through first.
//
// A record found nowhere yields a NotFoundError. When the remote failed, the
// error keeps the remote failure as its cause, so errors.IsTransient tells
// an unreachable remote from an absent record. Store failures are returned
// as StoreError.
func (r *Repository) LookupByID(ctx context.Context, id int) (*models.Record, error) {
	log := r.logger.With(zap.Int("id", id))

	cached, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, errors.NewStoreError("get", err)
	}
	if cached != nil {
		log.Debug("lookup served from cache")
		return cached, nil
	}

	record, err := r.remote.FetchDetail(ctx, id)
	if err != nil {
		log.Info("remote lookup failed", zap.Error(err))
		return nil, errors.NewNotFoundErrorWithCause("record", strconv.Itoa(id), err)
	}

	if err := r.writeThrough(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SearchOption configures one search
type SearchOption func(*searchOptions)

type searchOptions struct {
	tags []string
}

// WithTags keeps the results having any of tags
func WithTags(tags ...string) SearchOption {
	return func(o *searchOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// Search matches text against names (case-insensitive contains) and, when
// text is an integer, identities. Local matches are returned as they are.
// Without local matches the remote is asked by name and then, for a positive
// integer, by identity.
//
// Remote failures yield an empty result, not an error: a caller cannot tell
// "no match" from "remote unreachable". Store failures are returned.
func (r *Repository) Search(ctx context.Context, text string, opts ...SearchOption) ([]models.Record, error) {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Record{}, nil
	}
	log := r.logger.With(zap.String("text", text))

	local, err := r.store.SearchByNameOrID(ctx, text)
	if err != nil {
		return nil, errors.NewStoreError("search", err)
	}
	if len(local) > 0 {
		log.Debug("search served from cache", zap.Int("results", len(local)))
		return models.FilterByTags(local, o.tags), nil
	}

	record, err := r.remote.FetchByName(ctx, strings.ToLower(text))
	if err != nil {
		log.Debug("remote search by name failed", zap.Error(err))
		id, ok := models.ParseID(text)
		if !ok || id <= 0 {
			return []models.Record{}, nil
		}
		record, err = r.remote.FetchDetail(ctx, id)
		if err != nil {
			log.Info("remote search failed", zap.Error(err))
			return []models.Record{}, nil
		}
	}

	if err := r.writeThrough(ctx, record); err != nil {
		return nil, err
	}
	return models.FilterByTags([]models.Record{*record}, o.tags), nil
}

// writeThrough stores a remotely resolved record without a ledger row
func (r *Repository) writeThrough(ctx context.Context, record *models.Record) error {
	if time.Time(record.FetchedAt).IsZero() {
		record.FetchedAt = strfmt.DateTime(r.now())
	}
	if err := r.store.Upsert(ctx, *record); err != nil {
		r.logger.Error("write-through failed", zap.Int("id", record.ID), zap.Error(err))
		return errors.NewStoreError("upsert", err)
	}
	r.logger.Debug("record written through", zap.Int("id", record.ID))
	return nil
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package pagecache

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/paging"
	"github.com/suparena/pagecache/remote"
	"github.com/suparena/pagecache/remote/httpsource"
	"github.com/suparena/pagecache/repository"

	// store drivers
	_ "github.com/suparena/pagecache/localstore/ddb"
	_ "github.com/suparena/pagecache/localstore/mock"
	_ "github.com/suparena/pagecache/localstore/sqlite"
)

// Engine owns the remote source, the store and the repository built on them.
// Named views are kept so that callers asking for the same view again get
// the same pager, with its loaded window and load states.
type Engine struct {
	cfg    config.Config
	logger *zap.Logger
	remote remote.Source
	store  localstore.Store
	repo   *repository.Repository

	mu    sync.RWMutex
	views map[string]*paging.Pager
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	source remote.Source
}

// WithSource replaces the HTTP source built from the configuration
func WithSource(s remote.Source) Option {
	return func(o *engineOptions) {
		o.source = s
	}
}

// Open builds an Engine from cfg. The store is opened with the configured
// driver; the remote is the HTTP collection API behind a retrying transport.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	source := o.source
	if source == nil {
		hc := &http.Client{
			Timeout: cfg.Remote.Timeout,
			Transport: httpsource.NewRetryTransport(nil,
				httpsource.WithMaxRetries(cfg.Remote.MaxRetries),
				httpsource.WithRetryBackoff(cfg.Remote.RetryBackoff),
				httpsource.WithRetryLogger(logger.Named("http"))),
		}
		client, err := httpsource.New(cfg.Remote.BaseURL,
			httpsource.WithHTTPClient(hc),
			httpsource.WithCollection(cfg.Remote.Collection),
			httpsource.WithArtworkBase(cfg.Remote.ArtworkBase),
			httpsource.WithUserAgent(cfg.Remote.UserAgent+"/"+Version),
			httpsource.WithLogger(logger.Named("remote")))
		if err != nil {
			return nil, err
		}
		source = client
	}

	store, err := localstore.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	repo := repository.New(source, store,
		repository.WithPagingConfig(paging.FromConfig(cfg.Paging)),
		repository.WithMaxConcurrency(cfg.Paging.MaxConcurrency),
		repository.WithLogger(logger))

	logger.Info("engine opened",
		zap.String("driver", cfg.Store.Driver),
		zap.String("remote", cfg.Remote.BaseURL),
		zap.String("version", Version))

	return &Engine{
		cfg:    cfg,
		logger: logger,
		remote: source,
		store:  store,
		repo:   repo,
		views:  make(map[string]*paging.Pager),
	}, nil
}

// Repository returns the repository
func (e *Engine) Repository() *repository.Repository {
	return e.repo
}

// Store returns the local store
func (e *Engine) Store() localstore.Store {
	return e.store
}

// Config returns the configuration the engine was opened with
func (e *Engine) Config() config.Config {
	return e.cfg
}

// View returns the pager registered under name, creating it on first use.
func (e *Engine) View(name string) (*paging.Pager, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "must not be empty")
	}

	e.mu.RLock()
	p, exists := e.views[name]
	e.mu.RUnlock()
	if exists {
		return p, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, exists := e.views[name]; exists {
		return p, nil
	}
	p = e.repo.ObservePagedCollection()
	e.views[name] = p
	return p, nil
}

// RemoveView forgets the pager registered under name
func (e *Engine) RemoveView(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.views[name]; !exists {
		return errors.NewNotFoundError("view", name)
	}
	delete(e.views, name)
	return nil
}

// Stats summarises the cache
type Stats struct {
	Driver  string `json:"driver" yaml:"driver"`
	Records int    `json:"records" yaml:"records"`
	Views   int    `json:"views" yaml:"views"`
}

// Stats returns the cache statistics
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	n, err := e.store.Count(ctx)
	if err != nil {
		return Stats{}, errors.NewStoreError("count", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Driver: e.cfg.Store.Driver, Records: n, Views: len(e.views)}, nil
}

// Close closes the store
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	return e.store.Close()
}

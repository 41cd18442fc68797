/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package localstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
)

// OpenFunc opens a Store from its configuration.
type OpenFunc func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes a backend available under name.
// If a driver is already registered under name, it panics to prevent accidental overrides.
func Register(name string, fn OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if fn == nil {
		panic(fmt.Sprintf("localstore: Register driver %q with nil OpenFunc", name))
	}
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("localstore: driver %q already registered", name))
	}
	drivers[name] = fn
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open opens the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	driversMu.RLock()
	fn, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, errors.NewValidationError("store.driver",
			fmt.Sprintf("unknown driver %q (registered: %v)", cfg.Driver, Drivers()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := fn(ctx, cfg, logger.With(zap.String("driver", cfg.Driver)))
	if err != nil {
		return nil, errors.NewStoreError("open", err)
	}
	return store, nil
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package paging

import (
	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/models"
)

// Config holds the paging constants
type Config struct {
	// PageSize is the number of records read from the store per local page.
	PageSize int
	// PrefetchDistance is how close to the loaded end a read triggers the next load.
	PrefetchDistance int
	// InitialLoadSize is the size of the first window.
	InitialLoadSize int
}

// DefaultConfig returns PageSize 20, PrefetchDistance 3 and InitialLoadSize 60.
func DefaultConfig() Config {
	return Config{
		PageSize:         config.DefaultPageSize,
		PrefetchDistance: config.DefaultPrefetchDistance,
		InitialLoadSize:  3 * config.DefaultPageSize,
	}
}

// FromConfig builds a Config from the engine configuration
func FromConfig(cfg config.PagingConfig) Config {
	return Config{
		PageSize:         cfg.PageSize,
		PrefetchDistance: cfg.PrefetchDistance,
		InitialLoadSize:  cfg.InitialLoadSize,
	}.normalized()
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PrefetchDistance < 0 {
		c.PrefetchDistance = d.PrefetchDistance
	}
	if c.InitialLoadSize <= 0 {
		c.InitialLoadSize = 3 * c.PageSize
	}
	return c
}

// FilterTags keeps the records carrying any of tags. No tags keeps everything.
func FilterTags(records []models.Record, tags []string) []models.Record {
	return models.FilterByTags(records, tags)
}

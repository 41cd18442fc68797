/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package localstore

import (
	"context"
	"strings"

	"github.com/suparena/pagecache/models"
)

// Writer holds the mutating operations. Inside RunTransaction the Writer is
// bound to the open transaction.
type Writer interface {
	// Upsert inserts or fully replaces one record. Its ledger row is kept.
	Upsert(ctx context.Context, record models.Record) error

	UpsertMany(ctx context.Context, records []models.Record) error

	// Clear removes every record and, with them, every ledger row.
	Clear(ctx context.Context) error

	// UpsertKeysMany writes ledger rows. The records must already exist.
	UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error

	ClearKeys(ctx context.Context) error
}

// Store is the local cache of records and remote keys.
type Store interface {
	Writer

	// Window returns up to limit records starting at position offset,
	// ordered by identity ascending.
	Window(ctx context.Context, offset, limit int) ([]models.Record, error)

	// Get returns the record for id, or nil, nil when absent.
	Get(ctx context.Context, id int) (*models.Record, error)

	// SearchByNameOrID returns the records whose name contains text
	// (case-insensitive) or whose identity equals text parsed as an integer.
	SearchByNameOrID(ctx context.Context, text string) ([]models.Record, error)

	Count(ctx context.Context) (int, error)

	// KeysFor returns the ledger row for id, or nil, nil when absent.
	KeysFor(ctx context.Context, id int) (*models.RemoteKeys, error)

	// RunTransaction commits when fn returns nil and rolls back when it
	// returns an error or panics. A panic is re-raised after the rollback.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, w Writer) error) error

	Close() error
}

// Matcher returns the in-memory form of the SearchByNameOrID predicate, for
// backends that cannot push the filter down.
func Matcher(text string) func(models.Record) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	id, isID := models.ParseID(text)
	return func(r models.Record) bool {
		if isID && r.ID == id {
			return true
		}
		return needle != "" && strings.Contains(strings.ToLower(r.Name), needle)
	}
}

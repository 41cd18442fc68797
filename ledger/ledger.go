/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package ledger maps cached records to the remote page positions around the
// page that produced them, so APPEND resumes where the last fetch stopped.
package ledger

import (
	"context"

	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
)

// ForPage returns the ledger rows of one fetched page. Every row of a page
// carries the same keys.
func ForPage(page int, hasMore bool, ids []int) []models.RemoteKeys {
	var prev, next *int
	if page > 0 {
		prev = models.IntPtr(page - 1)
	}
	if hasMore {
		next = models.IntPtr(page + 1)
	}

	keys := make([]models.RemoteKeys, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, models.RemoteKeys{RecordID: id, PrevKey: prev, NextKey: next})
	}
	return keys
}

// RefreshPage returns the page a REFRESH anchored on entry should fetch:
// the page that produced entry, or page 0 without one. The producing page is
// derived from PrevKey alone; Advance moves NextKey past pages that
// contributed no records.
func RefreshPage(entry *models.RemoteKeys) int {
	if entry == nil || entry.PrevKey == nil {
		return 0
	}
	return *entry.PrevKey + 1
}

// AppendPage returns the page following entry. ok is false when there is no
// entry or the remote collection is exhausted.
func AppendPage(entry *models.RemoteKeys) (page int, ok bool) {
	if entry == nil || entry.NextKey == nil {
		return 0, false
	}
	return *entry.NextKey, true
}

// Advance returns entry pointing past the consumed page. It is used when a
// page contributed no records, so there are no rows of its own to carry its keys.
// PrevKey keeps naming the page before the one that produced entry.
func Advance(entry models.RemoteKeys, page int, hasMore bool) models.RemoteKeys {
	entry.NextKey = nil
	if hasMore {
		entry.NextKey = models.IntPtr(page + 1)
	}
	return entry
}

// Ledger reads ledger rows from a store.
type Ledger struct {
	store localstore.Store
}

// New creates a Ledger over store.
func New(store localstore.Store) *Ledger {
	return &Ledger{store: store}
}

// ClosestTo returns the ledger row of the record closest to the anchor, or
// nil when there is no anchor or it has no row.
func (l *Ledger) ClosestTo(ctx context.Context, anchorID *int) (*models.RemoteKeys, error) {
	if anchorID == nil {
		return nil, nil
	}
	return l.store.KeysFor(ctx, *anchorID)
}

// ForLastItem returns the ledger row of the last loaded record, or nil.
func (l *Ledger) ForLastItem(ctx context.Context, lastID *int) (*models.RemoteKeys, error) {
	if lastID == nil {
		return nil, nil
	}
	return l.store.KeysFor(ctx, *lastID)
}

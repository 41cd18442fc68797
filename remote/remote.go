/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package remote

import (
	"context"

	"github.com/suparena/pagecache/models"
)

// Source is the read-only remote side of the collection.
//
// Implementations fail with errors.TransientFetchError on network and timeout
// conditions and with errors.NotFoundError when the remote has no such
// identity or name. They neither cache nor retry.
type Source interface {
	// FetchPage returns up to limit summaries starting at offset.
	FetchPage(ctx context.Context, limit, offset int) (*models.PageResult, error)

	// FetchDetail returns the full record for id.
	FetchDetail(ctx context.Context, id int) (*models.Record, error)

	// FetchByName returns the full record whose name matches.
	FetchByName(ctx context.Context, name string) (*models.Record, error)
}

/*
Package localstore defines the durable local cache of the pagecache engine.

A Store holds fully-resolved records plus the ledger side-table of remote keys.
Records are read through a position-ordered window (identity ascending), by
identity, or by a name/identity search. Every multi-row change made by the
mediator runs inside RunTransaction so readers never observe a cleared but not
yet repopulated cache.

Backends register themselves by driver name:

	import _ "github.com/suparena/pagecache/localstore/sqlite"

	store, err := localstore.Open(ctx, cfg.Store, logger)

Available drivers: sqlite (durable file), dynamodb (single-table), memory (tests).
*/
package localstore

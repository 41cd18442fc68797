/*
Package pagecache is an offline-first cache for remotely paged collections.

A collection served page by page over HTTP is mirrored into a local store
(SQLite, DynamoDB or memory). Readers page through the local copy; reads
close to the end of the cached data pull the next remote page in, and a
refresh replaces the cache atomically. Lookups by identity and free-text
search are answered locally first and fall back to the remote, writing the
result through to the cache.

The engine is composed of:
  - remote: the remote collection (remote/httpsource for the HTTP API)
  - localstore: the durable cache and its page ledger
  - mediator: REFRESH, PREPEND and APPEND loads into the cache
  - paging: the position-based cursor over the cache
  - repository: paged views, lookup and search

Basic Usage:

	cfg, err := config.Load("pagecache.yaml")
	if err != nil {
		return err
	}
	engine, err := pagecache.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	for record, err := range engine.Repository().ObservePagedCollection().All(ctx) {
		if err != nil {
			return err
		}
		fmt.Println(record.ID, record.Name)
	}

	pikachu, err := engine.Repository().LookupByID(ctx, 25)
*/
package pagecache

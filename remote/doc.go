/*
Package remote defines the contract of the remote collection source.

The main interface is Source:

	type Source interface {
	    FetchPage(ctx context.Context, limit, offset int) (*models.PageResult, error)
	    FetchDetail(ctx context.Context, id int) (*models.Record, error)
	    FetchByName(ctx context.Context, name string) (*models.Record, error)
	}

Implementations:
  - httpsource: JSON-over-HTTP client for offset/limit collection APIs
  - mock: scripted in-memory source for testing
*/
package remote

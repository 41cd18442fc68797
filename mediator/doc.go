/*
Package mediator fills the local store from the remote source when a paging
cursor reaches a boundary.

A load is one of three types:

	Refresh{AnchorID}  refetch the page of the anchor record, replacing the whole cache
	Prepend{}          always end of pagination; the remote cursor only moves forward
	Append{LastID}     fetch the page after the last loaded record

Each fetched page fans out one detail request per summary. A failed detail
drops that record only; the page is still merged and consumed. The merge of
records and their ledger rows is one store transaction and runs to completion
even when the caller's context is cancelled.
*/
package mediator

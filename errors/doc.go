/*
Package errors provides the error taxonomy for pagecache.

Every failure the engine reports falls into one of a few semantic kinds that
can be checked with the standard errors.Is() function or the helpers below:

	var (
	    ErrNotFound          = errors.New("record not found")
	    ErrTransient         = errors.New("transient fetch failure")
	    ErrStore             = errors.New("store failure")
	    ErrPartialResolution = errors.New("partial resolution")
	    ErrInvalidInput      = errors.New("invalid input")
	    ErrConditionFailed   = errors.New("condition check failed")
	)

Propagation rules:
  - TransientFetchError: network or timeout failure, retryable by the caller.
    A list fetch failing this way aborts the whole load.
  - NotFoundError: the remote side confirms absence. Lookups also normalize
    remote failures into a NotFoundError whose Cause keeps the original error.
  - StoreError: local durability failure. Always propagated.
  - PartialResolutionWarning: one record of a page could not be resolved. It
    is logged and the record is left out of the merge.

Usage:

	rec, err := repo.LookupByID(ctx, 25)
	if err != nil {
	    if errors.IsNotFound(err) && errors.IsTransient(err) {
	        // remote was unreachable; the record may exist
	    }
	    return err
	}
*/
package errors

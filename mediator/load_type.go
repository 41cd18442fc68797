/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mediator

// LoadType is one of Refresh, Prepend or Append.
type LoadType interface {
	String() string
	isLoadType()
}

// Refresh replaces the cache with the page of the record closest to AnchorID.
// A nil AnchorID refreshes from the first page.
type Refresh struct {
	AnchorID *int
}

// Prepend requests data before the first loaded page.
type Prepend struct{}

// Append requests the page after the record LastID.
type Append struct {
	LastID *int
}

func (Refresh) String() string { return "REFRESH" }
func (Prepend) String() string { return "PREPEND" }
func (Append) String() string  { return "APPEND" }

func (Refresh) isLoadType() {}
func (Prepend) isLoadType() {}
func (Append) isLoadType()  {}

// InitializeAction is the one-time cold start decision
type InitializeAction int

const (
	// LaunchInitialRefresh means the cache is empty and must be filled first
	LaunchInitialRefresh InitializeAction = iota
	// SkipInitialRefresh means the cache is trusted as is
	SkipInitialRefresh
)

func (a InitializeAction) String() string {
	switch a {
	case LaunchInitialRefresh:
		return "LAUNCH_INITIAL_REFRESH"
	case SkipInitialRefresh:
		return "SKIP_INITIAL_REFRESH"
	default:
		return "UNKNOWN"
	}
}

// Result describes a completed load.
type Result struct {
	// EndOfPagination reports that no further page exists in the load's direction.
	EndOfPagination bool
	// Page is the remote page position fetched, when a fetch happened.
	Page int
	// Merged is the number of records written to the store.
	Merged int
	// Dropped is the number of summaries whose detail could not be resolved.
	Dropped int
}

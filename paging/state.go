/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package paging

// Status is the state of one load direction
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
	StatusEndOfPagination
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusEndOfPagination:
		return "end_of_pagination"
	default:
		return "unknown"
	}
}

// LoadState is the status of one load type, with the error of a failed load
type LoadState struct {
	Status Status
	Err    error
}

// LoadStates holds the state of every load type
type LoadStates struct {
	Refresh LoadState
	Prepend LoadState
	Append  LoadState
}

// EventKind identifies a pager event
type EventKind int

const (
	// EventLoadStarted is sent before a mediator load
	EventLoadStarted EventKind = iota
	// EventLoadFinished is sent after a successful mediator load
	EventLoadFinished
	// EventLoadFailed is sent after a failed mediator load
	EventLoadFailed
	// EventInvalidated is sent when the loaded window was re-read from the store
	EventInvalidated
)

func (k EventKind) String() string {
	switch k {
	case EventLoadStarted:
		return "load_started"
	case EventLoadFinished:
		return "load_finished"
	case EventLoadFailed:
		return "load_failed"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers
type Event struct {
	Kind EventKind
	// LoadType is REFRESH, PREPEND or APPEND for load events.
	LoadType string
	// Len is the number of loaded records after the event.
	Len int
	Err error
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package models

import (
	"strconv"
	"strings"
)

// Summary is a partial record returned by the list endpoint.
type Summary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PageResult is one page of the remote list endpoint.
type PageResult struct {
	// Summaries in remote order.
	Summaries []Summary
	// HasMore reports whether a following page exists.
	HasMore bool
	// Total is the remote collection size as reported by the source, if known.
	Total int
}

// RemoteKeys is the ledger row of a cached record.
type RemoteKeys struct {
	RecordID int  `json:"recordId"`
	PrevKey  *int `json:"prevKey,omitempty"`
	NextKey  *int `json:"nextKey,omitempty"`
}

// Offset returns the remote offset of a zero-based page position.
func Offset(page, pageSize int) int {
	return page * pageSize
}

// ParseID parses text as a record identity.
func ParseID(text string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return id, true
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

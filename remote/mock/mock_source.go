/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides a scripted remote.Source for testing
package mock

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/models"
)

// Source is an in-memory remote.Source. Pages are cut from the records in
// insertion order.
type Source struct {
	mu           sync.RWMutex
	order        []int
	records      map[int]models.Record
	pageError    error
	failAll      error
	detailErrors map[int]error
	nameErrors   map[string]error
	detailHook   func(ctx context.Context, id int)

	pageCalls   atomic.Int64
	detailCalls atomic.Int64
	nameCalls   atomic.Int64
}

// New creates an empty Source
func New() *Source {
	return &Source{
		records:      make(map[int]models.Record),
		detailErrors: make(map[int]error),
		nameErrors:   make(map[string]error),
	}
}

// WithRecords appends records in the order given
func (s *Source) WithRecords(records ...models.Record) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, exists := s.records[r.ID]; !exists {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
	return s
}

// WithSequentialRecords appends records with identities from..to inclusive
func (s *Source) WithSequentialRecords(from, to int) *Source {
	records := make([]models.Record, 0, to-from+1)
	for id := from; id <= to; id++ {
		records = append(records, Record(id))
	}
	return s.WithRecords(records...)
}

// WithPageError makes FetchPage fail
func (s *Source) WithPageError(err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageError = err
	return s
}

// WithDetailError makes FetchDetail fail for id
func (s *Source) WithDetailError(id int, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailErrors[id] = err
	return s
}

// WithByNameError makes FetchByName fail for name
func (s *Source) WithByNameError(name string, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameErrors[strings.ToLower(name)] = err
	return s
}

// WithFailAll makes every call fail with err. A nil err clears it.
func (s *Source) WithFailAll(err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
	return s
}

// WithDetailHook runs f at the start of every FetchDetail call
func (s *Source) WithDetailHook(f func(ctx context.Context, id int)) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailHook = f
	return s
}

// FetchPage returns up to limit summaries starting at offset
func (s *Source) FetchPage(ctx context.Context, limit, offset int) (*models.PageResult, error) {
	s.pageCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failAll != nil {
		return nil, s.failAll
	}
	if s.pageError != nil {
		return nil, s.pageError
	}

	page := &models.PageResult{Total: len(s.order)}
	if offset >= len(s.order) || limit <= 0 {
		return page, nil
	}
	end := min(offset+limit, len(s.order))
	for _, id := range s.order[offset:end] {
		page.Summaries = append(page.Summaries, models.Summary{ID: id, Name: s.records[id].Name})
	}
	page.HasMore = offset+limit < len(s.order)
	return page, nil
}

// FetchDetail returns the record for id
func (s *Source) FetchDetail(ctx context.Context, id int) (*models.Record, error) {
	s.detailCalls.Add(1)

	s.mu.RLock()
	hook := s.detailHook
	s.mu.RUnlock()
	if hook != nil {
		hook(ctx, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failAll != nil {
		return nil, s.failAll
	}
	if err, ok := s.detailErrors[id]; ok {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("record", strconv.Itoa(id))
	}
	return &r, nil
}

// FetchByName returns the record whose lower-cased name matches
func (s *Source) FetchByName(ctx context.Context, name string) (*models.Record, error) {
	s.nameCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failAll != nil {
		return nil, s.failAll
	}
	if err, ok := s.nameErrors[name]; ok {
		return nil, err
	}
	for _, id := range s.order {
		if strings.ToLower(s.records[id].Name) == name {
			r := s.records[id]
			return &r, nil
		}
	}
	return nil, errors.NewNotFoundError("record", name)
}

// PageCalls returns the number of FetchPage calls
func (s *Source) PageCalls() int { return int(s.pageCalls.Load()) }

// DetailCalls returns the number of FetchDetail calls
func (s *Source) DetailCalls() int { return int(s.detailCalls.Load()) }

// NameCalls returns the number of FetchByName calls
func (s *Source) NameCalls() int { return int(s.nameCalls.Load()) }

// Record builds a deterministic record for id
func Record(id int) models.Record {
	return models.Record{
		ID:       id,
		Name:     "record-" + strconv.Itoa(id),
		ImageRef: "https://artwork.test/" + strconv.Itoa(id) + ".png",
		Tags:     []string{"normal"},
		Height:   id,
		Weight:   id * 10,
		Attributes: []models.Attribute{
			{Name: "hp", Value: 40 + id%50},
		},
	}
}

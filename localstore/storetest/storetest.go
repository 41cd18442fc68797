/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package storetest is a conformance suite run by every localstore backend.
package storetest

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
)

// RecordComparer compares records field by field; FetchedAt compares as an instant.
var RecordComparer = cmp.Options{
	cmp.Comparer(func(a, b strfmt.DateTime) bool {
		return time.Time(a).Equal(time.Time(b))
	}),
	cmpopts.EquateEmpty(),
}

// Record builds a deterministic test record.
func Record(id int, name string) models.Record {
	return models.Record{
		ID:       id,
		Name:     name,
		ImageRef: "https://artwork.test/" + name + ".png",
		Tags:     []string{"grass", "poison"},
		Height:   7,
		Weight:   69,
		Attributes: []models.Attribute{
			{Name: "hp", Value: 45},
			{Name: "attack", Value: 49},
		},
		FetchedAt: strfmt.DateTime(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

// Run runs the conformance suite. open must return a new, empty store.
func Run(t *testing.T, open func(t *testing.T) localstore.Store) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("UpsertAndGet", func(t *testing.T) { testUpsertAndGet(t, open(t)) })
	t.Run("UpsertReplaces", func(t *testing.T) { testUpsertReplaces(t, open(t)) })
	t.Run("Window", func(t *testing.T) { testWindow(t, open(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, open(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, open(t)) })
	t.Run("UpsertKeepsKeys", func(t *testing.T) { testUpsertKeepsKeys(t, open(t)) })
	t.Run("ClearKeys", func(t *testing.T) { testClearKeys(t, open(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open(t)) })
	t.Run("TransactionCommit", func(t *testing.T) { testTransactionCommit(t, open(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTransactionRollback(t, open(t)) })
	t.Run("TransactionPanic", func(t *testing.T) { testTransactionPanic(t, open(t)) })
	t.Run("TransactionIsolation", func(t *testing.T) { testTransactionIsolation(t, open(t)) })
	t.Run("ReadersDuringCommit", func(t *testing.T) { testReadersDuringCommit(t, open(t)) })
}

func seed(t *testing.T, s localstore.Store, records ...models.Record) {
	t.Helper()
	require.NoError(t, s.UpsertMany(context.Background(), records))
}

func ids(records []models.Record) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func testGetMissing(t *testing.T, s localstore.Store) {
	ctx := context.Background()

	r, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, r)

	k, err := s.KeysFor(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, k)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testUpsertAndGet(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	want := Record(1, "bulbasaur")
	require.NoError(t, s.Upsert(ctx, want))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(want, *got, RecordComparer); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func testUpsertReplaces(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "bulbasaur"))

	replacement := models.Record{ID: 1, Name: "a"}
	require.NoError(t, s.Upsert(ctx, replacement))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(replacement, *got, RecordComparer); diff != "" {
		t.Errorf("Upsert should fully replace the record (-want +got):\n%s", diff)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testWindow(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(5, "e"), Record(1, "a"), Record(3, "c"), Record(2, "b"), Record(4, "d"))

	first, err := s.Window(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(first))

	rest, err := s.Window(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, ids(rest))

	past, err := s.Window(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testSearch(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s,
		Record(1, "bulbasaur"),
		Record(2, "ivysaur"),
		Record(25, "pikachu"),
		Record(122, "mr-mime"),
		Record(669, "Flabébé"),
	)

	tests := []struct {
		name string
		text string
		want []int
	}{
		{"case insensitive contains", "SAUR", []int{1, 2}},
		{"identity", "25", []int{25}},
		{"identity or name", "2", []int{2}},
		{"no match", "charizard", []int{}},
		{"percent is literal", "%", []int{}},
		{"underscore is literal", "mr_mime", []int{}},
		{"dash", "mr-", []int{122}},
		{"non-ASCII upper case", "FLABÉBÉ", []int{669}},
		{"non-ASCII lower case", "flabébé", []int{669}},
		{"non-ASCII fragment", "BÉB", []int{669}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchByNameOrID(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testKeys(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"), Record(2, "b"))

	keys := []models.RemoteKeys{
		{RecordID: 1, PrevKey: nil, NextKey: models.IntPtr(1)},
		{RecordID: 2, PrevKey: models.IntPtr(3), NextKey: nil},
	}
	require.NoError(t, s.UpsertKeysMany(ctx, keys))

	for _, want := range keys {
		got, err := s.KeysFor(ctx, want.RecordID)
		require.NoError(t, err)
		require.NotNil(t, got)
		if diff := cmp.Diff(want, *got); diff != "" {
			t.Errorf("KeysFor(%d) mismatch (-want +got):\n%s", want.RecordID, diff)
		}
	}
}

func testUpsertKeepsKeys(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"))
	require.NoError(t, s.UpsertKeysMany(ctx, []models.RemoteKeys{{RecordID: 1, NextKey: models.IntPtr(1)}}))

	require.NoError(t, s.Upsert(ctx, Record(1, "a-refetched")))

	k, err := s.KeysFor(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, k, "write-through must not drop the ledger row")
	assert.Equal(t, 1, *k.NextKey)
}

func testClearKeys(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"))
	require.NoError(t, s.UpsertKeysMany(ctx, []models.RemoteKeys{{RecordID: 1}}))

	require.NoError(t, s.ClearKeys(ctx))

	k, err := s.KeysFor(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, k)

	r, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, r, "ClearKeys must keep records")
}

func testClear(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"), Record(2, "b"))
	require.NoError(t, s.UpsertKeysMany(ctx, []models.RemoteKeys{{RecordID: 1}, {RecordID: 2}}))

	require.NoError(t, s.Clear(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	k, err := s.KeysFor(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, k)
}

func testTransactionCommit(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "old-1"), Record(2, "old-2"), Record(3, "old-3"))

	err := s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		if err := w.Clear(ctx); err != nil {
			return err
		}
		if err := w.ClearKeys(ctx); err != nil {
			return err
		}
		if err := w.UpsertMany(ctx, []models.Record{Record(10, "new-10"), Record(11, "new-11")}); err != nil {
			return err
		}
		return w.UpsertKeysMany(ctx, []models.RemoteKeys{{RecordID: 10}, {RecordID: 11}})
	})
	require.NoError(t, err)

	all, err := s.Window(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, ids(all))

	for _, id := range []int{10, 11} {
		k, err := s.KeysFor(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, k)
	}
}

func testTransactionRollback(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"), Record(2, "b"))
	boom := stderrors.New("boom")

	err := s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		if err := w.Clear(ctx); err != nil {
			return err
		}
		if err := w.Upsert(ctx, Record(9, "z")); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	all, err := s.Window(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids(all), "rolled back transaction must leave the store unchanged")
}

func testTransactionPanic(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"))

	func() {
		defer func() {
			assert.Equal(t, "kaboom", recover())
		}()
		_ = s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
			if err := w.Clear(ctx); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// testTransactionIsolation checks that a reader running while a clearing
// transaction is open sees either the old or the new state, never the empty one.
func testTransactionIsolation(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	seed(t, s, Record(1, "a"), Record(2, "b"), Record(3, "c"))

	observed := make(chan int, 1)
	err := s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		if err := w.Clear(ctx); err != nil {
			return err
		}
		go func() {
			n, err := s.Count(context.Background())
			if err != nil {
				n = -1
			}
			observed <- n
		}()
		return w.UpsertMany(ctx, []models.Record{Record(7, "x"), Record(8, "y")})
	})
	require.NoError(t, err)

	select {
	case n := <-observed:
		assert.Contains(t, []int{2, 3}, n, "reader observed a partial transaction")
	case <-time.After(5 * time.Second):
		t.Fatal("reader blocked after commit")
	}
}

// testReadersDuringCommit keeps a reader busy while transactions replace the
// whole content, so reads overlap every commit phase.
func testReadersDuringCommit(t *testing.T, s localstore.Store) {
	ctx := context.Background()
	before := []models.Record{Record(1, "a"), Record(2, "b"), Record(3, "c")}
	after := []models.Record{Record(7, "x"), Record(8, "y")}
	seed(t, s, before...)

	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		for reads := 0; ; reads++ {
			select {
			case <-done:
				if reads > 0 {
					return nil
				}
			default:
			}

			records, err := s.Window(ctx, 0, 10)
			if err != nil {
				return err
			}
			if got := ids(records); !slices.Equal(got, ids(before)) && !slices.Equal(got, ids(after)) {
				return fmt.Errorf("reader observed a partial transaction: %v", got)
			}
			n, err := s.Count(ctx)
			if err != nil {
				return err
			}
			if n != len(before) && n != len(after) {
				return fmt.Errorf("reader counted a partial transaction: %d", n)
			}
		}
	})

	var commitErrs []error
	for i := range 5 {
		content := after
		if i%2 == 1 {
			content = before
		}
		err := s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
			if err := w.Clear(ctx); err != nil {
				return err
			}
			return w.UpsertMany(ctx, content)
		})
		commitErrs = append(commitErrs, err)
	}
	close(done)

	require.NoError(t, g.Wait())
	for _, err := range commitErrs {
		assert.NoError(t, err)
	}
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	storemock "github.com/suparena/pagecache/localstore/mock"
	"github.com/suparena/pagecache/localstore/sqlite"
	"github.com/suparena/pagecache/localstore/storetest"
	"github.com/suparena/pagecache/models"
	"github.com/suparena/pagecache/paging"
	remotemock "github.com/suparena/pagecache/remote/mock"
)

var (
	errUnreachable = errors.NewTransientFetchError("fetch", stderrors.New("connection refused"))
	fixedNow       = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newRepo(t *testing.T, source *remotemock.Source, store localstore.Store) *Repository {
	t.Helper()
	return New(source, store,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }))
}

func openSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLookupByIDCacheHit(t *testing.T) {
	ctx := context.Background()
	store := storemock.New()
	require.NoError(t, store.Upsert(ctx, models.Record{ID: 1, Name: "a"}))
	source := remotemock.New().WithFailAll(errUnreachable)

	r, err := newRepo(t, source, store).LookupByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ID)
	assert.Equal(t, "a", r.Name)
	assert.Equal(t, 0, source.DetailCalls())
}

func TestLookupByIDWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	source := remotemock.New().WithSequentialRecords(1, 10)
	repo := newRepo(t, source, store)

	r, err := repo.LookupByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "record-7", r.Name)
	assert.Equal(t, strfmt.DateTime(fixedNow), r.FetchedAt)

	cached, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, cached)
	if diff := cmp.Diff(r, cached, storetest.RecordComparer); diff != "" {
		t.Errorf("cached record differs (-remote +cached):\n%s", diff)
	}

	keys, err := store.KeysFor(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, keys, "write-through records have no ledger row")

	_, err = repo.LookupByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, source.DetailCalls())
}

func TestLookupByIDNotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("Absent", func(t *testing.T) {
		_, err := newRepo(t, remotemock.New(), storemock.New()).LookupByID(ctx, 99)
		assert.True(t, errors.IsNotFound(err))
		assert.False(t, errors.IsTransient(err))
	})

	t.Run("Unreachable", func(t *testing.T) {
		store := storemock.New()
		source := remotemock.New().WithSequentialRecords(1, 3).WithFailAll(errUnreachable)
		_, err := newRepo(t, source, store).LookupByID(ctx, 2)
		assert.True(t, errors.IsNotFound(err))
		assert.True(t, errors.IsTransient(err))
		assert.Empty(t, store.Records())
	})
}

func TestLookupByIDStoreFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		source := remotemock.New().WithSequentialRecords(1, 3)
		_, err := newRepo(t, source, storemock.New().WithGetError(stderrors.New("disk"))).LookupByID(ctx, 1)
		assert.True(t, errors.IsStoreError(err))
		assert.Equal(t, 0, source.DetailCalls())
	})

	t.Run("WriteThrough", func(t *testing.T) {
		source := remotemock.New().WithSequentialRecords(1, 3)
		_, err := newRepo(t, source, storemock.New().WithUpsertError(stderrors.New("disk"))).LookupByID(ctx, 1)
		assert.True(t, errors.IsStoreError(err))
	})
}

func TestSearchByNumberFallsBackToIdentity(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	source := remotemock.New().WithSequentialRecords(1, 30)
	repo := newRepo(t, source, store)

	results, err := repo.Search(ctx, "25")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 25, results[0].ID)
	assert.Equal(t, 1, source.NameCalls())
	assert.Equal(t, 1, source.DetailCalls())

	r, err := repo.LookupByID(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, r.ID)
	assert.Equal(t, 1, source.DetailCalls(), "the searched record is served from cache")
}

func TestSearchLocalFirst(t *testing.T) {
	ctx := context.Background()
	store := storemock.New()
	require.NoError(t, store.UpsertMany(ctx, []models.Record{
		{ID: 1, Name: "bulbasaur", Tags: []string{"grass"}},
		{ID: 2, Name: "ivysaur", Tags: []string{"grass"}},
		{ID: 4, Name: "charmander", Tags: []string{"fire"}},
	}))
	source := remotemock.New().WithFailAll(errUnreachable)
	repo := newRepo(t, source, store)

	results, err := repo.Search(ctx, "  SAUR ")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = repo.Search(ctx, "4")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "charmander", results[0].Name)

	results, err = repo.Search(ctx, "saur", WithTags("fire"))
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 0, source.NameCalls()+source.DetailCalls())
}

func TestSearchByName(t *testing.T) {
	ctx := context.Background()
	store := storemock.New()
	source := remotemock.New().WithRecords(models.Record{ID: 25, Name: "pikachu", Tags: []string{"electric"}})
	repo := newRepo(t, source, store)

	results, err := repo.Search(ctx, "Pikachu")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 25, results[0].ID)
	assert.Equal(t, 0, source.DetailCalls())
	assert.Len(t, store.Records(), 1)

	results, err = repo.Search(ctx, "pika", WithTags("electric"))
	require.NoError(t, err)
	assert.Len(t, results, 1, "written-through record is found locally")
	assert.Equal(t, 1, source.NameCalls())
}

func TestSearchSwallowsRemoteFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		text        string
		source      *remotemock.Source
		detailCalls int
	}{
		{
			name:   "blank",
			text:   "   ",
			source: remotemock.New(),
		},
		{
			name:   "no match",
			text:   "missingno",
			source: remotemock.New().WithSequentialRecords(1, 3),
		},
		{
			name:   "unreachable",
			text:   "pikachu",
			source: remotemock.New().WithFailAll(errUnreachable),
		},
		{
			name:        "unreachable number",
			text:        "25",
			source:      remotemock.New().WithFailAll(errUnreachable),
			detailCalls: 1,
		},
		{
			name:   "non-positive number",
			text:   "-3",
			source: remotemock.New().WithSequentialRecords(1, 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storemock.New()
			results, err := newRepo(t, tt.source, store).Search(ctx, tt.text)
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Empty(t, results)
			assert.Empty(t, store.Records())
			assert.Equal(t, tt.detailCalls, tt.source.DetailCalls())
		})
	}
}

func TestSearchStoreFailure(t *testing.T) {
	ctx := context.Background()
	source := remotemock.New().WithSequentialRecords(1, 3)

	_, err := newRepo(t, source, storemock.New().WithSearchError(stderrors.New("disk"))).Search(ctx, "record")
	assert.True(t, errors.IsStoreError(err))
	assert.Equal(t, 0, source.NameCalls())

	_, err = newRepo(t, source, storemock.New().WithUpsertError(stderrors.New("disk"))).Search(ctx, "record-2")
	assert.True(t, errors.IsStoreError(err))
}

func TestObservePagedCollection(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	source := remotemock.New().WithSequentialRecords(1, 25)
	repo := New(source, store,
		WithLogger(zaptest.NewLogger(t)),
		WithPagingConfig(paging.Config{PageSize: 10, PrefetchDistance: 2, InitialLoadSize: 10}))

	pager := repo.ObservePagedCollection()
	assert.Equal(t, 10, pager.Config().PageSize)

	var got []int
	for r, err := range pager.All(ctx) {
		require.NoError(t, err)
		got = append(got, r.ID)
	}
	require.Len(t, got, 25)
	assert.Equal(t, 3, source.PageCalls())

	// a second view starts from the populated cache
	second := repo.ObservePagedCollection()
	require.NoError(t, second.Start(ctx))
	assert.Equal(t, 10, second.Len())
	assert.Equal(t, 3, source.PageCalls())
}

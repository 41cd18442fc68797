/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ledger

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/pagecache/localstore/mock"
	"github.com/suparena/pagecache/models"
)

func TestForPage(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		hasMore bool
		want    []models.RemoteKeys
	}{
		{
			name:    "first page with more",
			page:    0,
			hasMore: true,
			want: []models.RemoteKeys{
				{RecordID: 1, NextKey: models.IntPtr(1)},
				{RecordID: 2, NextKey: models.IntPtr(1)},
			},
		},
		{
			name:    "only page",
			page:    0,
			hasMore: false,
			want: []models.RemoteKeys{
				{RecordID: 1},
				{RecordID: 2},
			},
		},
		{
			name:    "middle page",
			page:    3,
			hasMore: true,
			want: []models.RemoteKeys{
				{RecordID: 1, PrevKey: models.IntPtr(2), NextKey: models.IntPtr(4)},
				{RecordID: 2, PrevKey: models.IntPtr(2), NextKey: models.IntPtr(4)},
			},
		},
		{
			name:    "last page",
			page:    5,
			hasMore: false,
			want: []models.RemoteKeys{
				{RecordID: 1, PrevKey: models.IntPtr(4)},
				{RecordID: 2, PrevKey: models.IntPtr(4)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForPage(tt.page, tt.hasMore, []int{1, 2})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ForPage mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.Empty(t, ForPage(0, true, nil))
}

func TestRefreshPage(t *testing.T) {
	assert.Equal(t, 0, RefreshPage(nil))
	assert.Equal(t, 4, RefreshPage(&models.RemoteKeys{PrevKey: models.IntPtr(3), NextKey: models.IntPtr(5)}))
	assert.Equal(t, 0, RefreshPage(&models.RemoteKeys{NextKey: models.IntPtr(1)}))
	assert.Equal(t, 6, RefreshPage(&models.RemoteKeys{PrevKey: models.IntPtr(5)}), "last page has no nextKey")
	assert.Equal(t, 0, RefreshPage(&models.RemoteKeys{}))
}

func TestRefreshPageAfterAdvance(t *testing.T) {
	tests := []struct {
		name     string
		produced int
		consumed []int
	}{
		{"first page, one empty page consumed", 0, []int{1}},
		{"first page, two empty pages consumed", 0, []int{1, 2}},
		{"middle page, one empty page consumed", 3, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := ForPage(tt.produced, true, []int{99})[0]
			for _, page := range tt.consumed {
				entry = Advance(entry, page, true)
			}
			assert.Equal(t, tt.produced, RefreshPage(&entry))

			page, ok := AppendPage(&entry)
			assert.True(t, ok)
			assert.Equal(t, tt.consumed[len(tt.consumed)-1]+1, page)
		})
	}
}

func TestAppendPage(t *testing.T) {
	_, ok := AppendPage(nil)
	assert.False(t, ok)

	_, ok = AppendPage(&models.RemoteKeys{PrevKey: models.IntPtr(2)})
	assert.False(t, ok)

	page, ok := AppendPage(&models.RemoteKeys{NextKey: models.IntPtr(3)})
	assert.True(t, ok)
	assert.Equal(t, 3, page)
}

func TestAdvance(t *testing.T) {
	entry := models.RemoteKeys{RecordID: 40, PrevKey: models.IntPtr(0), NextKey: models.IntPtr(2)}

	got := Advance(entry, 2, true)
	assert.Equal(t, 40, got.RecordID)
	assert.Equal(t, 0, *got.PrevKey)
	assert.Equal(t, 3, *got.NextKey)
	assert.Equal(t, 2, *entry.NextKey, "entry must not be modified")

	got = Advance(entry, 2, false)
	assert.Nil(t, got.NextKey)
}

func TestLedgerLookups(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	require.NoError(t, store.UpsertMany(ctx, []models.Record{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}))
	require.NoError(t, store.UpsertKeysMany(ctx, ForPage(0, true, []int{1, 2})))

	l := New(store)

	k, err := l.ClosestTo(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = l.ClosestTo(ctx, models.IntPtr(2))
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.Equal(t, 0, RefreshPage(k))

	k, err = l.ForLastItem(ctx, models.IntPtr(2))
	require.NoError(t, err)
	page, ok := AppendPage(k)
	assert.True(t, ok)
	assert.Equal(t, 1, page)

	k, err = l.ForLastItem(ctx, models.IntPtr(99))
	require.NoError(t, err)
	assert.Nil(t, k)
}

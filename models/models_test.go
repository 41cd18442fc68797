/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeCodec(t *testing.T) {
	attrs := []Attribute{{Name: "hp", Value: 45}, {Name: "attack", Value: 49}}

	s, err := EncodeAttributes(attrs)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"hp","value":45},{"name":"attack","value":49}]`, s)

	back, err := DecodeAttributes(s)
	require.NoError(t, err)
	assert.Equal(t, attrs, back)

	t.Run("Empty", func(t *testing.T) {
		s, err := EncodeAttributes(nil)
		require.NoError(t, err)
		assert.Equal(t, "[]", s)

		got, err := DecodeAttributes("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := DecodeAttributes("{not json")
		assert.Error(t, err)
	})
}

func TestTagCodec(t *testing.T) {
	s, err := EncodeTags([]string{"grass", "poison"})
	require.NoError(t, err)
	assert.Equal(t, `["grass","poison"]`, s)

	tags, err := DecodeTags(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"grass", "poison"}, tags)

	empty, err := EncodeTags(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"25", 25, true},
		{" 7 ", 7, true},
		{"-3", -3, true},
		{"pika", 0, false},
		{"", 0, false},
		{"2.5", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseID(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRecordHelpers(t *testing.T) {
	r := Record{
		ID:         1,
		Name:       "bulbasaur",
		Tags:       []string{"grass", "poison"},
		Height:     7,
		Weight:     69,
		Attributes: []Attribute{{Name: "speed", Value: 45}},
	}

	assert.InDelta(t, 0.7, r.HeightMeters(), 1e-9)
	assert.InDelta(t, 6.9, r.WeightKg(), 1e-9)
	assert.True(t, r.HasAnyTag([]string{"fire", "poison"}))
	assert.False(t, r.HasAnyTag([]string{"fire"}))
	assert.True(t, r.HasAnyTag(nil))

	v, ok := r.Attribute("speed")
	assert.True(t, ok)
	assert.Equal(t, 45, v)
	_, ok = r.Attribute("hp")
	assert.False(t, ok)
}

func TestFilterByTags(t *testing.T) {
	recs := []Record{
		{ID: 1, Tags: []string{"grass"}},
		{ID: 4, Tags: []string{"fire"}},
		{ID: 7, Tags: []string{"water"}},
	}
	got := FilterByTags(recs, []string{"fire", "water"})
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].ID)
	assert.Equal(t, 7, got[1].ID)
	assert.Len(t, FilterByTags(recs, nil), 3)
}

func TestAttributeDisplayName(t *testing.T) {
	assert.Equal(t, "HP", Attribute{Name: "hp"}.DisplayName())
	assert.Equal(t, "Sp. Atk", Attribute{Name: "special-attack"}.DisplayName())
	assert.Equal(t, "Accuracy", Attribute{Name: "accuracy"}.DisplayName())
	assert.Equal(t, "", Attribute{}.DisplayName())
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(0, 20))
	assert.Equal(t, 60, Offset(3, 20))
}

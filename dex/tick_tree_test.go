// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTickTreeToggleAndHas(t *testing.T) {
	tree := newTickTree(60)

	require.False(t, tree.Has(120))
	tree.Toggle(120)
	require.True(t, tree.Has(120))
	tree.Toggle(120)
	require.False(t, tree.Has(120))
}

func TestTickTreeNextAbove(t *testing.T) {
	tree := newTickTree(60)
	for _, tick := range []int32{-887220, -600, -60, 0, 60, 600, 887220} {
		tree.Toggle(tick)
	}

	tests := []struct {
		from int32
		want int32
		ok   bool
	}{
		{-887272, -887220, true},
		{-887220, -600, true},
		{-601, -600, true},
		{-600, -60, true},
		{-1, 0, true},
		{0, 60, true},
		{59, 60, true},
		{60, 600, true},
		{600, 887220, true},
		{887220, 0, false},
	}
	for _, tt := range tests {
		got, ok := tree.NextAbove(tt.from)
		require.Equal(t, tt.ok, ok, "from %d", tt.from)
		if ok {
			require.Equal(t, tt.want, got, "from %d", tt.from)
		}
	}
}

func TestTickTreePrevAtOrBelow(t *testing.T) {
	tree := newTickTree(60)
	for _, tick := range []int32{-887220, -600, 0, 600, 887220} {
		tree.Toggle(tick)
	}

	tests := []struct {
		from int32
		want int32
		ok   bool
	}{
		{887271, 887220, true},
		{887220, 887220, true},
		{887219, 600, true},
		{600, 600, true},
		{599, 0, true},
		{0, 0, true},
		{-1, -600, true},
		{-600, -600, true},
		{-601, -887220, true},
		{-887221, 0, false},
	}
	for _, tt := range tests {
		got, ok := tree.PrevAtOrBelow(tt.from)
		require.Equal(t, tt.ok, ok, "from %d", tt.from)
		if ok {
			require.Equal(t, tt.want, got, "from %d", tt.from)
		}
	}
}

func TestTickTreeSparseLongJumps(t *testing.T) {
	// Two ticks hundreds of leaf words apart exercise the summary walk.
	tree := newTickTree(1)
	tree.Toggle(-800000)
	tree.Toggle(750000)

	next, ok := tree.NextAbove(-800000)
	require.True(t, ok)
	require.Equal(t, int32(750000), next)

	prev, ok := tree.PrevAtOrBelow(749999)
	require.True(t, ok)
	require.Equal(t, int32(-800000), prev)
}

func TestTickTreeUnalignedQueries(t *testing.T) {
	tree := newTickTree(60)
	tree.Toggle(-60)
	tree.Toggle(60)

	// Queries between spaced ticks still land on the nearest entry.
	next, ok := tree.NextAbove(-59)
	require.True(t, ok)
	require.Equal(t, int32(60), next)

	prev, ok := tree.PrevAtOrBelow(59)
	require.True(t, ok)
	require.Equal(t, int32(-60), prev)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlice2DWithValue(t *testing.T) {
	s := Slice2DWithValue(1.5, 2, 3)
	require.Equal(t, [][]float64{{1.5, 1.5, 1.5}, {1.5, 1.5, 1.5}}, s)

	// Rows don't share capacity: appending to one must not overwrite the next.
	s[0] = append(s[0], 7)
	assert.Equal(t, 1.5, s[1][0])

	empty := Slice2DWithValue(0.0, 3, 0)
	require.Len(t, empty, 3)
	for _, row := range empty {
		assert.Empty(t, row)
	}
	assert.Empty(t, Slice2DWithValue(0.0, 0, 4))
}

func TestArgMaxAndMean(t *testing.T) {
	assert.Equal(t, -1, ArgMax([]float64{}))
	assert.Equal(t, 1, ArgMax([]float64{0.1, 0.9, 0.9}))
	assert.Equal(t, 2.0, Mean([]int{1, 2, 3}))
	assert.True(t, math.IsNaN(Mean([]float64{})))
	assert.Equal(t, []int{3, 4, 5}, Iota(3, 3))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, func(v int) string { return string(rune('0' + v)) }))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"math"

	"golang.org/x/exp/constraints"
)

// SliceWithValue creates a slice of given size filled with given value.
func SliceWithValue[T any](size int, value T) []T {
	s := make([]T, size)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// Slice2DWithValue creates a 2D-slice of given dimensions filled with the given value.
//
// All the data is allocated in one slice, and then partitioned in rows. If dim1 is 0, it
// returns dim0 empty rows.
func Slice2DWithValue[T any](value T, dim0, dim1 int) [][]T {
	data := SliceWithValue(dim0*dim1, value)
	rows := make([][]T, dim0)
	for ii := range rows {
		rows[ii] = data[ii*dim1 : (ii+1)*dim1 : (ii+1)*dim1]
	}
	return rows
}

// Iota returns a slice of incremental values, starting with start and of length len.
// Eg: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T constraints.Integer | constraints.Float](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// ArgMax returns the index of the largest element, or -1 for an empty slice. Ties go to the first one.
func ArgMax[T constraints.Integer | constraints.Float](slice []T) int {
	if len(slice) == 0 {
		return -1
	}
	best := 0
	for ii, v := range slice[1:] {
		if v > slice[best] {
			best = ii + 1
		}
	}
	return best
}

// Mean returns the mean of the values, or NaN for an empty slice.
func Mean[T constraints.Integer | constraints.Float](slice []T) float64 {
	if len(slice) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range slice {
		sum += float64(v)
	}
	return sum / float64(len(slice))
}

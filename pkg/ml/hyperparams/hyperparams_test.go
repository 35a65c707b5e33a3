// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hyperparams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	p := New("learning_rate", 0.5, "epochs", 3)
	assert.Equal(t, []string{"epochs", "learning_rate"}, p.Keys())
	assert.Equal(t, 0.5, GetOr(p, "learning_rate", 0.1))
	assert.Equal(t, 3, GetOr(p, "epochs", 1))
	assert.Equal(t, "x", GetOr(p, "missing", "x"))
	assert.Equal(t, 7, GetOr[int](nil, "epochs", 7))

	// Numeric conversions.
	p.Set("epochs", 4.0).Set("learning_rate", 1)
	assert.Equal(t, 4, GetOr(p, "epochs", 1))
	assert.Equal(t, 1.0, GetOr(p, "learning_rate", 0.1))

	// Incompatible types fall back to the default.
	p.Set("sorted", "yes")
	assert.False(t, GetOr(p, "sorted", false))
	q := New("learning_rate", "0.3", "epochs", "2")
	assert.Equal(t, 0.1, GetOr(q, "learning_rate", 0.1))
	assert.Equal(t, 5, GetOr(q, "epochs", 5))

	c := p.Clone()
	c.Set("epochs", 10)
	assert.Equal(t, 4, GetOr(p, "epochs", 1))
	assert.Equal(t, 10, GetOr(c, "epochs", 1))

	var keys []string
	p.Enumerate(func(key string, _ any) { keys = append(keys, key) })
	assert.Equal(t, p.Keys(), keys)
}

func TestNewPanics(t *testing.T) {
	require.Panics(t, func() { New("a") })
	require.Panics(t, func() { New(1, 2) })
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package storetest holds a conformance test suite shared by the store.Store implementations.
package storetest

import (
	"context"
	"testing"

	"github.com/gomlx/searchnet/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// OpenFn returns a new, empty and uninitialized store.
type OpenFn func(t *testing.T) store.Store

// Run runs the conformance suite on stores created by open.
func Run(t *testing.T, open OpenFn) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"Initialize", testInitialize},
		{"Defaults", testDefaults},
		{"Upsert", testUpsert},
		{"HiddenNodes", testHiddenNodes},
		{"HiddenIDs", testHiddenIDs},
		{"Rollback", testRollback},
		{"TxDone", testTxDone},
		{"Stats", testStats},
		{"Closed", testClosed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			st := open(t)
			if test.name != "Initialize" {
				require.NoError(t, st.Initialize(context.Background(), store.KeyOrdered))
			}
			test.fn(t, st)
			if test.name != "Closed" {
				require.NoError(t, st.Close())
			}
		})
	}
}

func begin(t *testing.T, st store.Store, readOnly bool) store.Tx {
	tx, err := st.Begin(context.Background(), readOnly)
	require.NoError(t, err)
	return tx
}

func read(t *testing.T, st store.Store, from, to store.ID, layer store.Layer) float64 {
	tx := begin(t, st, true)
	defer func() { require.NoError(t, tx.Rollback()) }()
	value, err := tx.Strength(context.Background(), from, to, layer)
	require.NoError(t, err)
	return value
}

func testInitialize(t *testing.T, st store.Store) {
	ctx := context.Background()
	mode, err := st.KeyMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.KeyMode(""), mode)

	for _, readOnly := range []bool{false, true} {
		_, err = st.Begin(ctx, readOnly)
		assert.True(t, errors.Is(err, store.ErrNotInitialized), "readOnly=%v: got %v", readOnly, err)
	}

	require.NoError(t, st.Initialize(ctx, store.KeySorted))
	require.NoError(t, st.Initialize(ctx, store.KeySorted)) // Idempotent.
	err = st.Initialize(ctx, store.KeyOrdered)
	assert.True(t, errors.Is(err, store.ErrKeyModeMismatch), "got %v", err)

	mode, err = st.KeyMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.KeySorted, mode)
	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.StoreID)
}

func testDefaults(t *testing.T, st store.Store) {
	assert.Equal(t, -0.2, read(t, st, 1, 2, store.InputHidden))
	assert.Equal(t, 0.0, read(t, st, 1, 2, store.HiddenOutput))
	tx := begin(t, st, true)
	defer func() { _ = tx.Rollback() }()
	_, err := tx.Strength(context.Background(), 1, 2, store.Layer(7))
	assert.Error(t, err)
}

func testUpsert(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	require.NoError(t, tx.SetStrength(ctx, 1, 2, store.InputHidden, 0.25))
	require.NoError(t, tx.SetStrength(ctx, 1, 2, store.HiddenOutput, -3))
	value, err := tx.Strength(ctx, 1, 2, store.InputHidden)
	require.NoError(t, err)
	assert.Equal(t, 0.25, value, "writes must be visible within the transaction")
	require.NoError(t, tx.SetStrength(ctx, 1, 2, store.InputHidden, 0.75))
	require.NoError(t, tx.Commit())

	assert.Equal(t, 0.75, read(t, st, 1, 2, store.InputHidden))
	assert.Equal(t, -3.0, read(t, st, 1, 2, store.HiddenOutput))
	assert.Equal(t, -0.2, read(t, st, 2, 1, store.InputHidden), "edges are directed")

	// Updates don't duplicate rows.
	var edges []store.Edge
	require.NoError(t, st.Edges(ctx, store.InputHidden, func(e store.Edge) bool {
		edges = append(edges, e)
		return true
	}))
	assert.Equal(t, []store.Edge{{From: 1, To: 2, Layer: store.InputHidden, Strength: 0.75}}, edges)

	// Full float64 precision.
	const precise = 0.1234567890123456789
	tx = begin(t, st, false)
	require.NoError(t, tx.SetStrength(ctx, 5, 6, store.HiddenOutput, precise))
	require.NoError(t, tx.Commit())
	assert.Equal(t, precise, read(t, st, 5, 6, store.HiddenOutput))
}

func testHiddenNodes(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	_, found, err := tx.HiddenNodeByKey(ctx, "1_2")
	require.NoError(t, err)
	assert.False(t, found)
	n1, err := tx.CreateHiddenNode(ctx, "1_2")
	require.NoError(t, err)
	n2, err := tx.CreateHiddenNode(ctx, "2_1")
	require.NoError(t, err)
	assert.NotEqual(t, n1.ID, n2.ID)
	got, found, err := tx.HiddenNodeByKey(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, n1, got)
	require.NoError(t, tx.Commit())

	var nodes []store.HiddenNode
	require.NoError(t, st.HiddenNodes(ctx, func(n store.HiddenNode) bool {
		nodes = append(nodes, n)
		return true
	}))
	assert.Equal(t, []store.HiddenNode{n1, n2}, nodes)

	// Key with quotes is stored verbatim.
	tx = begin(t, st, false)
	odd, err := tx.CreateHiddenNode(ctx, "x'); DROP TABLE hidden_node; --")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	tx = begin(t, st, true)
	got, found, err = tx.HiddenNodeByKey(ctx, odd.CreationKey)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.True(t, found)
	assert.Equal(t, odd.ID, got.ID)
}

func testHiddenIDs(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	require.NoError(t, tx.SetStrength(ctx, 1, 100, store.InputHidden, 1))
	require.NoError(t, tx.SetStrength(ctx, 1, 101, store.InputHidden, 1))
	require.NoError(t, tx.SetStrength(ctx, 2, 101, store.InputHidden, 1))
	require.NoError(t, tx.SetStrength(ctx, 3, 102, store.InputHidden, 1))
	require.NoError(t, tx.SetStrength(ctx, 103, 50, store.HiddenOutput, 1))
	require.NoError(t, tx.SetStrength(ctx, 100, 50, store.HiddenOutput, 1))
	require.NoError(t, tx.SetStrength(ctx, 104, 51, store.HiddenOutput, 1))
	require.NoError(t, tx.Commit())

	tx = begin(t, st, true)
	defer func() { require.NoError(t, tx.Rollback()) }()
	ids, err := tx.HiddenIDs(ctx, []store.ID{2, 1}, []store.ID{50})
	require.NoError(t, err)
	assert.Equal(t, []store.ID{101, 100, 103}, ids)
	ids, err = tx.HiddenIDs(ctx, []store.ID{9}, []store.ID{9})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	require.NoError(t, tx.SetStrength(ctx, 1, 2, store.InputHidden, 0.5))
	_, err := tx.CreateHiddenNode(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback()) // Safe to call twice.

	assert.Equal(t, -0.2, read(t, st, 1, 2, store.InputHidden))
	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.NumHiddenNodes)
	assert.Zero(t, stats.NumInputHidden)

	// Writes in a read-only transaction fail.
	tx = begin(t, st, true)
	assert.Error(t, tx.SetStrength(ctx, 1, 2, store.InputHidden, 0.5))
	require.NoError(t, tx.Rollback())
}

func testTxDone(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())
	_, err := tx.Strength(ctx, 1, 2, store.InputHidden)
	assert.True(t, errors.Is(err, store.ErrTxDone))
	assert.True(t, errors.Is(tx.Commit(), store.ErrTxDone))
}

func testStats(t *testing.T, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st, false)
	_, err := tx.CreateHiddenNode(ctx, "1_2")
	require.NoError(t, err)
	require.NoError(t, tx.SetStrength(ctx, 1, 1, store.InputHidden, 0.5))
	require.NoError(t, tx.SetStrength(ctx, 2, 1, store.InputHidden, -0.5))
	require.NoError(t, tx.SetStrength(ctx, 1, 0, store.HiddenOutput, 0.25))
	require.NoError(t, tx.Commit())
	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.KeyOrdered, stats.KeyMode)
	assert.Equal(t, int64(1), stats.NumHiddenNodes)
	assert.Equal(t, int64(2), stats.NumInputHidden)
	assert.Equal(t, int64(1), stats.NumHiddenOutput)
	assert.InDelta(t, 1.0, stats.SumAbsInputHidden, 1e-12)
	assert.InDelta(t, 0.25, stats.SumAbsHiddenOut, 1e-12)
}

func testClosed(t *testing.T, st store.Store) {
	require.NoError(t, st.Close())
	_, err := st.Begin(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStorage), "got %v", err)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package searchnet

import (
	"context"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gomlx/searchnet/pkg/ml/hyperparams"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/store/memstore"
	"github.com/gomlx/searchnet/pkg/store/sqlstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachStore runs testFn with a fresh, initialized engine over each store implementation.
func forEachStore(t *testing.T, params *hyperparams.Params, testFn func(t *testing.T, engine *Engine)) {
	stores := []struct {
		name string
		open func(t *testing.T) store.Store
	}{
		{"memstore", func(t *testing.T) store.Store { return memstore.New() }},
		{"sqlstore", func(t *testing.T) store.Store {
			st, err := sqlstore.Open(filepath.Join(t.TempDir(), "searchnet.db"))
			require.NoError(t, err)
			return st
		}},
	}
	for _, s := range stores {
		t.Run(s.name, func(t *testing.T) {
			st := s.open(t)
			defer func() { require.NoError(t, st.Close()) }()
			if params == nil {
				params = DefaultParams()
			}
			engine, err := New(st, params)
			require.NoError(t, err)
			require.NoError(t, engine.InitializeStore(context.Background()))
			testFn(t, engine)
		})
	}
}

type storeDump struct {
	nodes       []store.HiddenNode
	inputEdges  []store.Edge
	outputEdges []store.Edge
}

func dumpStore(t *testing.T, st store.Store) storeDump {
	ctx := context.Background()
	var d storeDump
	require.NoError(t, st.HiddenNodes(ctx, func(n store.HiddenNode) bool { d.nodes = append(d.nodes, n); return true }))
	require.NoError(t, st.Edges(ctx, store.InputHidden, func(e store.Edge) bool { d.inputEdges = append(d.inputEdges, e); return true }))
	require.NoError(t, st.Edges(ctx, store.HiddenOutput, func(e store.Edge) bool { d.outputEdges = append(d.outputEdges, e); return true }))
	return d
}

func copy2D(s [][]float64) [][]float64 {
	c := make([][]float64, len(s))
	for ii, row := range s {
		c[ii] = slices.Clone(row)
	}
	return c
}

func strength(t *testing.T, st store.Store, from, to store.ID, layer store.Layer) float64 {
	ctx := context.Background()
	tx, err := st.Begin(ctx, true)
	require.NoError(t, err)
	defer func() { require.NoError(t, tx.Rollback()) }()
	value, err := tx.Strength(ctx, from, to, layer)
	require.NoError(t, err)
	return value
}

func TestEnsureTopology(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		st := engine.Store()
		features, outputs := []store.ID{101, 102}, []store.ID{201, 202}

		node, created, err := engine.EnsureTopology(ctx, features, outputs)
		require.NoError(t, err)
		require.True(t, created)
		assert.Equal(t, "101_102", node.CreationKey)
		h := node.ID

		assert.Equal(t, 0.5, strength(t, st, 101, h, store.InputHidden))
		assert.Equal(t, 0.5, strength(t, st, 102, h, store.InputHidden))
		assert.Equal(t, 0.1, strength(t, st, h, 201, store.HiddenOutput))
		assert.Equal(t, 0.1, strength(t, st, h, 202, store.HiddenOutput))

		// Second call with the same features is a no-op, even with different outputs.
		before := dumpStore(t, st)
		node2, created, err := engine.EnsureTopology(ctx, features, []store.ID{201, 202, 203})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, node, node2)
		assert.Equal(t, before, dumpStore(t, st))
		require.Len(t, before.nodes, 1)

		// Order matters by default.
		node3, created, err := engine.EnsureTopology(ctx, []store.ID{102, 101}, outputs)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, node.ID, node3.ID)
		assert.Equal(t, "102_101", node3.CreationKey)
	})
}

func TestSortedCreationKey(t *testing.T) {
	params := DefaultParams().Set(ParamSortedCreationKey, true)
	forEachStore(t, params, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		assert.Equal(t, store.KeySorted, engine.KeyMode())
		outputs := []store.ID{0, 1}
		node, created, err := engine.EnsureTopology(ctx, []store.ID{7, 3, 5}, outputs)
		require.NoError(t, err)
		require.True(t, created)
		assert.Equal(t, "3_5_7", node.CreationKey)
		node2, created, err := engine.EnsureTopology(ctx, []store.ID{5, 7, 3}, outputs)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, node.ID, node2.ID)

		// The store remembers its mode.
		ordered, err := New(engine.Store(), DefaultParams())
		require.NoError(t, err)
		err = ordered.InitializeStore(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrKeyModeMismatch))
	})
}

func TestDefaultStrengths(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		assert.Equal(t, -0.2, strength(t, engine.Store(), 1, 2, store.InputHidden))
		assert.Equal(t, 0.0, strength(t, engine.Store(), 1, 2, store.HiddenOutput))
	})
}

func TestTrainStepScenario(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		st := engine.Store()
		features, outputs := []store.ID{101, 102}, []store.ID{201, 202}

		result, err := engine.TrainStep(ctx, features, outputs, 201)
		require.NoError(t, err)
		require.True(t, result.Created)
		h := result.HiddenNode.ID

		// Reproduce the step by hand.
		ah := math.Tanh(0.5 + 0.5)
		ao := math.Tanh(ah * 0.1)
		require.InDeltaSlice(t, []float64{ao, ao}, result.Outputs, 1e-12)
		delta0 := (1 - ao) * (1 - ao*ao)
		delta1 := (0 - ao) * (1 - ao*ao)
		hiddenDelta := (1 - ah*ah) * (delta0*0.1 + delta1*0.1)
		assert.InDelta(t, 0.5*((1-ao)*(1-ao)+ao*ao), result.Loss, 1e-12)

		wo201 := strength(t, st, h, 201, store.HiddenOutput)
		wo202 := strength(t, st, h, 202, store.HiddenOutput)
		assert.Greater(t, wo201, 0.1)
		assert.Less(t, wo202, 0.1)
		assert.InDelta(t, 0.1+0.5*delta0*ah, wo201, 1e-12)
		assert.InDelta(t, 0.1+0.5*delta1*ah, wo202, 1e-12)
		assert.InDelta(t, 0.5+0.5*hiddenDelta, strength(t, st, 101, h, store.InputHidden), 1e-12)
		assert.InDelta(t, 0.5+0.5*hiddenDelta, strength(t, st, 102, h, store.InputHidden), 1e-12)
	})
}

func TestPredictIsDeterministicAndReadOnly(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		features, outputs := []store.ID{1, 2, 3}, []store.ID{0, 1}

		// Nothing connected yet: no hidden nodes, outputs are tanh(0).
		scores, err := engine.Predict(ctx, features, outputs)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, scores)

		_, err = engine.TrainStep(ctx, features, outputs, 1)
		require.NoError(t, err)
		before := dumpStore(t, engine.Store())
		first, err := engine.Predict(ctx, features, outputs)
		require.NoError(t, err)
		second, err := engine.Predict(ctx, features, outputs)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, before, dumpStore(t, engine.Store()))
	})
}

func TestSingleStepImprovement(t *testing.T) {
	for labelIdx := range 2 {
		forEachStore(t, nil, func(t *testing.T, engine *Engine) {
			ctx := context.Background()
			features, outputs := []store.ID{11, 12, 13, 14}, []store.ID{0, 1}
			_, _, err := engine.EnsureTopology(ctx, features, outputs)
			require.NoError(t, err)
			before, err := engine.Predict(ctx, features, outputs)
			require.NoError(t, err)
			_, err = engine.TrainStep(ctx, features, outputs, outputs[labelIdx])
			require.NoError(t, err)
			after, err := engine.Predict(ctx, features, outputs)
			require.NoError(t, err)
			assert.Less(t, math.Abs(1-after[labelIdx]), math.Abs(1-before[labelIdx]),
				"label #%d: before=%v, after=%v", labelIdx, before, after)
		})
	}
}

// TestMultipleHiddenNodes checks that every input->hidden strength is updated, and not only the ones
// of the last hidden node.
func TestMultipleHiddenNodes(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		st := engine.Store()
		outputs := []store.ID{0, 1}
		features := []store.ID{1, 2}
		_, _, err := engine.EnsureTopology(ctx, []store.ID{1, 3}, outputs)
		require.NoError(t, err)
		_, _, err = engine.EnsureTopology(ctx, features, outputs)
		require.NoError(t, err)

		// Feature 1 connects to both hidden nodes, feature 2 only to the second one: the strength
		// from feature 2 to the first hidden node is the default until trained.
		net, err := engine.Network(ctx, features, outputs)
		require.NoError(t, err)
		require.Len(t, net.HiddenIDs, 2)
		require.Equal(t, store.DefaultInputHiddenStrength, net.WI[1][0])
		wiBefore := copy2D(net.WI)
		woBefore := copy2D(net.WO)
		net.FeedForward()

		// Hidden deltas computed independently of BackPropagate.
		targets := []float64{1, 0}
		hiddenDeltas := make([]float64, 2)
		for j := range hiddenDeltas {
			var sum float64
			for k := range outputs {
				sum += (targets[k] - net.AO[k]) * (1 - net.AO[k]*net.AO[k]) * woBefore[j][k]
			}
			hiddenDeltas[j] = (1 - net.AH[j]*net.AH[j]) * sum
		}
		require.NotZero(t, hiddenDeltas[0])
		require.NotZero(t, hiddenDeltas[1])

		_, err = engine.TrainStep(ctx, features, outputs, 0)
		require.NoError(t, err)
		for i, featureID := range features {
			for j, hiddenID := range net.HiddenIDs {
				got := strength(t, st, featureID, hiddenID, store.InputHidden)
				assert.InDelta(t, wiBefore[i][j]+0.5*hiddenDeltas[j], got, 1e-12,
					"feature %d -> hidden %d", featureID, hiddenID)
			}
		}
	})
}

func TestInvalidInputs(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		empty := dumpStore(t, engine.Store())

		_, err := engine.TrainStep(ctx, []store.ID{1, 2}, []store.ID{0, 1}, 7)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidLabel))

		_, err = engine.TrainStep(ctx, nil, []store.ID{0, 1}, 0)
		assert.True(t, errors.Is(err, ErrEmptyInput))
		_, _, err = engine.EnsureTopology(ctx, []store.ID{1}, nil)
		assert.True(t, errors.Is(err, ErrEmptyInput))
		_, err = engine.Predict(ctx, []store.ID{}, []store.ID{0})
		assert.True(t, errors.Is(err, ErrEmptyInput))

		assert.Equal(t, empty, dumpStore(t, engine.Store()))
	})
	_, err := New(memstore.New(), DefaultParams().Set(ParamLearningRate, 0.0))
	require.Error(t, err)
}

// failingCommitStore fails every commit, after rolling back the underlying transaction.
type failingCommitStore struct{ store.Store }

func (s failingCommitStore) Begin(ctx context.Context, readOnly bool) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	return failingCommitTx{tx}, nil
}

type failingCommitTx struct{ store.Tx }

func (t failingCommitTx) Commit() error {
	_ = t.Tx.Rollback()
	return store.WrapStorage(errors.New("disk full"), "Commit")
}

func TestTrainStepIsAtomic(t *testing.T) {
	forEachStore(t, nil, func(t *testing.T, engine *Engine) {
		ctx := context.Background()
		features, outputs := []store.ID{5, 6}, []store.ID{0, 1}
		_, err := engine.TrainStep(ctx, features, outputs, 0)
		require.NoError(t, err)
		before := dumpStore(t, engine.Store())

		failing, err := New(failingCommitStore{engine.Store()}, DefaultParams())
		require.NoError(t, err)
		_, err = failing.TrainStep(ctx, features, outputs, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrStorage))
		_, err = failing.TrainStep(ctx, []store.ID{8, 9}, outputs, 1)
		require.Error(t, err)
		assert.Equal(t, before, dumpStore(t, engine.Store()))

		// The original engine keeps working.
		_, err = engine.TrainStep(ctx, features, outputs, 1)
		require.NoError(t, err)
	})
}

func TestDurability(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "durable.db")
	features, outputs := []store.ID{3, 1, 4}, []store.ID{0, 1}

	st, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	engine, err := New(st, DefaultParams())
	require.NoError(t, err)
	require.NoError(t, engine.InitializeStore(ctx))
	for ii := range 5 {
		_, err = engine.TrainStep(ctx, features, outputs, outputs[ii%2])
		require.NoError(t, err)
	}
	want, err := engine.Network(ctx, features, outputs)
	require.NoError(t, err)
	wantScores, err := engine.Predict(ctx, features, outputs)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = sqlstore.Open(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()
	engine, err = New(st, DefaultParams())
	require.NoError(t, err)
	got, err := engine.Network(ctx, features, outputs)
	require.NoError(t, err)
	assert.Equal(t, want.HiddenIDs, got.HiddenIDs)
	assert.Equal(t, want.WI, got.WI)
	assert.Equal(t, want.WO, got.WO)
	gotScores, err := engine.Predict(ctx, features, outputs)
	require.NoError(t, err)
	assert.Equal(t, wantScores, gotScores)
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	sqlSt, err := sqlstore.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	for _, st := range []store.Store{memstore.New(), sqlSt} {
		engine, err := New(st, nil)
		require.NoError(t, err)
		_, err = engine.TrainStep(ctx, []store.ID{1}, []store.ID{0, 1}, 0)
		assert.True(t, errors.Is(err, store.ErrNotInitialized), "got %v", err)
		scores, err := engine.Predict(ctx, []store.ID{1}, []store.ID{0, 1})
		assert.True(t, errors.Is(err, store.ErrNotInitialized), "got %v", err)
		assert.Nil(t, scores)
		require.NoError(t, st.Close())
	}
}

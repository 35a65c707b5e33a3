// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"context"
	"testing"

	"github.com/gomlx/searchnet/pkg/ml/searchnet"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelEval(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	var records []Record
	for ii := range 40 {
		records = append(records, Record{
			Features: []store.ID{store.ID(ii % 7), store.ID(10 + ii%5)},
			Outputs:  outputs,
			Label:    store.ID(ii % 2),
		})
	}
	ds := NewInMemoryDataset("varied", records)
	_, err := NewLoop(NewTrainer(engine, nil)).RunEpochs(ctx, ds, 3)
	require.NoError(t, err)

	sequential, err := NewTrainer(engine, nil).Eval(ctx, ds)
	require.NoError(t, err)
	for _, parallelism := range []int{1, 4, -1} {
		trainer := NewTrainer(engine, nil).WithEvalParallelism(parallelism)
		parallel, err := trainer.Eval(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, sequential, parallel, "parallelism=%d", parallelism)
	}

	trainer := NewTrainer(engine, nil).WithEvalParallelism(4)
	_, err = trainer.Eval(ctx, NewInMemoryDataset("empty", nil))
	assert.Error(t, err)
	bad := NewInMemoryDataset("bad", append(records[:3:3], Record{Features: []store.ID{1}, Outputs: outputs, Label: 9}))
	_, err = trainer.Eval(ctx, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, searchnet.ErrInvalidLabel), "got %v", err)
	assert.Contains(t, err.Error(), "record #3")
}

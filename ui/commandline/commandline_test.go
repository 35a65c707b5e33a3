// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/searchnet/pkg/ml/hyperparams"
	"github.com/gomlx/searchnet/pkg/ml/searchnet"
	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/store/memstore"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestParams() *hyperparams.Params {
	return hyperparams.New(
		"x", 11.0,
		"y", 7,
		"z", false,
		"s", "foo",
		"list_int", []int{},
		"list_float", []float64{},
		"list_str", []string{},
	)
}

func TestParseSettings(t *testing.T) {
	params := createTestParams()
	paramsSet, err := ParseSettings(params, "x=13;y=1_000;z=true;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z", "s", "list_int", "list_float", "list_str"}, paramsSet)
	assert.Equal(t, 13.0, hyperparams.GetOr(params, "x", 0.0))
	assert.Equal(t, 1000, hyperparams.GetOr(params, "y", 0))
	assert.True(t, hyperparams.GetOr(params, "z", false))
	assert.Equal(t, "bar", hyperparams.GetOr(params, "s", ""))
	assert.Equal(t, []int{1, 3, 7}, hyperparams.GetOr(params, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, hyperparams.GetOr(params, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, hyperparams.GetOr(params, "list_str", []string{}))

	// Parameter "q" is unknown.
	_, err = ParseSettings(params, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseSettings(params, "y=3.14")
	require.Error(t, err)
	_, err = ParseSettings(params, "z=maybe")
	require.Error(t, err)

	// Malformed.
	_, err = ParseSettings(params, "x")
	require.Error(t, err)
	_, err = ParseSettings(params, "x=1=2")
	require.Error(t, err)
}

func TestParseSettingsFromFile(t *testing.T) {
	params := createTestParams()
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Comment\nx=0.5\n\ny=3;s=from_file\n"), 0o644))
	paramsSet, err := ParseSettings(params, "file:"+filePath+";y=5")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "s", "y"}, paramsSet)
	assert.Equal(t, 5, hyperparams.GetOr(params, "y", 0))

	modified := SprintModifiedSettings(params, paramsSet)
	assert.Equal(t, "\t\"s\": (string) from_file\n\t\"x\": (float64) 0.5\n\t\"y\": (int) 5", modified)
	assert.Contains(t, SprintSettings(params), "\"list_int\": ([]int) []")

	_, err = ParseSettings(params, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "12.35µs", FormatDuration(12346*time.Nanosecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestHumanizeInt(t *testing.T) {
	assert.Equal(t, "0", humanizeInt(0))
	assert.Equal(t, "1,234,567", humanizeInt(1234567))
	assert.Equal(t, "-1,000", humanizeInt(int64(-1000)))
}

func newToyLoop(t *testing.T) (*train.Loop, train.Dataset) {
	engine := must.M1(searchnet.New(memstore.New(), searchnet.DefaultParams()))
	require.NoError(t, engine.InitializeStore(context.Background()))
	outputs := []store.ID{0, 1}
	ds := train.NewInMemoryDataset("toy", []train.Record{
		{Features: []store.ID{1, 2}, Outputs: outputs, Label: 0},
		{Features: []store.ID{3, 4}, Outputs: outputs, Label: 1},
	})
	return train.NewLoop(train.NewTrainer(engine, nil)), ds
}

func TestProgressBar(t *testing.T) {
	loop, ds := newToyLoop(t)
	var out bytes.Buffer
	AttachProgressBarTo(&out, loop, func() (string, string) { return "Hidden nodes", "2" })
	_, err := loop.RunEpochs(context.Background(), ds, 5)
	require.NoError(t, err)
	printed := out.String()
	assert.Contains(t, printed, "Median train step duration")
	assert.Contains(t, printed, "Hidden nodes")
	assert.Contains(t, printed, "Loss")
}

func TestReportEval(t *testing.T) {
	loop, ds := newToyLoop(t)
	_, err := loop.RunEpochs(context.Background(), ds, 3)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, ReportEval(context.Background(), &out, loop.Trainer, ds))
	assert.Contains(t, out.String(), "Results on toy:")
	assert.Contains(t, out.String(), "Mean Accuracy (acc):")
	assert.Contains(t, out.String(), "Mean Loss (loss):")
}

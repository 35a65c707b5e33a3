// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/searchnet/pkg/ml/searchnet"
	"github.com/gomlx/searchnet/pkg/ml/train"
	"github.com/gomlx/searchnet/pkg/ml/train/metrics"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/store/memstore"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoints(t *testing.T) {
	points := NewPoints([]Point{
		{MetricName: "Mean Loss on eval", MetricType: "loss", Step: 10, Value: 0.25},
		{MetricName: "Mean Accuracy on eval", MetricType: "accuracy", Step: 10, Value: 0.5},
		{MetricName: "Mean Loss on eval", MetricType: "loss", Step: 1, Value: 0.5},
		{MetricName: "Train: Loss", MetricType: "loss", Step: 1, Value: 0.4},
	})
	assert.Equal(t, []string{"Mean Accuracy on eval", "Mean Loss on eval", "Train: Loss"}, points.MetricsNames())
	steps, values := points.Series("Mean Loss on eval")
	assert.Equal(t, []float64{1, 10}, steps)
	assert.Equal(t, []float64{0.5, 0.25}, values)

	raw := points.Extract()
	require.Len(t, raw, 4)
	assert.Equal(t, 1.0, raw[0].Step)
	assert.Equal(t, 10.0, raw[3].Step)

	table := points.TableForMetrics("Mean Loss on eval")
	assert.Contains(t, table, "Step")
	assert.Contains(t, table, "0.250000")
	assert.NotContains(t, table, "0.400000")

	points.Filter(func(p Point) bool { return p.MetricType == "loss" })
	assert.Len(t, points.Extract(), 3)
	points.Filter(func(p Point) bool { return p.Step > 5 })
	assert.Len(t, points, 1)
}

func TestPointsFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "points.json")
	writer, errReport := CreatePointsWriter(filePath)
	writer <- Point{MetricName: "a", MetricType: "loss", Step: 1, Value: 1}
	writer <- Point{MetricName: "a", MetricType: "loss", Step: 2, Value: 0.5}
	close(writer)
	require.NoError(t, <-errReport)

	points, err := LoadPoints(filePath)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 0.5, points[1].Value)

	// Appends, and loads previous points.
	plotter, err := NewPNGPlotter("test").WithPointsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, 2.0, plotter.LastStep())
	plotter.AddPoint(Point{MetricName: "a", MetricType: "loss", Step: 3, Value: 0.25})
	require.NoError(t, plotter.Close())
	assert.Equal(t, 3.0, plotter.LastStep())
	assert.Equal(t, -1.0, NewPNGPlotter("empty").LastStep())
	assert.Len(t, plotter.Points().Extract(), 3)
	points, err = LoadPoints(filePath)
	require.NoError(t, err)
	assert.Len(t, points, 3)

	_, err = LoadPoints(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	engine := must.M1(searchnet.New(memstore.New(), searchnet.DefaultParams()))
	require.NoError(t, engine.InitializeStore(ctx))
	outputs := []store.ID{0, 1}
	records := []train.Record{
		{Features: []store.ID{1, 2}, Outputs: outputs, Label: 0},
		{Features: []store.ID{3, 4}, Outputs: outputs, Label: 1},
	}
	trainDS := train.NewInMemoryDataset("train", records).Infinite(true)
	evalDS := train.NewInMemoryDataset("eval", records)

	trainer := train.NewTrainer(engine, []metrics.Interface{metrics.NewMovingAverageLoss("Moving Loss", "~loss", 0.05)})
	loop := train.NewLoop(trainer)
	outputDir := filepath.Join(t.TempDir(), "plots")
	plotter := NewPNGPlotter("toy")
	plotter.Attach(ctx, loop, 10, outputDir, evalDS)
	_, err := loop.RunSteps(ctx, trainDS, 100)
	require.NoError(t, err)

	samples, incomplete := plotter.NumSamples()
	assert.Equal(t, 11, samples)
	assert.Zero(t, incomplete)
	points := plotter.Points()
	assert.Len(t, points, 11)
	assert.Len(t, points.Extract(), 11*3)
	assert.Equal(t, []string{"Mean Accuracy on eval", "Mean Loss on eval", "Train: Moving Loss"}, points.MetricsNames())

	// Accuracy on the toy problem reaches 100%.
	_, accuracies := points.Series("Mean Accuracy on eval")
	assert.Equal(t, 1.0, accuracies[len(accuracies)-1])

	for _, name := range []string{"accuracy.png", "loss.png"} {
		info, err := os.Stat(filepath.Join(outputDir, name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestPointsFileFor(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "churn.db")
	assert.Equal(t, storePath+".training_points.json", PointsFileFor(storePath))
	plotter, err := NewPNGPlotter("store").WithPointsFile(PointsFileFor(storePath))
	require.NoError(t, err)
	plotter.AddPoint(Point{MetricName: "a", MetricType: "loss", Step: 1, Value: 1})
	require.NoError(t, plotter.Close())
	points, err := LoadPointsForStore(storePath)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds the training loop over a searchnet.Engine, the Dataset interface that feeds it,
// and evaluation.
//
// The Loop trains one Record at a time and has hooks (OnStart, OnStep, OnEnd) for tools like progress
// bars, periodic reports or plots.
package train

import (
	"context"
	"io"

	"github.com/gomlx/searchnet/internal/workerspool"
	"github.com/gomlx/searchnet/pkg/ml/searchnet"
	"github.com/gomlx/searchnet/pkg/ml/train/metrics"
	"github.com/pkg/errors"
)

// Trainer runs training and evaluation steps on a searchnet.Engine and keeps their metrics.
type Trainer struct {
	engine *searchnet.Engine

	// trainMetrics[0] is always the loss of the last step, evalMetrics[0] the mean loss and
	// evalMetrics[1] the mean accuracy.
	trainMetrics, evalMetrics []metrics.Interface

	globalStep int

	// evalPool, if set, runs the predictions of Eval in parallel.
	evalPool *workerspool.Pool
}

// NewTrainer creates a Trainer for engine.
//
// The train metrics are updated at every TrainStep. The first train metric is always the loss of the step, the ones
// given here are appended. Eval metrics always include the mean loss and the mean accuracy, followed by the ones
// given here.
func NewTrainer(engine *searchnet.Engine, trainMetrics []metrics.Interface, evalMetrics ...metrics.Interface) *Trainer {
	t := &Trainer{engine: engine}
	t.trainMetrics = append([]metrics.Interface{metrics.NewLastLoss("Loss", "loss")}, trainMetrics...)
	t.evalMetrics = append([]metrics.Interface{
		metrics.NewMeanLoss("Mean Loss", "loss"),
		metrics.NewMeanAccuracy("Mean Accuracy", "acc"),
	}, evalMetrics...)
	return t
}

// WithEvalParallelism makes Eval predict up to n records concurrently. If n is 0 (the default) evaluation is
// sequential, and if n < 0 parallelism is unlimited. The metrics are updated in dataset order either way.
func (t *Trainer) WithEvalParallelism(n int) *Trainer {
	if n == 0 {
		t.evalPool = nil
	} else {
		t.evalPool = workerspool.New().SetMaxParallelism(n)
	}
	return t
}

// Engine returns the engine being trained.
func (t *Trainer) Engine() *searchnet.Engine { return t.engine }

// GlobalStep is the number of successful training steps run by this Trainer.
func (t *Trainer) GlobalStep() int { return t.globalStep }

// SetGlobalStep sets the global step, typically when resuming the training of a store, so that
// steps reported by hooks continue from previous runs. Loops created afterwards start at step.
func (t *Trainer) SetGlobalStep(step int) { t.globalStep = step }

// TrainMetrics returns the train metrics, the loss first.
func (t *Trainer) TrainMetrics() []metrics.Interface { return t.trainMetrics }

// EvalMetrics returns the eval metrics: mean loss, mean accuracy and then any extra ones.
func (t *Trainer) EvalMetrics() []metrics.Interface { return t.evalMetrics }

// ResetTrainMetrics resets the state of all train metrics.
func (t *Trainer) ResetTrainMetrics() {
	for _, m := range t.trainMetrics {
		m.Reset()
	}
}

// ResetEvalMetrics resets the state of all eval metrics.
func (t *Trainer) ResetEvalMetrics() {
	for _, m := range t.evalMetrics {
		m.Reset()
	}
}

func updateMetrics(ms []metrics.Interface, result metrics.Result) []float64 {
	values := make([]float64, len(ms))
	for ii, m := range ms {
		values[ii] = m.Update(result)
	}
	return values
}

// TrainStep trains on one record and returns the current values of the train metrics.
func (t *Trainer) TrainStep(ctx context.Context, rec Record) (metricValues []float64, err error) {
	result, err := t.engine.TrainStep(ctx, rec.Features, rec.Outputs, rec.Label)
	if err != nil {
		return nil, err
	}
	t.globalStep++
	return updateMetrics(t.trainMetrics, metrics.Result{Loss: result.Loss, Correct: result.Correct}), nil
}

// EvalStep predicts one record, without changing the store, and returns how it scored.
func (t *Trainer) EvalStep(ctx context.Context, rec Record) (metrics.Result, error) {
	outputs, err := t.engine.Predict(ctx, rec.Features, rec.Outputs)
	if err != nil {
		return metrics.Result{}, err
	}
	loss, correct, err := searchnet.Score(outputs, rec.Outputs, rec.Label)
	if err != nil {
		return metrics.Result{}, err
	}
	return metrics.Result{Loss: loss, Correct: correct}, nil
}

// Eval returns the values of the eval metrics over the whole dataset, which must be finite.
// The dataset is Reset at the end.
func (t *Trainer) Eval(ctx context.Context, ds Dataset) (metricValues []float64, err error) {
	t.ResetEvalMetrics()
	defer ds.Reset()
	if t.evalPool != nil {
		return t.parallelEval(ctx, ds)
	}
	count := 0
	for {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): failed reading from Dataset", ds.Name())
		}
		result, err := t.EvalStep(ctx, rec)
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): record #%d", ds.Name(), count)
		}
		metricValues = updateMetrics(t.evalMetrics, result)
		count++
	}
	if count == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): empty dataset", ds.Name())
	}
	return metricValues, nil
}

// parallelEval reads the whole dataset, predicts the records with the evalPool, and then updates
// the metrics in dataset order.
func (t *Trainer) parallelEval(ctx context.Context, ds Dataset) (metricValues []float64, err error) {
	var records []Record
	for {
		rec, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): failed reading from Dataset", ds.Name())
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): empty dataset", ds.Name())
	}
	results := make([]metrics.Result, len(records))
	errs := make([]error, len(records))
	t.evalPool.Map(len(records), func(i int) {
		if errs[i] = ctx.Err(); errs[i] == nil {
			results[i], errs[i] = t.EvalStep(ctx, records[i])
		}
	})
	for i, result := range results {
		if errs[i] != nil {
			return nil, errors.WithMessagef(errs[i], "Trainer.Eval(%q): record #%d", ds.Name(), i)
		}
		metricValues = updateMetrics(t.evalMetrics, result)
	}
	return metricValues, nil
}

// Evaluation summarizes Evaluate.
type Evaluation struct {
	Count    int
	MeanLoss float64
	Accuracy float64
}

// Evaluate returns the mean loss and accuracy of engine over the dataset, using predictions only.
func Evaluate(ctx context.Context, engine *searchnet.Engine, ds Dataset) (Evaluation, error) {
	t := NewTrainer(engine, nil)
	values, err := t.Eval(ctx, ds)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Count:    t.evalMetrics[0].(*metrics.MeanMetric).Count(),
		MeanLoss: values[0],
		Accuracy: values[1],
	}, nil
}

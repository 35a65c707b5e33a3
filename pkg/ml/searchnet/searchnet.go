// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package searchnet implements a persistent multilayer perceptron with a single hidden layer whose
// nodes are created on demand, one per distinct combination of input feature ids.
//
// Every connection strength lives in a store.Store, so training is incremental (one example at a
// time) and survives restarts. For each query only the sub-network connected to the given feature
// and output ids is materialized (see Network), used and, when training, written back.
//
// Typical usage:
//
//	st := must.M1(sqlstore.Open("churn.db"))
//	engine := must.M1(searchnet.New(st, searchnet.DefaultParams()))
//	must.M(engine.InitializeStore(ctx))
//	_, err := engine.TrainStep(ctx, featureIDs, []store.ID{0, 1}, label)
//	scores, err := engine.Predict(ctx, featureIDs, []store.ID{0, 1})
package searchnet

import (
	"context"
	"slices"
	"sync"

	"github.com/gomlx/searchnet/pkg/ml/hyperparams"
	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Hyperparameter keys and their defaults.
const (
	// ParamLearningRate is the learning rate used by TrainStep.
	ParamLearningRate = "learning_rate"

	// ParamSortedCreationKey selects store.KeySorted creation keys, so the same set of features given in a
	// different order maps to the same hidden node. It must match the mode the store was initialized with.
	ParamSortedCreationKey = "sorted_creation_key"

	DefaultLearningRate = 0.5
)

var (
	// ErrInvalidLabel is returned by TrainStep when the label is not one of the output ids.
	ErrInvalidLabel = errors.New("label is not one of the output ids")

	// ErrEmptyInput is returned when the feature ids or the output ids are empty.
	ErrEmptyInput = errors.New("feature ids and output ids must not be empty")
)

// DefaultParams returns the default hyperparameters.
func DefaultParams() *hyperparams.Params {
	return hyperparams.New(
		ParamLearningRate, DefaultLearningRate,
		ParamSortedCreationKey, false,
	)
}

// Engine trains and queries the network stored in a store.Store.
//
// It is safe for concurrent use: training steps are serialized, and predictions can run concurrently
// with each other but not with a training step.
type Engine struct {
	mu           sync.RWMutex
	store        store.Store
	learningRate float64
	keyMode      store.KeyMode
}

// New creates an Engine over st configured by params (see DefaultParams). Missing params take their default.
func New(st store.Store, params *hyperparams.Params) (*Engine, error) {
	if st == nil {
		return nil, errors.New("searchnet.New: nil store")
	}
	e := &Engine{
		store:        st,
		learningRate: hyperparams.GetOr(params, ParamLearningRate, DefaultLearningRate),
		keyMode:      store.KeyOrdered,
	}
	if hyperparams.GetOr(params, ParamSortedCreationKey, false) {
		e.keyMode = store.KeySorted
	}
	if !(e.learningRate > 0) {
		return nil, errors.Errorf("searchnet.New: %s must be > 0, got %g", ParamLearningRate, e.learningRate)
	}
	return e, nil
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// LearningRate used by TrainStep.
func (e *Engine) LearningRate() float64 { return e.learningRate }

// KeyMode used to derive hidden node creation keys.
func (e *Engine) KeyMode() store.KeyMode { return e.keyMode }

// InitializeStore creates the store tables if needed. It is idempotent, and fails with
// store.ErrKeyModeMismatch if the store was initialized with a different creation key mode.
func (e *Engine) InitializeStore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.WithMessagef(e.store.Initialize(ctx, e.keyMode), "searchnet.InitializeStore")
}

func validateIDs(featureIDs, outputIDs []store.ID) error {
	if len(featureIDs) == 0 || len(outputIDs) == 0 {
		return errors.Wrapf(ErrEmptyInput, "got %d feature ids and %d output ids", len(featureIDs), len(outputIDs))
	}
	return nil
}

// inTx runs fn in a transaction, committing it if fn succeeds and rolling it back otherwise.
// Read-only transactions are always rolled back.
func (e *Engine) inTx(ctx context.Context, readOnly bool, fn func(tx store.Tx) error) (err error) {
	tx, err := e.store.Begin(ctx, readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && err == nil {
			err = rbErr
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	return tx.Commit()
}

// EnsureTopology creates the hidden node for this combination of feature ids, connected to the features and
// to the outputs with default strengths, and commits it. If it already exists, nothing is changed.
//
// It returns the hidden node and whether it was created by this call.
func (e *Engine) EnsureTopology(ctx context.Context, featureIDs, outputIDs []store.ID) (
	node store.HiddenNode, created bool, err error) {
	if err = validateIDs(featureIDs, outputIDs); err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err = e.inTx(ctx, false, func(tx store.Tx) (err error) {
		node, created, err = ensureTopology(ctx, tx, e.keyMode, featureIDs, outputIDs)
		return
	})
	if err != nil {
		err = errors.WithMessagef(err, "searchnet.EnsureTopology(%v)", featureIDs)
		created = false
	}
	return
}

// Network assembles and returns the network for the query, without running it.
func (e *Engine) Network(ctx context.Context, featureIDs, outputIDs []store.ID) (net *Network, err error) {
	if err = validateIDs(featureIDs, outputIDs); err != nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	err = e.inTx(ctx, true, func(tx store.Tx) (err error) {
		net, err = setupNetwork(ctx, tx, featureIDs, outputIDs)
		return
	})
	return
}

// Predict returns the output activations, one per output id, in the range (-1, 1).
// It doesn't change the store.
func (e *Engine) Predict(ctx context.Context, featureIDs, outputIDs []store.ID) ([]float64, error) {
	net, err := e.Network(ctx, featureIDs, outputIDs)
	if err != nil {
		return nil, errors.WithMessagef(err, "searchnet.Predict(%v)", featureIDs)
	}
	return net.FeedForward(), nil
}

// StepResult reports what a training step did.
type StepResult struct {
	// HiddenNode for the feature ids combination, and whether it was created in this step.
	HiddenNode store.HiddenNode
	Created    bool

	// Outputs before the update.
	Outputs []float64

	// Loss is 0.5 * sum((target-output)^2) before the update.
	Loss float64

	// Correct is true if the label had the largest output before the update.
	Correct bool
}

// Score returns the loss (0.5 * sum((target-output)^2)) of outputs with respect to a one-hot target at label,
// and whether the label has the largest output.
func Score(outputs []float64, outputIDs []store.ID, label store.ID) (loss float64, correct bool, err error) {
	labelIdx := slices.Index(outputIDs, label)
	if labelIdx < 0 {
		err = errors.Wrapf(ErrInvalidLabel, "label %d not in %v", label, outputIDs)
		return
	}
	if len(outputs) != len(outputIDs) {
		err = errors.Errorf("got %d outputs for %d output ids", len(outputs), len(outputIDs))
		return
	}
	for k, output := range outputs {
		var target float64
		if k == labelIdx {
			target = 1.0
		}
		loss += 0.5 * (target - output) * (target - output)
	}
	correct = xslices.ArgMax(outputs) == labelIdx
	return
}

// TrainStep trains the network on one example: it makes sure the hidden node for the feature ids exists,
// runs the network, back-propagates the error with respect to a one-hot target at label, and writes all
// updated strengths back.
//
// The whole step is one store transaction: if anything fails, none of its changes are visible.
func (e *Engine) TrainStep(ctx context.Context, featureIDs, outputIDs []store.ID, label store.ID) (
	result StepResult, err error) {
	if err = validateIDs(featureIDs, outputIDs); err != nil {
		return
	}
	labelIdx := slices.Index(outputIDs, label)
	if labelIdx < 0 {
		err = errors.Wrapf(ErrInvalidLabel, "label %d not in %v", label, outputIDs)
		return
	}
	targets := make([]float64, len(outputIDs))
	targets[labelIdx] = 1.0

	e.mu.Lock()
	defer e.mu.Unlock()
	err = e.inTx(ctx, false, func(tx store.Tx) error {
		node, created, err := ensureTopology(ctx, tx, e.keyMode, featureIDs, outputIDs)
		if err != nil {
			return err
		}
		net, err := setupNetwork(ctx, tx, featureIDs, outputIDs)
		if err != nil {
			return err
		}
		outputs := net.FeedForward()
		loss := net.BackPropagate(targets, e.learningRate)
		if err = net.writeBack(ctx, tx); err != nil {
			return err
		}
		result = StepResult{
			HiddenNode: node,
			Created:    created,
			Outputs:    outputs,
			Loss:       loss,
			Correct:    xslices.ArgMax(outputs) == labelIdx,
		}
		return nil
	})
	if err != nil {
		err = errors.WithMessagef(err, "searchnet.TrainStep(%v, label=%d)", featureIDs, label)
		result = StepResult{}
		return
	}
	if klog.V(2).Enabled() {
		klog.Infof("searchnet: trained %v label=%d: outputs=%v loss=%.4f", featureIDs, label, result.Outputs, result.Loss)
	}
	return
}

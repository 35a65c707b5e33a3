// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package searchnet

import (
	"context"
	"math"
	"slices"

	"github.com/gomlx/searchnet/pkg/store"
	"github.com/gomlx/searchnet/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Network is the sub-network relevant to one query, materialized from the store.
//
// It is a value object: it is built fresh for every call (see Engine.Network) since topology and weights
// may change between calls, and it is never written back except through a training step.
//
// Indices: i runs over FeatureIDs, j over HiddenIDs and k over OutputIDs.
type Network struct {
	FeatureIDs, HiddenIDs, OutputIDs []store.ID

	// AI, AH and AO are the activations of the input, hidden and output nodes.
	AI, AH, AO []float64

	// WI is shaped [len(FeatureIDs)][len(HiddenIDs)], WO is shaped [len(HiddenIDs)][len(OutputIDs)].
	WI, WO [][]float64
}

// setupNetwork resolves the hidden nodes connected to the query and reads all the weights between
// the features, the hidden nodes and the outputs. Activations are initialized to 1.
func setupNetwork(ctx context.Context, tx store.Tx, featureIDs, outputIDs []store.ID) (*Network, error) {
	hiddenIDs, err := tx.HiddenIDs(ctx, featureIDs, outputIDs)
	if err != nil {
		return nil, errors.WithMessagef(err, "resolving hidden nodes")
	}
	net := &Network{
		FeatureIDs: slices.Clone(featureIDs),
		HiddenIDs:  hiddenIDs,
		OutputIDs:  slices.Clone(outputIDs),
		AI:         xslices.SliceWithValue(len(featureIDs), 1.0),
		AH:         xslices.SliceWithValue(len(hiddenIDs), 1.0),
		AO:         xslices.SliceWithValue(len(outputIDs), 1.0),
		WI:         xslices.Slice2DWithValue(0.0, len(featureIDs), len(hiddenIDs)),
		WO:         xslices.Slice2DWithValue(0.0, len(hiddenIDs), len(outputIDs)),
	}
	for i, featureID := range net.FeatureIDs {
		for j, hiddenID := range net.HiddenIDs {
			if net.WI[i][j], err = tx.Strength(ctx, featureID, hiddenID, store.InputHidden); err != nil {
				return nil, err
			}
		}
	}
	for j, hiddenID := range net.HiddenIDs {
		for k, outputID := range net.OutputIDs {
			if net.WO[j][k], err = tx.Strength(ctx, hiddenID, outputID, store.HiddenOutput); err != nil {
				return nil, err
			}
		}
	}
	return net, nil
}

// FeedForward computes the activations of the network and returns a copy of the output activations.
//
// Every active feature feeds a 1.0 signal: only the presence of a feature id matters, not the magnitude
// of the value it came from.
func (net *Network) FeedForward() []float64 {
	for i := range net.AI {
		net.AI[i] = 1.0
	}
	for j := range net.AH {
		var sum float64
		for i := range net.AI {
			sum += net.AI[i] * net.WI[i][j]
		}
		net.AH[j] = math.Tanh(sum)
	}
	for k := range net.AO {
		var sum float64
		for j := range net.AH {
			sum += net.AH[j] * net.WO[j][k]
		}
		net.AO[k] = math.Tanh(sum)
	}
	return slices.Clone(net.AO)
}

// dtanh is the derivative of tanh expressed in terms of its output y = tanh(x).
func dtanh(y float64) float64 {
	return 1.0 - y*y
}

// BackPropagate updates WI and WO in place to move the outputs of the last FeedForward towards targets,
// with the given learning rate. It returns the squared error (0.5 * sum((target-output)^2)) before the update.
//
// It must be called after FeedForward, and len(targets) must match len(OutputIDs).
func (net *Network) BackPropagate(targets []float64, learningRate float64) (loss float64) {
	outputDeltas := make([]float64, len(net.AO))
	for k := range net.AO {
		err := targets[k] - net.AO[k]
		loss += 0.5 * err * err
		outputDeltas[k] = dtanh(net.AO[k]) * err
	}

	// Hidden deltas use WO before it is updated.
	hiddenDeltas := make([]float64, len(net.AH))
	for j := range net.AH {
		var err float64
		for k := range outputDeltas {
			err += outputDeltas[k] * net.WO[j][k]
		}
		hiddenDeltas[j] = dtanh(net.AH[j]) * err
	}

	for j := range net.AH {
		for k := range outputDeltas {
			net.WO[j][k] += learningRate * outputDeltas[k] * net.AH[j]
		}
	}
	for i := range net.AI {
		for j := range hiddenDeltas {
			net.WI[i][j] += learningRate * hiddenDeltas[j] * net.AI[i]
		}
	}
	return loss
}

// writeBack stores every weight of the network through tx. Nothing is visible until tx is committed.
func (net *Network) writeBack(ctx context.Context, tx store.Tx) error {
	for i, featureID := range net.FeatureIDs {
		for j, hiddenID := range net.HiddenIDs {
			if err := tx.SetStrength(ctx, featureID, hiddenID, store.InputHidden, net.WI[i][j]); err != nil {
				return err
			}
		}
	}
	for j, hiddenID := range net.HiddenIDs {
		for k, outputID := range net.OutputIDs {
			if err := tx.SetStrength(ctx, hiddenID, outputID, store.HiddenOutput, net.WO[j][k]); err != nil {
				return err
			}
		}
	}
	return nil
}

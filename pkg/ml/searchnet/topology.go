// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package searchnet

import (
	"context"

	"github.com/gomlx/searchnet/pkg/store"
	"k8s.io/klog/v2"
)

// InitialHiddenOutputStrength is the strength of the edges from a newly created hidden node to each output.
const InitialHiddenOutputStrength = 0.1

// ensureTopology creates, within tx, the hidden node for the feature ids combination if it doesn't exist yet.
//
// A new hidden node is connected from every feature with strength 1/len(featureIDs), and to every output
// with InitialHiddenOutputStrength. If the node already exists nothing changes, even if outputIDs differ
// from the ones used when it was created.
func ensureTopology(ctx context.Context, tx store.Tx, mode store.KeyMode, featureIDs, outputIDs []store.ID) (
	node store.HiddenNode, created bool, err error) {
	key := store.CreationKey(featureIDs, mode)
	var found bool
	node, found, err = tx.HiddenNodeByKey(ctx, key)
	if err != nil || found {
		return
	}
	node, err = tx.CreateHiddenNode(ctx, key)
	if err != nil {
		return
	}
	inputStrength := 1.0 / float64(len(featureIDs))
	for _, featureID := range featureIDs {
		if err = tx.SetStrength(ctx, featureID, node.ID, store.InputHidden, inputStrength); err != nil {
			return
		}
	}
	for _, outputID := range outputIDs {
		if err = tx.SetStrength(ctx, node.ID, outputID, store.HiddenOutput, InitialHiddenOutputStrength); err != nil {
			return
		}
	}
	klog.V(1).Infof("searchnet: created hidden node %d for key %q (%d outputs)", node.ID, key, len(outputIDs))
	created = true
	return
}

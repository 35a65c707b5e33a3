// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package store defines the weight store used by searchnet: a durable mapping of
// (fromID, toID, layer) to a connection strength, plus the registry of hidden nodes
// keyed by the combination of feature ids that created them.
//
// Concrete engines live in sub-packages: sqlstore (SQLite, durable) and memstore (in-memory,
// for tests and ephemeral runs). All reads and writes happen inside a Tx, and nothing
// written in a Tx is visible to other transactions until Tx.Commit succeeds.
package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ID identifies a node in the network: an input feature, a hidden node or an output.
// Feature and output ids are opaque to the store; hidden node ids are assigned by the store.
type ID int64

// Layer distinguishes the two weight relations of the network.
type Layer int

const (
	// InputHidden holds edges from input features to hidden nodes.
	InputHidden Layer = iota

	// HiddenOutput holds edges from hidden nodes to outputs.
	HiddenOutput
)

// String implements fmt.Stringer.
func (l Layer) String() string {
	switch l {
	case InputHidden:
		return "InputHidden"
	case HiddenOutput:
		return "HiddenOutput"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// Valid returns whether l is one of the known layers.
func (l Layer) Valid() bool {
	return l == InputHidden || l == HiddenOutput
}

// Default strengths for edges that were never persisted.
const (
	DefaultInputHiddenStrength  = -0.2
	DefaultHiddenOutputStrength = 0.0
)

// DefaultStrength returns the strength read for an edge of the given layer that has never been written.
func DefaultStrength(layer Layer) float64 {
	if layer == InputHidden {
		return DefaultInputHiddenStrength
	}
	return DefaultHiddenOutputStrength
}

// Edge is one persisted connection.
type Edge struct {
	From, To ID
	Layer    Layer
	Strength float64
}

// HiddenNode is a hidden unit created for one specific combination of feature ids.
type HiddenNode struct {
	ID          ID
	CreationKey string
}

// KeyMode selects how the creation key of a hidden node is derived from its feature ids.
type KeyMode string

const (
	// KeyOrdered joins the feature ids in the order given: [1, 2] and [2, 1] are different hidden nodes.
	KeyOrdered KeyMode = "ordered"

	// KeySorted sorts the feature ids before joining them, so the order they are given doesn't matter.
	// Stores created with one mode can't be used with the other.
	KeySorted KeyMode = "sorted"
)

// CreationKey returns the deterministic creation key for the feature ids: the decimal ids joined by "_".
func CreationKey(featureIDs []ID, mode KeyMode) string {
	ids := featureIDs
	if mode == KeySorted {
		ids = slices.Clone(featureIDs)
		slices.Sort(ids)
	}
	var sb strings.Builder
	for ii, id := range ids {
		if ii > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return sb.String()
}

// Stats summarizes the contents of a store.
type Stats struct {
	StoreID           string
	KeyMode           KeyMode
	NumHiddenNodes    int64
	NumInputHidden    int64
	NumHiddenOutput   int64
	SumAbsInputHidden float64
	SumAbsHiddenOut   float64
}

// Store is a weight store. Implementations must be safe to use from multiple goroutines, but
// searchnet only ever has one write transaction open at a time.
type Store interface {
	// Initialize creates the underlying tables if they don't exist yet and records the key mode
	// on first use. It returns ErrKeyModeMismatch if the store was initialized with a different mode.
	Initialize(ctx context.Context, mode KeyMode) error

	// KeyMode returns the mode the store was initialized with, or "" if it was not initialized.
	KeyMode(ctx context.Context) (KeyMode, error)

	// Begin starts a transaction. Set readOnly for transactions that are always rolled back.
	Begin(ctx context.Context, readOnly bool) (Tx, error)

	// Stats returns counters over the whole store.
	Stats(ctx context.Context) (Stats, error)

	// HiddenNodes enumerates all hidden nodes in creation order. Enumeration stops if fn returns false.
	HiddenNodes(ctx context.Context, fn func(HiddenNode) bool) error

	// Edges enumerates all edges of a layer in insertion order. Enumeration stops if fn returns false.
	Edges(ctx context.Context, layer Layer, fn func(Edge) bool) error

	// Close releases the store. Open transactions must be finished before.
	Close() error
}

// Tx is a unit of work against the store. After Commit or Rollback the Tx can't be used anymore.
type Tx interface {
	// Strength returns the strength of the edge, or DefaultStrength(layer) if it doesn't exist.
	Strength(ctx context.Context, from, to ID, layer Layer) (float64, error)

	// SetStrength updates the edge if it exists, or inserts it otherwise.
	SetStrength(ctx context.Context, from, to ID, layer Layer, strength float64) error

	// HiddenNodeByKey returns the hidden node with the creation key, and whether it was found.
	HiddenNodeByKey(ctx context.Context, key string) (node HiddenNode, found bool, err error)

	// CreateHiddenNode registers a new hidden node and returns it with its assigned id.
	CreateHiddenNode(ctx context.Context, key string) (HiddenNode, error)

	// HiddenIDs returns the ids of the hidden nodes connected to any of the features (InputHidden edges
	// from them) or to any of the outputs (HiddenOutput edges into them).
	// Ids are returned in first-seen order without repetitions.
	HiddenIDs(ctx context.Context, featureIDs, outputIDs []ID) ([]ID, error)

	// Commit makes all writes of the transaction durable and visible at once.
	Commit() error

	// Rollback discards all writes of the transaction. It is safe to call after Commit, in which case it
	// does nothing, so it can be deferred.
	Rollback() error
}

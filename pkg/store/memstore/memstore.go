// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package memstore implements an in-memory store.Store.
//
// Write transactions work on a private copy of the data that replaces the shared one on Commit,
// and only one write transaction can be open at a time: Begin blocks until the previous one finishes.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/searchnet/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type edgeKey struct{ from, to store.ID }

type layerEdges struct {
	rows  []store.Edge
	index map[edgeKey]int
}

func (le *layerEdges) clone() *layerEdges {
	return &layerEdges{rows: slices.Clone(le.rows), index: maps.Clone(le.index)}
}

type state struct {
	storeID string
	mode    store.KeyMode
	nodes   []store.HiddenNode
	keys    map[string]store.ID
	edges   [2]*layerEdges
}

func newState() *state {
	return &state{
		keys: make(map[string]store.ID),
		edges: [2]*layerEdges{
			{index: make(map[edgeKey]int)},
			{index: make(map[edgeKey]int)},
		},
	}
}

func (s *state) clone() *state {
	return &state{
		storeID: s.storeID,
		mode:    s.mode,
		nodes:   slices.Clone(s.nodes),
		keys:    maps.Clone(s.keys),
		edges:   [2]*layerEdges{s.edges[0].clone(), s.edges[1].clone()},
	}
}

// Store is an in-memory store.Store.
type Store struct {
	mu      sync.Mutex // Protects data and closed.
	writeMu sync.Mutex // Held by the open write transaction.
	data    *state
	closed  bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty, uninitialized in-memory store.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) snapshot(op string) (*state, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.WrapStorage(errors.New("store is closed"), "%s", op)
	}
	return s.data, nil
}

// Initialize implements store.Store.
func (s *Store) Initialize(_ context.Context, mode store.KeyMode) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.WrapStorage(errors.New("store is closed"), "Initialize")
	}
	if s.data.mode == "" {
		s.data.mode = mode
		s.data.storeID = uuid.NewString()
		return nil
	}
	if s.data.mode != mode {
		return errors.Wrapf(store.ErrKeyModeMismatch, "store initialized with %q, requested %q", s.data.mode, mode)
	}
	return nil
}

// KeyMode implements store.Store.
func (s *Store) KeyMode(_ context.Context) (store.KeyMode, error) {
	data, err := s.snapshot("KeyMode")
	if err != nil {
		return "", err
	}
	return data.mode, nil
}

// Begin implements store.Store.
func (s *Store) Begin(_ context.Context, readOnly bool) (store.Tx, error) {
	if readOnly {
		data, err := s.snapshot("Begin")
		if err != nil {
			return nil, err
		}
		if data.mode == "" {
			return nil, store.ErrNotInitialized
		}
		return &tx{store: s, data: data, readOnly: true}, nil
	}
	s.writeMu.Lock()
	data, err := s.snapshot("Begin")
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	if data.mode == "" {
		s.writeMu.Unlock()
		return nil, store.ErrNotInitialized
	}
	return &tx{store: s, data: data.clone()}, nil
}

// Stats implements store.Store.
func (s *Store) Stats(_ context.Context) (stats store.Stats, err error) {
	data, err := s.snapshot("Stats")
	if err != nil {
		return
	}
	stats.StoreID = data.storeID
	stats.KeyMode = data.mode
	stats.NumHiddenNodes = int64(len(data.nodes))
	stats.NumInputHidden = int64(len(data.edges[store.InputHidden].rows))
	stats.NumHiddenOutput = int64(len(data.edges[store.HiddenOutput].rows))
	for _, e := range data.edges[store.InputHidden].rows {
		stats.SumAbsInputHidden += abs(e.Strength)
	}
	for _, e := range data.edges[store.HiddenOutput].rows {
		stats.SumAbsHiddenOut += abs(e.Strength)
	}
	return
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// HiddenNodes implements store.Store.
func (s *Store) HiddenNodes(_ context.Context, fn func(store.HiddenNode) bool) error {
	data, err := s.snapshot("HiddenNodes")
	if err != nil {
		return err
	}
	for _, node := range data.nodes {
		if !fn(node) {
			break
		}
	}
	return nil
}

// Edges implements store.Store.
func (s *Store) Edges(_ context.Context, layer store.Layer, fn func(store.Edge) bool) error {
	if !layer.Valid() {
		return errors.Errorf("invalid layer %s", layer)
	}
	data, err := s.snapshot("Edges")
	if err != nil {
		return err
	}
	for _, e := range data.edges[layer].rows {
		if !fn(e) {
			break
		}
	}
	return nil
}

// Close implements store.Store. Any further use of the store returns a store.StorageError.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	store    *Store
	data     *state
	readOnly bool
	done     bool
}

func (t *tx) check(write bool) error {
	if t.done {
		return store.ErrTxDone
	}
	if write && t.readOnly {
		return errors.New("write in a read-only transaction")
	}
	return nil
}

// Strength implements store.Tx.
func (t *tx) Strength(_ context.Context, from, to store.ID, layer store.Layer) (float64, error) {
	if err := t.check(false); err != nil {
		return 0, err
	}
	if !layer.Valid() {
		return 0, errors.Errorf("invalid layer %s", layer)
	}
	le := t.data.edges[layer]
	if idx, found := le.index[edgeKey{from, to}]; found {
		return le.rows[idx].Strength, nil
	}
	return store.DefaultStrength(layer), nil
}

// SetStrength implements store.Tx.
func (t *tx) SetStrength(_ context.Context, from, to store.ID, layer store.Layer, strength float64) error {
	if err := t.check(true); err != nil {
		return err
	}
	if !layer.Valid() {
		return errors.Errorf("invalid layer %s", layer)
	}
	le := t.data.edges[layer]
	key := edgeKey{from, to}
	if idx, found := le.index[key]; found {
		le.rows[idx].Strength = strength
		return nil
	}
	le.index[key] = len(le.rows)
	le.rows = append(le.rows, store.Edge{From: from, To: to, Layer: layer, Strength: strength})
	return nil
}

// HiddenNodeByKey implements store.Tx.
func (t *tx) HiddenNodeByKey(_ context.Context, key string) (store.HiddenNode, bool, error) {
	if err := t.check(false); err != nil {
		return store.HiddenNode{}, false, err
	}
	id, found := t.data.keys[key]
	if !found {
		return store.HiddenNode{}, false, nil
	}
	return store.HiddenNode{ID: id, CreationKey: key}, true, nil
}

// CreateHiddenNode implements store.Tx. Ids start at 1, like SQLite row ids.
func (t *tx) CreateHiddenNode(_ context.Context, key string) (store.HiddenNode, error) {
	if err := t.check(true); err != nil {
		return store.HiddenNode{}, err
	}
	node := store.HiddenNode{ID: store.ID(len(t.data.nodes) + 1), CreationKey: key}
	t.data.nodes = append(t.data.nodes, node)
	if _, found := t.data.keys[key]; !found {
		t.data.keys[key] = node.ID
	}
	return node, nil
}

// HiddenIDs implements store.Tx.
func (t *tx) HiddenIDs(_ context.Context, featureIDs, outputIDs []store.ID) ([]store.ID, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	var ids []store.ID
	seen := make(map[store.ID]bool)
	add := func(id store.ID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, featureID := range featureIDs {
		for _, e := range t.data.edges[store.InputHidden].rows {
			if e.From == featureID {
				add(e.To)
			}
		}
	}
	for _, outputID := range outputIDs {
		for _, e := range t.data.edges[store.HiddenOutput].rows {
			if e.To == outputID {
				add(e.From)
			}
		}
	}
	return ids, nil
}

// Commit implements store.Tx.
func (t *tx) Commit() error {
	if err := t.check(false); err != nil {
		return err
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	defer t.store.writeMu.Unlock()
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return store.WrapStorage(errors.New("store is closed"), "Commit")
	}
	t.store.data = t.data
	return nil
}

// Rollback implements store.Tx.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.readOnly {
		t.store.writeMu.Unlock()
	}
	return nil
}

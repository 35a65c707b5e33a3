// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements store.Store on SQLite, using the pure Go modernc.org/sqlite driver.
//
// Layout:
//
//   - hidden_node(id, create_key): one row per hidden node, indexed by create_key.
//   - input_hidden(from_id, to_id, strength) and hidden_output(from_id, to_id, strength): one table per layer,
//     each indexed by from_id and by to_id. (from_id, to_id) is not declared unique: SetStrength checks
//     for an existing row before deciding between UPDATE and INSERT.
//   - store_meta(key, value): store id, creation key mode and schema version.
//
// All statements are parameterized.
package sqlstore

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/gomlx/searchnet/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "modernc.org/sqlite"
)

// DriverName of the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// SchemaVersion written to store_meta on initialization.
const SchemaVersion = 1

// Keys in store_meta.
const (
	MetaStoreID       = "store_id"
	MetaKeyMode       = "creation_key_mode"
	MetaSchemaVersion = "schema_version"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS store_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS hidden_node (id INTEGER PRIMARY KEY AUTOINCREMENT, create_key TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS input_hidden (from_id INTEGER NOT NULL, to_id INTEGER NOT NULL, strength REAL NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS hidden_output (from_id INTEGER NOT NULL, to_id INTEGER NOT NULL, strength REAL NOT NULL)`,
	`CREATE INDEX IF NOT EXISTS hidden_key_idx ON hidden_node(create_key)`,
	`CREATE INDEX IF NOT EXISTS input_from_idx ON input_hidden(from_id)`,
	`CREATE INDEX IF NOT EXISTS input_to_idx ON input_hidden(to_id)`,
	`CREATE INDEX IF NOT EXISTS output_from_idx ON hidden_output(from_id)`,
	`CREATE INDEX IF NOT EXISTS output_to_idx ON hidden_output(to_id)`,
}

// layerQueries holds the statements for one layer table. Table names are fixed here and never
// come from the caller.
type layerQueries struct {
	table, selectStrength, selectRowID, insert, update, toByFrom, fromByTo, all string
}

func newLayerQueries(table string) layerQueries {
	return layerQueries{
		table:          table,
		selectStrength: "SELECT strength FROM " + table + " WHERE from_id = ? AND to_id = ? ORDER BY rowid LIMIT 1",
		selectRowID:    "SELECT rowid FROM " + table + " WHERE from_id = ? AND to_id = ? ORDER BY rowid LIMIT 1",
		insert:         "INSERT INTO " + table + " (from_id, to_id, strength) VALUES (?, ?, ?)",
		update:         "UPDATE " + table + " SET strength = ? WHERE rowid = ?",
		toByFrom:       "SELECT to_id FROM " + table + " WHERE from_id = ? ORDER BY rowid",
		fromByTo:       "SELECT from_id FROM " + table + " WHERE to_id = ? ORDER BY rowid",
		all:            "SELECT from_id, to_id, strength FROM " + table + " ORDER BY rowid",
	}
}

var queries = [2]layerQueries{
	store.InputHidden:  newLayerQueries("input_hidden"),
	store.HiddenOutput: newLayerQueries("hidden_output"),
}

func layerQueriesFor(layer store.Layer) (*layerQueries, error) {
	if !layer.Valid() {
		return nil, errors.Errorf("invalid layer %s", layer)
	}
	return &queries[layer], nil
}

// Store is a store.Store backed by a SQLite database.
type Store struct {
	db          *sql.DB
	path        string
	initialized atomic.Bool
}

var _ store.Store = (*Store)(nil)

// dataSourceName returns the SQLite URI filename for path, with the connection pragmas.
// The path is escaped, so names with '?', '#' or '%' open the file they name.
func dataSourceName(path string) string {
	if path == ":memory:" {
		return path
	}
	query := url.Values{}
	for _, pragma := range []string{"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(FULL)"} {
		query.Add("_pragma", pragma)
	}
	u := url.URL{Scheme: "file", Path: path, OmitHost: true, RawQuery: query.Encode()}
	return u.String()
}

// Open opens (creating if needed) the SQLite database at path. Use ":memory:" for a private in-memory database.
//
// The store uses a single connection, so transactions are serialized by database/sql.
// Call Initialize before using a new database.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DriverName, dataSourceName(path))
	if err != nil {
		return nil, store.WrapStorage(err, "open %q", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, store.WrapStorage(err, "open %q", path)
	}
	klog.V(1).Infof("sqlstore: opened %q", path)
	return &Store{db: db, path: path}, nil
}

// Initialize implements store.Store.
func (s *Store) Initialize(ctx context.Context, mode store.KeyMode) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WrapStorage(err, "Initialize")
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	for _, stmt := range schema {
		if _, err = sqlTx.ExecContext(ctx, stmt); err != nil {
			return store.WrapStorage(err, "Initialize: %s", stmt)
		}
	}
	var current string
	err = sqlTx.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", MetaKeyMode).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		meta := [][2]string{
			{MetaStoreID, uuid.NewString()},
			{MetaKeyMode, string(mode)},
			{MetaSchemaVersion, strconv.Itoa(SchemaVersion)},
		}
		for _, kv := range meta {
			if _, err = sqlTx.ExecContext(ctx, "INSERT INTO store_meta (key, value) VALUES (?, ?)", kv[0], kv[1]); err != nil {
				return store.WrapStorage(err, "Initialize: writing %q", kv[0])
			}
		}
		klog.V(1).Infof("sqlstore: initialized %q with creation key mode %q", s.path, mode)
	case err != nil:
		return store.WrapStorage(err, "Initialize: reading %q", MetaKeyMode)
	case store.KeyMode(current) != mode:
		err = errors.Wrapf(store.ErrKeyModeMismatch, "store %q initialized with %q, requested %q", s.path, current, mode)
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return store.WrapStorage(err, "Initialize: commit")
	}
	s.initialized.Store(true)
	return nil
}

// KeyMode implements store.Store.
func (s *Store) KeyMode(ctx context.Context) (store.KeyMode, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'store_meta'").Scan(&count)
	if err != nil {
		return "", store.WrapStorage(err, "KeyMode")
	}
	if count == 0 {
		return "", nil
	}
	var mode string
	err = s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", MetaKeyMode).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", store.WrapStorage(err, "KeyMode")
	}
	return store.KeyMode(mode), nil
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context, readOnly bool) (store.Tx, error) {
	if !s.initialized.Load() {
		mode, err := s.KeyMode(ctx)
		if err != nil {
			return nil, err
		}
		if mode == "" {
			return nil, errors.Wrapf(store.ErrNotInitialized, "sqlstore %q", s.path)
		}
		s.initialized.Store(true)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.WrapStorage(err, "Begin")
	}
	return &tx{sqlTx: sqlTx, readOnly: readOnly}, nil
}

// Stats implements store.Store.
func (s *Store) Stats(ctx context.Context) (stats store.Stats, err error) {
	const metaQuery = "SELECT value FROM store_meta WHERE key = ?"
	rows := []struct {
		query string
		args  []any
		dest  []any
	}{
		{metaQuery, []any{MetaStoreID}, []any{&stats.StoreID}},
		{metaQuery, []any{MetaKeyMode}, []any{&stats.KeyMode}},
		{"SELECT COUNT(*) FROM hidden_node", nil, []any{&stats.NumHiddenNodes}},
		{"SELECT COUNT(*), TOTAL(ABS(strength)) FROM input_hidden", nil,
			[]any{&stats.NumInputHidden, &stats.SumAbsInputHidden}},
		{"SELECT COUNT(*), TOTAL(ABS(strength)) FROM hidden_output", nil,
			[]any{&stats.NumHiddenOutput, &stats.SumAbsHiddenOut}},
	}
	for _, row := range rows {
		if err = s.db.QueryRowContext(ctx, row.query, row.args...).Scan(row.dest...); err != nil {
			err = store.WrapStorage(err, "Stats: %s", row.query)
			return
		}
	}
	return
}

// HiddenNodes implements store.Store.
func (s *Store) HiddenNodes(ctx context.Context, fn func(store.HiddenNode) bool) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, create_key FROM hidden_node ORDER BY id")
	if err != nil {
		return store.WrapStorage(err, "HiddenNodes")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var node store.HiddenNode
		if err = rows.Scan(&node.ID, &node.CreationKey); err != nil {
			return store.WrapStorage(err, "HiddenNodes")
		}
		if !fn(node) {
			return nil
		}
	}
	return store.WrapStorage(rows.Err(), "HiddenNodes")
}

// Edges implements store.Store.
func (s *Store) Edges(ctx context.Context, layer store.Layer, fn func(store.Edge) bool) error {
	q, err := layerQueriesFor(layer)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, q.all)
	if err != nil {
		return store.WrapStorage(err, "Edges(%s)", layer)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		e := store.Edge{Layer: layer}
		if err = rows.Scan(&e.From, &e.To, &e.Strength); err != nil {
			return store.WrapStorage(err, "Edges(%s)", layer)
		}
		if !fn(e) {
			return nil
		}
	}
	return store.WrapStorage(rows.Err(), "Edges(%s)", layer)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return store.WrapStorage(s.db.Close(), "Close")
}

type tx struct {
	sqlTx    *sql.Tx
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
func (t *tx) Strength(ctx context.Context, from, to store.ID, layer store.Layer) (float64, error) {
	if err := t.check(false); err != nil {
		return 0, err
	}
	q, err := layerQueriesFor(layer)
	if err != nil {
		return 0, err
	}
	var strength float64
	err = t.sqlTx.QueryRowContext(ctx, q.selectStrength, from, to).Scan(&strength)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DefaultStrength(layer), nil
	}
	if err != nil {
		return 0, store.WrapStorage(err, "Strength(%d, %d, %s)", from, to, layer)
	}
	return strength, nil
}

// SetStrength implements store.Tx.
func (t *tx) SetStrength(ctx context.Context, from, to store.ID, layer store.Layer, strength float64) error {
	if err := t.check(true); err != nil {
		return err
	}
	q, err := layerQueriesFor(layer)
	if err != nil {
		return err
	}
	var rowID int64
	err = t.sqlTx.QueryRowContext(ctx, q.selectRowID, from, to).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = t.sqlTx.ExecContext(ctx, q.insert, from, to, strength)
	} else if err == nil {
		_, err = t.sqlTx.ExecContext(ctx, q.update, strength, rowID)
	}
	return store.WrapStorage(err, "SetStrength(%d, %d, %s)", from, to, layer)
}

// HiddenNodeByKey implements store.Tx.
func (t *tx) HiddenNodeByKey(ctx context.Context, key string) (store.HiddenNode, bool, error) {
	if err := t.check(false); err != nil {
		return store.HiddenNode{}, false, err
	}
	node := store.HiddenNode{CreationKey: key}
	err := t.sqlTx.QueryRowContext(ctx,
		"SELECT id FROM hidden_node WHERE create_key = ? ORDER BY id LIMIT 1", key).Scan(&node.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.HiddenNode{}, false, nil
	}
	if err != nil {
		return store.HiddenNode{}, false, store.WrapStorage(err, "HiddenNodeByKey(%q)", key)
	}
	return node, true, nil
}

// CreateHiddenNode implements store.Tx.
func (t *tx) CreateHiddenNode(ctx context.Context, key string) (store.HiddenNode, error) {
	if err := t.check(true); err != nil {
		return store.HiddenNode{}, err
	}
	res, err := t.sqlTx.ExecContext(ctx, "INSERT INTO hidden_node (create_key) VALUES (?)", key)
	if err != nil {
		return store.HiddenNode{}, store.WrapStorage(err, "CreateHiddenNode(%q)", key)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.HiddenNode{}, store.WrapStorage(err, "CreateHiddenNode(%q)", key)
	}
	return store.HiddenNode{ID: store.ID(id), CreationKey: key}, nil
}

// HiddenIDs implements store.Tx.
func (t *tx) HiddenIDs(ctx context.Context, featureIDs, outputIDs []store.ID) ([]store.ID, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	var ids []store.ID
	seen := make(map[store.ID]bool)
	collect := func(query string, keys []store.ID) error {
		stmt, err := t.sqlTx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, key := range keys {
			rows, err := stmt.QueryContext(ctx, key)
			if err != nil {
				return err
			}
			for rows.Next() {
				var id store.ID
				if err = rows.Scan(&id); err != nil {
					_ = rows.Close()
					return err
				}
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
			err = rows.Err()
			_ = rows.Close()
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(queries[store.InputHidden].toByFrom, featureIDs); err != nil {
		return nil, store.WrapStorage(err, "HiddenIDs")
	}
	if err := collect(queries[store.HiddenOutput].fromByTo, outputIDs); err != nil {
		return nil, store.WrapStorage(err, "HiddenIDs")
	}
	return ids, nil
}

// Commit implements store.Tx. Read-only transactions are rolled back instead.
func (t *tx) Commit() error {
	if err := t.check(false); err != nil {
		return err
	}
	t.done = true
	if t.readOnly {
		return store.WrapStorage(t.sqlTx.Rollback(), "Commit(read-only)")
	}
	return store.WrapStorage(t.sqlTx.Commit(), "Commit")
}

// Rollback implements store.Tx.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return store.WrapStorage(t.sqlTx.Rollback(), "Rollback")
}

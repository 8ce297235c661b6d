// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sql backs an smt.Store with a two-table database/sql schema
// (branches, leaves), usable against either MySQL or Postgres through the
// same queries modulo placeholder syntax and upsert dialect.
//
// Expected schema (DDL is the caller's responsibility, matching trillian's
// own migration-outside-the-library convention):
//
//	CREATE TABLE branches (
//	  height   SMALLINT NOT NULL,
//	  node_key VARBINARY(32) NOT NULL,
//	  data     BLOB NOT NULL,
//	  PRIMARY KEY (height, node_key)
//	);
//	CREATE TABLE leaves (
//	  leaf_key VARBINARY(32) NOT NULL PRIMARY KEY,
//	  data     BLOB NOT NULL
//	);
package sql

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/transparency-dev/smt"
)

type dialect struct {
	driverName     string
	upsertBranch   string
	upsertLeaf     string
	deleteBranch   string
	deleteLeaf     string
	selectBranch   string
	selectLeaf     string
	selectBranches string
	selectLeaves   string
}

var mysqlDialect = dialect{
	driverName:     "mysql",
	upsertBranch:   "INSERT INTO branches (height, node_key, data) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)",
	upsertLeaf:     "INSERT INTO leaves (leaf_key, data) VALUES (?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)",
	deleteBranch:   "DELETE FROM branches WHERE height = ? AND node_key = ?",
	deleteLeaf:     "DELETE FROM leaves WHERE leaf_key = ?",
	selectBranch:   "SELECT data FROM branches WHERE height = ? AND node_key = ?",
	selectLeaf:     "SELECT data FROM leaves WHERE leaf_key = ?",
	selectBranches: "SELECT height, node_key, data FROM branches",
	selectLeaves:   "SELECT leaf_key, data FROM leaves",
}

var postgresDialect = dialect{
	driverName:     "postgres",
	upsertBranch:   "INSERT INTO branches (height, node_key, data) VALUES ($1, $2, $3) ON CONFLICT (height, node_key) DO UPDATE SET data = EXCLUDED.data",
	upsertLeaf:     "INSERT INTO leaves (leaf_key, data) VALUES ($1, $2) ON CONFLICT (leaf_key) DO UPDATE SET data = EXCLUDED.data",
	deleteBranch:   "DELETE FROM branches WHERE height = $1 AND node_key = $2",
	deleteLeaf:     "DELETE FROM leaves WHERE leaf_key = $1",
	selectBranch:   "SELECT data FROM branches WHERE height = $1 AND node_key = $2",
	selectLeaf:     "SELECT data FROM leaves WHERE leaf_key = $1",
	selectBranches: "SELECT height, node_key, data FROM branches",
	selectLeaves:   "SELECT leaf_key, data FROM leaves",
}

// Store is an smt.Store backed by a SQL database. The zero value is not
// usable; construct one with NewMySQL or NewPostgres.
type Store[V smt.Value] struct {
	db *sql.DB
	d  dialect
}

// NewMySQL opens a Store against a MySQL database reachable at dsn, using
// github.com/go-sql-driver/mysql.
func NewMySQL[V smt.Value](dsn string) (*Store[V], error) {
	return open[V](dsn, mysqlDialect)
}

// NewPostgres opens a Store against a Postgres database reachable at dsn,
// using github.com/lib/pq.
func NewPostgres[V smt.Value](dsn string) (*Store[V], error) {
	return open[V](dsn, postgresDialect)
}

func open[V smt.Value](dsn string, d dialect) (*Store[V], error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("smt/store/sql: open %s: %w", d.driverName, err)
	}
	return &Store[V]{db: db, d: d}, nil
}

// Close releases the underlying database connection pool.
func (s *Store[V]) Close() error {
	return s.db.Close()
}

// sideRecord is BranchSide re-expressed in terms of MergeValue/ChildKey's
// exported accessors, since MergeValue's wrapped hash is unexported and
// gob only encodes exported struct fields.
type sideRecord struct {
	IsBranch     bool
	Leaf         smt.H256
	BranchHeight uint8
	BranchKey    smt.H256
	Hash         smt.H256
}

func encodeSide(s smt.BranchSide) sideRecord {
	r := sideRecord{IsBranch: s.Key.IsBranch, Hash: s.Value.Hash()}
	if s.Key.IsBranch {
		r.BranchHeight = s.Key.Branch.Height
		r.BranchKey = s.Key.Branch.NodeKey
	} else {
		r.Leaf = s.Key.Leaf
	}
	return r
}

func decodeSide(r sideRecord) smt.BranchSide {
	var key smt.ChildKey
	if r.IsBranch {
		key = smt.BranchChildKey(smt.BranchKey{Height: r.BranchHeight, NodeKey: r.BranchKey})
	} else {
		key = smt.LeafChildKey(r.Leaf)
	}
	return smt.BranchSide{Value: smt.MergeValueFromH256(r.Hash), Key: key}
}

type branchRecord struct {
	Left, Right sideRecord
}

func encodeBranch(b smt.BranchNode) ([]byte, error) {
	var buf bytes.Buffer
	rec := branchRecord{Left: encodeSide(b.Left), Right: encodeSide(b.Right)}
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBranch(data []byte) (smt.BranchNode, error) {
	var rec branchRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return smt.BranchNode{}, err
	}
	return smt.BranchNode{Left: decodeSide(rec.Left), Right: decodeSide(rec.Right)}, nil
}

// GetBranch implements smt.StoreReader.
func (s *Store[V]) GetBranch(key smt.BranchKey) (smt.BranchNode, bool, error) {
	var data []byte
	err := s.db.QueryRow(s.d.selectBranch, key.Height, key.NodeKey[:]).Scan(&data)
	if err == sql.ErrNoRows {
		return smt.BranchNode{}, false, nil
	}
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/sql: select branch: %w", err)
	}
	node, err := decodeBranch(data)
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/sql: decode branch: %w", err)
	}
	return node, true, nil
}

// GetLeaf implements smt.StoreReader.
func (s *Store[V]) GetLeaf(key smt.H256) (V, bool, error) {
	var zero V
	var data []byte
	err := s.db.QueryRow(s.d.selectLeaf, key[:]).Scan(&data)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("smt/store/sql: select leaf: %w", err)
	}
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, false, fmt.Errorf("smt/store/sql: decode leaf: %w", err)
	}
	return v, true, nil
}

// BranchesMap implements smt.StoreReader by loading every row. Rows that
// fail to decode are skipped rather than failing the whole scan, since the
// interface has no error return; callers who need strict validation should
// read branches individually via GetBranch instead.
func (s *Store[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	out := map[smt.BranchKey]smt.BranchNode{}
	rows, err := s.db.Query(s.d.selectBranches)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var height int
		var nodeKeyBytes, data []byte
		if err := rows.Scan(&height, &nodeKeyBytes, &data); err != nil {
			continue
		}
		node, err := decodeBranch(data)
		if err != nil {
			continue
		}
		var nodeKey smt.H256
		copy(nodeKey[:], nodeKeyBytes)
		out[smt.BranchKey{Height: uint8(height), NodeKey: nodeKey}] = node
	}
	return out
}

// LeavesMap implements smt.StoreReader, with the same best-effort decoding
// behavior as BranchesMap.
func (s *Store[V]) LeavesMap() map[smt.H256]V {
	out := map[smt.H256]V{}
	rows, err := s.db.Query(s.d.selectLeaves)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var leafKeyBytes, data []byte
		if err := rows.Scan(&leafKeyBytes, &data); err != nil {
			continue
		}
		var v V
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			continue
		}
		var leafKey smt.H256
		copy(leafKey[:], leafKeyBytes)
		out[leafKey] = v
	}
	return out
}

// InsertBranch implements smt.StoreWriter.
func (s *Store[V]) InsertBranch(key smt.BranchKey, node smt.BranchNode) error {
	data, err := encodeBranch(node)
	if err != nil {
		return fmt.Errorf("smt/store/sql: encode branch: %w", err)
	}
	if _, err := s.db.Exec(s.d.upsertBranch, key.Height, key.NodeKey[:], data); err != nil {
		return fmt.Errorf("smt/store/sql: upsert branch: %w", err)
	}
	return nil
}

// InsertLeaf implements smt.StoreWriter.
func (s *Store[V]) InsertLeaf(key smt.H256, value V) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("smt/store/sql: encode leaf: %w", err)
	}
	if _, err := s.db.Exec(s.d.upsertLeaf, key[:], buf.Bytes()); err != nil {
		return fmt.Errorf("smt/store/sql: upsert leaf: %w", err)
	}
	return nil
}

// RemoveBranch implements smt.StoreWriter.
func (s *Store[V]) RemoveBranch(key smt.BranchKey) error {
	if _, err := s.db.Exec(s.d.deleteBranch, key.Height, key.NodeKey[:]); err != nil {
		return fmt.Errorf("smt/store/sql: delete branch: %w", err)
	}
	return nil
}

// RemoveLeaf implements smt.StoreWriter.
func (s *Store[V]) RemoveLeaf(key smt.H256) error {
	if _, err := s.db.Exec(s.d.deleteLeaf, key[:]); err != nil {
		return fmt.Errorf("smt/store/sql: delete leaf: %w", err)
	}
	return nil
}

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

// Package spanner backs an smt.Store with cloud.google.com/go/spanner,
// mirroring the teacher's other production storage backend alongside SQL.
//
// Expected schema:
//
//	CREATE TABLE Branches (
//	  Height  INT64 NOT NULL,
//	  NodeKey BYTES(32) NOT NULL,
//	  Data    BYTES(MAX) NOT NULL,
//	) PRIMARY KEY (Height, NodeKey);
//	CREATE TABLE Leaves (
//	  LeafKey BYTES(32) NOT NULL,
//	  Data    BYTES(MAX) NOT NULL,
//	) PRIMARY KEY (LeafKey);
package spanner

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/transparency-dev/smt"
)

// Store is an smt.Store backed by a Spanner database. Reads use Single()
// snapshot reads; writes use Apply with a single insert-or-update mutation.
// The smt.Store contract is synchronous, so every method here blocks on
// context.Background() — callers needing request-scoped cancellation
// should wrap Store in their own context-carrying adapter.
type Store[V smt.Value] struct {
	client *spanner.Client
}

// New wraps an already-configured *spanner.Client as a Store.
func New[V smt.Value](client *spanner.Client) *Store[V] {
	return &Store[V]{client: client}
}

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
	ctx := context.Background()
	row, err := s.client.Single().ReadRow(ctx, "Branches",
		spanner.Key{int64(key.Height), key.NodeKey[:]}, []string{"Data"})
	if spanner.ErrCode(err) == codes.NotFound {
		return smt.BranchNode{}, false, nil
	}
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/spanner: read branch: %w", err)
	}
	var data []byte
	if err := row.Column(0, &data); err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/spanner: decode branch column: %w", err)
	}
	node, err := decodeBranch(data)
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/spanner: decode branch: %w", err)
	}
	return node, true, nil
}

// GetLeaf implements smt.StoreReader.
func (s *Store[V]) GetLeaf(key smt.H256) (V, bool, error) {
	var zero V
	ctx := context.Background()
	row, err := s.client.Single().ReadRow(ctx, "Leaves", spanner.Key{key[:]}, []string{"Data"})
	if spanner.ErrCode(err) == codes.NotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("smt/store/spanner: read leaf: %w", err)
	}
	var data []byte
	if err := row.Column(0, &data); err != nil {
		return zero, false, fmt.Errorf("smt/store/spanner: decode leaf column: %w", err)
	}
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, false, fmt.Errorf("smt/store/spanner: decode leaf: %w", err)
	}
	return v, true, nil
}

// BranchesMap implements smt.StoreReader via a full-table Query, since
// Spanner has no equivalent of an unordered-map range over the whole
// keyspace short of reading every row.
func (s *Store[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	out := map[smt.BranchKey]smt.BranchNode{}
	ctx := context.Background()
	iter := s.client.Single().Query(ctx, spanner.NewStatement("SELECT Height, NodeKey, Data FROM Branches"))
	defer iter.Stop()
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out
		}
		var height int64
		var nodeKeyBytes, data []byte
		if err := row.Columns(&height, &nodeKeyBytes, &data); err != nil {
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

// LeavesMap implements smt.StoreReader via a full-table Query.
func (s *Store[V]) LeavesMap() map[smt.H256]V {
	out := map[smt.H256]V{}
	ctx := context.Background()
	iter := s.client.Single().Query(ctx, spanner.NewStatement("SELECT LeafKey, Data FROM Leaves"))
	defer iter.Stop()
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out
		}
		var leafKeyBytes, data []byte
		if err := row.Columns(&leafKeyBytes, &data); err != nil {
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
		return fmt.Errorf("smt/store/spanner: encode branch: %w", err)
	}
	mutation := spanner.InsertOrUpdate("Branches", []string{"Height", "NodeKey", "Data"},
		[]interface{}{int64(key.Height), key.NodeKey[:], data})
	if _, err := s.client.Apply(context.Background(), []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("smt/store/spanner: apply branch: %w", err)
	}
	return nil
}

// InsertLeaf implements smt.StoreWriter.
func (s *Store[V]) InsertLeaf(key smt.H256, value V) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("smt/store/spanner: encode leaf: %w", err)
	}
	mutation := spanner.InsertOrUpdate("Leaves", []string{"LeafKey", "Data"},
		[]interface{}{key[:], buf.Bytes()})
	if _, err := s.client.Apply(context.Background(), []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("smt/store/spanner: apply leaf: %w", err)
	}
	return nil
}

// RemoveBranch implements smt.StoreWriter.
func (s *Store[V]) RemoveBranch(key smt.BranchKey) error {
	mutation := spanner.Delete("Branches", spanner.Key{int64(key.Height), key.NodeKey[:]})
	if _, err := s.client.Apply(context.Background(), []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("smt/store/spanner: delete branch: %w", err)
	}
	return nil
}

// RemoveLeaf implements smt.StoreWriter.
func (s *Store[V]) RemoveLeaf(key smt.H256) error {
	mutation := spanner.Delete("Leaves", spanner.Key{key[:]})
	if _, err := s.client.Apply(context.Background(), []*spanner.Mutation{mutation}); err != nil {
		return fmt.Errorf("smt/store/spanner: delete leaf: %w", err)
	}
	return nil
}

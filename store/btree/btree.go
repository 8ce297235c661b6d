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

// Package btree backs an smt.Store with two github.com/google/btree
// ordered trees instead of plain Go maps. GetBranch/GetLeaf/InsertBranch/
// InsertLeaf/RemoveBranch/RemoveLeaf are O(log n) against an in-memory
// B-tree rather than a hash map; BranchesMap/LeavesMap still return a
// plain map snapshot, since smt.StoreReader's contract has no way to
// expose ordering to callers.
package btree

import (
	"github.com/google/btree"
	"github.com/transparency-dev/smt"
)

// degree is the B-tree branching factor; btree.New's own docs recommend
// values in this range for general-purpose in-memory use.
const degree = 32

type branchItem struct {
	key  smt.BranchKey
	node smt.BranchNode
}

func (b branchItem) Less(than btree.Item) bool {
	return b.key.Less(than.(branchItem).key)
}

type leafItem[V smt.Value] struct {
	key   smt.H256
	value V
}

func (l leafItem[V]) Less(than btree.Item) bool {
	return l.key.Less(than.(leafItem[V]).key)
}

// Store is an smt.Store backed by two btree.BTree instances.
type Store[V smt.Value] struct {
	branches *btree.BTree
	leaves   *btree.BTree
}

// New returns an empty btree-backed Store.
func New[V smt.Value]() *Store[V] {
	return &Store[V]{branches: btree.New(degree), leaves: btree.New(degree)}
}

// GetBranch implements smt.StoreReader.
func (s *Store[V]) GetBranch(key smt.BranchKey) (smt.BranchNode, bool, error) {
	item := s.branches.Get(branchItem{key: key})
	if item == nil {
		return smt.BranchNode{}, false, nil
	}
	return item.(branchItem).node, true, nil
}

// GetLeaf implements smt.StoreReader.
func (s *Store[V]) GetLeaf(key smt.H256) (V, bool, error) {
	var zero V
	item := s.leaves.Get(leafItem[V]{key: key})
	if item == nil {
		return zero, false, nil
	}
	return item.(leafItem[V]).value, true, nil
}

// BranchesMap implements smt.StoreReader by walking the tree in ascending
// key order and snapshotting it into a map. The ascending walk only
// affects the order entries are inserted into that map; smt.StoreReader
// returns a plain map, so a caller such as the engine's root-branch scan
// still sees it as unordered.
func (s *Store[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	out := make(map[smt.BranchKey]smt.BranchNode, s.branches.Len())
	s.branches.Ascend(func(i btree.Item) bool {
		b := i.(branchItem)
		out[b.key] = b.node
		return true
	})
	return out
}

// LeavesMap implements smt.StoreReader.
func (s *Store[V]) LeavesMap() map[smt.H256]V {
	out := make(map[smt.H256]V, s.leaves.Len())
	s.leaves.Ascend(func(i btree.Item) bool {
		l := i.(leafItem[V])
		out[l.key] = l.value
		return true
	})
	return out
}

// InsertBranch implements smt.StoreWriter.
func (s *Store[V]) InsertBranch(key smt.BranchKey, node smt.BranchNode) error {
	s.branches.ReplaceOrInsert(branchItem{key: key, node: node})
	return nil
}

// InsertLeaf implements smt.StoreWriter.
func (s *Store[V]) InsertLeaf(key smt.H256, value V) error {
	s.leaves.ReplaceOrInsert(leafItem[V]{key: key, value: value})
	return nil
}

// RemoveBranch implements smt.StoreWriter.
func (s *Store[V]) RemoveBranch(key smt.BranchKey) error {
	s.branches.Delete(branchItem{key: key})
	return nil
}

// RemoveLeaf implements smt.StoreWriter.
func (s *Store[V]) RemoveLeaf(key smt.H256) error {
	s.leaves.Delete(leafItem[V]{key: key})
	return nil
}

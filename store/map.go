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

// Package store holds backing Store implementations for an smt.Tree: the
// reference in-memory Map, plus ordered-map, SQL, Redis, and Spanner
// backends that all satisfy the same two-map contract.
package store

import (
	"github.com/transparency-dev/smt"
)

// Map is the reference backing store: two plain Go maps, one for branches
// and one for leaves. It has no locking of its own, matching spec.md §5's
// single-writer model.
type Map[V smt.Value] struct {
	branches map[smt.BranchKey]smt.BranchNode
	leaves   map[smt.H256]V
}

// NewMap returns an empty Map store.
func NewMap[V smt.Value]() *Map[V] {
	return &Map[V]{
		branches: make(map[smt.BranchKey]smt.BranchNode),
		leaves:   make(map[smt.H256]V),
	}
}

// GetBranch implements smt.StoreReader.
func (m *Map[V]) GetBranch(key smt.BranchKey) (smt.BranchNode, bool, error) {
	b, ok := m.branches[key]
	return b, ok, nil
}

// GetLeaf implements smt.StoreReader.
func (m *Map[V]) GetLeaf(key smt.H256) (V, bool, error) {
	v, ok := m.leaves[key]
	return v, ok, nil
}

// BranchesMap implements smt.StoreReader.
func (m *Map[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	return m.branches
}

// LeavesMap implements smt.StoreReader.
func (m *Map[V]) LeavesMap() map[smt.H256]V {
	return m.leaves
}

// InsertBranch implements smt.StoreWriter.
func (m *Map[V]) InsertBranch(key smt.BranchKey, branch smt.BranchNode) error {
	m.branches[key] = branch
	return nil
}

// InsertLeaf implements smt.StoreWriter.
func (m *Map[V]) InsertLeaf(key smt.H256, leaf V) error {
	m.leaves[key] = leaf
	return nil
}

// RemoveBranch implements smt.StoreWriter.
func (m *Map[V]) RemoveBranch(key smt.BranchKey) error {
	delete(m.branches, key)
	return nil
}

// RemoveLeaf implements smt.StoreWriter.
func (m *Map[V]) RemoveLeaf(key smt.H256) error {
	delete(m.leaves, key)
	return nil
}

// Clear empties both maps, matching the reference DefaultStore::clear.
func (m *Map[V]) Clear() {
	m.branches = make(map[smt.BranchKey]smt.BranchNode)
	m.leaves = make(map[smt.H256]V)
}

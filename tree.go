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

package smt

import (
	"github.com/golang/glog"
)

// BranchKey names a stored branch by the height it sits at and the
// canonical node_key of the subtree it roots. node_key always equals
// key.ParentPathByHeight(height) for every key in the subtree.
type BranchKey struct {
	Height  uint8
	NodeKey H256
}

// Less orders BranchKeys by height, then by node key, matching the
// reference implementation's Ord impl.
func (k BranchKey) Less(other BranchKey) bool {
	if k.Height != other.Height {
		return k.Height < other.Height
	}
	return k.NodeKey.Less(other.NodeKey)
}

// ChildKey names either a stored leaf by its key or a stored branch by its
// BranchKey. Go has no native sum type, so this follows spec.md §9's
// discriminated-struct guidance rather than an interface: every ChildKey is
// exactly one of the two, and IsBranch says which.
type ChildKey struct {
	IsBranch bool
	Leaf     H256
	Branch   BranchKey
}

// LeafChildKey returns a ChildKey naming a stored leaf.
func LeafChildKey(key H256) ChildKey {
	return ChildKey{Leaf: key}
}

// BranchChildKey returns a ChildKey naming a stored branch.
func BranchChildKey(key BranchKey) ChildKey {
	return ChildKey{IsBranch: true, Branch: key}
}

// getIntersectingHeight answers: along which height h < maxHeight does
// otherKey first share a common ParentPathByHeight with the subtree ck
// roots? It returns (0, false) if no such height exists within the range.
//
// This is the heart of compactness (spec.md §4.5.1) and is ported
// bit-for-bit from the reference ChildKey::get_intersecting_height,
// including its u8-wrapping arithmetic for the branch case's per-byte
// offset adjustment: that arithmetic only ever wraps at heights whose
// resulting ParentPathByHeight call is height 255 (all-zero), which is a
// well-defined comparison target, not a crash.
func (ck ChildKey) getIntersectingHeight(otherKey H256, maxHeight uint8) (uint8, bool) {
	if !ck.IsBranch {
		key := ck.Leaf
		for i := uint8(0); i < maxHeight; i++ {
			if key.ParentPathByHeight(i) == otherKey.ParentPathByHeight(i) {
				return i, true
			}
		}
		return 0, false
	}

	bk := ck.Branch
	for i := uint8(1); i < maxHeight; i++ {
		if bk.Height > i {
			continue
		}
		var parentKey H256
		if (bk.Height+1)/8 == (i+1)/8 {
			parentKey = bk.NodeKey.ParentPathByHeight(i - (bk.Height+1)%8)
		} else {
			parentKey = bk.NodeKey.ParentPathByHeight(i)
		}
		if parentKey == otherKey.ParentPathByHeight(i) {
			return i, true
		}
	}
	return 0, false
}

// BranchSide is one side (left or right) of a BranchNode: the precomputed
// hash of that subtree, and the locator of its root.
type BranchSide struct {
	Value MergeValue
	Key   ChildKey
}

// BranchNode is a materialized branch in the compacted tree. A branch is
// materialized only if both subtrees are non-empty and distinguishable at
// or below its height (spec.md §3 invariant 3); intermediate pass-through
// heights are never stored.
type BranchNode struct {
	Left, Right BranchSide
}

// Tree is a compacted sparse Merkle tree: a 256-bit-keyed, 256-bit-valued
// authenticated map backed by a pluggable Store. It is single-threaded: one
// in-flight Update or proof generation per instance, per spec.md §5.
type Tree[V Value] struct {
	store     Store[V]
	root      H256
	newHasher HasherFactory
}

// rootBranchKey is the unique branch key for the top of the tree: height
// 255, node_key zero.
var rootBranchKey = BranchKey{Height: 255, NodeKey: ZeroH256}

// New builds a tree seeded with the two sentinel leaves (ZeroH256 -> zero,
// MaxH256 -> max) and their root branch, on top of an empty store. A
// compacted SMT is never truly empty: the sentinels anchor the root branch
// so every subsequent Update has something to intersect against.
func New[V Value](newHasher HasherFactory, store Store[V], zero, max V) (*Tree[V], error) {
	if err := store.InsertLeaf(ZeroH256, zero); err != nil {
		return nil, wrapStoreErr("InsertLeaf(zero)", err)
	}
	if err := store.InsertLeaf(MaxH256, max); err != nil {
		return nil, wrapStoreErr("InsertLeaf(max)", err)
	}

	left := BranchSide{
		Value: MergeValueFromH256(zero.ToH256(newHasher)),
		Key:   LeafChildKey(ZeroH256),
	}
	right := BranchSide{
		Value: MergeValueFromH256(max.ToH256(newHasher)),
		Key:   LeafChildKey(MaxH256),
	}
	if err := store.InsertBranch(rootBranchKey, BranchNode{Left: left, Right: right}); err != nil {
		return nil, wrapStoreErr("InsertBranch(root)", err)
	}

	root := Merge(newHasher, left.Value, right.Value).Hash()
	return &Tree[V]{store: store, root: root, newHasher: newHasher}, nil
}

// NewWithStore builds a tree view over a store that already holds a root
// branch (e.g. loaded from persistent storage); the root hash is derived
// from that branch rather than recomputed from scratch.
func NewWithStore[V Value](newHasher HasherFactory, store Store[V]) (*Tree[V], error) {
	branch, ok, err := store.GetBranch(rootBranchKey)
	if err != nil {
		return nil, wrapStoreErr("GetBranch(root)", err)
	}
	var root H256
	if ok {
		root = Merge(newHasher, branch.Left.Value, branch.Right.Value).Hash()
	}
	return &Tree[V]{store: store, root: root, newHasher: newHasher}, nil
}

// Root returns the current Merkle root.
func (t *Tree[V]) Root() H256 {
	return t.root
}

// IsEmpty reports whether the tree's root is the zero hash. A tree
// constructed with New is empty only if both sentinel values hash to zero
// under their Value type's ToH256; with H256Value, whose leaf hash is never
// zero, it is never empty.
func (t *Tree[V]) IsEmpty() bool {
	return t.root.IsZero()
}

// Store returns the backing store.
func (t *Tree[V]) Store() Store[V] {
	return t.store
}

// Get returns the value stored at key, or the Value type's zero value if
// the key is absent.
func (t *Tree[V]) Get(key H256) (V, error) {
	var zero V
	if t.IsEmpty() {
		return zero, nil
	}
	v, ok, err := t.store.GetLeaf(key)
	if err != nil {
		return zero, wrapStoreErr("GetLeaf", err)
	}
	if !ok {
		return zero, nil
	}
	return v, nil
}

// Update inserts or removes a leaf and returns the new root. Setting value
// to the Value type's zero value deletes the key.
func (t *Tree[V]) Update(key H256, value V) (H256, error) {
	node := MergeValueFromH256(value.ToH256(t.newHasher))
	insertion := !node.IsZero()

	if insertion {
		if err := t.store.InsertLeaf(key, value); err != nil {
			return H256{}, wrapStoreErr("InsertLeaf", err)
		}
	} else {
		if err := t.store.RemoveLeaf(key); err != nil {
			return H256{}, wrapStoreErr("RemoveLeaf", err)
		}
	}

	rootKey, err := t.findRootBranchKey()
	if err != nil {
		return H256{}, err
	}

	result, _, err := t.recurseTree(node, key, BranchChildKey(rootKey), 255, insertion)
	if err != nil {
		return H256{}, err
	}
	t.root = result.Hash()
	glog.V(2).Infof("smt: update key=%s insertion=%v root=%s", key, insertion, t.root)
	return t.root, nil
}

// findRootBranchKey scans the store's branch map for the unique branch at
// height 255, matching how the reference implementation locates the root
// branch without a dedicated index (spec.md §4.5.3 step 3). It panics via
// corrupt if there is not exactly one.
func (t *Tree[V]) findRootBranchKey() (BranchKey, error) {
	var found []BranchKey
	for bk := range t.store.BranchesMap() {
		if bk.Height == 255 {
			found = append(found, bk)
		}
	}
	if len(found) != 1 {
		corrupt("expected exactly one branch at height 255, found %d", len(found))
		return BranchKey{}, nil
	}
	return found[0], nil
}

// recurseTree is the descent/rewrite at the heart of the engine (spec.md
// §4.5.2). intersection locates the existing subtree (leaf or branch) whose
// path first diverges from newKey at or below currentHeight; currentHeight
// is the height this rewrite happens at. It returns the new (MergeValue,
// ChildKey) pair replacing intersection in its parent.
func (t *Tree[V]) recurseTree(newNode MergeValue, newKey H256, intersection ChildKey, currentHeight uint8, insertion bool) (MergeValue, ChildKey, error) {
	if !intersection.IsBranch {
		return t.recurseLeaf(newNode, newKey, intersection.Leaf, currentHeight, insertion)
	}
	return t.recurseBranch(newNode, newKey, intersection.Branch, currentHeight, insertion)
}

func (t *Tree[V]) recurseLeaf(newNode MergeValue, newKey H256, x H256, currentHeight uint8, insertion bool) (MergeValue, ChildKey, error) {
	parentKey := x.ParentPathByHeight(currentHeight)
	parentBranchKey := BranchKey{Height: currentHeight, NodeKey: parentKey}

	xVal, ok, err := t.store.GetLeaf(x)
	if err != nil {
		return MergeValue{}, ChildKey{}, wrapStoreErr("GetLeaf", err)
	}
	if !ok {
		corrupt("leaf %s referenced by tree but missing from store", x)
	}
	xValue := MergeValueFromH256(xVal.ToH256(t.newHasher))

	if insertion {
		var branch BranchNode
		if x.Compare(newKey) <= 0 {
			branch = BranchNode{
				Left:  BranchSide{Value: xValue, Key: LeafChildKey(x)},
				Right: BranchSide{Value: newNode, Key: LeafChildKey(newKey)},
			}
		} else {
			branch = BranchNode{
				Left:  BranchSide{Value: newNode, Key: LeafChildKey(newKey)},
				Right: BranchSide{Value: xValue, Key: LeafChildKey(x)},
			}
		}
		if err := t.store.InsertBranch(parentBranchKey, branch); err != nil {
			return MergeValue{}, ChildKey{}, wrapStoreErr("InsertBranch", err)
		}
		merged := Merge(t.newHasher, branch.Left.Value, branch.Right.Value)
		return merged, BranchChildKey(parentBranchKey), nil
	}

	if err := t.store.RemoveBranch(parentBranchKey); err != nil {
		return MergeValue{}, ChildKey{}, wrapStoreErr("RemoveBranch", err)
	}
	return xValue, LeafChildKey(x), nil
}

func (t *Tree[V]) recurseBranch(newNode MergeValue, newKey H256, key BranchKey, currentHeight uint8, insertion bool) (MergeValue, ChildKey, error) {
	branch, ok, err := t.store.GetBranch(key)
	if err != nil {
		return MergeValue{}, ChildKey{}, wrapStoreErr("GetBranch", err)
	}
	if !ok {
		corrupt("branch %+v referenced by tree but missing from store", key)
	}

	leftHeight, leftOK := branch.Left.Key.getIntersectingHeight(newKey, currentHeight)
	rightHeight, rightOK := branch.Right.Key.getIntersectingHeight(newKey, currentHeight)

	if leftOK && rightOK {
		corrupt("both children of branch %+v intersect key %s (left=%d right=%d)", key, newKey, leftHeight, rightHeight)
		return MergeValue{}, ChildKey{}, nil
	}

	if leftOK {
		newChildValue, newChildKey, err := t.recurseTree(newNode, newKey, branch.Left.Key, leftHeight, insertion)
		if err != nil {
			return MergeValue{}, ChildKey{}, err
		}
		newLeft := BranchSide{Value: newChildValue, Key: newChildKey}
		merged := Merge(t.newHasher, newLeft.Value, branch.Right.Value)
		if err := t.store.InsertBranch(key, BranchNode{Left: newLeft, Right: branch.Right}); err != nil {
			return MergeValue{}, ChildKey{}, wrapStoreErr("InsertBranch", err)
		}
		return merged, BranchChildKey(key), nil
	}

	if rightOK {
		newChildValue, newChildKey, err := t.recurseTree(newNode, newKey, branch.Right.Key, rightHeight, insertion)
		if err != nil {
			return MergeValue{}, ChildKey{}, err
		}
		newRight := BranchSide{Value: newChildValue, Key: newChildKey}
		merged := Merge(t.newHasher, branch.Left.Value, newRight.Value)
		if err := t.store.InsertBranch(key, BranchNode{Left: branch.Left, Right: newRight}); err != nil {
			return MergeValue{}, ChildKey{}, wrapStoreErr("InsertBranch", err)
		}
		return merged, BranchChildKey(key), nil
	}

	return t.recurseNewSibling(newNode, newKey, key, branch, currentHeight, insertion)
}

// recurseNewSibling handles the "both None" case: newKey diverges from the
// branch's whole subtree at or above currentHeight, so the existing branch
// becomes one side of a brand new parent branch (insertion) or is unwrapped
// back to its merged value one level up (deletion).
func (t *Tree[V]) recurseNewSibling(newNode MergeValue, newKey H256, key BranchKey, branch BranchNode, currentHeight uint8, insertion bool) (MergeValue, ChildKey, error) {
	parentKey := newKey.ParentPathByHeight(currentHeight)
	parentBranchKey := BranchKey{Height: currentHeight, NodeKey: parentKey}
	sub := newKey.ParentPathByHeight(currentHeight - 1)

	merged := Merge(t.newHasher, branch.Left.Value, branch.Right.Value)

	if !insertion {
		if err := t.store.RemoveBranch(parentBranchKey); err != nil {
			return MergeValue{}, ChildKey{}, wrapStoreErr("RemoveBranch", err)
		}
		return merged, BranchChildKey(key), nil
	}

	var newBranch BranchNode
	if sub.IsRight(currentHeight) {
		newBranch = BranchNode{
			Left:  BranchSide{Value: merged, Key: BranchChildKey(key)},
			Right: BranchSide{Value: newNode, Key: LeafChildKey(newKey)},
		}
	} else {
		newBranch = BranchNode{
			Left:  BranchSide{Value: newNode, Key: LeafChildKey(newKey)},
			Right: BranchSide{Value: merged, Key: BranchChildKey(key)},
		}
	}
	if err := t.store.InsertBranch(parentBranchKey, newBranch); err != nil {
		return MergeValue{}, ChildKey{}, wrapStoreErr("InsertBranch", err)
	}
	mergedNew := Merge(t.newHasher, newBranch.Left.Value, newBranch.Right.Value)
	return mergedNew, BranchChildKey(parentBranchKey), nil
}

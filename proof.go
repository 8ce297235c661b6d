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

import "sort"

// Side orients a sibling hash relative to the path being proved: it is the
// hash an independent verifier must merge on the left or the right at a
// given step to reproduce an ancestor's hash.
type Side struct {
	IsLeft bool
	Value  MergeValue
}

// LeftSide wraps v as a left-side proof step.
func LeftSide(v MergeValue) Side { return Side{IsLeft: true, Value: v} }

// RightSide wraps v as a right-side proof step.
func RightSide(v MergeValue) Side { return Side{Value: v} }

// sameSide reports whether s and other orient the same way.
func (s Side) sameSide(other Side) bool {
	return s.IsLeft == other.IsLeft
}

// descentStep is one level of a root-to-leaf descent: the ChildKey of the
// sibling (opposite) subtree at that level, and its Side-tagged MergeValue.
type descentStep struct {
	OppositeKey ChildKey
	Side        Side
}

// descend walks from the root branch to the leaf named by key, returning
// the sibling ChildKey/Side for every level visited, in root-to-leaf order.
// It is shared by MemberProof and ModifyRootProof (spec.md §4.5.4 step 1-2
// and §4.5.5 step 1).
func (t *Tree[V]) descend(key H256) ([]descentStep, error) {
	branchKey, err := t.findRootBranchKey()
	if err != nil {
		return nil, err
	}

	var steps []descentStep
	for {
		branch, ok, err := t.store.GetBranch(branchKey)
		if err != nil {
			return nil, wrapStoreErr("GetBranch", err)
		}
		if !ok {
			corrupt("branch %+v referenced by tree but missing from store", branchKey)
		}

		_, leftOK := branch.Left.Key.getIntersectingHeight(key, branchKey.Height)
		_, rightOK := branch.Right.Key.getIntersectingHeight(key, branchKey.Height)

		if leftOK && rightOK {
			corrupt("both children of branch %+v intersect key %s", branchKey, key)
		}
		if !leftOK && !rightOK {
			corrupt("neither child of branch %+v intersects key %s", branchKey, key)
		}

		var matching ChildKey
		if rightOK {
			steps = append(steps, descentStep{OppositeKey: branch.Left.Key, Side: LeftSide(branch.Left.Value)})
			matching = branch.Right.Key
		} else {
			steps = append(steps, descentStep{OppositeKey: branch.Right.Key, Side: RightSide(branch.Right.Value)})
			matching = branch.Left.Key
		}

		if !matching.IsBranch {
			if matching.Leaf != key {
				corrupt("descent for key %s reached unrelated leaf %s", key, matching.Leaf)
			}
			return steps, nil
		}
		branchKey = matching.Branch
	}
}

// MemberProofEntry is one key's membership proof: the sibling hashes needed
// to fold from the leaf back up to the root, leaf-to-root order, alongside
// the key it proves.
type MemberProofEntry struct {
	Proof []Side
	Key   H256
}

// MemberProof generates a membership proof for each of keys (sorted
// ascending, deduplicated), sufficient to verify a key's current value
// against the root (spec.md §4.5.4). It returns ErrEmptyKeys if keys is
// empty.
func (t *Tree[V]) MemberProof(keys []H256) ([]MemberProofEntry, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	sorted := sortedUniqueKeys(keys)

	out := make([]MemberProofEntry, 0, len(sorted))
	for _, key := range sorted {
		steps, err := t.descend(key)
		if err != nil {
			return nil, err
		}
		sides := make([]Side, len(steps))
		for i, s := range steps {
			sides[len(steps)-1-i] = s.Side
		}
		out = append(out, MemberProofEntry{Proof: sides, Key: key})
	}
	return out, nil
}

// ModifyRootProofEntry carries the artifacts needed to prove what the root
// becomes after flipping one leaf's presence, without replaying the tree
// (spec.md §4.5.5). See ModifyRootProof for the verifier recombination
// contract.
type ModifyRootProofEntry struct {
	RemainingProof  []Side
	LeftVec         []MergeValue
	ContinuingSide  []MergeValue
	RightVec        []MergeValue
	StartedLeftSide bool
	Key             H256
}

// ModifyRootProof generates a structural-modification proof for each of
// keys (sorted ascending, deduplicated). It returns ErrEmptyKeys if keys is
// empty.
//
// Verifier recombination contract (spec.md §4.5.5 step 7, restated for
// tests): hash LeftVec[0] and RightVec[0] to their leaf hashes via the
// Value type's ToH256 (this only round-trips when V is H256Value and the
// leaf's value equals its own key by convention, exactly as in the
// reference test vectors — see DESIGN.md), fold the remainder of each
// vector with Merge on its matching side, merge the folded started-side
// vector with the key's leaf hash (the key's hash on the right when
// StartedLeftSide, on the left otherwise) to get "with item", fold
// ContinuingSide onto it on the started side, combine with the folded
// opposite side, then fold RemainingProof respecting
// Left/Right. The result must equal the root the proof was generated
// against. Folding without the key's value hash yields the root that
// results from deleting the key instead.
func (t *Tree[V]) ModifyRootProof(keys []H256) ([]ModifyRootProofEntry, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	sorted := sortedUniqueKeys(keys)

	out := make([]ModifyRootProofEntry, 0, len(sorted))
	for _, key := range sorted {
		entry, err := t.modifyRootProofOne(key)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (t *Tree[V]) modifyRootProofOne(key H256) (ModifyRootProofEntry, error) {
	steps, err := t.descend(key)
	if err != nil {
		return ModifyRootProofEntry{}, err
	}
	if len(steps) == 0 {
		corrupt("empty descent for key %s", key)
	}

	n := len(steps)
	starting := steps[n-1]
	remaining := steps[:n-1]
	startedLeftSide := starting.Side.IsLeft

	leftVec, rightVec, err := t.walkSpine(starting)
	if err != nil {
		return ModifyRootProofEntry{}, err
	}

	var continuingSide []MergeValue
	i := len(remaining) - 1
	for i >= 0 && remaining[i].Side.sameSide(starting.Side) {
		continuingSide = append(continuingSide, remaining[i].Side.Value)
		i--
	}
	remaining = remaining[:i+1]

	if len(remaining) == 0 {
		corrupt("no opposite-side step left while building modify-root proof for key %s", key)
	}
	other := remaining[len(remaining)-1]
	remaining = remaining[:len(remaining)-1]

	otherLeftVec, otherRightVec, err := t.walkSpine(other)
	if err != nil {
		return ModifyRootProofEntry{}, err
	}
	leftVec = append(leftVec, otherLeftVec...)
	rightVec = append(rightVec, otherRightVec...)

	reverseMergeValues(leftVec)
	reverseMergeValues(rightVec)

	remainingSides := make([]Side, len(remaining))
	for idx, s := range remaining {
		remainingSides[len(remaining)-1-idx] = s.Side
	}

	return ModifyRootProofEntry{
		RemainingProof:  remainingSides,
		LeftVec:         leftVec,
		ContinuingSide:  continuingSide,
		RightVec:        rightVec,
		StartedLeftSide: startedLeftSide,
		Key:             key,
	}, nil
}

// walkSpine walks downward from start's sibling locator, gathering every
// hash on its spine into the left- or right-bound vector depending on
// start's side tag (spec.md §4.5.5 step 3/5): at each Branch it pushes the
// same-side hash and descends into the opposite child; it terminates at a
// Leaf, pushing the leaf's key wrapped as a MergeValue.
func (t *Tree[V]) walkSpine(start descentStep) (left, right []MergeValue, err error) {
	cur := start
	for {
		if !cur.OppositeKey.IsBranch {
			x := cur.OppositeKey.Leaf
			if cur.Side.IsLeft {
				left = append(left, MergeValueFromH256(x))
			} else {
				right = append(right, MergeValueFromH256(x))
			}
			return left, right, nil
		}

		next, ok, err := t.store.GetBranch(cur.OppositeKey.Branch)
		if err != nil {
			return nil, nil, wrapStoreErr("GetBranch", err)
		}
		if !ok {
			corrupt("branch %+v referenced by proof spine but missing from store", cur.OppositeKey.Branch)
		}

		if cur.Side.IsLeft {
			left = append(left, next.Left.Value)
			cur = descentStep{OppositeKey: next.Right.Key, Side: LeftSide(next.Right.Value)}
		} else {
			right = append(right, next.Right.Value)
			cur = descentStep{OppositeKey: next.Left.Key, Side: RightSide(next.Left.Value)}
		}
	}
}

func reverseMergeValues(s []MergeValue) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// sortedUniqueKeys returns a sorted copy of keys with duplicates removed.
func sortedUniqueKeys(keys []H256) []H256 {
	out := make([]H256, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	n := 0
	for i, k := range out {
		if i == 0 || k != out[n-1] {
			out[n] = k
			n++
		}
	}
	return out[:n]
}

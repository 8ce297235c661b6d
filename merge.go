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

// MergeValue wraps the hash carried at a node: a leaf hash, a child
// subtree's combined hash, or the zero hash of an empty subtree.
//
// The reference implementation also defines ShortCut and MergeWithZero
// variants behind a "trie" feature flag for branch-compression; this
// canonical core omits them (see DESIGN.md Open Question 2) and MergeValue
// stays a single-case wrapper.
type MergeValue struct {
	hash H256
}

// MergeValueFromH256 wraps a raw hash as a MergeValue.
func MergeValueFromH256(h H256) MergeValue {
	return MergeValue{hash: h}
}

// ZeroMergeValue is the MergeValue of an empty subtree.
func ZeroMergeValue() MergeValue {
	return MergeValue{hash: ZeroH256}
}

// Hash returns the wrapped hash.
func (m MergeValue) Hash() H256 {
	return m.hash
}

// IsZero reports whether m wraps the zero hash.
func (m MergeValue) IsZero() bool {
	return m.hash.IsZero()
}

// Equal reports whether m and other wrap the same hash. It lets
// github.com/google/go-cmp compare values containing a MergeValue without
// needing an IgnoreUnexported option for its unexported hash field.
func (m MergeValue) Equal(other MergeValue) bool {
	return m.hash == other.hash
}

// Merge combines two child MergeValues into their parent's MergeValue.
// Merging is height-agnostic: no height byte is absorbed, only the two
// child hashes. Zero children are absorbing: merging with zero on one side
// returns the other side unchanged, so an all-zero subtree never
// contributes a real hash until it holds at least one non-zero leaf.
func Merge(newHasher HasherFactory, lhs, rhs MergeValue) MergeValue {
	if lhs.IsZero() && rhs.IsZero() {
		return ZeroMergeValue()
	}
	if lhs.IsZero() {
		return rhs
	}
	if rhs.IsZero() {
		return lhs
	}
	h := newHasher()
	h.WriteH256(lhs.hash)
	h.WriteH256(rhs.hash)
	return MergeValueFromH256(h.Finish())
}

// HashBaseNode hashes H(height || base_key || base_value). It supports the
// optional ShortCut/MergeWithZero branch-compression encoding described in
// spec.md §9 Open Question 2, which this module does not otherwise
// implement; it is kept here only as a documented, unused building block so
// that an opt-in compression variant could be added later without
// reshaping the Hasher contract.
func HashBaseNode(newHasher HasherFactory, baseHeight uint8, baseKey, baseValue H256) H256 {
	h := newHasher()
	h.WriteByte(baseHeight)
	h.WriteH256(baseKey)
	h.WriteH256(baseValue)
	return h.Finish()
}

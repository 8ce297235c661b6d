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

// LeafByte prefixes every leaf hash input, per spec: leaf hashing is
// H(LeafByte || value_bytes); the key is deliberately not mixed in, to
// match the reference implementation's root hashes exactly.
const LeafByte = 0x0D

// Value is anything the tree can store at a leaf. ToH256 determines the
// leaf's hash contribution; the zero and max values passed to New seed the
// two sentinel leaves every tree is constructed with.
type Value interface {
	// ToH256 hashes the value with the given hasher factory, for leaf
	// hashing during New and Update.
	ToH256(newHasher HasherFactory) H256
	// IsZero reports whether this value is the deletion sentinel: a leaf
	// set to a zero Value is removed from the tree by Update.
	IsZero() bool
}

// H256Value is the canonical Value implementation: a bare 32-byte value,
// hashed as H(LeafByte || value_bytes), exactly as spec.md §4.3 mandates.
type H256Value H256

// ToH256 implements Value.
func (v H256Value) ToH256(newHasher HasherFactory) H256 {
	h := newHasher()
	h.WriteByte(LeafByte)
	h.WriteH256(H256(v))
	return h.Finish()
}

// IsZero implements Value.
func (v H256Value) IsZero() bool {
	return H256(v).IsZero()
}

// ZeroValue returns the all-zero H256Value, the deletion sentinel and the
// low sentinel leaf's value.
func ZeroValue() H256Value { return H256Value(ZeroH256) }

// MaxValue returns the all-ones H256Value, the high sentinel leaf's value.
func MaxValue() H256Value { return H256Value(MaxH256) }

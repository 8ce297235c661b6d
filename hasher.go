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
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Hasher is a single-use stateful absorber. Implementations must be
// deterministic and collision-resistant; a fresh instance is obtained from
// a HasherFactory for every digest computed.
type Hasher interface {
	// WriteByte absorbs a single byte.
	WriteByte(b byte)
	// WriteH256 absorbs the 32 bytes of h.
	WriteH256(h H256)
	// Finish consumes the hasher and returns the digest.
	Finish() H256
}

// HasherFactory returns a fresh Hasher instance. Trees are parameterized by
// a HasherFactory rather than a single shared Hasher so that concurrent
// reads never share absorber state.
type HasherFactory func() Hasher

// blake2bHasher is the default Hasher, backed by Blake2b-256 with an empty
// key, matching the reference implementation's binding.
type blake2bHasher struct {
	h hash.Hash
}

// NewBlake2bHasher returns a fresh Blake2b-256 Hasher. It satisfies
// HasherFactory.
func NewBlake2bHasher() Hasher {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a too-long key; we pass none.
		panic("smt: blake2b.New256 failed unexpectedly: " + err.Error())
	}
	return &blake2bHasher{h: h}
}

// WriteByte implements Hasher.
func (b *blake2bHasher) WriteByte(v byte) {
	_, _ = b.h.Write([]byte{v})
}

// WriteH256 implements Hasher.
func (b *blake2bHasher) WriteH256(v H256) {
	_, _ = b.h.Write(v[:])
}

// Finish implements Hasher.
func (b *blake2bHasher) Finish() H256 {
	var out H256
	copy(out[:], b.h.Sum(nil))
	return out
}

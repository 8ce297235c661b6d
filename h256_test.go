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
	"math/big"
	"math/rand"
	"testing"
)

func TestGetSetClearBit(t *testing.T) {
	var h H256
	for i := 0; i < 256; i++ {
		i := uint8(i)
		if h.GetBit(i) {
			t.Fatalf("bit %d set on zero value", i)
		}
		h = h.SetBit(i)
		if !h.GetBit(i) {
			t.Fatalf("bit %d not set after SetBit", i)
		}
		h = h.ClearBit(i)
		if h.GetBit(i) {
			t.Fatalf("bit %d still set after ClearBit", i)
		}
		if h != (H256{}) {
			t.Fatalf("set+clear bit %d left other bits dirty: %v", i, h)
		}
	}
}

func TestIsRightMatchesGetBit(t *testing.T) {
	h, err := H256FromHex("037989aac4a85a30998d29e5041f8c6cf398d370f08b48ce258cdc376e5b8c8c")
	if err != nil {
		t.Fatal(err)
	}
	for height := 0; height < 256; height++ {
		if got, want := h.IsRight(uint8(height)), h.GetBit(uint8(height)); got != want {
			t.Errorf("height %d: IsRight=%v GetBit=%v", height, got, want)
		}
	}
}

func TestZeroMaxOrdering(t *testing.T) {
	if !ZeroH256.Less(MaxH256) {
		t.Fatal("ZeroH256 should sort before MaxH256")
	}
	if ZeroH256.Compare(MaxH256) != -1 {
		t.Fatal("ZeroH256.Compare(MaxH256) should be -1")
	}
	if !ZeroH256.IsZero() {
		t.Fatal("ZeroH256.IsZero() should be true")
	}
	if MaxH256.IsZero() {
		t.Fatal("MaxH256.IsZero() should be false")
	}
}

func TestParentPathByHeight255IsZero(t *testing.T) {
	h, err := H256FromHex("037989aac4a85a30998d29e5041f8c6cf398d370f08b48ce258cdc376e5b8c8c")
	if err != nil {
		t.Fatal(err)
	}
	if got := h.ParentPathByHeight(255); got != ZeroH256 {
		t.Fatalf("ParentPathByHeight(255) = %v, want ZeroH256", got)
	}
}

// parentPathByHeightShift is an independent bit-shift formulation of
// ParentPathByHeight, used to cross-check the byte-level implementation
// (spec.md §9 Open Question 1) against a structurally different derivation
// of the same masking rule.
func parentPathByHeightShift(h H256, height uint8) H256 {
	if height == 255 {
		return ZeroH256
	}
	v := new(big.Int).SetBytes(h[:])
	clearBits := uint(height) + 1
	mask := new(big.Int).Lsh(big.NewInt(1), 256)
	mask.Sub(mask, big.NewInt(1))
	clearMask := new(big.Int).Lsh(big.NewInt(1), clearBits)
	clearMask.Sub(clearMask, big.NewInt(1))
	mask.Xor(mask, clearMask)
	v.And(v, mask)

	var out H256
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func TestParentPathByHeightCrossCheck(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	var keys []H256
	for i := 0; i < 20; i++ {
		var h H256
		rnd.Read(h[:])
		keys = append(keys, h)
	}
	keys = append(keys, ZeroH256, MaxH256)

	for _, k := range keys {
		for height := 0; height < 256; height++ {
			got := k.ParentPathByHeight(uint8(height))
			want := parentPathByHeightShift(k, uint8(height))
			if got != want {
				t.Fatalf("key %s height %d: ParentPathByHeight=%s shift-based=%s", k, height, got, want)
			}
		}
	}
}

func TestForkHeight(t *testing.T) {
	a := H256{}
	b := H256{}
	b = b.SetBit(5)
	if got, want := a.ForkHeight(b), uint8(5); got != want {
		t.Fatalf("ForkHeight = %d, want %d", got, want)
	}
	if got, want := a.ForkHeight(a), uint8(0); got != want {
		t.Fatalf("ForkHeight(self) = %d, want %d", got, want)
	}
}

func TestH256FromHexRoundTrip(t *testing.T) {
	const s = "0000000000000000000000000000000000000000000000000000000000000001"
	h, err := H256FromHex(s)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.String(), s; got != want {
		t.Fatalf("round trip mismatch: got %s want %s", got, want)
	}
}

func TestH256FromHexErrors(t *testing.T) {
	if _, err := H256FromHex("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := H256FromHex("00"); err == nil {
		t.Fatal("expected error for short input")
	}
}

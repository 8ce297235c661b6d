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
	"math/rand"
	"testing"
)

// testMap is a minimal in-package Store, kept separate from the store
// package's Map to avoid that package's import of smt creating a cycle
// from this internal test file.
type testMap[V Value] struct {
	branches map[BranchKey]BranchNode
	leaves   map[H256]V
}

func newTestMap[V Value]() *testMap[V] {
	return &testMap[V]{branches: map[BranchKey]BranchNode{}, leaves: map[H256]V{}}
}

func (m *testMap[V]) GetBranch(key BranchKey) (BranchNode, bool, error) {
	b, ok := m.branches[key]
	return b, ok, nil
}
func (m *testMap[V]) GetLeaf(key H256) (V, bool, error) {
	v, ok := m.leaves[key]
	return v, ok, nil
}
func (m *testMap[V]) BranchesMap() map[BranchKey]BranchNode { return m.branches }
func (m *testMap[V]) LeavesMap() map[H256]V                 { return m.leaves }
func (m *testMap[V]) InsertBranch(key BranchKey, b BranchNode) error {
	m.branches[key] = b
	return nil
}
func (m *testMap[V]) InsertLeaf(key H256, v V) error {
	m.leaves[key] = v
	return nil
}
func (m *testMap[V]) RemoveBranch(key BranchKey) error {
	delete(m.branches, key)
	return nil
}
func (m *testMap[V]) RemoveLeaf(key H256) error {
	delete(m.leaves, key)
	return nil
}

func newTestTree(t *testing.T) *Tree[H256Value] {
	t.Helper()
	tr, err := New[H256Value](NewBlake2bHasher, newTestMap[H256Value](), ZeroValue(), MaxValue())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func mustH256(t *testing.T, s string) H256 {
	t.Helper()
	h, err := H256FromHex(s)
	if err != nil {
		t.Fatalf("H256FromHex(%q): %v", s, err)
	}
	return h
}

// contiguousKeys is the 4-key set in spec.md's S1 scenario.
var contiguousKeys = []string{
	"0000000000000000000000000000000000000000000000000000000000000001",
	"0000000000000000000000000000000000000000000000000000000000000002",
	"0000000000000000000000000000000000000000000000000000000000000003",
	"0000000000000000000000000000000000000000000000000000000000000004",
}

// diverseKeys32 is the 32-key set in spec.md's S2 scenario, drawn from the
// reference test suite. It is made of 16 pairs of nearby keys: each key has
// a partner in the set that differs from it in 1 to 5 bits.
var diverseKeys32 = []string{
	"037989aac4a85a30998d29e5041f8c6cf398d370f08b48ce258cdc376e5b8c8c",
	"0379899ac4a85a30891d29e5041f8c6cf398d370f08b48ce258cdc376e5b8c8c",
	"2483b790b459b5134f357e5afed5149073b21bb6808650f1da5c821bef9fb25a",
	"56b3f804e7e380264dd9d26b8f5af2fc5624b9c7c4751c16d288a28ee9d2e401",
	"a802bfafdc95b4f98196ada7d4d99ca22c2e3ca4f2a5b9704ad48ba0bacf6313",
	"1f90c49b9ff263fceb6bb86286a771697f99b7b8282270876c5b6aa04c28fa18",
	"3c4cc28da90f5a784cdbdd3c1c154cdd5a7b44b31882a5bb1ee7f3e9a14a77d8",
	"541431358d0e7b58145337cb491cd98d425e7fd77bbd81679a28ab5689a4ac5e",
	"dcf93f6a91de8ff87f4e17ec954a79ab3ebf330b87d9e3457b6f0eef1230abe4",
	"1e6b2d4e73031f97dc43ca3319e07c0f49bc1e493d56814537c6125c43359c7d",
	"9581c5e21a94584538e1212bb666df18bd353eb1c03c20bd473fa6f3fc21162c",
	"30a6de707aa2bc2fa0d302b6a321c63291f147a3c6c2f3172fbf484ce42761d5",
	"29847997b0d57a12b7fd2ac72618bba69cf28293a03d88c3bd0ee9ee1fee110d",
	"77bbf46b3cc8f5621d170b201bb2a7e3a4508e53b2ae17cf1d1b9add18314cc3",
	"83d32921e47c9a88db3ac56a1e6b8552c9732911a977927bd2e58b3add48683c",
	"064d2e79dc1f93fbdf8ebad4f95676c10ffc1696131731badf30b38f4f60b66d",
	"04cfeeb613c20b73496ea0402a31ba05733d7cea285676c5f540e98b5ff39930",
	"2413b790b449b5134f357e5afed5149073b21bb6808650f1da5c821bef9fb25a",
	"56b3f804e7d380264dd9d26b8f5af2fc5624b9c7c4751c16d288a28ee9d2e401",
	"a801bfafdc95b4f98196ada7d4d99ca22c2e3ca4f2a5b9704ad48ba0bacf6313",
	"1f90b49b9ff263fceb6bb86286a771697f99b7b8282270876c5b6aa04c28fa18",
	"3c4cb28da90f5a784cdbdd3c1c154cdd5a7b44b31882a5bb1ee7f3e9a14a77d8",
	"541431258d0e7b58145337cb491cd98d425e7fd77bbd81679a28ab5689a4ac5e",
	"dcf93f6a91df8ff87f4e17ec954a79ab3ebf330b87d9e3457b6f0eef1230abe4",
	"1e6b2d4e73051f97dc43ca3319e07c0f49bc1e493d56814537c6125c43359c7d",
	"9581c5e21a94884538e1212bb666df18bd353eb1c03c20bd473fa6f3fc21162c",
	"30a6de707aa2ac2fa0d302b6a321c63291f147a3c6c2f3172fbf484ce42761d5",
	"29847997b0d56a12b7fd2ac72618bba69cf28293a03d88c3bd0ee9ee1fee110d",
	"77bbf46b3cc8f5620d170b201bb2a7e3a4508e53b2ae17cf1d1b9add18314cc3",
	"83d32921e87c9a88db3ac56a1e6b8552c9732911a977927bd2e58b3add48683c",
	"064d2e79dc1f95fbdf8ebad4f95676c10ffc1696131731badf30b38f4f60b66d",
	"05cfeeb613c20b73496ea0402a36ba05733d7cea285676c5f540e98b5ff39930",
}

func TestContiguousKeysRoot(t *testing.T) {
	tr := newTestTree(t)
	for _, s := range contiguousKeys {
		key := mustH256(t, s)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatalf("Update(%s): %v", s, err)
		}
	}

	want := mustH256(t, "d29a1db072a0b7f3320854eae1c4d99914a9679579f76486d9c48be352a56181")
	if got := tr.Root(); got != want {
		t.Fatalf("root = %s, want %s", got, want)
	}
}

func TestDiverseKeys32Root(t *testing.T) {
	tr := newTestTree(t)
	for _, s := range diverseKeys32 {
		key := mustH256(t, s)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatalf("Update(%s): %v", s, err)
		}
	}

	want := mustH256(t, "758da3290aa238eb24ad1b1c672cc8c04ec04d288842e0a1d7cd01536aa2cbe7")
	if got := tr.Root(); got != want {
		t.Fatalf("root = %s, want %s", got, want)
	}
}

func TestGetAfterUpdate(t *testing.T) {
	tr := newTestTree(t)
	key := mustH256(t, contiguousKeys[0])
	if _, err := tr.Update(key, H256Value(key)); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != H256Value(key) {
		t.Fatalf("Get = %v, want %v", got, key)
	}

	missing := mustH256(t, contiguousKeys[1])
	got, err = tr.Get(missing)
	if err != nil {
		t.Fatal(err)
	}
	var zero H256Value
	if got != zero {
		t.Fatalf("Get(missing) = %v, want zero value", got)
	}
}

func TestDeleteRestoresPriorRoot(t *testing.T) {
	tr := newTestTree(t)
	before := tr.Root()

	key := mustH256(t, contiguousKeys[0])
	if _, err := tr.Update(key, H256Value(key)); err != nil {
		t.Fatal(err)
	}
	if tr.Root() == before {
		t.Fatal("root did not change after insertion")
	}

	after, err := tr.Update(key, ZeroValue())
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("root after delete = %s, want original root %s", after, before)
	}
}

func TestUpdateZeroValueRemoves(t *testing.T) {
	tr := newTestTree(t)
	key := mustH256(t, contiguousKeys[0])
	if _, err := tr.Update(key, H256Value(key)); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Update(key, ZeroValue()); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	var zero H256Value
	if got != zero {
		t.Fatalf("Get after delete = %v, want zero", got)
	}
}

func TestMemberProofEmptyKeys(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.MemberProof(nil); err != ErrEmptyKeys {
		t.Fatalf("MemberProof(nil) error = %v, want ErrEmptyKeys", err)
	}
}

func TestModifyRootProofEmptyKeys(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.ModifyRootProof(nil); err != ErrEmptyKeys {
		t.Fatalf("ModifyRootProof(nil) error = %v, want ErrEmptyKeys", err)
	}
}

func TestSingleKeyTreeSurvivesReconstruction(t *testing.T) {
	store := newTestMap[H256Value]()
	tr, err := New[H256Value](NewBlake2bHasher, store, ZeroValue(), MaxValue())
	if err != nil {
		t.Fatal(err)
	}
	key := mustH256(t, contiguousKeys[0])
	root, err := tr.Update(key, H256Value(key))
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := NewWithStore[H256Value](NewBlake2bHasher, store)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Root(); got != root {
		t.Fatalf("reopened root = %s, want %s", got, root)
	}
	got, err := reopened.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != H256Value(key) {
		t.Fatalf("reopened Get = %v, want %v", got, key)
	}
}

// verifyModifyRootProof replays the verifier recombination contract
// documented on ModifyRootProof: fold LeftVec/RightVec (hashing their first
// element as a leaf), splice in the key's own leaf hash, fold
// ContinuingSide and RemainingProof, and check the result against the
// tree's current root both with and without the key's membership.
func verifyModifyRootProof(t *testing.T, tr *Tree[H256Value], entry ModifyRootProofEntry) {
	t.Helper()

	leafHash := func(mv MergeValue) MergeValue {
		return MergeValueFromH256(H256Value(mv.Hash()).ToH256(NewBlake2bHasher))
	}
	keyHash := MergeValueFromH256(H256Value(entry.Key).ToH256(NewBlake2bHasher))

	var withItem, withoutItem, opposite MergeValue

	if entry.StartedLeftSide {
		left := leafHash(entry.LeftVec[0])
		for _, v := range entry.LeftVec[1:] {
			left = Merge(NewBlake2bHasher, v, left)
		}
		opposite = leafHash(entry.RightVec[0])
		for _, v := range entry.RightVec[1:] {
			opposite = Merge(NewBlake2bHasher, opposite, v)
		}

		withItem = Merge(NewBlake2bHasher, left, keyHash)
		withoutItem = left
		for _, v := range entry.ContinuingSide {
			withItem = Merge(NewBlake2bHasher, v, withItem)
			withoutItem = Merge(NewBlake2bHasher, v, withoutItem)
		}
		withItem = Merge(NewBlake2bHasher, withItem, opposite)
		withoutItem = Merge(NewBlake2bHasher, withoutItem, opposite)
	} else {
		right := leafHash(entry.RightVec[0])
		for _, v := range entry.RightVec[1:] {
			right = Merge(NewBlake2bHasher, right, v)
		}
		opposite = leafHash(entry.LeftVec[0])
		for _, v := range entry.LeftVec[1:] {
			opposite = Merge(NewBlake2bHasher, v, opposite)
		}

		withItem = Merge(NewBlake2bHasher, keyHash, right)
		withoutItem = right
		for _, v := range entry.ContinuingSide {
			withItem = Merge(NewBlake2bHasher, withItem, v)
			withoutItem = Merge(NewBlake2bHasher, withoutItem, v)
		}
		withItem = Merge(NewBlake2bHasher, opposite, withItem)
		withoutItem = Merge(NewBlake2bHasher, opposite, withoutItem)
	}

	combined := withItem
	other := withoutItem
	for _, side := range entry.RemainingProof {
		if side.IsLeft {
			combined = Merge(NewBlake2bHasher, side.Value, combined)
			other = Merge(NewBlake2bHasher, side.Value, other)
		} else {
			combined = Merge(NewBlake2bHasher, combined, side.Value)
			other = Merge(NewBlake2bHasher, other, side.Value)
		}
	}

	if combined.Hash() != tr.Root() {
		t.Fatalf("folded proof (with key) = %s, want root %s", combined.Hash(), tr.Root())
	}

	if _, err := tr.Update(entry.Key, ZeroValue()); err != nil {
		t.Fatal(err)
	}
	if other.Hash() != tr.Root() {
		t.Fatalf("folded proof (without key) = %s, want root after delete %s", other.Hash(), tr.Root())
	}
}

func TestModifyRootProofContiguous(t *testing.T) {
	tr := newTestTree(t)
	for _, s := range contiguousKeys {
		key := mustH256(t, s)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatal(err)
		}
	}

	target := mustH256(t, contiguousKeys[2])
	entries, err := tr.ModifyRootProof([]H256{target})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	verifyModifyRootProof(t, tr, entries[0])
}

func TestModifyRootProofDiverseKeys(t *testing.T) {
	tr := newTestTree(t)
	for _, s := range diverseKeys32 {
		key := mustH256(t, s)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatal(err)
		}
	}

	target := mustH256(t, diverseKeys32[0])
	entries, err := tr.ModifyRootProof([]H256{target})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	verifyModifyRootProof(t, tr, entries[0])
}

func TestMemberProofVerifiesAgainstRoot(t *testing.T) {
	tr := newTestTree(t)
	var keys []H256
	for _, s := range diverseKeys32 {
		key := mustH256(t, s)
		keys = append(keys, key)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := tr.MemberProof(keys)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(keys) {
		t.Fatalf("len(entries) = %d, want %d (duplicates should not appear; keys are already unique)", len(entries), len(keys))
	}

	for _, entry := range entries {
		leaf := MergeValueFromH256(H256Value(entry.Key).ToH256(NewBlake2bHasher))
		folded := leaf
		for _, side := range entry.Proof {
			if side.IsLeft {
				folded = Merge(NewBlake2bHasher, side.Value, folded)
			} else {
				folded = Merge(NewBlake2bHasher, folded, side.Value)
			}
		}
		if folded.Hash() != tr.Root() {
			t.Fatalf("folded membership proof for %s = %s, want root %s", entry.Key, folded.Hash(), tr.Root())
		}
	}
}

// TestUpdateOrderIndependence checks that the final root does not depend on
// the order keys are inserted in, a direct consequence of the tree being a
// pure function of its key/value set (spec.md §3).
func TestUpdateOrderIndependence(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	build := func(order []string) H256 {
		tr := newTestTree(t)
		for _, s := range order {
			key := mustH256(t, s)
			if _, err := tr.Update(key, H256Value(key)); err != nil {
				t.Fatal(err)
			}
		}
		return tr.Root()
	}

	want := build(diverseKeys32)

	shuffled := append([]string(nil), diverseKeys32...)
	rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	if got := build(shuffled); got != want {
		t.Fatalf("root depends on insertion order: got %s, want %s", got, want)
	}
}

// TestDeleteAllRestoresEmptyRoot checks that removing every inserted key,
// in reverse insertion order, brings the root back to the two-sentinel
// starting point.
func TestDeleteAllRestoresEmptyRoot(t *testing.T) {
	tr := newTestTree(t)
	initial := tr.Root()

	var keys []H256
	for _, s := range diverseKeys32 {
		key := mustH256(t, s)
		keys = append(keys, key)
		if _, err := tr.Update(key, H256Value(key)); err != nil {
			t.Fatal(err)
		}
	}

	for i := len(keys) - 1; i >= 0; i-- {
		if _, err := tr.Update(keys[i], ZeroValue()); err != nil {
			t.Fatal(err)
		}
	}

	if got := tr.Root(); got != initial {
		t.Fatalf("root after deleting every key = %s, want initial root %s", got, initial)
	}
}

// TestRandomInsertDeleteRoundTrip exercises a randomized sequence of
// insertions and deletions, asserting Get always reflects the latest
// Update for each key.
func TestRandomInsertDeleteRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	tr := newTestTree(t)

	present := map[H256]H256Value{}
	var universe []H256
	for i := 0; i < 64; i++ {
		var h H256
		rnd.Read(h[:])
		universe = append(universe, h)
	}

	for step := 0; step < 500; step++ {
		key := universe[rnd.Intn(len(universe))]
		if rnd.Intn(3) == 0 {
			if _, err := tr.Update(key, ZeroValue()); err != nil {
				t.Fatal(err)
			}
			delete(present, key)
		} else {
			var v H256
			rnd.Read(v[:])
			if H256Value(v).IsZero() {
				continue
			}
			if _, err := tr.Update(key, H256Value(v)); err != nil {
				t.Fatal(err)
			}
			present[key] = H256Value(v)
		}
	}

	for _, key := range universe {
		want, ok := present[key]
		got, err := tr.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			if got != want {
				t.Fatalf("Get(%s) = %v, want %v", key, got, want)
			}
		} else {
			var zero H256Value
			if got != zero {
				t.Fatalf("Get(%s) = %v, want zero (deleted)", key, got)
			}
		}
	}
}

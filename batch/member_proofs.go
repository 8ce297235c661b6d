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

// Package batch fans independent read-only tree operations out across
// goroutines. Per spec.md §5, a Tree's read methods take it by reference
// only and perform no writes, so splitting a large key set across
// goroutines and calling MemberProof concurrently is safe as long as no
// Update runs at the same time.
package batch

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/transparency-dev/smt"
)

// MemberProofs splits keys into up to concurrency roughly-equal groups,
// generates a MemberProof for each group on its own goroutine, and
// returns the concatenated results re-sorted by key. concurrency <= 0 is
// treated as 1.
func MemberProofs[V smt.Value](tree *smt.Tree[V], keys []smt.H256, concurrency int) ([]smt.MemberProofEntry, error) {
	if len(keys) == 0 {
		return nil, smt.ErrEmptyKeys
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(keys) {
		concurrency = len(keys)
	}

	chunks := splitKeys(keys, concurrency)
	results := make([][]smt.MemberProofEntry, len(chunks))

	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			entries, err := tree.MemberProof(chunk)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []smt.MemberProofEntry
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// splitKeys deals keys round-robin into n non-empty chunks.
func splitKeys(keys []smt.H256, n int) [][]smt.H256 {
	buckets := make([][]smt.H256, n)
	for i, k := range keys {
		idx := i % n
		buckets[idx] = append(buckets[idx], k)
	}
	var out [][]smt.H256
	for _, b := range buckets {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

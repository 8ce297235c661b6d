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

// Package faketest provides a Store wrapper that injects failures on
// command, standing in for the generated mocks the teacher's own tests
// build from github.com/golang/mock. Mockgen output is checked-in
// generated code produced by running the mockgen binary; since this
// module's test suite is never compiled or run in this session, there is
// no way to generate (or trust, unreviewed) that output, so Store plays
// the same role by hand: wrap a real smt.Store, arrange for one of its
// methods to fail on a chosen call, and confirm the failure surfaces to
// callers as smt.ErrStoreBackend.
package faketest

import (
	"fmt"

	"github.com/transparency-dev/smt"
)

// Store wraps a delegate smt.Store[V] and can be configured to fail
// specific method calls. Each method name tracked by WithFailure has its
// own independent call counter.
type Store[V smt.Value] struct {
	delegate smt.Store[V]

	failAfter map[string]int
	calls     map[string]int
}

// New wraps delegate with failure injection disabled; calls pass through
// until WithFailure is used.
func New[V smt.Value](delegate smt.Store[V]) *Store[V] {
	return &Store[V]{
		delegate:  delegate,
		failAfter: make(map[string]int),
		calls:     make(map[string]int),
	}
}

// WithFailure arranges for the nth call (1-based, counted from this call
// onward) to method to return an injected error instead of delegating.
// Calls already made to method before WithFailure is invoked do not count
// toward nth, so a delegate that reached method during earlier setup (for
// example, the sentinel leaf/branch writes smt.New makes) can be seeded
// before arming a failure further into a caller's own operation. Returns
// the receiver for chaining. Recognized method names: GetBranch, GetLeaf,
// InsertBranch, InsertLeaf, RemoveBranch, RemoveLeaf.
func (s *Store[V]) WithFailure(method string, nth int) *Store[V] {
	s.failAfter[method] = nth
	s.calls[method] = 0
	return s
}

// shouldFail records a call to method and reports whether this call
// should fail.
func (s *Store[V]) shouldFail(method string) bool {
	s.calls[method]++
	nth, armed := s.failAfter[method]
	return armed && s.calls[method] == nth
}

func (s *Store[V]) failure(method string) error {
	return fmt.Errorf("faketest: injected failure in %s (call %d)", method, s.calls[method])
}

func (s *Store[V]) GetBranch(key smt.BranchKey) (smt.BranchNode, bool, error) {
	if s.shouldFail("GetBranch") {
		return smt.BranchNode{}, false, s.failure("GetBranch")
	}
	return s.delegate.GetBranch(key)
}

func (s *Store[V]) GetLeaf(key smt.H256) (V, bool, error) {
	if s.shouldFail("GetLeaf") {
		var zero V
		return zero, false, s.failure("GetLeaf")
	}
	return s.delegate.GetLeaf(key)
}

func (s *Store[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	return s.delegate.BranchesMap()
}

func (s *Store[V]) LeavesMap() map[smt.H256]V {
	return s.delegate.LeavesMap()
}

func (s *Store[V]) InsertBranch(key smt.BranchKey, branch smt.BranchNode) error {
	if s.shouldFail("InsertBranch") {
		return s.failure("InsertBranch")
	}
	return s.delegate.InsertBranch(key, branch)
}

func (s *Store[V]) InsertLeaf(key smt.H256, leaf V) error {
	if s.shouldFail("InsertLeaf") {
		return s.failure("InsertLeaf")
	}
	return s.delegate.InsertLeaf(key, leaf)
}

func (s *Store[V]) RemoveBranch(key smt.BranchKey) error {
	if s.shouldFail("RemoveBranch") {
		return s.failure("RemoveBranch")
	}
	return s.delegate.RemoveBranch(key)
}

func (s *Store[V]) RemoveLeaf(key smt.H256) error {
	if s.shouldFail("RemoveLeaf") {
		return s.failure("RemoveLeaf")
	}
	return s.delegate.RemoveLeaf(key)
}

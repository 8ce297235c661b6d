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
	"errors"
	"fmt"
)

// ErrEmptyKeys is returned by MemberProof/ModifyRootProof when called with
// no keys.
var ErrEmptyKeys = errors.New("smt: no keys given")

// ErrStoreBackend wraps a failure returned by the backing Store. The
// original error is available via errors.Unwrap/errors.Is/errors.As.
type ErrStoreBackend struct {
	Op  string
	Err error
}

func (e *ErrStoreBackend) Error() string {
	return fmt.Sprintf("smt: store backend failed during %s: %v", e.Op, e.Err)
}

func (e *ErrStoreBackend) Unwrap() error {
	return e.Err
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ErrStoreBackend{Op: op, Err: err}
}

// corrupt panics with a description of a violated structural invariant:
// both children of a branch reporting an intersecting height for the same
// key, more than one branch at height 255, or a descent reaching a leaf
// whose key disagrees with the target. Per spec.md §7, these indicate store
// corruption or a bug and are not recoverable at this layer.
func corrupt(format string, args ...any) {
	panic(fmt.Sprintf("smt: corrupt tree invariant: "+format, args...))
}

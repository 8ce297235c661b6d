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

// Package redis backs an smt.Store with a github.com/go-redis/redis
// client: branches live at "branch:<height>:<node-key-hex>", leaves at
// "leaf:<key-hex>". Redis has no native ordered enumeration, so
// BranchesMap/LeavesMap walk a SCAN cursor over the relevant prefix.
package redis

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"github.com/go-redis/redis"

	"github.com/transparency-dev/smt"
)

const scanCount = 256

// Store is an smt.Store backed by a Redis client.
type Store[V smt.Value] struct {
	client *redis.Client
}

// New wraps an already-configured *redis.Client as a Store.
func New[V smt.Value](client *redis.Client) *Store[V] {
	return &Store[V]{client: client}
}

func branchKeyString(key smt.BranchKey) string {
	return fmt.Sprintf("branch:%d:%s", key.Height, hex.EncodeToString(key.NodeKey[:]))
}

func leafKeyString(key smt.H256) string {
	return "leaf:" + hex.EncodeToString(key[:])
}

// sideRecord/branchRecord mirror the sql package's gob-friendly shadow of
// BranchSide/BranchNode: MergeValue's wrapped hash is unexported, so it is
// re-expressed via its Hash() accessor before encoding.
type sideRecord struct {
	IsBranch     bool
	Leaf         smt.H256
	BranchHeight uint8
	BranchKey    smt.H256
	Hash         smt.H256
}

func encodeSide(s smt.BranchSide) sideRecord {
	r := sideRecord{IsBranch: s.Key.IsBranch, Hash: s.Value.Hash()}
	if s.Key.IsBranch {
		r.BranchHeight = s.Key.Branch.Height
		r.BranchKey = s.Key.Branch.NodeKey
	} else {
		r.Leaf = s.Key.Leaf
	}
	return r
}

func decodeSide(r sideRecord) smt.BranchSide {
	var key smt.ChildKey
	if r.IsBranch {
		key = smt.BranchChildKey(smt.BranchKey{Height: r.BranchHeight, NodeKey: r.BranchKey})
	} else {
		key = smt.LeafChildKey(r.Leaf)
	}
	return smt.BranchSide{Value: smt.MergeValueFromH256(r.Hash), Key: key}
}

type branchRecord struct {
	Left, Right sideRecord
}

func encodeBranch(b smt.BranchNode) ([]byte, error) {
	var buf bytes.Buffer
	rec := branchRecord{Left: encodeSide(b.Left), Right: encodeSide(b.Right)}
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBranch(data []byte) (smt.BranchNode, error) {
	var rec branchRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return smt.BranchNode{}, err
	}
	return smt.BranchNode{Left: decodeSide(rec.Left), Right: decodeSide(rec.Right)}, nil
}

// GetBranch implements smt.StoreReader.
func (s *Store[V]) GetBranch(key smt.BranchKey) (smt.BranchNode, bool, error) {
	data, err := s.client.Get(branchKeyString(key)).Bytes()
	if err == redis.Nil {
		return smt.BranchNode{}, false, nil
	}
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/redis: get branch: %w", err)
	}
	node, err := decodeBranch(data)
	if err != nil {
		return smt.BranchNode{}, false, fmt.Errorf("smt/store/redis: decode branch: %w", err)
	}
	return node, true, nil
}

// GetLeaf implements smt.StoreReader.
func (s *Store[V]) GetLeaf(key smt.H256) (V, bool, error) {
	var zero V
	data, err := s.client.Get(leafKeyString(key)).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("smt/store/redis: get leaf: %w", err)
	}
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, false, fmt.Errorf("smt/store/redis: decode leaf: %w", err)
	}
	return v, true, nil
}

func (s *Store[V]) scanKeys(pattern string) []string {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(cursor, pattern, scanCount).Result()
		if err != nil {
			return keys
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}

// BranchesMap implements smt.StoreReader via a SCAN over the "branch:*"
// prefix. As with the SQL backend, individual decode failures are skipped
// rather than surfaced, since the interface carries no error return.
func (s *Store[V]) BranchesMap() map[smt.BranchKey]smt.BranchNode {
	out := map[smt.BranchKey]smt.BranchNode{}
	for _, k := range s.scanKeys("branch:*") {
		var height int
		var hexKey string
		if _, err := fmt.Sscanf(k, "branch:%d:%s", &height, &hexKey); err != nil {
			continue
		}
		data, err := s.client.Get(k).Bytes()
		if err != nil {
			continue
		}
		node, err := decodeBranch(data)
		if err != nil {
			continue
		}
		nodeKeyBytes, err := hex.DecodeString(hexKey)
		if err != nil || len(nodeKeyBytes) != 32 {
			continue
		}
		var nodeKey smt.H256
		copy(nodeKey[:], nodeKeyBytes)
		out[smt.BranchKey{Height: uint8(height), NodeKey: nodeKey}] = node
	}
	return out
}

// LeavesMap implements smt.StoreReader via a SCAN over the "leaf:*" prefix.
func (s *Store[V]) LeavesMap() map[smt.H256]V {
	out := map[smt.H256]V{}
	for _, k := range s.scanKeys("leaf:*") {
		hexKey := k[len("leaf:"):]
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil || len(keyBytes) != 32 {
			continue
		}
		data, err := s.client.Get(k).Bytes()
		if err != nil {
			continue
		}
		var v V
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			continue
		}
		var key smt.H256
		copy(key[:], keyBytes)
		out[key] = v
	}
	return out
}

// InsertBranch implements smt.StoreWriter.
func (s *Store[V]) InsertBranch(key smt.BranchKey, node smt.BranchNode) error {
	data, err := encodeBranch(node)
	if err != nil {
		return fmt.Errorf("smt/store/redis: encode branch: %w", err)
	}
	if err := s.client.Set(branchKeyString(key), data, 0).Err(); err != nil {
		return fmt.Errorf("smt/store/redis: set branch: %w", err)
	}
	return nil
}

// InsertLeaf implements smt.StoreWriter.
func (s *Store[V]) InsertLeaf(key smt.H256, value V) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("smt/store/redis: encode leaf: %w", err)
	}
	if err := s.client.Set(leafKeyString(key), buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("smt/store/redis: set leaf: %w", err)
	}
	return nil
}

// RemoveBranch implements smt.StoreWriter.
func (s *Store[V]) RemoveBranch(key smt.BranchKey) error {
	if err := s.client.Del(branchKeyString(key)).Err(); err != nil {
		return fmt.Errorf("smt/store/redis: del branch: %w", err)
	}
	return nil
}

// RemoveLeaf implements smt.StoreWriter.
func (s *Store[V]) RemoveLeaf(key smt.H256) error {
	if err := s.client.Del(leafKeyString(key)).Err(); err != nil {
		return fmt.Errorf("smt/store/redis: del leaf: %w", err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostfunc

import (
	"context"
	"errors"
	"slices"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// KVStore provides namespaced key-value storage.
type KVStore interface {
	// Get returns nil, nil for a missing key.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("key cannot be empty")

// keySeparator cannot appear in plugin names, so namespaces never collide.
const keySeparator = "\x1f"

// MemoryKV is a KVStore held in a sharded concurrent map. Contents do not
// survive a restart.
type MemoryKV struct {
	data cmap.ConcurrentMap[string, []byte]
}

var _ KVStore = (*MemoryKV)(nil)

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: cmap.New[[]byte]()}
}

func storeKey(namespace, key string) string {
	return namespace + keySeparator + key
}

// Get implements KVStore.
func (s *MemoryKV) Get(_ context.Context, namespace, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	v, ok := s.data.Get(storeKey(namespace, key))
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

// Set implements KVStore.
func (s *MemoryKV) Set(_ context.Context, namespace, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	s.data.Set(storeKey(namespace, key), slices.Clone(value))
	return nil
}

// Delete implements KVStore. Deleting a missing key is not an error.
func (s *MemoryKV) Delete(_ context.Context, namespace, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.data.Remove(storeKey(namespace, key))
	return nil
}

// Keys returns the keys stored under namespace, sorted.
func (s *MemoryKV) Keys(namespace string) []string {
	prefix := namespace + keySeparator
	var keys []string
	s.data.IterCb(func(k string, _ []byte) {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			keys = append(keys, rest)
		}
	})
	slices.Sort(keys)
	return keys
}

// Len returns the number of stored entries across all namespaces.
func (s *MemoryKV) Len() int {
	return s.data.Count()
}

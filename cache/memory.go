package cache

import (
	"bytes"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidCapacity is returned by NewMemory for capacities below 1.
var ErrInvalidCapacity = errors.New("cache: capacity must be at least 1")

// Memory is the in-process tier: a fixed-capacity store with strict
// least-recently-used eviction. A Get that hits promotes the key to most
// recently used; inserting a new key into a full cache evicts exactly the
// least recently used entry first. Byte slices are cloned on the way in and
// on the way out, so callers never alias stored bytes.
type Memory struct {
	lc *lru.Cache[string, []byte]

	evictions atomic.Uint64
}

// NewMemory creates a Memory tier holding at most capacity entries.
func NewMemory(capacity int) (*Memory, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	lc, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Memory{lc: lc}, nil
}

// Get retrieves the value stored under key and marks it most recently used.
// A miss has no side effect.
func (m *Memory) Get(key string) ([]byte, bool) {
	v, ok := m.lc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Put inserts or overwrites the entry for key. Overwriting an existing key
// replaces its value and promotes it without evicting anything; a new key at
// capacity evicts the least recently used entry first.
func (m *Memory) Put(key string, val []byte) {
	if evicted := m.lc.Add(key, bytes.Clone(val)); evicted {
		m.evictions.Add(1)
	}
}

// Remove deletes the entry for key if present.
func (m *Memory) Remove(key string) {
	m.lc.Remove(key)
}

// Clear empties the tier.
func (m *Memory) Clear() {
	m.lc.Purge()
}

// Len reports the number of entries currently stored.
func (m *Memory) Len() int {
	return m.lc.Len()
}

// Contains reports whether key is present without touching recency order.
func (m *Memory) Contains(key string) bool {
	return m.lc.Contains(key)
}

// Evictions reports how many entries have been evicted since construction.
func (m *Memory) Evictions() uint64 {
	return m.evictions.Load()
}

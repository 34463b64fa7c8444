// Package cache provides the storage tiers behind the asset cache: a
// bounded in-memory LRU and pluggable persistent byte stores.
package cache

import "context"

// Store is the persistent-tier contract. Implementations are best-effort:
// after Init, every failure reads as a miss or is silently discarded,
// because absence is a valid, recoverable cache state and losing a cache
// write must never fail the caller's fetch.
type Store interface {
	// Init establishes the durable location. It is idempotent and safe to
	// call concurrently. When the location cannot be established the store
	// becomes inert for the life of the process: Init reports the failure,
	// and every later operation is a harmless no-op.
	Init(ctx context.Context) error

	// Get retrieves the value stored under key. The boolean indicates a
	// hit. Any I/O failure reads as a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores a value under key, creating or overwriting the entry.
	Put(ctx context.Context, key string, val []byte) error

	// Remove deletes the entry for key if present.
	Remove(ctx context.Context, key string) error

	// Clear deletes every entry in the store.
	Clear(ctx context.Context) error
}

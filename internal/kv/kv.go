// Package kv defines the persistent key-value substrate the cache layer
// is built on.
//
// The interface deliberately mirrors a batched asynchronous store: gets,
// sets and removes all take key batches and a context. It carries no TTL
// of its own; expiry and versioning live one layer up in the cache.
package kv

import "context"

// Store is the minimal batched key-value contract.
//
// Implementations must treat missing keys as absent, not as errors: Get
// simply omits them from the result map.
type Store interface {
	// Get returns the values for the given keys. Missing keys are omitted.
	Get(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores every entry in the map. The batch is applied as one
	// operation where the backend allows it.
	Set(ctx context.Context, entries map[string][]byte) error

	// Remove deletes the given keys. Deleting a missing key is a no-op.
	Remove(ctx context.Context, keys []string) error

	// Clear deletes everything.
	Clear(ctx context.Context) error

	// Keys lists all stored keys, in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

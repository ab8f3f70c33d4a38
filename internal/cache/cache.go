// Package cache provides the versioned, TTL-based cache the engine reads
// between syncs.
//
// Entries wrap their payload in an envelope carrying the write timestamp,
// the time-to-live and the schema version they were written under. An
// entry is valid iff it is unexpired AND its version matches the current
// schema version; either violation makes it logically absent and evicts
// it on the next read. There is no LRU/LFU policy: key cardinality is
// bounded (one entry per habit plus a handful of system keys), so expiry
// and version bumps are the only eviction triggers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/kv"
)

// cleanupBudget bounds how long one CleanupExpired pass may scan, so a
// large store cannot block the scheduler tick that triggered it.
const cleanupBudget = 250 * time.Millisecond

// envelope is the stored shape of every cache entry.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTLMillis int64           `json:"ttl"`
	Version   string          `json:"version"`
	Size      int             `json:"size"`
}

// expired reports whether the envelope is past its TTL at the given time.
// A non-positive TTL never expires.
func (e *envelope) expired(now time.Time) bool {
	if e.TTLMillis <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > time.Duration(e.TTLMillis)*time.Millisecond
}

// Stats summarizes cache contents for diagnostics. It is never used for
// eviction decisions.
type Stats struct {
	TotalItems int        `json:"total_items"`
	TotalSize  int        `json:"total_size"` // serialized byte length, approximate
	Entries    []KeyStats `json:"entries"`
}

// KeyStats describes one cached entry.
type KeyStats struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	Version   string    `json:"version"`
	ExpiresAt time.Time `json:"expires_at"` // zero when the entry never expires
}

// Store layers TTL and version invalidation over a kv.Store. The schema
// version is injected, not compiled in, so a bump is a config change.
type Store struct {
	kv      kv.Store
	version string
	logger  *log.Logger

	// now is swapped out by tests to control the clock.
	now func() time.Time
}

// New creates a cache over the given substrate. Entries written under any
// other schema version are treated as absent.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store kv.Store, schemaVersion string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Store{
		kv:      store,
		version: schemaVersion,
		logger:  logger,
		now:     time.Now,
	}
}

// Set stores value under key with the given TTL. A non-positive TTL means
// the entry only dies by version bump or explicit removal.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	encoded, err := s.encode(value, ttl)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{key: encoded}); err != nil {
		return fmt.Errorf("failed to store entry %s: %w", key, err)
	}
	return nil
}

// SetBatch stores every value in one underlying write. All entries share
// the same TTL and the current schema version.
func (s *Store) SetBatch(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	batch := make(map[string][]byte, len(values))
	for key, value := range values {
		encoded, err := s.encode(value, ttl)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", key, err)
		}
		batch[key] = encoded
	}
	if err := s.kv.Set(ctx, batch); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}
	return nil
}

// Get reads key into dest and reports whether a valid entry existed.
// Expired or version-mismatched entries are deleted as a side effect and
// reported as absent; stale data is never returned.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	entries, err := s.kv.Get(ctx, []string{key})
	if err != nil {
		return false, fmt.Errorf("failed to read entry %s: %w", key, err)
	}
	raw, ok := entries[key]
	if !ok {
		return false, nil
	}

	env, ok := s.decode(key, raw)
	if !ok {
		// Self-healing: corrupt, expired or incompatible entries are
		// evicted, never surfaced as errors.
		if err := s.kv.Remove(ctx, []string{key}); err != nil {
			s.logger.Printf("Failed to evict stale entry %s: %v", key, err)
		}
		return false, nil
	}

	if dest != nil {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return false, fmt.Errorf("failed to decode entry %s: %w", key, err)
		}
	}
	return true, nil
}

// GetBatch reads many keys at once, returning the raw payloads of the
// valid ones and evicting the stale ones in a single delete.
func (s *Store) GetBatch(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	entries, err := s.kv.Get(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	out := make(map[string]json.RawMessage, len(entries))
	var stale []string
	for key, raw := range entries {
		env, ok := s.decode(key, raw)
		if !ok {
			stale = append(stale, key)
			continue
		}
		out[key] = env.Data
	}

	if len(stale) > 0 {
		if err := s.kv.Remove(ctx, stale); err != nil {
			s.logger.Printf("Failed to evict %d stale entries: %v", len(stale), err)
		}
	}
	return out, nil
}

// Remove deletes entries unconditionally.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.kv.Remove(ctx, keys); err != nil {
		return fmt.Errorf("failed to remove entries: %w", err)
	}
	return nil
}

// ClearAll deletes every entry.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// CleanupExpired scans the store and evicts every expired or
// version-mismatched entry, batched into one underlying delete. The scan
// is time-boxed; entries not reached this pass are caught by the next.
// Returns the number of evicted entries.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	deadline := s.now().Add(cleanupBudget)
	var stale []string
	scanned := 0

	for _, key := range keys {
		if s.now().After(deadline) {
			s.logger.Printf("Cleanup budget exhausted after %d/%d keys", scanned, len(keys))
			break
		}
		scanned++

		entries, err := s.kv.Get(ctx, []string{key})
		if err != nil {
			return 0, fmt.Errorf("failed to read entry %s: %w", key, err)
		}
		raw, ok := entries[key]
		if !ok {
			continue
		}
		if _, ok := s.decode(key, raw); !ok {
			stale = append(stale, key)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.kv.Remove(ctx, stale); err != nil {
		return 0, fmt.Errorf("failed to evict stale entries: %w", err)
	}
	return len(stale), nil
}

// Stats reports totals and per-key expiry for diagnostics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	entries, err := s.kv.Get(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	stats := &Stats{}
	for key, raw := range entries {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		ks := KeyStats{Key: key, Size: len(raw), Version: env.Version}
		if env.TTLMillis > 0 {
			ks.ExpiresAt = env.Timestamp.Add(time.Duration(env.TTLMillis) * time.Millisecond)
		}
		stats.Entries = append(stats.Entries, ks)
		stats.TotalItems++
		stats.TotalSize += len(raw)
	}

	sort.Slice(stats.Entries, func(i, j int) bool {
		return stats.Entries[i].Key < stats.Entries[j].Key
	})
	return stats, nil
}

func (s *Store) encode(value any, ttl time.Duration) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Data:      data,
		Timestamp: s.now(),
		TTLMillis: ttl.Milliseconds(),
		Version:   s.version,
		Size:      len(data),
	})
}

// decode parses a stored envelope and reports whether it is still valid.
func (s *Store) decode(key string, raw []byte) (*envelope, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Printf("Corrupt cache entry %s: %v", key, err)
		return nil, false
	}
	if env.Version != s.version {
		return nil, false
	}
	if env.expired(s.now()) {
		return nil, false
	}
	return &env, true
}

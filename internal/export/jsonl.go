// Package export dumps cached habits to JSONL backups and restores them.
//
// One habit per line, encoded as the full Habit document. The backup is
// cache-only: importing writes entries into the cache, it does not push
// rows to the remote store (the next create/update per habit does that,
// or a reconcile overwrites the imports with remote state).
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/habit"
)

// Result contains statistics about an export or import pass.
type Result struct {
	HabitsProcessed int
	LinesSkipped    int
	Path            string
}

// ToJSONL writes every cached habit to path, one JSON document per line,
// ordered by id so consecutive backups of the same state are identical.
func ToJSONL(ctx context.Context, habits *cache.Habits, path string) (*Result, error) {
	all, err := habits.AllHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached habits: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Write to a temp file and rename so a crash cannot leave a
	// truncated backup in place.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".habits-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	for _, h := range all {
		if err := encoder.Encode(h); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("failed to encode habit %s: %w", h.ID, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to move backup into place: %w", err)
	}

	return &Result{HabitsProcessed: len(all), Path: path}, nil
}

// FromJSONL reads a JSONL backup and replaces the cached habit set with
// it in one batch. Undecodable or invalid lines are counted and skipped,
// not fatal, so a partially corrupt backup still restores what it can.
func FromJSONL(ctx context.Context, habits *cache.Habits, path string, ttl time.Duration) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	var restored []*habit.Habit
	skipped := 0
	decoder := json.NewDecoder(file)
	for line := 1; ; line++ {
		var h habit.Habit
		if err := decoder.Decode(&h); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}
		if h.ID == "" || h.Validate() != nil {
			skipped++
			continue
		}
		restored = append(restored, &h)
	}

	if len(restored) > 0 {
		if err := habits.StoreHabits(ctx, restored, ttl); err != nil {
			return nil, fmt.Errorf("failed to store restored habits: %w", err)
		}
	}

	return &Result{HabitsProcessed: len(restored), LinesSkipped: skipped, Path: path}, nil
}

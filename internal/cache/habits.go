package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/habit"
)

// Cache key layout. Habits are cached one entry per id plus an id index;
// monthly tracking snapshots get their own keys so a month view can be
// served without decoding every habit.
const (
	habitKeyPrefix    = "habit:"
	habitIndexKey     = "habits:index"
	trackingKeyPrefix = "tracking:"
	spreadsheetKey    = "sheet:spreadsheet"
)

// Default TTLs. Habit entries outlive several sync intervals so a flaky
// backend degrades to a stale-but-usable view; the spreadsheet linkage
// lives longer because re-deriving it costs several remote calls.
const (
	DefaultHabitTTL       = 24 * time.Hour
	DefaultSpreadsheetTTL = 7 * 24 * time.Hour
)

// Habits is the habit-specific convenience layer over Store.
type Habits struct {
	store *Store
}

// NewHabits wraps a cache store with habit key handling.
func NewHabits(store *Store) *Habits {
	return &Habits{store: store}
}

// Store returns the underlying cache store, for diagnostics surfaces.
func (h *Habits) Store() *Store {
	return h.store
}

func habitKey(id string) string {
	return habitKeyPrefix + id
}

// TrackingKey names the monthly tracking snapshot for a habit.
func TrackingKey(id string, year int, month time.Month) string {
	return fmt.Sprintf("%s%s:%04d-%02d", trackingKeyPrefix, id, year, int(month))
}

// StoreHabit writes one habit and adds it to the id index.
func (h *Habits) StoreHabit(ctx context.Context, hb *habit.Habit, ttl time.Duration) error {
	if err := h.store.Set(ctx, habitKey(hb.ID), hb, ttl); err != nil {
		return err
	}

	ids, err := h.index(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == hb.ID {
			return nil
		}
	}
	return h.store.Set(ctx, habitIndexKey, append(ids, hb.ID), ttl)
}

// StoreHabits replaces the cached habit set in one batch write: every
// habit entry plus the rebuilt index land in a single substrate call.
func (h *Habits) StoreHabits(ctx context.Context, habits []*habit.Habit, ttl time.Duration) error {
	values := make(map[string]any, len(habits)+1)
	ids := make([]string, 0, len(habits))
	for _, hb := range habits {
		values[habitKey(hb.ID)] = hb
		ids = append(ids, hb.ID)
	}
	sort.Strings(ids)
	values[habitIndexKey] = ids
	return h.store.SetBatch(ctx, values, ttl)
}

// Habit reads one habit by id. Absent covers expired and version-stale
// entries as well as never-cached ids.
func (h *Habits) Habit(ctx context.Context, id string) (*habit.Habit, bool, error) {
	var hb habit.Habit
	ok, err := h.store.Get(ctx, habitKey(id), &hb)
	if err != nil || !ok {
		return nil, false, err
	}
	return &hb, true, nil
}

// AllHabits returns every cached habit, in index order. Ids whose entries
// have individually expired are skipped.
func (h *Habits) AllHabits(ctx context.Context) ([]*habit.Habit, error) {
	ids, err := h.index(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = habitKey(id)
	}
	payloads, err := h.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, err
	}

	habits := make([]*habit.Habit, 0, len(ids))
	for _, id := range ids {
		raw, ok := payloads[habitKey(id)]
		if !ok {
			continue
		}
		var hb habit.Habit
		if err := json.Unmarshal(raw, &hb); err != nil {
			return nil, fmt.Errorf("failed to decode cached habit %s: %w", id, err)
		}
		habits = append(habits, &hb)
	}
	return habits, nil
}

// RemoveHabits drops the given ids from the cache and the index.
func (h *Habits) RemoveHabits(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[string]bool, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		drop[id] = true
		keys = append(keys, habitKey(id))
	}
	if err := h.store.Remove(ctx, keys...); err != nil {
		return err
	}

	index, err := h.index(ctx)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, id := range index {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	return h.store.Set(ctx, habitIndexKey, kept, DefaultHabitTTL)
}

// RemoveHabit drops one id.
func (h *Habits) RemoveHabit(ctx context.Context, id string) error {
	return h.RemoveHabits(ctx, []string{id})
}

// StoreTracking caches a habit's tracking snapshot for one month.
func (h *Habits) StoreTracking(ctx context.Context, id string, year int, month time.Month, tracking map[int]habit.DailyTracking, ttl time.Duration) error {
	return h.store.Set(ctx, TrackingKey(id, year, month), tracking, ttl)
}

// Tracking reads a habit's cached tracking snapshot for one month.
func (h *Habits) Tracking(ctx context.Context, id string, year int, month time.Month) (map[int]habit.DailyTracking, bool, error) {
	var tracking map[int]habit.DailyTracking
	ok, err := h.store.Get(ctx, TrackingKey(id, year, month), &tracking)
	if err != nil || !ok {
		return nil, false, err
	}
	return tracking, true, nil
}

// StoreSpreadsheetID caches the discovered spreadsheet linkage.
func (h *Habits) StoreSpreadsheetID(ctx context.Context, id string) error {
	return h.store.Set(ctx, spreadsheetKey, id, DefaultSpreadsheetTTL)
}

// SpreadsheetID reads the cached spreadsheet linkage.
func (h *Habits) SpreadsheetID(ctx context.Context) (string, bool, error) {
	var id string
	ok, err := h.store.Get(ctx, spreadsheetKey, &id)
	if err != nil || !ok {
		return "", false, err
	}
	return id, true, nil
}

// RemoveSpreadsheetID drops the cached linkage, forcing re-discovery.
func (h *Habits) RemoveSpreadsheetID(ctx context.Context) error {
	return h.store.Remove(ctx, spreadsheetKey)
}

// HasHabits reports whether any habit data is cached and valid.
func (h *Habits) HasHabits(ctx context.Context) (bool, error) {
	ids, err := h.index(ctx)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (h *Habits) index(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := h.store.Get(ctx, habitIndexKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

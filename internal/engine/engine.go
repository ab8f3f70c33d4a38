// Package engine keeps the local habit cache and the remote sheet
// convergent, and exposes the operation surface the rest of the
// application calls.
//
// Mutations are optimistic about reads but conservative about writes:
// the remote write happens first, and the cache is only updated after
// remote success, so a failed call can never corrupt the cached view.
// Row indexes are re-resolved immediately before every mutating call and
// never cached, because deletes shift them.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/remote"
)

// SheetRepository is the slice of the sheets layer the engine needs.
// Satisfied by *sheets.Repository.
type SheetRepository interface {
	SetupDrive(ctx context.Context) (string, error)
	SpreadsheetID() string
	SetSpreadsheetID(id string)
	FetchRows(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, row []string) error
	UpdateRow(ctx context.Context, rowIndex int, row []string) error
	DeleteRow(ctx context.Context, rowIndex int) error
	FindRowIndex(ctx context.Context, column int, value string) (int, error)
}

// EventSink receives engine events for observers (the status dashboard).
// Implementations must not block; nil disables events.
type EventSink interface {
	HabitChanged(action string, h *habit.Habit)
	SyncCompleted(result SyncResult)
}

// Config holds engine configuration.
type Config struct {
	// HabitTTL is the cache TTL for habit entries (default: cache.DefaultHabitTTL).
	HabitTTL time.Duration

	// Events receives change notifications (optional).
	Events EventSink

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// Engine is the sync engine. One instance per process, constructed
// explicitly and handed to the scheduler and the CLI.
type Engine struct {
	habits   *cache.Habits
	repo     SheetRepository
	events   EventSink
	habitTTL time.Duration
	logger   *log.Logger

	// now and newID are swapped out by tests.
	now   func() time.Time
	newID func() string
}

// New creates an engine over the given cache layer and sheet repository.
func New(habits *cache.Habits, repo SheetRepository, config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	ttl := config.HabitTTL
	if ttl <= 0 {
		ttl = cache.DefaultHabitTTL
	}

	return &Engine{
		habits:   habits,
		repo:     repo,
		events:   config.Events,
		habitTTL: ttl,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetEvents installs the event sink. Must be called before the engine
// is shared across goroutines.
func (e *Engine) SetEvents(events EventSink) {
	e.events = events
}

// CreateHabit validates the form, assigns a generated id, appends the
// row remotely and only then caches the result.
func (e *Engine) CreateHabit(ctx context.Context, form *habit.Habit) OpResult {
	h := form.Clone()
	h.ID = e.newID()
	if h.CreatedDate.IsZero() {
		h.CreatedDate = e.now()
	}

	if err := h.Validate(); err != nil {
		return e.failure(&remote.ValidationError{Reason: err.Error()})
	}

	if err := e.ensureBound(ctx); err != nil {
		return e.failure(err)
	}
	if err := e.repo.AppendRow(ctx, habit.MarshalRow(h)); err != nil {
		return e.failure(fmt.Errorf("failed to append habit row: %w", err))
	}

	if err := e.habits.StoreHabit(ctx, h, e.habitTTL); err != nil {
		// Remote write landed; the next reconcile repairs the cache.
		e.logger.Printf("Habit %s created remotely but cache write failed: %v", h.ID, err)
	}

	e.logger.Printf("Created habit %s (%s)", h.ID, h.Name)
	e.emitChange("created", h)
	return OpResult{Success: true, Habit: h}
}

// UpdateHabit writes the full row for the habit (the backend has no
// partial-column update) and refreshes the cache entry.
func (e *Engine) UpdateHabit(ctx context.Context, h *habit.Habit) OpResult {
	if err := h.Validate(); err != nil {
		return e.failure(&remote.ValidationError{Reason: err.Error()})
	}

	if err := e.writeRow(ctx, h); err != nil {
		return e.failure(err)
	}

	if err := e.habits.StoreHabit(ctx, h, e.habitTTL); err != nil {
		e.logger.Printf("Habit %s updated remotely but cache write failed: %v", h.ID, err)
	}
	e.emitChange("updated", h)
	return OpResult{Success: true, Habit: h}
}

// ArchiveHabit flips the archived flag. Archiving is a field flip, not a
// delete: the row stays where it is.
func (e *Engine) ArchiveHabit(ctx context.Context, id string, archived bool) OpResult {
	_, h, err := e.resolveRow(ctx, id)
	if err != nil {
		return e.failure(err)
	}

	h.IsArchived = archived
	if err := e.writeRow(ctx, h); err != nil {
		return e.failure(err)
	}
	if err := e.habits.StoreHabit(ctx, h, e.habitTTL); err != nil {
		e.logger.Printf("Habit %s archived remotely but cache write failed: %v", id, err)
	}
	e.emitChange("archived", h)
	return OpResult{Success: true, Habit: h}
}

// TrackDay records a value for one day-of-month, recomputes streaks,
// writes the full row and refreshes both the habit entry and the monthly
// tracking snapshot.
func (e *Engine) TrackDay(ctx context.Context, id string, day int, value float64) OpResult {
	_, h, err := e.resolveRow(ctx, id)
	if err != nil {
		return e.failure(err)
	}

	now := e.now()
	if err := h.Track(day, value, now); err != nil {
		return e.failure(&remote.ValidationError{Reason: err.Error()})
	}
	updateStreaks(h, day)

	if err := e.writeRow(ctx, h); err != nil {
		return e.failure(err)
	}

	if err := e.habits.StoreHabit(ctx, h, e.habitTTL); err != nil {
		e.logger.Printf("Habit %s tracked remotely but cache write failed: %v", id, err)
	}
	if err := e.habits.StoreTracking(ctx, id, now.Year(), now.Month(), h.Tracking, e.habitTTL); err != nil {
		e.logger.Printf("Failed to cache tracking snapshot for %s: %v", id, err)
	}
	e.emitChange("tracked", h)
	return OpResult{Success: true, Habit: h}
}

// DeleteHabit removes the habit's row and cache entry. The row index is
// resolved immediately before the delete.
func (e *Engine) DeleteHabit(ctx context.Context, id string) OpResult {
	if err := e.ensureBound(ctx); err != nil {
		return e.failure(err)
	}

	idx, err := e.repo.FindRowIndex(ctx, habit.ColID, id)
	if err != nil {
		return e.failure(err)
	}
	if idx < 0 {
		return e.failure(fmt.Errorf("habit %s not found in sheet", id))
	}
	if err := e.repo.DeleteRow(ctx, idx); err != nil {
		return e.failure(err)
	}

	if err := e.habits.RemoveHabit(ctx, id); err != nil {
		e.logger.Printf("Habit %s deleted remotely but cache removal failed: %v", id, err)
	}
	e.logger.Printf("Deleted habit %s", id)
	e.emitChange("deleted", &habit.Habit{ID: id})
	return OpResult{Success: true}
}

// BatchDeleteHabits deletes ids one at a time, re-resolving each row
// index after the previous delete shifted the table. Failures are
// accumulated per id, never aborting the batch.
func (e *Engine) BatchDeleteHabits(ctx context.Context, ids []string) BatchResult {
	return e.runBatch(ids, func(id string) OpResult {
		return e.DeleteHabit(ctx, id)
	})
}

// BatchArchiveHabits archives (or unarchives) ids sequentially.
func (e *Engine) BatchArchiveHabits(ctx context.Context, ids []string, archived bool) BatchResult {
	return e.runBatch(ids, func(id string) OpResult {
		return e.ArchiveHabit(ctx, id, archived)
	})
}

// CachedHabits returns the current cached habit set.
func (e *Engine) CachedHabits(ctx context.Context) ([]*habit.Habit, error) {
	return e.habits.AllHabits(ctx)
}

// HasCache reports whether any valid habit data is cached.
func (e *Engine) HasCache(ctx context.Context) (bool, error) {
	return e.habits.HasHabits(ctx)
}

// Healthy reports whether the engine has a usable spreadsheet linkage
// without performing any remote call.
func (e *Engine) Healthy(ctx context.Context) bool {
	if e.repo.SpreadsheetID() != "" {
		return true
	}
	id, ok, err := e.habits.SpreadsheetID(ctx)
	return err == nil && ok && id != ""
}

// Repair re-derives the folder/spreadsheet linkage from scratch: the
// cached id is dropped and discovery runs again.
func (e *Engine) Repair(ctx context.Context) error {
	if err := e.habits.RemoveSpreadsheetID(ctx); err != nil {
		return err
	}
	e.repo.SetSpreadsheetID("")

	id, err := e.repo.SetupDrive(ctx)
	if err != nil {
		return fmt.Errorf("failed to repair spreadsheet linkage: %w", err)
	}
	if err := e.habits.StoreSpreadsheetID(ctx, id); err != nil {
		e.logger.Printf("Repaired linkage but failed to cache it: %v", err)
	}
	e.logger.Printf("Repaired spreadsheet linkage: %s", id)
	return nil
}

// ensureBound binds the repository to a spreadsheet, preferring the
// cached linkage and falling back to full discovery.
func (e *Engine) ensureBound(ctx context.Context) error {
	if e.repo.SpreadsheetID() != "" {
		return nil
	}
	if id, ok, err := e.habits.SpreadsheetID(ctx); err == nil && ok {
		e.repo.SetSpreadsheetID(id)
		return nil
	}

	id, err := e.repo.SetupDrive(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up sheet backend: %w", err)
	}
	if err := e.habits.StoreSpreadsheetID(ctx, id); err != nil {
		e.logger.Printf("Failed to cache spreadsheet linkage: %v", err)
	}
	return nil
}

// resolveRow fetches the table and locates id, returning the current row
// index and the decoded remote habit. One fetch serves both, and the
// index is used immediately, never stored.
func (e *Engine) resolveRow(ctx context.Context, id string) (int, *habit.Habit, error) {
	if err := e.ensureBound(ctx); err != nil {
		return -1, nil, err
	}

	rows, err := e.repo.FetchRows(ctx)
	if err != nil {
		return -1, nil, err
	}
	for i, row := range rows {
		if len(row) > habit.ColID && row[habit.ColID] == id {
			h, err := habit.UnmarshalRow(row)
			if err != nil {
				return -1, nil, fmt.Errorf("failed to decode row %d: %w", i, err)
			}
			return i, h, nil
		}
	}
	return -1, nil, fmt.Errorf("habit %s not found in sheet", id)
}

// writeRow re-resolves the habit's row index and overwrites the row.
func (e *Engine) writeRow(ctx context.Context, h *habit.Habit) error {
	if err := e.ensureBound(ctx); err != nil {
		return err
	}
	idx, err := e.repo.FindRowIndex(ctx, habit.ColID, h.ID)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("habit %s not found in sheet", h.ID)
	}
	return e.repo.UpdateRow(ctx, idx, habit.MarshalRow(h))
}

func (e *Engine) runBatch(ids []string, op func(id string) OpResult) BatchResult {
	var result BatchResult
	for _, id := range ids {
		r := op(id)
		item := BatchItem{ID: id, Success: r.Success, Err: r.Err}
		result.Items = append(result.Items, item)
		if r.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		if r.NeedsAuth {
			result.NeedsAuth = true
		}
	}
	return result
}

func (e *Engine) failure(err error) OpResult {
	needsAuth := remote.NeedsAuth(err)
	if needsAuth {
		e.logger.Printf("Operation needs re-authentication: %v", err)
	} else {
		e.logger.Printf("Operation failed: %v", err)
	}
	return OpResult{Err: err, NeedsAuth: needsAuth}
}

func (e *Engine) emitChange(action string, h *habit.Habit) {
	if e.events != nil {
		e.events.HabitChanged(action, h)
	}
}

// updateStreaks recomputes the streak counters after day was tracked:
// the current streak is the run of completed days ending at day, and the
// longest streak never shrinks.
func updateStreaks(h *habit.Habit, day int) {
	current := 0
	for d := day; d >= 1; d-- {
		t, ok := h.Tracking[d]
		if !ok || !t.Completed {
			break
		}
		current++
	}
	h.CurrentStreak = current
	if current > h.LongestStreak {
		h.LongestStreak = current
	}
}

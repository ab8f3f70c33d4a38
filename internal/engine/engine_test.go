package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/kv"
	"github.com/KhanhRomVN/habitsync/internal/remote"
)

// fakeRepo is an in-memory sheet: a slice of rows with the same
// index-shifting delete semantics as the real backend.
type fakeRepo struct {
	id   string
	rows [][]string

	failFetch  error
	failAppend error
	setupCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{id: "ss-test"}
}

func (f *fakeRepo) SetupDrive(ctx context.Context) (string, error) {
	f.setupCalls++
	if f.id == "" {
		f.id = "ss-test"
	}
	return f.id, nil
}

func (f *fakeRepo) SpreadsheetID() string { return f.id }

func (f *fakeRepo) SetSpreadsheetID(id string) { f.id = id }

func (f *fakeRepo) FetchRows(ctx context.Context) ([][]string, error) {
	if f.failFetch != nil {
		return nil, f.failFetch
	}
	out := make([][]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (f *fakeRepo) AppendRow(ctx context.Context, row []string) error {
	if f.failAppend != nil {
		return f.failAppend
	}
	f.rows = append(f.rows, append([]string(nil), row...))
	return nil
}

func (f *fakeRepo) UpdateRow(ctx context.Context, rowIndex int, row []string) error {
	if rowIndex < 0 || rowIndex >= len(f.rows) {
		return fmt.Errorf("row index %d out of range", rowIndex)
	}
	f.rows[rowIndex] = append([]string(nil), row...)
	return nil
}

func (f *fakeRepo) DeleteRow(ctx context.Context, rowIndex int) error {
	if rowIndex < 0 || rowIndex >= len(f.rows) {
		return fmt.Errorf("row index %d out of range", rowIndex)
	}
	f.rows = append(f.rows[:rowIndex], f.rows[rowIndex+1:]...)
	return nil
}

func (f *fakeRepo) FindRowIndex(ctx context.Context, column int, value string) (int, error) {
	if f.failFetch != nil {
		return -1, f.failFetch
	}
	for i, row := range f.rows {
		if column < len(row) && row[column] == value {
			return i, nil
		}
	}
	return -1, nil
}

func (f *fakeRepo) seed(habits ...*habit.Habit) {
	for _, h := range habits {
		f.rows = append(f.rows, habit.MarshalRow(h))
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func newTestEngine(t *testing.T, repo *fakeRepo) (*Engine, *cache.Habits) {
	t.Helper()

	logger := log.New(testWriter{t}, "[test] ", 0)
	habits := cache.NewHabits(cache.New(kv.NewMemory(), "1.0.0", logger))

	eng := New(habits, repo, &Config{Logger: logger})
	eng.now = func() time.Time { return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC) }
	seq := 0
	eng.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return eng, habits
}

func goodHabit(id, name string) *habit.Habit {
	return &habit.Habit{
		ID: id, Name: name, Type: habit.TypeGood, Difficulty: 2, Goal: 8,
		CreatedDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateHabitAppendsRowAndCaches(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	eng, habits := newTestEngine(t, repo)

	result := eng.CreateHabit(ctx, &habit.Habit{
		Name: "Drink water", Type: habit.TypeGood, Difficulty: 2, Goal: 8,
	})
	if !result.Success {
		t.Fatalf("CreateHabit failed: %v", result.Err)
	}
	if result.Habit.ID == "" {
		t.Fatal("expected a generated id")
	}

	if len(repo.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.rows))
	}
	row := repo.rows[0]
	if row[habit.ColName] != "Drink water" || row[habit.ColGoal] != "8" {
		t.Errorf("unexpected row cells: name=%q goal=%q", row[habit.ColName], row[habit.ColGoal])
	}

	cached, ok, err := habits.Habit(ctx, result.Habit.ID)
	if err != nil || !ok {
		t.Fatalf("created habit not cached: ok=%v err=%v", ok, err)
	}
	if cached.Name != "Drink water" {
		t.Errorf("unexpected cached habit: %+v", cached)
	}
}

func TestCreateHabitValidationFailsBeforeRemote(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	eng, _ := newTestEngine(t, repo)

	result := eng.CreateHabit(ctx, &habit.Habit{Name: "", Type: habit.TypeGood, Difficulty: 2, Goal: 1})
	if result.Success {
		t.Fatal("expected validation failure")
	}
	var vErr *remote.ValidationError
	if !errors.As(result.Err, &vErr) {
		t.Errorf("expected ValidationError, got %v", result.Err)
	}
	if len(repo.rows) != 0 {
		t.Error("validation failure must not reach the backend")
	}
}

func TestCreateHabitRemoteFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.failAppend = &remote.RemoteError{Status: 500, Body: "boom"}
	eng, habits := newTestEngine(t, repo)

	result := eng.CreateHabit(ctx, &habit.Habit{Name: "X", Type: habit.TypeGood, Difficulty: 1, Goal: 1})
	if result.Success {
		t.Fatal("expected failure")
	}

	all, err := habits.AllHabits(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("failed create must not touch the cache, got %d habits", len(all))
	}
}

func TestAuthExpiredMapsToNeedsAuth(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.failAppend = remote.ErrAuthExpired
	eng, _ := newTestEngine(t, repo)

	result := eng.CreateHabit(ctx, &habit.Habit{Name: "X", Type: habit.TypeGood, Difficulty: 1, Goal: 1})
	if result.Success || !result.NeedsAuth {
		t.Fatalf("expected needsAuth failure, got %+v", result)
	}
}

func TestArchiveHabitFlipsFlagInPlace(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.seed(goodHabit("a", "A"), goodHabit("b", "B"))
	eng, habits := newTestEngine(t, repo)

	result := eng.ArchiveHabit(ctx, "a", true)
	if !result.Success {
		t.Fatalf("ArchiveHabit failed: %v", result.Err)
	}

	if len(repo.rows) != 2 {
		t.Fatal("archive must not delete the row")
	}
	if repo.rows[0][habit.ColIsArchived] != "true" {
		t.Error("archived flag not written to sheet")
	}
	cached, ok, _ := habits.Habit(ctx, "a")
	if !ok || !cached.IsArchived {
		t.Error("archived flag not cached")
	}
}

func TestTrackDayWritesRowAndSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.seed(goodHabit("a", "A"))
	eng, habits := newTestEngine(t, repo)

	for day := 13; day <= 15; day++ {
		result := eng.TrackDay(ctx, "a", day, 8)
		if !result.Success {
			t.Fatalf("TrackDay(%d) failed: %v", day, result.Err)
		}
	}

	h, err := habit.UnmarshalRow(repo.rows[0])
	if err != nil {
		t.Fatal(err)
	}
	if h.CurrentStreak != 3 || h.LongestStreak != 3 {
		t.Errorf("streaks = %d/%d, want 3/3", h.CurrentStreak, h.LongestStreak)
	}
	if !h.Tracking[14].Completed {
		t.Error("day 14 should be completed at goal")
	}

	snapshot, ok, err := habits.Tracking(ctx, "a", 2026, time.August)
	if err != nil || !ok {
		t.Fatalf("tracking snapshot missing: ok=%v err=%v", ok, err)
	}
	if len(snapshot) != 3 {
		t.Errorf("expected 3 snapshot days, got %d", len(snapshot))
	}

	// A miss breaks the run.
	if result := eng.TrackDay(ctx, "a", 16, 2); !result.Success {
		t.Fatal(result.Err)
	}
	h, _ = habit.UnmarshalRow(repo.rows[0])
	if h.CurrentStreak != 0 || h.LongestStreak != 3 {
		t.Errorf("after miss, streaks = %d/%d, want 0/3", h.CurrentStreak, h.LongestStreak)
	}
}

func TestBatchDeleteSurvivesIndexShifts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.seed(goodHabit("a", "A"), goodHabit("b", "B"), goodHabit("c", "C"))
	eng, habits := newTestEngine(t, repo)

	if err := habits.StoreHabits(ctx, []*habit.Habit{
		goodHabit("a", "A"), goodHabit("b", "B"), goodHabit("c", "C"),
	}, cache.DefaultHabitTTL); err != nil {
		t.Fatal(err)
	}

	result := eng.BatchDeleteHabits(ctx, []string{"a", "c", "ghost"})
	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %d/%d", result.Succeeded, result.Failed)
	}
	if result.Items[2].ID != "ghost" || result.Items[2].Success {
		t.Errorf("missing id must fail without aborting the batch: %+v", result.Items)
	}

	if len(repo.rows) != 1 || repo.rows[0][habit.ColID] != "b" {
		t.Errorf("expected only row b to remain, got %v", repo.rows)
	}
	remaining, _ := habits.AllHabits(ctx)
	if len(remaining) != 1 || remaining[0].ID != "b" {
		t.Errorf("cache out of step with sheet: %+v", remaining)
	}
}

func TestUpdateHabitReResolvesIndexAfterDelete(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.seed(goodHabit("a", "A"), goodHabit("b", "B"), goodHabit("c", "C"))
	eng, _ := newTestEngine(t, repo)

	if result := eng.DeleteHabit(ctx, "b"); !result.Success {
		t.Fatal(result.Err)
	}

	updated := goodHabit("c", "C renamed")
	if result := eng.UpdateHabit(ctx, updated); !result.Success {
		t.Fatal(result.Err)
	}

	if repo.rows[1][habit.ColName] != "C renamed" {
		t.Errorf("update targeted stale index: %v", repo.rows)
	}
}

package export

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/kv"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func newTestHabits(t *testing.T) *cache.Habits {
	t.Helper()
	logger := log.New(testWriter{t}, "[test] ", 0)
	return cache.NewHabits(cache.New(kv.NewMemory(), "1.0.0", logger))
}

func sample(id, name string) *habit.Habit {
	return &habit.Habit{
		ID: id, Name: name, Type: habit.TypeGood, Difficulty: 2, Goal: 5,
		Tracking: map[int]habit.DailyTracking{
			3: {Date: "2026-08-03", Value: 5, Completed: true},
		},
		CreatedDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newTestHabits(t)
	if err := source.StoreHabits(ctx, []*habit.Habit{
		sample("b", "B"), sample("a", "A"),
	}, cache.DefaultHabitTTL); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "backup", "habits.jsonl")
	result, err := ToJSONL(ctx, source, path)
	if err != nil {
		t.Fatalf("ToJSONL failed: %v", err)
	}
	if result.HabitsProcessed != 2 {
		t.Errorf("exported %d habits, want 2", result.HabitsProcessed)
	}

	dest := newTestHabits(t)
	restored, err := FromJSONL(ctx, dest, path, cache.DefaultHabitTTL)
	if err != nil {
		t.Fatalf("FromJSONL failed: %v", err)
	}
	if restored.HabitsProcessed != 2 || restored.LinesSkipped != 0 {
		t.Errorf("restored %d habits (%d skipped), want 2 (0)", restored.HabitsProcessed, restored.LinesSkipped)
	}

	h, ok, err := dest.Habit(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("habit a missing after import: ok=%v err=%v", ok, err)
	}
	if h.Name != "A" || !h.Tracking[3].Completed {
		t.Errorf("habit a lost fields across round trip: %+v", h)
	}
}

func TestExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	source := newTestHabits(t)
	if err := source.StoreHabits(ctx, []*habit.Habit{
		sample("c", "C"), sample("a", "A"), sample("b", "B"),
	}, cache.DefaultHabitTTL); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	first := filepath.Join(dir, "one.jsonl")
	second := filepath.Join(dir, "two.jsonl")
	if _, err := ToJSONL(ctx, source, first); err != nil {
		t.Fatal(err)
	}
	if _, err := ToJSONL(ctx, source, second); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("two exports of the same state should be byte-identical")
	}
}

func TestImportSkipsInvalidLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "habits.jsonl")

	content := `{"id":"a","name":"A","habitType":"good","difficultyLevel":2,"goal":5}
{"id":"","name":"no id","habitType":"good","difficultyLevel":2,"goal":5}
{"id":"bad","name":"","habitType":"good","difficultyLevel":2,"goal":5}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	dest := newTestHabits(t)
	result, err := FromJSONL(ctx, dest, path, cache.DefaultHabitTTL)
	if err != nil {
		t.Fatalf("FromJSONL failed: %v", err)
	}
	if result.HabitsProcessed != 1 || result.LinesSkipped != 2 {
		t.Errorf("got %d restored / %d skipped, want 1 / 2", result.HabitsProcessed, result.LinesSkipped)
	}

	if _, ok, _ := dest.Habit(ctx, "a"); !ok {
		t.Error("valid line should have been restored")
	}
}

func TestImportFailsOnMalformedJSON(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "habits.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := FromJSONL(ctx, newTestHabits(t), path, cache.DefaultHabitTTL); err == nil {
		t.Error("malformed JSON should fail the import")
	}
}

package habit

import (
	"testing"
	"time"
)

func TestHeaderShape(t *testing.T) {
	header := Header()
	if len(header) != ColumnCount {
		t.Fatalf("header width = %d, want %d", len(header), ColumnCount)
	}
	if header[ColID] != "id" || header[ColName] != "name" {
		t.Errorf("unexpected leading columns: %v", header[:2])
	}
	if header[ColDayFirst] != "day1" || header[ColDayLast] != "day31" {
		t.Errorf("day columns misplaced: %q..%q", header[ColDayFirst], header[ColDayLast])
	}
	if header[ColEmoji] != "emoji" {
		t.Errorf("last column = %q, want emoji", header[ColEmoji])
	}
}

func TestRowRoundTrip(t *testing.T) {
	h := &Habit{
		ID:             "h1",
		Name:           "Drink water",
		Description:    "8 glasses",
		Type:           TypeGood,
		Difficulty:     2,
		Goal:           8,
		CurrentStreak:  3,
		LongestStreak:  10,
		Category:       "health",
		Tags:           []string{"morning", "hydration"},
		ColorCode:      "#1e90ff",
		Emoji:          "💧",
		Unit:           "glasses",
		StartTime:      "08:00",
		Subtasks:       []string{"fill bottle"},
		IsQuantifiable: true,
		CreatedDate:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Tracking: map[int]DailyTracking{
			5: {Date: "2026-08-05", Value: 8, Completed: true, Timestamp: time.Date(2026, 8, 5, 21, 0, 0, 0, time.UTC)},
		},
	}

	row := MarshalRow(h)
	if len(row) != ColumnCount {
		t.Fatalf("row width = %d, want %d", len(row), ColumnCount)
	}
	if row[ColName] != "Drink water" || row[ColGoal] != "8" {
		t.Errorf("unexpected cells: name=%q goal=%q", row[ColName], row[ColGoal])
	}

	got, err := UnmarshalRow(row)
	if err != nil {
		t.Fatalf("UnmarshalRow failed: %v", err)
	}
	if !RowEqual(h, got) {
		t.Errorf("round trip changed the habit:\n in: %v\nout: %v", MarshalRow(h), MarshalRow(got))
	}
	if got.Tracking[5].Value != 8 || !got.Tracking[5].Completed {
		t.Errorf("tracking cell lost: %+v", got.Tracking[5])
	}
}

func TestUnmarshalShortRowIsPadded(t *testing.T) {
	// Range reads drop trailing empty columns.
	row := []string{"h2", "Stretch", "", string(TypeGood), "1", "1", "0", "0"}

	h, err := UnmarshalRow(row)
	if err != nil {
		t.Fatalf("UnmarshalRow failed: %v", err)
	}
	if h.ID != "h2" || h.Name != "Stretch" {
		t.Errorf("unexpected habit: %+v", h)
	}
	if h.IsArchived || len(h.Tracking) != 0 {
		t.Errorf("padded cells must decode to zero values: %+v", h)
	}
}

func TestUnmarshalRowRequiresID(t *testing.T) {
	if _, err := UnmarshalRow([]string{"", "No id"}); err == nil {
		t.Error("expected error for row without id")
	}
}

func TestUnmarshalLegacyNumericDayCell(t *testing.T) {
	row := MarshalRow(&Habit{ID: "h3", Name: "Run", Type: TypeGood, Difficulty: 1, Goal: 1})
	row[ColDayFirst+4] = "3" // bare number in day5

	h, err := UnmarshalRow(row)
	if err != nil {
		t.Fatalf("UnmarshalRow failed: %v", err)
	}
	tr, ok := h.Tracking[5]
	if !ok {
		t.Fatal("legacy numeric cell must decode to a tracking entry")
	}
	if tr.Value != 3 || !tr.Completed {
		t.Errorf("unexpected tracking: %+v", tr)
	}
}

func TestRowEqualDetectsChanges(t *testing.T) {
	a := &Habit{ID: "h", Name: "A", Type: TypeGood, Difficulty: 1, Goal: 1}
	b := a.Clone()
	if !RowEqual(a, b) {
		t.Fatal("clones must be row-equal")
	}
	b.CurrentStreak = 5
	if RowEqual(a, b) {
		t.Error("streak change must be visible to RowEqual")
	}
}

// Package habit provides the data structures for habit records and their
// fixed-column spreadsheet row representation.
package habit

import (
	"fmt"
	"time"
)

// Type discriminates between habit kinds. A good habit carries a daily goal
// to reach; a bad habit carries a daily limit to stay under. Exactly one of
// Goal/Limit is meaningful, selected by Type.
type Type string

const (
	// TypeGood is a habit the user wants to build (has a Goal).
	TypeGood Type = "good"
	// TypeBad is a habit the user wants to break (has a Limit).
	TypeBad Type = "bad"
)

// Valid reports whether the type is a known discriminant.
func (t Type) Valid() bool {
	switch t {
	case TypeGood, TypeBad:
		return true
	default:
		return false
	}
}

// DailyTracking records one day's progress within a month.
type DailyTracking struct {
	Date      string    `json:"date"` // YYYY-MM-DD
	Value     float64   `json:"value"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

// Habit is one habit record. ID is the only durable identifier; the row
// index in the remote sheet shifts on deletes and must never be stored.
type Habit struct {
	// ===== Identity =====
	ID string `json:"id"`

	// ===== Content =====
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"habitType"`
	Difficulty  int    `json:"difficultyLevel"` // 1-5
	Goal        int    `json:"goal,omitempty"`  // meaningful iff Type == good
	Limit       int    `json:"limit,omitempty"` // meaningful iff Type == bad

	// ===== Streaks =====
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`

	// ===== Monthly tracking, keyed by day-of-month (1..31) =====
	// Unset days are absent, never null-padded.
	Tracking map[int]DailyTracking `json:"tracking,omitempty"`

	// ===== Classification =====
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	// ===== Presentation metadata (carried through, not interpreted) =====
	ColorCode string   `json:"colorCode,omitempty"`
	Emoji     string   `json:"emoji,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	StartTime string   `json:"startTime,omitempty"`
	Subtasks  []string `json:"subtasks,omitempty"`

	// ===== Flags =====
	IsArchived     bool `json:"isArchived"`
	IsQuantifiable bool `json:"isQuantifiable"`

	CreatedDate time.Time `json:"createdDate"`
}

// Target returns the meaningful daily target for the habit's type.
func (h *Habit) Target() int {
	switch h.Type {
	case TypeBad:
		return h.Limit
	default:
		return h.Goal
	}
}

// Validate checks the habit's field values. It enforces the form rules the
// UI layer relies on: required name, bounded lengths, a known type, and a
// sensible target for that type.
func (h *Habit) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(h.Name) > 100 {
		return fmt.Errorf("name must be 100 characters or less (got %d)", len(h.Name))
	}
	if len(h.Description) > 500 {
		return fmt.Errorf("description must be 500 characters or less (got %d)", len(h.Description))
	}
	if !h.Type.Valid() {
		return fmt.Errorf("habit type must be %q or %q (got %q)", TypeGood, TypeBad, h.Type)
	}
	if h.Difficulty < 1 || h.Difficulty > 5 {
		return fmt.Errorf("difficulty must be between 1 and 5 (got %d)", h.Difficulty)
	}
	switch h.Type {
	case TypeGood:
		if h.Goal < 1 {
			return fmt.Errorf("goal must be at least 1 for a good habit (got %d)", h.Goal)
		}
	case TypeBad:
		if h.Limit < 0 {
			return fmt.Errorf("limit must not be negative for a bad habit (got %d)", h.Limit)
		}
	}
	return nil
}

// Track records progress for the given day-of-month. Completion is derived
// from the habit type: a good habit completes at or above its goal, a bad
// habit completes at or under its limit.
func (h *Habit) Track(day int, value float64, now time.Time) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("day must be between 1 and 31 (got %d)", day)
	}
	if h.Tracking == nil {
		h.Tracking = make(map[int]DailyTracking)
	}

	completed := false
	switch h.Type {
	case TypeGood:
		completed = value >= float64(h.Goal)
	case TypeBad:
		completed = value <= float64(h.Limit)
	}

	h.Tracking[day] = DailyTracking{
		Date:      time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location()).Format("2006-01-02"),
		Value:     value,
		Completed: completed,
		Timestamp: now,
	}
	return nil
}

// Clone returns a deep copy. Reconcile hands habits to the cache and to
// dashboard listeners, so shared mutable maps and slices are not acceptable.
func (h *Habit) Clone() *Habit {
	out := *h
	if h.Tracking != nil {
		out.Tracking = make(map[int]DailyTracking, len(h.Tracking))
		for day, t := range h.Tracking {
			out.Tracking[day] = t
		}
	}
	if h.Tags != nil {
		out.Tags = append([]string(nil), h.Tags...)
	}
	if h.Subtasks != nil {
		out.Subtasks = append([]string(nil), h.Subtasks...)
	}
	return &out
}

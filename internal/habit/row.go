package habit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column positions in the remote sheet. The header is fixed: one habit is
// exactly one row, and the row index is NOT the habit id — id lives in
// column 0 and is the only identifier that survives row-index shifts.
const (
	ColID = iota
	ColName
	ColDescription
	ColHabitType
	ColDifficulty
	ColGoal
	ColLimit
	ColCurrentStreak
	ColDayFirst // day1 .. day31 occupy [ColDayFirst, ColDayLast]
)

const (
	ColDayLast        = ColDayFirst + 30
	ColCreatedDate    = ColDayLast + 1
	ColColorCode      = ColCreatedDate + 1
	ColLongestStreak  = ColColorCode + 1
	ColCategory       = ColLongestStreak + 1
	ColTags           = ColCategory + 1
	ColIsArchived     = ColTags + 1
	ColIsQuantifiable = ColIsArchived + 1
	ColUnit           = ColIsQuantifiable + 1
	ColStartTime      = ColUnit + 1
	ColSubtasks       = ColStartTime + 1
	ColEmoji          = ColSubtasks + 1

	// ColumnCount is the full width of a habit row.
	ColumnCount = ColEmoji + 1
)

// Header returns the fixed column header row.
func Header() []string {
	row := make([]string, ColumnCount)
	row[ColID] = "id"
	row[ColName] = "name"
	row[ColDescription] = "description"
	row[ColHabitType] = "habitType"
	row[ColDifficulty] = "difficultyLevel"
	row[ColGoal] = "goal"
	row[ColLimit] = "limit"
	row[ColCurrentStreak] = "currentStreak"
	for day := 1; day <= 31; day++ {
		row[ColDayFirst+day-1] = fmt.Sprintf("day%d", day)
	}
	row[ColCreatedDate] = "createdDate"
	row[ColColorCode] = "colorCode"
	row[ColLongestStreak] = "longestStreak"
	row[ColCategory] = "category"
	row[ColTags] = "tags"
	row[ColIsArchived] = "isArchived"
	row[ColIsQuantifiable] = "isQuantifiable"
	row[ColUnit] = "unit"
	row[ColStartTime] = "startTime"
	row[ColSubtasks] = "subtasks"
	row[ColEmoji] = "emoji"
	return row
}

// MarshalRow encodes a habit as one full-width sheet row. Unset tracking
// days produce empty cells.
func MarshalRow(h *Habit) []string {
	row := make([]string, ColumnCount)
	row[ColID] = h.ID
	row[ColName] = h.Name
	row[ColDescription] = h.Description
	row[ColHabitType] = string(h.Type)
	row[ColDifficulty] = strconv.Itoa(h.Difficulty)
	row[ColGoal] = strconv.Itoa(h.Goal)
	row[ColLimit] = strconv.Itoa(h.Limit)
	row[ColCurrentStreak] = strconv.Itoa(h.CurrentStreak)
	for day := 1; day <= 31; day++ {
		if t, ok := h.Tracking[day]; ok {
			cell, err := json.Marshal(t)
			if err == nil {
				row[ColDayFirst+day-1] = string(cell)
			}
		}
	}
	if !h.CreatedDate.IsZero() {
		row[ColCreatedDate] = h.CreatedDate.Format(time.RFC3339)
	}
	row[ColColorCode] = h.ColorCode
	row[ColLongestStreak] = strconv.Itoa(h.LongestStreak)
	row[ColCategory] = h.Category
	row[ColTags] = marshalList(h.Tags)
	row[ColIsArchived] = strconv.FormatBool(h.IsArchived)
	row[ColIsQuantifiable] = strconv.FormatBool(h.IsQuantifiable)
	row[ColUnit] = h.Unit
	row[ColStartTime] = h.StartTime
	row[ColSubtasks] = marshalList(h.Subtasks)
	row[ColEmoji] = h.Emoji
	return row
}

// UnmarshalRow decodes one sheet row into a habit. Rows shorter than the
// full width are padded with empty cells first, because range reads drop
// trailing empty columns. The only hard requirement is a non-empty id.
func UnmarshalRow(row []string) (*Habit, error) {
	if len(row) < ColumnCount {
		padded := make([]string, ColumnCount)
		copy(padded, row)
		row = padded
	}
	if row[ColID] == "" {
		return nil, fmt.Errorf("row has no habit id")
	}

	h := &Habit{
		ID:             row[ColID],
		Name:           row[ColName],
		Description:    row[ColDescription],
		Type:           Type(row[ColHabitType]),
		Difficulty:     parseInt(row[ColDifficulty]),
		Goal:           parseInt(row[ColGoal]),
		Limit:          parseInt(row[ColLimit]),
		CurrentStreak:  parseInt(row[ColCurrentStreak]),
		LongestStreak:  parseInt(row[ColLongestStreak]),
		ColorCode:      row[ColColorCode],
		Category:       row[ColCategory],
		Tags:           unmarshalList(row[ColTags]),
		IsArchived:     row[ColIsArchived] == "true",
		IsQuantifiable: row[ColIsQuantifiable] == "true",
		Unit:           row[ColUnit],
		StartTime:      row[ColStartTime],
		Subtasks:       unmarshalList(row[ColSubtasks]),
		Emoji:          row[ColEmoji],
	}

	if raw := row[ColCreatedDate]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			h.CreatedDate = t
		}
	}

	for day := 1; day <= 31; day++ {
		cell := row[ColDayFirst+day-1]
		if cell == "" {
			continue
		}
		if h.Tracking == nil {
			h.Tracking = make(map[int]DailyTracking)
		}
		var t DailyTracking
		if err := json.Unmarshal([]byte(cell), &t); err != nil {
			// Legacy cells hold a bare number.
			v, perr := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if perr != nil {
				continue
			}
			t = DailyTracking{Value: v, Completed: v > 0}
		}
		h.Tracking[day] = t
	}

	return h, nil
}

// RowEqual reports whether two habits encode to identical rows. Reconcile
// uses this as its change detector: the row is the remote's authoritative
// shape, so anything invisible to the row does not count as a change.
func RowEqual(a, b *Habit) bool {
	ra, rb := MarshalRow(a), MarshalRow(b)
	for i := range ra {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

func marshalList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalList(cell string) []string {
	if cell == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(cell), &items); err != nil {
		// Tolerate comma-separated legacy cells.
		for _, part := range strings.Split(cell, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	return items
}

func parseInt(cell string) int {
	n, err := strconv.Atoi(strings.TrimSpace(cell))
	if err != nil {
		return 0
	}
	return n
}

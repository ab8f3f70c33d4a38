package engine

import "github.com/KhanhRomVN/habitsync/internal/habit"

// OpResult is what every single-habit operation returns. Failures come
// back as a value to branch on, never a panic or a bare error: the UI
// layer and the scheduler both need NeedsAuth without a type switch.
type OpResult struct {
	Success   bool         `json:"success"`
	Habit     *habit.Habit `json:"data,omitempty"`
	Err       error        `json:"-"`
	NeedsAuth bool         `json:"needsAuth,omitempty"`
}

// BatchItem is the per-id outcome of a batch operation.
type BatchItem struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Err     error  `json:"-"`
}

// BatchResult accumulates per-id outcomes. Batches never abort on first
// error; a failed item is recorded and the batch moves on.
type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	NeedsAuth bool        `json:"needsAuth,omitempty"`
}

// Changes counts what one reconcile pass did to the cache.
type Changes struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Total returns the overall number of applied changes.
func (c Changes) Total() int {
	return c.Added + c.Updated + c.Deleted
}

// SyncResult is the outcome of a reconcile pass. On failure the cache is
// guaranteed untouched.
type SyncResult struct {
	Success   bool    `json:"success"`
	Changes   Changes `json:"changes"`
	Err       error   `json:"-"`
	NeedsAuth bool    `json:"needsAuth,omitempty"`
}

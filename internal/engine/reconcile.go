package engine

import (
	"context"

	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/remote"
)

// Reconcile pulls the authoritative remote state and makes the cache
// match it. Remote wins for every id present on both sides; there is no
// three-way merge, so a local edit that never reached the sheet is
// overwritten. A failed fetch leaves the cache untouched.
//
// Without forceRefresh the pass is a no-op while valid cached data
// exists; forceRefresh always fetches.
func (e *Engine) Reconcile(ctx context.Context, forceRefresh bool) SyncResult {
	if !forceRefresh {
		if has, err := e.habits.HasHabits(ctx); err == nil && has {
			return e.finishSync(SyncResult{Success: true})
		}
	}

	if err := e.ensureBound(ctx); err != nil {
		return e.failSync(err)
	}

	rows, err := e.repo.FetchRows(ctx)
	if err != nil {
		return e.failSync(err)
	}

	remoteHabits := make([]*habit.Habit, 0, len(rows))
	remoteByID := make(map[string]*habit.Habit, len(rows))
	for i, row := range rows {
		h, err := habit.UnmarshalRow(row)
		if err != nil {
			e.logger.Printf("Skipping undecodable row %d: %v", i, err)
			continue
		}
		remoteHabits = append(remoteHabits, h)
		remoteByID[h.ID] = h
	}

	cached, err := e.habits.AllHabits(ctx)
	if err != nil {
		return e.failSync(err)
	}
	cachedByID := make(map[string]*habit.Habit, len(cached))
	for _, h := range cached {
		cachedByID[h.ID] = h
	}

	var changes Changes
	var removed []string
	for _, h := range remoteHabits {
		prev, ok := cachedByID[h.ID]
		switch {
		case !ok:
			changes.Added++
		case !habit.RowEqual(prev, h):
			changes.Updated++
		}
	}
	for _, h := range cached {
		if _, ok := remoteByID[h.ID]; !ok {
			changes.Deleted++
			removed = append(removed, h.ID)
		}
	}

	// Apply: drop vanished ids first, then write the full remote set as
	// one batch so the index and every entry land together.
	if len(removed) > 0 {
		if err := e.habits.RemoveHabits(ctx, removed); err != nil {
			return e.failSync(err)
		}
	}
	if err := e.habits.StoreHabits(ctx, remoteHabits, e.habitTTL); err != nil {
		return e.failSync(err)
	}

	e.logger.Printf("Reconcile complete: %d added, %d updated, %d deleted (%d remote rows)",
		changes.Added, changes.Updated, changes.Deleted, len(remoteHabits))
	return e.finishSync(SyncResult{Success: true, Changes: changes})
}

func (e *Engine) failSync(err error) SyncResult {
	e.logger.Printf("Reconcile failed: %v", err)
	return e.finishSync(SyncResult{Err: err, NeedsAuth: remote.NeedsAuth(err)})
}

func (e *Engine) finishSync(result SyncResult) SyncResult {
	if e.events != nil {
		e.events.SyncCompleted(result)
	}
	return result
}

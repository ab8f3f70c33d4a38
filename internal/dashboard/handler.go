// Package dashboard provides event handling and message formatting for the dashboard.
package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/engine"
	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/scheduler"
)

// Handler bridges engine and scheduler events to the WebSocket server.
// It implements engine.EventSink and is wired into scheduler.Config.OnStatus.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// HabitChanged implements engine.EventSink.
func (h *Handler) HabitChanged(action string, hb *habit.Habit) {
	h.logger.Printf("Habit %s: %s (%s)", action, hb.ID, hb.Name)

	h.mu.Lock()
	switch action {
	case "created":
		h.stats.Habits++
	case "deleted":
		if h.stats.Habits > 0 {
			h.stats.Habits--
		}
	case "archived":
		if hb.IsArchived {
			h.stats.Archived++
		} else if h.stats.Archived > 0 {
			h.stats.Archived--
		}
	}
	h.mu.Unlock()

	data := HabitUpdateData{
		HabitID:       hb.ID,
		Action:        action,
		Name:          hb.Name,
		HabitType:     string(hb.Type),
		CurrentStreak: hb.CurrentStreak,
		IsArchived:    hb.IsArchived,
	}
	h.send(MessageTypeHabitUpdate, data)
	h.broadcastStats()
}

// SyncCompleted implements engine.EventSink.
func (h *Handler) SyncCompleted(result engine.SyncResult) {
	data := SyncCompleteData{
		Success:   result.Success,
		Added:     result.Changes.Added,
		Updated:   result.Changes.Updated,
		Deleted:   result.Changes.Deleted,
		NeedsAuth: result.NeedsAuth,
	}
	if result.Err != nil {
		data.Error = result.Err.Error()
	}
	h.send(MessageTypeSyncComplete, data)
}

// SchedulerStatus forwards a scheduler snapshot to connected clients.
func (h *Handler) SchedulerStatus(status scheduler.Status) {
	data := SchedulerStateData{
		State:               status.State.String(),
		Tier:                status.Tier.String(),
		Visible:             status.Visible,
		Online:              status.Online,
		AwaitingAuth:        status.AwaitingAuth,
		ConsecutiveFailures: status.ConsecutiveFailures,
	}
	h.send(MessageTypeSchedulerState, data)
}

// SetStats replaces the tracked statistics, e.g. after a reconcile
// rebuilt the cache, and broadcasts them.
func (h *Handler) SetStats(stats StatsData) {
	h.mu.Lock()
	h.stats = stats
	h.mu.Unlock()
	h.broadcastStats()
}

func (h *Handler) broadcastStats() {
	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()
	h.send(MessageTypeStats, stats)
}

func (h *Handler) send(msgType MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", msgType, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// Package scheduler decides when the sync engine runs.
//
// The scheduler:
// 1. Ticks on an adaptive interval (active, background, idle tiers)
// 2. Runs a check-then-act pass against the engine on each tick
// 3. Reacts to visibility, focus and connectivity transitions
// 4. Backs off to the idle tier after repeated failures
package scheduler

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/auth"
	"github.com/KhanhRomVN/habitsync/internal/engine"
)

// Tier selects the tick interval.
type Tier int

const (
	// TierActive is the short interval used while the app is visible.
	TierActive Tier = iota
	// TierBackground is the longer interval used while hidden.
	TierBackground
	// TierIdle is the longest interval, entered after repeated failures.
	TierIdle
)

// String returns a human-readable representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierActive:
		return "active"
	case TierBackground:
		return "background"
	case TierIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// State is the scheduler's lifecycle state.
type State int

const (
	// StateStopped means the scheduler is not running.
	StateStopped State = iota
	// StateScheduled means the scheduler is waiting for the next tick.
	StateScheduled
	// StateRunning means a tick is in flight.
	StateRunning
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// CheckResult is recomputed fresh on every tick and drives the branch
// logic. It is never persisted.
type CheckResult struct {
	HasCache       bool
	NeedsFullSetup bool
	NeedsAuth      bool
	AuthValid      bool
}

// SyncEngine is the subset of the engine the scheduler drives.
type SyncEngine interface {
	Reconcile(ctx context.Context, forceRefresh bool) engine.SyncResult
	HasCache(ctx context.Context) (bool, error)
	Healthy(ctx context.Context) bool
	Repair(ctx context.Context) error
}

// Status is a snapshot of the scheduler for diagnostics and the
// dashboard stream.
type Status struct {
	State               State     `json:"state"`
	Tier                Tier      `json:"tier"`
	Visible             bool      `json:"visible"`
	Online              bool      `json:"online"`
	AwaitingAuth        bool      `json:"awaitingAuth"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastAttempt         time.Time `json:"lastAttempt"`
}

// Config holds configuration for the scheduler.
type Config struct {
	// ActiveInterval is the tick interval while visible.
	ActiveInterval time.Duration

	// BackgroundInterval is the tick interval while hidden.
	BackgroundInterval time.Duration

	// IdleInterval is the tick interval after the failure breaker trips.
	IdleInterval time.Duration

	// MinSyncGap throttles sync attempts independently of the timer, so
	// a trigger storm collapses into one attempt.
	MinSyncGap time.Duration

	// FailureThreshold is how many consecutive failures are tolerated
	// before escalating to the idle tier.
	FailureThreshold int

	// OnStatus receives a snapshot after every state change (optional).
	OnStatus func(Status)

	// Logger for scheduler activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ActiveInterval:     5 * time.Minute,
		BackgroundInterval: 30 * time.Minute,
		IdleInterval:       2 * time.Hour,
		MinSyncGap:         30 * time.Second,
		FailureThreshold:   2,
		Logger:             log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
}

// Scheduler runs the background check-then-act loop.
type Scheduler struct {
	engine SyncEngine
	tokens auth.TokenProvider
	config *Config

	mu           sync.Mutex
	running      bool
	state        State
	visible      bool
	online       bool
	awaitingAuth bool
	failures     int
	lastAttempt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	kick   chan struct{}

	now func() time.Time
}

// New creates a scheduler over the given engine and token provider.
func New(eng SyncEngine, tokens auth.TokenProvider, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 2
	}

	return &Scheduler{
		engine:  eng,
		tokens:  tokens,
		config:  config,
		visible: true,
		online:  true,
		kick:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Start launches the tick loop. Starting an already-running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.state = StateScheduled
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.config.Logger.Println("Starting scheduler")
	s.notify()

	s.wg.Add(1)
	go s.run()
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
// Stopping an inactive scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.config.Logger.Println("Stopping scheduler")
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.notify()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// TriggerSync requests an out-of-cycle tick. The minimum-gap guard
// still applies, so rapid triggers collapse into one attempt.
func (s *Scheduler) TriggerSync() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SetVisibility records a visibility transition. Becoming visible
// switches to the active tier and requests a tick.
func (s *Scheduler) SetVisibility(visible bool) {
	s.mu.Lock()
	wasVisible := s.visible
	s.visible = visible
	s.mu.Unlock()
	s.notify()

	if visible && !wasVisible {
		s.TriggerSync()
	}
}

// OnFocus records a window-focus event. A focus arriving after a long
// gap since the last attempt requests a tick; focus during normal
// cadence is ignored.
func (s *Scheduler) OnFocus() {
	s.mu.Lock()
	stale := s.now().Sub(s.lastAttempt) > s.config.BackgroundInterval
	s.mu.Unlock()

	if stale {
		s.TriggerSync()
	}
}

// SetOnline records a connectivity transition. Going offline pauses
// ticking rather than letting calls fail repeatedly; coming back online
// resumes and requests a tick.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()
	s.notify()

	if online && !wasOnline {
		s.TriggerSync()
	}
}

// OnTokenRefreshed clears the awaiting-auth halt after an external
// re-authentication and requests a tick.
func (s *Scheduler) OnTokenRefreshed() {
	s.mu.Lock()
	s.awaitingAuth = false
	s.failures = 0
	s.mu.Unlock()
	s.notify()

	s.TriggerSync()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			s.tick(s.ctx)
		case <-s.kick:
			s.tick(s.ctx)
		}
		timer.Reset(s.interval())
	}
}

// tick runs one guarded check-then-act pass.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if !s.online || s.awaitingAuth {
		s.mu.Unlock()
		return
	}
	if now.Sub(s.lastAttempt) < s.config.MinSyncGap {
		s.mu.Unlock()
		return
	}
	s.lastAttempt = now
	s.state = StateRunning
	s.mu.Unlock()
	s.notify()

	s.act(ctx, s.check(ctx))

	s.mu.Lock()
	if s.running {
		s.state = StateScheduled
	}
	s.mu.Unlock()
	s.notify()
}

// check recomputes the branch inputs from scratch.
func (s *Scheduler) check(ctx context.Context) CheckResult {
	hasCache, err := s.engine.HasCache(ctx)
	if err != nil {
		s.config.Logger.Printf("Cache check failed: %v", err)
	}
	authValid := s.tokens != nil && s.tokens.HasRequiredScopes()
	healthy := authValid && s.engine.Healthy(ctx)

	return CheckResult{
		HasCache:       hasCache,
		NeedsFullSetup: !hasCache && !healthy,
		NeedsAuth:      !authValid,
		AuthValid:      authValid,
	}
}

// act branches on the check result. Only the unhealthy-with-cache and
// missing-cache branches touch the network.
func (s *Scheduler) act(ctx context.Context, check CheckResult) {
	switch {
	case check.HasCache && !check.NeedsAuth && s.engine.Healthy(ctx):
		// Cheapest path: nothing to do.
		s.recordSuccess()

	case check.NeedsAuth:
		// Re-auth needs the user; stop hammering until the token changes.
		s.config.Logger.Println("Authentication required; pausing background sync")
		s.haltForAuth()

	case check.HasCache:
		// Cache exists but linkage is broken: repair, then refresh.
		if err := s.engine.Repair(ctx); err != nil {
			s.config.Logger.Printf("Repair failed: %v", err)
			s.recordFailure()
			return
		}
		s.applySync(s.engine.Reconcile(ctx, true))

	case check.NeedsFullSetup:
		// No cache and no linkage: nothing safe to do automatically.
		s.config.Logger.Println("Full setup required; waiting for user action")
		s.recordFailure()

	default:
		// No cache, system healthy: pull everything.
		s.applySync(s.engine.Reconcile(ctx, true))
	}
}

func (s *Scheduler) applySync(result engine.SyncResult) {
	switch {
	case result.NeedsAuth:
		s.haltForAuth()
	case result.Success:
		s.recordSuccess()
	default:
		s.recordFailure()
	}
}

func (s *Scheduler) recordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

func (s *Scheduler) recordFailure() {
	s.mu.Lock()
	s.failures++
	tripped := s.failures > s.config.FailureThreshold
	s.mu.Unlock()
	if tripped {
		s.config.Logger.Printf("Failure breaker tripped; dropping to idle cadence")
	}
}

func (s *Scheduler) haltForAuth() {
	s.mu.Lock()
	s.awaitingAuth = true
	s.mu.Unlock()
}

// interval resolves the current tier to a duration.
func (s *Scheduler) interval() time.Duration {
	switch s.currentTier() {
	case TierIdle:
		return s.config.IdleInterval
	case TierBackground:
		return s.config.BackgroundInterval
	default:
		return s.config.ActiveInterval
	}
}

// currentTier derives the tier from the failure count and visibility.
// The breaker outranks visibility.
func (s *Scheduler) currentTier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tierLocked()
}

func (s *Scheduler) tierLocked() Tier {
	switch {
	case s.failures > s.config.FailureThreshold:
		return TierIdle
	case !s.visible:
		return TierBackground
	default:
		return TierActive
	}
}

func (s *Scheduler) statusLocked() Status {
	return Status{
		State:               s.state,
		Tier:                s.tierLocked(),
		Visible:             s.visible,
		Online:              s.online,
		AwaitingAuth:        s.awaitingAuth,
		ConsecutiveFailures: s.failures,
		LastAttempt:         s.lastAttempt,
	}
}

func (s *Scheduler) notify() {
	if s.config.OnStatus == nil {
		return
	}
	s.mu.Lock()
	status := s.statusLocked()
	s.mu.Unlock()
	s.config.OnStatus(status)
}

package scheduler

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/auth"
	"github.com/KhanhRomVN/habitsync/internal/engine"
	"github.com/KhanhRomVN/habitsync/internal/remote"
)

type fakeSyncEngine struct {
	hasCache   bool
	healthy    bool
	repairErr  error
	syncResult engine.SyncResult

	reconciles int
	repairs    int
}

func (f *fakeSyncEngine) Reconcile(ctx context.Context, forceRefresh bool) engine.SyncResult {
	f.reconciles++
	return f.syncResult
}

func (f *fakeSyncEngine) HasCache(ctx context.Context) (bool, error) { return f.hasCache, nil }

func (f *fakeSyncEngine) Healthy(ctx context.Context) bool { return f.healthy }

func (f *fakeSyncEngine) Repair(ctx context.Context) error {
	f.repairs++
	if f.repairErr != nil {
		return f.repairErr
	}
	f.healthy = true
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestScheduler(t *testing.T, eng *fakeSyncEngine, token string) (*Scheduler, *fakeClock) {
	t.Helper()

	config := DefaultConfig()
	config.Logger = log.New(testWriter{t}, "[scheduler] ", 0)

	s := New(eng, auth.NewStaticProvider(token), config)
	clock := &fakeClock{current: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	s.now = clock.now
	// Ticks only fire explicitly in these tests.
	s.state = StateScheduled
	s.running = true
	return s, clock
}

func TestTickNoOpWhenCachedAndHealthy(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: true, healthy: true}
	s, _ := newTestScheduler(t, eng, "tok")

	s.tick(context.Background())

	if eng.reconciles != 0 || eng.repairs != 0 {
		t.Errorf("healthy cached state must not touch the network: reconciles=%d repairs=%d",
			eng.reconciles, eng.repairs)
	}
	if s.Status().ConsecutiveFailures != 0 {
		t.Error("no-op tick should not count as a failure")
	}
}

func TestTickRefreshesWhenCacheMissing(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: false, healthy: true, syncResult: engine.SyncResult{Success: true}}
	s, _ := newTestScheduler(t, eng, "tok")

	s.tick(context.Background())

	if eng.reconciles != 1 {
		t.Errorf("missing cache should force a refresh, got %d reconciles", eng.reconciles)
	}
	if eng.repairs != 0 {
		t.Error("healthy linkage must not be repaired")
	}
}

func TestTickRepairsBrokenLinkageThenRefreshes(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: true, healthy: false, syncResult: engine.SyncResult{Success: true}}
	s, _ := newTestScheduler(t, eng, "tok")

	s.tick(context.Background())

	if eng.repairs != 1 || eng.reconciles != 1 {
		t.Errorf("expected repair then refresh, got repairs=%d reconciles=%d", eng.repairs, eng.reconciles)
	}
}

func TestTickReportsFullSetupWithoutActing(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: false, healthy: false}
	s, _ := newTestScheduler(t, eng, "tok")

	s.tick(context.Background())

	if eng.reconciles != 0 || eng.repairs != 0 {
		t.Errorf("full-setup-required must take no remote action: reconciles=%d repairs=%d",
			eng.reconciles, eng.repairs)
	}
	if s.Status().ConsecutiveFailures != 1 {
		t.Error("full-setup condition should count against the breaker")
	}
}

func TestMissingTokenHaltsBackgroundSync(t *testing.T) {
	ctx := context.Background()
	eng := &fakeSyncEngine{hasCache: false, healthy: true}
	s, clock := newTestScheduler(t, eng, "")

	s.tick(ctx)
	if eng.reconciles != 0 {
		t.Fatal("no token means no remote attempt")
	}
	if !s.Status().AwaitingAuth {
		t.Fatal("scheduler should be awaiting auth")
	}

	// Subsequent ticks are swallowed until the token changes.
	clock.advance(time.Hour)
	s.tick(ctx)
	if eng.reconciles != 0 {
		t.Error("awaiting-auth scheduler must not keep retrying")
	}

	s.tokens = auth.NewStaticProvider("tok-fresh")
	s.OnTokenRefreshed()
	clock.advance(time.Hour)
	s.tick(ctx)
	if eng.reconciles != 1 {
		t.Errorf("refreshed token should resume syncing, got %d reconciles", eng.reconciles)
	}
}

func TestAuthExpiryDuringSyncHalts(t *testing.T) {
	eng := &fakeSyncEngine{
		hasCache: false, healthy: true,
		syncResult: engine.SyncResult{Err: remote.ErrAuthExpired, NeedsAuth: true},
	}
	s, _ := newTestScheduler(t, eng, "tok-stale")

	s.tick(context.Background())

	if eng.reconciles != 1 {
		t.Fatalf("expected one attempt, got %d", eng.reconciles)
	}
	if !s.Status().AwaitingAuth {
		t.Error("needsAuth sync result should halt the scheduler")
	}
}

// TestTriggerStormCollapses covers the visible-hidden-visible flap: the
// extra triggers land inside the minimum gap and are dropped, not queued.
func TestTriggerStormCollapses(t *testing.T) {
	ctx := context.Background()
	eng := &fakeSyncEngine{hasCache: false, healthy: true, syncResult: engine.SyncResult{Success: true}}
	s, clock := newTestScheduler(t, eng, "tok")

	s.tick(ctx)
	clock.advance(time.Second)
	s.tick(ctx)
	s.tick(ctx)
	if eng.reconciles != 1 {
		t.Errorf("ticks inside the minimum gap must be dropped, got %d attempts", eng.reconciles)
	}

	clock.advance(s.config.MinSyncGap)
	s.tick(ctx)
	if eng.reconciles != 2 {
		t.Errorf("tick after the gap should run, got %d attempts", eng.reconciles)
	}
}

func TestFailureBreakerEscalatesToIdle(t *testing.T) {
	ctx := context.Background()
	eng := &fakeSyncEngine{
		hasCache: false, healthy: true,
		syncResult: engine.SyncResult{Err: &remote.RemoteError{Status: 500, Body: "down"}},
	}
	s, clock := newTestScheduler(t, eng, "tok")

	for i := 0; i < 3; i++ {
		s.tick(ctx)
		clock.advance(s.config.MinSyncGap + time.Second)
	}

	if got := s.currentTier(); got != TierIdle {
		t.Fatalf("after 3 consecutive failures tier = %v, want idle", got)
	}
	if s.interval() != s.config.IdleInterval {
		t.Error("idle tier should select the idle interval")
	}

	eng.syncResult = engine.SyncResult{Success: true}
	s.tick(ctx)
	if got := s.currentTier(); got != TierActive {
		t.Errorf("success should reset the breaker, tier = %v", got)
	}
}

func TestVisibilitySelectsTier(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: true, healthy: true}
	s, _ := newTestScheduler(t, eng, "tok")

	if s.currentTier() != TierActive {
		t.Error("visible scheduler should be in the active tier")
	}
	s.SetVisibility(false)
	if s.currentTier() != TierBackground {
		t.Error("hidden scheduler should be in the background tier")
	}
	s.SetVisibility(true)
	if s.currentTier() != TierActive {
		t.Error("visible again should return to active")
	}
}

func TestOfflineSwallowsTicks(t *testing.T) {
	ctx := context.Background()
	eng := &fakeSyncEngine{hasCache: false, healthy: true, syncResult: engine.SyncResult{Success: true}}
	s, clock := newTestScheduler(t, eng, "tok")

	s.SetOnline(false)
	s.tick(ctx)
	if eng.reconciles != 0 {
		t.Error("offline scheduler must not attempt remote calls")
	}

	s.SetOnline(true)
	clock.advance(time.Minute)
	s.tick(ctx)
	if eng.reconciles != 1 {
		t.Errorf("back online should sync, got %d attempts", eng.reconciles)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: true, healthy: true}
	config := DefaultConfig()
	config.Logger = log.New(testWriter{t}, "[scheduler] ", 0)
	s := New(eng, auth.NewStaticProvider("tok"), config)

	if s.Status().State != StateStopped {
		t.Error("new scheduler should be stopped")
	}

	s.Start()
	s.Start()
	if s.Status().State == StateStopped {
		t.Error("started scheduler should not report stopped")
	}

	s.Stop()
	s.Stop()
	if s.Status().State != StateStopped {
		t.Error("stopped scheduler should report stopped")
	}
}

func TestStatusSnapshot(t *testing.T) {
	eng := &fakeSyncEngine{hasCache: true, healthy: true}
	s, _ := newTestScheduler(t, eng, "tok")

	var seen []Status
	s.config.OnStatus = func(st Status) { seen = append(seen, st) }

	s.tick(context.Background())

	if len(seen) < 2 {
		t.Fatalf("expected running and scheduled snapshots, got %d", len(seen))
	}
	if seen[0].State != StateRunning {
		t.Errorf("first snapshot state = %v, want running", seen[0].State)
	}
	if last := seen[len(seen)-1]; last.State != StateScheduled {
		t.Errorf("final snapshot state = %v, want scheduled", last.State)
	}
}

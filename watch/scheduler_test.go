package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
	"github.com/petal-labs/toolwatch/store"
)

// stubCapturer returns canned fingerprints and counts captures per tool.
type stubCapturer struct {
	mu           sync.Mutex
	fingerprints map[string]fingerprint.Fingerprint
	calls        map[string]int
	err          error
}

func newStubCapturer() *stubCapturer {
	return &stubCapturer{
		fingerprints: make(map[string]fingerprint.Fingerprint),
		calls:        make(map[string]int),
	}
}

func (c *stubCapturer) set(name string, fp fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprints[name] = fp
}

func (c *stubCapturer) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *stubCapturer) Capture(_ context.Context, toolName string, _ ToolDeclaration) (fingerprint.Fingerprint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[toolName]++
	if c.err != nil {
		return fingerprint.Fingerprint{}, c.err
	}
	return c.fingerprints[toolName], nil
}

type schedulerFixture struct {
	scheduler *Scheduler
	capturer  *stubCapturer
	registry  *Registry
	store     *store.SQLiteStore
	clock     *fakeClock
	events    *[]CheckEvent
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSchedulerFixture(t *testing.T, cfg Config) *schedulerFixture {
	t.Helper()

	sqliteStore, err := store.NewSQLiteStore(store.SQLiteConfig{
		DSN: filepath.Join(t.TempDir(), "toolwatch.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	capturer := newStubCapturer()
	registry := NewRegistry(RegistryConfig{})
	events := []CheckEvent{}

	scheduler, err := NewScheduler(SchedulerConfig{
		Registry: registry,
		Capturer: capturer,
		Config:   cfg,
		Store:    sqliteStore,
		Now:      clock.Now,
		OnEvent:  func(e CheckEvent) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	return &schedulerFixture{
		scheduler: scheduler,
		capturer:  capturer,
		registry:  registry,
		store:     sqliteStore,
		clock:     clock,
		events:    &events,
	}
}

func intervalConfig() Config {
	cfg := Config{
		Tools: map[string]ToolDeclaration{
			"t": {Schema: "t.json"},
		},
		CheckIntervalSeconds: 60,
	}
	cfg.AlertOn = mutation.ChangeTypes()
	return cfg
}

func TestSchedulerFirstObservationTrusted(t *testing.T) {
	fx := newSchedulerFixture(t, intervalConfig())
	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))

	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	events := *fx.events
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if !events[0].FirstSeen || events[0].Alert != nil || events[0].Error != nil {
		t.Fatalf("first event = %+v, want first-seen with no alert", events[0])
	}

	// First-seen baselines are persisted.
	stored, found, err := fx.store.Baseline(context.Background(), "t")
	if err != nil || !found {
		t.Fatalf("Baseline() after first pass = found=%v, err=%v", found, err)
	}
	if stored.SchemaHash != "s1" {
		t.Fatalf("stored baseline hash = %q, want %q", stored.SchemaHash, "s1")
	}
}

func TestSchedulerDetectsAndPersistsMutation(t *testing.T) {
	fx := newSchedulerFixture(t, intervalConfig())
	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))

	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	fx.capturer.set("t", registryFingerprint("t", "s2", "r1"))
	fx.clock.Advance(61 * time.Second)

	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	events := *fx.events
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	alert := events[1].Alert
	if alert == nil {
		t.Fatal("second event carries no alert")
	}
	if alert.ChangeType != mutation.ChangeSchema || alert.Severity != mutation.SeverityMedium {
		t.Fatalf("alert = %q/%q, want schema_change/medium", alert.ChangeType, alert.Severity)
	}

	alerts, err := fx.store.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len(stored alerts) = %d, want 1", len(alerts))
	}

	// The persisted baseline is not advanced by a mutated observation.
	stored, _, err := fx.store.Baseline(context.Background(), "t")
	if err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}
	if stored.SchemaHash != "s1" {
		t.Fatalf("stored baseline hash = %q after mutation, want original %q", stored.SchemaHash, "s1")
	}
}

func TestSchedulerSuppressesFilteredChangeTypes(t *testing.T) {
	cfg := intervalConfig()
	cfg.AlertOn = []mutation.ChangeType{mutation.ChangeResponse}
	fx := newSchedulerFixture(t, cfg)

	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))
	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	fx.capturer.set("t", registryFingerprint("t", "s2", "r1"))
	fx.clock.Advance(61 * time.Second)
	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	events := *fx.events
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[1].Alert == nil || !events[1].Suppressed {
		t.Fatalf("second event = %+v, want suppressed alert", events[1])
	}

	// Suppressed alerts are classified but not persisted.
	alerts, err := fx.store.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("len(stored alerts) = %d for suppressed change, want 0", len(alerts))
	}
}

func TestSchedulerHonorsInterval(t *testing.T) {
	fx := newSchedulerFixture(t, intervalConfig())
	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))

	for i := 0; i < 3; i++ {
		if err := fx.scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}
	if got := fx.capturer.callCount("t"); got != 1 {
		t.Fatalf("captures before interval elapsed = %d, want 1", got)
	}

	fx.clock.Advance(61 * time.Second)
	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if got := fx.capturer.callCount("t"); got != 2 {
		t.Fatalf("captures after interval elapsed = %d, want 2", got)
	}
}

func TestSchedulerCronGating(t *testing.T) {
	cfg := intervalConfig()
	cfg.Cron = "0 0 * * *"
	fx := newSchedulerFixture(t, cfg)
	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))

	// At 09:00 the next midnight firing has not arrived.
	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if got := fx.capturer.callCount("t"); got != 0 {
		t.Fatalf("captures before cron firing = %d, want 0", got)
	}

	fx.clock.Advance(16 * time.Hour)
	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if got := fx.capturer.callCount("t"); got != 1 {
		t.Fatalf("captures after cron firing = %d, want 1", got)
	}
}

func TestSchedulerReportsCaptureErrors(t *testing.T) {
	fx := newSchedulerFixture(t, intervalConfig())
	fx.capturer.err = errors.New("schema file vanished")

	if err := fx.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	events := *fx.events
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Error == nil {
		t.Fatal("capture failure did not surface in event")
	}
	if _, found, _ := fx.store.Baseline(context.Background(), "t"); found {
		t.Fatal("failed capture must not create a baseline")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	fx := newSchedulerFixture(t, intervalConfig())
	fx.capturer.set("t", registryFingerprint("t", "s1", "r1"))

	ctx := context.Background()
	if err := fx.scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Second Start is a no-op.
	if err := fx.scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() again error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := fx.scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	// Stopping an already-stopped scheduler is a no-op.
	if err := fx.scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() again error = %v", err)
	}
}

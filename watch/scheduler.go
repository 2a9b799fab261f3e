package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
	"github.com/petal-labs/toolwatch/store"
)

const defaultWatchPollInterval = 5 * time.Second

// CheckEvent captures a scheduler-driven check result.
type CheckEvent struct {
	ToolName    string
	Fingerprint fingerprint.Fingerprint
	Alert       *mutation.Alert
	// Suppressed is set when a mutation was detected but its change type is
	// excluded by the config's alert_on policy.
	Suppressed bool
	// FirstSeen is set when this observation became the trusted baseline.
	FirstSeen bool
	Error     error
}

// CheckEventHandler handles scheduler check events.
type CheckEventHandler func(event CheckEvent)

// SchedulerConfig controls background watch scheduling behavior.
type SchedulerConfig struct {
	Registry *Registry
	Capturer Capturer
	Config   Config
	// Store, when set, persists first-seen baselines and unsuppressed alerts.
	Store        store.Store
	PollInterval time.Duration
	Now          func() time.Time
	OnEvent      CheckEventHandler
	// Tracer, when set, wraps each scheduling pass in a span.
	Tracer trace.Tracer
}

// Scheduler periodically re-fingerprints declared tools and checks them
// against their baselines.
type Scheduler struct {
	registry     *Registry
	capturer     Capturer
	config       Config
	store        store.Store
	pollInterval time.Duration
	now          func() time.Time
	onEvent      CheckEventHandler
	tracer       trace.Tracer

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastCheck map[string]time.Time
	nextCron  time.Time
}

// NewScheduler creates a watch scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("watch: scheduler registry is nil")
	}
	if cfg.Capturer == nil {
		return nil, errors.New("watch: scheduler capturer is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultWatchPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(CheckEvent) {}
	}

	s := &Scheduler{
		registry:     cfg.Registry,
		capturer:     cfg.Capturer,
		config:       cfg.Config,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		onEvent:      cfg.OnEvent,
		tracer:       cfg.Tracer,
		lastCheck:    make(map[string]time.Time),
	}

	if cron := s.config.Cron; cron != "" {
		next, err := nextCronRunUTC(cron, s.now())
		if err != nil {
			return nil, err
		}
		s.nextCron = next
	}
	return s, nil
}

// Start begins scheduler execution.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("watch: scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop terminates scheduler execution.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one scheduling pass: every due tool is re-fingerprinted
// and checked against its baseline.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.registry == nil {
		return errors.New("watch: scheduler registry is nil")
	}

	now := s.now()
	if !s.cronDue(now) {
		return nil
	}

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "toolwatch.check_pass",
			trace.WithAttributes(attribute.Int("tools.declared", len(s.config.Tools))))
		defer span.End()
	}

	for _, name := range s.config.ToolNames() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.isCheckDue(name, now) {
			continue
		}
		s.checkTool(ctx, name, s.config.Tools[name], now)
	}
	return nil
}

func (s *Scheduler) checkTool(ctx context.Context, name string, decl ToolDeclaration, now time.Time) {
	started := time.Now()
	s.setLastCheck(name, now)

	current, err := s.capturer.Capture(ctx, name, decl)
	if err != nil {
		emitCheckObservation(CheckObservation{
			ToolName:   name,
			DurationMS: time.Since(started).Milliseconds(),
			Error:      err.Error(),
		})
		s.onEvent(CheckEvent{ToolName: name, Error: err})
		return
	}

	_, existed := s.registry.Baseline(name)
	alert, err := s.registry.Check(name, current)
	if err != nil {
		emitCheckObservation(CheckObservation{
			ToolName:   name,
			DurationMS: time.Since(started).Milliseconds(),
			Error:      err.Error(),
		})
		s.onEvent(CheckEvent{ToolName: name, Fingerprint: current, Error: err})
		return
	}

	suppressed := alert != nil && !s.config.AlertsOn(alert.ChangeType)
	firstSeen := !existed

	if persistErr := s.persist(ctx, current, alert, firstSeen, suppressed); persistErr != nil {
		s.onEvent(CheckEvent{ToolName: name, Fingerprint: current, Alert: alert, Error: persistErr})
		return
	}

	observation := CheckObservation{
		ToolName:   name,
		Mutated:    alert != nil,
		Suppressed: suppressed,
		FirstSeen:  firstSeen,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if alert != nil {
		observation.ChangeType = alert.ChangeType
		observation.Severity = alert.Severity
	}
	emitCheckObservation(observation)

	s.onEvent(CheckEvent{
		ToolName:    name,
		Fingerprint: current,
		Alert:       alert,
		Suppressed:  suppressed,
		FirstSeen:   firstSeen,
	})
}

func (s *Scheduler) persist(ctx context.Context, current fingerprint.Fingerprint, alert *mutation.Alert, firstSeen, suppressed bool) error {
	if s.store == nil {
		return nil
	}
	if firstSeen {
		if err := s.store.PutBaseline(ctx, current); err != nil {
			return err
		}
	}
	if alert != nil && !suppressed {
		if err := s.store.AppendAlert(ctx, *alert); err != nil {
			return err
		}
	}
	return nil
}

// cronDue gates whole passes when a cron expression is configured. With no
// cron configured every pass runs and per-tool intervals gate instead.
func (s *Scheduler) cronDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Cron == "" {
		return true
	}
	if now.Before(s.nextCron) {
		return false
	}
	if next, err := nextCronRunUTC(s.config.Cron, now); err == nil {
		s.nextCron = next
	}
	return true
}

func (s *Scheduler) isCheckDue(name string, now time.Time) bool {
	// Cron mode runs every declared tool on each firing.
	if s.config.Cron != "" {
		return true
	}

	s.mu.Lock()
	last, ok := s.lastCheck[name]
	s.mu.Unlock()
	if !ok || last.IsZero() {
		return true
	}
	return !now.Before(last.Add(s.config.ToolInterval(name)))
}

func (s *Scheduler) setLastCheck(name string, now time.Time) {
	s.mu.Lock()
	s.lastCheck[name] = now
	s.mu.Unlock()
}

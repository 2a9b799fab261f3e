// Package watch maintains trusted baseline fingerprints per tool, routes new
// observations through mutation detection, and schedules periodic re-checks
// of declared tools.
package watch

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Detector classifies divergences. Defaults to a detector with wall-clock
	// timestamps and random alert IDs.
	Detector *mutation.Detector
}

// Registry holds one trusted baseline fingerprint per tool name plus an
// append-only log of every alert it has detected. All state is in-memory;
// one mutex serializes AddBaseline and Check because Check performs a
// read-then-conditionally-write sequence. Multiple independent registries can
// coexist in one process.
type Registry struct {
	detector *mutation.Detector

	mu        sync.Mutex
	baselines map[string]fingerprint.Fingerprint
	alerts    []mutation.Alert
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Detector == nil {
		cfg.Detector = mutation.NewDetector(mutation.DetectorConfig{})
	}
	return &Registry{
		detector:  cfg.Detector,
		baselines: make(map[string]fingerprint.Fingerprint),
	}
}

// AddBaseline unconditionally sets or replaces the trusted baseline for the
// fingerprint's tool. This is an explicit trust operation: no alert is ever
// generated for it.
func (r *Registry) AddBaseline(fp fingerprint.Fingerprint) error {
	if strings.TrimSpace(fp.ToolName) == "" {
		return errors.New("watch: baseline tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.baselines[fp.ToolName] = fp
	return nil
}

// Check compares current against the stored baseline for toolName.
//
// The first observation of a tool is trusted: it becomes the baseline and no
// alert is returned. On later observations the stored baseline is compared
// and, when a mutation is found, the alert is appended to the log and
// returned. The baseline is deliberately NOT advanced to current on this
// path; repeated mutated observations keep comparing against the original
// baseline until AddBaseline is called again, so alerting cannot silently
// reset itself.
func (r *Registry) Check(toolName string, current fingerprint.Fingerprint) (*mutation.Alert, error) {
	if strings.TrimSpace(toolName) == "" {
		return nil, errors.New("watch: tool name is required")
	}
	// A fingerprint captured for a different tool must never occupy this
	// slot, least of all as a trusted first observation.
	if current.ToolName != toolName {
		return nil, mutation.ErrToolMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	baseline, ok := r.baselines[toolName]
	if !ok {
		r.baselines[toolName] = current
		return nil, nil
	}

	alert, err := r.detector.Detect(baseline, current)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		r.alerts = append(r.alerts, *alert)
	}
	return alert, nil
}

// Alerts returns all accumulated alerts in detection order. The returned
// slice is a copy; mutating it does not affect registry state.
func (r *Registry) Alerts() []mutation.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.alerts)
}

// Baseline returns the stored baseline for toolName, if any.
func (r *Registry) Baseline(toolName string) (fingerprint.Fingerprint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.baselines[toolName]
	return fp, ok
}

// Baselines returns all stored baselines in deterministic (name-sorted)
// order. The returned slice is a copy.
func (r *Registry) Baselines() []fingerprint.Fingerprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]fingerprint.Fingerprint, 0, len(r.baselines))
	for _, fp := range r.baselines {
		out = append(out, fp)
	}
	slices.SortFunc(out, func(a, b fingerprint.Fingerprint) int {
		return strings.Compare(a.ToolName, b.ToolName)
	})
	return out
}

// Package mutation compares two fingerprints of the same tool and classifies
// any divergence into a typed, severity-ranked alert.
package mutation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/toolwatch/fingerprint"
)

// ChangeType classifies which contract dimensions diverged.
type ChangeType string

const (
	// ChangeSchema means only the declared schema changed.
	ChangeSchema ChangeType = "schema_change"
	// ChangeResponse means only the observed response shape changed.
	ChangeResponse ChangeType = "response_change"
	// ChangeBehavior means both schema and response shape changed.
	ChangeBehavior ChangeType = "behavior_change"
)

// ChangeTypes lists every change type the detector can produce.
func ChangeTypes() []ChangeType {
	return []ChangeType{ChangeSchema, ChangeBehavior, ChangeResponse}
}

// Severity ranks how serious a detected mutation is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns the ordering position of a severity, higher meaning worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ErrToolMismatch is returned when the compared fingerprints belong to
// different tools. Comparing across tools is always a caller bug.
var ErrToolMismatch = errors.New("mutation: fingerprints belong to different tools")

// Alert records one detected divergence between two fingerprints. Both input
// fingerprints are retained unmodified for audit.
type Alert struct {
	ID             string                  `json:"id"`
	ToolName       string                  `json:"tool_name"`
	ChangeType     ChangeType              `json:"change_type"`
	OldFingerprint fingerprint.Fingerprint `json:"old_fingerprint"`
	NewFingerprint fingerprint.Fingerprint `json:"new_fingerprint"`
	DetectedAt     time.Time               `json:"detected_at"`
	Severity       Severity                `json:"severity"`
}

// DetectorConfig controls detection behavior.
type DetectorConfig struct {
	// Now supplies detection timestamps. Defaults to UTC wall clock.
	Now func() time.Time
	// NewID supplies alert IDs. Defaults to random UUIDs.
	NewID func() string
}

// Detector compares fingerprints. Detection is a pure, total function over
// two well-formed fingerprints; there is nothing to retry.
type Detector struct {
	now   func() time.Time
	newID func() string
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Detector{now: cfg.Now, newID: cfg.NewID}
}

// Detect compares old against new and returns an alert when they diverge,
// or nil when the fingerprints agree on both dimensions.
func (d *Detector) Detect(old, current fingerprint.Fingerprint) (*Alert, error) {
	if old.ToolName != current.ToolName {
		return nil, ErrToolMismatch
	}

	schemaChanged := old.SchemaHash != current.SchemaHash
	responseChanged := old.ResponsePatternHash != current.ResponsePatternHash
	if !schemaChanged && !responseChanged {
		return nil, nil
	}

	var changeType ChangeType
	switch {
	case schemaChanged && responseChanged:
		changeType = ChangeBehavior
	case schemaChanged:
		changeType = ChangeSchema
	default:
		changeType = ChangeResponse
	}

	changed := 0
	if schemaChanged {
		changed++
	}
	if responseChanged {
		changed++
	}

	return &Alert{
		ID:             d.newID(),
		ToolName:       old.ToolName,
		ChangeType:     changeType,
		OldFingerprint: old,
		NewFingerprint: current,
		DetectedAt:     d.now().UTC(),
		Severity:       severityForChanges(changed),
	}, nil
}

// severityForChanges maps the count of changed dimensions to a severity.
func severityForChanges(changed int) Severity {
	switch changed {
	case 0:
		return SeverityLow
	case 1:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

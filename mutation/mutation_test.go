package mutation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/petal-labs/toolwatch/fingerprint"
)

var detectClock = func() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func testFingerprint(schemaHash, responseHash string) fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		ToolName:            "search-api",
		Version:             "1.0",
		SchemaHash:          schemaHash,
		ResponsePatternHash: responseHash,
		CapturedAt:          time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC),
	}
}

func newTestDetector() *Detector {
	return NewDetector(DetectorConfig{
		Now:   detectClock,
		NewID: func() string { return "alert-1" },
	})
}

func TestDetectClassification(t *testing.T) {
	tests := []struct {
		name         string
		old          fingerprint.Fingerprint
		current      fingerprint.Fingerprint
		wantAlert    bool
		wantType     ChangeType
		wantSeverity Severity
	}{
		{
			name:      "no change",
			old:       testFingerprint("s1", "r1"),
			current:   testFingerprint("s1", "r1"),
			wantAlert: false,
		},
		{
			name:         "schema only",
			old:          testFingerprint("s1", "r1"),
			current:      testFingerprint("s2", "r1"),
			wantAlert:    true,
			wantType:     ChangeSchema,
			wantSeverity: SeverityMedium,
		},
		{
			name:         "response only",
			old:          testFingerprint("s1", "r1"),
			current:      testFingerprint("s1", "r2"),
			wantAlert:    true,
			wantType:     ChangeResponse,
			wantSeverity: SeverityMedium,
		},
		{
			name:         "both dimensions",
			old:          testFingerprint("s1", "r1"),
			current:      testFingerprint("s2", "r2"),
			wantAlert:    true,
			wantType:     ChangeBehavior,
			wantSeverity: SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, err := newTestDetector().Detect(tt.old, tt.current)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if !tt.wantAlert {
				if alert != nil {
					t.Fatalf("Detect() = %+v, want nil", alert)
				}
				return
			}
			if alert == nil {
				t.Fatal("Detect() = nil, want alert")
			}
			if alert.ChangeType != tt.wantType {
				t.Fatalf("ChangeType = %q, want %q", alert.ChangeType, tt.wantType)
			}
			if alert.Severity != tt.wantSeverity {
				t.Fatalf("Severity = %q, want %q", alert.Severity, tt.wantSeverity)
			}
			if alert.ToolName != tt.old.ToolName {
				t.Fatalf("ToolName = %q, want %q", alert.ToolName, tt.old.ToolName)
			}
			if alert.OldFingerprint != tt.old || alert.NewFingerprint != tt.current {
				t.Fatal("Detect() did not retain input fingerprints unmodified")
			}
			if !alert.DetectedAt.Equal(detectClock()) {
				t.Fatalf("DetectedAt = %v, want %v", alert.DetectedAt, detectClock())
			}
			if alert.ID == "" {
				t.Fatal("alert ID is empty")
			}
		})
	}
}

func TestDetectToolMismatch(t *testing.T) {
	old := testFingerprint("s1", "r1")
	current := testFingerprint("s2", "r2")
	current.ToolName = "other-tool"

	alert, err := newTestDetector().Detect(old, current)
	if !errors.Is(err, ErrToolMismatch) {
		t.Fatalf("Detect() error = %v, want ErrToolMismatch", err)
	}
	if alert != nil {
		t.Fatalf("Detect() = %+v, want nil", alert)
	}
}

func TestDetectGeneratesUniqueIDs(t *testing.T) {
	detector := NewDetector(DetectorConfig{Now: detectClock})
	first, err := detector.Detect(testFingerprint("s1", "r1"), testFingerprint("s2", "r1"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	second, err := detector.Detect(testFingerprint("s1", "r1"), testFingerprint("s2", "r1"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("alert IDs collided: %s", first.ID)
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityLow.Rank() < SeverityMedium.Rank() && SeverityMedium.Rank() < SeverityHigh.Rank()) {
		t.Fatal("severity ranks are not ordered low < medium < high")
	}
}

func TestAlertRoundTrip(t *testing.T) {
	alert, err := newTestDetector().Detect(testFingerprint("s1", "r1"), testFingerprint("s2", "r2"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	data, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var restored Alert
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if restored.ChangeType != alert.ChangeType || restored.Severity != alert.Severity {
		t.Fatalf("classification changed after round trip: %+v", restored)
	}
	if restored.OldFingerprint.SchemaHash != alert.OldFingerprint.SchemaHash {
		t.Fatal("old fingerprint hash changed after round trip")
	}
	if restored.NewFingerprint.ResponsePatternHash != alert.NewFingerprint.ResponsePatternHash {
		t.Fatal("new fingerprint hash changed after round trip")
	}
	if !restored.DetectedAt.Equal(alert.DetectedAt) {
		t.Fatalf("DetectedAt = %v after round trip, want %v", restored.DetectedAt, alert.DetectedAt)
	}
}

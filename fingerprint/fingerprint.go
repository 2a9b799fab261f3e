// Package fingerprint computes deterministic structural fingerprints for tool
// contracts. A fingerprint pairs a hash of the tool's declared schema with a
// hash of the shape observed across sample responses, so unannounced contract
// changes surface as hash divergence.
package fingerprint

import (
	"errors"
	"sort"
	"time"

	"github.com/petal-labs/toolwatch/canonical"
)

// DefaultVersion is recorded when the caller does not supply a tool version.
const DefaultVersion = "unknown"

// Fingerprint is an immutable snapshot of a tool's observed contract.
// It round-trips losslessly through JSON; hash equality survives the trip.
type Fingerprint struct {
	ToolName            string    `json:"tool_name"`
	Version             string    `json:"version"`
	SchemaHash          string    `json:"schema_hash"`
	ResponsePatternHash string    `json:"response_pattern_hash"`
	CapturedAt          time.Time `json:"captured_at"`
}

// Config controls fingerprint capture behavior.
type Config struct {
	// Now supplies capture timestamps. Defaults to UTC wall clock.
	Now func() time.Time
}

// Fingerprinter produces fingerprints from schema and sample response data.
// Fingerprinting is intentionally model-free: only the schema structure and
// the per-key type shape of responses feed the hashes, never actual values.
type Fingerprinter struct {
	now func() time.Time
}

// New creates a Fingerprinter.
func New(cfg Config) *Fingerprinter {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Fingerprinter{now: cfg.Now}
}

// Fingerprint captures a fingerprint for one tool observation.
//
// schema may be any JSON-like structured value. sampleResponses may be empty;
// the empty set hashes to the digest of an empty shape summary. version falls
// back to DefaultVersion when blank. Neither record order within
// sampleResponses nor map key order anywhere affects the resulting hashes.
func (f *Fingerprinter) Fingerprint(toolName string, schema any, sampleResponses []map[string]any, version string) (Fingerprint, error) {
	if toolName == "" {
		return Fingerprint{}, errors.New("fingerprint: tool name is required")
	}
	if version == "" {
		version = DefaultVersion
	}

	schemaHash, err := canonical.Hash(schema)
	if err != nil {
		return Fingerprint{}, err
	}

	summary, err := SummarizeResponses(sampleResponses)
	if err != nil {
		return Fingerprint{}, err
	}
	responseHash, err := canonical.Hash(summaryValue(summary))
	if err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		ToolName:            toolName,
		Version:             version,
		SchemaHash:          schemaHash,
		ResponsePatternHash: responseHash,
		CapturedAt:          f.now().UTC(),
	}, nil
}

// SummarizeResponses reduces sample responses to a structural shape summary:
// for each top-level key, the sorted set of type tags observed across all
// records. Nested content below the top level is not inspected.
func SummarizeResponses(responses []map[string]any) (map[string][]string, error) {
	keyTags := make(map[string]map[TypeTag]struct{})
	for _, response := range responses {
		for key, value := range response {
			tag, err := TagOf(value)
			if err != nil {
				return nil, err
			}
			tags, ok := keyTags[key]
			if !ok {
				tags = make(map[TypeTag]struct{})
				keyTags[key] = tags
			}
			tags[tag] = struct{}{}
		}
	}

	summary := make(map[string][]string, len(keyTags))
	for key, tags := range keyTags {
		sorted := make([]string, 0, len(tags))
		for tag := range tags {
			sorted = append(sorted, string(tag))
		}
		sort.Strings(sorted)
		summary[key] = sorted
	}
	return summary, nil
}

// summaryValue converts a summary into the generic shape canonical.Encode
// accepts.
func summaryValue(summary map[string][]string) map[string]any {
	value := make(map[string]any, len(summary))
	for key, tags := range summary {
		items := make([]any, len(tags))
		for i, tag := range tags {
			items[i] = tag
		}
		value[key] = items
	}
	return value
}

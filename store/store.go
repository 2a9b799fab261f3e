// Package store persists baseline fingerprints and the mutation alert log
// across process runs.
package store

import (
	"context"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
)

// Store abstracts persistence for CLI and scheduler modes. Baselines are
// keyed by tool name (one baseline per tool, last write wins); alerts form
// an append-only log returned in insertion order.
type Store interface {
	Baselines(ctx context.Context) ([]fingerprint.Fingerprint, error)
	Baseline(ctx context.Context, toolName string) (fingerprint.Fingerprint, bool, error)
	PutBaseline(ctx context.Context, fp fingerprint.Fingerprint) error
	DeleteBaseline(ctx context.Context, toolName string) error

	AppendAlert(ctx context.Context, alert mutation.Alert) error
	Alerts(ctx context.Context) ([]mutation.Alert, error)
}

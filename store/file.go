package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
)

const (
	baselinesFileName = "baselines.json"
	alertsFileName    = "alerts.json"
)

var errEmptyStateDir = errors.New("store: file store directory is empty")

// FileStore persists baselines and alerts as JSON files in a state
// directory. This store is intended for environments where SQLite is
// unavailable or undesirable.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// NewDefaultFileStore creates a store at ~/.toolwatch.
func NewDefaultFileStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("store: resolve user home: %w", err)
	}
	return NewFileStore(filepath.Join(home, defaultSQLiteStoreDir)), nil
}

// Dir returns the backing state directory.
func (s *FileStore) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Baselines returns all baselines in deterministic (name-sorted) order.
func (s *FileStore) Baselines(ctx context.Context) ([]fingerprint.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("store: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadBaselines()
}

// Baseline returns the stored baseline for toolName.
func (s *FileStore) Baseline(ctx context.Context, toolName string) (fingerprint.Fingerprint, bool, error) {
	baselines, err := s.Baselines(ctx)
	if err != nil {
		return fingerprint.Fingerprint{}, false, err
	}
	for _, fp := range baselines {
		if fp.ToolName == toolName {
			return fp, true, nil
		}
	}
	return fingerprint.Fingerprint{}, false, nil
}

// PutBaseline inserts or replaces the baseline for the fingerprint's tool.
func (s *FileStore) PutBaseline(ctx context.Context, fp fingerprint.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store: file store is nil")
	}
	if strings.TrimSpace(fp.ToolName) == "" {
		return errors.New("store: baseline tool name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	baselines, err := s.loadBaselines()
	if err != nil {
		return err
	}

	index := -1
	for i := range baselines {
		if baselines[i].ToolName == fp.ToolName {
			index = i
			break
		}
	}
	if index >= 0 {
		baselines[index] = fp
	} else {
		baselines = append(baselines, fp)
	}
	return s.saveBaselines(baselines)
}

// DeleteBaseline removes a baseline by tool name. Deleting a missing name is
// a no-op.
func (s *FileStore) DeleteBaseline(ctx context.Context, toolName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	baselines, err := s.loadBaselines()
	if err != nil {
		return err
	}
	filtered := make([]fingerprint.Fingerprint, 0, len(baselines))
	for _, fp := range baselines {
		if fp.ToolName != toolName {
			filtered = append(filtered, fp)
		}
	}
	return s.saveBaselines(filtered)
}

// AppendAlert appends one alert to the log file.
func (s *FileStore) AppendAlert(ctx context.Context, alert mutation.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store: file store is nil")
	}
	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("store: alert id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.loadAlerts()
	if err != nil {
		return err
	}
	alerts = append(alerts, alert)
	return s.writeJSON(alertsFileName, alerts)
}

// Alerts returns the alert log in insertion order.
func (s *FileStore) Alerts(ctx context.Context) ([]mutation.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("store: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadAlerts()
}

func (s *FileStore) loadBaselines() ([]fingerprint.Fingerprint, error) {
	var baselines []fingerprint.Fingerprint
	if err := s.readJSON(baselinesFileName, &baselines); err != nil {
		return nil, err
	}
	sortBaselines(baselines)
	return baselines, nil
}

func (s *FileStore) saveBaselines(baselines []fingerprint.Fingerprint) error {
	sortBaselines(baselines)
	return s.writeJSON(baselinesFileName, baselines)
}

func (s *FileStore) loadAlerts() ([]mutation.Alert, error) {
	var alerts []mutation.Alert
	if err := s.readJSON(alertsFileName, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *FileStore) readJSON(name string, out any) error {
	if strings.TrimSpace(s.dir) == "" {
		return errEmptyStateDir
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	if strings.TrimSpace(s.dir) == "" {
		return errEmptyStateDir
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("store: create state dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write temp %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace %s: %w", name, err)
	}
	return nil
}

func sortBaselines(baselines []fingerprint.Fingerprint) {
	slices.SortFunc(baselines, func(a, b fingerprint.Fingerprint) int {
		return strings.Compare(a.ToolName, b.ToolName)
	})
}

var _ Store = (*FileStore)(nil)

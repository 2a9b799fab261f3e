package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/mutation"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS baselines (
	tool_name TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	detected_at TEXT NOT NULL
);`

const (
	defaultSQLiteStoreDir = ".toolwatch"
	defaultSQLiteStoreDB  = "toolwatch.db"
)

// SQLiteConfig configures the SQLite-backed store.
type SQLiteConfig struct {
	DSN string
}

// SQLiteStore persists baselines and alerts in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default SQLite path for CLI/scheduler storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteStoreDir, defaultSQLiteStoreDB), nil
}

// NewDefaultSQLiteStore creates a SQLite store at ~/.toolwatch/toolwatch.db.
func NewDefaultSQLiteStore() (*SQLiteStore, error) {
	path, err := DefaultSQLitePath()
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(SQLiteConfig{DSN: path})
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("store: sqlite dsn is required")
	}

	if dir := filepath.Dir(cfg.DSN); dir != "." && !strings.Contains(cfg.DSN, ":memory:") {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Baselines returns all baselines in deterministic (name-sorted) order.
func (s *SQLiteStore) Baselines(ctx context.Context) ([]fingerprint.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("store: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM baselines
ORDER BY tool_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite list baselines: %w", err)
	}
	defer rows.Close()

	var baselines []fingerprint.Fingerprint
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: sqlite scan baseline: %w", err)
		}
		var fp fingerprint.Fingerprint
		if err := json.Unmarshal(payload, &fp); err != nil {
			return nil, fmt.Errorf("store: sqlite decode baseline: %w", err)
		}
		baselines = append(baselines, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sqlite baseline rows: %w", err)
	}
	return baselines, nil
}

// Baseline returns the stored baseline for toolName.
func (s *SQLiteStore) Baseline(ctx context.Context, toolName string) (fingerprint.Fingerprint, bool, error) {
	if err := ctx.Err(); err != nil {
		return fingerprint.Fingerprint{}, false, err
	}
	if s == nil || s.db == nil {
		return fingerprint.Fingerprint{}, false, errors.New("store: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT payload
FROM baselines
WHERE tool_name = ?`, toolName)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fingerprint.Fingerprint{}, false, nil
		}
		return fingerprint.Fingerprint{}, false, fmt.Errorf("store: sqlite get baseline: %w", err)
	}

	var fp fingerprint.Fingerprint
	if err := json.Unmarshal(payload, &fp); err != nil {
		return fingerprint.Fingerprint{}, false, fmt.Errorf("store: sqlite decode baseline: %w", err)
	}
	return fp, true, nil
}

// PutBaseline inserts or replaces the baseline for the fingerprint's tool.
func (s *SQLiteStore) PutBaseline(ctx context.Context, fp fingerprint.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}
	if strings.TrimSpace(fp.ToolName) == "" {
		return errors.New("store: baseline tool name is required")
	}

	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("store: sqlite encode baseline: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO baselines (tool_name, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(tool_name) DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at`,
		fp.ToolName,
		payload,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite upsert baseline: %w", err)
	}
	return nil
}

// DeleteBaseline removes a baseline by tool name. Deleting a missing name is
// a no-op.
func (s *SQLiteStore) DeleteBaseline(ctx context.Context, toolName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM baselines WHERE tool_name = ?`, toolName); err != nil {
		return fmt.Errorf("store: sqlite delete baseline: %w", err)
	}
	return nil
}

// AppendAlert appends one alert to the log.
func (s *SQLiteStore) AppendAlert(ctx context.Context, alert mutation.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}
	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("store: alert id is required")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("store: sqlite encode alert: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO alerts (id, payload, detected_at)
VALUES (?, ?, ?)`,
		alert.ID,
		payload,
		alert.DetectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite append alert: %w", err)
	}
	return nil
}

// Alerts returns the alert log in insertion order.
func (s *SQLiteStore) Alerts(ctx context.Context) ([]mutation.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("store: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM alerts
ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []mutation.Alert
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: sqlite scan alert: %w", err)
		}
		var alert mutation.Alert
		if err := json.Unmarshal(payload, &alert); err != nil {
			return nil, fmt.Errorf("store: sqlite decode alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sqlite alert rows: %w", err)
	}
	return alerts, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

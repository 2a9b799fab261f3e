package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolwatch/mutation"
)

const (
	projectConfigName = "toolwatch.yaml"
	homeConfigDir     = ".toolwatch"
	homeConfigName    = "config.yaml"

	// DefaultCheckIntervalSeconds applies when the config omits an interval.
	DefaultCheckIntervalSeconds = 300
)

// Config is the declarative watch configuration shape.
//
// AlertOn is caller-layer policy: the detector always classifies every change
// type, and the scheduler suppresses alerts whose type is not listed here.
type Config struct {
	Tools                map[string]ToolDeclaration `yaml:"tools"`
	CheckIntervalSeconds int                        `yaml:"check_interval_seconds,omitempty"`
	Cron                 string                     `yaml:"cron,omitempty"`
	AlertOn              []mutation.ChangeType      `yaml:"alert_on,omitempty"`
}

// ToolDeclaration defines one watched tool in toolwatch.yaml.
type ToolDeclaration struct {
	Schema          string `yaml:"schema"`
	Responses       string `yaml:"responses,omitempty"`
	Version         string `yaml:"version,omitempty"`
	IntervalSeconds int    `yaml:"interval_seconds,omitempty"`
}

// DiscoverConfigPath resolves the watch config location with first-match
// semantics: explicit path, then ./toolwatch.yaml, then
// ~/.toolwatch/config.yaml.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadConfig reads, validates, and defaults a watch config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("watch: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("watch: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks declaration completeness, alert_on vocabulary, and the
// cron expression when present.
func (c Config) Validate() error {
	for name, decl := range c.Tools {
		if strings.TrimSpace(name) == "" {
			return errors.New("watch: tool declaration name is empty")
		}
		if strings.TrimSpace(decl.Schema) == "" {
			return fmt.Errorf("watch: tool %q declares no schema path", name)
		}
		if decl.IntervalSeconds < 0 {
			return fmt.Errorf("watch: tool %q has negative interval", name)
		}
	}
	if c.CheckIntervalSeconds < 0 {
		return errors.New("watch: check_interval_seconds is negative")
	}
	for _, changeType := range c.AlertOn {
		if !slices.Contains(mutation.ChangeTypes(), changeType) {
			return fmt.Errorf("watch: unknown alert_on change type %q", changeType)
		}
	}
	if strings.TrimSpace(c.Cron) != "" {
		if _, err := parseCronExpressionUTC(c.Cron); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.CheckIntervalSeconds == 0 {
		c.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	}
	if len(c.AlertOn) == 0 {
		c.AlertOn = mutation.ChangeTypes()
	}
}

// CheckInterval returns the configured global re-check interval.
func (c Config) CheckInterval() time.Duration {
	seconds := c.CheckIntervalSeconds
	if seconds <= 0 {
		seconds = DefaultCheckIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

// ToolInterval returns the re-check interval for one declared tool,
// falling back to the global interval.
func (c Config) ToolInterval(name string) time.Duration {
	if decl, ok := c.Tools[name]; ok && decl.IntervalSeconds > 0 {
		return time.Duration(decl.IntervalSeconds) * time.Second
	}
	return c.CheckInterval()
}

// AlertsOn reports whether the config's alert policy includes changeType.
func (c Config) AlertsOn(changeType mutation.ChangeType) bool {
	return slices.Contains(c.AlertOn, changeType)
}

// ToolNames returns declared tool names in deterministic order.
func (c Config) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

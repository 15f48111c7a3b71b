// Package config loads and validates the per-repository
// .code-indexer/config.json file. Unknown or legacy keys are tolerated with
// a warning rather than rejected, since older CLI versions may still write
// fields this daemon no longer understands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jsbattig/cidx/pkg/atomicfile"
	"github.com/jsbattig/cidx/pkg/log"
)

// Daemon holds the daemon.* option group.
type Daemon struct {
	Enabled                     bool  `json:"enabled"`
	TTLMinutes                  int   `json:"ttl_minutes"`
	AutoShutdownOnIdle          bool  `json:"auto_shutdown_on_idle"`
	MaxRetries                  int   `json:"max_retries"`
	RetryDelaysMs               []int `json:"retry_delays_ms"`
	EvictionCheckIntervalSeconds int  `json:"eviction_check_interval_seconds"`
}

// Temporal holds the temporal.* option group.
type Temporal struct {
	CheckpointInterval     int  `json:"checkpoint_interval"`
	BatchSize              int  `json:"batch_size"`
	MaxBatchMemoryMB       int  `json:"max_batch_memory_mb"`
	EnableMemoryMonitoring bool `json:"enable_memory_monitoring"`
}

// Config is the full parsed config.json document, plus any keys this
// version doesn't recognize (kept around so a re-write doesn't drop them).
type Config struct {
	Daemon   Daemon                 `json:"daemon"`
	Temporal Temporal               `json:"temporal"`
	Unknown  map[string]interface{} `json:"-"`

	path string
}

// Default returns the configuration defaults matching spec.md §6.
func Default() *Config {
	return &Config{
		Daemon: Daemon{
			Enabled:                      true,
			TTLMinutes:                   30,
			AutoShutdownOnIdle:           false,
			MaxRetries:                   4,
			RetryDelaysMs:                []int{100, 500, 1000, 2000},
			EvictionCheckIntervalSeconds: 60,
		},
		Temporal: Temporal{
			CheckpointInterval:     1000,
			BatchSize:              50,
			MaxBatchMemoryMB:       512,
			EnableMemoryMonitoring: false,
		},
	}
}

// SocketPath returns config_dir/daemon.sock as required by spec.md §4.8 step 3.
func (c *Config) SocketPath() string {
	return filepath.Join(filepath.Dir(c.path), "daemon.sock")
}

// ConfigDir returns the directory config.json lives in.
func (c *Config) ConfigDir() string {
	return filepath.Dir(c.path)
}

// Load reads and validates path, a .code-indexer/config.json file. Missing
// fields fall back to Default()'s values.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	known := map[string]bool{"daemon": true, "temporal": true}
	unknown := map[string]interface{}{}

	if v, ok := raw["daemon"]; ok {
		if err := json.Unmarshal(v, &cfg.Daemon); err != nil {
			return nil, fmt.Errorf("config: parse daemon section: %w", err)
		}
	}
	if v, ok := raw["temporal"]; ok {
		if err := json.Unmarshal(v, &cfg.Temporal); err != nil {
			return nil, fmt.Errorf("config: parse temporal section: %w", err)
		}
	}
	for k, v := range raw {
		if known[k] {
			continue
		}
		var decoded interface{}
		_ = json.Unmarshal(v, &decoded)
		unknown[k] = decoded
		log.Logger.Warn().Str("key", k).Msg("ignoring unknown config key")
	}
	cfg.Unknown = unknown

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the ranges from spec.md §6's option table.
func (c *Config) Validate() error {
	if c.Daemon.TTLMinutes < 1 || c.Daemon.TTLMinutes > 1440 {
		return fmt.Errorf("config: daemon.ttl_minutes must be in [1,1440], got %d", c.Daemon.TTLMinutes)
	}
	if c.Daemon.MaxRetries < 0 || c.Daemon.MaxRetries > 10 {
		return fmt.Errorf("config: daemon.max_retries must be in [0,10], got %d", c.Daemon.MaxRetries)
	}
	if len(c.Daemon.RetryDelaysMs) != c.Daemon.MaxRetries {
		return fmt.Errorf("config: daemon.retry_delays_ms must have length max_retries (%d), got %d",
			c.Daemon.MaxRetries, len(c.Daemon.RetryDelaysMs))
	}
	return nil
}

// Save writes cfg back to its source path atomically. Unknown keys from the
// original file are preserved alongside the recognized sections.
func (c *Config) Save() error {
	out := map[string]interface{}{
		"daemon":   c.Daemon,
		"temporal": c.Temporal,
	}
	for k, v := range c.Unknown {
		out[k] = v
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return atomicfile.Write(c.path, data, 0o644)
}

// Find walks parent directories starting at dir looking for
// .code-indexer/config.json, mirroring spec.md §4.8 step 1. Returns "", nil
// if none is found (caller should treat that as standalone).
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, ".code-indexer", "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

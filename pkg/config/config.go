// Package config loads layered YAML configuration for the sandbox,
// tool executor, DLP engine, durable audit queue, and SIEM exporter: a
// zero-value default, optionally overridden by a YAML file, optionally
// overridden again by environment variables under a fixed prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SandboxConfig holds default resource limits for sandboxed runs.
type SandboxConfig struct {
	TimeoutMs      int64  `yaml:"timeout_ms"`
	MemoryMB       int64  `yaml:"memory_mb"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
	WorkerPath     string `yaml:"worker_path"`
}

// ToolExecutorConfig holds budgets for the AI tool executor.
type ToolExecutorConfig struct {
	MaxCellsPerCall    int `yaml:"max_cells_per_call"`
	MaxResultBytes     int `yaml:"max_result_bytes"`
	ExternalFetchMaxMB int `yaml:"external_fetch_max_mb"`
}

// DLPConfig holds defaults for the classification/policy engine.
type DLPConfig struct {
	PolicyPath        string `yaml:"policy_path"`
	RestrictedAllowed bool   `yaml:"restricted_allowed"`
}

// QueueConfig holds the durable audit queue's paths and thresholds.
type QueueConfig struct {
	Backend           string        `yaml:"backend"` // "file" or "sqlite"
	Dir               string        `yaml:"dir"`
	SQLitePath        string        `yaml:"sqlite_path"`
	MaxSegmentRecords int           `yaml:"max_segment_records"`
	MaxQueuedRecords  int           `yaml:"max_queued_records"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	LockStaleAfter    time.Duration `yaml:"lock_stale_after"`
}

// SIEMConfig holds the outbound SIEM exporter's endpoint and policy.
type SIEMConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Format          string `yaml:"format"` // "json", "cef", "leef"
	AuthHeader      string `yaml:"auth_header"`
	AuthToken       string `yaml:"auth_token"`
	RateLimitPerSec int    `yaml:"rate_limit_per_sec"`
}

// Config is the top-level layered configuration object.
type Config struct {
	Sandbox      SandboxConfig      `yaml:"sandbox"`
	ToolExecutor ToolExecutorConfig `yaml:"tool_executor"`
	DLP          DLPConfig          `yaml:"dlp"`
	Queue        QueueConfig        `yaml:"queue"`
	SIEM         SIEMConfig         `yaml:"siem"`
}

// Default returns the zero-value configuration with sane defaults
// filled in, used as the base layer before any file/env overrides.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			TimeoutMs:      30_000,
			MemoryMB:       512,
			MaxOutputBytes: 10 * 1024 * 1024,
		},
		ToolExecutor: ToolExecutorConfig{
			MaxCellsPerCall:    100_000,
			MaxResultBytes:     1 * 1024 * 1024,
			ExternalFetchMaxMB: 10,
		},
		Queue: QueueConfig{
			Backend:           "file",
			MaxSegmentRecords: 500,
			MaxQueuedRecords:  100_000,
			FlushInterval:     30 * time.Second,
			LockStaleAfter:    2 * time.Minute,
		},
		SIEM: SIEMConfig{
			Format:          "json",
			RateLimitPerSec: 50,
		},
	}
}

// envPrefix is the fixed prefix environment-variable overrides must
// carry, e.g. CELLWARDEN_SIEM_ENDPOINT.
const envPrefix = "CELLWARDEN_"

// Load builds a Config by layering a YAML file (if path is non-empty)
// and then environment variables over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "SIEM_ENDPOINT"); v != "" {
		cfg.SIEM.Endpoint = v
	}
	if v := os.Getenv(envPrefix + "SIEM_AUTH_TOKEN"); v != "" {
		cfg.SIEM.AuthToken = v
	}
	if v := os.Getenv(envPrefix + "QUEUE_DIR"); v != "" {
		cfg.Queue.Dir = v
	}
	if v := os.Getenv(envPrefix + "SANDBOX_WORKER_PATH"); v != "" {
		cfg.Sandbox.WorkerPath = v
	}
	if v := os.Getenv(envPrefix + "SANDBOX_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.TimeoutMs = n
		}
	}
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into cfg, skipping any
// field the file did not set (so a zero value on disk doesn't clobber
// a Default()).
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Non-zero strings/ints/
// durations always win; booleans only apply when boolFieldSet
// confirms the key was actually present in the YAML source, since a
// bare `false` is indistinguishable from "not set" once decoded.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Sandbox.TimeoutMs != 0 {
		base.Sandbox.TimeoutMs = override.Sandbox.TimeoutMs
	}
	if override.Sandbox.MemoryMB != 0 {
		base.Sandbox.MemoryMB = override.Sandbox.MemoryMB
	}
	if override.Sandbox.MaxOutputBytes != 0 {
		base.Sandbox.MaxOutputBytes = override.Sandbox.MaxOutputBytes
	}
	if override.Sandbox.WorkerPath != "" {
		base.Sandbox.WorkerPath = override.Sandbox.WorkerPath
	}

	if override.ToolExecutor.MaxCellsPerCall != 0 {
		base.ToolExecutor.MaxCellsPerCall = override.ToolExecutor.MaxCellsPerCall
	}
	if override.ToolExecutor.MaxResultBytes != 0 {
		base.ToolExecutor.MaxResultBytes = override.ToolExecutor.MaxResultBytes
	}
	if override.ToolExecutor.ExternalFetchMaxMB != 0 {
		base.ToolExecutor.ExternalFetchMaxMB = override.ToolExecutor.ExternalFetchMaxMB
	}

	if override.DLP.PolicyPath != "" {
		base.DLP.PolicyPath = override.DLP.PolicyPath
	}
	if boolFieldSet(raw, "dlp", "restricted_allowed") {
		base.DLP.RestrictedAllowed = override.DLP.RestrictedAllowed
	}

	if override.Queue.Backend != "" {
		base.Queue.Backend = override.Queue.Backend
	}
	if override.Queue.Dir != "" {
		base.Queue.Dir = override.Queue.Dir
	}
	if override.Queue.SQLitePath != "" {
		base.Queue.SQLitePath = override.Queue.SQLitePath
	}
	if override.Queue.MaxSegmentRecords != 0 {
		base.Queue.MaxSegmentRecords = override.Queue.MaxSegmentRecords
	}
	if override.Queue.MaxQueuedRecords != 0 {
		base.Queue.MaxQueuedRecords = override.Queue.MaxQueuedRecords
	}
	if override.Queue.FlushInterval != 0 {
		base.Queue.FlushInterval = override.Queue.FlushInterval
	}
	if override.Queue.LockStaleAfter != 0 {
		base.Queue.LockStaleAfter = override.Queue.LockStaleAfter
	}

	if override.SIEM.Endpoint != "" {
		base.SIEM.Endpoint = override.SIEM.Endpoint
	}
	if override.SIEM.Format != "" {
		base.SIEM.Format = override.SIEM.Format
	}
	if override.SIEM.AuthHeader != "" {
		base.SIEM.AuthHeader = override.SIEM.AuthHeader
	}
	if override.SIEM.AuthToken != "" {
		base.SIEM.AuthToken = override.SIEM.AuthToken
	}
	if override.SIEM.RateLimitPerSec != 0 {
		base.SIEM.RateLimitPerSec = override.SIEM.RateLimitPerSec
	}
}

// boolFieldSet reports whether the nested key path was actually
// present in the decoded YAML document, so a boolean field's zero
// value can be told apart from "the file didn't mention it".
func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

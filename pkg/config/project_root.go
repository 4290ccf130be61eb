package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveQueueDir returns the directory the durable audit queue should
// write segments under.
// Preference order:
//  1. Explicit path configured via queue.dir, made absolute when possible
//  2. A "cellwarden/audit-queue" directory under the user's cache dir
//  3. The relative path "cellwarden-audit-queue" when no cache dir is known
func ResolveQueueDir(cfg *Config) string {
	if cfg != nil {
		dir := expandHomeDir(strings.TrimSpace(cfg.Queue.Dir))
		if dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				return abs
			}
			return dir
		}
	}
	if stateDir, err := os.UserCacheDir(); err == nil && strings.TrimSpace(stateDir) != "" {
		return filepath.Join(stateDir, "cellwarden", "audit-queue")
	}
	return filepath.Join(".", "cellwarden-audit-queue")
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

package main

import (
	"fmt"

	"github.com/cellwarden/cellwarden/pkg/config"
)

func runConfigCommand(args []string) error {
	subCmd := "show"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "check":
		return runConfigCheck()
	case "show":
		return runConfigShow()
	case "path":
		return runConfigPath()
	default:
		return fmt.Errorf("unknown config command: %s (use check, show, or path)", subCmd)
	}
}

func runConfigCheck() error {
	fmt.Println("Checking cellwardend configuration...")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		return withExitCode(fmt.Errorf("loading config: %w", err), 2)
	}

	fmt.Println("Queue:")
	fmt.Printf("  Backend:  %s\n", cfg.Queue.Backend)
	fmt.Printf("  Dir:      %s\n", config.ResolveQueueDir(cfg))
	fmt.Println()

	fmt.Println("SIEM:")
	if cfg.SIEM.Endpoint == "" {
		fmt.Println("  - Endpoint: not configured (audit events will only persist locally)")
	} else {
		fmt.Printf("  ✓ Endpoint: %s (%s)\n", cfg.SIEM.Endpoint, cfg.SIEM.Format)
	}
	fmt.Println()

	fmt.Println("Sandbox:")
	if cfg.Sandbox.WorkerPath == "" {
		fmt.Println("  - Worker path: not configured (sandbox runs will fail to launch)")
	} else {
		fmt.Printf("  ✓ Worker path: %s\n", cfg.Sandbox.WorkerPath)
	}

	fmt.Println()
	fmt.Println("✓ Configuration loaded successfully")
	return nil
}

func runConfigShow() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return withExitCode(fmt.Errorf("loading config: %w", err), 2)
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Printf("Sandbox:\n")
	fmt.Printf("  Timeout:          %dms\n", cfg.Sandbox.TimeoutMs)
	fmt.Printf("  Memory:           %dMB\n", cfg.Sandbox.MemoryMB)
	fmt.Printf("  Max output bytes: %d\n", cfg.Sandbox.MaxOutputBytes)
	fmt.Println()
	fmt.Printf("Tool executor:\n")
	fmt.Printf("  Max cells/call:        %d\n", cfg.ToolExecutor.MaxCellsPerCall)
	fmt.Printf("  Max result bytes:      %d\n", cfg.ToolExecutor.MaxResultBytes)
	fmt.Printf("  External fetch max MB: %d\n", cfg.ToolExecutor.ExternalFetchMaxMB)
	fmt.Println()
	fmt.Printf("DLP:\n")
	fmt.Printf("  Policy path:       %s\n", cfg.DLP.PolicyPath)
	fmt.Printf("  Restricted allowed: %v\n", cfg.DLP.RestrictedAllowed)
	fmt.Println()
	fmt.Printf("Queue:\n")
	fmt.Printf("  Backend:             %s\n", cfg.Queue.Backend)
	fmt.Printf("  Max segment records: %d\n", cfg.Queue.MaxSegmentRecords)
	fmt.Printf("  Max queued records:  %d\n", cfg.Queue.MaxQueuedRecords)
	fmt.Printf("  Flush interval:      %s\n", cfg.Queue.FlushInterval)
	fmt.Println()
	fmt.Printf("SIEM:\n")
	fmt.Printf("  Endpoint:          %s\n", cfg.SIEM.Endpoint)
	fmt.Printf("  Format:            %s\n", cfg.SIEM.Format)
	fmt.Printf("  Rate limit/sec:    %d\n", cfg.SIEM.RateLimitPerSec)
	return nil
}

func runConfigPath() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return withExitCode(fmt.Errorf("loading config: %w", err), 2)
	}
	fmt.Println("Resolved paths:")
	fmt.Printf("  Config file: %s\n", configPathOrDefault())
	fmt.Printf("  Queue dir:   %s\n", config.ResolveQueueDir(cfg))
	return nil
}

func configPathOrDefault() string {
	if configPath == "" {
		return "(none; using built-in defaults and CELLWARDEN_* environment overrides)"
	}
	return configPath
}

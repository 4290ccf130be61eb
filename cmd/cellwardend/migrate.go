package main

import (
	"context"
	"fmt"

	"github.com/cellwarden/cellwarden/pkg/audit"
	"github.com/cellwarden/cellwarden/pkg/auditqueue"
	"github.com/cellwarden/cellwarden/pkg/auditqueue/sqlitequeue"
	"github.com/cellwarden/cellwarden/pkg/config"
)

// discardExporter satisfies auditqueue.Exporter without forwarding
// anywhere; migrate only needs to force schema creation, not export.
type discardExporter struct{}

func (discardExporter) Export(context.Context, string, []audit.Event) error { return nil }

// runMigrateCommand ensures the configured queue backend's on-disk
// layout exists: the segment directory for the file backend, or the
// audit_events table for the sqlite backend. Both backends apply their
// schema lazily on open, so this is a forcing function rather than a
// distinct migration engine.
func runMigrateCommand(args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return withExitCode(fmt.Errorf("loading config: %w", err), 2)
	}

	switch cfg.Queue.Backend {
	case "sqlite":
		path := cfg.Queue.SQLitePath
		if path == "" {
			path = config.ResolveQueueDir(cfg) + "/audit-queue.sqlite"
		}
		queue, err := sqlitequeue.Open(sqlitequeue.DefaultConfig(path), discardExporter{})
		if err != nil {
			return fmt.Errorf("applying sqlite queue schema at %s: %w", path, err)
		}
		defer queue.Close()
		fmt.Printf("cellwardend: sqlite audit queue schema applied at %s\n", path)
	default:
		dir := config.ResolveQueueDir(cfg)
		qcfg := auditqueue.DefaultConfig(dir)
		if _, err := auditqueue.New(qcfg, discardExporter{}); err != nil {
			return fmt.Errorf("applying file queue layout at %s: %w", dir, err)
		}
		fmt.Printf("cellwardend: file audit queue directory ready at %s\n", dir)
	}
	return nil
}

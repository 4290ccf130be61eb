package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cellwarden/cellwarden/pkg/audit"
	"github.com/cellwarden/cellwarden/pkg/auditqueue"
	"github.com/cellwarden/cellwarden/pkg/auditqueue/sqlitequeue"
	"github.com/cellwarden/cellwarden/pkg/config"
	"github.com/cellwarden/cellwarden/pkg/obslog"
	"github.com/cellwarden/cellwarden/pkg/siem"
)

// runServeCommand runs the durable audit pipeline as a standalone
// process: a host application embeds the permission kernel, sandbox
// supervisor, and tool executor as libraries (see pkg/principal,
// pkg/sandbox, pkg/sheettool) directly in its own process, but the
// segmented offline queue and its SIEM forwarding are long enough
// running and crash-sensitive to warrant their own daemon.
func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	once := fs.Bool("once", false, "flush whatever is queued once, then exit (cron-style invocation)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return withExitCode(fmt.Errorf("loading config: %w", err), 2)
	}

	dataDir := config.ResolveQueueDir(cfg)
	logger, err := obslog.NewLogger(dataDir, "daemon")
	if err != nil {
		return fmt.Errorf("starting operational logger: %w", err)
	}
	defer logger.Close()
	logger.Info(obslog.CategoryAuditPipe, "daemon.starting", "cellwardend audit pipeline starting", map[string]any{
		"queue_backend": cfg.Queue.Backend,
		"data_dir":      dataDir,
	})

	exporter := buildExporter(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch cfg.Queue.Backend {
	case "sqlite":
		return serveSQLiteQueue(ctx, cfg, exporter, logger, *once)
	default:
		return serveFileQueue(ctx, cfg, exporter, logger, *once)
	}
}

func buildExporter(cfg *config.Config, logger *obslog.Logger) auditqueue.Exporter {
	if cfg.SIEM.Endpoint == "" {
		return auditqueue.ExporterFunc(func(_ context.Context, key string, events []audit.Event) error {
			logger.Info(obslog.CategorySIEM, "siem.export_skipped", "no SIEM endpoint configured; batch retained only in the durable queue", map[string]any{
				"idempotency_key": key,
				"event_count":     len(events),
			})
			return nil
		})
	}
	exp, err := siem.New(siem.Config{
		Endpoint:        cfg.SIEM.Endpoint,
		Format:          siem.Format(cfg.SIEM.Format),
		AuthHeader:      cfg.SIEM.AuthHeader,
		AuthToken:       cfg.SIEM.AuthToken,
		RateLimitPerSec: cfg.SIEM.RateLimitPerSec,
	})
	if err != nil {
		return auditqueue.ExporterFunc(func(_ context.Context, key string, events []audit.Event) error {
			logger.Error(obslog.CategorySIEM, "siem.misconfigured", err.Error(), map[string]any{"idempotency_key": key})
			return err
		})
	}
	return exp
}

func serveFileQueue(ctx context.Context, cfg *config.Config, exporter auditqueue.Exporter, logger *obslog.Logger, once bool) error {
	qcfg := auditqueue.DefaultConfig(config.ResolveQueueDir(cfg))
	if cfg.Queue.MaxSegmentRecords > 0 {
		qcfg.MaxSegmentRecords = cfg.Queue.MaxSegmentRecords
	}
	if cfg.Queue.MaxQueuedRecords > 0 {
		qcfg.MaxQueuedRecords = cfg.Queue.MaxQueuedRecords
	}
	if cfg.Queue.FlushInterval > 0 {
		qcfg.FlushInterval = cfg.Queue.FlushInterval
	}
	if cfg.Queue.LockStaleAfter > 0 {
		qcfg.LockStaleAfter = cfg.Queue.LockStaleAfter
	}

	queue, err := auditqueue.New(qcfg, exporter)
	if err != nil {
		return fmt.Errorf("opening file audit queue: %w", err)
	}

	if once {
		return queue.Flush(ctx)
	}

	return runUntilSignal(ctx, logger, func(runCtx context.Context) {
		queue.Run(runCtx)
	})
}

func serveSQLiteQueue(ctx context.Context, cfg *config.Config, exporter auditqueue.Exporter, logger *obslog.Logger, once bool) error {
	path := cfg.Queue.SQLitePath
	if path == "" {
		path = config.ResolveQueueDir(cfg) + "/audit-queue.sqlite"
	}
	scfg := sqlitequeue.DefaultConfig(path)
	if cfg.Queue.MaxSegmentRecords > 0 {
		scfg.MaxSegmentRecords = cfg.Queue.MaxSegmentRecords
	}

	queue, err := sqlitequeue.Open(scfg, exporter)
	if err != nil {
		return fmt.Errorf("opening sqlite audit queue: %w", err)
	}
	defer queue.Close()

	if once {
		return queue.Flush(ctx)
	}

	interval := cfg.Queue.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return runUntilSignal(ctx, logger, func(runCtx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := queue.Flush(runCtx); err != nil {
					logger.Warn(obslog.CategoryAuditPipe, "queue.flush_failed", err.Error(), nil)
				}
			}
		}
	})
}

// runUntilSignal starts loop in a goroutine and blocks until SIGINT or
// SIGTERM, then cancels ctx via cancel and waits for loop to observe it.
func runUntilSignal(ctx context.Context, logger *obslog.Logger, loop func(context.Context)) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop(runCtx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	fmt.Println("cellwardend: serving the durable audit pipeline (ctrl-c to stop)")

	select {
	case <-sigCh:
		logger.Info(obslog.CategoryAuditPipe, "daemon.stopping", "received shutdown signal", nil)
		cancel()
		<-done
	case <-done:
	}
	return nil
}

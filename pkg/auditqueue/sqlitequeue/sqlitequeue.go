// Package sqlitequeue is a database-backed alternative to
// auditqueue.FileQueue: segments are rows in a SQLite table instead of
// files in a directory, but the state machine (open -> pending ->
// inflight -> acked) and the idempotency-key export contract are the
// same, grounded on the filesystem queue's design and on the teacher's
// pure-Go SQLite driver setup (WAL mode, busy_timeout, private file
// creation).
package sqlitequeue

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

	"github.com/cellwarden/cellwarden/pkg/audit"
	"github.com/cellwarden/cellwarden/pkg/auditqueue"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	segment_id TEXT NOT NULL,
	event_id   TEXT NOT NULL,
	state      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_segment ON audit_events(segment_id, state);
`

// Queue is a SQLite-backed durable audit queue.
type Queue struct {
	db       *sql.DB
	exporter auditqueue.Exporter

	maxSegmentRecords int
	currentSegmentID  string
}

// Config mirrors auditqueue.Config for the database-backed variant.
type Config struct {
	Path              string
	MaxSegmentRecords int
}

// DefaultConfig returns a 500-record-per-segment default.
func DefaultConfig(path string) Config {
	return Config{Path: path, MaxSegmentRecords: 500}
}

// Open creates (if absent) the SQLite file at cfg.Path, applies the
// schema, and returns a ready Queue.
func Open(cfg Config, exporter auditqueue.Exporter) (*Queue, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitequeue: Config.Path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlitequeue: create db directory: %w", err)
		}
	}
	if err := ensurePrivateFile(cfg.Path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitequeue: open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitequeue: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitequeue: apply schema: %w", err)
	}

	maxRecords := cfg.MaxSegmentRecords
	if maxRecords <= 0 {
		maxRecords = 500
	}

	q := &Queue{db: db, exporter: exporter, maxSegmentRecords: maxRecords}
	if err := q.resumeOpenSegment(); err != nil {
		db.Close()
		return nil, err
	}
	if err := q.recoverInflight(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("sqlitequeue: stat db path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("sqlitequeue: create db file: %w", err)
	}
	return f.Close()
}

func (q *Queue) resumeOpenSegment() error {
	row := q.db.QueryRow(`SELECT segment_id FROM audit_events WHERE state = 'open' ORDER BY seq DESC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	q.currentSegmentID = id
	return nil
}

// recoverInflight demotes any segment left inflight after a crash back
// to pending, since there is no proof the exporter received it.
func (q *Queue) recoverInflight() error {
	_, err := q.db.Exec(`UPDATE audit_events SET state = 'pending' WHERE state = 'inflight'`)
	return err
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue appends e to the current (or a newly opened) segment,
// rolling it to pending once it reaches MaxSegmentRecords.
func (q *Queue) Enqueue(ctx context.Context, e audit.Event) error {
	if q.currentSegmentID == "" {
		q.currentSegmentID = newSegmentID()
	}

	count, err := q.segmentCount(ctx, q.currentSegmentID, "open")
	if err != nil {
		return err
	}
	if count >= q.maxSegmentRecords {
		if _, err := q.db.ExecContext(ctx, `UPDATE audit_events SET state = 'pending' WHERE segment_id = ? AND state = 'open'`, q.currentSegmentID); err != nil {
			return fmt.Errorf("sqlitequeue: roll segment: %w", err)
		}
		q.currentSegmentID = newSegmentID()
	}

	redacted := audit.Redact(e)
	payload, err := json.Marshal(redacted)
	if err != nil {
		return fmt.Errorf("sqlitequeue: marshal event: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO audit_events (segment_id, event_id, state, payload, created_at) VALUES (?, ?, 'open', ?, ?)`,
		q.currentSegmentID, e.ID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlitequeue: insert event: %w", err)
	}
	return nil
}

func (q *Queue) segmentCount(ctx context.Context, segmentID, state string) (int, error) {
	row := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events WHERE segment_id = ? AND state = ?`, segmentID, state)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Flush rolls the open segment if non-empty, then exports every
// pending segment, deleting its rows once the exporter confirms
// delivery.
func (q *Queue) Flush(ctx context.Context) error {
	if q.currentSegmentID != "" {
		if _, err := q.db.ExecContext(ctx, `UPDATE audit_events SET state = 'pending' WHERE segment_id = ? AND state = 'open'`, q.currentSegmentID); err != nil {
			return fmt.Errorf("sqlitequeue: roll open segment: %w", err)
		}
		q.currentSegmentID = newSegmentID()
	}

	segmentIDs, err := q.pendingSegmentIDs(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, id := range segmentIDs {
		if err := q.flushSegment(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (q *Queue) pendingSegmentIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT segment_id FROM audit_events WHERE state = 'pending' ORDER BY segment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queue) flushSegment(ctx context.Context, segmentID string) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE audit_events SET state = 'inflight' WHERE segment_id = ? AND state = 'pending'`, segmentID); err != nil {
		return err
	}

	events, err := q.segmentEvents(ctx, segmentID, "inflight")
	if err != nil {
		q.db.ExecContext(ctx, `UPDATE audit_events SET state = 'pending' WHERE segment_id = ? AND state = 'inflight'`, segmentID)
		return err
	}
	if len(events) == 0 {
		_, err := q.db.ExecContext(ctx, `DELETE FROM audit_events WHERE segment_id = ?`, segmentID)
		return err
	}

	key := auditqueue.IdempotencyKey(events)
	if err := q.exporter.Export(ctx, key, events); err != nil {
		q.db.ExecContext(ctx, `UPDATE audit_events SET state = 'pending' WHERE segment_id = ? AND state = 'inflight'`, segmentID)
		return fmt.Errorf("sqlitequeue: flush segment %s: %w", segmentID, err)
	}

	_, err = q.db.ExecContext(ctx, `DELETE FROM audit_events WHERE segment_id = ?`, segmentID)
	return err
}

func (q *Queue) segmentEvents(ctx context.Context, segmentID, state string) ([]audit.Event, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT payload FROM audit_events WHERE segment_id = ? AND state = ? ORDER BY seq ASC`, segmentID, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e audit.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PendingCount reports how many events remain undelivered, counting
// rows in every state, the open segment included.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	row := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events WHERE state != 'acked'`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

var segmentCounter int

func newSegmentID() string {
	segmentCounter++
	return strings.ToLower(fmt.Sprintf("seg-%d-%d", time.Now().UnixNano(), segmentCounter))
}

package auditqueue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

// ErrQueueFull is returned by Enqueue when the records not yet acked,
// across all segments, have reached MaxQueuedRecords and a flush has
// not yet made room.
var ErrQueueFull = errors.New("auditqueue: queue is full")

// ErrQueueLocked is returned when an advisory lock is held by a live,
// non-stale owner. Acquisition does not wait or retry.
var ErrQueueLocked = errors.New("auditqueue: queue is locked")

// Config controls segment sizing and lock behavior for a FileQueue.
type Config struct {
	Dir               string
	MaxSegmentRecords int
	MaxQueuedRecords  int
	FlushBatchSize    int
	LockStaleAfter    time.Duration
	FlushInterval     time.Duration
	RetryPolicy       RetryPolicy
}

// DefaultConfig returns sane defaults: 500 records per segment, a
// 100,000 record backlog ceiling, a 2-minute stale-lock window, a 30s
// flush interval, and a 100-record export batch size.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:               dir,
		MaxSegmentRecords: 500,
		MaxQueuedRecords:  100_000,
		FlushBatchSize:    100,
		LockStaleAfter:    2 * time.Minute,
		FlushInterval:     30 * time.Second,
		RetryPolicy:       DefaultRetryPolicy(),
	}
}

// FileQueue is the filesystem-backed durable audit queue: events are
// appended to an open segment, rolled to pending once full, marked
// inflight while a flush is exporting them, and finally acked (and the
// segment deleted) once the exporter confirms delivery.
type FileQueue struct {
	cfg      Config
	exporter Exporter

	mu        sync.Mutex
	openID    string
	openCount int
}

// New opens (creating if absent) the segment directory under cfg.Dir
// and returns a queue ready to accept events.
func New(cfg Config, exporter Exporter) (*FileQueue, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("auditqueue: Config.Dir is required")
	}
	if err := os.MkdirAll(segmentsDir(cfg.Dir), 0o700); err != nil {
		return nil, fmt.Errorf("auditqueue: create segments dir: %w", err)
	}
	q := &FileQueue{cfg: cfg, exporter: withRetry(exporter, cfg.RetryPolicy)}
	if err := q.recover(); err != nil {
		return nil, err
	}
	return q, nil
}

// recover restores in-memory open-segment bookkeeping after a restart,
// and moves any segment left in the inflight state back to pending —
// a crash mid-export leaves no record of whether the SIEM actually
// received the batch, so it must be retried.
func (q *FileQueue) recover() error {
	segments, err := listSegments(q.cfg.Dir)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		switch seg.state {
		case StateOpen:
			q.openID = seg.id
			count, countErr := countLines(seg.path)
			if countErr != nil {
				return countErr
			}
			q.openCount = count
		case StateInflight:
			if err := transition(q.cfg.Dir, seg.id, StateInflight, StatePending); err != nil {
				return err
			}
		}
	}
	return nil
}

func countLines(path string) (int, error) {
	events, err := readEvents(path)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (q *FileQueue) enqueueLock() *advisoryLock {
	return newAdvisoryLock(filepath.Join(q.cfg.Dir, "queue.enqueue.lock"))
}

func (q *FileQueue) flushLock() *advisoryLock {
	return newAdvisoryLock(filepath.Join(q.cfg.Dir, "queue.flush.lock"))
}

// Enqueue appends e to the current open segment, rolling it to pending
// once it reaches MaxSegmentRecords.
func (q *FileQueue) Enqueue(e audit.Event) error {
	lock := q.enqueueLock()
	if err := lock.Acquire(q.cfg.LockStaleAfter); err != nil {
		if errors.Is(err, ErrLocked) {
			return ErrQueueLocked
		}
		return err
	}
	defer lock.Release()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cfg.MaxQueuedRecords > 0 {
		total, err := q.totalQueuedLocked()
		if err != nil {
			return err
		}
		if total >= q.cfg.MaxQueuedRecords {
			return ErrQueueFull
		}
	}

	if q.openID == "" {
		q.openID = newSegmentID()
		q.openCount = 0
	}
	if q.cfg.MaxSegmentRecords > 0 && q.openCount >= q.cfg.MaxSegmentRecords {
		if err := q.rollOpenLocked(); err != nil {
			return err
		}
		q.openID = newSegmentID()
		q.openCount = 0
	}

	path := segmentPath(q.cfg.Dir, q.openID, StateOpen)
	if err := appendEvent(path, e); err != nil {
		return err
	}
	q.openCount++
	return nil
}

func (q *FileQueue) rollOpenLocked() error {
	return transition(q.cfg.Dir, q.openID, StateOpen, StatePending)
}

// Flush exports every pending segment, acking (deleting) each on
// success and leaving it pending on failure for a future Flush.
func (q *FileQueue) Flush(ctx context.Context) error {
	lock := q.flushLock()
	if err := lock.Acquire(q.cfg.LockStaleAfter); err != nil {
		if errors.Is(err, ErrLocked) {
			return ErrQueueLocked
		}
		return err
	}
	defer lock.Release()

	q.mu.Lock()
	if q.openID != "" && q.openCount > 0 {
		if err := q.rollOpenLocked(); err == nil {
			q.openID = newSegmentID()
			q.openCount = 0
		}
	}
	q.mu.Unlock()

	segments, err := listSegments(q.cfg.Dir)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, seg := range segments {
		if seg.state != StatePending {
			continue
		}
		id := seg.id
		eg.Go(func() error {
			return q.flushSegment(egCtx, id)
		})
	}
	return eg.Wait()
}

// flushSegment exports a pending segment's unacked tail in batches of
// cfg.FlushBatchSize, advancing the on-disk cursor after each
// successful batch. A crash between batches resumes from the last
// acked cursor instead of redelivering already-exported records.
func (q *FileQueue) flushSegment(ctx context.Context, id string) error {
	if err := transition(q.cfg.Dir, id, StatePending, StateInflight); err != nil {
		return err
	}

	path := segmentPath(q.cfg.Dir, id, StateInflight)
	events, err := readEvents(path)
	if err != nil {
		_ = transition(q.cfg.Dir, id, StateInflight, StatePending)
		return err
	}

	acked, err := readCursor(q.cfg.Dir, id)
	if err != nil {
		acked = 0
	}

	batchSize := q.cfg.FlushBatchSize
	if batchSize <= 0 {
		batchSize = len(events) - acked
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	for acked < len(events) {
		end := acked + batchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[acked:end]

		key := idempotencyKey(batch)
		if err := q.exporter.Export(ctx, key, batch); err != nil {
			_ = transition(q.cfg.Dir, id, StateInflight, StatePending)
			return fmt.Errorf("auditqueue: flush segment %s: %w", id, err)
		}

		acked = end
		if err := writeCursor(q.cfg.Dir, id, acked); err != nil {
			_ = transition(q.cfg.Dir, id, StateInflight, StatePending)
			return err
		}
	}

	return q.ackSegment(id)
}

func (q *FileQueue) ackSegment(id string) error {
	if err := transition(q.cfg.Dir, id, StateInflight, StateAcked); err != nil {
		return err
	}
	if err := os.Remove(segmentPath(q.cfg.Dir, id, StateAcked)); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(cursorPath(q.cfg.Dir, id))
	return nil
}

// PendingCount reports how many events across all non-open segments
// have not yet been acked. Intended for tests and health checks.
func (q *FileQueue) PendingCount() (int, error) {
	segments, err := listSegments(q.cfg.Dir)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, seg := range segments {
		if seg.state == StateAcked {
			continue
		}
		events, err := readEvents(seg.path)
		if err != nil {
			return 0, err
		}
		acked, _ := readCursor(q.cfg.Dir, seg.id)
		total += len(events) - acked
	}
	return total, nil
}

// totalQueuedLocked counts every record not yet acked, including the
// currently open segment, against MaxQueuedRecords. PendingCount
// already walks every non-acked segment state, open included.
func (q *FileQueue) totalQueuedLocked() (int, error) {
	return q.PendingCount()
}

// Run flushes the queue on cfg.FlushInterval until ctx is canceled. A
// flush error is not fatal; the segment stays pending and the next
// tick retries it.
func (q *FileQueue) Run(ctx context.Context) {
	if q.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = q.Flush(ctx)
		}
	}
}

var (
	ulidMu sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newSegmentID returns a lexicographically sortable segment identifier
// (creation order matches id order, per listSegments).
func newSegmentID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

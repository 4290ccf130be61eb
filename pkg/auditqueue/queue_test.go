package auditqueue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

func newTestEvent(t *testing.T, eventType string) audit.Event {
	t.Helper()
	e, err := audit.New(eventType, audit.Actor{Type: "user", ID: "u1"}, true, map[string]any{"k": "v"})
	require.NoError(t, err)
	return e
}

type recordingExporter struct {
	mu      sync.Mutex
	batches [][]audit.Event
	keys    []string
	failN   int
}

func (r *recordingExporter) Export(ctx context.Context, key string, events []audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return assert.AnError
	}
	cp := make([]audit.Event, len(events))
	copy(cp, events)
	r.batches = append(r.batches, cp)
	r.keys = append(r.keys, key)
	return nil
}

func TestFileQueue_EnqueueThenFlush_ExportsAndAcks(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{}
	q, err := New(DefaultConfig(dir), exp)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))
	require.NoError(t, q.Enqueue(newTestEvent(t, "file.write")))

	require.NoError(t, q.Flush(context.Background()))

	require.Len(t, exp.batches, 1)
	assert.Len(t, exp.batches[0], 2)

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFileQueue_SegmentRolls_WhenMaxRecordsReached(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MaxSegmentRecords = 2
	exp := &recordingExporter{}
	q, err := New(cfg, exp)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))
	}

	require.NoError(t, q.Flush(context.Background()))

	var total int
	for _, b := range exp.batches {
		total += len(b)
	}
	assert.Equal(t, 5, total)
}

func TestFileQueue_FlushFailure_LeavesSegmentPendingForRetry(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{failN: 1}
	cfg := DefaultConfig(dir)
	cfg.RetryPolicy = RetryPolicy{MaxAttempts: 1}
	q, err := New(cfg, exp)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))

	err = q.Flush(context.Background())
	require.Error(t, err)

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, q.Flush(context.Background()))
	count, err = q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFileQueue_IdempotencyKey_StableAcrossRetries(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{failN: 1}
	q, err := New(DefaultConfig(dir), exp)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newTestEvent(t, "ai.toolInvocation")))

	_ = q.Flush(context.Background())
	require.NoError(t, q.Flush(context.Background()))

	require.Len(t, exp.keys, 1)
	assert.NotEmpty(t, exp.keys[0])
}

func TestFileQueue_Reopen_DoesNotRedeliverAckedEvents(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{}
	q, err := New(DefaultConfig(dir), exp)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))
	require.NoError(t, q.Flush(context.Background()))
	require.Len(t, exp.batches, 1)

	segments, err := listSegments(dir)
	require.NoError(t, err)
	for _, seg := range segments {
		assert.NotEqual(t, StateInflight, seg.state)
	}

	q2, err := New(DefaultConfig(dir), exp)
	require.NoError(t, err)
	require.NoError(t, q2.Enqueue(newTestEvent(t, "file.write")))
	require.NoError(t, q2.Flush(context.Background()))

	var total int
	for _, b := range exp.batches {
		total += len(b)
	}
	assert.Equal(t, 2, total)
}

func TestFileQueue_RecoverFromInflightCrash_ReDeliversSegment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(segmentsDir(dir), 0o700))

	id := newSegmentID()
	e := newTestEvent(t, "file.read")
	require.NoError(t, appendEvent(segmentPath(dir, id, StateOpen), e))
	require.NoError(t, transition(dir, id, StateOpen, StatePending))
	require.NoError(t, transition(dir, id, StatePending, StateInflight))

	exp := &recordingExporter{}
	q, err := New(DefaultConfig(dir), exp)
	require.NoError(t, err)

	require.NoError(t, q.Flush(context.Background()))
	require.Len(t, exp.batches, 1)
	assert.Equal(t, e.ID, exp.batches[0][0].ID)
}

func TestFileQueue_Enqueue_ReturnsQueueFullAtCeiling(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MaxQueuedRecords = 2
	exp := &recordingExporter{}
	q, err := New(cfg, exp)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))
	require.NoError(t, q.Enqueue(newTestEvent(t, "file.read")))

	err = q.Enqueue(newTestEvent(t, "file.read"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestAdvisoryLock_StolenWhenStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.lock")

	l1 := newAdvisoryLock(path)
	require.NoError(t, l1.Acquire(0))

	l2 := newAdvisoryLock(path)
	require.NoError(t, l2.Acquire(0))
}

func TestAdvisoryLock_DeniedWhenFreshAndHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.lock")

	l1 := newAdvisoryLock(path)
	require.NoError(t, l1.Acquire(time.Hour))
	defer l1.Release()

	l2 := newAdvisoryLock(path)
	err := l2.Acquire(time.Hour)
	assert.ErrorIs(t, err, ErrLocked)
}

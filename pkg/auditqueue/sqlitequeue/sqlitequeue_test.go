package sqlitequeue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

type recordingExporter struct {
	mu      sync.Mutex
	batches [][]audit.Event
}

func (r *recordingExporter) Export(ctx context.Context, key string, events []audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]audit.Event, len(events))
	copy(cp, events)
	r.batches = append(r.batches, cp)
	return nil
}

func newTestEvent(t *testing.T, eventType string) audit.Event {
	t.Helper()
	e, err := audit.New(eventType, audit.Actor{Type: "user", ID: "u1"}, true, map[string]any{"k": "v"})
	require.NoError(t, err)
	return e
}

func TestQueue_EnqueueThenFlush_ExportsEvents(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{}
	q, err := Open(DefaultConfig(filepath.Join(dir, "audit.db")), exp)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestEvent(t, "file.read")))
	require.NoError(t, q.Enqueue(ctx, newTestEvent(t, "file.write")))

	require.NoError(t, q.Flush(ctx))
	require.Len(t, exp.batches, 1)
	assert.Len(t, exp.batches[0], 2)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQueue_SegmentRolls_WhenMaxRecordsReached(t *testing.T) {
	dir := t.TempDir()
	exp := &recordingExporter{}
	cfg := DefaultConfig(filepath.Join(dir, "audit.db"))
	cfg.MaxSegmentRecords = 2
	q, err := Open(cfg, exp)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, newTestEvent(t, "file.read")))
	}
	require.NoError(t, q.Flush(ctx))

	var total int
	for _, b := range exp.batches {
		total += len(b)
	}
	assert.Equal(t, 5, total)
}

func TestQueue_ReopenResumesPendingSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")
	exp := &recordingExporter{}

	q, err := Open(DefaultConfig(path), exp)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestEvent(t, "file.read")))
	require.NoError(t, q.Close())

	q2, err := Open(DefaultConfig(path), exp)
	require.NoError(t, err)
	defer q2.Close()
	require.NoError(t, q2.Flush(ctx))

	require.Len(t, exp.batches, 1)
	assert.Len(t, exp.batches[0], 1)
}

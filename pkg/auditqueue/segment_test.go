package auditqueue

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_TransitionsThroughLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(segmentsDir(dir), 0o700))

	id := "0001"
	path := segmentPath(dir, id, StateOpen)
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	require.NoError(t, transition(dir, id, StateOpen, StatePending))
	_, err := os.Stat(segmentPath(dir, id, StatePending))
	require.NoError(t, err)

	require.NoError(t, transition(dir, id, StatePending, StateInflight))
	_, err = os.Stat(segmentPath(dir, id, StateInflight))
	require.NoError(t, err)

	require.NoError(t, transition(dir, id, StateInflight, StateAcked))
	_, err = os.Stat(segmentPath(dir, id, StateAcked))
	require.NoError(t, err)
}

func TestCursor_AtomicWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(segmentsDir(dir), 0o700))

	acked, err := readCursor(dir, "seg1")
	require.NoError(t, err)
	assert.Equal(t, 0, acked)

	require.NoError(t, writeCursor(dir, "seg1", 7))
	acked, err = readCursor(dir, "seg1")
	require.NoError(t, err)
	assert.Equal(t, 7, acked)

	_, statErr := os.Stat(cursorPath(dir, "seg1") + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestListSegments_OrdersByID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(segmentsDir(dir), 0o700))

	require.NoError(t, os.WriteFile(segmentPath(dir, "0002", StatePending), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(segmentPath(dir, "0001", StateOpen), []byte(""), 0o644))

	segments, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "0001", segments[0].id)
	assert.Equal(t, StateOpen, segments[0].state)
	assert.Equal(t, "0002", segments[1].id)
	assert.Equal(t, StatePending, segments[1].state)
}

package obslog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_CreatesSessionAndErrorFiles(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-1")
	require.NoError(t, err)
	defer logger.Close()

	assert.FileExists(t, filepath.Join(baseDir, "sessions", "sess-1.jsonl"))
	assert.FileExists(t, filepath.Join(baseDir, "errors.jsonl"))
	assert.Equal(t, LevelInfo, logger.minLevel)
}

func TestNewLogger_ErrorsWhenBaseDirIsAFile(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "not-a-dir")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	_, err := NewLogger(filePath, "sess")
	assert.Error(t, err)
}

func TestLog_FillsTimestampAndSessionID(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-2")
	require.NoError(t, err)
	defer logger.Close()

	before := time.Now()
	require.NoError(t, logger.Log(Event{Level: LevelInfo, Category: CategorySandbox, EventType: "worker_started"}))
	after := time.Now()

	events, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-2.jsonl"), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-2", events[0].SessionID)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestLog_ErrorLevelAlsoWritesErrorFile(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-3")
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Error(CategoryDLP, "policy_eval_failed", "policy lookup failed", nil))

	sessionEvents, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-3.jsonl"), 1)
	require.NoError(t, err)
	require.Len(t, sessionEvents, 1)

	errorEvents, err := ReadRecentEvents(filepath.Join(baseDir, "errors.jsonl"), 1)
	require.NoError(t, err)
	require.Len(t, errorEvents, 1)
	assert.Equal(t, "policy lookup failed", errorEvents[0].Message)
}

func TestSetMinLevel_FiltersBelowThreshold(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-4")
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Debug(CategorySandbox, "d", "", nil))
	events, _ := ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-4.jsonl"), 10)
	assert.Len(t, events, 0)

	logger.SetMinLevel(LevelDebug)
	require.NoError(t, logger.Debug(CategorySandbox, "d2", "", nil))
	events, _ = ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-4.jsonl"), 10)
	assert.Len(t, events, 1)
}

func TestShouldLog_RankOrdering(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-5")
	require.NoError(t, err)
	defer logger.Close()

	logger.SetMinLevel(LevelWarn)
	assert.False(t, logger.shouldLog(LevelDebug))
	assert.False(t, logger.shouldLog(LevelInfo))
	assert.True(t, logger.shouldLog(LevelWarn))
	assert.True(t, logger.shouldLog(LevelError))
}

func TestReadRecentEvents_ReturnsTail(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-6")
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, logger.Info(CategorySIEM, "export", "", map[string]any{"i": i}))
	}

	events, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-6.jsonl"), 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, float64(7), events[0].Details["i"])
	assert.Equal(t, float64(9), events[2].Details["i"])
}

func TestReadRecentEvents_NonexistentFileErrors(t *testing.T) {
	_, err := ReadRecentEvents(filepath.Join(t.TempDir(), "missing.jsonl"), 5)
	assert.Error(t, err)
}

func TestConcurrentLog_IsSafe(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "sess-7")
	require.NoError(t, err)
	defer logger.Close()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 10; j++ {
				logger.Info(CategorySandbox, "concurrent", "", map[string]any{"n": n, "j": j})
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	events, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "sess-7.jsonl"), 200)
	require.NoError(t, err)
	assert.Len(t, events, 100)
}

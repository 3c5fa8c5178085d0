package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRecentEntriesRingBuffer(t *testing.T) {
	l, err := New(Options{ConsoleLevel: LogLevelError, RingSize: 3})
	require.NoError(t, err)
	defer l.Close()

	l.Info("one", nil)
	l.Info("two", nil)
	l.Info("three", nil)
	l.Info("four", nil)

	entries := l.RecentEntries(10)
	require.Len(t, entries, 3)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "four", entries[2].Message)
	assert.NotEmpty(t, entries[0].ID)
}

func TestLoggerWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driftlens.log")

	l, err := New(Options{FilePath: path, FileLevel: LogLevelInfo, MaxSizeMB: 1})
	require.NoError(t, err)

	l.Info("hello", map[string]interface{}{"job_id": "abc"})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "abc")
}

func TestContextLoggerMergesFields(t *testing.T) {
	l, err := New(Options{ConsoleLevel: LogLevelError, RingSize: 5})
	require.NoError(t, err)
	defer l.Close()

	ctx := l.WithFields(map[string]interface{}{"job_id": "j1"})
	ctx.Info("analysis started", map[string]interface{}{"dimensions": 3})

	entries := l.RecentEntries(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "j1", entries[0].Fields["job_id"])
	assert.Equal(t, 3, entries[0].Fields["dimensions"])
}

func TestPerformanceMonitorRecordsTimings(t *testing.T) {
	l, err := New(Options{ConsoleLevel: LogLevelError})
	require.NoError(t, err)
	defer l.Close()

	pm := NewPerformanceMonitor(l)
	timer := pm.StartTimer("cube_subset")
	time.Sleep(time.Millisecond)
	d := timer.Stop()
	assert.Greater(t, d, time.Duration(0))

	snap := pm.Snapshot()
	m, ok := snap["cube_subset"]
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Count)
	assert.GreaterOrEqual(t, m.TotalTime, d)
}

package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	require.NoError(t, l.LogSession(SessionStarted, "a", "ffmpeg launched", &Details{OutputPath: "out.mkv", PID: 42}))
	require.NoError(t, l.LogSession(RecordingStarted, "a", "", nil))
	require.NoError(t, l.LogSession(SessionStarted, "b", "", nil))
	require.NoError(t, l.LogSession(SessionExited, "a", "", &Details{DurationMs: 5000}))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	events, err := ReadLast(path, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, SessionExited, events[0].Type)
	assert.Equal(t, int64(5000), events[0].Details.DurationMs)
	assert.Equal(t, SessionStarted, events[3].Type)
	assert.Equal(t, 42, events[3].Details.PID)
	assert.False(t, events[3].Timestamp.IsZero())

	events, err = ReadLast(path, 2, "a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, SessionExited, events[0].Type)
	assert.Equal(t, RecordingStarted, events[1].Type)
}

func TestReadLastSkipsMalformedAndMissing(t *testing.T) {
	dir := t.TempDir()

	events, err := ReadLast(filepath.Join(dir, "missing.jsonl"), 5, "")
	require.NoError(t, err)
	assert.Empty(t, events)

	path := filepath.Join(dir, "events.jsonl")
	content := `{"ts":"2026-01-02T03:04:05Z","type":"session_started","session_id":"x"}` + "\nnot json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	events, err = ReadLast(path, 5, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].SessionID)
}

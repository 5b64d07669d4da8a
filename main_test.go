package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-screenrec/internal/config"
	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
)

func TestSplitCommand(t *testing.T) {
	cmd, rest := splitCommand([]string{"devices"})
	assert.Equal(t, "devices", cmd)
	assert.Empty(t, rest)

	cmd, rest = splitCommand([]string{"--duration", "10s"})
	assert.Equal(t, "record", cmd)
	assert.Equal(t, []string{"--duration", "10s"}, rest)

	cmd, rest = splitCommand(nil)
	assert.Equal(t, "record", cmd)
	assert.Empty(t, rest)
}

func TestFlagsOverrideSnapshot(t *testing.T) {
	var opts cliOptions
	fs := newFlagSet(&opts, &bytes.Buffer{})
	require.NoError(t, fs.Parse([]string{
		"-d", "90s", "--framerate", "60", "--no-mic", "--listen", ":8090", "--log-level", "debug", "-w", "0x3a00007",
	}))

	snap := config.New(filepath.Join(t.TempDir(), "config.json")).Snapshot()
	require.NoError(t, opts.applyTo(&snap))

	assert.Equal(t, 90*time.Second, snap.Duration)
	assert.Equal(t, 60, snap.FrameRate)
	assert.True(t, snap.Mic.Disabled)
	assert.False(t, snap.Desktop.Disabled)
	assert.Equal(t, ":8090", snap.Listen)
	assert.Equal(t, slog.LevelDebug, snap.LogLevel)
	assert.Equal(t, "0x3a00007", opts.window)
}

func TestFlagsRejectInvalidValues(t *testing.T) {
	for _, args := range [][]string{
		{"--framerate", "-1"},
		{"--duration", "-5s"},
		{"--log-level", "chatty"},
	} {
		var opts cliOptions
		require.NoError(t, newFlagSet(&opts, &bytes.Buffer{}).Parse(args))
		snap := config.Snapshot{}
		assert.ErrorIs(t, opts.applyTo(&snap), errUsage, "%v", args)
	}
}

func TestRunVersionAndUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"--version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "screenrec "+Version)

	stdout.Reset()
	assert.Equal(t, 2, run([]string{"--no-such-flag"}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"record", "extra"}, &stdout, &stderr))
	assert.Equal(t, 0, run([]string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: screenrec")
}

func TestRunEvents(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"log": {"event_log": "`+eventsPath+`"}}`), 0o600))

	logger, err := eventlog.NewLogger(eventsPath)
	require.NoError(t, err)
	require.NoError(t, logger.LogSession(eventlog.SessionStarted, "abc", "ffmpeg launched", &eventlog.Details{OutputPath: "out.mkv"}))
	require.NoError(t, logger.LogSession(eventlog.SessionExited, "abc", "ffmpeg exited", &eventlog.Details{DurationMs: 65000}))
	require.NoError(t, logger.Close())

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"events", "--config", configPath, "-n", "1"}, &stdout, &stderr), stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "session_exited")
	assert.Contains(t, out, "1m 5s")
	assert.NotContains(t, out, "session_started")
}

func TestRunBadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"capture": {"framerate": -1}}`), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"doctor", "--config", configPath}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "failed to load config")
}

package ffmpeg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc 13", "v6.1.1"},
		{"ffmpeg version 4.4.2-0ubuntu0.22.04.1 Copyright (c) 2000-2021", "v4.4.2"},
		{"ffmpeg version n7.0 Copyright (c) 2000-2024", "v7.0.0"},
		{"ffmpeg version 5.1 Copyright", "v5.1.0"},
		{"ffmpeg version N-112345-gabcdef0123 Copyright", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseVersion(tt.output), tt.output)
	}
}

func TestSyncArgs(t *testing.T) {
	assert.Equal(t, []string{"-vsync", "0"}, SyncArgs(""))
	assert.Equal(t, []string{"-vsync", "0"}, SyncArgs("v5.0.3"))
	assert.Equal(t, []string{"-fps_mode", "passthrough"}, SyncArgs("v5.1.0"))
	assert.Equal(t, []string{"-fps_mode", "passthrough"}, SyncArgs("v7.0.0"))
}

func TestSupportsWindowCapture(t *testing.T) {
	assert.True(t, SupportsWindowCapture(""))
	assert.False(t, SupportsWindowCapture("v4.4.2"))
	assert.True(t, SupportsWindowCapture("v5.0.0"))
	assert.True(t, SupportsWindowCapture("v6.1.1"))
}

func TestDetectVersion(t *testing.T) {
	run := func(_ context.Context, name string, args ...string) (string, string, error) {
		assert.Equal(t, "/usr/bin/ffmpeg", name)
		assert.Equal(t, []string{"-hide_banner", "-version"}, args)
		return "ffmpeg version 6.0 Copyright\n", "", nil
	}
	v, err := DetectVersion(context.Background(), run, "/usr/bin/ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, "v6.0.0", v)
	assert.Equal(t, "6.0.0", DisplayVersion(v))
	assert.Equal(t, "unknown", DisplayVersion(""))

	failing := func(context.Context, string, ...string) (string, string, error) {
		return "", "", errors.New("exec: not found")
	}
	_, err = DetectVersion(context.Background(), failing, "ffmpeg")
	assert.Error(t, err)
}

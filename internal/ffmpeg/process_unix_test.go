//go:build !windows

package ffmpeg

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartProcessOwnProcessGroup(t *testing.T) {
	p, err := StartProcess("sh", []string{"-c", "exec sleep 30"})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Cancel()
		_ = p.Cmd.Wait()
	})

	pgid, err := syscall.Getpgid(p.PID())
	require.NoError(t, err)
	assert.Equal(t, p.PID(), pgid, "ffmpeg leads its own process group")
	assert.NotEqual(t, syscall.Getpgrp(), pgid, "terminal interrupts must not reach ffmpeg directly")
}

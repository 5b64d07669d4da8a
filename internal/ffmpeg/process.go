// Package ffmpeg builds FFmpeg window capture commands and launches the process.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// Process represents a running FFmpeg subprocess.
type Process struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc // Kills the process outright
	Stderr io.ReadCloser      // FFmpeg diagnostics, read by the session watcher
}

// StartProcess launches an FFmpeg subprocess with its stderr piped back.
// Launch errors wrap types.ErrLaunchFailure.
func StartProcess(ffmpegPath string, args []string) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	util.DetachProcessGroup(cmd)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create stderr pipe: %w", types.ErrLaunchFailure, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stderrPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stderr pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("%w: start %s: %w", types.ErrLaunchFailure, ffmpegPath, err)
	}

	return &Process{
		Cmd:    cmd,
		Cancel: cancel,
		Stderr: stderrPipe,
	}, nil
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

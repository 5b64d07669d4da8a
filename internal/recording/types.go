// Package recording supervises FFmpeg window capture sessions.
package recording

import (
	"errors"
)

// DefaultReadyMarker is the line FFmpeg writes to stderr once capture is running.
const DefaultReadyMarker = "Press [q] to stop, [?] for help"

// maxLineLength caps a single diagnostic line; longer chunks are passed through as-is.
const maxLineLength = 64 * 1024

// tailLines is the number of diagnostic lines kept for error reporting.
const tailLines = 20

// Sentinel errors for recording sessions.
var (
	// ErrExitedBeforeReady is returned by WaitReady when FFmpeg exits without starting capture.
	ErrExitedBeforeReady = errors.New("ffmpeg exited before recording started")

	// ErrKillTimeout is returned by Close when FFmpeg ignored the stop request and had to be killed.
	ErrKillTimeout = errors.New("ffmpeg did not exit in time and was killed")
)

// Package types provides shared type definitions used across the recorder.
package types

import (
	"time"
)

// SessionState represents the lifecycle state of a recording session.
type SessionState string

const (
	// StateStarting indicates FFmpeg is launched but has not begun capturing yet.
	StateStarting SessionState = "starting"
	// StateRecording indicates FFmpeg reported that capture is running.
	StateRecording SessionState = "recording"
	// StateExited indicates the FFmpeg process has exited. It is terminal.
	StateExited SessionState = "exited"
)

const (
	// ReadyPollInterval is the default interval for polling session readiness.
	ReadyPollInterval = 10 * time.Millisecond
	// ShutdownTimeout is the duration to wait for FFmpeg to finalize the output after stop.
	ShutdownTimeout = 10000 * time.Millisecond
)

// MasterTrackTitle is the metadata title of the merged audio track.
const MasterTrackTitle = "All Audio"

// WindowGeometry describes the on-screen placement of a single window.
type WindowGeometry struct {
	WindowID string `json:"window_id"` // Opaque window system identifier
	Screen   int    `json:"screen"`    // Screen index the window lives on
	X        int    `json:"x"`         // Left edge in pixels
	Y        int    `json:"y"`         // Top edge in pixels
	Width    int    `json:"width"`     // Width in pixels
	Height   int    `json:"height"`    // Height in pixels
}

// Size returns the width and height as a video size pair.
func (g WindowGeometry) Size() []int {
	return []int{g.Width, g.Height}
}

// AudioTrack is a capturable audio endpoint plus the title it gets in the output.
type AudioTrack struct {
	Source string `json:"source" validate:"required"` // PulseAudio source or monitor name
	Label  string `json:"label" validate:"required"`  // Track title written to stream metadata
}

// CaptureSpec describes a single window recording.
// Track order determines input stream indices and output metadata order.
type CaptureSpec struct {
	WindowID   string       `json:"window_id" validate:"required"`
	VideoSize  []int        `json:"video_size" validate:"len=2,dive,gte=0"`
	FrameRate  int          `json:"framerate" validate:"gt=0"`
	Tracks     []AudioTrack `json:"tracks" validate:"dive"`
	OutputPath string       `json:"output_path" validate:"required"`
}

// HasAudio reports whether the spec captures any audio.
func (s *CaptureSpec) HasAudio() bool {
	return len(s.Tracks) > 0
}

// SessionStatus is a point-in-time view of a recording session.
type SessionStatus struct {
	ID         string       `json:"id"`                 // Session identifier
	State      SessionState `json:"state"`              // Current lifecycle state
	Live       bool         `json:"live"`               // FFmpeg has not exited yet
	Recording  bool         `json:"recording"`          // FFmpeg is actively capturing
	Stopping   bool         `json:"stopping,omitzero"`  // Termination was requested
	OutputPath string       `json:"output_path"`        // Destination file
	StartedAt  time.Time    `json:"started_at"`         // When FFmpeg was launched
	ReadyAt    time.Time    `json:"ready_at,omitzero"`  // When capture began
	ExitedAt   time.Time    `json:"exited_at,omitzero"` // When FFmpeg exited
	Duration   float64      `json:"duration_seconds"`   // Seconds since capture began
	Error      string       `json:"error,omitempty"`    // Last FFmpeg error line, if it failed
	Tracks     []AudioTrack `json:"tracks,omitempty"`   // Captured audio tracks
}

// WSStatusResponse is sent to clients with the current session status.
type WSStatusResponse struct {
	Type    string         `json:"type"`    // Message type identifier
	Session *SessionStatus `json:"session"` // Active session, null before one starts
	Version VersionInfo    `json:"version"` // Version information
}

// VersionInfo contains build and FFmpeg version data.
type VersionInfo struct {
	Current       string `json:"current"`                  // Current version
	Commit        string `json:"commit,omitempty"`         // Git commit hash
	BuildTime     string `json:"build_time,omitempty"`     // Build timestamp
	FFmpegVersion string `json:"ffmpeg_version,omitempty"` // Detected FFmpeg version
}

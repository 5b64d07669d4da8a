// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultFrameRate         = 30
	DefaultOutputDir         = "."
	DefaultContainer         = "mkv"
	DefaultDesktopLabel      = "Desktop Audio"
	DefaultMicLabel          = "Mic"
	DefaultLogLevel          = "info"
	DefaultShutdownTimeoutMs = 10000
	DefaultDiagnosticsMaxMB  = 20
	DefaultDiagnosticsKeep   = 3
)

// EnvPrefix is the prefix of environment variables that override the config file.
const EnvPrefix = "SCREENREC"

// SystemConfig holds system-level settings.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Listen     string `json:"listen"`      // Status server address (empty = disabled)
	APIKey     string `json:"api_key"`     // Required as X-API-Key by the stop controls (empty = local origins only)
}

// CaptureConfig holds FFmpeg capture settings.
type CaptureConfig struct {
	FrameRate         int    `json:"framerate"`           // Frames per second
	OutputDir         string `json:"output_dir"`          // Directory for generated file names
	Container         string `json:"container"`           // File extension for generated file names
	DurationSeconds   int    `json:"duration_seconds"`    // Stop after this long (0 = until interrupted)
	VideoBackend      string `json:"video_backend"`       // FFmpeg input format for the window grab
	AudioBackend      string `json:"audio_backend"`       // FFmpeg input format for audio sources
	Display           string `json:"display"`             // X display locator passed to -i
	ThreadQueueSize   int    `json:"thread_queue_size"`   // Packet queue size per input
	VideoCodecArgs    string `json:"video_codec_args"`    // Space separated encoder arguments
	AudioCodec        string `json:"audio_codec"`         // Encoder for every audio stream
	ReadyMarker       string `json:"ready_marker"`        // stderr line that signals capture started
	ShutdownTimeoutMs int64  `json:"shutdown_timeout_ms"` // Wait for FFmpeg to finalize before killing
}

// TrackConfig selects one audio source.
type TrackConfig struct {
	Disabled bool   `json:"disabled"` // Leave this track out
	Source   string `json:"source"`   // PulseAudio name (empty = current default)
	Label    string `json:"label"`    // Track title in the output file
}

// AudioConfig holds the audio tracks to capture.
type AudioConfig struct {
	Desktop TrackConfig `json:"desktop"` // Monitor of the default sink
	Mic     TrackConfig `json:"mic"`     // Default source
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level              string `json:"level"`               // debug, info, warn or error
	EventLog           string `json:"event_log"`           // Session event log (empty = default path)
	DiagnosticsFile    string `json:"diagnostics_file"`    // FFmpeg stderr copy (empty = stderr)
	DiagnosticsMaxMB   int    `json:"diagnostics_max_mb"`  // Rotate the diagnostics file at this size
	DiagnosticsBackups int    `json:"diagnostics_backups"` // Rotated diagnostics files to keep
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System  SystemConfig  `json:"system"`
	Capture CaptureConfig `json:"capture"`
	Audio   AudioConfig   `json:"audio"`
	Log     LogConfig     `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// envOverrides lists the settings that can be set from the environment.
type envOverrides struct {
	FFmpegPath string `envconfig:"FFMPEG_PATH"`
	OutputDir  string `envconfig:"OUTPUT_DIR"`
	FrameRate  int    `envconfig:"FRAMERATE"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	Listen     string `envconfig:"LISTEN"`
	APIKey     string `envconfig:"API_KEY"`
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "screenrec", "config.json")
	}
	return "config.json"
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	opts := ffmpeg.DefaultCaptureOptions()
	return &Config{
		Capture: CaptureConfig{
			FrameRate:         DefaultFrameRate,
			OutputDir:         DefaultOutputDir,
			Container:         DefaultContainer,
			VideoBackend:      opts.VideoBackend,
			AudioBackend:      opts.AudioBackend,
			Display:           opts.Display,
			ThreadQueueSize:   opts.ThreadQueueSize,
			VideoCodecArgs:    ffmpeg.DefaultVideoCodecArgs,
			AudioCodec:        opts.AudioCodec,
			ShutdownTimeoutMs: DefaultShutdownTimeoutMs,
		},
		Audio: AudioConfig{
			Desktop: TrackConfig{Label: DefaultDesktopLabel},
			Mic:     TrackConfig{Label: DefaultMicLabel},
		},
		Log: LogConfig{
			Level:              DefaultLogLevel,
			DiagnosticsMaxMB:   DefaultDiagnosticsMaxMB,
			DiagnosticsBackups: DefaultDiagnosticsKeep,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
// Environment overrides are applied on top of the file.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		if err := c.saveLocked(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
	}

	c.applyDefaults()

	if err := c.applyEnvLocked(); err != nil {
		return err
	}

	return c.validate()
}

// applyEnvLocked overrides settings from SCREENREC_* variables. Caller must hold c.mu.
func (c *Config) applyEnvLocked() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return util.WrapError("read environment", err)
	}

	c.System.FFmpegPath = cmp.Or(env.FFmpegPath, c.System.FFmpegPath)
	c.System.Listen = cmp.Or(env.Listen, c.System.Listen)
	c.System.APIKey = cmp.Or(env.APIKey, c.System.APIKey)
	c.Capture.OutputDir = cmp.Or(env.OutputDir, c.Capture.OutputDir)
	c.Capture.FrameRate = cmp.Or(env.FrameRate, c.Capture.FrameRate)
	c.Log.Level = cmp.Or(env.LogLevel, c.Log.Level)
	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if c.Capture.FrameRate <= 0 {
		return fmt.Errorf("invalid framerate %d: must be positive", c.Capture.FrameRate)
	}
	if c.Capture.DurationSeconds < 0 {
		return fmt.Errorf("invalid duration_seconds %d: must not be negative", c.Capture.DurationSeconds)
	}
	if c.Capture.ThreadQueueSize <= 0 {
		return fmt.Errorf("invalid thread_queue_size %d: must be positive", c.Capture.ThreadQueueSize)
	}
	if strings.ContainsAny(c.Capture.Container, `/\.`) {
		return fmt.Errorf("invalid container %q: must be a bare file extension", c.Capture.Container)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !c.Audio.Desktop.Disabled && !c.Audio.Mic.Disabled && c.Audio.Desktop.Label == c.Audio.Mic.Label {
		return fmt.Errorf("invalid audio labels: desktop and mic are both %q", c.Audio.Desktop.Label)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := New("")

	// Capture defaults
	c.Capture.FrameRate = cmp.Or(c.Capture.FrameRate, defaults.Capture.FrameRate)
	c.Capture.OutputDir = cmp.Or(c.Capture.OutputDir, defaults.Capture.OutputDir)
	c.Capture.Container = cmp.Or(c.Capture.Container, defaults.Capture.Container)
	c.Capture.VideoBackend = cmp.Or(c.Capture.VideoBackend, defaults.Capture.VideoBackend)
	c.Capture.AudioBackend = cmp.Or(c.Capture.AudioBackend, defaults.Capture.AudioBackend)
	c.Capture.Display = cmp.Or(c.Capture.Display, defaults.Capture.Display)
	c.Capture.ThreadQueueSize = cmp.Or(c.Capture.ThreadQueueSize, defaults.Capture.ThreadQueueSize)
	c.Capture.VideoCodecArgs = cmp.Or(strings.TrimSpace(c.Capture.VideoCodecArgs), defaults.Capture.VideoCodecArgs)
	c.Capture.AudioCodec = cmp.Or(c.Capture.AudioCodec, defaults.Capture.AudioCodec)
	c.Capture.ShutdownTimeoutMs = cmp.Or(c.Capture.ShutdownTimeoutMs, defaults.Capture.ShutdownTimeoutMs)
	// Audio defaults
	c.Audio.Desktop.Label = cmp.Or(c.Audio.Desktop.Label, defaults.Audio.Desktop.Label)
	c.Audio.Mic.Label = cmp.Or(c.Audio.Mic.Label, defaults.Audio.Mic.Label)
	// Log defaults
	c.Log.Level = cmp.Or(c.Log.Level, defaults.Log.Level)
	c.Log.DiagnosticsMaxMB = cmp.Or(c.Log.DiagnosticsMaxMB, defaults.Log.DiagnosticsMaxMB)
	c.Log.DiagnosticsBackups = cmp.Or(c.Log.DiagnosticsBackups, defaults.Log.DiagnosticsBackups)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Path returns the config file location.
func (c *Config) Path() string {
	return c.filePath
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", level)
	}
	return l, nil
}

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	FFmpegPath string
	Listen     string
	APIKey     string

	// Capture
	FrameRate       int
	OutputDir       string
	Container       string
	Duration        time.Duration
	ReadyMarker     string
	ShutdownTimeout time.Duration
	Capture         ffmpeg.CaptureOptions

	// Audio
	Desktop TrackConfig
	Mic     TrackConfig

	// Logging
	LogLevel           slog.Level
	EventLogPath       string
	DiagnosticsFile    string
	DiagnosticsMaxMB   int
	DiagnosticsBackups int
}

// Snapshot returns a point-in-time copy of all configuration values.
// The capture options carry the default sync flag; callers pick the
// version-specific one once FFmpeg has been probed.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	return Snapshot{
		// System
		FFmpegPath: c.System.FFmpegPath,
		Listen:     c.System.Listen,
		APIKey:     c.System.APIKey,

		// Capture
		FrameRate:       c.Capture.FrameRate,
		OutputDir:       c.Capture.OutputDir,
		Container:       c.Capture.Container,
		Duration:        time.Duration(c.Capture.DurationSeconds) * time.Second,
		ReadyMarker:     c.Capture.ReadyMarker,
		ShutdownTimeout: time.Duration(c.Capture.ShutdownTimeoutMs) * time.Millisecond,
		Capture: ffmpeg.CaptureOptions{
			VideoBackend:    c.Capture.VideoBackend,
			AudioBackend:    c.Capture.AudioBackend,
			ThreadQueueSize: c.Capture.ThreadQueueSize,
			Display:         c.Capture.Display,
			VideoCodecArgs:  strings.Fields(c.Capture.VideoCodecArgs),
			AudioCodec:      c.Capture.AudioCodec,
			SyncArgs:        ffmpeg.SyncArgs(""),
		},

		// Audio
		Desktop: c.Audio.Desktop,
		Mic:     c.Audio.Mic,

		// Logging
		LogLevel:           level,
		EventLogPath:       cmp.Or(c.Log.EventLog, eventlog.DefaultLogPath()),
		DiagnosticsFile:    c.Log.DiagnosticsFile,
		DiagnosticsMaxMB:   c.Log.DiagnosticsMaxMB,
		DiagnosticsBackups: c.Log.DiagnosticsBackups,
	}
}

// OutputPath returns a timestamped file name in the output directory.
func (s *Snapshot) OutputPath(now time.Time) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("screenrec-%s.%s", now.Format("20060102-150405"), s.Container))
}

// HasAudio reports whether any audio track is enabled.
func (s *Snapshot) HasAudio() bool {
	return !s.Desktop.Disabled || !s.Mic.Disabled
}

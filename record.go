package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/oszuidwest/zwfm-screenrec/internal/audio"
	"github.com/oszuidwest/zwfm-screenrec/internal/config"
	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/recording"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
	"github.com/oszuidwest/zwfm-screenrec/internal/window"
)

// serverShutdownTimeout bounds the status server shutdown after recording ends.
const serverShutdownTimeout = 5 * time.Second

// windowLocator finds the window to capture.
type windowLocator interface {
	ActiveWindowID(ctx context.Context) (string, error)
	Geometry(ctx context.Context, id string) (types.WindowGeometry, error)
}

// endpointLister finds the default audio devices.
type endpointLister interface {
	DefaultSink(ctx context.Context) (audio.Endpoint, bool, error)
	DefaultSource(ctx context.Context) (audio.Endpoint, bool, error)
}

// recordRequest is a resolved record invocation.
type recordRequest struct {
	snap     *config.Snapshot
	windowID string // Empty = the active window
	output   string // Empty = generated from the snapshot
	dryRun   bool
}

// buildSpec resolves the window and audio devices into a capture spec.
func buildSpec(ctx context.Context, req *recordRequest, windows windowLocator, endpoints endpointLister, now time.Time) (*types.CaptureSpec, error) {
	id := req.windowID
	if id == "" {
		active, err := windows.ActiveWindowID(ctx)
		if err != nil {
			return nil, err
		}
		id = active
	}

	geometry, err := windows.Geometry(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("capturing window", "window_id", id, "width", geometry.Width, "height", geometry.Height, "screen", geometry.Screen)

	snap := req.snap
	spec := &types.CaptureSpec{
		WindowID:   id,
		VideoSize:  geometry.Size(),
		FrameRate:  snap.FrameRate,
		OutputPath: cmp.Or(req.output, snap.OutputPath(now)),
	}

	if !snap.Desktop.Disabled {
		source := snap.Desktop.Source
		if source == "" {
			sink, ok, err := endpoints.DefaultSink(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New("no default sink: set audio.desktop.source or use --no-desktop-audio")
			}
			source = audio.MonitorSource(sink)
		}
		spec.Tracks = append(spec.Tracks, types.AudioTrack{Source: source, Label: snap.Desktop.Label})
	}

	if !snap.Mic.Disabled {
		source := snap.Mic.Source
		if source == "" {
			mic, ok, err := endpoints.DefaultSource(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New("no default source: set audio.mic.source or use --no-mic")
			}
			source = mic.Name
		}
		spec.Tracks = append(spec.Tracks, types.AudioTrack{Source: source, Label: snap.Mic.Label})
	}

	for _, t := range spec.Tracks {
		slog.Info("capturing audio", "source", t.Source, "label", t.Label)
	}

	if err := ffmpeg.ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// diagnosticsWriter returns where FFmpeg's stderr goes and a function to close it.
func diagnosticsWriter(snap *config.Snapshot) (io.Writer, func() error) {
	if snap.DiagnosticsFile == "" {
		return os.Stderr, func() error { return nil }
	}
	lj := &lumberjack.Logger{
		Filename:   snap.DiagnosticsFile,
		MaxSize:    snap.DiagnosticsMaxMB,
		MaxBackups: snap.DiagnosticsBackups,
		Compress:   true,
	}
	return lj, lj.Close
}

// runRecord records one window until the duration passes, ctx is canceled
// or FFmpeg exits.
func runRecord(ctx context.Context, req *recordRequest, stdout io.Writer) error {
	snap := req.snap

	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	var ffmpegVersion string
	switch {
	case ffmpegPath != "":
		v, err := ffmpeg.DetectVersion(ctx, util.RunCommand, ffmpegPath)
		if err != nil {
			slog.Warn("could not determine FFmpeg version", "error", err)
		}
		ffmpegVersion = v
	case req.dryRun:
		ffmpegPath = cmp.Or(snap.FFmpegPath, "ffmpeg")
	default:
		return fmt.Errorf("%w: ffmpeg not found (configured path %q)", types.ErrLaunchFailure, snap.FFmpegPath)
	}
	if !ffmpeg.SupportsWindowCapture(ffmpegVersion) {
		return fmt.Errorf("ffmpeg %s is too old for window capture, need %s or newer",
			ffmpeg.DisplayVersion(ffmpegVersion), ffmpeg.DisplayVersion(ffmpeg.MinimumVersion))
	}
	snap.Capture.SyncArgs = ffmpeg.SyncArgs(ffmpegVersion)

	spec, err := buildSpec(ctx, req, window.NewLocator(), audio.NewLister(), time.Now())
	if err != nil {
		return err
	}
	if err := util.ValidateOutputPath("output", spec.OutputPath); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidSpec, err)
	}

	diagnostics, closeDiagnostics := diagnosticsWriter(snap)
	defer func() {
		if err := closeDiagnostics(); err != nil {
			slog.Warn("failed to close diagnostics file", "error", err)
		}
	}()

	options := []recording.Option{
		recording.WithDiagnostics(diagnostics),
		recording.WithReadyMarker(snap.ReadyMarker),
		recording.WithShutdownTimeout(snap.ShutdownTimeout),
	}
	if !req.dryRun {
		if events, err := eventlog.NewLogger(snap.EventLogPath); err != nil {
			slog.Warn("event log disabled", "path", snap.EventLogPath, "error", err)
		} else {
			defer events.Close() //nolint:errcheck // Append-only log, nothing to recover
			slog.Debug("writing session events", "path", events.Path())
			options = append(options, recording.WithEventLog(events))
		}
	}
	sup := recording.NewSupervisor(ffmpegPath, snap.Capture, options...)

	if req.dryRun {
		args, err := sup.Args(spec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, ffmpeg.CommandLine(ffmpegPath, args))
		return err
	}

	if err := util.CheckPathWritable(filepath.Dir(spec.OutputPath)); err != nil {
		return fmt.Errorf("output directory %s: %w", filepath.Dir(spec.OutputPath), err)
	}

	var srv *Server
	if snap.Listen != "" {
		srv = NewServer(snap.Listen, versionInfo(ffmpegVersion), snap.APIKey)
		httpServer := srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
		}()
	}

	var sess *recording.Session
	err = sup.Record(ctx, spec, func(s *recording.Session) error {
		sess = s
		if srv != nil {
			srv.SetSession(s)
		}
		return superviseRecording(ctx, s, snap.Duration)
	})
	if sess != nil {
		err = errors.Join(err, sess.Err())
		status := sess.Status()
		if status.ReadyAt.IsZero() {
			return err
		}
		_, printErr := fmt.Fprintf(stdout, "%s (%s)\n", status.OutputPath,
			util.FormatDuration(time.Duration(status.Duration*float64(time.Second)).Milliseconds()))
		err = errors.Join(err, printErr)
	}
	return err
}

// superviseRecording waits for capture to start, then for the end of the
// recording: the duration passing, ctx being canceled or FFmpeg exiting.
func superviseRecording(ctx context.Context, s *recording.Session, duration time.Duration) error {
	if err := s.WaitReady(ctx, types.ReadyPollInterval); err != nil {
		if ctx.Err() != nil {
			slog.Info("interrupted before recording started")
			return nil
		}
		return err
	}

	if duration > 0 {
		slog.Info("recording", "output", s.OutputPath(), "duration", duration)
	} else {
		slog.Info("recording until interrupted", "output", s.OutputPath())
	}

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, finishing recording")
	case <-deadline:
		slog.Info("duration reached, finishing recording")
	case <-s.Done():
		slog.Warn("ffmpeg exited during recording")
	}
	return nil
}

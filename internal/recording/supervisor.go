package recording

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// argsBuilder turns a capture spec into FFmpeg arguments.
type argsBuilder func(spec *types.CaptureSpec, opts *ffmpeg.CaptureOptions) ([]string, error)

// Supervisor launches FFmpeg capture sessions and owns their lifetime.
type Supervisor struct {
	ffmpegPath      string
	opts            ffmpeg.CaptureOptions
	diagnostics     io.Writer
	events          *eventlog.Logger
	readyMarker     string
	shutdownTimeout time.Duration
	buildArgs       argsBuilder
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDiagnostics sets where FFmpeg's stderr lines are forwarded. Defaults to os.Stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(s *Supervisor) {
		if w == nil {
			w = io.Discard
		}
		s.diagnostics = w
	}
}

// WithEventLog records session lifecycle events to l.
func WithEventLog(l *eventlog.Logger) Option {
	return func(s *Supervisor) { s.events = l }
}

// WithReadyMarker overrides the stderr line that signals capture has begun.
func WithReadyMarker(marker string) Option {
	return func(s *Supervisor) {
		if marker != "" {
			s.readyMarker = marker
		}
	}
}

// WithShutdownTimeout sets how long Close waits for FFmpeg to finalize before killing it.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewSupervisor creates a supervisor for the FFmpeg binary at ffmpegPath.
func NewSupervisor(ffmpegPath string, opts ffmpeg.CaptureOptions, options ...Option) *Supervisor {
	s := &Supervisor{
		ffmpegPath:      ffmpegPath,
		opts:            opts,
		diagnostics:     os.Stderr,
		readyMarker:     DefaultReadyMarker,
		shutdownTimeout: types.ShutdownTimeout,
		buildArgs:       ffmpeg.BuildCaptureArgs,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Args returns the FFmpeg arguments Start would launch for spec.
func (s *Supervisor) Args(spec *types.CaptureSpec) ([]string, error) {
	return s.buildArgs(spec, &s.opts)
}

// Start launches FFmpeg for spec and returns immediately, without waiting for capture to begin.
// An invalid spec fails with types.ErrInvalidSpec and a failed launch with
// types.ErrLaunchFailure; in both cases no session exists.
func (s *Supervisor) Start(spec *types.CaptureSpec) (*Session, error) {
	args, err := s.buildArgs(spec, &s.opts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	slog.Debug("ffmpeg command", "session_id", id, "command", ffmpeg.CommandLine(s.ffmpegPath, args))

	proc, err := ffmpeg.StartProcess(s.ffmpegPath, args)
	if err != nil {
		return nil, err
	}

	sess := newSession(id, spec, proc, s)
	slog.Info("ffmpeg started", "session_id", id, "pid", proc.PID(), "output", spec.OutputPath, "tracks", len(spec.Tracks))
	sess.logEvent(eventlog.SessionStarted, "ffmpeg launched", &eventlog.Details{
		OutputPath: spec.OutputPath,
		WindowID:   spec.WindowID,
		Tracks:     trackLabels(spec.Tracks),
		PID:        proc.PID(),
	})

	go sess.watch()
	return sess, nil
}

// Record starts a session, hands it to fn and tears it down when fn returns.
// Teardown runs on every exit path: normal return, error, panic, and ctx
// cancellation, which additionally stops FFmpeg while fn is still running.
func (s *Supervisor) Record(ctx context.Context, spec *types.CaptureSpec, fn func(*Session) error) (err error) {
	sess, err := s.Start(spec)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.Close())
	}()

	stop := context.AfterFunc(ctx, func() {
		slog.Info("context done, stopping recording", "session_id", sess.ID(), "cause", context.Cause(ctx))
		_ = sess.Stop()
	})
	defer stop()

	return fn(sess)
}

func trackLabels(tracks []types.AudioTrack) []string {
	labels := make([]string, 0, len(tracks))
	for _, t := range tracks {
		labels = append(labels, t.Label)
	}
	return labels
}

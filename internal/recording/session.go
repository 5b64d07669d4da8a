package recording

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// Session is the handle of one running FFmpeg capture.
//
// Concurrency: the watcher goroutine is the only writer of state, readyAt,
// exitedAt, tail and exitErr. Callers only read through the accessor
// methods. mu guards all of them.
type Session struct {
	id   string
	spec types.CaptureSpec
	proc *ffmpeg.Process
	sup  *Supervisor

	mu            sync.Mutex
	state         types.SessionState
	startedAt     time.Time
	readyAt       time.Time
	exitedAt      time.Time
	stopRequested bool
	tail          []string
	exitErr       error

	ready  chan struct{} // Closed when capture begins
	done   chan struct{} // Closed when FFmpeg's stderr ends
	reaped chan struct{} // Closed after the process has been waited for

	stopOnce sync.Once
	stopErr  error
}

func newSession(id string, spec *types.CaptureSpec, proc *ffmpeg.Process, sup *Supervisor) *Session {
	s := &Session{
		id:        id,
		spec:      *spec,
		proc:      proc,
		sup:       sup,
		state:     types.StateStarting,
		startedAt: time.Now(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		reaped:    make(chan struct{}),
	}
	s.spec.Tracks = slices.Clone(spec.Tracks)
	s.spec.VideoSize = slices.Clone(spec.VideoSize)
	return s
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string {
	return s.id
}

// PID returns the FFmpeg process id.
func (s *Session) PID() int {
	return s.proc.PID()
}

// OutputPath returns the file FFmpeg is writing.
func (s *Session) OutputPath() string {
	return s.spec.OutputPath
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLive reports whether FFmpeg has not exited yet. Once false it stays false.
func (s *Session) IsLive() bool {
	return s.State() != types.StateExited
}

// IsRecording reports whether FFmpeg is live and has started capturing.
func (s *Session) IsRecording() bool {
	return s.State() == types.StateRecording
}

// Ready returns a channel that is closed when capture begins.
// It is never closed if FFmpeg exits first.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done returns a channel that is closed when the session is no longer live.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why FFmpeg exited, once it has been reaped.
// A clean exit, or an exit caused by Stop or Kill, yields nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// WaitReady polls every interval until capture begins.
// It returns ErrExitedBeforeReady if FFmpeg exits first, or the context's cause.
func (s *Session) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = types.ReadyPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ready:
			return nil
		default:
		}
		if !s.IsLive() {
			return ErrExitedBeforeReady
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// Wait blocks until FFmpeg has been reaped and returns Err.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.reaped:
		return s.Err()
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Stop asks FFmpeg to finish the file and exit. Only the first call sends
// the request; it is a no-op once FFmpeg has exited. Stop does not wait.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.state == types.StateExited {
			s.mu.Unlock()
			return
		}
		s.stopRequested = true
		s.mu.Unlock()

		slog.Info("stopping ffmpeg", "session_id", s.id, "pid", s.PID())
		s.logEvent(eventlog.SessionStopRequested, "stop requested", nil)

		if err := util.GracefulSignal(s.proc.Cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.stopErr = util.WrapError("signal ffmpeg", err)
		}
	})
	return s.stopErr
}

// Kill terminates FFmpeg immediately. The output file may be left without a trailer.
func (s *Session) Kill() {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()
	s.proc.Cancel()
}

// Close stops FFmpeg and waits for it to finalize the output. If it has not
// exited after the shutdown timeout it is killed.
func (s *Session) Close() error {
	err := s.Stop()

	timer := time.NewTimer(s.sup.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-s.reaped:
	case <-timer.C:
		slog.Warn("ffmpeg did not exit after stop, killing", "session_id", s.id, "timeout", s.sup.shutdownTimeout)
		s.Kill()
		<-s.reaped
		err = errors.Join(err, ErrKillTimeout)
	}
	return err
}

// Status returns a snapshot of the session.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := types.SessionStatus{
		ID:         s.id,
		State:      s.state,
		Live:       s.state != types.StateExited,
		Recording:  s.state == types.StateRecording,
		Stopping:   s.stopRequested && s.state != types.StateExited,
		OutputPath: s.spec.OutputPath,
		StartedAt:  s.startedAt,
		ReadyAt:    s.readyAt,
		ExitedAt:   s.exitedAt,
		Duration:   s.durationLocked().Seconds(),
		Tracks:     slices.Clone(s.spec.Tracks),
	}
	if s.exitErr != nil {
		status.Error = s.exitErr.Error()
	}
	return status
}

// durationLocked returns how long capture has been running.
func (s *Session) durationLocked() time.Duration {
	if s.readyAt.IsZero() {
		return 0
	}
	if !s.exitedAt.IsZero() {
		return s.exitedAt.Sub(s.readyAt)
	}
	return time.Since(s.readyAt)
}

// watch reads FFmpeg's stderr until it closes, then reaps the process.
func (s *Session) watch() {
	scanner := bufio.NewScanner(s.proc.Stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := fmt.Fprintln(s.sup.diagnostics, line); err != nil {
			slog.Debug("failed to forward ffmpeg output", "session_id", s.id, "error", err)
		}
		s.observe(line)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("ffmpeg stderr read failed", "session_id", s.id, "error", err)
	}

	s.markExited()
	s.reap()
}

// scanLines splits on \n or \r so progress updates arrive as separate lines.
// Lines longer than maxLineLength are emitted in chunks instead of failing the scan.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF || len(data) >= maxLineLength {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// observe records a diagnostic line and moves starting to recording on the ready marker.
func (s *Session) observe(line string) {
	trimmed := strings.TrimSpace(line)

	s.mu.Lock()
	s.tail = append(s.tail, trimmed)
	if len(s.tail) > tailLines {
		s.tail = slices.Delete(s.tail, 0, len(s.tail)-tailLines)
	}
	if s.state != types.StateStarting || trimmed != s.sup.readyMarker {
		s.mu.Unlock()
		return
	}
	s.state = types.StateRecording
	s.readyAt = time.Now()
	close(s.ready)
	s.mu.Unlock()

	slog.Info("recording started", "session_id", s.id, "output", s.spec.OutputPath)
	s.logEvent(eventlog.RecordingStarted, "capture running", nil)
}

// markExited makes the session terminal. Reaching the end of stderr counts
// as exit even if the process has not been reaped yet.
func (s *Session) markExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == types.StateExited {
		return
	}
	s.state = types.StateExited
	s.exitedAt = time.Now()
	close(s.done)
}

// reap waits for the process and records its exit error.
func (s *Session) reap() {
	waitErr := s.proc.Cmd.Wait()
	s.proc.Cancel()

	s.mu.Lock()
	s.exitErr = s.classifyExitLocked(waitErr)
	exitErr := s.exitErr
	duration := s.durationLocked()
	s.mu.Unlock()
	close(s.reaped)

	details := &eventlog.Details{
		OutputPath: s.spec.OutputPath,
		DurationMs: duration.Milliseconds(),
	}
	if exitErr != nil {
		details.Error = exitErr.Error()
		slog.Error("ffmpeg exited with error", "session_id", s.id, "error", exitErr)
	} else {
		slog.Info("ffmpeg exited", "session_id", s.id, "duration", util.FormatDuration(duration.Milliseconds()))
	}
	s.logEvent(eventlog.SessionExited, "ffmpeg exited", details)
}

// classifyExitLocked turns a Wait error into the session's exit error.
// FFmpeg exits with 255 when interrupted, so after a stop request that,
// or death by signal, is a normal end.
func (s *Session) classifyExitLocked(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if s.stopRequested && errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code == 255 || code == -1 {
			return nil
		}
	}
	if detail := util.ExtractLastError(strings.Join(s.tail, "\n")); detail != "" {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, detail)
	}
	return fmt.Errorf("ffmpeg exited: %w", err)
}

func (s *Session) logEvent(eventType eventlog.EventType, message string, details *eventlog.Details) {
	if s.sup.events == nil {
		return
	}
	if err := s.sup.events.LogSession(eventType, s.id, message, details); err != nil {
		slog.Warn("failed to write event log", "session_id", s.id, "error", err)
	}
}

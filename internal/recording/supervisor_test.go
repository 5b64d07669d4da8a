package recording

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

func TestStartLaunchFailure(t *testing.T) {
	sup := NewSupervisor("/nonexistent/bin/ffmpeg", ffmpeg.DefaultCaptureOptions())

	sess, err := sup.Start(testSpec())
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, types.ErrLaunchFailure)
	assert.NotErrorIs(t, err, types.ErrInvalidSpec)
}

func TestStartInvalidSpecNeverLaunches(t *testing.T) {
	// The binary does not exist, so any launch attempt would report ErrLaunchFailure.
	sup := NewSupervisor("/nonexistent/bin/ffmpeg", ffmpeg.DefaultCaptureOptions())

	for _, size := range [][]int{nil, {1920}, {1920, 1080, 3}} {
		spec := testSpec()
		spec.VideoSize = size

		sess, err := sup.Start(spec)
		assert.Nil(t, sess)
		assert.ErrorIs(t, err, types.ErrInvalidSpec, "size %v", size)
		assert.NotErrorIs(t, err, types.ErrLaunchFailure)
	}

	called := false
	spec := testSpec()
	spec.FrameRate = 0
	err := sup.Record(context.Background(), spec, func(*Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, types.ErrInvalidSpec)
	assert.False(t, called)
}

func TestSupervisorArgs(t *testing.T) {
	opts := ffmpeg.DefaultCaptureOptions()
	sup := NewSupervisor("ffmpeg", opts)

	got, err := sup.Args(testSpec())
	require.NoError(t, err)
	want, err := ffmpeg.BuildCaptureArgs(testSpec(), &opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecordStopsOnEveryExitPath(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(*testing.T, *Session) error
		wantErr error
		panics  bool
	}{
		{
			name: "normal return",
			fn: func(t *testing.T, s *Session) error {
				require.NoError(t, s.WaitReady(waitCtx(t), 5*time.Millisecond))
				return nil
			},
		},
		{
			name: "error inside scope",
			fn: func(t *testing.T, s *Session) error {
				require.NoError(t, s.WaitReady(waitCtx(t), 5*time.Millisecond))
				return errBoom
			},
			wantErr: errBoom,
		},
		{
			name: "early exit before ready",
			fn: func(*testing.T, *Session) error {
				return nil
			},
		},
		{
			name: "panic inside scope",
			fn: func(t *testing.T, s *Session) error {
				require.NoError(t, s.WaitReady(waitCtx(t), 5*time.Millisecond))
				panic(errBoom)
			},
			panics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withLog, stops := stopRequests(t)
			sup, _ := shellSupervisor(t, readyScript, withLog)

			var sess *Session
			record := func() error {
				return sup.Record(context.Background(), testSpec(), func(s *Session) error {
					sess = s
					assert.True(t, s.IsLive())
					return tt.fn(t, s)
				})
			}

			if tt.panics {
				assert.Panics(t, func() { _ = record() })
			} else {
				err := record()
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.NoError(t, err)
				}
			}

			require.NotNil(t, sess)
			assert.Equal(t, 1, stops(sess), "termination requested exactly once")
			assert.False(t, sess.IsLive())
			assert.NoError(t, sess.Err())
		})
	}
}

func TestRecordStopsWhenContextIsCanceled(t *testing.T) {
	withLog, stops := stopRequests(t)
	sup, _ := shellSupervisor(t, readyScript, withLog)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess *Session
	err := sup.Record(ctx, testSpec(), func(s *Session) error {
		sess = s
		require.NoError(t, s.WaitReady(waitCtx(t), 5*time.Millisecond))
		cancel()

		select {
		case <-s.Done():
			return nil
		case <-time.After(testTimeout):
			return errors.New("session still live after cancel")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stops(sess))
	assert.Equal(t, types.StateExited, sess.State())
}

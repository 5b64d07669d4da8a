// Package window locates X11 windows with xdotool.
package window

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// Sentinel errors for window discovery.
var (
	// ErrNoActiveWindow is returned when no window has focus.
	ErrNoActiveWindow = errors.New("no active window")

	// ErrNoSuchWindow is returned when the window id is unknown to the X server.
	ErrNoSuchWindow = errors.New("no such window")
)

var (
	positionPattern = regexp.MustCompile(`^Position:\s*(-?\d+),(-?\d+)\s*\(screen:\s*(\d+)\)$`)
	geometryPattern = regexp.MustCompile(`^Geometry:\s*(\d+)x(\d+)$`)
)

// Locator queries the window system through xdotool.
type Locator struct {
	Run     util.CommandRunner
	Command string
}

// NewLocator returns a Locator that runs xdotool.
func NewLocator() *Locator {
	return &Locator{Run: util.RunCommand, Command: "xdotool"}
}

// ActiveWindowID returns the id of the focused window.
func (l *Locator) ActiveWindowID(ctx context.Context) (string, error) {
	stdout, stderr, err := l.run(ctx, "getactivewindow")
	if strings.TrimSpace(stderr) != "" || err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoActiveWindow, detail(stderr, err))
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", ErrNoActiveWindow
	}
	return id, nil
}

// Geometry returns the position and size of window id.
func (l *Locator) Geometry(ctx context.Context, id string) (types.WindowGeometry, error) {
	stdout, stderr, err := l.run(ctx, "getwindowgeometry", id)
	if strings.TrimSpace(stderr) != "" || err != nil {
		return types.WindowGeometry{}, fmt.Errorf("%w: %s: %s", ErrNoSuchWindow, id, detail(stderr, err))
	}
	return ParseGeometry(id, stdout)
}

// PID returns the id of the process that owns window id.
func (l *Locator) PID(ctx context.Context, id string) (int, error) {
	stdout, stderr, err := l.run(ctx, "getwindowpid", id)
	if strings.TrimSpace(stderr) != "" || err != nil {
		return 0, fmt.Errorf("%w: %s: %s", ErrNoSuchWindow, id, detail(stderr, err))
	}
	pid, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return 0, fmt.Errorf("%w: window pid %q", types.ErrUnsupportedOutput, strings.TrimSpace(stdout))
	}
	return pid, nil
}

func (l *Locator) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	command := l.Command
	if command == "" {
		command = "xdotool"
	}
	return l.Run(ctx, command, args...)
}

func detail(stderr string, err error) string {
	if msg := util.ExtractLastError(stderr); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}

// ParseGeometry parses `xdotool getwindowgeometry` output:
//
//	Window 52428807
//	  Position: 10,20 (screen: 0)
//	  Geometry: 1920x1080
func ParseGeometry(id, output string) (types.WindowGeometry, error) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(output)))
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if len(lines) != 3 {
		return types.WindowGeometry{}, fmt.Errorf("%w: expected 3 lines of window geometry, got %d", types.ErrUnsupportedOutput, len(lines))
	}

	pos := positionPattern.FindStringSubmatch(lines[1])
	if pos == nil {
		return types.WindowGeometry{}, fmt.Errorf("%w: invalid position line %q", types.ErrUnsupportedOutput, lines[1])
	}
	size := geometryPattern.FindStringSubmatch(lines[2])
	if size == nil {
		return types.WindowGeometry{}, fmt.Errorf("%w: invalid geometry line %q", types.ErrUnsupportedOutput, lines[2])
	}

	g := types.WindowGeometry{WindowID: id}
	var err error
	for _, f := range []struct {
		dst *int
		src string
	}{
		{&g.X, pos[1]},
		{&g.Y, pos[2]},
		{&g.Screen, pos[3]},
		{&g.Width, size[1]},
		{&g.Height, size[2]},
	} {
		if *f.dst, err = strconv.Atoi(f.src); err != nil {
			return types.WindowGeometry{}, fmt.Errorf("%w: %w", types.ErrUnsupportedOutput, err)
		}
	}
	return g, nil
}

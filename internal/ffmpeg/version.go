package ffmpeg

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-screenrec/internal/util"
	"golang.org/x/mod/semver"
)

const (
	// MinimumVersion is the oldest FFmpeg whose x11grab supports -window_id.
	MinimumVersion = "v5.0.0"
	// fpsModeVersion is the first FFmpeg that accepts -fps_mode in place of -vsync.
	fpsModeVersion = "v5.1.0"
)

// versionPattern matches the first line of `ffmpeg -version`, e.g.
// "ffmpeg version 6.1.1-3ubuntu5 Copyright" or "ffmpeg version n7.0".
var versionPattern = regexp.MustCompile(`(?m)^ffmpeg version n?(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts a canonical semver ("v6.1.1") from `ffmpeg -version` output.
// Git snapshot builds carry no release number and yield "".
func ParseVersion(output string) string {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v := fmt.Sprintf("v%s.%s.%s", m[1], m[2], patch)
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// DetectVersion runs `ffmpeg -version` and returns the parsed version, or "" if unknown.
func DetectVersion(ctx context.Context, run util.CommandRunner, ffmpegPath string) (string, error) {
	stdout, _, err := run(ctx, ffmpegPath, "-hide_banner", "-version")
	if err != nil {
		return "", util.WrapError("run ffmpeg -version", err)
	}
	return ParseVersion(stdout), nil
}

// SupportsWindowCapture reports whether version is new enough for window grabbing.
// Unknown versions are assumed to be recent snapshot builds.
func SupportsWindowCapture(version string) bool {
	if version == "" {
		return true
	}
	return semver.Compare(version, MinimumVersion) >= 0
}

// SyncArgs returns the flag that passes frame timestamps through untouched.
// Unknown versions get -vsync 0, which every release still understands.
func SyncArgs(version string) []string {
	if version != "" && semver.Compare(version, fpsModeVersion) >= 0 {
		return []string{"-fps_mode", "passthrough"}
	}
	return []string{"-vsync", "0"}
}

// DisplayVersion returns version without the leading "v", or "unknown".
func DisplayVersion(version string) string {
	if version == "" {
		return "unknown"
	}
	return strings.TrimPrefix(version, "v")
}

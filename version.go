package main

import (
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// Build information, set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// versionInfo returns build and FFmpeg version data for status responses.
func versionInfo(ffmpegVersion string) types.VersionInfo {
	return types.VersionInfo{
		Current:       Version,
		Commit:        Commit,
		BuildTime:     BuildTime,
		FFmpegVersion: ffmpeg.DisplayVersion(ffmpegVersion),
	}
}

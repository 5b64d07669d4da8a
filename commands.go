package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oszuidwest/zwfm-screenrec/internal/audio"
	"github.com/oszuidwest/zwfm-screenrec/internal/config"
	"github.com/oszuidwest/zwfm-screenrec/internal/eventlog"
	"github.com/oszuidwest/zwfm-screenrec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// deviceLister lists PulseAudio endpoints.
type deviceLister interface {
	ListSinks(ctx context.Context) ([]audio.Endpoint, error)
	ListSources(ctx context.Context) ([]audio.Endpoint, error)
}

// runDevices prints sinks and sources, marking the defaults with *.
func runDevices(ctx context.Context, lister deviceLister, w io.Writer) error {
	sinks, err := lister.ListSinks(ctx)
	if err != nil {
		return err
	}
	sources, err := lister.ListSources(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Sinks (desktop audio is captured from <name>.monitor):\n")
	for _, e := range sinks {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	b.WriteString("Sources:\n")
	for _, e := range sources {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	_, err = io.WriteString(w, b.String())
	return err
}

// runEvents prints the newest session events, newest first.
func runEvents(path string, count int, sessionID string, w io.Writer) error {
	events, err := eventlog.ReadLast(path, count, sessionID)
	if err != nil {
		return util.WrapError("read event log", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Type, e.SessionID, describeEvent(&e))
	}
	return tw.Flush()
}

// describeEvent summarizes an event's message and details.
func describeEvent(e *eventlog.Event) string {
	parts := []string{}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if d := e.Details; d != nil {
		if d.OutputPath != "" {
			parts = append(parts, d.OutputPath)
		}
		if len(d.Tracks) > 0 {
			parts = append(parts, "tracks="+strings.Join(d.Tracks, ","))
		}
		if d.DurationMs > 0 {
			parts = append(parts, util.FormatDuration(d.DurationMs))
		}
		if d.Error != "" {
			parts = append(parts, "error: "+d.Error)
		}
	}
	return strings.Join(parts, " ")
}

// doctorCheck is one line of doctor output.
type doctorCheck struct {
	name   string
	ok     bool
	detail string
}

// runDoctor reports whether the tools the recorder depends on are usable.
func runDoctor(ctx context.Context, snap *config.Snapshot, run util.CommandRunner, w io.Writer) error {
	var checks []doctorCheck

	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	if ffmpegPath == "" {
		checks = append(checks, doctorCheck{"ffmpeg", false, "not found"})
	} else {
		version, err := ffmpeg.DetectVersion(ctx, run, ffmpegPath)
		switch {
		case err != nil:
			checks = append(checks, doctorCheck{"ffmpeg", false, err.Error()})
		case !ffmpeg.SupportsWindowCapture(version):
			checks = append(checks, doctorCheck{"ffmpeg", false, fmt.Sprintf("%s at %s, need %s or newer",
				ffmpeg.DisplayVersion(version), ffmpegPath, ffmpeg.DisplayVersion(ffmpeg.MinimumVersion))})
		default:
			checks = append(checks, doctorCheck{"ffmpeg", true, fmt.Sprintf("%s at %s (%s)",
				ffmpeg.DisplayVersion(version), ffmpegPath, strings.Join(ffmpeg.SyncArgs(version), " "))})
		}
	}

	tools := []string{"xdotool"}
	if snap.HasAudio() {
		tools = append(tools, "pacmd")
	}
	for _, tool := range tools {
		if path := util.ResolveBinary("", tool); path != "" {
			checks = append(checks, doctorCheck{tool, true, path})
		} else {
			checks = append(checks, doctorCheck{tool, false, "not found"})
		}
	}

	if err := util.CheckPathWritable(snap.OutputDir); err != nil {
		checks = append(checks, doctorCheck{"output_dir", false, fmt.Sprintf("%s: %v", snap.OutputDir, err)})
	} else {
		checks = append(checks, doctorCheck{"output_dir", true, snap.OutputDir})
	}

	failed := 0
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range checks {
		status := "ok"
		if !c.ok {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.name, status, c.detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

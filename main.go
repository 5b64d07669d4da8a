// Package main records one on-screen window together with desktop and
// microphone audio, each kept as its own track next to a merged one.
//
// Usage:
//
//	screenrec [record] [flags]   record the active (or --window) window
//	screenrec devices            list PulseAudio sinks and sources
//	screenrec events [-n N]      show recent session events
//	screenrec doctor             check ffmpeg, xdotool and pacmd
//
// Settings come from the config file (--config, default in the user config
// directory), SCREENREC_* environment variables, and flags, in that order.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/oszuidwest/zwfm-screenrec/internal/audio"
	"github.com/oszuidwest/zwfm-screenrec/internal/config"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

var commands = []string{"record", "devices", "events", "doctor"}

// errUsage marks a command line error.
var errUsage = errors.New("usage error")

// cliOptions holds the command line flags.
type cliOptions struct {
	configPath     string
	output         string
	duration       time.Duration
	framerate      int
	window         string
	noDesktopAudio bool
	noMic          bool
	listen         string
	logLevel       string
	dryRun         bool
	showVersion    bool
	count          int
	sessionID      string
}

// newFlagSet registers every flag on a new flag set.
func newFlagSet(o *cliOptions, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("screenrec", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: screenrec [record|devices|events|doctor] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.configPath, "config", "c", "", "path to config file (default "+config.DefaultPath()+")")
	fs.StringVarP(&o.output, "output", "o", "", "output file (default: timestamped file in capture.output_dir)")
	fs.DurationVarP(&o.duration, "duration", "d", 0, "stop after this long (default: until interrupted)")
	fs.IntVar(&o.framerate, "framerate", 0, "frames per second (default: capture.framerate)")
	fs.StringVarP(&o.window, "window", "w", "", "X11 window id to capture (default: the active window)")
	fs.BoolVar(&o.noDesktopAudio, "no-desktop-audio", false, "do not record desktop audio")
	fs.BoolVar(&o.noMic, "no-mic", false, "do not record the microphone")
	fs.StringVar(&o.listen, "listen", "", "serve session status on this address, e.g. 127.0.0.1:8090")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&o.dryRun, "dry-run", false, "print the ffmpeg command instead of running it")
	fs.BoolVarP(&o.showVersion, "version", "v", false, "print version information and exit")
	fs.IntVarP(&o.count, "count", "n", 20, "events: number of events to show")
	fs.StringVar(&o.sessionID, "session", "", "events: only show this session")
	return fs
}

// applyTo overrides snapshot values with the flags that were set.
func (o *cliOptions) applyTo(snap *config.Snapshot) error {
	if o.duration < 0 {
		return fmt.Errorf("%w: --duration must not be negative", errUsage)
	}
	if o.duration > 0 {
		snap.Duration = o.duration
	}
	if o.framerate < 0 {
		return fmt.Errorf("%w: --framerate must be positive", errUsage)
	}
	if o.framerate > 0 {
		snap.FrameRate = o.framerate
	}
	if o.noDesktopAudio {
		snap.Desktop.Disabled = true
	}
	if o.noMic {
		snap.Mic.Disabled = true
	}
	if o.listen != "" {
		snap.Listen = o.listen
	}
	if o.logLevel != "" {
		level, err := config.ParseLevel(o.logLevel)
		if err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		snap.LogLevel = level
	}
	return nil
}

// splitCommand separates the subcommand from the flags. record is the default.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 && slices.Contains(commands, args[0]) {
		return args[0], args[1:]
	}
	return "record", args
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	command, rest := splitCommand(args)

	var opts cliOptions
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "screenrec %s", Version)
		if Commit != "" {
			fmt.Fprintf(stdout, " (%s, built %s)", Commit, BuildTime)
		}
		fmt.Fprintln(stdout)
		return 0
	}

	if opts.configPath == "" {
		opts.configPath = config.DefaultPath()
	}
	cfg := config.New(opts.configPath)
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(stderr, "failed to load config %s: %v\n", opts.configPath, err)
		return 1
	}
	snap := cfg.Snapshot()
	if err := opts.applyTo(&snap); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: snap.LogLevel})))
	slog.Debug("using config file", "path", cfg.Path())

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	var err error
	switch command {
	case "devices":
		err = runDevices(ctx, audio.NewLister(), stdout)
	case "events":
		err = runEvents(snap.EventLogPath, opts.count, opts.sessionID, stdout)
	case "doctor":
		err = runDoctor(ctx, &snap, util.RunCommand, stdout)
	default:
		err = runRecord(ctx, &recordRequest{
			snap:     &snap,
			windowID: opts.window,
			output:   opts.output,
			dryRun:   opts.dryRun,
		}, stdout)
	}

	if err != nil {
		slog.Error(command+" failed", "error", err)
		return 1
	}
	return 0
}

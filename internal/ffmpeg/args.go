package ffmpeg

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// Capture defaults for an X11 session with PulseAudio (or pipewire-pulse).
const (
	DefaultVideoBackend    = "x11grab"
	DefaultAudioBackend    = "pulse"
	DefaultThreadQueueSize = 1024
	DefaultDisplay         = ":0.0+0,0"
	DefaultAudioCodec      = "aac"
)

// DefaultVideoCodecArgs is the NVENC H.264 CBR profile used when none is configured.
const DefaultVideoCodecArgs = "-c:v h264_nvenc -preset:v p6 -profile:v high -rc:v cbr -b:v 2500K " +
	"-rc-lookahead 1 -spatial-aq 0 -temporal-aq 1 -cq 23 -weighted_pred 0 -coder cabac " +
	"-b_ref_mode 2 -dpb_size 4 -multipass 0 -g 120 -bf 2 -pix_fmt yuv420p " +
	"-color_range tv -color_primaries bt709 -color_trc bt709 -colorspace bt709 -movflags +faststart"

// CaptureOptions holds the FFmpeg settings that are configuration rather than per-recording input.
// Codec arguments are passed through as-is.
type CaptureOptions struct {
	VideoBackend    string   // Input format for the window grab (-f)
	AudioBackend    string   // Input format for each audio source (-f)
	ThreadQueueSize int      // Packet queue size per input
	Display         string   // Grab device locator passed to -i
	VideoCodecArgs  []string // Encoder profile for the video stream
	AudioCodec      string   // Encoder for every audio output stream
	SyncArgs        []string // Timestamp pass-through flag, see SyncArgs
}

// DefaultCaptureOptions returns the built-in capture settings.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		VideoBackend:    DefaultVideoBackend,
		AudioBackend:    DefaultAudioBackend,
		ThreadQueueSize: DefaultThreadQueueSize,
		Display:         DefaultDisplay,
		VideoCodecArgs:  strings.Fields(DefaultVideoCodecArgs),
		AudioCodec:      DefaultAudioCodec,
		SyncArgs:        SyncArgs(""),
	}
}

// BuildCaptureArgs returns the FFmpeg arguments (without the program name) for a capture spec.
// It performs no I/O: the same spec and options always produce the same arguments.
func BuildCaptureArgs(spec *types.CaptureSpec, opts *CaptureOptions) ([]string, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	graph := BuildAudioFilterGraph(spec.Tracks)

	args := []string{"-y"}
	args = append(args, videoInputArgs(spec, opts)...)
	for i := range spec.Tracks {
		args = append(args, audioInputArgs(&spec.Tracks[i], opts)...)
	}
	args = append(args, opts.VideoCodecArgs...)
	if spec.HasAudio() {
		args = append(args, "-acodec", opts.AudioCodec)
		args = append(args, "-filter_complex", graph.Expr)
	}
	args = append(args, mapArgs(spec.Tracks, graph)...)
	args = append(args, opts.SyncArgs...)
	args = append(args, spec.OutputPath)

	return args, nil
}

// videoInputArgs returns the window grab input.
func videoInputArgs(spec *types.CaptureSpec, opts *CaptureOptions) []string {
	return []string{
		"-f", opts.VideoBackend,
		"-thread_queue_size", strconv.Itoa(opts.ThreadQueueSize),
		"-use_wallclock_as_timestamps", "1",
		"-framerate", strconv.Itoa(spec.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", spec.VideoSize[0], spec.VideoSize[1]),
		"-window_id", spec.WindowID,
		"-i", opts.Display,
	}
}

// audioInputArgs returns one audio source input.
func audioInputArgs(track *types.AudioTrack, opts *CaptureOptions) []string {
	return []string{
		"-f", opts.AudioBackend,
		"-thread_queue_size", strconv.Itoa(opts.ThreadQueueSize),
		"-use_wallclock_as_timestamps", "1",
		"-i", track.Source,
	}
}

// mapArgs maps the video plus, with audio, the master track followed by one track per source.
func mapArgs(tracks []types.AudioTrack, graph FilterGraph) []string {
	args := []string{"-map", "0:v:0"}
	if graph.IsEmpty() {
		return args
	}

	args = append(args,
		"-map", "["+graph.Master+"]",
		"-metadata:s:a:0", "title="+types.MasterTrackTitle,
	)
	for i, label := range graph.Tracks {
		args = append(args,
			"-map", "["+label+"]",
			fmt.Sprintf("-metadata:s:a:%d", i+1), "title="+tracks[i].Label,
		)
	}
	return args
}

// CommandLine renders args as a copy-pasteable shell command for logs and dry runs.
func CommandLine(ffmpegPath string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range slices.Concat([]string{ffmpegPath}, args) {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes a word when it contains anything the shell would interpret.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()[]*?!#~{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

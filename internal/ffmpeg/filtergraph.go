package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// MasterLabel is the filter graph output carrying all audio sources merged.
const MasterLabel = "m"

// FilterGraph is an audio filter_complex expression and the output pads it defines.
type FilterGraph struct {
	Expr   string   // Value for -filter_complex, empty without audio
	Master string   // Label of the merged stream, empty without audio
	Tracks []string // Per-source resampled stream labels, in track order
}

// IsEmpty reports whether the graph has no stages.
func (g FilterGraph) IsEmpty() bool {
	return g.Expr == ""
}

// trackLabel returns the resampled stream label for 1-based input index i.
func trackLabel(i int) string {
	return fmt.Sprintf("r%d", i)
}

// BuildAudioFilterGraph returns the filter graph for the given audio tracks.
//
// Input 0 is the video grab, so audio inputs are 1..N. Every source is passed
// through aresample=async=1 because each PulseAudio endpoint runs on its own
// clock, and all raw inputs are merged into one multichannel master stream.
// A single track still gets both stages so stream mapping stays uniform.
func BuildAudioFilterGraph(tracks []types.AudioTrack) FilterGraph {
	n := len(tracks)
	if n == 0 {
		return FilterGraph{}
	}

	resample := make([]string, 0, n)
	var merge strings.Builder
	labels := make([]string, 0, n)

	for i := 1; i <= n; i++ {
		label := trackLabel(i)
		resample = append(resample, fmt.Sprintf("[%d:a] aresample=async=1 [%s];", i, label))
		fmt.Fprintf(&merge, "[%d]", i)
		labels = append(labels, label)
	}

	expr := fmt.Sprintf("%s %s amerge=inputs=%d [%s]", strings.Join(resample, " "), merge.String(), n, MasterLabel)

	return FilterGraph{
		Expr:   expr,
		Master: MasterLabel,
		Tracks: labels,
	}
}

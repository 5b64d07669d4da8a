package audio

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
	"github.com/oszuidwest/zwfm-screenrec/internal/util"
)

// pacmd record lines, matched after trimming.
var (
	indexPattern      = regexp.MustCompile(`^(\*)?\s*index:\s*(\d+)$`)
	namePattern       = regexp.MustCompile(`^name:\s*<(.+)>$`)
	sampleSpecPattern = regexp.MustCompile(`^sample spec:\s*(\S+)\s+(\d+)ch\s+(\d+)Hz$`)
)

// Lister queries PulseAudio through pacmd.
type Lister struct {
	Run     util.CommandRunner
	Command string
}

// NewLister returns a Lister that runs pacmd.
func NewLister() *Lister {
	return &Lister{Run: util.RunCommand, Command: "pacmd"}
}

// ListSinks returns every playback device.
func (l *Lister) ListSinks(ctx context.Context) ([]Endpoint, error) {
	return l.list(ctx, "list-sinks")
}

// ListSources returns every capture device, monitors included.
func (l *Lister) ListSources(ctx context.Context) ([]Endpoint, error) {
	return l.list(ctx, "list-sources")
}

// DefaultSink returns the sink marked as default. ok is false when none is.
func (l *Lister) DefaultSink(ctx context.Context) (sink Endpoint, ok bool, err error) {
	sinks, err := l.ListSinks(ctx)
	if err != nil {
		return Endpoint{}, false, err
	}
	sink, ok = Default(sinks)
	return sink, ok, nil
}

// DefaultSource returns the source marked as default. ok is false when none is.
func (l *Lister) DefaultSource(ctx context.Context) (source Endpoint, ok bool, err error) {
	sources, err := l.ListSources(ctx)
	if err != nil {
		return Endpoint{}, false, err
	}
	source, ok = Default(sources)
	return source, ok, nil
}

// Default returns the first endpoint flagged as default.
func Default(endpoints []Endpoint) (Endpoint, bool) {
	i := slices.IndexFunc(endpoints, func(e Endpoint) bool { return e.Default })
	if i < 0 {
		return Endpoint{}, false
	}
	return endpoints[i], true
}

func (l *Lister) list(ctx context.Context, subcommand string) ([]Endpoint, error) {
	command := l.Command
	if command == "" {
		command = "pacmd"
	}

	stdout, stderr, err := l.Run(ctx, command, subcommand)
	if msg := strings.TrimSpace(stderr); msg != "" {
		return nil, fmt.Errorf("%w: %s %s: %s", types.ErrDiscovery, command, subcommand, util.ExtractLastError(msg))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", types.ErrDiscovery, command, subcommand, err)
	}

	return slices.Collect(ParseEndpoints(stdout)), nil
}

// ParseEndpoints parses pacmd list-sinks or list-sources output.
// Records are produced lazily, one per index line, and the sequence can be
// ranged over more than once. Fields missing from a record are left zero.
func ParseEndpoints(output string) iter.Seq[Endpoint] {
	return func(yield func(Endpoint) bool) {
		var current *Endpoint
		for line := range strings.Lines(output) {
			line = strings.TrimSpace(line)

			if m := indexPattern.FindStringSubmatch(line); m != nil {
				if current != nil && !yield(*current) {
					return
				}
				index, _ := strconv.Atoi(m[2])
				current = &Endpoint{Default: m[1] != "", Index: index}
				continue
			}
			if current == nil {
				continue
			}

			if current.Name == "" {
				if m := namePattern.FindStringSubmatch(line); m != nil {
					current.Name = m[1]
					continue
				}
			}
			if current.SampleFormat == "" {
				if m := sampleSpecPattern.FindStringSubmatch(line); m != nil {
					current.SampleFormat = m[1]
					current.Channels, _ = strconv.Atoi(m[2])
					current.RateHz, _ = strconv.Atoi(m[3])
				}
			}
		}
		if current != nil {
			yield(*current)
		}
	}
}

// Package audio discovers PulseAudio sinks and sources for capture.
package audio

import "fmt"

// Endpoint is a PulseAudio sink or source as reported by pacmd.
type Endpoint struct {
	Default      bool   `json:"default"`       // Marked with * in pacmd output
	Index        int    `json:"index"`         // Server-assigned index
	Name         string `json:"name"`          // Name used with ffmpeg -f pulse -i
	SampleFormat string `json:"sample_format"` // e.g. s16le
	Channels     int    `json:"channels"`      // Channel count
	RateHz       int    `json:"rate_hz"`       // Sample rate in Hz
}

// String returns a one-line description for listings.
func (e Endpoint) String() string {
	marker := " "
	if e.Default {
		marker = "*"
	}
	if e.SampleFormat == "" {
		return fmt.Sprintf("%s %d %s", marker, e.Index, e.Name)
	}
	return fmt.Sprintf("%s %d %s (%s %dch %dHz)", marker, e.Index, e.Name, e.SampleFormat, e.Channels, e.RateHz)
}

// MonitorSource returns the source that captures what sink plays.
func MonitorSource(sink Endpoint) string {
	return sink.Name + ".monitor"
}

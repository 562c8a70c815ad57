// Package render defines the contract between the graph builders and a
// Signal Runtime, and provides Offline, a reference runtime that renders
// submitted graphs on the Go side.
package render

import (
	"github.com/casperleerink/circular-music/analysis"
	"github.com/casperleerink/circular-music/graph"
)

// Runtime is the control-side view of a Signal Runtime. Submissions are
// one-way and coalescing: only the latest complete graph is adopted at the
// next block boundary.
type Runtime interface {
	Submit(graph.Stereo) error
	UpdateVirtualFileSystem(map[string][]float32) error
	Events() <-chan Event
}

// EventType tags analysis events.
type EventType string

const (
	EventMeter    EventType = "meter"
	EventSnapshot EventType = "snapshot"
	EventFFT      EventType = "fft"
	EventError    EventType = "error"
)

// Event is an asynchronous report from the runtime. Which fields are set
// depends on Type.
type Event struct {
	Type   EventType
	Source string

	Level analysis.Level // meter
	Bands analysis.Bands // meter
	Value float64        // snapshot
	Data  []float64      // fft magnitudes

	Message string // error
}

// Package mixer combines named stereo sources into the master graph and
// submits it to a runtime on every change.
package mixer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/casperleerink/circular-music/graph"
)

// Runtime receives the recomposed master graph.
type Runtime interface {
	Submit(graph.Stereo) error
}

// SourceOptions controls one source.
type SourceOptions struct {
	Gain float64
}

type source struct {
	sig  graph.Stereo
	gain float64
}

// Mixer is safe for concurrent use; submissions are serialized.
type Mixer struct {
	rt     Runtime
	logger *slog.Logger

	meter    string
	roomPath string
	roomWet  float64

	mu      sync.Mutex
	sources map[string]source
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithMeter wraps the master bus in meter and fft nodes reporting as name.
func WithMeter(name string) Option {
	return func(m *Mixer) { m.meter = name }
}

// WithRoomIR sends the master bus through a convolution room whose impulse
// response is the virtual file at path, mixed in at wet.
func WithRoomIR(path string, wet float64) Option {
	return func(m *Mixer) {
		m.roomPath = path
		m.roomWet = wet
	}
}

// WithLogger sets the logger for submission diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a mixer with no sources. Nothing is submitted until the
// first mutation.
func New(rt Runtime, opts ...Option) *Mixer {
	m := &Mixer{
		rt:      rt,
		logger:  slog.Default(),
		sources: make(map[string]source),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.roomWet < 0 {
		m.roomWet = 0
	}
	if m.roomWet > 1 {
		m.roomWet = 1
	}
	return m
}

// SetSource adds id or replaces its graph and gain. Keyed state inside sig
// survives the replacement as long as its keys do.
func (m *Mixer) SetSource(id string, sig graph.Stereo, opts SourceOptions) error {
	if id == "" {
		return fmt.Errorf("mixer: empty source id")
	}
	if sig.L == nil || sig.R == nil {
		return fmt.Errorf("mixer: source %q has a nil channel", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[id] = source{sig: sig, gain: opts.Gain}
	return m.submitLocked()
}

// RemoveSource stops id. Removing an unknown id still resubmits.
func (m *Mixer) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
	return m.submitLocked()
}

// Silence removes every source. The submitted graph is exact zero.
func (m *Mixer) Silence() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = make(map[string]source)
	return m.submitLocked()
}

// Sources returns the active source ids, sorted.
func (m *Mixer) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Graph returns the master graph for the current sources.
func (m *Mixer) Graph() graph.Stereo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graphLocked()
}

func (m *Mixer) graphLocked() graph.Stereo {
	if len(m.sources) == 0 {
		return graph.Stereo{L: graph.Const(0), R: graph.Const(0)}
	}
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ls := make([]*graph.Node, len(ids))
	rs := make([]*graph.Node, len(ids))
	for i, id := range ids {
		src := m.sources[id]
		gain := graph.SmoothTau(graph.Key("mix", "gain", id), 0.02, graph.Const(src.gain))
		ls[i] = graph.Mul(src.sig.L, gain)
		rs[i] = graph.Mul(src.sig.R, gain)
	}
	out := graph.Stereo{L: graph.Add(ls...), R: graph.Add(rs...)}

	if m.roomPath != "" && m.roomWet > 0 {
		wet := graph.Const(m.roomWet)
		dry := graph.Const(1 - m.roomWet)
		out = graph.Stereo{
			L: graph.Add(graph.Mul(out.L, dry), graph.Mul(graph.Convolve("mix:room:L", m.roomPath, out.L), wet)),
			R: graph.Add(graph.Mul(out.R, dry), graph.Mul(graph.Convolve("mix:room:R", m.roomPath, out.R), wet)),
		}
	}
	if m.meter != "" {
		out = graph.Stereo{
			L: graph.FFT(m.meter, graph.Meter(m.meter+":L", out.L)),
			R: graph.Meter(m.meter+":R", out.R),
		}
	}
	return out
}

func (m *Mixer) submitLocked() error {
	g := m.graphLocked()
	if err := m.rt.Submit(g); err != nil {
		return fmt.Errorf("mixer submit: %w", err)
	}
	m.logger.Debug("mixer submitted", "sources", len(m.sources))
	return nil
}

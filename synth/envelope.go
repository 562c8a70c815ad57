// Package synth builds the installation's generator graphs: granular
// sampler, resonator bank, envelopes, the Diffuse World texture and the
// melodic sequencer. Builders are pure: they clamp their inputs and return
// immutable graphs whose continuity across rebuilds comes from stable keys.
package synth

import (
	"github.com/casperleerink/circular-music/graph"
)

// EnvelopeTickRate is the rate of the envelope's internal tick clock.
const EnvelopeTickRate = 1000.0

const minEnvelopeTime = 0.001

// EnvelopeParams describes one envelope submission. Attack and Release are
// in seconds; SustainTick counts EnvelopeTickRate ticks after the gate rises.
type EnvelopeParams struct {
	Gate        bool
	Attack      float64
	Sustain     float64
	Release     float64
	SustainTick int
}

// DefaultEnvelopeParams returns a 10 ms / 0.5 / 100 ms envelope reaching
// sustain after 50 ticks.
func DefaultEnvelopeParams() EnvelopeParams {
	return EnvelopeParams{Attack: 0.01, Sustain: 0.5, Release: 0.1, SustainTick: 50}
}

// Envelope returns a control signal that jumps towards 1 on the rising edge
// of Gate, falls towards Sustain after SustainTick ticks and releases to 0
// once Gate drops. The smoothing time constant is Attack while the gate is
// high and Release while it is low, so switching stages needs a new
// submission.
func Envelope(key string, p EnvelopeParams) *graph.Node {
	gate := 0.0
	if p.Gate {
		gate = 1
	}
	attack := clampf(p.Attack, minEnvelopeTime, 60, minEnvelopeTime)
	release := clampf(p.Release, minEnvelopeTime, 60, minEnvelopeTime)
	sustain := clampf(p.Sustain, 0, 1, 0)
	sustainTick := p.SustainTick
	if sustainTick < 0 {
		sustainTick = 0
	}

	clock := graph.Train(graph.Key(key, "clock"), graph.Const(EnvelopeTickRate))
	seq := graph.SparSeq(graph.Key(key, "seq"), []graph.Event{
		{Tick: 0, Value: 1},
		{Tick: sustainTick, Value: sustain},
	}, clock, graph.Const(gate))
	target := graph.Mul(graph.Const(gate), seq)

	tau := release
	if p.Gate {
		tau = attack
	}
	return graph.SmoothTau(graph.Key(key, "env"), tau, target)
}

// Trigger returns the two graphs that retrigger an envelope: gate low, then
// gate high. Submit them on consecutive scheduling ticks so the runtime
// sees the rising edge.
func Trigger(key string, p EnvelopeParams) [2]*graph.Node {
	lo, hi := p, p
	lo.Gate = false
	hi.Gate = true
	return [2]*graph.Node{Envelope(key, lo), Envelope(key, hi)}
}

package synth

import (
	"fmt"

	"github.com/casperleerink/circular-music/graph"
)

// diffuseVoice is one entry of the Diffuse World roster.
type diffuseVoice struct {
	tickHz    float64 // chance clock
	minHz     float64
	maxHz     float64
	sweepHz   float64
	decayTick int // at 100 Hz
	endTick   int
	gain      float64
}

// The tick rates share no integer ratio, so the texture never repeats.
var diffuseRoster = [5]diffuseVoice{
	{tickHz: 0.37, minHz: 200, maxHz: 800, sweepHz: 0.031, decayTick: 8, endTick: 40, gain: 0.35},
	{tickHz: 0.53, minHz: 600, maxHz: 2000, sweepHz: 0.047, decayTick: 12, endTick: 60, gain: 0.30},
	{tickHz: 0.71, minHz: 1500, maxHz: 4000, sweepHz: 0.023, decayTick: 20, endTick: 90, gain: 0.20},
	{tickHz: 0.29, minHz: 3000, maxHz: 8000, sweepHz: 0.059, decayTick: 15, endTick: 70, gain: 0.15},
	{tickHz: 0.43, minHz: 80, maxHz: 300, sweepHz: 0.017, decayTick: 30, endTick: 120, gain: 0.40},
}

const diffuseBurstRate = 100.0

// DiffuseParams controls the Diffuse World texture. Probability is the
// chance that a voice fires on each of its clock ticks.
type DiffuseParams struct {
	Active      bool
	Probability float64
	Gain        float64
}

// DefaultDiffuseParams returns the installation's default texture.
func DefaultDiffuseParams() DiffuseParams {
	return DiffuseParams{Active: true, Probability: 0.35, Gain: 0.6}
}

// DiffuseWorld builds the texture with default probability and gain.
func DiffuseWorld(key string, active bool) graph.Stereo {
	p := DefaultDiffuseParams()
	p.Active = active
	return DiffuseWorldWith(key, p)
}

// diffuseFire is the voice's fire pulse: high during a chance-clock pulse
// whose latched draw fell below probability.
func diffuseFire(vk string, v diffuseVoice, probability float64) *graph.Node {
	tick := graph.Train(graph.Key(vk, "tick"), graph.Const(v.tickHz))
	chance := graph.Latch(graph.Key(vk, "chance"), tick, graph.Rand(graph.Key(vk, "chancerand")))
	return graph.Mul(tick, graph.Lt(chance, graph.Const(probability)))
}

func diffuseVoiceSignal(key string, i int, v diffuseVoice, probability float64) *graph.Node {
	vk := graph.Key(key, fmt.Sprintf("d%d", i))
	fire := diffuseFire(vk, v, probability)

	center := graph.Latch(graph.Key(vk, "fc"), fire,
		graph.Add(graph.Const(v.minHz), graph.Mul(graph.Rand(graph.Key(vk, "fcrand")), graph.Const(v.maxHz-v.minHz))))
	q := graph.Latch(graph.Key(vk, "q"), fire,
		graph.Add(graph.Const(0.5), graph.Mul(graph.Rand(graph.Key(vk, "qrand")), graph.Const(1.5))))
	sweep := graph.Mul(center,
		graph.Add(graph.Const(1), graph.Mul(graph.Const(0.3), graph.Cycle(graph.Key(vk, "sweep"), graph.Const(v.sweepHz)))))

	clock := graph.Train(graph.Key(vk, "clock"), graph.Const(diffuseBurstRate))
	burst := graph.SparSeq(graph.Key(vk, "burst"), []graph.Event{
		{Tick: 0, Value: 1},
		{Tick: v.decayTick, Value: 0.35},
		{Tick: v.endTick, Value: 0},
	}, clock, fire)
	env := graph.SmoothTau(graph.Key(vk, "env"), 0.01, burst)

	noise := graph.PinkNoise(graph.Key(vk, "noise"))
	filtered := graph.Bandpass(graph.Key(vk, "bp"), sweep, q, noise)
	return graph.Mul(filtered, env, graph.Const(v.gain))
}

// DiffuseWorldWith builds five independently gated noise-burst voices,
// summed and sent through the tapped room reverb at a 50/50 blend. An
// inactive world is exact silence.
func DiffuseWorldWith(key string, p DiffuseParams) graph.Stereo {
	if !p.Active {
		return graph.Silence()
	}
	probability := clampf(p.Probability, 0, 1, 0)
	gain := clampf(p.Gain, 0, 4, 0)

	voices := make([]*graph.Node, len(diffuseRoster))
	for i, v := range diffuseRoster {
		voices[i] = diffuseVoiceSignal(key, i, v, probability)
	}
	sum := graph.Mul(graph.Add(voices...), graph.Const(gain))
	return roomReverb(graph.Key(key, "verb"), sum, 0.5)
}

package synth

import (
	"fmt"

	"github.com/casperleerink/circular-music/graph"
)

// Band is one resonator band-pass.
type Band struct {
	Freq float64
	Q    float64
	Gain float64
}

// ResonatorParams controls the three-band resonator. Mix crossfades from the
// dry input (0) to the band sum (1).
type ResonatorParams struct {
	Bands [3]Band
	Mix   float64
}

// DefaultResonatorParams tunes the bands to an open A minor chord.
func DefaultResonatorParams() ResonatorParams {
	return ResonatorParams{
		Bands: [3]Band{
			{Freq: 220, Q: 30, Gain: 0.5},
			{Freq: 329.63, Q: 30, Gain: 0.4},
			{Freq: 523.25, Q: 40, Gain: 0.3},
		},
		Mix: 0.5,
	}
}

func (b Band) clamped() Band {
	b.Freq = clampf(b.Freq, 20, 20000, 440)
	b.Q = clampf(b.Q, 10, 100, 10)
	b.Gain = clampf(b.Gain, 0, 4, 0)
	return b
}

// resonatorWet is the band sum of one channel.
func resonatorWet(key, ch string, bands [3]Band, x *graph.Node) *graph.Node {
	outs := make([]*graph.Node, len(bands))
	for i, b := range bands {
		b = b.clamped()
		bp := graph.Bandpass(graph.Key(key, ch, fmt.Sprintf("b%d", i)), graph.Const(b.Freq), graph.Const(b.Q), x)
		outs[i] = graph.Mul(bp, graph.Const(b.Gain))
	}
	return graph.Add(outs...)
}

// Resonator runs each channel of in through three parallel band-passes and
// crossfades with the dry signal. Channels never mix.
func Resonator(key string, p ResonatorParams, in graph.Stereo) graph.Stereo {
	mix := graph.SmoothTau(graph.Key(key, "mix"), 0.02, graph.Const(clampf(p.Mix, 0, 1, 0)))
	return graph.Stereo{
		L: blend(in.L, resonatorWet(key, "L", p.Bands, in.L), mix),
		R: blend(in.R, resonatorWet(key, "R", p.Bands, in.R), mix),
	}
}

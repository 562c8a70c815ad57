package synth

import (
	"fmt"

	"github.com/casperleerink/circular-music/graph"
)

// reverbTap is one feedback delay of a tapped reverb.
type reverbTap struct {
	seconds  float64
	feedback float64
	gain     float64
}

var (
	roomTapsL = [3]reverbTap{{0.037, 0.45, 1.0 / 3}, {0.053, 0.40, 1.0 / 3}, {0.079, 0.35, 1.0 / 3}}
	roomTapsR = [3]reverbTap{{0.041, 0.45, 1.0 / 3}, {0.061, 0.40, 1.0 / 3}, {0.089, 0.35, 1.0 / 3}}
)

// tapReverb sums three parallel feedback delays of x.
func tapReverb(key string, x *graph.Node, taps [3]reverbTap) *graph.Node {
	outs := make([]*graph.Node, len(taps))
	for i, tap := range taps {
		length := graph.Mul(graph.SR(), graph.Const(tap.seconds))
		d := graph.Delay(graph.Key(key, fmt.Sprintf("t%d", i)), tap.seconds, length, graph.Const(tap.feedback), x)
		outs[i] = graph.Mul(d, graph.Const(tap.gain))
	}
	return graph.Add(outs...)
}

// blend mixes dry and wet as dry*(1-mix) + wet*mix.
func blend(dry, wet, mix *graph.Node) *graph.Node {
	return graph.Add(
		graph.Mul(dry, graph.Sub(graph.Const(1), mix)),
		graph.Mul(wet, mix),
	)
}

// roomReverb runs mono x through the stereo tapped reverb and blends it in
// with a constant mix.
func roomReverb(key string, x *graph.Node, mix float64) graph.Stereo {
	m := graph.Const(clampf(mix, 0, 1, 0))
	return graph.Stereo{
		L: blend(x, tapReverb(graph.Key(key, "L"), x, roomTapsL), m),
		R: blend(x, tapReverb(graph.Key(key, "R"), x, roomTapsR), m),
	}
}

package synth

import (
	"fmt"
	"math"

	"github.com/casperleerink/circular-music/graph"
	"github.com/casperleerink/circular-music/registry"
)

// GranularVoices is the fixed number of grain voices.
const GranularVoices = 8

// voicePrimes sets each voice's rate multiplier sqrt(p/7). The ratios are
// irrational, so no two voices fire in lockstep.
var voicePrimes = [GranularVoices]float64{7, 5, 11, 3, 13, 2, 17, 19}

// Shape selects the grain envelope.
type Shape int

const (
	ShapeHann Shape = iota
	// ShapeTrapezoid ramps over the first and last 10% of the grain.
	ShapeTrapezoid
)

func (s Shape) String() string {
	switch s {
	case ShapeHann:
		return "hann"
	case ShapeTrapezoid:
		return "trapezoid"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape maps a shape name back to a Shape.
func ParseShape(name string) (Shape, error) {
	switch name {
	case "", "hann":
		return ShapeHann, nil
	case "trapezoid":
		return ShapeTrapezoid, nil
	}
	return ShapeHann, fmt.Errorf("unknown grain shape %q", name)
}

// GranularParams controls the granular engine. Spray and spread values are
// fractions in [0,1].
type GranularParams struct {
	SamplePath    string
	GrainSizeMs   float64
	DensityHz     float64
	Position      float64
	Pitch         float64
	PositionSpray float64
	PitchSpray    float64
	StereoSpread  float64
	Gain          float64
	Shape         Shape
}

// DefaultGranularParams returns a moderate cloud of 80 ms grains.
func DefaultGranularParams(samplePath string) GranularParams {
	return GranularParams{
		SamplePath:    samplePath,
		GrainSizeMs:   80,
		DensityHz:     12,
		Position:      0.3,
		Pitch:         1,
		PositionSpray: 0.1,
		PitchSpray:    0.05,
		StereoSpread:  0.7,
		Gain:          0.5,
		Shape:         ShapeHann,
	}
}

func (p GranularParams) clamped() GranularParams {
	p.GrainSizeMs = clampf(p.GrainSizeMs, 5, 200, 80)
	p.DensityHz = clampf(p.DensityHz, 1, 50, 12)
	p.Position = clampf(p.Position, 0, 1, 0)
	p.Pitch = clampf(p.Pitch, 0.01, 16, 1)
	p.PositionSpray = clampf(p.PositionSpray, 0, 1, 0)
	p.PitchSpray = clampf(p.PitchSpray, 0, 1, 0)
	p.StereoSpread = clampf(p.StereoSpread, 0, 1, 0)
	p.Gain = clampf(p.Gain, 0, 4, 0)
	return p
}

// grainVoice holds the signals of one voice; tests inspect them directly.
type grainVoice struct {
	trig   *graph.Node
	phase  *graph.Node
	active *graph.Node
	env    *graph.Node
	out    graph.Stereo
}

func buildGrainVoice(key string, p GranularParams, i int, sampleLength int) grainVoice {
	vk := graph.Key(key, fmt.Sprintf("v%d", i))
	rate := p.DensityHz / GranularVoices * math.Sqrt(voicePrimes[i]/7)
	trig := staggeredTrain(graph.Key(vk, "trig"), rate, float64(i)/(2*GranularVoices))

	posRand := graph.Latch(graph.Key(vk, "pos"), trig, graph.Rand(graph.Key(vk, "posrand")))
	pitchRand := graph.Latch(graph.Key(vk, "pitch"), trig, graph.Rand(graph.Key(vk, "pitchrand")))
	panRand := graph.Latch(graph.Key(vk, "pan"), trig, graph.Rand(graph.Key(vk, "panrand")))

	pos := graph.Clamp(graph.Add(graph.Const(p.Position), graph.Mul(graph.Bipolar(posRand), graph.Const(p.PositionSpray))), 0, 1)
	pitchRatio := graph.Mul(graph.Const(p.Pitch),
		graph.Add(graph.Const(1), graph.Mul(graph.Bipolar(pitchRand), graph.Const(p.PitchSpray*0.5))))

	// Pitch is at least 0.01 and the grain at least 5 ms, so the step and
	// the grain length stay positive.
	grainSamples := graph.Mul(graph.SR(), graph.Const(p.GrainSizeMs/1000))
	phase := graph.Accum(graph.Key(vk, "phase"), graph.Div(pitchRatio, grainSamples), trig)
	// Silent until the first trigger; the accumulator runs from the start.
	started := graph.Latch(graph.Key(vk, "started"), trig, graph.Const(1))
	active := graph.Mul(graph.Lt(phase, graph.Const(1)), started)
	readPhase := graph.Mul(phase, active)

	var shape *graph.Node
	switch p.Shape {
	case ShapeTrapezoid:
		ramp := graph.Min(graph.Mul(readPhase, graph.Const(10)), graph.Mul(graph.Sub(graph.Const(1), readPhase), graph.Const(10)))
		shape = graph.Clamp(ramp, 0, 1)
	default:
		shape = graph.Mul(graph.Const(0.5), graph.Sub(graph.Const(1), graph.Cos(graph.Mul(graph.Const(2*math.Pi), readPhase))))
	}
	env := graph.Mul(shape, active)

	length := graph.Const(float64(sampleLength))
	read := graph.Mod(graph.Add(graph.Mul(pos, length), graph.Mul(readPhase, grainSamples)), length)
	grain := graph.Mul(graph.Table(p.SamplePath, graph.Div(read, length)), env)

	angle := graph.Mul(
		graph.Add(graph.Const(0.5), graph.Mul(graph.Const(p.StereoSpread), graph.Sub(panRand, graph.Const(0.5)))),
		graph.Const(math.Pi/2),
	)
	return grainVoice{
		trig:   trig,
		phase:  phase,
		active: active,
		env:    env,
		out: graph.Stereo{
			L: graph.Mul(grain, graph.Cos(angle)),
			R: graph.Mul(grain, graph.Sin(angle)),
		},
	}
}

// staggeredTrain pulses once per cycle at rate Hz. Its first rising edge
// comes (0.5-offset)/rate seconds in, so voices with distinct offsets in
// [0, 0.5) never start together.
func staggeredTrain(key string, rate, offset float64) *graph.Node {
	shifted := graph.Mod(graph.Add(graph.Phasor(key, graph.Const(rate)), graph.Const(offset)), graph.Const(1))
	return graph.Ge(shifted, graph.Const(0.5))
}

// Granular builds the eight-voice grain cloud over the sample at
// p.SamplePath, which holds sampleLength samples. Each voice restarts a
// grain on its own trigger; one accumulator drives both the grain envelope
// and the read sweep, so playback rate equals the grain's pitch ratio.
// A missing path or empty sample yields silence.
func Granular(key string, p GranularParams, sampleLength int) graph.Stereo {
	if p.SamplePath == "" || sampleLength < 1 {
		return graph.Silence()
	}
	p = p.clamped()
	ls := make([]*graph.Node, GranularVoices)
	rs := make([]*graph.Node, GranularVoices)
	for i := 0; i < GranularVoices; i++ {
		v := buildGrainVoice(key, p, i, sampleLength)
		ls[i], rs[i] = v.out.L, v.out.R
	}
	gain := graph.SmoothTau(graph.Key(key, "gain"), 0.02, graph.Const(p.Gain))
	return graph.Stereo{
		L: graph.Mul(graph.Add(ls...), gain),
		R: graph.Mul(graph.Add(rs...), gain),
	}
}

// GranularFromRegistry resolves the sample length through reg.
func GranularFromRegistry(key string, p GranularParams, reg *registry.Registry) (graph.Stereo, error) {
	n, err := reg.Length(p.SamplePath)
	if err != nil {
		return graph.Silence(), fmt.Errorf("granular %s: %w", key, err)
	}
	return Granular(key, p, n), nil
}

package graph

import (
	"math"
	"sort"
)

// Const returns a constant signal.
func Const(v float64) *Node {
	return &Node{Kind: KindConst, Value: v}
}

// SR returns the runtime sample rate as a signal.
func SR() *Node {
	return &Node{Kind: KindSampleRate}
}

// Add sums xs. No arguments yields 0, one argument yields that argument.
func Add(xs ...*Node) *Node {
	switch len(xs) {
	case 0:
		return Const(0)
	case 1:
		return xs[0]
	}
	return &Node{Kind: KindAdd, Args: xs}
}

// Mul multiplies xs. No arguments yields 1, one argument yields that argument.
func Mul(xs ...*Node) *Node {
	switch len(xs) {
	case 0:
		return Const(1)
	case 1:
		return xs[0]
	}
	return &Node{Kind: KindMul, Args: xs}
}

func op2(k Kind, a, b *Node) *Node {
	return &Node{Kind: k, Args: []*Node{a, b}}
}

func Sub(a, b *Node) *Node { return op2(KindSub, a, b) }

// Div returns a/b, or 0 where b is 0.
func Div(a, b *Node) *Node { return op2(KindDiv, a, b) }

func Min(a, b *Node) *Node { return op2(KindMin, a, b) }
func Max(a, b *Node) *Node { return op2(KindMax, a, b) }

// Mod returns a modulo b in [0,b) for b > 0, or 0 where b is 0.
func Mod(a, b *Node) *Node { return op2(KindMod, a, b) }

// Lt returns 1 where a < b and 0 elsewhere.
func Lt(a, b *Node) *Node { return op2(KindLt, a, b) }

// Ge returns 1 where a >= b and 0 elsewhere.
func Ge(a, b *Node) *Node { return op2(KindGe, a, b) }

func Sin(x *Node) *Node { return &Node{Kind: KindSin, Args: []*Node{x}} }
func Cos(x *Node) *Node { return &Node{Kind: KindCos, Args: []*Node{x}} }

// Clamp limits x to [lo, hi].
func Clamp(x *Node, lo, hi float64) *Node {
	return Min(Max(x, Const(lo)), Const(hi))
}

// Bipolar maps a unipolar [0,1) signal to [-1,1).
func Bipolar(x *Node) *Node {
	return Sub(Mul(x, Const(2)), Const(1))
}

// Seconds converts a duration in seconds into samples at the runtime rate.
func Seconds(s float64) *Node {
	return Mul(Const(s), SR())
}

// Tau2Pole converts a time constant in seconds into a one-pole coefficient.
func Tau2Pole(t *Node) *Node {
	return &Node{Kind: KindTau2Pole, Args: []*Node{t}}
}

// Phasor ramps from 0 towards 1 at rate Hz.
func Phasor(key string, rate *Node) *Node {
	return &Node{Kind: KindPhasor, Key: key, Args: []*Node{rate}}
}

// Train is a pulse train at rate Hz: 1 during the first half of each cycle.
// Its rising edges fall on phasor wraps.
func Train(key string, rate *Node) *Node {
	return Lt(Phasor(key, rate), Const(0.5))
}

// Cycle is a sine oscillator at freq Hz.
func Cycle(key string, freq *Node) *Node {
	return Sin(Mul(Const(2*math.Pi), Phasor(key, freq)))
}

// Saw is a naive bipolar sawtooth at freq Hz.
func Saw(key string, freq *Node) *Node {
	return Bipolar(Phasor(key, freq))
}

// Rand is uniform noise in [0,1).
func Rand(key string) *Node {
	return &Node{Kind: KindRand, Key: key}
}

// Noise is uniform white noise in [-1,1).
func Noise(key string) *Node {
	return &Node{Kind: KindNoise, Key: key}
}

// PinkNoise is white noise shaped to a -3 dB/octave slope.
func PinkNoise(key string) *Node {
	return &Node{Kind: KindPinkNoise, Key: key}
}

// Latch samples x on each rising edge of trig and holds it.
func Latch(key string, trig, x *Node) *Node {
	return &Node{Kind: KindLatch, Key: key, Args: []*Node{trig, x}}
}

// Accum integrates inc per sample and restarts from 0 on each rising edge
// of reset.
func Accum(key string, inc, reset *Node) *Node {
	return &Node{Kind: KindAccum, Key: key, Args: []*Node{inc, reset}}
}

// Smooth is a one-pole low-pass: y = p*y + (1-p)*x, starting from 0.
func Smooth(key string, pole, x *Node) *Node {
	return &Node{Kind: KindSmooth, Key: key, Args: []*Node{pole, x}}
}

// SmoothTau smooths x with a fixed time constant in seconds.
func SmoothTau(key string, tau float64, x *Node) *Node {
	return Smooth(key, Tau2Pole(Const(tau)), x)
}

// SparSeq steps through events counted in rising edges of tick. A rising
// edge of reset rewinds the count to 0 and applies the tick-0 events.
// Before the first reset the output is 0.
func SparSeq(key string, events []Event, tick, reset *Node) *Node {
	seq := make([]Event, len(events))
	copy(seq, events)
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].Tick < seq[j].Tick })
	return &Node{Kind: KindSparSeq, Key: key, Seq: seq, Args: []*Node{tick, reset}}
}

// Table reads the virtual sample at path. pos is normalized and wrapped into
// [0,1); reads interpolate linearly.
func Table(path string, pos *Node) *Node {
	return &Node{Kind: KindTable, Path: path, Args: []*Node{pos}}
}

// Bandpass is a constant-peak band-pass biquad.
func Bandpass(key string, fc, q, x *Node) *Node {
	return &Node{Kind: KindBandpass, Key: key, Args: []*Node{fc, q, x}}
}

// Lowpass is a resonant low-pass biquad.
func Lowpass(key string, fc, q, x *Node) *Node {
	return &Node{Kind: KindLowpass, Key: key, Args: []*Node{fc, q, x}}
}

// Delay is a feedback delay line able to hold maxSeconds of signal. length
// is in samples.
func Delay(key string, maxSeconds float64, length, feedback, x *Node) *Node {
	return &Node{Kind: KindDelay, Key: key, Value: maxSeconds, Args: []*Node{length, feedback, x}}
}

// Convolve filters x with the impulse response stored at path.
func Convolve(key, path string, x *Node) *Node {
	return &Node{Kind: KindConvolve, Key: key, Path: path, Args: []*Node{x}}
}

// Meter passes x through and reports its level once per block as name.
func Meter(name string, x *Node) *Node {
	return &Node{Kind: KindMeter, Key: Key("meter", name), Path: name, Args: []*Node{x}}
}

// Snapshot passes x through and reports its value on rising edges of trig.
func Snapshot(name string, trig, x *Node) *Node {
	return &Node{Kind: KindSnapshot, Key: Key("snapshot", name), Path: name, Args: []*Node{trig, x}}
}

// FFT passes x through and reports its magnitude spectrum as name.
func FFT(name string, x *Node) *Node {
	return &Node{Kind: KindFFT, Key: Key("fft", name), Path: name, Args: []*Node{x}}
}

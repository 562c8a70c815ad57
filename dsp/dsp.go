package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter whose coefficients can be
// retuned without clearing its history.
type Biquad struct {
	// Coefficients (normalized by a0)
	b0, b1, b2 float64
	a1, a2     float64

	// State (previous samples)
	x1, x2 float64 // input history
	y1, y2 float64 // output history

	// Last design inputs, used to skip redundant redesigns.
	kind       filterKind
	fc, q, fs  float64
	configured bool
}

type filterKind int

const (
	kindLowpass filterKind = iota + 1
	kindBandpass
)

// Process processes one sample through the biquad filter.
func (b *Biquad) Process(input float64) float64 {
	// Direct Form I implementation
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = dspcore.FlushDenormals(output)

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// SetLowpass retunes the filter to an RBJ low-pass. History is kept.
func (b *Biquad) SetLowpass(cutoff, q, sampleRate float64) {
	if !b.retune(kindLowpass, cutoff, q, sampleRate) {
		return
	}
	_, alpha, cosw0 := rbj(b.fc, b.q, b.fs)
	a0 := 1.0 + alpha
	b.set(
		(1.0-cosw0)/2.0/a0,
		(1.0-cosw0)/a0,
		(1.0-cosw0)/2.0/a0,
		-2.0*cosw0/a0,
		(1.0-alpha)/a0,
	)
}

// SetBandpass retunes the filter to an RBJ band-pass with 0 dB peak gain.
// History is kept.
func (b *Biquad) SetBandpass(center, q, sampleRate float64) {
	if !b.retune(kindBandpass, center, q, sampleRate) {
		return
	}
	_, alpha, cosw0 := rbj(b.fc, b.q, b.fs)
	a0 := 1.0 + alpha
	b.set(
		alpha/a0,
		0,
		-alpha/a0,
		-2.0*cosw0/a0,
		(1.0-alpha)/a0,
	)
}

// retune clamps the design inputs and reports whether they changed.
func (b *Biquad) retune(kind filterKind, fc, q, fs float64) bool {
	if fs <= 0 {
		fs = 48000
	}
	if math.IsNaN(fc) || fc < 10 {
		fc = 10
	}
	if fc > fs*0.49 {
		fc = fs * 0.49
	}
	if math.IsNaN(q) || q < 0.1 {
		q = 0.1
	}
	if q > 200 {
		q = 200
	}
	if b.configured && b.kind == kind && b.fc == fc && b.q == q && b.fs == fs {
		return false
	}
	b.kind, b.fc, b.q, b.fs = kind, fc, q, fs
	b.configured = true
	return true
}

func (b *Biquad) set(b0, b1, b2, a1, a2 float64) {
	b.b0, b.b1, b.b2 = b0, b1, b2
	b.a1, b.a2 = a1, a2
}

func rbj(fc, q, fs float64) (w0, alpha, cosw0 float64) {
	w0 = 2.0 * math.Pi * fc / fs
	alpha = math.Sin(w0) / (2.0 * q)
	cosw0 = math.Cos(w0)
	return w0, alpha, cosw0
}

// DelayLine implements a circular buffer for delay.
type DelayLine struct {
	buffer   []float64
	writePos int
	size     int
}

// NewDelayLine creates a new delay line with the given size.
func NewDelayLine(size int) *DelayLine {
	if size < 2 {
		size = 2
	}
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write writes a sample to the delay line.
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % d.size
}

// Read reads a sample from the delay line at the given delay (in samples).
// A delay of 1 returns the most recently written sample.
func (d *DelayLine) Read(delay int) float64 {
	if delay < 1 {
		delay = 1
	}
	if delay > d.size {
		delay = d.size
	}
	readPos := (d.writePos - delay + d.size) % d.size
	return d.buffer[readPos]
}

// ReadFractional reads with fractional delay using linear interpolation.
func (d *DelayLine) ReadFractional(delay float64) float64 {
	if delay < 1 {
		delay = 1
	}
	if delay > float64(d.size-1) {
		delay = float64(d.size - 1)
	}
	intDelay := int(delay)
	frac := delay - float64(intDelay)

	sample1 := d.Read(intDelay)
	sample2 := d.Read(intDelay + 1)

	return sample1 + frac*(sample2-sample1)
}

// PinkFilter shapes white noise towards a -3 dB/octave spectrum (Paul
// Kellet's economy three-pole filter).
type PinkFilter struct {
	b0, b1, b2 float64
}

// Process filters one white noise sample in [-1,1).
func (p *PinkFilter) Process(white float64) float64 {
	p.b0 = 0.99765*p.b0 + white*0.0990460
	p.b1 = 0.96300*p.b1 + white*0.2965164
	p.b2 = 0.57000*p.b2 + white*1.0526913
	return (p.b0 + p.b1 + p.b2 + white*0.1848) * 0.25
}

// Package analysis computes the level and spectrum readings a runtime
// reports alongside rendered audio.
package analysis

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Level summarizes one block of samples.
type Level struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Peak float64 `json:"peak"`
	RMS  float64 `json:"rms"`
}

// Measure returns the level of x. An empty block measures as silence.
func Measure(x []float64) Level {
	if len(x) == 0 {
		return Level{}
	}
	l := Level{Min: x[0], Max: x[0]}
	var sum float64
	for _, v := range x {
		if v < l.Min {
			l.Min = v
		}
		if v > l.Max {
			l.Max = v
		}
		sum += v * v
	}
	l.Peak = math.Max(math.Abs(l.Min), math.Abs(l.Max))
	l.RMS = math.Sqrt(sum / float64(len(x)))
	return l
}

// DBFS converts a linear amplitude to dBFS, floored at -120.
func DBFS(v float64) float64 {
	const floor = -120.0
	if v <= 0 {
		return floor
	}
	db := 20 * math.Log10(v)
	if db < floor {
		return floor
	}
	return db
}

// Bands holds RMS levels of a low/mid/high split.
type Bands struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

const (
	lowSplitHz  = 250.0
	highSplitHz = 4000.0
)

// BandSplitter tracks low/mid/high energy for visual feedback. Crossovers
// are second-order Butterworth sections at 250 Hz and 4 kHz.
type BandSplitter struct {
	low   *biquad.Section
	midHP *biquad.Section
	midLP *biquad.Section
	high  *biquad.Section
}

// NewBandSplitter creates a splitter for sampleRate.
func NewBandSplitter(sampleRate float64) *BandSplitter {
	if sampleRate < 8000 {
		sampleRate = 8000
	}
	q := 1 / math.Sqrt2
	high := math.Min(highSplitHz, sampleRate*0.45)
	return &BandSplitter{
		low:   biquad.NewSection(design.Lowpass(lowSplitHz, q, sampleRate)),
		midHP: biquad.NewSection(design.Highpass(lowSplitHz, q, sampleRate)),
		midLP: biquad.NewSection(design.Lowpass(high, q, sampleRate)),
		high:  biquad.NewSection(design.Highpass(high, q, sampleRate)),
	}
}

// Process runs x through the crossovers and returns per-band RMS.
func (b *BandSplitter) Process(x []float64) Bands {
	if len(x) == 0 {
		return Bands{}
	}
	var lo, mid, hi float64
	for _, v := range x {
		l := b.low.ProcessSample(v)
		m := b.midLP.ProcessSample(b.midHP.ProcessSample(v))
		h := b.high.ProcessSample(v)
		lo += l * l
		mid += m * m
		hi += h * h
	}
	n := float64(len(x))
	return Bands{
		Low:  math.Sqrt(lo / n),
		Mid:  math.Sqrt(mid / n),
		High: math.Sqrt(hi / n),
	}
}

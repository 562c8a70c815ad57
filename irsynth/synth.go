// Package irsynth synthesizes room impulse responses for the master
// convolution send when no recorded IR is available.
package irsynth

import (
	"fmt"
	"math"

	"github.com/casperleerink/circular-music/dsp"
	"github.com/casperleerink/circular-music/prng"
)

// Config controls synthetic room IR generation.
type Config struct {
	SampleRate int
	DurationS  float64
	Seed       uint64

	DirectLevel float64
	EarlyCount  int
	EarlyWindow float64 // seconds after the direct path
	LateLevel   float64
	DecayS      float64 // time for the tail to fall by 60 dB
	// Damping darkens the tail over time: 0 keeps it white, 1 closes a
	// one-pole low-pass almost fully by the end.
	Damping float64

	NormalizePeak float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    48000,
		DurationS:     1.5,
		Seed:          1,
		DirectLevel:   0.7,
		EarlyCount:    12,
		EarlyWindow:   0.04,
		LateLevel:     0.25,
		DecayS:        1.2,
		Damping:       0.6,
		NormalizePeak: 0.9,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.DurationS <= 0 || c.DurationS > 10 {
		return fmt.Errorf("duration must be in (0, 10] s")
	}
	if c.DirectLevel < 0 {
		return fmt.Errorf("direct level must be >= 0")
	}
	if c.EarlyCount < 0 {
		return fmt.Errorf("early count must be >= 0")
	}
	if c.EarlyWindow <= 0 {
		return fmt.Errorf("early window must be > 0")
	}
	if c.LateLevel < 0 {
		return fmt.Errorf("late level must be >= 0")
	}
	if c.DecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if c.Damping < 0 || c.Damping > 1 {
		return fmt.Errorf("damping must be in [0,1]")
	}
	if c.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// Generate synthesizes a mono room IR: a direct impulse, a cluster of early
// reflections and a pink, progressively damped late tail.
func Generate(cfg Config) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sr := float64(cfg.SampleRate)
	n := int(math.Round(cfg.DurationS * sr))
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	rng := prng.New(cfg.Seed)

	out[0] += cfg.DirectLevel

	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.001 + cfg.EarlyWindow*rng.Float64()
		idx := int(t * sr)
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.10 + 0.35*rng.Float64()) * math.Exp(-t*28.0)
		if rng.Float64() < 0.5 {
			amp = -amp
		}
		out[idx] += amp
	}

	if cfg.LateLevel > 0 {
		// -60 dB over DecayS.
		k := math.Log(1000) / cfg.DecayS
		var pink dsp.PinkFilter
		lp := 0.0
		for i := 0; i < n; i++ {
			t := float64(i) / sr
			env := math.Exp(-k * t)
			// Fade the tail in over the early window.
			if t < cfg.EarlyWindow {
				env *= t / cfg.EarlyWindow
			}
			pole := cfg.Damping * 0.95 * float64(i) / float64(n)
			lp = pole*lp + (1-pole)*pink.Process(2*rng.Float64()-1)
			out[i] += cfg.LateLevel * env * lp
		}
	}

	highpassDC(out, 0.995)
	applyFadeOut(out, math.Min(0.05, cfg.DurationS/4), cfg.SampleRate)

	peak := maxAbs(out)
	if peak < 1e-12 {
		peak = 1e-12
	}
	s := cfg.NormalizePeak / peak
	res := make([]float32, n)
	for i, v := range out {
		res[i] = float32(v * s)
	}
	return res, nil
}

func highpassDC(x []float64, r float64) {
	if len(x) == 0 {
		return
	}
	prevIn := 0.0
	prevOut := 0.0
	for i := range x {
		y := x[i] - prevIn + r*prevOut
		prevIn = x[i]
		prevOut = y
		x[i] = y
	}
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		a := math.Abs(v)
		if a > m {
			m = a
		}
	}
	return m
}

// applyFadeOut applies a cosine fade-out to the last fadeS seconds of buf.
func applyFadeOut(buf []float64, fadeS float64, sampleRate int) {
	fadeN := int(fadeS * float64(sampleRate))
	if fadeN <= 1 || fadeN > len(buf) {
		return
	}
	start := len(buf) - fadeN
	for i := 0; i < fadeN; i++ {
		g := 0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(fadeN-1)))
		buf[start+i] *= g
	}
}

package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
)

// Spectrum computes Hann-windowed magnitude spectra of fixed-size frames.
// Not safe for concurrent use; buffers are reused between calls.
type Spectrum struct {
	size    int
	win     []float64
	winGain float64
	buf     []float64
	spec    []complex128
	forward func(dst []complex128, src []float64)
}

// NewSpectrum creates an analyzer for frames of size samples. size must be
// a power of two of at least 16.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < 16 || size&(size-1) != 0 {
		return nil, fmt.Errorf("spectrum size must be a power of two >= 16: %d", size)
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return nil, fmt.Errorf("spectrum init fft plan: %w", err)
	}
	win := window.Generate(window.TypeHann, size, window.WithPeriodic())
	if len(win) != size {
		return nil, fmt.Errorf("invalid analyzer window size: %d", len(win))
	}
	sum := 0.0
	for _, w := range win {
		sum += w
	}
	return &Spectrum{
		size:    size,
		win:     win,
		winGain: sum / float64(size),
		buf:     make([]float64, size),
		spec:    make([]complex128, size/2+1),
		forward: func(dst []complex128, src []float64) {
			plan.Forward(dst, src)
		},
	}, nil
}

// Size returns the frame length.
func (s *Spectrum) Size() int { return s.size }

// Magnitudes returns size/2+1 linear magnitudes scaled so a full-scale sine
// centered on a bin reads close to 1. Short frames are zero padded.
func (s *Spectrum) Magnitudes(frame []float64) []float64 {
	for i := range s.buf {
		v := 0.0
		if i < len(frame) {
			v = frame[i]
		}
		s.buf[i] = v * s.win[i]
	}
	s.forward(s.spec, s.buf)

	norm := float64(s.size) * math.Max(s.winGain, 1e-12)
	out := make([]float64, len(s.spec))
	last := len(out) - 1
	for k := range out {
		mag := cmplx.Abs(s.spec[k]) / norm
		if k > 0 && k < last {
			mag *= 2
		}
		out[k] = mag
	}
	return out
}

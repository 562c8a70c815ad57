package render

import (
	"fmt"
	"math"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/casperleerink/circular-music/analysis"
	"github.com/casperleerink/circular-music/dsp"
	"github.com/casperleerink/circular-music/graph"
	"github.com/casperleerink/circular-music/prng"
)

// fftFrameSize is the hop and frame length of fft nodes.
const fftFrameSize = 1024

// kernel renders one block of a node. in holds the argument outputs for the
// same block, in argument order.
type kernel interface {
	run(bc *blockContext, out []float64, in [][]float64)
}

type kernelFunc func(bc *blockContext, out []float64, in [][]float64)

func (f kernelFunc) run(bc *blockContext, out []float64, in [][]float64) { f(bc, out, in) }

// edge detects rising edges: previous sample <= 0, current > 0.
type edge struct{ prev float64 }

func (e *edge) rise(v float64) bool {
	r := e.prev <= 0 && v > 0
	e.prev = v
	return r
}

func binaryKernel(op func(a, b float64) float64) kernel {
	return kernelFunc(func(bc *blockContext, out []float64, in [][]float64) {
		a, b := in[0], in[1]
		for i := 0; i < bc.n; i++ {
			out[i] = op(a[i], b[i])
		}
	})
}

func unaryKernel(op func(x float64) float64) kernel {
	return kernelFunc(func(bc *blockContext, out []float64, in [][]float64) {
		x := in[0]
		for i := 0; i < bc.n; i++ {
			out[i] = op(x[i])
		}
	})
}

func fill(out []float64, n int, v float64) {
	for i := 0; i < n; i++ {
		out[i] = v
	}
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func wrapMod(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// kernelFor builds the kernel for n. Stateful kinds bind their state to the
// handle stored under id.
func (o *Offline) kernelFor(id string, n *graph.Node) kernel {
	sr := o.sampleRate
	switch n.Kind {
	case graph.KindConst:
		v := n.Value
		return kernelFunc(func(bc *blockContext, out []float64, _ [][]float64) { fill(out, bc.n, v) })
	case graph.KindSampleRate:
		return kernelFunc(func(bc *blockContext, out []float64, _ [][]float64) { fill(out, bc.n, bc.sampleRate) })
	case graph.KindAdd:
		return kernelFunc(func(bc *blockContext, out []float64, in [][]float64) {
			copy(out[:bc.n], in[0][:bc.n])
			for _, x := range in[1:] {
				for i := 0; i < bc.n; i++ {
					out[i] += x[i]
				}
			}
		})
	case graph.KindMul:
		return kernelFunc(func(bc *blockContext, out []float64, in [][]float64) {
			copy(out[:bc.n], in[0][:bc.n])
			for _, x := range in[1:] {
				for i := 0; i < bc.n; i++ {
					out[i] *= x[i]
				}
			}
		})
	case graph.KindSub:
		return binaryKernel(func(a, b float64) float64 { return a - b })
	case graph.KindDiv:
		return binaryKernel(func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case graph.KindMin:
		return binaryKernel(math.Min)
	case graph.KindMax:
		return binaryKernel(math.Max)
	case graph.KindMod:
		return binaryKernel(wrapMod)
	case graph.KindLt:
		return binaryKernel(func(a, b float64) float64 { return bool01(a < b) })
	case graph.KindGe:
		return binaryKernel(func(a, b float64) float64 { return bool01(a >= b) })
	case graph.KindSin:
		return unaryKernel(math.Sin)
	case graph.KindCos:
		return unaryKernel(math.Cos)
	case graph.KindTau2Pole:
		return unaryKernel(func(t float64) float64 {
			if t <= 0 {
				return 0
			}
			return math.Exp(-1 / (t * sr))
		})

	case graph.KindPhasor:
		return o.bind(id, "phasor", func() any { return &phasorState{} }).(*phasorState)
	case graph.KindRand, graph.KindNoise:
		st := o.bind(id, "rand", func() any {
			return prng.New(o.cfg.Seed ^ prng.HashString(id))
		}).(*prng.Source)
		return &randKernel{src: st, bipolar: n.Kind == graph.KindNoise}
	case graph.KindPinkNoise:
		return o.bind(id, "pinknoise", func() any {
			return &pinkState{src: prng.New(o.cfg.Seed ^ prng.HashString(id))}
		}).(*pinkState)
	case graph.KindLatch:
		return o.bind(id, "latch", func() any { return &latchState{} }).(*latchState)
	case graph.KindAccum:
		return o.bind(id, "accum", func() any { return &accumState{} }).(*accumState)
	case graph.KindSmooth:
		return o.bind(id, "smooth", func() any { return &smoothState{} }).(*smoothState)
	case graph.KindSparSeq:
		st := o.bind(id, "sparseq", func() any { return &sparSeqState{} }).(*sparSeqState)
		at := make(map[int]float64, len(n.Seq))
		for _, e := range n.Seq {
			at[e.Tick] = e.Value
		}
		return &sparSeqKernel{st: st, at: at}
	case graph.KindTable:
		return &tableKernel{data: o.lookup(n.Path)}
	case graph.KindBandpass, graph.KindLowpass:
		st := o.bind(id, string(n.Kind), func() any { return &dsp.Biquad{} }).(*dsp.Biquad)
		return &biquadKernel{b: st, bandpass: n.Kind == graph.KindBandpass}
	case graph.KindDelay:
		size := int(math.Ceil(n.Value*sr)) + 2
		return o.bind(id, fmt.Sprintf("delay:%d", size), func() any {
			return &delayState{line: dsp.NewDelayLine(size)}
		}).(*delayState)
	case graph.KindConvolve:
		ir := o.lookup(n.Path)
		if ir == nil {
			return kernelFunc(func(bc *blockContext, out []float64, _ [][]float64) { fill(out, bc.n, 0) })
		}
		sig := fmt.Sprintf("convolve:%s@%d", n.Path, o.vfsVer[n.Path])
		st := o.bind(id, sig, func() any { return o.newConvolver(n.Path, ir) }).(*convState)
		return st
	case graph.KindMeter:
		return o.bind(id, "meter", func() any {
			return &meterState{name: n.Path, split: analysis.NewBandSplitter(sr)}
		}).(*meterState)
	case graph.KindSnapshot:
		return o.bind(id, "snapshot", func() any { return &snapshotState{name: n.Path} }).(*snapshotState)
	case graph.KindFFT:
		return o.bind(id, "fft", func() any { return o.newFFT(n.Path) }).(*fftState)
	}
	// Unreachable after validate.
	return kernelFunc(func(bc *blockContext, out []float64, _ [][]float64) { fill(out, bc.n, 0) })
}

type phasorState struct{ phase float64 }

func (s *phasorState) run(bc *blockContext, out []float64, in [][]float64) {
	rate := in[0]
	for i := 0; i < bc.n; i++ {
		out[i] = s.phase
		s.phase += rate[i] / bc.sampleRate
		s.phase -= math.Floor(s.phase)
	}
}

type randKernel struct {
	src     *prng.Source
	bipolar bool
}

func (k *randKernel) run(bc *blockContext, out []float64, _ [][]float64) {
	for i := 0; i < bc.n; i++ {
		v := k.src.Float64()
		if k.bipolar {
			v = 2*v - 1
		}
		out[i] = v
	}
}

type pinkState struct {
	src  *prng.Source
	filt dsp.PinkFilter
}

func (s *pinkState) run(bc *blockContext, out []float64, _ [][]float64) {
	for i := 0; i < bc.n; i++ {
		out[i] = s.filt.Process(2*s.src.Float64() - 1)
	}
}

type latchState struct {
	trig  edge
	value float64
}

func (s *latchState) run(bc *blockContext, out []float64, in [][]float64) {
	trig, x := in[0], in[1]
	for i := 0; i < bc.n; i++ {
		if s.trig.rise(trig[i]) {
			s.value = x[i]
		}
		out[i] = s.value
	}
}

type accumState struct {
	reset edge
	sum   float64
}

func (s *accumState) run(bc *blockContext, out []float64, in [][]float64) {
	inc, reset := in[0], in[1]
	for i := 0; i < bc.n; i++ {
		if s.reset.rise(reset[i]) {
			s.sum = 0
		}
		out[i] = s.sum
		s.sum += inc[i]
	}
}

type smoothState struct{ y float64 }

func (s *smoothState) run(bc *blockContext, out []float64, in [][]float64) {
	pole, x := in[0], in[1]
	for i := 0; i < bc.n; i++ {
		p := pole[i]
		s.y = p*s.y + (1-p)*x[i]
		out[i] = s.y
	}
}

type sparSeqState struct {
	tick, reset edge
	count       int
	started     bool
	value       float64
}

// sparSeqKernel pairs persistent counting state with the event table of
// the submission that built it.
type sparSeqKernel struct {
	st *sparSeqState
	at map[int]float64
}

func (k *sparSeqKernel) run(bc *blockContext, out []float64, in [][]float64) {
	s := k.st
	tick, reset := in[0], in[1]
	for i := 0; i < bc.n; i++ {
		tickEdge := s.tick.rise(tick[i])
		if s.reset.rise(reset[i]) {
			s.count = 0
			s.started = true
			if v, ok := k.at[0]; ok {
				s.value = v
			}
		} else if s.started && tickEdge {
			s.count++
			if v, ok := k.at[s.count]; ok {
				s.value = v
			}
		}
		out[i] = s.value
	}
}

type tableKernel struct{ data []float32 }

func (k *tableKernel) run(bc *blockContext, out []float64, in [][]float64) {
	if len(k.data) == 0 {
		fill(out, bc.n, 0)
		return
	}
	pos := in[0]
	size := len(k.data)
	for i := 0; i < bc.n; i++ {
		p := pos[i] - math.Floor(pos[i])
		idx := p * float64(size)
		i0 := int(idx)
		if i0 >= size {
			i0 = size - 1
		}
		frac := idx - float64(i0)
		i1 := i0 + 1
		if i1 >= size {
			i1 = 0
		}
		a := float64(k.data[i0])
		b := float64(k.data[i1])
		out[i] = a + (b-a)*frac
	}
}

type biquadKernel struct {
	b        *dsp.Biquad
	bandpass bool
}

func (k *biquadKernel) run(bc *blockContext, out []float64, in [][]float64) {
	fc, q, x := in[0], in[1], in[2]
	for i := 0; i < bc.n; i++ {
		if k.bandpass {
			k.b.SetBandpass(fc[i], q[i], bc.sampleRate)
		} else {
			k.b.SetLowpass(fc[i], q[i], bc.sampleRate)
		}
		out[i] = k.b.Process(x[i])
	}
}

type delayState struct{ line *dsp.DelayLine }

func (s *delayState) run(bc *blockContext, out []float64, in [][]float64) {
	length, fb, x := in[0], in[1], in[2]
	for i := 0; i < bc.n; i++ {
		y := s.line.ReadFractional(length[i])
		s.line.Write(x[i] + fb[i]*y)
		out[i] = y
	}
}

// convState convolves block by block. Each block's full linear
// convolution runs past the block end; that part is carried in tail and
// added to the following blocks.
type convState struct {
	ola    *dspconv.OverlapAdd
	in64   []float64
	tail   []float64
	spare  []float64
	failed bool
}

func (o *Offline) newConvolver(path string, ir []float32) *convState {
	ir64 := make([]float64, len(ir))
	for i, v := range ir {
		ir64[i] = float64(v)
	}
	ola, err := dspconv.NewOverlapAdd(ir64, o.cfg.BlockSize)
	if err != nil {
		o.logger.Warn("convolver init failed; rendering silence", "path", path, "error", err)
		return &convState{failed: true}
	}
	return &convState{
		ola:   ola,
		in64:  make([]float64, o.cfg.BlockSize),
		tail:  make([]float64, 0, len(ir)+o.cfg.BlockSize),
		spare: make([]float64, 0, len(ir)+o.cfg.BlockSize),
	}
}

func (s *convState) run(bc *blockContext, out []float64, in [][]float64) {
	if s.failed {
		fill(out, bc.n, 0)
		return
	}
	copy(s.in64[:bc.n], in[0][:bc.n])
	full, err := s.ola.Process(s.in64[:bc.n])
	if err != nil {
		fill(out, bc.n, 0)
		return
	}
	for i := 0; i < bc.n; i++ {
		v := 0.0
		if i < len(full) {
			v = full[i]
		}
		if i < len(s.tail) {
			v += s.tail[i]
		}
		out[i] = v
	}

	next := 0
	if len(full) > bc.n {
		next = len(full) - bc.n
	}
	if len(s.tail) > bc.n && len(s.tail)-bc.n > next {
		next = len(s.tail) - bc.n
	}
	carry := s.spare[:0]
	for i := 0; i < next; i++ {
		v := 0.0
		if j := bc.n + i; j < len(full) {
			v = full[j]
		}
		if j := bc.n + i; j < len(s.tail) {
			v += s.tail[j]
		}
		carry = append(carry, v)
	}
	s.spare = s.tail
	s.tail = carry
}

type meterState struct {
	name  string
	split *analysis.BandSplitter
}

func (s *meterState) run(bc *blockContext, out []float64, in [][]float64) {
	x := in[0][:bc.n]
	copy(out, x)
	bc.emit(Event{
		Type:   EventMeter,
		Source: s.name,
		Level:  analysis.Measure(x),
		Bands:  s.split.Process(x),
	})
}

type snapshotState struct {
	name string
	trig edge
}

func (s *snapshotState) run(bc *blockContext, out []float64, in [][]float64) {
	trig, x := in[0], in[1]
	for i := 0; i < bc.n; i++ {
		if s.trig.rise(trig[i]) {
			bc.emit(Event{Type: EventSnapshot, Source: s.name, Value: x[i]})
		}
		out[i] = x[i]
	}
}

type fftState struct {
	name  string
	spec  *analysis.Spectrum
	frame []float64
}

func (o *Offline) newFFT(name string) *fftState {
	spec, err := analysis.NewSpectrum(fftFrameSize)
	if err != nil {
		o.logger.Warn("fft init failed; analysis disabled", "source", name, "error", err)
	}
	return &fftState{name: name, spec: spec, frame: make([]float64, 0, fftFrameSize)}
}

func (s *fftState) run(bc *blockContext, out []float64, in [][]float64) {
	x := in[0][:bc.n]
	copy(out, x)
	if s.spec == nil {
		return
	}
	for _, v := range x {
		s.frame = append(s.frame, v)
		if len(s.frame) == fftFrameSize {
			bc.emit(Event{Type: EventFFT, Source: s.name, Data: s.spec.Magnitudes(s.frame)})
			s.frame = s.frame[:0]
		}
	}
}

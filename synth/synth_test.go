package synth

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/casperleerink/circular-music/graph"
	"github.com/casperleerink/circular-music/prng"
	"github.com/casperleerink/circular-music/registry"
	"github.com/casperleerink/circular-music/render"
)

// byStructure compares graphs by structural hash. Generator graphs share
// subtrees, which a plain tree walk revisits exponentially.
var byStructure = cmp.Comparer(func(a, b *graph.Node) bool {
	return graph.Hash(a) == graph.Hash(b)
})

func newRuntime(t *testing.T, sampleRate, blockSize int) *render.Offline {
	t.Helper()
	rt, err := render.New(render.Config{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		Seed:       3,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return rt
}

func submit(t *testing.T, rt *render.Offline, s graph.Stereo) {
	t.Helper()
	if err := rt.Submit(s); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func noiseSample(n int) []float32 {
	src := prng.New(99)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(2*src.Float64() - 1)
	}
	return out
}

func TestGrainEnvelopeConfinedToActiveWindow(t *testing.T) {
	for _, shape := range []Shape{ShapeHann, ShapeTrapezoid} {
		t.Run(shape.String(), func(t *testing.T) {
			p := DefaultGranularParams("/samples/x")
			p.GrainSizeMs = 50
			p.DensityHz = 20
			p.PitchSpray = 0.8
			p.Shape = shape
			p = p.clamped()

			rt := newRuntime(t, 8000, 64)
			v := buildGrainVoice("g", p, 0, 4000)
			readPhase := graph.Mul(v.phase, v.active)
			submit(t, rt, graph.Stereo{L: v.phase, R: v.env})
			phase, env := rt.ProcessStereo(16000)

			var sawActive, sawIdle bool
			for i := range phase {
				if phase[i] < 0 {
					t.Fatalf("sample %d: negative phase %g", i, phase[i])
				}
				if env[i] < 0 || env[i] > 1 {
					t.Fatalf("sample %d: envelope %g out of [0,1]", i, env[i])
				}
				if phase[i] >= 1 {
					sawIdle = true
					if env[i] != 0 {
						t.Fatalf("sample %d: envelope %g outside active window", i, env[i])
					}
				} else if env[i] > 0 {
					sawActive = true
				}
			}
			if !sawActive || !sawIdle {
				t.Fatalf("expected both active and idle samples (active=%v idle=%v)", sawActive, sawIdle)
			}

			submit(t, rt, graph.Mono(readPhase))
			read, _ := rt.ProcessStereo(8000)
			for i, v := range read {
				if v < 0 || v >= 1 {
					t.Fatalf("sample %d: read phase %g outside [0,1)", i, v)
				}
			}
		})
	}
}

func TestGranularGuardsReturnSilence(t *testing.T) {
	p := DefaultGranularParams("/samples/x")
	if !graph.Equal(Granular("g", p, 0), graph.Silence()) {
		t.Fatal("zero-length sample should be silence")
	}
	p.SamplePath = ""
	if !graph.Equal(Granular("g", p, 100), graph.Silence()) {
		t.Fatal("empty path should be silence")
	}
}

func TestGranularIdenticalParamsGiveEqualGraphs(t *testing.T) {
	p := DefaultGranularParams("/samples/x")
	a := Granular("g", p, 48000)
	b := Granular("g", p, 48000)
	if diff := cmp.Diff(a, b, byStructure); diff != "" {
		t.Fatalf("graphs differ (-a +b):\n%s", diff)
	}
	p.Pitch = 0 // clamped, never divides by zero
	c := Granular("g", p, 48000)
	if graph.Equal(a, c) {
		t.Fatal("pitch change should change the graph")
	}
}

func TestGrainVoicesStartAtDistinctTimes(t *testing.T) {
	p := DefaultGranularParams("/samples/x").clamped()
	first := make(map[int]int)
	for i := 0; i < GranularVoices; i++ {
		rt := newRuntime(t, 8000, 64)
		v := buildGrainVoice("g", p, i, 4000)
		submit(t, rt, graph.Stereo{L: v.trig, R: v.env})
		trig, env := rt.ProcessStereo(16000)
		if env[0] != 0 {
			t.Fatalf("voice %d sounds before its first trigger: %g", i, env[0])
		}
		onset := -1
		for n, x := range trig {
			if x > 0 {
				onset = n
				break
			}
		}
		if onset <= 0 {
			t.Fatalf("voice %d: first trigger at sample %d", i, onset)
		}
		if j, dup := first[onset]; dup {
			t.Fatalf("voices %d and %d both start at sample %d", j, i, onset)
		}
		first[onset] = i
	}
}

func TestGranularRendersBoundedAudio(t *testing.T) {
	rt := newRuntime(t, 8000, 64)
	sample := noiseSample(8000)
	if err := rt.UpdateVirtualFileSystem(map[string][]float32{"/samples/n": sample}); err != nil {
		t.Fatalf("UpdateVirtualFileSystem: %v", err)
	}
	p := DefaultGranularParams("/samples/n")
	p.Gain = 1
	submit(t, rt, Granular("g", p, len(sample)))
	l, r := rt.ProcessStereo(16000)
	var energy float64
	for i := range l {
		if !isFinite(l[i]) || !isFinite(r[i]) || math.Abs(l[i]) > 8 || math.Abs(r[i]) > 8 {
			t.Fatalf("frame %d out of bounds: (%g, %g)", i, l[i], r[i])
		}
		energy += l[i]*l[i] + r[i]*r[i]
	}
	if energy == 0 {
		t.Fatal("granular output is silent")
	}
}

func TestGranularFromRegistry(t *testing.T) {
	reg := registry.New(8000)
	p := DefaultGranularParams("/samples/missing")
	if _, err := GranularFromRegistry("g", p, reg); !errors.Is(err, registry.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := reg.Register("/samples/missing", noiseSample(100)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := GranularFromRegistry("g", p, reg)
	if err != nil {
		t.Fatalf("GranularFromRegistry: %v", err)
	}
	if !graph.Equal(got, Granular("g", p, 100)) {
		t.Fatal("registry length not used")
	}
}

func TestResonatorMixZeroIsDry(t *testing.T) {
	rt := newRuntime(t, 8000, 64)
	in := graph.Stereo{L: graph.Noise("nL"), R: graph.Noise("nR")}
	p := DefaultResonatorParams()
	p.Mix = 0
	out := Resonator("res", p, in)
	submit(t, rt, graph.Stereo{L: out.L, R: in.L})
	wet, dry := rt.ProcessStereo(4000)
	for i := range wet {
		if wet[i] != dry[i] {
			t.Fatalf("sample %d: got %g, want dry %g", i, wet[i], dry[i])
		}
	}
}

func TestResonatorMixOneIsBandSum(t *testing.T) {
	rt := newRuntime(t, 8000, 64)
	in := graph.Stereo{L: graph.Noise("nL"), R: graph.Noise("nR")}
	p := DefaultResonatorParams()
	p.Mix = 1
	out := Resonator("res", p, in)
	submit(t, rt, graph.Stereo{L: out.R, R: resonatorWet("res", "R", p.Bands, in.R)})
	rt.ProcessStereo(8000) // let the mix smoother settle
	got, want := rt.ProcessStereo(4000)
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d: got %g, want band sum %g", i, got[i], want[i])
		}
	}
}

func TestResonatorClampsQ(t *testing.T) {
	b := Band{Freq: 100, Q: 500, Gain: 1}.clamped()
	if b.Q != 100 {
		t.Fatalf("Q = %g, want 100", b.Q)
	}
	b = Band{Freq: 100, Q: 1, Gain: 1}.clamped()
	if b.Q != 10 {
		t.Fatalf("Q = %g, want 10", b.Q)
	}
}

func TestEnvelopeTiming(t *testing.T) {
	const sr = 48000
	rt := newRuntime(t, sr, 48)
	p := DefaultEnvelopeParams() // 10 ms, 0.5, 100 ms, 50 ticks
	steps := Trigger("env", p)
	at := func(ms int) int { return ms * sr / 1000 }

	submit(t, rt, graph.Mono(steps[0]))
	if got, _ := rt.ProcessStereo(at(1)); got[len(got)-1] != 0 {
		t.Fatalf("gate low should stay at 0, got %g", got[len(got)-1])
	}

	submit(t, rt, graph.Mono(steps[1]))
	rise, _ := rt.ProcessStereo(at(150))
	if v := rise[at(10)]; v < 0.6 {
		t.Fatalf("after 10 ms: %g, want >= 0.6", v)
	}
	if v := rise[at(40)]; v < 0.97 {
		t.Fatalf("after 40 ms: %g, want >= 0.97", v)
	}
	if v := rise[at(150)-1]; v < 0.49 || v > 0.52 {
		t.Fatalf("sustain: %g, want about 0.5", v)
	}

	p.Gate = false
	submit(t, rt, graph.Mono(Envelope("env", p)))
	fall, _ := rt.ProcessStereo(at(500))
	if v := fall[at(100)]; v < 0.15 || v > 0.22 {
		t.Fatalf("after 100 ms of release: %g, want about 0.18", v)
	}
	if v := fall[at(500)-1]; v > 0.01 {
		t.Fatalf("after 500 ms of release: %g, want near 0", v)
	}
}

func TestTriggerOrdersGateLowThenHigh(t *testing.T) {
	p := DefaultEnvelopeParams()
	steps := Trigger("env", p)
	lo, hi := p, p
	lo.Gate, hi.Gate = false, true
	if diff := cmp.Diff(Envelope("env", lo), steps[0], byStructure); diff != "" {
		t.Fatalf("first step (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Envelope("env", hi), steps[1], byStructure); diff != "" {
		t.Fatalf("second step (-want +got):\n%s", diff)
	}
}

func TestDiffuseWorldZeroProbabilityNeverFires(t *testing.T) {
	const sr = 8000
	rt := newRuntime(t, sr, 256)
	submit(t, rt, DiffuseWorldWith("dw", DiffuseParams{Active: true, Probability: 0, Gain: 1}))
	for sec := 0; sec < 60; sec++ {
		l, r := rt.ProcessStereo(sr)
		for i := range l {
			if l[i] != 0 || r[i] != 0 {
				t.Fatalf("second %d frame %d: burst with probability 0: (%g, %g)", sec, i, l[i], r[i])
			}
		}
	}
}

func TestDiffuseWorldFiresWithCertainty(t *testing.T) {
	const sr = 8000
	rt := newRuntime(t, sr, 256)
	submit(t, rt, DiffuseWorldWith("dw", DiffuseParams{Active: true, Probability: 1, Gain: 1}))
	l, _ := rt.ProcessStereo(2 * sr)
	var peak float64
	for _, v := range l {
		if !isFinite(v) {
			t.Fatal("non-finite output")
		}
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		t.Fatal("expected bursts with probability 1")
	}
}

func TestDiffuseWorldInactiveIsSilence(t *testing.T) {
	if !graph.Equal(DiffuseWorld("dw", false), graph.Silence()) {
		t.Fatal("inactive world should be silence")
	}
	if diff := cmp.Diff(DiffuseWorld("dw", true), DiffuseWorld("dw", true), byStructure); diff != "" {
		t.Fatalf("graphs differ:\n%s", diff)
	}
}

func TestMelodyLoopIsIdempotent(t *testing.T) {
	// 8 ticks/s over a 16-tick loop at 8192 Hz steps the loop phase by
	// 2^-14, so every loop replays bit for bit.
	const sr = 8192
	notes := []Note{{Midi: 60, OnTick: 2, OffTick: 5}, {Midi: 67, OnTick: 8, OffTick: 14}}
	rt := newRuntime(t, sr, 128)
	tl := buildMelodyTimeline("mel", notes, 8, 16)
	submit(t, rt, graph.Stereo{L: tl.freq, R: tl.gate})

	const loopFrames = 2 * sr
	freq, gate := rt.ProcessStereo(3 * loopFrames)
	for i := 0; i < loopFrames; i++ {
		for loop := 1; loop < 3; loop++ {
			j := loop*loopFrames + i
			if freq[j] != freq[i] || gate[j] != gate[i] {
				t.Fatalf("loop %d frame %d: (%g, %g), first loop (%g, %g)", loop, i, freq[j], gate[j], freq[i], gate[i])
			}
		}
	}

	const ticksFrames = sr / 8
	for i := 0; i < loopFrames; i++ {
		tick := i / ticksFrames
		want := 0.0
		if (tick >= 2 && tick < 5) || (tick >= 8 && tick < 14) {
			want = 1
		}
		if gate[i] != want {
			t.Fatalf("frame %d (tick %d): gate %g, want %g", i, tick, gate[i], want)
		}
	}
	if f := freq[9*ticksFrames]; math.Abs(f-midiNoteToFreq(67)) > 1e-9 {
		t.Fatalf("frequency at tick 9: %g", f)
	}
}

func TestValidateNotes(t *testing.T) {
	tests := []struct {
		name    string
		notes   []Note
		length  int
		wantErr bool
	}{
		{"ok", []Note{{60, 0, 2}, {62, 2, 4}}, 4, false},
		{"unsorted ok", []Note{{62, 4, 6}, {60, 0, 2}}, 0, false},
		{"overlap", []Note{{60, 0, 3}, {62, 2, 4}}, 0, true},
		{"empty span", []Note{{60, 2, 2}}, 0, true},
		{"past loop", []Note{{60, 0, 9}}, 8, true},
		{"bad midi", []Note{{128, 0, 1}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotes(tt.notes, tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNotes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMelodyDropsOverlappingNotes(t *testing.T) {
	p := DefaultMelodyParams()
	p.LengthTicks = 16
	p.Notes = []Note{{60, 0, 4}, {64, 2, 6}, {67, 8, 12}}
	clean := p
	clean.Notes = []Note{{60, 0, 4}, {67, 8, 12}}
	if diff := cmp.Diff(Melody("mel", clean), Melody("mel", p), byStructure); diff != "" {
		t.Fatalf("overlapping note not dropped (-want +got):\n%s", diff)
	}
	p.Notes = nil
	if !graph.Equal(Melody("mel", p), graph.Silence()) {
		t.Fatal("empty timeline should be silence")
	}
}

func TestMelodyRenders(t *testing.T) {
	rt := newRuntime(t, 8000, 64)
	p := DefaultMelodyParams()
	p.Notes = GenerateNotes(5, 57, ScaleMinor, 8, 4)
	submit(t, rt, Melody("mel", p))
	l, r := rt.ProcessStereo(16000)
	var energy float64
	for i := range l {
		if !isFinite(l[i]) || !isFinite(r[i]) {
			t.Fatalf("frame %d not finite", i)
		}
		energy += l[i] * l[i]
	}
	if energy == 0 {
		t.Fatal("melody is silent")
	}
}

func TestGenerateNotesDeterministicAndMonophonic(t *testing.T) {
	a := GenerateNotes(42, 60, ScalePentatonic, 16, 4)
	b := GenerateNotes(42, 60, ScalePentatonic, 16, 4)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed, different notes:\n%s", diff)
	}
	if len(a) == 0 {
		t.Fatal("no notes generated")
	}
	if err := ValidateNotes(a, 16*4); err != nil {
		t.Fatalf("generated notes invalid: %v", err)
	}
	if cmp.Equal(a, GenerateNotes(43, 60, ScalePentatonic, 16, 4)) {
		t.Fatal("different seeds gave the same phrase")
	}
}

func TestResonatorBandsFromScale(t *testing.T) {
	a := ResonatorBandsFromScale(7, 220, ScaleMajor)
	if diff := cmp.Diff(a, ResonatorBandsFromScale(7, 220, ScaleMajor)); diff != "" {
		t.Fatalf("not deterministic:\n%s", diff)
	}
	seen := map[float64]bool{}
	for i, b := range a {
		if b.Freq < 220*0.99 || b.Freq > 880 {
			t.Fatalf("band %d freq %g outside two octaves", i, b.Freq)
		}
		if b.Q < 20 || b.Q > 60 {
			t.Fatalf("band %d Q %g", i, b.Q)
		}
		if seen[b.Freq] {
			t.Fatalf("band %d repeats %g Hz", i, b.Freq)
		}
		seen[b.Freq] = true
	}
}

func TestParseShape(t *testing.T) {
	for _, s := range []Shape{ShapeHann, ShapeTrapezoid} {
		got, err := ParseShape(s.String())
		if err != nil || got != s {
			t.Fatalf("ParseShape(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseShape("square"); err == nil {
		t.Fatal("expected error for unknown shape")
	}
}

package mixer

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/casperleerink/circular-music/graph"
	"github.com/casperleerink/circular-music/render"
)

type recordingRuntime struct {
	submitted []graph.Stereo
	err       error
}

func (r *recordingRuntime) Submit(s graph.Stereo) error {
	if r.err != nil {
		return r.err
	}
	r.submitted = append(r.submitted, s)
	return nil
}

var byStructure = cmp.Comparer(func(a, b *graph.Node) bool {
	return graph.Hash(a) == graph.Hash(b)
})

func newOffline(t *testing.T) *render.Offline {
	t.Helper()
	rt, err := render.New(render.Config{
		SampleRate: 8000,
		BlockSize:  64,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return rt
}

func TestEmptyMixerIsExactZero(t *testing.T) {
	rec := &recordingRuntime{}
	m := New(rec)
	want := graph.Stereo{L: graph.Const(0), R: graph.Const(0)}
	if diff := cmp.Diff(want, m.Graph(), byStructure); diff != "" {
		t.Fatalf("empty graph (-want +got):\n%s", diff)
	}
	if len(rec.submitted) != 0 {
		t.Fatal("New must not submit")
	}
}

func TestSilenceRendersExactZero(t *testing.T) {
	rt := newOffline(t)
	m := New(rt)
	if err := m.SetSource("noise", graph.Stereo{L: graph.Noise("n:L"), R: graph.Noise("n:R")}, SourceOptions{Gain: 1}); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	l, _ := rt.ProcessStereo(640)
	if l[len(l)-1] == 0 {
		t.Fatal("source should be audible before silence")
	}
	if err := m.Silence(); err != nil {
		t.Fatalf("Silence: %v", err)
	}
	l, r := rt.ProcessStereo(8000)
	for i := range l {
		if l[i] != 0 || r[i] != 0 {
			t.Fatalf("frame %d: (%g, %g) after Silence", i, l[i], r[i])
		}
	}
	if len(m.Sources()) != 0 {
		t.Fatalf("sources left: %v", m.Sources())
	}
}

func TestEveryMutationSubmits(t *testing.T) {
	rec := &recordingRuntime{}
	m := New(rec)
	src := graph.Mono(graph.Const(0.5))
	_ = m.SetSource("a", src, SourceOptions{Gain: 1})
	_ = m.SetSource("b", src, SourceOptions{Gain: 0.5})
	_ = m.RemoveSource("a")
	_ = m.RemoveSource("missing")
	_ = m.Silence()
	if len(rec.submitted) != 5 {
		t.Fatalf("expected 5 submissions, got %d", len(rec.submitted))
	}
	last := rec.submitted[len(rec.submitted)-1]
	if !graph.Equal(last, graph.Stereo{L: graph.Const(0), R: graph.Const(0)}) {
		t.Fatal("last submission should be silence")
	}
	if diff := cmp.Diff([]string(nil), nilIfEmpty(m.Sources())); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestGraphIndependentOfInsertionOrder(t *testing.T) {
	a := graph.Mono(graph.Phasor("a", graph.Const(100)))
	b := graph.Mono(graph.Phasor("b", graph.Const(200)))

	m1 := New(&recordingRuntime{})
	_ = m1.SetSource("a", a, SourceOptions{Gain: 1})
	_ = m1.SetSource("b", b, SourceOptions{Gain: 0.3})

	m2 := New(&recordingRuntime{})
	_ = m2.SetSource("b", b, SourceOptions{Gain: 0.3})
	_ = m2.SetSource("a", a, SourceOptions{Gain: 1})

	if diff := cmp.Diff(m1.Graph(), m2.Graph(), byStructure); diff != "" {
		t.Fatalf("graphs differ (-m1 +m2):\n%s", diff)
	}
	g := m1.Graph()
	keys := make(map[string]graph.Kind)
	graph.Walk(g.L, func(n *graph.Node) {
		if n.Key != "" {
			keys[n.Key] = n.Kind
		}
	})
	for _, k := range []string{"mix:gain:a", "mix:gain:b"} {
		if keys[k] != graph.KindSmooth {
			t.Fatalf("missing smoothed gain %q in %v", k, keys)
		}
	}
}

func TestHotSwapKeepsKeyedState(t *testing.T) {
	rt := newOffline(t)
	m := New(rt)
	osc := func() *graph.Node { return graph.Phasor("osc", graph.Const(1)) }
	if err := m.SetSource("a", graph.Mono(osc()), SourceOptions{Gain: 1}); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	rt.ProcessStereo(4032) // whole blocks, about half a second

	swapped := graph.Mono(graph.Add(osc(), graph.Const(0)))
	if err := m.SetSource("a", swapped, SourceOptions{Gain: 1}); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	l, _ := rt.ProcessStereo(1)
	if math.Abs(l[0]-0.504) > 1e-3 {
		t.Fatalf("phase restarted after hot swap: got %g, want about 0.504", l[0])
	}
}

func TestSubmitErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	m := New(&recordingRuntime{err: boom})
	if err := m.SetSource("a", graph.Silence(), SourceOptions{Gain: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSetSourceRejectsInvalid(t *testing.T) {
	m := New(&recordingRuntime{})
	if err := m.SetSource("", graph.Silence(), SourceOptions{}); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := m.SetSource("a", graph.Stereo{L: graph.Const(0)}, SourceOptions{}); err == nil {
		t.Fatal("expected error for nil channel")
	}
}

func TestMeterAndRoomOptions(t *testing.T) {
	rt := newOffline(t)
	if err := rt.UpdateVirtualFileSystem(map[string][]float32{"/ir/room": {0.5}}); err != nil {
		t.Fatalf("UpdateVirtualFileSystem: %v", err)
	}
	m := New(rt, WithMeter("master"), WithRoomIR("/ir/room", 0.5))
	if err := m.SetSource("a", graph.Mono(graph.Const(1)), SourceOptions{Gain: 1}); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if diff := cmp.Diff([]string{"/ir/room"}, m.Graph().Paths()); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}
	rt.ProcessStereo(1024)
	var meters, ffts int
	for {
		select {
		case ev := <-rt.Events():
			switch ev.Type {
			case render.EventMeter:
				meters++
			case render.EventFFT:
				ffts++
			}
			continue
		default:
		}
		break
	}
	if meters != 2*1024/64 || ffts != 1 {
		t.Fatalf("got %d meter and %d fft events", meters, ffts)
	}
}

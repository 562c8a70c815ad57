package synth

import (
	"fmt"
	"sort"

	"github.com/casperleerink/circular-music/graph"
)

// Note is one monophonic note, in ticks of the melody clock. OffTick is
// exclusive.
type Note struct {
	Midi    int
	OnTick  int
	OffTick int
}

// MelodyParams controls the sequencer voice. Times are in seconds, Detune
// in cents.
type MelodyParams struct {
	Notes       []Note
	TickRate    float64
	LengthTicks int // loop length; 0 means the last OffTick

	Attack  float64
	Release float64

	FilterBase    float64
	FilterAmount  float64
	FilterAttack  float64
	FilterRelease float64
	FilterQ       float64

	Detune    float64
	ReverbMix float64
	Gain      float64
}

// DefaultMelodyParams returns the sequencer voice with an empty timeline.
func DefaultMelodyParams() MelodyParams {
	return MelodyParams{
		TickRate:      8,
		Attack:        0.01,
		Release:       0.3,
		FilterBase:    400,
		FilterAmount:  2400,
		FilterAttack:  0.05,
		FilterRelease: 0.4,
		FilterQ:       0.9,
		Detune:        7,
		ReverbMix:     0.3,
		Gain:          0.3,
	}
}

// ValidateNotes checks that notes form a monophonic timeline inside a loop
// of lengthTicks ticks (0 disables the bound).
func ValidateNotes(notes []Note, lengthTicks int) error {
	sorted := sortedNotes(notes)
	for i, n := range sorted {
		if n.Midi < 0 || n.Midi > 127 {
			return fmt.Errorf("note %d: midi %d out of range", i, n.Midi)
		}
		if n.OnTick < 0 || n.OffTick <= n.OnTick {
			return fmt.Errorf("note %d: invalid span [%d, %d)", i, n.OnTick, n.OffTick)
		}
		if lengthTicks > 0 && n.OffTick > lengthTicks {
			return fmt.Errorf("note %d: ends at tick %d after loop length %d", i, n.OffTick, lengthTicks)
		}
		if i > 0 && n.OnTick < sorted[i-1].OffTick {
			return fmt.Errorf("note %d at tick %d overlaps note ending at tick %d", i, n.OnTick, sorted[i-1].OffTick)
		}
	}
	return nil
}

func sortedNotes(notes []Note) []Note {
	out := make([]Note, len(notes))
	copy(out, notes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OnTick < out[j].OnTick })
	return out
}

// monophonic keeps the valid notes that do not overlap an earlier-starting
// note.
func monophonic(notes []Note, lengthTicks int) []Note {
	var out []Note
	end := 0
	for _, n := range sortedNotes(notes) {
		if n.Midi < 0 || n.Midi > 127 || n.OnTick < 0 || n.OffTick <= n.OnTick {
			continue
		}
		if lengthTicks > 0 && n.OffTick > lengthTicks {
			continue
		}
		if len(out) > 0 && n.OnTick < end {
			continue
		}
		out = append(out, n)
		end = n.OffTick
	}
	return out
}

// melodyTimeline is the pair of sequences the voice is driven by.
type melodyTimeline struct {
	freq *graph.Node
	gate *graph.Node
}

// buildMelodyTimeline turns notes into frequency and gate sequences. One
// loop phasor yields both the tick train and the once-per-loop reset, so
// the two cannot drift apart.
func buildMelodyTimeline(key string, notes []Note, tickRate float64, lengthTicks int) melodyTimeline {
	d := float64(lengthTicks)
	loop := graph.Phasor(graph.Key(key, "loop"), graph.Const(tickRate/d))
	tick := graph.Lt(graph.Mod(graph.Mul(loop, graph.Const(d)), graph.Const(1)), graph.Const(0.5))
	reset := graph.Lt(loop, graph.Const(0.5/d))

	freqEvents := []graph.Event{{Tick: 0, Value: midiNoteToFreq(notes[0].Midi)}}
	gateEvents := []graph.Event{{Tick: 0, Value: 0}}
	for _, n := range notes {
		freqEvents = append(freqEvents, graph.Event{Tick: n.OnTick, Value: midiNoteToFreq(n.Midi)})
		gateEvents = append(gateEvents,
			graph.Event{Tick: n.OnTick, Value: 1},
			graph.Event{Tick: n.OffTick, Value: 0},
		)
	}
	return melodyTimeline{
		freq: graph.SparSeq(graph.Key(key, "freqseq"), freqEvents, tick, reset),
		gate: graph.SparSeq(graph.Key(key, "gateseq"), gateEvents, tick, reset),
	}
}

// gateEnvelope follows gate with separate attack and release time
// constants, selected per sample by the gate itself.
func gateEnvelope(key string, gate *graph.Node, attack, release float64) *graph.Node {
	pa := graph.Tau2Pole(graph.Const(attack))
	pr := graph.Tau2Pole(graph.Const(release))
	pole := graph.Add(graph.Mul(gate, pa), graph.Mul(graph.Sub(graph.Const(1), gate), pr))
	return graph.Smooth(key, pole, gate)
}

// Melody builds the looping subtractive sequencer voice. Notes that overlap
// an earlier note are dropped; use ValidateNotes to reject them instead.
func Melody(key string, p MelodyParams) graph.Stereo {
	tickRate := clampf(p.TickRate, 0.1, 1000, 8)
	notes := monophonic(p.Notes, p.LengthTicks)
	if len(notes) == 0 {
		return graph.Silence()
	}
	length := p.LengthTicks
	if length <= 0 {
		length = notes[len(notes)-1].OffTick
	}

	tl := buildMelodyTimeline(key, notes, tickRate, length)
	freq := graph.SmoothTau(graph.Key(key, "freq"), 0.005, tl.freq)

	attack := clampf(p.Attack, minEnvelopeTime, 10, 0.01)
	release := clampf(p.Release, minEnvelopeTime, 10, 0.3)
	amp := gateEnvelope(graph.Key(key, "amp"), tl.gate, attack, release)

	fAttack := clampf(p.FilterAttack, minEnvelopeTime, 10, 0.05)
	fRelease := clampf(p.FilterRelease, minEnvelopeTime, 10, 0.4)
	fenv := gateEnvelope(graph.Key(key, "fenv"), tl.gate, fAttack, fRelease)
	cutoff := graph.Add(
		graph.Const(clampf(p.FilterBase, 20, 20000, 400)),
		graph.Mul(fenv, graph.Const(clampf(p.FilterAmount, 0, 20000, 0))),
	)

	osc1 := graph.Saw(graph.Key(key, "osc1"), freq)
	osc2 := graph.Saw(graph.Key(key, "osc2"), graph.Mul(freq, graph.Const(centsToRatio(clampf(p.Detune, -100, 100, 0)))))
	mix := graph.Add(graph.Mul(osc1, graph.Const(0.6)), graph.Mul(osc2, graph.Const(0.4)))
	q := clampf(p.FilterQ, 0.1, 20, 0.9)
	voice := graph.Mul(
		graph.Lowpass(graph.Key(key, "lp"), cutoff, graph.Const(q), mix),
		amp,
		graph.Const(clampf(p.Gain, 0, 4, 0)),
	)
	return roomReverb(graph.Key(key, "verb"), voice, p.ReverbMix)
}

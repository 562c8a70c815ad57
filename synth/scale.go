package synth

import (
	"fmt"

	"github.com/casperleerink/circular-music/prng"
)

// Scales as semitone offsets from the root.
var (
	ScaleMajor           = []int{0, 2, 4, 5, 7, 9, 11}
	ScaleMinor           = []int{0, 2, 3, 5, 7, 8, 10}
	ScalePentatonic      = []int{0, 2, 4, 7, 9}
	ScaleMinorPentatonic = []int{0, 3, 5, 7, 10}
)

// ScaleByName returns one of the named scales.
func ScaleByName(name string) ([]int, error) {
	switch name {
	case "major":
		return ScaleMajor, nil
	case "", "minor":
		return ScaleMinor, nil
	case "pentatonic":
		return ScalePentatonic, nil
	case "minor-pentatonic":
		return ScaleMinorPentatonic, nil
	}
	return nil, fmt.Errorf("unknown scale %q", name)
}

// ResonatorBandsFromScale picks three distinct degrees of scale across two
// octaves above rootHz. The choice depends only on seed.
func ResonatorBandsFromScale(seed uint64, rootHz float64, scale []int) [3]Band {
	if len(scale) == 0 {
		scale = ScaleMinor
	}
	rootHz = clampf(rootHz, 20, 5000, 220)
	src := prng.New(seed)
	steps := len(scale) * 2
	picked := make(map[int]bool, 3)
	var bands [3]Band
	for i := range bands {
		step := src.Intn(steps)
		for picked[step] {
			step = (step + 1) % steps
		}
		picked[step] = true
		semis := scale[step%len(scale)] + 12*(step/len(scale))
		bands[i] = Band{
			Freq: rootHz * centsToRatio(float64(semis)*100),
			Q:    20 + 40*src.Float64(),
			Gain: 0.6 / float64(i+1),
		}
	}
	return bands
}

// GenerateNotes builds a deterministic phrase of count notes from scale,
// one slot of slotTicks per note. Notes leave at least one tick of rest,
// so the phrase never overlaps.
func GenerateNotes(seed uint64, rootMidi int, scale []int, count, slotTicks int) []Note {
	if len(scale) == 0 {
		scale = ScaleMinor
	}
	if count < 1 || slotTicks < 2 {
		return nil
	}
	src := prng.New(seed)
	notes := make([]Note, 0, count)
	for i := 0; i < count; i++ {
		// Roughly one slot in five is a rest.
		if i > 0 && src.Intn(5) == 0 {
			continue
		}
		step := src.Intn(len(scale) * 2)
		midi := rootMidi + scale[step%len(scale)] + 12*(step/len(scale))
		on := i * slotTicks
		dur := 1 + src.Intn(slotTicks-1)
		notes = append(notes, Note{Midi: clampMidi(midi), OnTick: on, OffTick: on + dur})
	}
	return notes
}

func clampMidi(m int) int {
	if m < 0 {
		return 0
	}
	if m > 127 {
		return 127
	}
	return m
}

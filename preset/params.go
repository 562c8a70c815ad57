package preset

import (
	"github.com/casperleerink/circular-music/synth"
)

// Params is a complete installation scene: the samples to load and the
// sources the mixer plays.
type Params struct {
	SampleRate int
	Seed       uint64

	// Samples maps virtual paths to WAV files on disk.
	Samples map[string]string

	// RoomIRPath is a WAV impulse response registered as RoomIRVirtualPath.
	RoomIRPath string
	RoomWet    float64

	Granular  GranularScene
	Resonator ResonatorScene
	Diffuse   DiffuseScene
	Melody    MelodyScene
}

// RoomIRVirtualPath is where the room impulse response is registered.
const RoomIRVirtualPath = "/ir/room"

// GranularScene places the granular engine in the mix.
type GranularScene struct {
	Enabled bool
	Gain    float64
	Params  synth.GranularParams
}

// ResonatorScene inserts the resonator on the granular source.
type ResonatorScene struct {
	Enabled bool
	Params  synth.ResonatorParams
}

// DiffuseScene places the Diffuse World texture in the mix.
type DiffuseScene struct {
	Enabled bool
	Gain    float64
	Params  synth.DiffuseParams
}

// MelodyScene places the sequencer voice in the mix.
type MelodyScene struct {
	Enabled bool
	Gain    float64
	Params  synth.MelodyParams
}

// NewDefaultParams returns the default scene: the Diffuse World alone at
// 48 kHz.
func NewDefaultParams() *Params {
	return &Params{
		SampleRate: 48000,
		Seed:       1,
		Samples:    map[string]string{},
		RoomWet:    0.2,
		Granular: GranularScene{
			Gain:   1,
			Params: synth.DefaultGranularParams("/samples/source"),
		},
		Resonator: ResonatorScene{
			Params: synth.DefaultResonatorParams(),
		},
		Diffuse: DiffuseScene{
			Enabled: true,
			Gain:    1,
			Params:  synth.DefaultDiffuseParams(),
		},
		Melody: MelodyScene{
			Gain:   1,
			Params: synth.DefaultMelodyParams(),
		},
	}
}

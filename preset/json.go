package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/casperleerink/circular-music/synth"
)

// File is the JSON schema for scene presets. Absent fields keep their
// defaults.
type File struct {
	SampleRate *int              `json:"sample_rate"`
	Seed       *uint64           `json:"seed"`
	Samples    map[string]string `json:"samples"`
	RoomIRPath string            `json:"room_ir_path"`
	RoomWet    *float64          `json:"room_wet"`
	Granular   *GranularSetting  `json:"granular"`
	Resonator  *ResonatorSetting `json:"resonator"`
	Diffuse    *DiffuseSetting   `json:"diffuse"`
	Melody     *MelodySetting    `json:"melody"`
}

// GranularSetting is a partial granular override.
type GranularSetting struct {
	Enabled       *bool    `json:"enabled"`
	Gain          *float64 `json:"gain"`
	Sample        string   `json:"sample"`
	GrainSizeMs   *float64 `json:"grain_size_ms"`
	DensityHz     *float64 `json:"density_hz"`
	Position      *float64 `json:"position"`
	Pitch         *float64 `json:"pitch"`
	PositionSpray *float64 `json:"position_spray"`
	PitchSpray    *float64 `json:"pitch_spray"`
	StereoSpread  *float64 `json:"stereo_spread"`
	Level         *float64 `json:"level"`
	Shape         string   `json:"shape"`
}

// BandSetting is one resonator band.
type BandSetting struct {
	Freq float64 `json:"freq"`
	Q    float64 `json:"q"`
	Gain float64 `json:"gain"`
}

// ResonatorSetting either lists three bands or derives them from a scale.
type ResonatorSetting struct {
	Enabled *bool         `json:"enabled"`
	Mix     *float64      `json:"mix"`
	Bands   []BandSetting `json:"bands"`
	Scale   string        `json:"scale"`
	RootHz  *float64      `json:"root_hz"`
}

// DiffuseSetting is a partial Diffuse World override.
type DiffuseSetting struct {
	Enabled     *bool    `json:"enabled"`
	Gain        *float64 `json:"gain"`
	Probability *float64 `json:"probability"`
	Level       *float64 `json:"level"`
}

// NoteSetting is one authored note.
type NoteSetting struct {
	Midi int `json:"midi"`
	On   int `json:"on"`
	Off  int `json:"off"`
}

// GenerateSetting asks for a seeded phrase instead of authored notes.
type GenerateSetting struct {
	Root      int    `json:"root"`
	Scale     string `json:"scale"`
	Count     int    `json:"count"`
	SlotTicks int    `json:"slot_ticks"`
}

// MelodySetting is a partial sequencer override.
type MelodySetting struct {
	Enabled     *bool            `json:"enabled"`
	Gain        *float64         `json:"gain"`
	TickRate    *float64         `json:"tick_rate"`
	LengthTicks *int             `json:"length_ticks"`
	Notes       []NoteSetting    `json:"notes"`
	Generate    *GenerateSetting `json:"generate"`
	Attack      *float64         `json:"attack"`
	Release     *float64         `json:"release"`
	FilterBase  *float64         `json:"filter_base"`
	FilterAmt   *float64         `json:"filter_amount"`
	FilterAtk   *float64         `json:"filter_attack"`
	FilterRel   *float64         `json:"filter_release"`
	FilterQ     *float64         `json:"filter_q"`
	Detune      *float64         `json:"detune"`
	ReverbMix   *float64         `json:"reverb_mix"`
	Level       *float64         `json:"level"`
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
// Relative sample and impulse response paths resolve against the preset's
// directory.
func LoadJSON(path string) (*Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, fmt.Errorf("apply %s: %w", path, err)
	}

	base := filepath.Dir(path)
	resolve := func(file string) string {
		if file == "" || filepath.IsAbs(file) {
			return file
		}
		return filepath.Clean(filepath.Join(base, file))
	}
	p.RoomIRPath = resolve(p.RoomIRPath)
	for vpath, file := range p.Samples {
		p.Samples[vpath] = resolve(file)
	}
	return p, nil
}

// ApplyFile applies a parsed preset file onto an existing params object.
func ApplyFile(dst *Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		if *f.SampleRate < 8000 || *f.SampleRate > 192000 {
			return fmt.Errorf("sample_rate must be in [8000, 192000]")
		}
		dst.SampleRate = *f.SampleRate
	}
	if f.Seed != nil {
		dst.Seed = *f.Seed
	}
	if len(f.Samples) > 0 {
		if dst.Samples == nil {
			dst.Samples = make(map[string]string)
		}
		vpaths := make([]string, 0, len(f.Samples))
		for k := range f.Samples {
			vpaths = append(vpaths, k)
		}
		sort.Strings(vpaths)
		for _, vpath := range vpaths {
			file := strings.TrimSpace(f.Samples[vpath])
			if !strings.HasPrefix(vpath, "/") || file == "" {
				return fmt.Errorf("invalid samples entry %q -> %q", vpath, file)
			}
			dst.Samples[vpath] = file
		}
	}
	if f.RoomIRPath != "" {
		dst.RoomIRPath = strings.TrimSpace(f.RoomIRPath)
	}
	if f.RoomWet != nil {
		if *f.RoomWet < 0 || *f.RoomWet > 1 {
			return fmt.Errorf("room_wet must be in [0,1]")
		}
		dst.RoomWet = *f.RoomWet
	}

	if err := applyGranular(&dst.Granular, f.Granular); err != nil {
		return err
	}
	if err := applyResonator(&dst.Resonator, f.Resonator, dst.Seed); err != nil {
		return err
	}
	if err := applyDiffuse(&dst.Diffuse, f.Diffuse); err != nil {
		return err
	}
	return applyMelody(&dst.Melody, f.Melody, dst.Seed)
}

func setGain(dst *float64, v *float64, name string) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return fmt.Errorf("%s must be >= 0", name)
	}
	*dst = *v
	return nil
}

func setRange(dst *float64, v *float64, lo, hi float64, name string) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be in [%g, %g]", name, lo, hi)
	}
	*dst = *v
	return nil
}

func applyGranular(dst *GranularScene, s *GranularSetting) error {
	if s == nil {
		return nil
	}
	if s.Enabled != nil {
		dst.Enabled = *s.Enabled
	}
	p := &dst.Params
	if s.Sample != "" {
		p.SamplePath = strings.TrimSpace(s.Sample)
	}
	if s.Shape != "" {
		shape, err := synth.ParseShape(s.Shape)
		if err != nil {
			return fmt.Errorf("granular.shape: %w", err)
		}
		p.Shape = shape
	}
	for _, err := range []error{
		setGain(&dst.Gain, s.Gain, "granular.gain"),
		setRange(&p.GrainSizeMs, s.GrainSizeMs, 5, 200, "granular.grain_size_ms"),
		setRange(&p.DensityHz, s.DensityHz, 1, 50, "granular.density_hz"),
		setRange(&p.Position, s.Position, 0, 1, "granular.position"),
		setRange(&p.Pitch, s.Pitch, 0.01, 16, "granular.pitch"),
		setRange(&p.PositionSpray, s.PositionSpray, 0, 1, "granular.position_spray"),
		setRange(&p.PitchSpray, s.PitchSpray, 0, 1, "granular.pitch_spray"),
		setRange(&p.StereoSpread, s.StereoSpread, 0, 1, "granular.stereo_spread"),
		setGain(&p.Gain, s.Level, "granular.level"),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func applyResonator(dst *ResonatorScene, s *ResonatorSetting, seed uint64) error {
	if s == nil {
		return nil
	}
	if s.Enabled != nil {
		dst.Enabled = *s.Enabled
	}
	if err := setRange(&dst.Params.Mix, s.Mix, 0, 1, "resonator.mix"); err != nil {
		return err
	}
	switch {
	case len(s.Bands) > 0:
		if len(s.Bands) != len(dst.Params.Bands) {
			return fmt.Errorf("resonator.bands must list exactly %d bands", len(dst.Params.Bands))
		}
		for i, b := range s.Bands {
			if b.Freq <= 0 {
				return fmt.Errorf("resonator.bands[%d].freq must be > 0", i)
			}
			if b.Q < 10 || b.Q > 100 {
				return fmt.Errorf("resonator.bands[%d].q must be in [10, 100]", i)
			}
			if b.Gain < 0 {
				return fmt.Errorf("resonator.bands[%d].gain must be >= 0", i)
			}
			dst.Params.Bands[i] = synth.Band{Freq: b.Freq, Q: b.Q, Gain: b.Gain}
		}
	case s.Scale != "":
		scale, err := synth.ScaleByName(s.Scale)
		if err != nil {
			return fmt.Errorf("resonator.scale: %w", err)
		}
		root := 220.0
		if err := setRange(&root, s.RootHz, 20, 5000, "resonator.root_hz"); err != nil {
			return err
		}
		dst.Params.Bands = synth.ResonatorBandsFromScale(seed, root, scale)
	}
	return nil
}

func applyDiffuse(dst *DiffuseScene, s *DiffuseSetting) error {
	if s == nil {
		return nil
	}
	if s.Enabled != nil {
		dst.Enabled = *s.Enabled
	}
	if err := setGain(&dst.Gain, s.Gain, "diffuse.gain"); err != nil {
		return err
	}
	if err := setRange(&dst.Params.Probability, s.Probability, 0, 1, "diffuse.probability"); err != nil {
		return err
	}
	return setGain(&dst.Params.Gain, s.Level, "diffuse.level")
}

func applyMelody(dst *MelodyScene, s *MelodySetting, seed uint64) error {
	if s == nil {
		return nil
	}
	if s.Enabled != nil {
		dst.Enabled = *s.Enabled
	}
	p := &dst.Params
	if s.LengthTicks != nil {
		if *s.LengthTicks < 0 {
			return fmt.Errorf("melody.length_ticks must be >= 0")
		}
		p.LengthTicks = *s.LengthTicks
	}
	for _, err := range []error{
		setGain(&dst.Gain, s.Gain, "melody.gain"),
		setRange(&p.TickRate, s.TickRate, 0.1, 1000, "melody.tick_rate"),
		setRange(&p.Attack, s.Attack, 0.001, 10, "melody.attack"),
		setRange(&p.Release, s.Release, 0.001, 10, "melody.release"),
		setRange(&p.FilterBase, s.FilterBase, 20, 20000, "melody.filter_base"),
		setRange(&p.FilterAmount, s.FilterAmt, 0, 20000, "melody.filter_amount"),
		setRange(&p.FilterAttack, s.FilterAtk, 0.001, 10, "melody.filter_attack"),
		setRange(&p.FilterRelease, s.FilterRel, 0.001, 10, "melody.filter_release"),
		setRange(&p.FilterQ, s.FilterQ, 0.1, 20, "melody.filter_q"),
		setRange(&p.Detune, s.Detune, -100, 100, "melody.detune"),
		setRange(&p.ReverbMix, s.ReverbMix, 0, 1, "melody.reverb_mix"),
		setGain(&p.Gain, s.Level, "melody.level"),
	} {
		if err != nil {
			return err
		}
	}

	switch {
	case len(s.Notes) > 0:
		notes := make([]synth.Note, len(s.Notes))
		for i, n := range s.Notes {
			notes[i] = synth.Note{Midi: n.Midi, OnTick: n.On, OffTick: n.Off}
		}
		if err := synth.ValidateNotes(notes, p.LengthTicks); err != nil {
			return fmt.Errorf("melody.notes: %w", err)
		}
		p.Notes = notes
	case s.Generate != nil:
		g := s.Generate
		scale, err := synth.ScaleByName(g.Scale)
		if err != nil {
			return fmt.Errorf("melody.generate.scale: %w", err)
		}
		if g.Count < 1 || g.SlotTicks < 2 {
			return fmt.Errorf("melody.generate needs count >= 1 and slot_ticks >= 2")
		}
		p.Notes = synth.GenerateNotes(seed, g.Root, scale, g.Count, g.SlotTicks)
		if p.LengthTicks == 0 {
			p.LengthTicks = g.Count * g.SlotTicks
		}
	}
	return nil
}

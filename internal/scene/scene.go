// Package scene turns a preset into registered samples and mixer sources.
// The CLIs share it so rendering, playback and the web build agree on what
// a preset sounds like.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/casperleerink/circular-music/irsynth"
	"github.com/casperleerink/circular-music/mixer"
	"github.com/casperleerink/circular-music/preset"
	"github.com/casperleerink/circular-music/registry"
	"github.com/casperleerink/circular-music/render"
	"github.com/casperleerink/circular-music/synth"
)

// Source ids in the mixer.
const (
	SourceGranular = "granular"
	SourceDiffuse  = "diffuse"
	SourceMelody   = "melody"
)

// MeterName is the event source name of the master meter.
const MeterName = "master"

// Load registers the preset's samples and room IR. Without a room IR file a
// synthetic one is generated when the room send is in use.
func Load(p *preset.Params, reg *registry.Registry) error {
	vpaths := make([]string, 0, len(p.Samples))
	for vpath := range p.Samples {
		vpaths = append(vpaths, vpath)
	}
	sort.Strings(vpaths)
	for _, vpath := range vpaths {
		if err := reg.LoadWAV(vpath, p.Samples[vpath]); err != nil {
			return err
		}
	}

	switch {
	case p.RoomIRPath != "":
		return reg.LoadWAV(preset.RoomIRVirtualPath, p.RoomIRPath)
	case p.RoomWet > 0:
		cfg := irsynth.DefaultConfig()
		cfg.SampleRate = reg.SampleRate()
		cfg.Seed = p.Seed
		ir, err := irsynth.Generate(cfg)
		if err != nil {
			return fmt.Errorf("synthesize room ir: %w", err)
		}
		return reg.Register(preset.RoomIRVirtualPath, ir)
	}
	return nil
}

// NewMixer creates the master mixer for p, metered as MeterName.
func NewMixer(p *preset.Params, rt mixer.Runtime, logger *slog.Logger) *mixer.Mixer {
	opts := []mixer.Option{mixer.WithMeter(MeterName), mixer.WithLogger(logger)}
	if p.RoomWet > 0 {
		opts = append(opts, mixer.WithRoomIR(preset.RoomIRVirtualPath, p.RoomWet))
	}
	return mixer.New(rt, opts...)
}

// Apply sets every enabled source of p on m and removes the disabled ones.
// Sources are applied independently: one failing source does not hold back
// the others, and the errors are joined.
func Apply(p *preset.Params, m *mixer.Mixer, reg *registry.Registry) error {
	return errors.Join(
		applyGranular(p, m, reg),
		applyDiffuse(p, m),
		applyMelody(p, m),
	)
}

func applyGranular(p *preset.Params, m *mixer.Mixer, reg *registry.Registry) error {
	if !p.Granular.Enabled {
		return m.RemoveSource(SourceGranular)
	}
	sig, err := synth.GranularFromRegistry("gran", p.Granular.Params, reg)
	if err != nil {
		return err
	}
	if p.Resonator.Enabled {
		sig = synth.Resonator("res", p.Resonator.Params, sig)
	}
	return m.SetSource(SourceGranular, sig, mixer.SourceOptions{Gain: p.Granular.Gain})
}

func applyDiffuse(p *preset.Params, m *mixer.Mixer) error {
	if !p.Diffuse.Enabled {
		return m.RemoveSource(SourceDiffuse)
	}
	sig := synth.DiffuseWorldWith("dw", p.Diffuse.Params)
	return m.SetSource(SourceDiffuse, sig, mixer.SourceOptions{Gain: p.Diffuse.Gain})
}

func applyMelody(p *preset.Params, m *mixer.Mixer) error {
	if !p.Melody.Enabled {
		return m.RemoveSource(SourceMelody)
	}
	sig := synth.Melody("mel", p.Melody.Params)
	return m.SetSource(SourceMelody, sig, mixer.SourceOptions{Gain: p.Melody.Gain})
}

// Start builds a fresh offline runtime for p, loads its samples and
// submits its sources.
func Start(p *preset.Params, logger *slog.Logger) (*render.Offline, *mixer.Mixer, *registry.Registry, error) {
	cfg := render.DefaultConfig()
	cfg.SampleRate = p.SampleRate
	cfg.Seed = p.Seed
	cfg.Logger = logger
	rt, err := render.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	reg := registry.New(p.SampleRate, registry.WithLogger(logger))
	if err := Load(p, reg); err != nil {
		return nil, nil, nil, err
	}
	if err := reg.Sync(rt); err != nil {
		return nil, nil, nil, err
	}
	m := NewMixer(p, rt, logger)
	if err := Apply(p, m, reg); err != nil {
		return nil, nil, nil, err
	}
	return rt, m, reg, nil
}

package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/casperleerink/circular-music/analysis"
	"github.com/casperleerink/circular-music/internal/scene"
	"github.com/casperleerink/circular-music/mixer"
	"github.com/casperleerink/circular-music/preset"
	"github.com/casperleerink/circular-music/registry"
	"github.com/casperleerink/circular-music/render"
)

// stream adapts the runtime to oto's pull model. Read runs on oto's audio
// goroutine.
type stream struct {
	rt *render.Offline
}

func (s *stream) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	samples := s.rt.Process(frames)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * 8, nil
}

func main() {
	presetPath := flag.String("preset", "", "Scene preset JSON file path (optional)")
	duration := flag.Float64("duration", 0, "Stop after this many seconds (0 plays until interrupted)")
	watch := flag.Duration("watch", time.Second, "Preset reload poll interval (0 disables)")
	verbose := flag.Bool("v", false, "Verbose runtime logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	params, err := loadParams(*presetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
		os.Exit(1)
	}

	rt, m, reg, err := scene.Start(params, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building scene: %v\n", err)
		os.Exit(1)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   params.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audio device: %v\n", err)
		os.Exit(1)
	}
	<-ready

	player := ctx.NewPlayer(&stream{rt: rt})
	player.Play()
	defer player.Close()

	fmt.Printf("Playing %v at %d Hz (Ctrl-C to stop)\n", m.Sources(), params.SampleRate)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	var stop <-chan time.Time
	if *duration > 0 {
		stop = time.After(time.Duration(*duration * float64(time.Second)))
	}

	var poll <-chan time.Time
	if *watch > 0 && *presetPath != "" {
		ticker := time.NewTicker(*watch)
		defer ticker.Stop()
		poll = ticker.C
	}
	lastMod := modTime(*presetPath)

	report := time.NewTicker(time.Second)
	defer report.Stop()
	var master analysis.Level

	for {
		select {
		case <-interrupt:
			return
		case <-stop:
			return
		case ev := <-rt.Events():
			switch ev.Type {
			case render.EventMeter:
				if ev.Level.Peak > master.Peak {
					master = ev.Level
				}
			case render.EventError:
				logger.Warn("runtime error", "source", ev.Source, "message", ev.Message)
			}
		case <-report.C:
			logger.Debug("master level", "peak_dbfs", analysis.DBFS(master.Peak), "rms_dbfs", analysis.DBFS(master.RMS), "dropped", rt.Dropped())
			master = analysis.Level{}
		case <-poll:
			mt := modTime(*presetPath)
			if mt.Equal(lastMod) {
				continue
			}
			lastMod = mt
			if err := reload(*presetPath, params, m, reg, rt); err != nil {
				logger.Warn("preset reload failed", "path", *presetPath, "err", err)
				continue
			}
			logger.Info("preset reloaded", "path", *presetPath, "sources", m.Sources())
		}
	}
}

func loadParams(path string) (*preset.Params, error) {
	if path == "" {
		return preset.NewDefaultParams(), nil
	}
	return preset.LoadJSON(path)
}

// reload re-reads the preset and resubmits its sources. The sample rate,
// seed and room send are fixed for the lifetime of the device.
func reload(path string, cur *preset.Params, m *mixer.Mixer, reg *registry.Registry, rt *render.Offline) error {
	p, err := preset.LoadJSON(path)
	if err != nil {
		return err
	}
	p.SampleRate = cur.SampleRate
	p.Seed = cur.Seed
	p.RoomIRPath = cur.RoomIRPath
	p.RoomWet = cur.RoomWet
	for _, vpath := range reg.Paths() {
		if _, ok := p.Samples[vpath]; !ok && vpath != preset.RoomIRVirtualPath {
			reg.Evict(vpath)
		}
	}
	if err := scene.Load(p, reg); err != nil {
		return err
	}
	if err := reg.Sync(rt); err != nil {
		return err
	}
	return scene.Apply(p, m, reg)
}

func modTime(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/casperleerink/circular-music/analysis"
	"github.com/casperleerink/circular-music/internal/scene"
	"github.com/casperleerink/circular-music/internal/wavio"
	"github.com/casperleerink/circular-music/preset"
	"github.com/casperleerink/circular-music/render"
)

func main() {
	presetPath := flag.String("preset", "", "Scene preset JSON file path (optional)")
	duration := flag.Float64("duration", 30.0, "Duration in seconds")
	sampleRate := flag.Int("sample-rate", 0, "Render sample rate in Hz (overrides preset)")
	seed := flag.Uint64("seed", 0, "Random seed (overrides preset when non-zero)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	verbose := flag.Bool("v", false, "Verbose runtime logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	params := preset.NewDefaultParams()
	if *presetPath != "" {
		p, err := preset.LoadJSON(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
		params = p
	}
	if *sampleRate > 0 {
		params.SampleRate = *sampleRate
	}
	if *seed != 0 {
		params.Seed = *seed
	}

	rt, m, _, err := scene.Start(params, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building scene: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rendering %v for %.2f seconds at %d Hz...\n", m.Sources(), *duration, params.SampleRate)

	totalFrames := int(float64(params.SampleRate) * (*duration))
	if totalFrames < 1 {
		totalFrames = 1
	}
	blockSize := rt.BlockSize()
	samples := make([]float32, 0, totalFrames*2)
	var peak analysis.Level
	for framesRendered := 0; framesRendered < totalFrames; {
		framesToRender := blockSize
		if framesRendered+framesToRender > totalFrames {
			framesToRender = totalFrames - framesRendered
		}
		samples = append(samples, rt.Process(framesToRender)...)
		framesRendered += framesToRender
		peak = drainEvents(rt, peak)
	}

	if err := wavio.WriteStereo(*output, samples, params.SampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Peak: %.1f dBFS, RMS: %.1f dBFS\n", analysis.DBFS(peak.Peak), analysis.DBFS(stereoRMS(samples)))
	if n := rt.Dropped(); n > 0 {
		fmt.Printf("Dropped %d analysis events\n", n)
	}
	fmt.Printf("Successfully wrote %s (%d frames)\n", *output, totalFrames)
}

// drainEvents folds pending meter events into the running maximum and
// reports runtime errors.
func drainEvents(rt *render.Offline, acc analysis.Level) analysis.Level {
	for {
		select {
		case ev := <-rt.Events():
			switch ev.Type {
			case render.EventMeter:
				acc.Peak = math.Max(acc.Peak, ev.Level.Peak)
			case render.EventError:
				fmt.Fprintf(os.Stderr, "runtime: %s\n", ev.Message)
			}
		default:
			return acc
		}
	}
}

func stereoRMS(interleaved []float32) float64 {
	if len(interleaved) == 0 {
		return 0
	}
	var sum float64
	for _, s := range interleaved {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(interleaved)))
}

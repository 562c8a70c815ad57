package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/casperleerink/circular-music/internal/wavio"
	"github.com/casperleerink/circular-music/irsynth"
)

func main() {
	cfg := irsynth.DefaultConfig()

	output := flag.String("output", "assets/ir/room_48k.wav", "Output WAV path")
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Output sample rate")
	flag.Float64Var(&cfg.DurationS, "duration", cfg.DurationS, "IR length in seconds")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.DirectLevel, "direct", cfg.DirectLevel, "Direct impulse level")
	flag.IntVar(&cfg.EarlyCount, "early", cfg.EarlyCount, "Number of early reflections")
	flag.Float64Var(&cfg.EarlyWindow, "early-window", cfg.EarlyWindow, "Early reflection window (s)")
	flag.Float64Var(&cfg.LateLevel, "late", cfg.LateLevel, "Diffuse late-tail level")
	flag.Float64Var(&cfg.DecayS, "decay", cfg.DecayS, "Tail decay time to -60 dB (s)")
	flag.Float64Var(&cfg.Damping, "damping", cfg.Damping, "Tail darkening over time [0, 1]")
	flag.Float64Var(&cfg.NormalizePeak, "normalize", cfg.NormalizePeak, "Peak normalization target")
	flag.Parse()

	ir, err := irsynth.Generate(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ir-synth error: %v\n", err)
		os.Exit(1)
	}

	if err := wavio.WriteMono(*output, ir, cfg.SampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "wav write error: %v\n", err)
		os.Exit(1)
	}

	peak, rms := stats(ir)
	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("SampleRate: %d Hz, Duration: %.3f s, Samples: %d\n", cfg.SampleRate, cfg.DurationS, len(ir))
	fmt.Printf("Peak: %.6f, RMS: %.6f\n", peak, rms)
}

func stats(x []float32) (peak float64, rms float64) {
	if len(x) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range x {
		v := float64(s)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}
	return peak, math.Sqrt(sum / float64(len(x)))
}

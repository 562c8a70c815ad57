// Package wavio reads and writes the WAV files the CLIs and the sample
// registry exchange with disk.
package wavio

import (
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// Read decodes a WAV file into per-channel float32 slices.
func Read(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	numCh := buf.Format.NumChannels
	if buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("invalid wav sample-rate: %d", buf.Format.SampleRate)
	}
	frames := len(buf.Data) / numCh
	if frames == 0 {
		return nil, 0, fmt.Errorf("empty wav data: %s", path)
	}

	channels := make([][]float32, numCh)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < numCh; c++ {
			channels[c][i] = buf.Data[i*numCh+c]
		}
	}
	return channels, buf.Format.SampleRate, nil
}

// ReadMono decodes a WAV file and averages its channels, resampling to
// targetRate when it is positive and differs from the file rate.
func ReadMono(path string, targetRate int) ([]float32, error) {
	channels, rate, err := Read(path)
	if err != nil {
		return nil, err
	}
	mono := Downmix(channels)
	if targetRate > 0 {
		return Resample(mono, rate, targetRate)
	}
	return mono, nil
}

// Downmix averages channels into one.
func Downmix(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	out := make([]float32, len(channels[0]))
	scale := 1 / float32(len(channels))
	for _, ch := range channels {
		for i := range out {
			out[i] += ch[i] * scale
		}
	}
	return out
}

// Resample converts in from fromRate to toRate.
func Resample(in []float32, fromRate int, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates: %d -> %d", fromRate, toRate)
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	in64 := make([]float64, len(in))
	for i, v := range in {
		in64[i] = float64(v)
	}
	out64 := r.Process(in64)
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out, nil
}

// WriteStereo writes interleaved stereo samples as 16-bit PCM.
func WriteStereo(path string, interleaved []float32, sampleRate int) error {
	return write(path, interleaved, sampleRate, 2)
}

// WriteMono writes mono samples as 16-bit PCM.
func WriteMono(path string, data []float32, sampleRate int) error {
	return write(path, data, sampleRate, 1)
}

func write(path string, data []float32, sampleRate int, numChannels int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)
	defer enc.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

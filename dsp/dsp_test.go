package dsp

import (
	"math"
	"testing"
)

func sineRMSThrough(b *Biquad, freq, fs float64) float64 {
	const n = 48000
	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		y := b.Process(math.Sin(2 * math.Pi * freq * float64(i) / fs))
		if i >= n/2 {
			sum += y * y
			count++
		}
	}
	return math.Sqrt(sum / float64(count))
}

func TestBandpassPassesCenterRejectsFar(t *testing.T) {
	const fs = 48000
	center := &Biquad{}
	center.SetBandpass(1000, 20, fs)
	far := &Biquad{}
	far.SetBandpass(1000, 20, fs)

	atCenter := sineRMSThrough(center, 1000, fs)
	away := sineRMSThrough(far, 4000, fs)
	// Unit sine RMS is 1/sqrt(2).
	if math.Abs(atCenter-1/math.Sqrt2) > 0.02 {
		t.Fatalf("center gain not unity: rms=%f", atCenter)
	}
	if away > atCenter*0.1 {
		t.Fatalf("band-pass leaked: center=%f away=%f", atCenter, away)
	}
}

func TestLowpassAttenuatesAboveCutoff(t *testing.T) {
	const fs = 48000
	lo := &Biquad{}
	lo.SetLowpass(500, 0.707, fs)
	hi := &Biquad{}
	hi.SetLowpass(500, 0.707, fs)
	pass := sineRMSThrough(lo, 100, fs)
	stop := sineRMSThrough(hi, 8000, fs)
	if stop > pass*0.05 {
		t.Fatalf("low-pass stopband too loud: pass=%f stop=%f", pass, stop)
	}
}

func TestRetuneKeepsHistory(t *testing.T) {
	b := &Biquad{}
	b.SetBandpass(800, 10, 48000)
	for i := 0; i < 100; i++ {
		b.Process(1)
	}
	y1 := b.y1
	b.SetBandpass(900, 10, 48000)
	if b.y1 != y1 {
		t.Fatalf("retune cleared history")
	}
	if b.configured != true || b.fc != 900 {
		t.Fatalf("retune did not apply")
	}
}

func TestBiquadClampsDesignInputs(t *testing.T) {
	b := &Biquad{}
	b.SetBandpass(100000, 0, 48000)
	if b.fc != 48000*0.49 || b.q != 0.1 {
		t.Fatalf("clamp failed: fc=%f q=%f", b.fc, b.q)
	}
	for i := 0; i < 1000; i++ {
		y := b.Process(1)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			t.Fatalf("non-finite output at %d", i)
		}
	}
}

func TestDelayLineRead(t *testing.T) {
	d := NewDelayLine(8)
	for i := 1; i <= 5; i++ {
		d.Write(float64(i))
	}
	if got := d.Read(1); got != 5 {
		t.Fatalf("Read(1)=%f", got)
	}
	if got := d.Read(3); got != 3 {
		t.Fatalf("Read(3)=%f", got)
	}
	if got := d.ReadFractional(1.5); got != 4.5 {
		t.Fatalf("ReadFractional(1.5)=%f", got)
	}
}

func TestPinkFilterBounded(t *testing.T) {
	var p PinkFilter
	x := 0.123
	for i := 0; i < 100000; i++ {
		// Cheap deterministic white-ish input.
		x = math.Mod(x*997.0+0.618, 1)
		y := p.Process(2*x - 1)
		if math.Abs(y) > 2 {
			t.Fatalf("pink output ran away: %f", y)
		}
	}
}

package dsp

import (
	"math"

	"github.com/firehorse/darkmix"
)

type (
	// Osc is a phase accumulating oscillator with polyBLEP corrected saw and
	// square waves.
	Osc struct {
		Phase float64 // 0..1
	}

	// Rand is the linear congruential noise generator of the synth core. A
	// zero seed is replaced by 1.
	Rand struct {
		seed uint32
	}
)

// Next returns the current sample of waveform w and advances the phase by
// freq/sampleRate. Noise is not handled here; see Rand.
func (o *Osc) Next(w darkmix.Waveform, freq float64, sampleRate int) float64 {
	dt := freq / float64(sampleRate)
	p := o.Phase
	var v float64
	switch w {
	case darkmix.Sine:
		v = math.Sin(2 * math.Pi * p)
	case darkmix.Triangle:
		v = 1 - 4*math.Abs(p-0.5)
	case darkmix.Saw:
		v = 2*p - 1 - polyBLEP(p, dt)
	case darkmix.Square:
		v = 1.0
		if p >= 0.5 {
			v = -1
		}
		v += polyBLEP(p, dt)
		v -= polyBLEP(math.Mod(p+0.5, 1), dt)
	}
	p += dt
	p -= math.Floor(p)
	o.Phase = p
	return v
}

func polyBLEP(t, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func NewRand(seed uint32) Rand {
	if seed == 0 {
		seed = 1
	}
	return Rand{seed: seed}
}

// Next returns white noise in [-1, 1].
func (r *Rand) Next() float64 {
	if r.seed == 0 {
		r.seed = 1
	}
	r.seed *= 16007
	return float64(int32(r.seed)) / -2147483648.0
}

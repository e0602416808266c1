// Package dsp contains the sample-level building blocks shared by the voices
// and the effects: filters, oscillators, envelopes and shapers.
package dsp

import "math"

type (
	// SVF is a state variable filter in the topology-preserving (trapezoidal)
	// form, so cutoff can be modulated every sample without blowing up. One
	// SVF filters one channel.
	SVF struct {
		ic1, ic2 float64
	}

	// SVFCoeffs are the precomputed coefficients for a cutoff/Q pair.
	SVFCoeffs struct {
		a1, a2, a3, k float64
	}

	// Biquad is a direct form II transposed biquad, one channel.
	Biquad struct {
		z1, z2 float64
	}

	// BiquadCoeffs are normalized (a0 = 1) biquad coefficients.
	BiquadCoeffs struct {
		B0, B1, B2, A1, A2 float64
	}
)

// MaxCutoffRatio keeps cutoff below Nyquist where tan() explodes.
const MaxCutoffRatio = 0.49

// NewSVFCoeffs computes coefficients for cutoff (Hz) and resonance q (>0).
func NewSVFCoeffs(cutoff, q float64, sampleRate int) SVFCoeffs {
	sr := float64(sampleRate)
	cutoff = math.Min(math.Max(cutoff, 10), sr*MaxCutoffRatio)
	if q < 0.1 {
		q = 0.1
	}
	g := math.Tan(math.Pi * cutoff / sr)
	k := 1 / q
	a1 := 1 / (1 + g*(g+k))
	a2 := g * a1
	a3 := g * a2
	return SVFCoeffs{a1: a1, a2: a2, a3: a3, k: k}
}

// Process filters one sample and returns the lowpass, bandpass and highpass
// outputs.
func (f *SVF) Process(x float64, c SVFCoeffs) (low, band, high float64) {
	v3 := x - f.ic2
	v1 := c.a1*f.ic1 + c.a2*v3
	v2 := f.ic2 + c.a2*f.ic1 + c.a3*v3
	f.ic1 = 2*v1 - f.ic1
	f.ic2 = 2*v2 - f.ic2
	return v2, v1, x - c.k*v1 - v2
}

func (f *SVF) Reset() {
	*f = SVF{}
}

func (f *Biquad) Process(x float64, c BiquadCoeffs) float64 {
	y := c.B0*x + f.z1
	f.z1 = c.B1*x - c.A1*y + f.z2
	f.z2 = c.B2*x - c.A2*y
	return y
}

func (f *Biquad) Reset() {
	*f = Biquad{}
}

// Peaking returns RBJ cookbook peaking EQ coefficients.
func Peaking(freq, q, gainDB float64, sampleRate int) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	alpha := math.Sin(w) / (2 * q)
	cos := math.Cos(w)
	a0 := 1 + alpha/a
	return BiquadCoeffs{
		B0: (1 + alpha*a) / a0,
		B1: -2 * cos / a0,
		B2: (1 - alpha*a) / a0,
		A1: -2 * cos / a0,
		A2: (1 - alpha/a) / a0,
	}
}

// LowShelf returns RBJ cookbook low shelf coefficients with slope 1.
func LowShelf(freq, gainDB float64, sampleRate int) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	cos := math.Cos(w)
	alpha := math.Sin(w) / 2 * math.Sqrt2
	sq := 2 * math.Sqrt(a) * alpha
	a0 := (a + 1) + (a-1)*cos + sq
	return BiquadCoeffs{
		B0: a * ((a + 1) - (a-1)*cos + sq) / a0,
		B1: 2 * a * ((a - 1) - (a+1)*cos) / a0,
		B2: a * ((a + 1) - (a-1)*cos - sq) / a0,
		A1: -2 * ((a - 1) + (a+1)*cos) / a0,
		A2: ((a + 1) + (a-1)*cos - sq) / a0,
	}
}

// HighShelf returns RBJ cookbook high shelf coefficients with slope 1.
func HighShelf(freq, gainDB float64, sampleRate int) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	cos := math.Cos(w)
	alpha := math.Sin(w) / 2 * math.Sqrt2
	sq := 2 * math.Sqrt(a) * alpha
	a0 := (a + 1) - (a-1)*cos + sq
	return BiquadCoeffs{
		B0: a * ((a + 1) + (a-1)*cos + sq) / a0,
		B1: -2 * a * ((a - 1) + (a+1)*cos) / a0,
		B2: a * ((a + 1) + (a-1)*cos - sq) / a0,
		A1: 2 * ((a - 1) - (a+1)*cos) / a0,
		A2: ((a + 1) - (a-1)*cos - sq) / a0,
	}
}

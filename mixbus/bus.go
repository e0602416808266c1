// Package mixbus is the last stage of the engine: it sums the effected
// voices with the ambience, applies the master gain and a peak limiter, and
// meters the result.
package mixbus

import (
	"math"
	"sync/atomic"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/param"
	"github.com/viterin/vek/vek32"
)

type (
	// Bus mixes and limits. SetMasterGain and the meter getters are safe to
	// call from any goroutine; Mix runs on the render goroutine.
	Bus struct {
		sampleRate int
		ceiling    float64
		rampTime   float64
		alphaRel   float64
		alert      func(darkmix.Alert)

		masterGain atomic.Uint64 // float64 bits, control side target
		gainCmds   chan float64

		// render side
		gain    *param.Param
		env     float64 // limiter gain, <= 1
		scratch []float32
		meter   meter
	}

	Option func(*Bus)
)

const (
	DefaultCeiling  = 0.98
	DefaultRampTime = 0.03
	// limiter release time constant, seconds
	limiterRelease = 0.08
)

func WithCeiling(c float64) Option {
	return func(b *Bus) { b.ceiling = darkmix.Clamp(c, 0.01, 1) }
}

func WithMasterGain(g float64) Option {
	return func(b *Bus) {
		g = darkmix.Clamp(g, 0, 1)
		b.masterGain.Store(math.Float64bits(g))
		b.gain = param.New(g)
	}
}

// WithAlerts sets the callback for invalid samples. It must not block.
func WithAlerts(f func(darkmix.Alert)) Option {
	return func(b *Bus) { b.alert = f }
}

func New(sampleRate int, opts ...Option) *Bus {
	b := &Bus{
		sampleRate: sampleRate,
		ceiling:    DefaultCeiling,
		rampTime:   DefaultRampTime,
		alphaRel:   1 - math.Exp(-1/(limiterRelease*float64(sampleRate))),
		alert:      func(darkmix.Alert) {},
		gainCmds:   make(chan float64, 64),
		gain:       param.New(1),
		env:        1,
		meter:      newMeter(sampleRate),
	}
	b.masterGain.Store(math.Float64bits(1))
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetMasterGain ramps the master gain to value, clamped to [0, 1].
func (b *Bus) SetMasterGain(value float64) {
	value = darkmix.Clamp(value, 0, 1)
	b.masterGain.Store(math.Float64bits(value))
	if !darkmix.TrySend(b.gainCmds, value) {
		b.alert(darkmix.Alert{Name: darkmix.AlertQueueFull, Priority: darkmix.Warning, Message: "master gain change dropped"})
	}
}

func (b *Bus) MasterGain() float64 {
	return math.Float64frombits(b.masterGain.Load())
}

func (b *Bus) Ceiling() float64 {
	return b.ceiling
}

// Levels returns the latest meter reading.
func (b *Bus) Levels() Levels {
	return b.meter.load()
}

// Mix writes voices + ambience into out, scaled by the master gain and
// limited to the ceiling. All three buffers must have the same length; out
// may be the same buffer as voices. frame is the engine frame of out[0].
func (b *Bus) Mix(out, voices, ambience darkmix.AudioBuffer, frame int64) {
	sr := float64(b.sampleRate)
	now := float64(frame) / sr
	for {
		select {
		case g := <-b.gainCmds:
			b.gain.Set(g, now, b.rampTime)
			continue
		default:
		}
		break
	}
	copy(out, voices)
	flat := out.Flat()
	if len(ambience) == len(out) {
		vek32.Add_Inplace(flat, ambience.Flat())
	}
	if bad := sanitize(flat); bad > 0 {
		b.alert(darkmix.Alert{Name: darkmix.AlertInvalidSample, Priority: darkmix.Error, Message: "invalid samples replaced with silence"})
	}
	minEnv := 1.0
	for i := range out {
		g := b.gain.ValueAt(now + float64(i)/sr)
		l, r := float64(out[i][0])*g, float64(out[i][1])*g
		peak := math.Max(math.Abs(l), math.Abs(r))
		target := 1.0
		if peak > b.ceiling {
			target = b.ceiling / peak
		}
		if target < b.env {
			b.env = target
		} else {
			b.env += (target - b.env) * b.alphaRel
			b.env = math.Min(b.env, target)
		}
		minEnv = math.Min(minEnv, b.env)
		out[i][0] = b.clamp(l * b.env)
		out[i][1] = b.clamp(r * b.env)
	}
	b.meter.update(out, b.scratchFor(len(flat)), minEnv)
}

func (b *Bus) clamp(v float64) float32 {
	c := float32(b.ceiling)
	f := float32(v)
	if f > c {
		return c
	}
	if f < -c {
		return -c
	}
	return f
}

func (b *Bus) scratchFor(n int) []float32 {
	if cap(b.scratch) < n {
		b.scratch = make([]float32, n)
	}
	return b.scratch[:n]
}

// sanitize zeroes NaN and infinite samples and returns how many there were.
func sanitize(x []float32) int {
	bad := 0
	for i, v := range x {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			x[i] = 0
			bad++
		}
	}
	return bad
}

package mixbus

import (
	"math"
	"sync/atomic"

	"github.com/firehorse/darkmix"
	"github.com/viterin/vek/vek32"
)

type (
	// Levels is a meter reading in decibels, 0 dB = +-1. Peak follows the
	// signal with a fast attack and slow release, Average is smoothed RMS,
	// Reduction is how much the limiter pulled the gain down in the last
	// block.
	Levels struct {
		Peak      float32
		Average   float32
		Reduction float32
	}

	meter struct {
		sampleRate int
		peak, avg  float32
		peakBits   atomic.Uint32
		avgBits    atomic.Uint32
		reduceBits atomic.Uint32
		tau        float64
		attack     float64
		release    float64
	}
)

const minVolume = -60

func newMeter(sampleRate int) meter {
	m := meter{sampleRate: sampleRate, peak: minVolume, avg: minVolume, tau: 0.3, attack: 1.5e-3, release: 1.5}
	m.store(Levels{Peak: minVolume, Average: minVolume})
	return m
}

func (m *meter) update(buf darkmix.AudioBuffer, scratch []float32, minEnv float64) {
	if len(buf) == 0 {
		return
	}
	flat := buf.Flat()
	vek32.Mul_Into(scratch, flat, flat)
	power := vek32.Mean(scratch)
	copy(scratch, flat)
	vek32.Abs_Inplace(scratch)
	peak := vek32.Max(scratch)

	blockTime := float64(len(buf)) / float64(m.sampleRate)
	avgDB := toDB(math.Sqrt(float64(power)))
	peakDB := toDB(float64(peak))
	m.avg += (avgDB - m.avg) * alpha(blockTime, m.tau)
	a := alpha(blockTime, m.attack)
	if peakDB < m.peak {
		a = alpha(blockTime, m.release)
	}
	m.peak += (peakDB - m.peak) * a
	m.store(Levels{Peak: m.peak, Average: m.avg, Reduction: toDB(minEnv)})
}

func (m *meter) store(l Levels) {
	m.peakBits.Store(math.Float32bits(l.Peak))
	m.avgBits.Store(math.Float32bits(l.Average))
	m.reduceBits.Store(math.Float32bits(l.Reduction))
}

func (m *meter) load() Levels {
	return Levels{
		Peak:      math.Float32frombits(m.peakBits.Load()),
		Average:   math.Float32frombits(m.avgBits.Load()),
		Reduction: math.Float32frombits(m.reduceBits.Load()),
	}
}

// alpha is the exponential smoothing coefficient for a step of dt seconds
// with time constant tau.
func alpha(dt, tau float64) float32 {
	return float32(1 - math.Exp(-dt/tau))
}

func toDB(v float64) float32 {
	if v <= 0 {
		return minVolume
	}
	db := float32(20 * math.Log10(v))
	if db < minVolume {
		return minVolume
	}
	return db
}

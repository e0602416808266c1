// Package darkmix holds the domain model shared by the generative techno
// engine: audio buffers, tempo and step positions, pattern events, voice and
// effect definitions, ambience tracks, alerts and the engine configuration.
package darkmix

import (
	"unsafe"
)

type (
	// AudioBuffer holds interleaved stereo frames: index 0 of each frame is
	// the left channel, index 1 the right. The engine renders and mixes in
	// this format end to end.
	AudioBuffer [][2]float32

	// AudioSource is something that fills an AudioBuffer on request. The
	// render side of the engine implements it; the output device pulls it.
	AudioSource interface {
		ReadAudio(buf AudioBuffer) (int, error)
	}

	// AudioContext is the host audio output. Play starts pulling the source
	// from a goroutine owned by the context; the context is the only clock the
	// engine schedules against.
	AudioContext interface {
		Play(src AudioSource) error
		Close() error
	}
)

const (
	// DefaultSampleRate is the engine sample rate unless configured otherwise.
	DefaultSampleRate = 44100

	StepsPerBeat  = 4
	PatternLength = 16 // steps per bar
)

// Clear zeroes the buffer without changing its length.
func (b AudioBuffer) Clear() {
	for i := range b {
		b[i] = [2]float32{}
	}
}

// Fill fills the buffer with the same sample.
func (b AudioBuffer) Fill(s [2]float32) {
	for i := range b {
		b[i] = s
	}
}

// Flat returns the buffer as an interleaved float32 slice sharing the same
// memory. Writes through the returned slice are visible in the buffer.
func (b AudioBuffer) Flat() []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice(&b[0][0], len(b)*2)
}

// Resize returns a buffer with length n, reusing the capacity of b if
// possible. The contents are not cleared.
func (b AudioBuffer) Resize(n int) AudioBuffer {
	if cap(b) >= n {
		return b[:n]
	}
	return make(AudioBuffer, n)
}

// TrySend queues v on c without waiting and reports whether it was queued.
// A full queue drops v.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

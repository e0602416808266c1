// Package oto plays the engine through the host audio device using
// github.com/ebitengine/oto/v3. The headless build tag swaps the device for
// a real-time clock that discards the audio.
package oto

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/firehorse/darkmix"
)

// bytesPerFrame is two float32 channels.
const bytesPerFrame = 8

// reader adapts a darkmix.AudioSource to the io.Reader the device pulls
// float32 little-endian stereo frames from.
type reader struct {
	src darkmix.AudioSource
	buf darkmix.AudioBuffer

	mu  sync.Mutex
	err error
}

func (r *reader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	r.buf = r.buf.Resize(frames)
	n, err := r.src.ReadAudio(r.buf)
	if err != nil {
		r.mu.Lock()
		if r.err == nil {
			r.err = fmt.Errorf("audio source: %w", err)
		}
		r.mu.Unlock()
		clear(p)
		return len(p), nil
	}
	if n < frames {
		r.buf[n:].Clear()
	}
	return copy(p, FloatBufferToLE(r.buf.Flat())), nil
}

// Err returns the first error of the source.
func (r *reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// FloatBufferToLE returns the bytes of buf, which are float32 little-endian
// samples on every platform oto supports. The result shares memory with buf.
func FloatBufferToLE(buf []float32) []byte {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*4)
}

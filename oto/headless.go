//go:build headless

package oto

import (
	"sync"
	"time"

	"github.com/firehorse/darkmix"
)

// Context pulls the sources at real-time pace and throws the audio away.
// Used where there is no sound card, e.g. CI.
type Context struct {
	sampleRate int
	bufferSize time.Duration

	mu      sync.Mutex
	players []*reader
	done    chan struct{}
	wg      sync.WaitGroup
}

const DefaultBufferSize = 40 * time.Millisecond

func NewContext(sampleRate int, bufferSize time.Duration) (*Context, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Context{sampleRate: sampleRate, bufferSize: bufferSize, done: make(chan struct{})}, nil
}

func (c *Context) Play(src darkmix.AudioSource) error {
	r := &reader{src: src}
	c.mu.Lock()
	c.players = append(c.players, r)
	c.mu.Unlock()
	frames := int(c.bufferSize.Seconds() * float64(c.sampleRate))
	p := make([]byte, frames*bytesPerFrame)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.bufferSize)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				r.Read(p)
			}
		}
	}()
	return nil
}

func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.players {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.wg.Wait()
	return nil
}
